package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/toolhub/internal/app"
	"github.com/omeyang/toolhub/internal/seo"
	"github.com/omeyang/toolhub/pkg/lifecycle/xrun"
	"github.com/omeyang/toolhub/pkg/util/xttl"
)

// closeTimeout 退出时释放资源（排空浏览上报、关闭存储）的上限
const closeTimeout = 10 * time.Second

func createCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "启动 HTTP 服务与定时缓存预热",
			Action: cmdServe,
		},
		{
			Name:  "sitemap",
			Usage: "输出 sitemap.xml",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "写入文件而非标准输出",
				},
			},
			Action: cmdSitemap,
		},
		{
			Name:   "robots",
			Usage:  "输出 robots.txt",
			Action: cmdRobots,
		},
		{
			Name:   "warm",
			Usage:  "执行一次缓存预热并输出结果",
			Action: cmdWarm,
		},
		{
			Name:  "version",
			Usage: "显示版本信息",
			Action: func(_ context.Context, cmd *cli.Command) error {
				_, err := fmt.Fprintf(cmd.Root().Writer, "toolhub %s\n", versionString())
				return err
			},
		},
	}
}

func noArgs(cmd *cli.Command) error {
	if cmd.Args().Present() {
		return usageErrorf("%s 不接受参数: %v", cmd.Name, cmd.Args().Slice())
	}
	return nil
}

// openApp 加载配置并组装 App，返回的 release 负责关闭。
func openApp(ctx context.Context, cmd *cli.Command) (*app.App, func() error, error) {
	if err := noArgs(cmd); err != nil {
		return nil, nil, err
	}
	cfg, src, err := app.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, app.WithSource(src))
	if err != nil {
		return nil, nil, err
	}
	release := func() error {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		return a.Close(cctx)
	}
	return a, release, nil
}

func cmdServe(ctx context.Context, cmd *cli.Command) (err error) {
	a, release, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, release()) }()

	if err := a.Run(ctx); err != nil && !errors.Is(err, xrun.ErrSignal) {
		return err
	}
	return nil
}

func cmdSitemap(ctx context.Context, cmd *cli.Command) (err error) {
	a, release, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, release()) }()

	body, err := a.Sitemap(ctx)
	if err != nil {
		return err
	}
	if path := cmd.String("output"); path != "" {
		return os.WriteFile(path, body, 0o644) //nolint:gosec // 站点地图为公开内容
	}
	_, err = cmd.Root().Writer.Write(body)
	return err
}

// cmdRobots 只依赖站点配置，不打开存储
func cmdRobots(_ context.Context, cmd *cli.Command) error {
	if err := noArgs(cmd); err != nil {
		return err
	}
	cfg, _, err := app.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.Root().Writer, seo.DefaultRobots(cfg.Site).String())
	return err
}

type warmResult struct {
	Report xttl.PreloadReport `json:"report"`
	Cache  xttl.Stats         `json:"cache"`
}

func cmdWarm(ctx context.Context, cmd *cli.Command) (err error) {
	a, release, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, release()) }()

	report, _ := a.Warmup().RunOnce(ctx)
	out, err := json.MarshalIndent(warmResult{Report: report, Cache: a.Service().Stats()}, "", "  ")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(cmd.Root().Writer, string(out)); err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("warm: %d of %d keys failed", report.Failed, report.Requested)
	}
	return nil
}
