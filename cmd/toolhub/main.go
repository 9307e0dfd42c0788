// toolhub 是 AI 工具目录站点的服务进程与运维命令行。
//
// 用法:
//
//	toolhub [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config   配置文件路径（yaml/json），也可用 TOOLHUB_CONFIG 指定；
//	               为空时使用默认配置，TOOLHUB_ 前缀的环境变量始终覆盖配置
//
// 命令:
//
//	serve          启动 HTTP 服务与定时缓存预热，收到 SIGINT/SIGTERM 后优雅退出
//	sitemap        输出 sitemap.xml
//	robots         输出 robots.txt
//	warm           执行一次缓存预热并输出结果
//	version        显示版本信息
//
// 退出码:
//
//	0: 成功（serve 因信号退出也视为成功）
//	1: 运行失败
//	2: 参数错误
//
// 示例:
//
//	toolhub -c /etc/toolhub/toolhub.yaml serve
//	TOOLHUB_STORE__DRIVER=rest TOOLHUB_STORE__REST__URL=https://db.example toolhub serve
//	toolhub -c toolhub.yaml sitemap -o public/sitemap.xml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

// 版本信息，通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(context.Background(), os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "toolhub",
		Usage:   "AI 工具目录站点服务",
		Version: versionString(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径",
				Sources: cli.EnvVars("TOOLHUB_CONFIG"),
			},
		},
		Commands: createCommands(),
		// 退出码由 run 统一映射，不让 urfave/cli 直接 os.Exit
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(ctx context.Context, args []string) int {
	if err := createApp().Run(ctx, args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		if isCLIUsageError(err) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime)
}

// usageError 参数错误，退出码 2
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// isCLIUsageError 识别 urfave/cli 产生的 flag 与命令解析错误
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, p := range []string{"flag provided but not defined", "flag needs an argument", "invalid value", "No help topic for"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
