// Package server 提供工具目录的 HTTP 接口：JSON API、sitemap.xml、robots.txt 与健康检查。
//
// 路由：
//
//	GET  /api/tools               热门工具，支持 limit / category / nsfw
//	GET  /api/tools/{slug}        工具详情（含元数据与 JSON-LD），记录一次浏览
//	GET  /api/categories          启用的分类
//	GET  /api/categories/{slug}   分类详情与工具列表
//	GET  /api/search              搜索，参数 q / limit
//	POST /api/submit              提交新工具，待审核
//	GET  /sitemap.xml
//	GET  /robots.txt
//	GET  /healthz
//
// JSON 响应统一为 {"success": true, "data": ..., "count": n} 或
// {"success": false, "error": "..."}。
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/internal/seo"
	"github.com/omeyang/toolhub/pkg/observability/xlog"
	"github.com/omeyang/toolhub/pkg/observability/xmetrics"
	"github.com/omeyang/toolhub/pkg/util/xpool"
	"github.com/omeyang/toolhub/pkg/util/xttl"
)

// Config HTTP 服务配置
type Config struct {
	Addr              string        `koanf:"addr"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	// MaxBodyBytes 提交接口请求体上限
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxBodyBytes:      1 << 20,
	}
}

// Catalog 服务端依赖的目录能力，由 *catalog.Service 实现。
type Catalog interface {
	seo.Source
	Category(ctx context.Context, slug string) (catalog.Category, error)
	ToolBySlug(ctx context.Context, slug string) (catalog.Tool, error)
	ToolsByCategory(ctx context.Context, slug string, limit int) ([]catalog.Tool, error)
	Search(ctx context.Context, query string, limit int) ([]catalog.Tool, error)
	RecordView(toolID string)
	Submit(ctx context.Context, sub catalog.Submission) (string, error)
	Stats() xttl.Stats
	ViewStats() xpool.Stats
}

var _ Catalog = (*catalog.Service)(nil)

// Server HTTP 服务
type Server struct {
	cfg      Config
	site     seo.Site
	catalog  Catalog
	sitemap  *seo.SitemapGenerator
	robots   []byte
	logger   xlog.Logger
	observer xmetrics.Observer
	started  time.Time
	handler  http.Handler
}

// Option Server 配置选项
type Option func(*Server)

// WithLogger 设置日志
func WithLogger(l xlog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver 为每个请求创建服务端 span
func WithObserver(o xmetrics.Observer) Option {
	return func(s *Server) {
		if o != nil {
			s.observer = o
		}
	}
}

// New 创建 Server，cfg 中的零值字段使用默认值。
func New(cfg Config, site seo.Site, cat Catalog, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg.withDefaults(),
		site:     site.Normalize(),
		catalog:  cat,
		logger:   xlog.Default(),
		observer: xmetrics.NoopObserver{},
		started:  time.Now(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.sitemap = seo.NewSitemapGenerator(s.site, cat, seo.WithLogger(s.logger))
	s.robots = []byte(seo.DefaultRobots(s.site).String())
	s.handler = s.routes()
	return s
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = def.ReadHeaderTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	return c
}

// Handler 返回带中间件的根 Handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer 按配置构造 *http.Server，可交给 xrun.HTTPServer 管理生命周期。
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
}

// ShutdownTimeout 优雅关闭等待时间
func (s *Server) ShutdownTimeout() time.Duration {
	return s.cfg.ShutdownTimeout
}

type route struct {
	method  string
	path    string
	handler http.HandlerFunc
}

func (s *Server) routes() http.Handler {
	table := []route{
		{http.MethodGet, "/api/tools", s.handleTools},
		{http.MethodGet, "/api/tools/{slug}", s.handleTool},
		{http.MethodGet, "/api/categories", s.handleCategories},
		{http.MethodGet, "/api/categories/{slug}", s.handleCategory},
		{http.MethodGet, "/api/search", s.handleSearch},
		{http.MethodPost, "/api/submit", s.handleSubmit},
		{http.MethodGet, "/sitemap.xml", s.handleSitemap},
		{http.MethodGet, "/robots.txt", s.handleRobots},
		{http.MethodGet, "/healthz", s.handleHealth},
	}

	mux := http.NewServeMux()
	allowed := make(map[string][]string, len(table))
	for _, rt := range table {
		mux.HandleFunc(rt.method+" "+rt.path, rt.handler)
		allowed[rt.path] = append(allowed[rt.path], rt.method)
		if rt.method == http.MethodGet {
			allowed[rt.path] = append(allowed[rt.path], http.MethodHead)
		}
	}
	// 不带方法的同路径模式优先级低于带方法的模式，只接住方法不匹配的请求
	for path, methods := range allowed {
		mux.HandleFunc(path, s.handleMethodNotAllowed(methods))
	}
	mux.HandleFunc("/", s.handleNotFound)

	return s.requestID(s.accessLog(s.recoverer(mux)))
}
