package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/omeyang/toolhub/pkg/observability/xlog"
	"github.com/omeyang/toolhub/pkg/util/xpool"
	"github.com/omeyang/toolhub/pkg/util/xttl"
)

const (
	// DefaultPopularLimit 首页热门工具数量，也是预热使用的数量
	DefaultPopularLimit = 20
	// DefaultCategoryLimit 分类页工具数量
	DefaultCategoryLimit = 50
	// MaxLimit 单次查询上限
	MaxLimit = 1000
	// CategoriesLimit 启用分类的最大返回数量
	CategoriesLimit = 10

	// DefaultLoadTimeout 单次回源的上限，与调用方的取消无关
	DefaultLoadTimeout = 15 * time.Second

	minSearchRunes = 2
)

// 缓存键，由操作名和参数确定性生成。
const (
	keyCategories = "categories:active"
	keySlugs      = "tools:slugs"
)

// PopularKey 热门工具列表的缓存键
func PopularKey(limit int) string { return "tools:popular:" + strconv.Itoa(limit) }

// ToolKey 单个工具的缓存键
func ToolKey(slug string) string { return "tool:" + slug }

// CategoryToolsKey 分类工具列表的缓存键
func CategoryToolsKey(slug string, limit int) string {
	return "tools:category:" + slug + ":" + strconv.Itoa(limit)
}

// SearchKey 搜索结果的缓存键，查询词小写化。
// 数据源的搜索同样不区分大小写，所以大小写不同的查询可以共用结果。
func SearchKey(query string, limit int) string {
	return "tools:search:" + strings.ToLower(query) + ":" + strconv.Itoa(limit)
}

// CategoriesKey 启用分类列表的缓存键
func CategoriesKey() string { return keyCategories }

// SlugsKey 全部工具 slug 的缓存键
func SlugsKey() string { return keySlugs }

// ViewConfig 浏览计数异步上报配置
type ViewConfig struct {
	Workers   int           `koanf:"workers"`
	QueueSize int           `koanf:"queue_size"`
	Timeout   time.Duration `koanf:"timeout"`
}

// DefaultViewConfig 返回默认上报配置
func DefaultViewConfig() ViewConfig {
	return ViewConfig{Workers: 2, QueueSize: 1024, Timeout: 5 * time.Second}
}

// Service 在 Store 之上提供读穿缓存。
//
// 命中直接返回缓存副本；未命中时同一个键的并发请求合并为一次 Store 调用，
// 成功结果写入缓存，失败（包括 ErrNotFound）不缓存。
type Service struct {
	store  Store
	cache  *xttl.Cache
	group  singleflight.Group
	views  *xpool.WorkerPool[string]
	logger xlog.Logger
	viewTO time.Duration
	loadTO time.Duration
}

// ServiceOption Service 配置选项
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger      xlog.Logger
	views       ViewConfig
	loadTimeout time.Duration
}

// WithLogger 设置日志记录器
func WithLogger(l xlog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLoadTimeout 设置单次回源的超时，非正值忽略
func WithLoadTimeout(d time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		if d > 0 {
			o.loadTimeout = d
		}
	}
}

// WithViewConfig 设置浏览计数上报参数，非正值使用默认值
func WithViewConfig(cfg ViewConfig) ServiceOption {
	return func(o *serviceOptions) {
		d := DefaultViewConfig()
		if cfg.Workers <= 0 {
			cfg.Workers = d.Workers
		}
		if cfg.QueueSize <= 0 {
			cfg.QueueSize = d.QueueSize
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = d.Timeout
		}
		o.views = cfg
	}
}

// NewService 创建 Service 并启动浏览计数 worker，使用完毕需调用 Close。
func NewService(store Store, cache *xttl.Cache, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("catalog: nil store")
	}
	if cache == nil {
		return nil, errors.New("catalog: nil cache")
	}
	o := serviceOptions{logger: xlog.Default(), views: DefaultViewConfig(), loadTimeout: DefaultLoadTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	s := &Service{
		store:  store,
		cache:  cache,
		logger: o.logger.With(xlog.Component("catalog")),
		viewTO: o.views.Timeout,
		loadTO: o.loadTimeout,
	}
	views, err := xpool.NewWorkerPool(o.views.Workers, o.views.QueueSize, s.incrementViews,
		xpool.WithName("views"),
		xpool.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	views.Start()
	s.views = views
	return s, nil
}

// Close 停止浏览计数 worker（排空队列），不关闭 Store。
func (s *Service) Close(ctx context.Context) error {
	return s.views.Stop(ctx)
}

// readThrough 先查缓存，未命中时经 singleflight 回源。
//
// 回源运行在脱离调用方取消的 context 上（保留 context 中的值，另设 loadTO 超时），
// 每个调用方只用自己的 ctx 等待结果：先到的调用方取消后，
// 其余等待者仍能拿到同一次回源的结果，结果也照常写入缓存。
func readThrough[V any](ctx context.Context, s *Service, key string, load func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := xttl.Get[V](s.cache, key); ok {
		return v, nil
	}
	ch := s.group.DoChan(key, func() (any, error) {
		// cancel 必须留在回源函数内部，调用方提前返回不能取消共享的回源
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTO)
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		if !s.cache.Set(key, v) {
			s.logger.Warn(lctx, "value not cacheable", xlog.Key(key))
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(V), nil //nolint:forcetypeassert // 同一 key 只由同一 load 产出
	}
}

// clampLimit 非正值取默认值，超过 MaxLimit 截断
func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, MaxLimit)
}

// PopularTools 按浏览量降序返回已发布工具
func (s *Service) PopularTools(ctx context.Context, limit int) ([]Tool, error) {
	limit = clampLimit(limit, DefaultPopularLimit)
	return readThrough(ctx, s, PopularKey(limit), func(ctx context.Context) ([]Tool, error) {
		return nonNil(s.store.ListTools(ctx, ToolQuery{Limit: limit}))
	})
}

// Categories 返回启用的分类（最多 CategoriesLimit 个）
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return readThrough(ctx, s, keyCategories, func(ctx context.Context) ([]Category, error) {
		return nonNil(s.store.ListCategories(ctx, CategoriesLimit))
	})
}

// Category 在启用分类中按 slug 查找
func (s *Service) Category(ctx context.Context, slug string) (Category, error) {
	if !ValidSlug(slug) {
		return Category{}, ErrInvalidSlug
	}
	cats, err := s.Categories(ctx)
	if err != nil {
		return Category{}, err
	}
	for _, c := range cats {
		if c.Slug == slug {
			return c, nil
		}
	}
	return Category{}, ErrNotFound
}

// ToolBySlug 按 slug 查找已发布工具，不存在返回 ErrNotFound（不缓存）
func (s *Service) ToolBySlug(ctx context.Context, slug string) (Tool, error) {
	if !ValidSlug(slug) {
		return Tool{}, ErrInvalidSlug
	}
	return readThrough(ctx, s, ToolKey(slug), func(ctx context.Context) (Tool, error) {
		return s.store.ToolBySlug(ctx, slug)
	})
}

// ToolsByCategory 返回分类下的工具
func (s *Service) ToolsByCategory(ctx context.Context, slug string, limit int) ([]Tool, error) {
	if !ValidSlug(slug) {
		return nil, ErrInvalidSlug
	}
	limit = clampLimit(limit, DefaultCategoryLimit)
	return readThrough(ctx, s, CategoryToolsKey(slug, limit), func(ctx context.Context) ([]Tool, error) {
		return nonNil(s.store.ListTools(ctx, ToolQuery{Category: slug, Limit: limit}))
	})
}

// ToolSlugs 返回全部已发布工具的 slug
func (s *Service) ToolSlugs(ctx context.Context) ([]string, error) {
	return readThrough(ctx, s, keySlugs, func(ctx context.Context) ([]string, error) {
		return nonNil(s.store.ToolSlugs(ctx))
	})
}

// Search 在名称、描述、标签中不区分大小写地搜索。
// 去除首尾空白后不足 2 个字符时返回空列表，不访问 Store；
// 交给 Store 的查询词已小写化，与缓存键一致。
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Tool, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if utf8.RuneCountInString(query) < minSearchRunes {
		return []Tool{}, nil
	}
	limit = clampLimit(limit, DefaultPopularLimit)
	return readThrough(ctx, s, SearchKey(query, limit), func(ctx context.Context) ([]Tool, error) {
		return nonNil(s.store.ListTools(ctx, ToolQuery{Search: query, Limit: limit}))
	})
}

// RecordView 异步累加浏览量，不阻塞调用方；队列满或 id 为空时丢弃。
func (s *Service) RecordView(toolID string) {
	toolID = strings.TrimSpace(toolID)
	if toolID == "" {
		return
	}
	if err := s.views.Submit(toolID); err != nil {
		s.logger.Debug(context.Background(), "view dropped",
			slog.String("tool_id", toolID), xlog.Err(err))
	}
}

func (s *Service) incrementViews(ctx context.Context, toolID string) {
	ctx, cancel := context.WithTimeout(ctx, s.viewTO)
	defer cancel()
	if err := s.store.IncrementViews(ctx, toolID); err != nil {
		s.logger.Warn(ctx, "increment views failed", slog.String("tool_id", toolID), xlog.Err(err))
	}
}

// Submit 校验并保存用户提交，返回记录 ID
func (s *Service) Submit(ctx context.Context, sub Submission) (string, error) {
	sub = sub.Normalize()
	if err := sub.Validate(); err != nil {
		return "", err
	}
	id, err := s.store.SubmitTool(ctx, sub)
	if err != nil {
		return "", err
	}
	s.logger.Info(ctx, "tool submitted", slog.String("id", id), slog.String("name", sub.Name))
	return id, nil
}

// PreloadCritical 预热首页依赖的数据：热门工具与分类列表。
func (s *Service) PreloadCritical(ctx context.Context) xttl.PreloadReport {
	popular := PopularKey(DefaultPopularLimit)
	return s.cache.Preload(ctx, []string{popular, keyCategories}, func(ctx context.Context, key string) (any, error) {
		switch key {
		case popular:
			return nonNil(s.store.ListTools(ctx, ToolQuery{Limit: DefaultPopularLimit}))
		case keyCategories:
			return nonNil(s.store.ListCategories(ctx, CategoriesLimit))
		default:
			return nil, ErrNotFound
		}
	})
}

// Invalidate 清空缓存
func (s *Service) Invalidate() {
	s.cache.Clear()
}

// Stats 返回缓存统计
func (s *Service) Stats() xttl.Stats {
	return s.cache.Stats()
}

// ViewStats 返回浏览计数上报统计
func (s *Service) ViewStats() xpool.Stats {
	return s.views.Stats()
}

// nonNil 把 nil 切片转为空切片，使缓存与 JSON 输出一致为 []。
func nonNil[T any](items []T, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
