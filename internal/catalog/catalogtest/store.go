// Package catalogtest 提供内存版 catalog.Store，供各层测试使用。
package catalogtest

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/omeyang/toolhub/internal/catalog"
)

// Store 内存数据源，记录每个方法的调用次数，可注入错误。
type Store struct {
	mu         sync.Mutex
	tools      []catalog.Tool
	categories []catalog.Category
	views      map[string]int64
	submitted  []catalog.Submission
	err        error
	closed     bool

	calls sync.Map // method -> *atomic.Int64
}

// New 创建内存数据源，tools/categories 视为已发布/已启用
func New(tools []catalog.Tool, categories []catalog.Category) *Store {
	return &Store{
		tools:      slices.Clone(tools),
		categories: slices.Clone(categories),
		views:      make(map[string]int64),
	}
}

// SetError 之后所有调用返回 err，nil 恢复正常
func (s *Store) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Calls 返回 method 被调用次数
func (s *Store) Calls(method string) int64 {
	v, ok := s.calls.Load(method)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load() //nolint:forcetypeassert // 只存 *atomic.Int64
}

// Views 返回 toolID 累计的浏览增量
func (s *Store) Views(toolID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views[toolID]
}

// Submitted 返回已保存的提交
func (s *Store) Submitted() []catalog.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.submitted)
}

func (s *Store) enter(ctx context.Context, method string) error {
	v, _ := s.calls.LoadOrStore(method, new(atomic.Int64))
	v.(*atomic.Int64).Add(1) //nolint:forcetypeassert // 只存 *atomic.Int64
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return catalog.ErrStoreClosed
	}
	return s.err
}

func (s *Store) ListTools(ctx context.Context, q catalog.ToolQuery) ([]catalog.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "ListTools"); err != nil {
		return nil, err
	}
	needle := strings.ToLower(q.Search)
	var out []catalog.Tool
	for _, t := range s.tools {
		if q.Category != "" && t.Category != q.Category {
			continue
		}
		if q.NSFW != nil && t.IsNSFW != *q.NSFW {
			continue
		}
		if needle != "" && !matches(t, needle) {
			continue
		}
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b catalog.Tool) int { return cmp.Compare(b.Views, a.Views) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(t catalog.Tool, needle string) bool {
	if strings.Contains(strings.ToLower(t.Name), needle) || strings.Contains(strings.ToLower(t.Description), needle) {
		return true
	}
	return slices.ContainsFunc(t.Tags, func(tag string) bool { return strings.ToLower(tag) == needle })
}

func (s *Store) ToolBySlug(ctx context.Context, slug string) (catalog.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "ToolBySlug"); err != nil {
		return catalog.Tool{}, err
	}
	for _, t := range s.tools {
		if t.Slug == slug {
			return t, nil
		}
	}
	return catalog.Tool{}, catalog.ErrNotFound
}

func (s *Store) ListCategories(ctx context.Context, limit int) ([]catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "ListCategories"); err != nil {
		return nil, err
	}
	out := slices.Clone(s.categories)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ToolSlugs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "ToolSlugs"); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.Slug)
	}
	return out, nil
}

func (s *Store) IncrementViews(ctx context.Context, toolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "IncrementViews"); err != nil {
		return err
	}
	s.views[toolID]++
	return nil
}

func (s *Store) SubmitTool(ctx context.Context, sub catalog.Submission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "SubmitTool"); err != nil {
		return "", err
	}
	s.submitted = append(s.submitted, sub)
	return "sub-" + strconv.Itoa(len(s.submitted)), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed 报告 Close 是否已被调用
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ catalog.Store = (*Store)(nil)

// Float 返回 v 的指针，便于构造 Tool.Rating
func Float(v float64) *float64 { return &v }

// Fixture 返回一组覆盖常见字段的示例数据
func Fixture() ([]catalog.Tool, []catalog.Category) {
	tools := []catalog.Tool{
		{ID: "t1", Name: "WriteBot", Slug: "writebot", Description: "AI writing assistant for blogs",
			URL: "https://writebot.example", Category: "writing", Pricing: catalog.PricingFree,
			Views: 5000, Rating: Float(4.5), ReviewCount: 12, Tags: []string{"writing", "blog"}},
		{ID: "t2", Name: "PixelForge", Slug: "pixelforge", Description: "Generate images from text",
			URL: "https://pixelforge.example", Category: "image", Pricing: catalog.PricingPaid,
			Views: 9000, ScreenshotURL: "https://cdn.example/pixelforge.png", Tags: []string{"image"}},
		{ID: "t3", Name: "CodePal", Slug: "codepal", Description: "Pair programming helper",
			URL: "https://codepal.example", Category: "coding", Pricing: catalog.PricingFreemium,
			Views: 100, Tags: []string{"code"}},
		{ID: "t4", Name: "NightShade", Slug: "nightshade", Description: "Adult image generator",
			URL: "https://nightshade.example", Category: "image", Pricing: catalog.PricingPaid,
			IsNSFW: true, Views: 700},
	}
	categories := []catalog.Category{
		{ID: "c1", Name: "Writing", Slug: "writing", Color: "#3366ff"},
		{ID: "c2", Name: "Image", Slug: "image", Color: "#ff6633"},
		{ID: "c3", Name: "Coding", Slug: "coding", Color: "#33cc66"},
	}
	return tools, categories
}
