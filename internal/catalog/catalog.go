// Package catalog 是工具目录的领域层：数据模型、外部数据源接口 Store，
// 以及在 Store 之上做读穿缓存的 Service。
//
// 数据源只返回已发布（status = published）的工具和启用（is_active）的分类，
// 工具按浏览量降序、分类按 sort_order 升序。
//
// 具体后端见子包 sqlite（本地/测试）与 rest（PostgREST 远端）。
package catalog

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// 错误定义
var (
	// ErrNotFound 记录不存在（或未发布）
	ErrNotFound = errors.New("catalog: not found")

	// ErrInvalidSlug slug 为空或格式非法
	ErrInvalidSlug = errors.New("catalog: invalid slug")

	// ErrInvalidSubmission 提交内容未通过校验
	ErrInvalidSubmission = errors.New("catalog: invalid submission")

	// ErrStoreClosed 数据源已关闭
	ErrStoreClosed = errors.New("catalog: store closed")

	// ErrUnavailable 数据源暂不可用（熔断打开、超时等）
	ErrUnavailable = errors.New("catalog: store unavailable")
)

// Pricing 常见取值，数据源可能返回其他字符串。
const (
	PricingFree     = "free"
	PricingFreemium = "freemium"
	PricingPaid     = "paid"
)

// Tool 工具条目
type Tool struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Description    string    `json:"description"`
	URL            string    `json:"url"`
	Category       string    `json:"category"`
	Pricing        string    `json:"pricing"`
	IsNSFW         bool      `json:"is_nsfw"`
	Views          int64     `json:"views"`
	Rating         *float64  `json:"rating,omitempty"`
	ReviewCount    int       `json:"review_count,omitempty"`
	ScreenshotURL  string    `json:"screenshot_url,omitempty"`
	SEOTitle       string    `json:"seo_title,omitempty"`
	SEODescription string    `json:"seo_description,omitempty"`
	Features       []string  `json:"features,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Rated 是否有有效评分
func (t Tool) Rated() bool {
	return t.Rating != nil && *t.Rating > 0
}

// LastModified 返回 updated_at，缺失时回退 created_at，都缺失返回零值。
func (t Tool) LastModified() time.Time {
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// Category 分类
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// ToolQuery 工具列表查询条件，零值表示"全部已发布工具按浏览量降序"。
type ToolQuery struct {
	Category string
	// Search 在名称、描述中做不区分大小写的子串匹配，或与标签做不区分大小写的精确匹配
	Search string
	Limit  int
	// NSFW 为 nil 时不过滤
	NSFW *bool
}

// Submission 用户提交的待审核工具
type Submission struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Pricing     string   `json:"pricing,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsNSFW      bool     `json:"is_nsfw,omitempty"`
	Email       string   `json:"email,omitempty"`
}

const (
	maxNameLen        = 100
	maxDescriptionLen = 2000
	maxTags           = 20
)

// Normalize 去除首尾空白、小写化 pricing/category，丢弃空标签。
func (s Submission) Normalize() Submission {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	s.Description = strings.TrimSpace(s.Description)
	s.Category = strings.ToLower(strings.TrimSpace(s.Category))
	s.Pricing = strings.ToLower(strings.TrimSpace(s.Pricing))
	s.Email = strings.TrimSpace(s.Email)
	tags := make([]string, 0, len(s.Tags))
	for _, tag := range s.Tags {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			tags = append(tags, tag)
		}
	}
	s.Tags = tags
	return s
}

// Validate 校验已 Normalize 的提交，失败返回包装了 ErrInvalidSubmission 的错误。
func (s Submission) Validate() error {
	switch {
	case s.Name == "":
		return invalid("name is required")
	case utf8.RuneCountInString(s.Name) > maxNameLen:
		return invalid("name is too long")
	case s.Description == "":
		return invalid("description is required")
	case utf8.RuneCountInString(s.Description) > maxDescriptionLen:
		return invalid("description is too long")
	case !ValidSlug(s.Category):
		return invalid("category is invalid")
	case len(s.Tags) > maxTags:
		return invalid("too many tags")
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("url must be an absolute http(s) URL")
	}
	if s.Email != "" && !strings.Contains(s.Email, "@") {
		return invalid("email is invalid")
	}
	return nil
}

func invalid(reason string) error {
	return &SubmissionError{Reason: reason}
}

// SubmissionError 提交校验错误，errors.Is(err, ErrInvalidSubmission) 成立。
type SubmissionError struct {
	Reason string
}

func (e *SubmissionError) Error() string {
	return "catalog: invalid submission: " + e.Reason
}

func (e *SubmissionError) Unwrap() error { return ErrInvalidSubmission }

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// ValidSlug 判断 slug 是否为小写字母数字，以 - 或 _ 连接
func ValidSlug(slug string) bool {
	return len(slug) > 0 && len(slug) <= 128 && slugPattern.MatchString(slug)
}

// Store 外部数据源。
//
// 实现必须可并发调用。ToolBySlug 找不到时返回 ErrNotFound。
type Store interface {
	ListTools(ctx context.Context, q ToolQuery) ([]Tool, error)
	ToolBySlug(ctx context.Context, slug string) (Tool, error)
	ListCategories(ctx context.Context, limit int) ([]Category, error)
	ToolSlugs(ctx context.Context) ([]string, error)
	IncrementViews(ctx context.Context, toolID string) error
	// SubmitTool 以 pending 状态保存提交，返回新记录 ID
	SubmitTool(ctx context.Context, s Submission) (string, error)
	Close() error
}
