// Package rest 通过 PostgREST HTTP 接口实现 catalog.Store（例如托管的 Supabase 项目）。
//
// 表与 RPC：
//
//	GET  /rest/v1/ai_tools            工具（status=eq.published）
//	GET  /rest/v1/categories          分类（is_active=eq.true）
//	POST /rest/v1/ai_tools            提交（status=pending）
//	POST /rest/v1/rpc/increment_views 浏览量加一
//
// 每个请求携带 apikey 与 Bearer 认证头。单条查询使用
// application/vnd.pgrst.object+json，0 行时服务端返回 406（PGRST116），映射为 ErrNotFound。
package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/omeyang/toolhub/internal/catalog"
)

const (
	toolsPath      = "/rest/v1/ai_tools"
	categoriesPath = "/rest/v1/categories"
	viewsRPCPath   = "/rest/v1/rpc/increment_views"

	listToolColumns = "id,name,slug,description,url,category,pricing,is_nsfw,views,rating,review_count," +
		"screenshot_url,seo_title,seo_description,features,tags,created_at,updated_at"
	categoryColumns = "id,name,slug,color,description,icon"

	singleObject   = "application/vnd.pgrst.object+json"
	codeNoRows     = "PGRST116"
	defaultTimeout = 5 * time.Second
	maxErrorBody   = 4 << 10
)

// Config PostgREST 连接参数
type Config struct {
	// BaseURL 项目地址，如 https://xyz.supabase.co
	BaseURL string `koanf:"url"`
	// APIKey 匿名或服务端 key
	APIKey string `koanf:"api_key"`
	// Timeout 单次 HTTP 请求超时，默认 5s
	Timeout time.Duration `koanf:"timeout"`
	// ClientInfo X-Client-Info 头
	ClientInfo string `koanf:"client_info"`
}

// Store PostgREST 数据源
type Store struct {
	base       *url.URL
	apiKey     string
	clientInfo string
	client     *http.Client
	closed     atomic.Bool
}

// Option Store 配置选项
type Option func(*Store)

// WithHTTPClient 替换 HTTP 客户端（测试或自定义 Transport）
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		if c != nil {
			s.client = c
		}
	}
}

// New 创建 PostgREST 数据源
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("rest: empty base url")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("rest: invalid base url %q", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("rest: empty api key")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	clientInfo := cfg.ClientInfo
	if clientInfo == "" {
		clientInfo = "toolhub"
	}
	s := &Store{
		base:       base,
		apiKey:     cfg.APIKey,
		clientInfo: clientInfo,
		client:     &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// APIError PostgREST 返回的错误
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("rest: %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("rest: %d: %s", e.Status, msg)
}

// Retryable 4xx（除 408/429）为请求本身的问题，重试无意义
func (e *APIError) Retryable() bool {
	if e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests {
		return true
	}
	return e.Status >= 500
}

func (s *Store) endpoint(path string, query url.Values) string {
	u := *s.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = encodeQuery(query)
	return u.String()
}

// encodeQuery 与 url.Values.Encode 相同，但保留 PostgREST 语法中的 , ( ) * { } 字符，便于排查日志。
func encodeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	enc := q.Encode()
	return strings.NewReplacer("%2C", ",", "%28", "(", "%29", ")", "%2A", "*", "%7B", "{", "%7D", "}").Replace(enc)
}

func (s *Store) do(ctx context.Context, method, endpoint string, body any, headers map[string]string, out any) error {
	if s.closed.Load() {
		return catalog.ErrStoreClosed
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("rest: encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("rest: build request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("X-Client-Info", s.clientInfo)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rest: decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// ListTools 已发布工具按浏览量降序
func (s *Store) ListTools(ctx context.Context, q catalog.ToolQuery) ([]catalog.Tool, error) {
	query := url.Values{
		"select": {listToolColumns},
		"status": {"eq.published"},
		"order":  {"views.desc"},
	}
	if q.Category != "" {
		query.Set("category", "eq."+q.Category)
	}
	if q.NSFW != nil {
		query.Set("is_nsfw", "eq."+strconv.FormatBool(*q.NSFW))
	}
	// ilike 本身不区分大小写；tags.cs 是数组包含，依赖标签以小写入库，所以查询词统一小写
	if term := strings.ToLower(sanitizeTerm(q.Search)); term != "" {
		query.Set("or", fmt.Sprintf("(name.ilike.*%s*,description.ilike.*%s*,tags.cs.{%s})", term, term, term))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	var tools []catalog.Tool
	if err := s.do(ctx, http.MethodGet, s.endpoint(toolsPath, query), nil, nil, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// sanitizeTerm 移除会破坏 PostgREST 过滤语法的字符
func sanitizeTerm(term string) string {
	term = strings.TrimSpace(term)
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '{', '}', '*', '"', '\\', '%':
			return -1
		}
		return r
	}, term)
}

// ToolBySlug 单条查询，0 行映射为 ErrNotFound
func (s *Store) ToolBySlug(ctx context.Context, slug string) (catalog.Tool, error) {
	query := url.Values{
		"select": {"*"},
		"slug":   {"eq." + slug},
		"status": {"eq.published"},
	}
	var tool catalog.Tool
	err := s.do(ctx, http.MethodGet, s.endpoint(toolsPath, query), nil,
		map[string]string{"Accept": singleObject}, &tool)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Code == codeNoRows || apiErr.Status == http.StatusNotAcceptable) {
			return catalog.Tool{}, catalog.ErrNotFound
		}
		return catalog.Tool{}, err
	}
	return tool, nil
}

// ListCategories 启用分类按 sort_order 升序
func (s *Store) ListCategories(ctx context.Context, limit int) ([]catalog.Category, error) {
	query := url.Values{
		"select":    {categoryColumns},
		"is_active": {"eq.true"},
		"order":     {"sort_order"},
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var cats []catalog.Category
	if err := s.do(ctx, http.MethodGet, s.endpoint(categoriesPath, query), nil, nil, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// ToolSlugs 全部已发布工具的 slug
func (s *Store) ToolSlugs(ctx context.Context) ([]string, error) {
	query := url.Values{"select": {"slug"}, "status": {"eq.published"}}
	var rows []struct {
		Slug string `json:"slug"`
	}
	if err := s.do(ctx, http.MethodGet, s.endpoint(toolsPath, query), nil, nil, &rows); err != nil {
		return nil, err
	}
	slugs := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Slug != "" {
			slugs = append(slugs, r.Slug)
		}
	}
	return slugs, nil
}

// IncrementViews 调用 increment_views RPC
func (s *Store) IncrementViews(ctx context.Context, toolID string) error {
	return s.do(ctx, http.MethodPost, s.endpoint(viewsRPCPath, nil),
		map[string]string{"tool_id": toolID}, nil, nil)
}

type submissionRow struct {
	Name           string   `json:"name"`
	URL            string   `json:"url"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Pricing        string   `json:"pricing,omitempty"`
	Tags           []string `json:"tags"`
	IsNSFW         bool     `json:"is_nsfw"`
	SubmitterEmail string   `json:"submitter_email,omitempty"`
	Status         string   `json:"status"`
}

// SubmitTool 以 pending 状态插入，返回服务端生成的 ID
func (s *Store) SubmitTool(ctx context.Context, sub catalog.Submission) (string, error) {
	tags := sub.Tags
	if tags == nil {
		tags = []string{}
	}
	row := submissionRow{
		Name:           sub.Name,
		URL:            sub.URL,
		Description:    sub.Description,
		Category:       sub.Category,
		Pricing:        sub.Pricing,
		Tags:           tags,
		IsNSFW:         sub.IsNSFW,
		SubmitterEmail: sub.Email,
		Status:         "pending",
	}
	var created struct {
		ID string `json:"id"`
	}
	err := s.do(ctx, http.MethodPost, s.endpoint(toolsPath, url.Values{"select": {"id"}}), row,
		map[string]string{"Prefer": "return=representation", "Accept": singleObject}, &created)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// Close 标记关闭并释放空闲连接
func (s *Store) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.client.CloseIdleConnections()
	}
	return nil
}

var _ catalog.Store = (*Store)(nil)
