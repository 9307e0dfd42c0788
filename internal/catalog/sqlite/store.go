// Package sqlite 基于 SQLite（ncruces/go-sqlite3，纯 Go、无 CGO）实现 catalog.Store，
// 用于本地开发、离线演示与测试。表结构与远端 PostgREST 数据源保持一致。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver" // database/sql 驱动
	_ "github.com/ncruces/go-sqlite3/embed"  // 内嵌 SQLite WASM

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/pkg/observability/xlog"
)

const (
	statusPublished = "published"
	statusPending   = "pending"

	toolColumns = `id, name, slug, description, url, category, pricing, is_nsfw, views, rating,
		review_count, screenshot_url, seo_title, seo_description, features, tags, created_at, updated_at`
)

// Store SQLite 数据源
type Store struct {
	db     *sql.DB
	logger xlog.Logger
	now    func() time.Time
	closed atomic.Bool
}

// Option Store 配置选项
type Option func(*Store)

// WithLogger 设置日志记录器
func WithLogger(l xlog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// withNow 注入时间源（测试用）
func withNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open 打开（必要时创建）数据库文件并执行迁移。
func Open(ctx context.Context, dbPath string, opts ...Option) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("sqlite: create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite 单写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, logger: xlog.Default(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "sqlite store opened", slog.String("path", dbPath))
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	n, err := migrate(ctx, s.db)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info(ctx, "sqlite migrations applied", xlog.Count(int64(n)))
	}
	return nil
}

func (s *Store) check() error {
	if s.closed.Load() {
		return catalog.ErrStoreClosed
	}
	return nil
}

// ListTools 返回已发布工具，按浏览量降序
func (s *Store) ListTools(ctx context.Context, q catalog.ToolQuery) ([]catalog.Tool, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var (
		where = []string{"status = ?"}
		args  = []any{statusPublished}
	)
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if q.NSFW != nil {
		where = append(where, "is_nsfw = ?")
		args = append(args, boolInt(*q.NSFW))
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		where = append(where, `(lower(name) LIKE ? ESCAPE '\' OR lower(description) LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM json_each(ai_tools.tags) WHERE lower(json_each.value) = ?))`)
		args = append(args, like, like, strings.ToLower(term))
	}
	query := "SELECT " + toolColumns + " FROM ai_tools WHERE " + strings.Join(where, " AND ") +
		" ORDER BY views DESC, created_at ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tools: %w", err)
	}
	defer rows.Close()

	var tools []catalog.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list tools: %w", err)
	}
	return tools, nil
}

// ToolBySlug 按 slug 查找已发布工具
func (s *Store) ToolBySlug(ctx context.Context, slug string) (catalog.Tool, error) {
	if err := s.check(); err != nil {
		return catalog.Tool{}, err
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+toolColumns+" FROM ai_tools WHERE slug = ? AND status = ?", slug, statusPublished)
	t, err := scanTool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Tool{}, catalog.ErrNotFound
	}
	return t, err
}

// ListCategories 返回启用分类，按 sort_order 升序
func (s *Store) ListCategories(ctx context.Context, limit int) ([]catalog.Category, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	query := `SELECT id, name, slug, color, description, icon FROM categories
		WHERE is_active = 1 ORDER BY sort_order, name`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list categories: %w", err)
	}
	defer rows.Close()

	var cats []catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Color, &c.Description, &c.Icon); err != nil {
			return nil, fmt.Errorf("sqlite: scan category: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list categories: %w", err)
	}
	return cats, nil
}

// ToolSlugs 返回全部已发布工具的 slug
func (s *Store) ToolSlugs(ctx context.Context) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT slug FROM ai_tools WHERE status = ? AND slug <> '' ORDER BY views DESC", statusPublished)
	if err != nil {
		return nil, fmt.Errorf("sqlite: tool slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("sqlite: scan slug: %w", err)
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// IncrementViews 浏览量加一，不修改 updated_at
func (s *Store) IncrementViews(ctx context.Context, toolID string) error {
	if err := s.check(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE ai_tools SET views = views + 1 WHERE id = ?", toolID)
	if err != nil {
		return fmt.Errorf("sqlite: increment views: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// SubmitTool 以 pending 状态保存提交。slug 由名称生成并附加 ID 前缀保证唯一。
func (s *Store) SubmitTool(ctx context.Context, sub catalog.Submission) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	slug := Slugify(sub.Name)
	if slug == "" {
		slug = "tool"
	}
	slug += "-" + id[:8]

	tags, err := json.Marshal(nonNilStrings(sub.Tags))
	if err != nil {
		return "", fmt.Errorf("sqlite: encode tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO ai_tools
		(id, name, slug, description, url, category, pricing, is_nsfw, tags, status, submitter_email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sub.Name, slug, sub.Description, sub.URL, sub.Category, sub.Pricing, boolInt(sub.IsNSFW),
		string(tags), statusPending, sub.Email, formatTime(s.now()))
	if err != nil {
		return "", fmt.Errorf("sqlite: submit tool: %w", err)
	}
	return id, nil
}

// Close 关闭数据库，重复调用返回 nil
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

var _ catalog.Store = (*Store)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanTool(sc scanner) (catalog.Tool, error) {
	var (
		t              catalog.Tool
		nsfw           int
		rating         sql.NullFloat64
		features, tags string
		created        string
		updated        sql.NullString
	)
	err := sc.Scan(&t.ID, &t.Name, &t.Slug, &t.Description, &t.URL, &t.Category, &t.Pricing, &nsfw,
		&t.Views, &rating, &t.ReviewCount, &t.ScreenshotURL, &t.SEOTitle, &t.SEODescription,
		&features, &tags, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("sqlite: scan tool: %w", err)
	}
	t.IsNSFW = nsfw != 0
	if rating.Valid {
		t.Rating = &rating.Float64
	}
	if err := decodeStrings(features, &t.Features); err != nil {
		return t, fmt.Errorf("sqlite: decode features of %s: %w", t.Slug, err)
	}
	if err := decodeStrings(tags, &t.Tags); err != nil {
		return t, fmt.Errorf("sqlite: decode tags of %s: %w", t.Slug, err)
	}
	t.CreatedAt = parseTime(created)
	if updated.Valid {
		t.UpdatedAt = parseTime(updated.String)
	}
	return t, nil
}

func decodeStrings(raw string, dst *[]string) error {
	if raw == "" || raw == "[]" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Slugify 把名称转为小写字母数字与连字符组成的 slug
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
