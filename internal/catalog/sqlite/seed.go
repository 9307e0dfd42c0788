package sqlite

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/omeyang/toolhub/internal/catalog"
)

// SeedData 初始数据：工具按已发布写入，分类按出现顺序排序并启用。
type SeedData struct {
	Tools      []catalog.Tool     `json:"tools"`
	Categories []catalog.Category `json:"categories"`
}

// LoadSeedFile 读取 JSON 格式的初始数据文件
func LoadSeedFile(path string) (SeedData, error) {
	var data SeedData
	raw, err := os.ReadFile(path) //nolint:gosec // 路径来自配置
	if err != nil {
		return data, fmt.Errorf("sqlite: read seed: %w", err)
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("sqlite: parse seed %s: %w", path, err)
	}
	return data, nil
}

// Seed 在一个事务内按 slug 幂等写入初始数据，已存在的 slug 会被覆盖。
func (s *Store) Seed(ctx context.Context, data SeedData) error {
	if err := s.check(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: seed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Commit 之后为空操作

	for i, c := range data.Categories {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO categories (id, name, slug, color, description, icon, sort_order, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(slug) DO UPDATE SET name = excluded.name, color = excluded.color,
				description = excluded.description, icon = excluded.icon, sort_order = excluded.sort_order, is_active = 1`,
			c.ID, c.Name, c.Slug, c.Color, c.Description, c.Icon, i); err != nil {
			return fmt.Errorf("sqlite: seed category %s: %w", c.Slug, err)
		}
	}

	now := s.now()
	for _, t := range data.Tools {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		features, err := json.Marshal(nonNilStrings(t.Features))
		if err != nil {
			return fmt.Errorf("sqlite: seed tool %s: %w", t.Slug, err)
		}
		tags, err := json.Marshal(nonNilStrings(t.Tags))
		if err != nil {
			return fmt.Errorf("sqlite: seed tool %s: %w", t.Slug, err)
		}
		var updated any
		if !t.UpdatedAt.IsZero() {
			updated = formatTime(t.UpdatedAt)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO ai_tools (id, name, slug, description, url, category, pricing,
				is_nsfw, views, rating, review_count, screenshot_url, seo_title, seo_description, features, tags,
				status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(slug) DO UPDATE SET name = excluded.name, description = excluded.description,
				url = excluded.url, category = excluded.category, pricing = excluded.pricing,
				is_nsfw = excluded.is_nsfw, views = excluded.views, rating = excluded.rating,
				review_count = excluded.review_count, screenshot_url = excluded.screenshot_url,
				seo_title = excluded.seo_title, seo_description = excluded.seo_description,
				features = excluded.features, tags = excluded.tags, status = excluded.status,
				updated_at = excluded.updated_at`,
			t.ID, t.Name, t.Slug, t.Description, t.URL, t.Category, t.Pricing, boolInt(t.IsNSFW), t.Views,
			nullableFloat(t.Rating), t.ReviewCount, t.ScreenshotURL, t.SEOTitle, t.SEODescription,
			string(features), string(tags), statusPublished, formatTime(t.CreatedAt), updated); err != nil {
			return fmt.Errorf("sqlite: seed tool %s: %w", t.Slug, err)
		}
	}
	return tx.Commit()
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
