package seo

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/pkg/observability/xlog"
)

// ChangeFreq sitemap changefreq 取值
type ChangeFreq string

const (
	Daily   ChangeFreq = "daily"
	Weekly  ChangeFreq = "weekly"
	Monthly ChangeFreq = "monthly"
)

const (
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	imageNS   = "http://www.google.com/schemas/sitemap-image/1.1"

	// SitemapToolLimit 生成 sitemap 时读取的工具数量上限
	SitemapToolLimit = 1000
)

// Entry sitemap 条目
type Entry struct {
	Loc        string
	LastMod    time.Time
	ChangeFreq ChangeFreq
	Priority   float64
	Images     []string
}

// Sitemap 已按优先级降序排列的条目
type Sitemap struct {
	Entries []Entry
	// Fallback 为 true 表示目录读取失败，只包含基础页面
	Fallback bool
}

// Source sitemap 需要的目录数据，catalog.Service 满足该接口
type Source interface {
	PopularTools(ctx context.Context, limit int) ([]catalog.Tool, error)
	Categories(ctx context.Context) ([]catalog.Category, error)
}

// staticPage 站内固定页面
type staticPage struct {
	path     string
	freq     ChangeFreq
	priority float64
}

var staticPages = []staticPage{
	{"/", Daily, 1.0},
	{"/categories", Weekly, 0.9},
	{"/about", Monthly, 0.7},
	{"/contact", Monthly, 0.6},
	{"/submit", Monthly, 0.5},
}

// SitemapGenerator 从目录数据生成 sitemap
type SitemapGenerator struct {
	site   Site
	source Source
	clock  clockwork.Clock
	logger xlog.Logger
}

// SitemapOption 生成器选项
type SitemapOption func(*SitemapGenerator)

// WithClock 注入时钟
func WithClock(c clockwork.Clock) SitemapOption {
	return func(g *SitemapGenerator) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithLogger 设置日志
func WithLogger(l xlog.Logger) SitemapOption {
	return func(g *SitemapGenerator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewSitemapGenerator 创建生成器
func NewSitemapGenerator(site Site, source Source, opts ...SitemapOption) *SitemapGenerator {
	g := &SitemapGenerator{
		site:   site.Normalize(),
		source: source,
		clock:  clockwork.NewRealClock(),
		logger: xlog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Generate 生成 sitemap。目录读取失败时记录日志并返回只含首页与分类页的基础版本，
// 不向调用方返回错误。
func (g *SitemapGenerator) Generate(ctx context.Context) Sitemap {
	now := g.clock.Now().UTC()

	tools, err := g.source.PopularTools(ctx, SitemapToolLimit)
	if err != nil {
		return g.fallback(ctx, now, err)
	}
	cats, err := g.source.Categories(ctx)
	if err != nil {
		return g.fallback(ctx, now, err)
	}

	entries := make([]Entry, 0, len(staticPages)+len(tools)+len(cats))
	for _, p := range staticPages {
		entries = append(entries, Entry{Loc: g.site.URL(p.path), LastMod: now, ChangeFreq: p.freq, Priority: p.priority})
	}
	for _, t := range tools {
		e := Entry{
			Loc:        g.site.URL(ToolPath(t.Slug)),
			LastMod:    t.LastModified(),
			ChangeFreq: Weekly,
			Priority:   ToolPriority(t),
		}
		if e.LastMod.IsZero() {
			e.LastMod = now
		}
		if t.ScreenshotURL != "" {
			e.Images = []string{g.site.URL(t.ScreenshotURL)}
		}
		entries = append(entries, e)
	}
	for _, c := range cats {
		entries = append(entries, Entry{Loc: g.site.URL(CategoryPath(c.Slug)), LastMod: now, ChangeFreq: Weekly, Priority: 0.8})
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		switch {
		case a.Priority > b.Priority:
			return -1
		case a.Priority < b.Priority:
			return 1
		}
		return 0
	})
	return Sitemap{Entries: entries}
}

func (g *SitemapGenerator) fallback(ctx context.Context, now time.Time, err error) Sitemap {
	g.logger.Warn(ctx, "sitemap: catalog unavailable, serving fallback",
		xlog.Component("seo"), xlog.Err(err))
	return Sitemap{
		Entries: []Entry{
			{Loc: g.site.URL("/"), LastMod: now, ChangeFreq: Daily, Priority: 1.0},
			{Loc: g.site.URL("/categories"), LastMod: now, ChangeFreq: Weekly, Priority: 0.9},
		},
		Fallback: true,
	}
}

// ToolPriority 工具页优先级：基础 0.8，浏览量最多加 0.3（每万次 1.0），
// 评分最多加 0.2（rating/5*0.2），总和不超过 1.0，保留两位小数。
func ToolPriority(t catalog.Tool) float64 {
	p := 0.8 + math.Min(float64(t.Views)/10000, 0.3)
	if t.Rated() {
		p += *t.Rating / 5 * 0.2
	}
	p = math.Min(p, 1.0)
	return math.Round(p*100) / 100
}

type xmlURLSet struct {
	XMLName    xml.Name `xml:"urlset"`
	Xmlns      string   `xml:"xmlns,attr"`
	XmlnsImage string   `xml:"xmlns:image,attr"`
	URLs       []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc        string     `xml:"loc"`
	LastMod    string     `xml:"lastmod,omitempty"`
	ChangeFreq string     `xml:"changefreq,omitempty"`
	Priority   string     `xml:"priority"`
	Images     []xmlImage `xml:"image:image,omitempty"`
}

type xmlImage struct {
	Loc string `xml:"image:loc"`
}

// XML 编码为带 XML 声明的 sitemap 文档
func (s Sitemap) XML() ([]byte, error) {
	set := xmlURLSet{Xmlns: sitemapNS, XmlnsImage: imageNS, URLs: make([]xmlURL, 0, len(s.Entries))}
	for _, e := range s.Entries {
		u := xmlURL{
			Loc:        e.Loc,
			ChangeFreq: string(e.ChangeFreq),
			Priority:   strconv.FormatFloat(e.Priority, 'f', 2, 64),
		}
		if !e.LastMod.IsZero() {
			u.LastMod = e.LastMod.UTC().Format(time.RFC3339)
		}
		for _, img := range e.Images {
			u.Images = append(u.Images, xmlImage{Loc: img})
		}
		set.URLs = append(set.URLs, u)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return nil, fmt.Errorf("seo: encode sitemap: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
