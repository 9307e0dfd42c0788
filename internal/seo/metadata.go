package seo

import (
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/omeyang/toolhub/internal/catalog"
)

const (
	ogImageWidth  = 1200
	ogImageHeight = 630

	robotsIndex   = "index, follow, max-image-preview:large, max-snippet:-1, max-video-preview:-1"
	robotsNoIndex = "noindex, follow"

	toolDescriptionExcerpt = 120
)

// Image OG 图片
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Alt    string `json:"alt,omitempty"`
	Type   string `json:"type,omitempty"`
}

// OpenGraph og:* 属性
type OpenGraph struct {
	Type          string     `json:"type"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	URL           string     `json:"url"`
	SiteName      string     `json:"site_name"`
	Locale        string     `json:"locale"`
	Images        []Image    `json:"images"`
	PublishedTime *time.Time `json:"published_time,omitempty"`
	ModifiedTime  *time.Time `json:"modified_time,omitempty"`
	Section       string     `json:"section,omitempty"`
}

// TwitterCard twitter:* 属性
type TwitterCard struct {
	Card        string   `json:"card"`
	Site        string   `json:"site,omitempty"`
	Creator     string   `json:"creator,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

// Meta 额外的 <meta name content> 标签，按顺序输出
type Meta struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Metadata 页面元数据
type Metadata struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Keywords    []string    `json:"keywords,omitempty"`
	Canonical   string      `json:"canonical"`
	Robots      string      `json:"robots"`
	OpenGraph   OpenGraph   `json:"open_graph"`
	Twitter     TwitterCard `json:"twitter"`
	Other       []Meta      `json:"other,omitempty"`
}

// page 描述一个页面的基本要素，由 build 扩展成完整 Metadata
type page struct {
	title       string
	description string
	keywords    []string
	path        string
	image       string
	ogType      string
	published   time.Time
	modified    time.Time
	section     string
	noIndex     bool
}

func (s Site) build(p page) Metadata {
	s = s.Normalize()
	canonical := s.URL(p.path)

	var images []Image
	if p.image != "" {
		images = []Image{{URL: s.URL(p.image), Width: ogImageWidth, Height: ogImageHeight, Alt: p.title, Type: "image/jpeg"}}
	} else {
		images = []Image{{
			URL: s.URL(s.DefaultImage), Width: ogImageWidth, Height: ogImageHeight,
			Alt: s.Name + " - " + s.Description, Type: "image/jpeg",
		}}
	}
	twitterImages := make([]string, 0, len(images))
	for _, img := range images {
		twitterImages = append(twitterImages, img.URL)
	}

	ogType := p.ogType
	if ogType == "" {
		ogType = "website"
	}
	robots := robotsIndex
	if p.noIndex {
		robots = robotsNoIndex
	}

	return Metadata{
		Title:       p.title,
		Description: p.description,
		Keywords:    compact(p.keywords),
		Canonical:   canonical,
		Robots:      robots,
		OpenGraph: OpenGraph{
			Type:          ogType,
			Title:         p.title,
			Description:   p.description,
			URL:           canonical,
			SiteName:      s.Name,
			Locale:        s.Locale,
			Images:        images,
			PublishedTime: timePtr(p.published),
			ModifiedTime:  timePtr(p.modified),
			Section:       p.section,
		},
		Twitter: TwitterCard{
			Card:        "summary_large_image",
			Site:        s.TwitterHandle,
			Creator:     s.TwitterHandle,
			Title:       p.title,
			Description: p.description,
			Images:      twitterImages,
		},
		Other: []Meta{
			{Name: "application-name", Content: s.Name},
			{Name: "apple-mobile-web-app-capable", Content: "yes"},
			{Name: "apple-mobile-web-app-title", Content: s.Name},
			{Name: "msapplication-TileColor", Content: s.ThemeColor},
			{Name: "theme-color", Content: s.ThemeColor},
		},
	}
}

// HomeMetadata 首页元数据
func HomeMetadata(site Site) Metadata {
	site = site.Normalize()
	return site.build(page{
		title:       site.Name + " - " + site.Description,
		description: site.Description,
		keywords:    []string{"AI tools", "artificial intelligence", "directory", "reviews", site.Name},
		path:        "/",
	})
}

// ToolMetadata 工具详情页元数据。seo_title / seo_description 非空时优先使用。
func ToolMetadata(site Site, tool catalog.Tool) Metadata {
	site = site.Normalize()
	title := tool.SEOTitle
	if title == "" {
		title = tool.Name + " - AI Tool Review & Guide | " + site.Name
	}
	description := tool.SEODescription
	if description == "" {
		description = "Discover " + tool.Name + ": " + excerpt(tool.Description, toolDescriptionExcerpt) +
			"... Read our comprehensive review, features, pricing, and user guide."
	}
	section := humanize(tool.Category)

	keywords := make([]string, 0, len(tool.Tags)+7)
	keywords = append(keywords, tool.Name)
	keywords = append(keywords, tool.Tags...)
	keywords = append(keywords, section, "AI tool", "artificial intelligence", tool.Pricing, "review", "guide")

	return site.build(page{
		title:       title,
		description: description,
		keywords:    keywords,
		path:        ToolPath(tool.Slug),
		image:       tool.ScreenshotURL,
		ogType:      "article",
		published:   tool.CreatedAt,
		modified:    tool.UpdatedAt,
		section:     section,
	})
}

// CategoryMetadata 分类页元数据，toolCount 出现在描述中
func CategoryMetadata(site Site, cat catalog.Category, toolCount int) Metadata {
	site = site.Normalize()
	lower := strings.ToLower(cat.Name)
	detail := cat.Description
	if detail == "" {
		detail = "Compare features, pricing, and reviews of top " + lower + " AI solutions."
	}
	return site.build(page{
		title: cat.Name + " AI Tools - Best " + cat.Name + " Apps | " + site.Name,
		description: "Discover " + strconv.Itoa(toolCount) + " best " + lower + " AI tools and apps. " +
			detail,
		keywords: []string{
			cat.Name + " AI tools", cat.Name + " AI apps", "best " + lower, cat.Name,
			"AI tools", "artificial intelligence", "directory", "comparison", "reviews",
		},
		path:    CategoryPath(cat.Slug),
		section: cat.Name,
	})
}

// NotFoundMetadata 404 页元数据，不允许索引
func NotFoundMetadata(site Site, path string) Metadata {
	site = site.Normalize()
	return site.build(page{
		title:       "Page Not Found | " + site.Name,
		description: "The page you are looking for does not exist. Browse our directory of AI tools instead.",
		path:        path,
		noIndex:     true,
	})
}

// HeadHTML 渲染为 <head> 内的标签，所有文本均经过 HTML 转义。
func (m Metadata) HeadHTML() string {
	var b strings.Builder
	b.WriteString("<title>")
	b.WriteString(html.EscapeString(m.Title))
	b.WriteString("</title>\n")

	writeMeta(&b, "name", "description", m.Description)
	if len(m.Keywords) > 0 {
		writeMeta(&b, "name", "keywords", strings.Join(m.Keywords, ", "))
	}
	writeMeta(&b, "name", "robots", m.Robots)
	if m.Canonical != "" {
		b.WriteString(`<link rel="canonical" href="`)
		b.WriteString(html.EscapeString(m.Canonical))
		b.WriteString("\">\n")
	}

	og := m.OpenGraph
	writeMeta(&b, "property", "og:type", og.Type)
	writeMeta(&b, "property", "og:title", og.Title)
	writeMeta(&b, "property", "og:description", og.Description)
	writeMeta(&b, "property", "og:url", og.URL)
	writeMeta(&b, "property", "og:site_name", og.SiteName)
	writeMeta(&b, "property", "og:locale", og.Locale)
	for _, img := range og.Images {
		writeMeta(&b, "property", "og:image", img.URL)
		if img.Width > 0 {
			writeMeta(&b, "property", "og:image:width", strconv.Itoa(img.Width))
			writeMeta(&b, "property", "og:image:height", strconv.Itoa(img.Height))
		}
		writeMeta(&b, "property", "og:image:alt", img.Alt)
	}
	if og.PublishedTime != nil {
		writeMeta(&b, "property", "article:published_time", og.PublishedTime.UTC().Format(time.RFC3339))
	}
	if og.ModifiedTime != nil {
		writeMeta(&b, "property", "article:modified_time", og.ModifiedTime.UTC().Format(time.RFC3339))
	}
	writeMeta(&b, "property", "article:section", og.Section)

	tw := m.Twitter
	writeMeta(&b, "name", "twitter:card", tw.Card)
	writeMeta(&b, "name", "twitter:site", tw.Site)
	writeMeta(&b, "name", "twitter:creator", tw.Creator)
	writeMeta(&b, "name", "twitter:title", tw.Title)
	writeMeta(&b, "name", "twitter:description", tw.Description)
	for _, img := range tw.Images {
		writeMeta(&b, "name", "twitter:image", img)
	}
	for _, o := range m.Other {
		writeMeta(&b, "name", o.Name, o.Content)
	}
	return b.String()
}

// writeMeta 空 content 不输出
func writeMeta(b *strings.Builder, attr, key, content string) {
	if content == "" {
		return
	}
	b.WriteString("<meta ")
	b.WriteString(attr)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(key))
	b.WriteString(`" content="`)
	b.WriteString(html.EscapeString(content))
	b.WriteString("\">\n")
}

// excerpt 按字符截取前 n 个
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// humanize 将 slug 中的连字符替换为空格
func humanize(slug string) string {
	return strings.ReplaceAll(slug, "-", " ")
}

// compact 去除空字符串与重复项，保持顺序
func compact(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
