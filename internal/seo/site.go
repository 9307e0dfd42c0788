// Package seo 生成站点的搜索引擎相关产物：页面元数据、JSON-LD 结构化数据、
// sitemap.xml 与 robots.txt。
//
// 所有构建函数都是纯函数（Sitemap 生成器除外，它会读取目录数据），
// 站点信息通过 Site 注入，不依赖全局状态。
package seo

import (
	"strings"
)

// Site 站点级配置
type Site struct {
	// BaseURL 站点根地址，不带结尾斜杠
	BaseURL string `koanf:"base_url"`
	// Name 站点名称，用于标题后缀与 og:site_name
	Name        string `koanf:"name"`
	Description string `koanf:"description"`
	// TwitterHandle 形如 @toolhub
	TwitterHandle string `koanf:"twitter_handle"`
	Locale        string `koanf:"locale"`
	// DefaultImage 默认 OG 图片路径（相对 BaseURL）或绝对地址
	DefaultImage string `koanf:"default_image"`
	ThemeColor   string `koanf:"theme_color"`
	Logo         string `koanf:"logo"`
	ContactEmail string `koanf:"contact_email"`
	// SameAs 组织的社交主页
	SameAs []string `koanf:"same_as"`
}

// DefaultSite 返回默认站点配置
func DefaultSite() Site {
	return Site{
		BaseURL:       "http://localhost:8080",
		Name:          "ToolHub",
		Description:   "Comprehensive directory of AI tools and services",
		TwitterHandle: "@toolhub",
		Locale:        "en_US",
		DefaultImage:  "/og-image.jpg",
		ThemeColor:    "#121212",
		Logo:          "/logo.png",
	}
}

// Normalize 去掉 BaseURL 结尾斜杠，并为空字段填充默认值。
func (s Site) Normalize() Site {
	def := DefaultSite()
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if s.BaseURL == "" {
		s.BaseURL = def.BaseURL
	}
	if s.Name == "" {
		s.Name = def.Name
	}
	if s.Description == "" {
		s.Description = def.Description
	}
	if s.Locale == "" {
		s.Locale = def.Locale
	}
	if s.DefaultImage == "" {
		s.DefaultImage = def.DefaultImage
	}
	if s.ThemeColor == "" {
		s.ThemeColor = def.ThemeColor
	}
	if s.Logo == "" {
		s.Logo = def.Logo
	}
	return s
}

// URL 拼接站内路径为绝对地址。path 已是绝对地址时原样返回。
func (s Site) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path == "" || path == "/" {
		return s.BaseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.BaseURL + path
}

// ToolPath 工具详情页路径
func ToolPath(slug string) string { return "/ai/" + slug }

// CategoryPath 分类页路径
func CategoryPath(slug string) string { return "/category/" + slug }
