package seo

import (
	"strconv"
	"strings"
)

// RuleKind robots 规则类型
type RuleKind string

const (
	Allow    RuleKind = "Allow"
	Disallow RuleKind = "Disallow"
)

// Rule 一条 Allow/Disallow 规则
type Rule struct {
	Kind RuleKind
	Path string
}

// RobotsGroup 针对一个 User-agent 的规则组
type RobotsGroup struct {
	// Comment 输出在组前面的注释，可为空
	Comment    string
	UserAgent  string
	Rules      []Rule
	CrawlDelay int
}

// Robots robots.txt 内容
type Robots struct {
	Groups  []RobotsGroup
	Sitemap string
}

// blockedCrawlers AI 训练爬虫，全站禁止
var blockedCrawlers = []string{
	"GPTBot",
	"ChatGPT-User",
	"CCBot",
	"anthropic-ai",
	"Claude-Web",
	"PerplexityBot",
	"YouBot",
	"Meta-ExternalAgent",
}

// DefaultRobots 站点默认规则：开放内容页，屏蔽 API、提交页、带查询参数的地址与搜索页，
// 禁止 AI 训练爬虫，对 Googlebot/Bingbot 显式放行。
func DefaultRobots(site Site) Robots {
	site = site.Normalize()
	groups := []RobotsGroup{{
		UserAgent: "*",
		Rules: []Rule{
			{Allow, "/"},
			{Disallow, "/api/"},
			{Disallow, "/submit"},
			{Disallow, "/*?*"},
			{Disallow, "/search*"},
			{Allow, "/categories"},
			{Allow, "/about"},
			{Allow, "/contact"},
			{Allow, "/ai/"},
			{Allow, "/category/"},
		},
		CrawlDelay: 1,
	}}
	for i, bot := range blockedCrawlers {
		g := RobotsGroup{UserAgent: bot, Rules: []Rule{{Disallow, "/"}}}
		if i == 0 {
			g.Comment = "Block AI training crawlers"
		}
		groups = append(groups, g)
	}
	groups = append(groups,
		RobotsGroup{Comment: "Search engines", UserAgent: "Googlebot", Rules: []Rule{{Allow, "/"}}, CrawlDelay: 1},
		RobotsGroup{UserAgent: "Bingbot", Rules: []Rule{{Allow, "/"}}, CrawlDelay: 1},
	)
	return Robots{Groups: groups, Sitemap: site.URL("/sitemap.xml")}
}

// String 渲染 robots.txt，组之间以空行分隔
func (r Robots) String() string {
	var b strings.Builder
	for i, g := range r.Groups {
		if i > 0 {
			b.WriteByte('\n')
		}
		if g.Comment != "" {
			b.WriteString("# " + g.Comment + "\n")
		}
		b.WriteString("User-agent: " + g.UserAgent + "\n")
		for _, rule := range g.Rules {
			b.WriteString(string(rule.Kind) + ": " + rule.Path + "\n")
		}
		if g.CrawlDelay > 0 {
			b.WriteString("Crawl-delay: " + strconv.Itoa(g.CrawlDelay) + "\n")
		}
	}
	if r.Sitemap != "" {
		if len(r.Groups) > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Sitemap: " + r.Sitemap + "\n")
	}
	return b.String()
}
