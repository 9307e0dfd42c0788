package seo

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/omeyang/toolhub/internal/catalog"
)

const (
	schemaContext = "https://schema.org"

	// CollectionPage 中列出的工具上限
	collectionItems = 10
)

// Organization schema.org/Organization。作为嵌套引用时只填 Name/URL。
type Organization struct {
	Context      string        `json:"@context,omitempty"`
	Type         string        `json:"@type"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	URL          string        `json:"url"`
	Logo         string        `json:"logo,omitempty"`
	SameAs       []string      `json:"sameAs,omitempty"`
	ContactPoint *ContactPoint `json:"contactPoint,omitempty"`
}

// ContactPoint schema.org/ContactPoint
type ContactPoint struct {
	Type              string `json:"@type"`
	ContactType       string `json:"contactType"`
	Email             string `json:"email"`
	AvailableLanguage string `json:"availableLanguage"`
}

// Offer schema.org/Offer。Price 仅免费工具填 "0"。
type Offer struct {
	Type          string `json:"@type"`
	Price         string `json:"price,omitempty"`
	PriceCurrency string `json:"priceCurrency"`
	Availability  string `json:"availability"`
}

// AggregateRating schema.org/AggregateRating
type AggregateRating struct {
	Type        string  `json:"@type"`
	RatingValue float64 `json:"ratingValue"`
	ReviewCount int     `json:"reviewCount"`
	BestRating  int     `json:"bestRating"`
	WorstRating int     `json:"worstRating"`
}

// SoftwareApplication schema.org/SoftwareApplication
type SoftwareApplication struct {
	Context             string           `json:"@context,omitempty"`
	Type                string           `json:"@type"`
	Name                string           `json:"name"`
	Description         string           `json:"description"`
	URL                 string           `json:"url"`
	ApplicationCategory string           `json:"applicationCategory,omitempty"`
	OperatingSystem     string           `json:"operatingSystem,omitempty"`
	Offers              *Offer           `json:"offers,omitempty"`
	AggregateRating     *AggregateRating `json:"aggregateRating,omitempty"`
	Author              *Organization    `json:"author,omitempty"`
}

// ListItem schema.org/ListItem，Item 为 URL 字符串或嵌套实体
type ListItem struct {
	Type     string `json:"@type"`
	Position int    `json:"position"`
	Name     string `json:"name,omitempty"`
	Item     any    `json:"item"`
}

// BreadcrumbList schema.org/BreadcrumbList
type BreadcrumbList struct {
	Context         string     `json:"@context,omitempty"`
	Type            string     `json:"@type"`
	ItemListElement []ListItem `json:"itemListElement"`
}

// ItemList schema.org/ItemList
type ItemList struct {
	Type            string     `json:"@type"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	NumberOfItems   int        `json:"numberOfItems"`
	ItemListElement []ListItem `json:"itemListElement"`
}

// CollectionPage schema.org/CollectionPage
type CollectionPage struct {
	Context     string          `json:"@context"`
	Type        string          `json:"@type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	URL         string          `json:"url"`
	MainEntity  ItemList        `json:"mainEntity"`
	Breadcrumb  *BreadcrumbList `json:"breadcrumb,omitempty"`
}

// EntryPoint schema.org/EntryPoint
type EntryPoint struct {
	Type        string `json:"@type"`
	URLTemplate string `json:"urlTemplate"`
}

// SearchAction schema.org/SearchAction
type SearchAction struct {
	Type       string     `json:"@type"`
	Target     EntryPoint `json:"target"`
	QueryInput string     `json:"query-input"`
}

// WebSite schema.org/WebSite
type WebSite struct {
	Context         string        `json:"@context"`
	Type            string        `json:"@type"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	URL             string        `json:"url"`
	PotentialAction SearchAction  `json:"potentialAction"`
	Publisher       *Organization `json:"publisher,omitempty"`
}

// Question schema.org/Question
type Question struct {
	Type           string `json:"@type"`
	Name           string `json:"name"`
	AcceptedAnswer Answer `json:"acceptedAnswer"`
}

// Answer schema.org/Answer
type Answer struct {
	Type string `json:"@type"`
	Text string `json:"text"`
}

// FAQPage schema.org/FAQPage
type FAQPage struct {
	Context    string     `json:"@context"`
	Type       string     `json:"@type"`
	MainEntity []Question `json:"mainEntity"`
}

// FAQ 问答对
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Crumb 面包屑节点，URL 为站内路径
type Crumb struct {
	Name string
	URL  string
}

func (s Site) publisher() *Organization {
	return &Organization{Type: "Organization", Name: s.Name, URL: s.BaseURL}
}

// ToolJSONLD 工具详情页的 SoftwareApplication。
// 只有存在评分时才输出 aggregateRating，评论数至少为 1。
func ToolJSONLD(site Site, tool catalog.Tool) SoftwareApplication {
	site = site.Normalize()
	offer := &Offer{
		Type:          "Offer",
		PriceCurrency: "USD",
		Availability:  "https://schema.org/InStock",
	}
	if tool.Pricing == catalog.PricingFree {
		offer.Price = "0"
	}
	app := SoftwareApplication{
		Context:             schemaContext,
		Type:                "SoftwareApplication",
		Name:                tool.Name,
		Description:         tool.Description,
		URL:                 tool.URL,
		ApplicationCategory: "AI Tool",
		OperatingSystem:     "Web Browser",
		Offers:              offer,
		Author:              site.publisher(),
	}
	if tool.Rated() {
		app.AggregateRating = &AggregateRating{
			Type:        "AggregateRating",
			RatingValue: *tool.Rating,
			ReviewCount: max(tool.ReviewCount, 1),
			BestRating:  5,
			WorstRating: 1,
		}
	}
	return app
}

// CategoryJSONLD 分类页的 CollectionPage，列出前 10 个工具并附带面包屑。
func CategoryJSONLD(site Site, cat catalog.Category, tools []catalog.Tool) CollectionPage {
	site = site.Normalize()
	lower := strings.ToLower(cat.Name)
	description := cat.Description
	if description == "" {
		description = "Discover the best " + lower + " AI tools"
	}

	n := min(len(tools), collectionItems)
	items := make([]ListItem, 0, n)
	for i, t := range tools[:n] {
		items = append(items, ListItem{
			Type:     "ListItem",
			Position: i + 1,
			Item: SoftwareApplication{
				Type:        "SoftwareApplication",
				Name:        t.Name,
				Description: t.Description,
				URL:         site.URL(ToolPath(t.Slug)),
			},
		})
	}

	crumbs := Breadcrumbs(site, []Crumb{
		{Name: "Home", URL: "/"},
		{Name: "Categories", URL: "/categories"},
		{Name: cat.Name, URL: CategoryPath(cat.Slug)},
	})
	crumbs.Context = ""

	return CollectionPage{
		Context:     schemaContext,
		Type:        "CollectionPage",
		Name:        cat.Name + " AI Tools",
		Description: description,
		URL:         site.URL(CategoryPath(cat.Slug)),
		MainEntity: ItemList{
			Type:            "ItemList",
			Name:            cat.Name + " AI Tools",
			Description:     "Curated list of " + lower + " AI tools",
			NumberOfItems:   len(tools),
			ItemListElement: items,
		},
		Breadcrumb: &crumbs,
	}
}

// WebSiteJSONLD 站点级 WebSite，带站内搜索入口
func WebSiteJSONLD(site Site) WebSite {
	site = site.Normalize()
	return WebSite{
		Context:     schemaContext,
		Type:        "WebSite",
		Name:        site.Name,
		Description: site.Description,
		URL:         site.BaseURL,
		PotentialAction: SearchAction{
			Type: "SearchAction",
			Target: EntryPoint{
				Type:        "EntryPoint",
				URLTemplate: site.URL("/search?q={search_term_string}"),
			},
			QueryInput: "required name=search_term_string",
		},
		Publisher: site.publisher(),
	}
}

// OrganizationJSONLD 站点运营组织
func OrganizationJSONLD(site Site) Organization {
	site = site.Normalize()
	org := Organization{
		Context:     schemaContext,
		Type:        "Organization",
		Name:        site.Name,
		Description: site.Description,
		URL:         site.BaseURL,
		SameAs:      site.SameAs,
	}
	if site.Logo != "" {
		org.Logo = site.URL(site.Logo)
	}
	if site.ContactEmail != "" {
		org.ContactPoint = &ContactPoint{
			Type:              "ContactPoint",
			ContactType:       "Customer Service",
			Email:             site.ContactEmail,
			AvailableLanguage: "English",
		}
	}
	return org
}

// Breadcrumbs 面包屑，位置从 1 开始
func Breadcrumbs(site Site, crumbs []Crumb) BreadcrumbList {
	site = site.Normalize()
	items := make([]ListItem, 0, len(crumbs))
	for i, c := range crumbs {
		items = append(items, ListItem{
			Type:     "ListItem",
			Position: i + 1,
			Name:     c.Name,
			Item:     site.URL(c.URL),
		})
	}
	return BreadcrumbList{Context: schemaContext, Type: "BreadcrumbList", ItemListElement: items}
}

// FAQJSONLD FAQPage
func FAQJSONLD(faqs []FAQ) FAQPage {
	qs := make([]Question, 0, len(faqs))
	for _, f := range faqs {
		qs = append(qs, Question{
			Type:           "Question",
			Name:           f.Question,
			AcceptedAnswer: Answer{Type: "Answer", Text: f.Answer},
		})
	}
	return FAQPage{Context: schemaContext, Type: "FAQPage", MainEntity: qs}
}

// Script 将结构化数据编码为 <script type="application/ld+json"> 标签。
// 编码时转义 <、>、&，内容不会提前闭合 script。
func Script(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("seo: encode json-ld: %w", err)
	}
	return `<script type="application/ld+json">` + string(raw) + `</script>`, nil
}
