package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/internal/seo"
	"github.com/omeyang/toolhub/pkg/util/xpool"
	"github.com/omeyang/toolhub/pkg/util/xttl"
)

const (
	// categoryPageLimit 分类详情页默认展示的工具数
	categoryPageLimit = 100

	sitemapCacheControl = "public, max-age=3600, stale-while-revalidate=86400"
	robotsCacheControl  = "public, max-age=86400"
)

type toolPage struct {
	Tool     catalog.Tool            `json:"tool"`
	Metadata seo.Metadata            `json:"metadata"`
	JSONLD   seo.SoftwareApplication `json:"json_ld"`
}

type categoryPage struct {
	Category catalog.Category   `json:"category"`
	Tools    []catalog.Tool     `json:"tools"`
	Count    int                `json:"count"`
	Metadata seo.Metadata       `json:"metadata"`
	JSONLD   seo.CollectionPage `json:"json_ld"`
}

type health struct {
	Status string      `json:"status"`
	Uptime string      `json:"uptime"`
	Cache  xttl.Stats  `json:"cache"`
	Views  xpool.Stats `json:"views"`
}

// queryLimit 解析 limit 参数，缺省返回 0（由 Service 取默认值）
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("limit must be a non-negative integer")
	}
	return n, nil
}

// queryNSFW 解析 nsfw 参数，缺省返回 nil（不过滤）
func queryNSFW(r *http.Request) (*bool, error) {
	raw := r.URL.Query().Get("nsfw")
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, badRequest("nsfw must be a boolean")
	}
	return &v, nil
}

func filterNSFW(tools []catalog.Tool, nsfw *bool) []catalog.Tool {
	if nsfw == nil {
		return tools
	}
	out := make([]catalog.Tool, 0, len(tools))
	for _, t := range tools {
		if t.IsNSFW == *nsfw {
			out = append(out, t)
		}
	}
	return out
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	nsfw, err := queryNSFW(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var tools []catalog.Tool
	if category := r.URL.Query().Get("category"); category != "" {
		tools, err = s.catalog.ToolsByCategory(r.Context(), category, limit)
	} else {
		tools, err = s.catalog.PopularTools(r.Context(), limit)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, filterNSFW(tools, nsfw))
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	tool, err := s.catalog.ToolBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.catalog.RecordView(tool.ID)
	writeData(w, http.StatusOK, toolPage{
		Tool:     tool,
		Metadata: seo.ToolMetadata(s.site, tool),
		JSONLD:   seo.ToolJSONLD(s.site, tool),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.catalog.Categories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, cats)
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit == 0 {
		limit = categoryPageLimit
	}
	slug := r.PathValue("slug")
	cat, err := s.catalog.Category(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tools, err := s.catalog.ToolsByCategory(r.Context(), slug, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, categoryPage{
		Category: cat,
		Tools:    tools,
		Count:    len(tools),
		Metadata: seo.CategoryMetadata(s.site, cat, len(tools)),
		JSONLD:   seo.CategoryJSONLD(s.site, cat, tools),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tools, err := s.catalog.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, tools)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, envelope{Success: false, Error: "request body too large"})
			return
		}
		s.writeError(w, r, badRequest("read request body"))
		return
	}
	var sub catalog.Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		s.writeError(w, r, badRequest("invalid request body"))
		return
	}
	id, err := s.catalog.Submit(r.Context(), sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	body, err := s.sitemap.Generate(r.Context()).XML()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	serveCacheable(w, r, "application/xml; charset=utf-8", sitemapCacheControl, body)
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	serveCacheable(w, r, "text/plain; charset=utf-8", robotsCacheControl, s.robots)
}

// serveCacheable 按内容哈希生成强 ETag，If-None-Match 命中时返回 304。
func serveCacheable(w http.ResponseWriter, r *http.Request, contentType, cacheControl string, body []byte) {
	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	h := w.Header()
	h.Set("Cache-Control", cacheControl)
	h.Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && (match == etag || match == "*") {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, health{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Cache:  s.catalog.Stats(),
		Views:  s.catalog.ViewStats(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, catalog.ErrNotFound)
}

// handleMethodNotAllowed 已知路径、方法不符时返回 405 并附 Allow
func (s *Server) handleMethodNotAllowed(methods []string) http.HandlerFunc {
	allow := strings.Join(methods, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		s.writeError(w, r, errMethodNotAllowed)
	}
}
