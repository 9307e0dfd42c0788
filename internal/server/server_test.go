package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/internal/catalog/catalogtest"
	"github.com/omeyang/toolhub/internal/seo"
	"github.com/omeyang/toolhub/pkg/context/xctx"
	"github.com/omeyang/toolhub/pkg/observability/xlog"
	"github.com/omeyang/toolhub/pkg/util/xttl"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testSite = seo.Site{BaseURL: "https://toolhub.example", Name: "ToolHub"}

type fixture struct {
	srv   *Server
	svc   *catalog.Service
	store *catalogtest.Store
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := catalogtest.New(catalogtest.Fixture())
	cache, err := xttl.New(xttl.Config{Capacity: 100, TTL: time.Minute}, xttl.WithLogger(xlog.Discard()))
	require.NoError(t, err)
	svc, err := catalog.NewService(store, cache, catalog.WithLogger(xlog.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return &fixture{
		srv:   New(cfg, testSite, svc, WithLogger(xlog.Discard())),
		svc:   svc,
		store: store,
	}
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   *int            `json:"count"`
	Error   string          `json:"error"`
}

func (f *fixture) do(t *testing.T, method, target string, body string, header map[string]string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestServer_Tools(t *testing.T) {
	f := newFixture(t, Config{})

	rec, resp := f.do(t, http.MethodGet, "/api/tools", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Count)
	assert.Equal(t, 4, *resp.Count)
	var tools []catalog.Tool
	require.NoError(t, json.Unmarshal(resp.Data, &tools))
	assert.Equal(t, "pixelforge", tools[0].Slug)

	_, resp = f.do(t, http.MethodGet, "/api/tools?nsfw=false", "", nil)
	assert.Equal(t, 3, *resp.Count)

	_, resp = f.do(t, http.MethodGet, "/api/tools?category=image&nsfw=true", "", nil)
	assert.Equal(t, 1, *resp.Count)

	rec, resp = f.do(t, http.MethodGet, "/api/tools?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "limit")

	rec, _ = f.do(t, http.MethodGet, "/api/tools?nsfw=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/tools?category=Not%20Valid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ToolDetail(t *testing.T) {
	f := newFixture(t, Config{})

	rec, resp := f.do(t, http.MethodGet, "/api/tools/writebot", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Tool     catalog.Tool   `json:"tool"`
		Metadata seo.Metadata   `json:"metadata"`
		JSONLD   map[string]any `json:"json_ld"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, "t1", page.Tool.ID)
	assert.Equal(t, "WriteBot - AI Tool Review & Guide | ToolHub", page.Metadata.Title)
	assert.Equal(t, "SoftwareApplication", page.JSONLD["@type"])
	assert.Nil(t, resp.Count)

	require.Eventually(t, func() bool { return f.store.Views("t1") == 1 }, time.Second, 5*time.Millisecond)

	rec, resp = f.do(t, http.MethodGet, "/api/tools/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", resp.Error)

	rec, _ = f.do(t, http.MethodGet, "/api/tools/Bad%20Slug", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Categories(t *testing.T) {
	f := newFixture(t, Config{})

	_, resp := f.do(t, http.MethodGet, "/api/categories", "", nil)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, *resp.Count)

	rec, resp := f.do(t, http.MethodGet, "/api/categories/image", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Category catalog.Category `json:"category"`
		Tools    []catalog.Tool   `json:"tools"`
		Count    int              `json:"count"`
		Metadata seo.Metadata     `json:"metadata"`
		JSONLD   map[string]any   `json:"json_ld"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, "Image", page.Category.Name)
	assert.Len(t, page.Tools, 2)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, "Image AI Tools - Best Image Apps | ToolHub", page.Metadata.Title)
	assert.Equal(t, "CollectionPage", page.JSONLD["@type"])

	rec, _ = f.do(t, http.MethodGet, "/api/categories/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Search(t *testing.T) {
	f := newFixture(t, Config{})

	_, resp := f.do(t, http.MethodGet, "/api/search?q=pix", "", nil)
	assert.Equal(t, 1, *resp.Count)

	_, resp = f.do(t, http.MethodGet, "/api/search?q=a", "", nil)
	assert.True(t, resp.Success)
	assert.Equal(t, 0, *resp.Count)
	assert.JSONEq(t, `[]`, string(resp.Data))
	assert.Equal(t, int64(1), f.store.Calls("ListTools"), "短查询不访问数据源")
}

func TestServer_Submit(t *testing.T) {
	f := newFixture(t, Config{MaxBodyBytes: 256})

	rec, resp := f.do(t, http.MethodPost, "/api/submit",
		`{"name":"New","url":"https://new.example","description":"d","category":"writing"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"sub-1"}`, string(resp.Data))
	require.Len(t, f.store.Submitted(), 1)

	rec, resp = f.do(t, http.MethodPost, "/api/submit", `{"url":"https://new.example"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error, "name is required")

	rec, _ = f.do(t, http.MethodPost, "/api/submit", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/submit", `{"name":"`+strings.Repeat("x", 512)+`"}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServer_Sitemap(t *testing.T) {
	f := newFixture(t, Config{})

	rec, _ := f.do(t, http.MethodGet, "/sitemap.xml", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sitemapCacheControl, rec.Header().Get("Cache-Control"))
	assert.Equal(t, "application/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<loc>https://toolhub.example/ai/pixelforge</loc>")
	assert.Contains(t, body, "<loc>https://toolhub.example/category/coding</loc>")
}

func TestServer_RobotsETag(t *testing.T) {
	f := newFixture(t, Config{})

	rec, _ := f.do(t, http.MethodGet, "/robots.txt", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, robotsCacheControl, rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "Sitemap: https://toolhub.example/sitemap.xml")
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec, _ = f.do(t, http.MethodGet, "/robots.txt", "", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, Config{})
	_, _ = f.do(t, http.MethodGet, "/api/categories", "", nil)

	rec, resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var h struct {
		Status string     `json:"status"`
		Cache  xttl.Stats `json:"cache"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.Cache.Len)
}

func TestServer_ErrorMapping(t *testing.T) {
	f := newFixture(t, Config{})

	f.store.SetError(catalog.ErrUnavailable)
	rec, resp := f.do(t, http.MethodGet, "/api/categories", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), resp.Error)

	f.store.SetError(errors.New("db exploded"))
	rec, resp = f.do(t, http.MethodGet, "/api/categories", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, resp.Error, "exploded", "5xx 不泄露内部错误")

	rec, resp = f.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		method, target, allow string
	}{
		{http.MethodPost, "/api/tools", "GET, HEAD"},
		{http.MethodDelete, "/api/tools/writebot", "GET, HEAD"},
		{http.MethodPut, "/api/categories/writing", "GET, HEAD"},
		{http.MethodGet, "/api/submit", "POST"},
		{http.MethodPost, "/sitemap.xml", "GET, HEAD"},
	}
	for _, tt := range tests {
		rec, resp := f.do(t, tt.method, tt.target, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, tt.method+" "+tt.target)
		assert.Equal(t, tt.allow, rec.Header().Get("Allow"), tt.target)
		assert.False(t, resp.Success)
		assert.Equal(t, "method not allowed", resp.Error)
	}
	assert.Zero(t, f.store.Calls("ListTools"))

	rec, _ := f.do(t, http.MethodPost, "/api/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "未知路径仍为 404")
	rec, _ = f.do(t, http.MethodGet, "/api/tools", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{catalog.ErrNotFound, http.StatusNotFound},
		{catalog.ErrInvalidSlug, http.StatusBadRequest},
		{&catalog.SubmissionError{Reason: "x"}, http.StatusBadRequest},
		{badRequest("x"), http.StatusBadRequest},
		{errMethodNotAllowed, http.StatusMethodNotAllowed},
		{catalog.ErrUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestMiddleware_RequestID(t *testing.T) {
	f := newFixture(t, Config{})

	rec, _ := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Len(t, rec.Header().Get(HeaderRequestID), 36)

	rec, _ = f.do(t, http.MethodGet, "/healthz", "", map[string]string{HeaderRequestID: "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	rec, _ = f.do(t, http.MethodGet, "/healthz", "", map[string]string{HeaderRequestID: "bad id!"})
	assert.Len(t, rec.Header().Get(HeaderRequestID), 36)

	var gotReq, gotTrace string
	h := f.srv.requestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotReq = xctx.RequestID(r.Context())
		gotTrace = xctx.TraceID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "rid")
	req.Header.Set(HeaderTraceparent, "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "rid", gotReq)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", gotTrace)
}

func TestParseTraceparent(t *testing.T) {
	_, _, ok := parseTraceparent("00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	assert.True(t, ok)

	for _, bad := range []string{
		"",
		"01-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01",
		"00-00000000000000000000000000000000-b7ad6b7169203331-01",
		"00-0af7651916cd43dd8448eb211c80319c-0000000000000000-01",
		"00-0AF7651916CD43DD8448EB211C80319C-b7ad6b7169203331-01",
		"00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-1",
	} {
		_, _, ok := parseTraceparent(bad)
		assert.False(t, ok, bad)
	}
}

func TestMiddleware_Recoverer(t *testing.T) {
	f := newFixture(t, Config{})
	h := f.srv.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal Server Error"}`, rec.Body.String())

	abort := f.srv.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		abort.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Addr: ":9000"}.withDefaults()
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, DefaultConfig().ShutdownTimeout, cfg.ShutdownTimeout)

	f := newFixture(t, Config{})
	hs := f.srv.HTTPServer()
	assert.Equal(t, ":8080", hs.Addr)
	assert.Equal(t, DefaultConfig().ReadHeaderTimeout, hs.ReadHeaderTimeout)
	assert.Equal(t, DefaultConfig().ShutdownTimeout, f.srv.ShutdownTimeout())
}
