package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"

	"vanillasomethin/sitecms/internal/config"
	"vanillasomethin/sitecms/internal/publish"
	"vanillasomethin/sitecms/internal/store"
)

const adminToken = "admin-token"

type testSite struct {
	t      *testing.T
	dir    string
	cfg    *config.Config
	store  *store.MemoryStore
	server *SiteServer
	http   *httptest.Server
	client *http.Client
}

func writeSiteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// newTestSite starts a server over a temporary site directory and a memory
// store holding {"a":1}
func newTestSite(t *testing.T, mutate func(cfg *config.Config)) *testSite {
	t.Helper()
	dir := t.TempDir()
	writeSiteFile(t, dir, "public/content.json", `{"a":1}`)

	cfg := config.Default()
	cfg.SiteDir = dir
	cfg.Store.Backend = config.BackendMemory
	cfg.Admin.Token = adminToken
	cfg.Admin.SessionSecret = "session-secret"
	if mutate != nil {
		mutate(cfg)
	}

	mem := store.NewMemoryStore()
	mem.Put(cfg.Store.Path, cfg.Store.Branch, []byte(`{"a":1}`))

	publisher := publish.New(mem, publish.Config{
		Path:           cfg.Store.Path,
		Branch:         cfg.Store.Branch,
		DefaultMessage: cfg.Publish.DefaultMessage,
	})
	return startTestSite(t, dir, cfg, mem, publisher)
}

func startTestSite(t *testing.T, dir string, cfg *config.Config, mem *store.MemoryStore, publisher *publish.Publisher) *testSite {
	t.Helper()
	srv, err := NewSiteServer(cfg, publisher)
	assert.Equal(t, err, nil)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(ts.Close)

	client := ts.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &testSite{t: t, dir: dir, cfg: cfg, store: mem, server: srv, http: ts, client: client}
}

// request sends a request and returns the response with its body read
func (s *testSite) request(method, path, body string, header http.Header) (*http.Response, string) {
	s.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.http.URL+path, reader)
	if err != nil {
		s.t.Fatal(err)
	}
	for key, values := range header {
		req.Header[key] = values
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.t.Fatal(err)
	}
	return resp, string(data)
}

func (s *testSite) get(path string) (*http.Response, string) {
	return s.request(http.MethodGet, path, "", nil)
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestHealthz(t *testing.T) {
	site := newTestSite(t, nil)

	resp, body := site.get("/healthz")
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, strings.TrimSpace(body), `{"status":"ok"}`)
	assert.NotEqual(t, resp.Header.Get("X-Request-Id"), "")
}

func TestCORSPreflight(t *testing.T) {
	site := newTestSite(t, func(cfg *config.Config) {
		cfg.CORS.Enabled = true
		cfg.CORS.AllowOrigins = "https://studio.example"
	})

	resp, _ := site.request(http.MethodOptions, "/content.json", "", nil)
	assert.Equal(t, resp.StatusCode, http.StatusNoContent)
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "https://studio.example")
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Methods"), "GET, POST, OPTIONS")

	resp, _ = site.get("/content.json")
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "https://studio.example")
}

func TestStaticFilesAndNotFound(t *testing.T) {
	site := newTestSite(t, nil)
	writeSiteFile(t, site.dir, "public/assets/site.css", "body{}")

	resp, body := site.get("/assets/site.css")
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, body, "body{}")

	resp, body = site.get("/missing.png")
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
	assert.Equal(t, strings.Contains(body, "Page not found"), true)

	// only public/ is served
	writeSiteFile(t, site.dir, "config.yml", "store: {}")
	resp, _ = site.get("/config.yml")
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestMissingFilesAreProxied(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("origin:" + r.URL.Path + ":" + r.Header.Get("Authorization")))
	}))
	defer origin.Close()

	site := newTestSite(t, func(cfg *config.Config) {
		cfg.ProxyURL, _ = url.Parse(origin.URL)
	})
	writeSiteFile(t, site.dir, "public/local.txt", "local")

	resp, body := site.request(http.MethodGet, "/images/hero.avif", "", bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, body, "origin:/images/hero.avif:")

	_, body = site.get("/local.txt")
	assert.Equal(t, body, "local")
}
