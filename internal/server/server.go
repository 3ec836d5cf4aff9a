package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"strings"

	"vanillasomethin/sitecms/internal/blog"
	"vanillasomethin/sitecms/internal/config"
	"vanillasomethin/sitecms/internal/legacy"
	"vanillasomethin/sitecms/internal/publish"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/gorilla/mux"
)

// SiteServer serves the legacy site, the blog, the admin editor and the content API
type SiteServer struct {
	config       *config.Config
	publisher    *publish.Publisher
	hook         *publish.DeployHook
	auth         *Auth
	pages        *legacy.Loader
	blog         *blog.Renderer
	views        *views
	hub          *Hub
	reverseProxy *httputil.ReverseProxy
	watcher      *fsnotify.Watcher
	documentPath string // public copy of the content document
}

// NewSiteServer creates a SiteServer publishing through publisher
func NewSiteServer(cfg *config.Config, publisher *publish.Publisher) (*SiteServer, error) {
	views, err := newViews()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	auth, err := NewAuth(cfg.Admin)
	if err != nil {
		return nil, fmt.Errorf("failed to set up admin auth: %w", err)
	}

	// Create file watcher
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	server := &SiteServer{
		config:       cfg,
		publisher:    publisher,
		hook:         publish.NewDeployHook(cfg.Publish.DeployHookURL, cfg.Publish.Timeout),
		auth:         auth,
		pages:        legacy.NewLoader(cfg.SiteDir),
		blog:         blog.NewRenderer(cfg.PublicDir(), cfg.Blog.Index, cfg.Blog.TitleSuffix),
		views:        views,
		hub:          NewHub(),
		watcher:      watcher,
		documentPath: filepath.Clean(filepath.Join(cfg.SiteDir, filepath.FromSlash(cfg.Store.Path))),
	}

	// Configure reverse proxy if URL is provided
	if cfg.ProxyURL != nil {
		server.setupProxy()
	}

	// Start watching for file changes
	go server.watchFiles()

	return server, nil
}

// setupProxy configures the reverse proxy for assets the export did not keep locally
func (s *SiteServer) setupProxy() {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if s.config.InsecureProxy {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	origin := s.config.ProxyURL
	s.reverseProxy = &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = origin.Scheme
			req.URL.Host = origin.Host
			req.Host = origin.Host
			if origin.Path != "" && origin.Path != "/" {
				req.URL.Path = strings.TrimSuffix(origin.Path, "/") + req.URL.Path
			}

			if origin.RawQuery != "" {
				if req.URL.RawQuery == "" {
					req.URL.RawQuery = origin.RawQuery
				} else {
					req.URL.RawQuery = origin.RawQuery + "&" + req.URL.RawQuery
				}
			}
			// admin credentials stay on this host
			req.Header.Del("Authorization")
			req.Header.Del("Cookie")
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			glog.Errorf("Proxying %s to %s failed: %v", r.URL.Path, origin.Host, err)
			http.Error(w, "Bad gateway", http.StatusBadGateway)
		},
	}

	glog.Infof("Asset proxy enabled: files not found locally will be fetched from %s", origin.String())
	if s.config.InsecureProxy {
		glog.Warningf("SSL certificate verification disabled for proxy requests")
	}
}

// Close cleans up resources used by the server
func (s *SiteServer) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// skipDir reports directories the watcher ignores
func skipDir(name string) bool {
	return name == "node_modules" || (strings.HasPrefix(name, ".") && name != "." && name != "..")
}

// SetupWatchers recursively adds the site directories to the watcher
func (s *SiteServer) SetupWatchers() error {
	return filepath.Walk(s.config.SiteDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != s.config.SiteDir && skipDir(info.Name()) {
			return filepath.SkipDir
		}
		return s.watcher.Add(path)
	})
}

// watchFiles drops cached pages that changed on disk and forwards changes of
// the content document to subscribers
func (s *SiteServer) watchFiles() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFileEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			glog.Errorf("Watcher error: %v", err)
		}
	}
}

func (s *SiteServer) handleFileEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(name); err == nil && info.IsDir() && !skipDir(info.Name()) {
			if err := s.watcher.Add(name); err != nil {
				glog.Warningf("Cannot watch new directory %s: %v", name, err)
			}
			return
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	s.pages.Invalidate(name)

	if name != s.documentPath || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return
	}

	data, err := os.ReadFile(name)
	if err != nil {
		glog.Errorf("Error reading %s: %v", name, err)
		return
	}
	if !json.Valid(data) {
		// editors save in several steps; wait for a complete document
		glog.V(1).Infof("Ignoring incomplete write of %s", name)
		return
	}

	glog.V(1).Infof("Content document changed on disk: %s", name)
	s.hub.Update(data)
}

// triggerDeploy runs the deploy hook in the background after a publish
func (s *SiteServer) triggerDeploy() {
	if s.hook == nil {
		return
	}
	go func() {
		if err := s.hook.Trigger(context.Background()); err != nil {
			glog.Errorf("Deploy hook failed: %v", err)
			return
		}
		glog.Infof("Deploy hook triggered")
	}()
}

// SetupRoutes configures the HTTP routes for the server
func (s *SiteServer) SetupRoutes() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/content.json", s.handleContentDocument).Methods(http.MethodGet, http.MethodHead)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.auth.RequireAPI)
	api.HandleFunc("/content", s.handleGetContent).Methods(http.MethodGet)
	api.HandleFunc("/content", s.handlePublish).Methods(http.MethodPost)
	api.HandleFunc("/content/diff", s.handleDiff).Methods(http.MethodPost)

	router.HandleFunc("/admin/login", s.handleLoginPage).Methods(http.MethodGet)
	router.HandleFunc("/admin/login", s.handleLogin).Methods(http.MethodPost)
	router.HandleFunc("/admin/logout", s.handleLogout).Methods(http.MethodPost)
	router.Handle("/admin", s.auth.RequirePage(http.HandlerFunc(s.handleAdmin))).Methods(http.MethodGet)

	router.HandleFunc("/blog", s.handleBlogList).Methods(http.MethodGet)
	router.HandleFunc("/blog/{slug:[A-Za-z0-9_-]+}", s.handleBlogPost).Methods(http.MethodGet)

	for _, page := range s.config.Pages {
		router.HandleFunc(page.Route, s.handlePage(page)).Methods(http.MethodGet, http.MethodHead)
	}

	router.PathPrefix("/").HandlerFunc(s.handleStatic)

	var handler http.Handler = router
	if s.config.CORS.Enabled {
		handler = s.cors(handler)
	}
	return requestLogger(handler)
}
