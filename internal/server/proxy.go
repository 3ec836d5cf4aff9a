package server

import (
	"net/http"
	"path"
	"strings"

	"github.com/golang/glog"
)

// handleStatic serves files from the public directory. Anything missing goes to
// the asset origin when one is configured, and to the 404 page otherwise.
func (s *SiteServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.publicFileExists(r.URL.Path) {
		http.FileServer(http.Dir(s.config.PublicDir())).ServeHTTP(w, r)
		return
	}

	if s.reverseProxy != nil {
		glog.V(1).Infof("%s not found locally, proxying to %s", r.URL.Path, s.config.ProxyURL.Host)
		s.proxyRequest(w, r)
		return
	}

	s.handleNotFound(w, r)
}

// publicFileExists reports whether urlPath names a file, or a directory with an
// index.html, inside the public directory
func (s *SiteServer) publicFileExists(urlPath string) bool {
	dir := http.Dir(s.config.PublicDir())
	name := path.Clean("/" + urlPath)

	f, err := dir.Open(name)
	if err != nil {
		return false
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return true
	}

	index, err := dir.Open(strings.TrimSuffix(name, "/") + "/index.html")
	if err != nil {
		return false
	}
	index.Close()
	return true
}

// proxyRequest forwards the request to the asset origin
func (s *SiteServer) proxyRequest(w http.ResponseWriter, r *http.Request) {
	s.reverseProxy.ServeHTTP(w, r)
}
