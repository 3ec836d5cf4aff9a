package legacy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// Loader reads pages from the site directory and caches the extracted result
// until the file changes
type Loader struct {
	root  string
	mu    sync.RWMutex
	cache map[string]*Page
}

// NewLoader creates a loader for pages under root
func NewLoader(root string) *Loader {
	return &Loader{
		root:  root,
		cache: make(map[string]*Page),
	}
}

// resolve maps a source relative to the site directory to a file path,
// refusing anything outside it
func (l *Loader) resolve(source string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(source, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("page source %q is outside the site directory", source)
	}
	return filepath.Join(l.root, clean), nil
}

// Load returns the extracted page for source, e.g. "contact/index.html"
func (l *Loader) Load(source string) (*Page, error) {
	filePath, err := l.resolve(source)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	page, ok := l.cache[filePath]
	l.mu.RUnlock()
	if ok {
		return page, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %s: %w", source, err)
	}
	page = Extract(string(data))

	l.mu.Lock()
	l.cache[filePath] = page
	l.mu.Unlock()

	glog.V(1).Infof("Loaded page %s", source)
	return page, nil
}

// Invalidate drops the cached page for a changed file. Paths not under the
// site directory are ignored.
func (l *Loader) Invalidate(filePath string) {
	filePath = filepath.Clean(filePath)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[filePath]; ok {
		delete(l.cache, filePath)
		glog.V(1).Infof("Invalidated cached page %s", filePath)
	}
}

// Cached reports how many pages are cached
func (l *Loader) Cached() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}
