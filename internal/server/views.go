package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"vanillasomethin/sitecms/internal/blog"

	"github.com/golang/glog"
)

//go:embed assets/*.html
var assetsFS embed.FS

const (
	siteTitle       = "Vanilla & Somethin"
	siteDescription = "Vanilla & Somethin’ is an innovative architecture and design studio crafting timeless spaces that blend emotion, technology, and storytelling through architecture and furniture design."
)

// viewData is what every page template receives
type viewData struct {
	Title       string
	Description string
	Body        template.HTML
	Embeds      []template.HTML
	Posts       []blog.Post
	Article     *blog.Article
	Message     string
	Error       string
}

// views holds one template set per page, each rendered inside the shell
type views struct {
	pages map[string]*template.Template
	admin []byte
}

func newViews() (*views, error) {
	v := &views{pages: make(map[string]*template.Template)}
	for _, name := range []string{"page", "blog_list", "blog_post", "not_found", "login"} {
		tmpl, err := template.ParseFS(assetsFS, "assets/shell.html", "assets/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		v.pages[name] = tmpl
	}

	admin, err := assetsFS.ReadFile("assets/admin.html")
	if err != nil {
		return nil, fmt.Errorf("read admin page: %w", err)
	}
	v.admin = admin
	return v, nil
}

// render executes the named page into the shell. The page is buffered so a
// template failure still produces a clean 500.
func (v *views) render(w http.ResponseWriter, status int, name string, data viewData) {
	if data.Title == "" {
		data.Title = siteTitle
	}
	if data.Description == "" {
		data.Description = siteDescription
	}

	var buf bytes.Buffer
	if err := v.pages[name].ExecuteTemplate(&buf, "shell", data); err != nil {
		glog.Errorf("Rendering %s failed: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
