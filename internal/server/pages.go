package server

import (
	"errors"
	"html"
	"html/template"
	"net/http"

	"vanillasomethin/sitecms/internal/blog"
	"vanillasomethin/sitecms/internal/config"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
)

// handlePage renders a legacy page, followed by its embeds, inside the shell
func (s *SiteServer) handlePage(page config.PageConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		legacyPage, err := s.pages.Load(page.Source)
		if err != nil {
			glog.Errorf("Page %s: %v", page.Route, err)
			s.handleNotFound(w, r)
			return
		}

		data := viewData{Title: html.UnescapeString(legacyPage.Title), Body: template.HTML(legacyPage.HTML())}
		for _, source := range page.Embeds {
			embedded, err := s.pages.Load(source)
			if err != nil {
				glog.Warningf("Page %s: skipping embed: %v", page.Route, err)
				continue
			}
			data.Embeds = append(data.Embeds, template.HTML(embedded.HTML()))
		}

		s.views.render(w, http.StatusOK, "page", data)
	}
}

// handleBlogList renders the published posts
func (s *SiteServer) handleBlogList(w http.ResponseWriter, r *http.Request) {
	data := viewData{Title: s.blog.PageTitle("Journal"), Message: blog.EmptyMessage}

	posts, err := s.blog.List()
	if err != nil {
		glog.Errorf("Blog index: %v", err)
		data.Error = "Unable to load posts index."
		s.views.render(w, http.StatusInternalServerError, "blog_list", data)
		return
	}

	data.Posts = posts
	s.views.render(w, http.StatusOK, "blog_list", data)
}

// handleBlogPost renders one post
func (s *SiteServer) handleBlogPost(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	article, err := s.blog.Article(slug)
	switch {
	case err == nil:
		s.views.render(w, http.StatusOK, "blog_post", viewData{Title: article.PageTitle, Article: article})
	case errors.Is(err, blog.ErrNotFound), errors.Is(err, blog.ErrDraft):
		s.views.render(w, http.StatusNotFound, "blog_post", viewData{Title: s.blog.PageTitle("Journal"), Error: err.Error()})
	default:
		glog.Errorf("Blog post %s: %v", slug, err)
		s.views.render(w, http.StatusInternalServerError, "blog_post", viewData{Title: s.blog.PageTitle("Journal"), Error: "Unable to load post content."})
	}
}

// handleNotFound renders the 404 page
func (s *SiteServer) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.views.render(w, http.StatusNotFound, "not_found", viewData{Title: "Page not found | " + siteTitle})
}

// handleAdmin serves the editor page
func (s *SiteServer) handleAdmin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Write(s.views.admin)
}

// handleLoginPage shows the sign-in form
func (s *SiteServer) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		if s.auth.insecureOpen {
			http.Redirect(w, r, "/admin", http.StatusSeeOther)
			return
		}
		http.Error(w, errAdminDisabled.Error(), http.StatusServiceUnavailable)
		return
	}
	s.views.render(w, http.StatusOK, "login", viewData{Title: "Sign in | " + siteTitle})
}

// handleLogin exchanges the admin token for a session cookie
func (s *SiteServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		http.Error(w, errAdminDisabled.Error(), http.StatusServiceUnavailable)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	if !s.auth.CheckToken(r.PostForm.Get("token")) {
		glog.Warningf("Failed admin sign-in from %s", r.RemoteAddr)
		s.views.render(w, http.StatusUnauthorized, "login", viewData{Title: "Sign in | " + siteTitle, Error: "Invalid admin token."})
		return
	}

	if err := s.auth.setSession(w, r); err != nil {
		glog.Errorf("Admin sign-in: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	glog.Infof("Admin signed in from %s", r.RemoteAddr)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// handleLogout clears the session cookie
func (s *SiteServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.clearSession(w, r)
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}
