package blog

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

// FrontMatter is the YAML header a post file may start with
type FrontMatter struct {
	Title string   `yaml:"title"`
	Date  string   `yaml:"date"`
	Tags  []string `yaml:"tags"`
}

// SplitFrontMatter separates a leading "---" block from the markdown. A block
// that does not parse is still stripped.
func SplitFrontMatter(markdown []byte) (FrontMatter, []byte) {
	var fm FrontMatter
	if !bytes.HasPrefix(markdown, []byte("---")) {
		return fm, markdown
	}
	end := bytes.Index(markdown[3:], []byte("\n---"))
	if end == -1 {
		return fm, markdown
	}
	end += 3

	if err := yaml.Unmarshal(markdown[3:end], &fm); err != nil {
		glog.Warningf("Ignoring unreadable front matter: %v", err)
		fm = FrontMatter{}
	}

	rest := markdown[end+len("\n---"):]
	// drop the remainder of the closing fence line
	if i := bytes.IndexByte(rest, '\n'); i != -1 && len(bytes.TrimSpace(rest[:i])) == 0 {
		rest = rest[i+1:]
	}
	return fm, rest
}

// Article is a post ready to render
type Article struct {
	Post
	PageTitle string
	HTML      template.HTML
}

// Renderer reads posts from the public directory
type Renderer struct {
	publicDir   string
	index       string
	titleSuffix string
	md          goldmark.Markdown
}

// NewRenderer creates a renderer for the index file (relative to publicDir)
func NewRenderer(publicDir, index, titleSuffix string) *Renderer {
	return &Renderer{
		publicDir:   publicDir,
		index:       index,
		titleSuffix: titleSuffix,
		md:          goldmark.New(),
	}
}

// PageTitle appends the site name to title
func (r *Renderer) PageTitle(title string) string {
	if r.titleSuffix == "" {
		return title
	}
	return title + " | " + r.titleSuffix
}

// resolve maps a site path such as "/blog/posts/hello.md" into the public directory
func (r *Renderer) resolve(sitePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(sitePath, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q is outside the public directory", sitePath)
	}
	return filepath.Join(r.publicDir, clean), nil
}

// Posts reads the whole index, drafts included
func (r *Renderer) Posts() ([]Post, error) {
	indexPath, err := r.resolve(r.index)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("Unable to load posts index: %w", err)
	}
	return ParseIndex(data)
}

// List returns the published posts, newest first
func (r *Renderer) List() ([]Post, error) {
	posts, err := r.Posts()
	if err != nil {
		return nil, err
	}
	return Published(posts), nil
}

// Article renders the post with slug
func (r *Renderer) Article(slug string) (*Article, error) {
	posts, err := r.Posts()
	if err != nil {
		return nil, err
	}
	post, err := Find(posts, slug)
	if err != nil {
		return nil, err
	}

	filePath, err := r.resolve(post.File)
	if err != nil {
		return nil, err
	}
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("Unable to load post content: %w", err)
	}

	fm, markdown := SplitFrontMatter(source)
	article := &Article{Post: *post}
	if article.Title == "" {
		article.Title = fm.Title
	}
	if article.Date == "" {
		article.Date = fm.Date
	}
	if len(article.Tags) == 0 {
		article.Tags = fm.Tags
	}

	var buf bytes.Buffer
	if err := r.md.Convert(markdown, &buf); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", post.File, err)
	}
	article.HTML = template.HTML(buf.String())
	article.PageTitle = r.PageTitle(article.DisplayTitle())
	return article, nil
}
