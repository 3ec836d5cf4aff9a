// Package blog reads the posts index and renders markdown posts.
package blog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("Post not found.")
	ErrDraft    = errors.New("This post is still marked as a draft.")
)

// EmptyMessage is shown when no post is published
const EmptyMessage = "No published posts yet."

// Post is one entry of the posts index
type Post struct {
	Slug    string   `json:"slug"`
	Title   string   `json:"title"`
	Date    string   `json:"date"`
	Excerpt string   `json:"excerpt,omitempty"`
	Cover   string   `json:"cover,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Draft   bool     `json:"draft,omitempty"`
	File    string   `json:"file"`
}

// DisplayTitle is the title or "Untitled"
func (p Post) DisplayTitle() string {
	if p.Title == "" {
		return "Untitled"
	}
	return p.Title
}

// DisplayDate is the formatted publication date
func (p Post) DisplayDate() string {
	return FormatDate(p.Date)
}

// ParseIndex accepts either a bare array of posts or an object with a posts array.
// Anything else holds no posts.
func ParseIndex(data []byte) ([]Post, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var posts []Post
		if err := json.Unmarshal(data, &posts); err != nil {
			return nil, fmt.Errorf("failed to parse posts index: %w", err)
		}
		return posts, nil
	}

	var wrapped struct {
		Posts []Post `json:"posts"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse posts index: %w", err)
	}
	return wrapped.Posts, nil
}

// Published drops drafts and orders the rest newest first
func Published(posts []Post) []Post {
	published := make([]Post, 0, len(posts))
	for _, post := range posts {
		if !post.Draft {
			published = append(published, post)
		}
	}

	sort.SliceStable(published, func(i, j int) bool {
		return parseDate(published[i].Date).After(parseDate(published[j].Date))
	})
	return published
}

// Find returns the post with slug. Drafts are reported as ErrDraft.
func Find(posts []Post, slug string) (*Post, error) {
	for i := range posts {
		if posts[i].Slug != slug {
			continue
		}
		if posts[i].Draft {
			return nil, ErrDraft
		}
		return &posts[i], nil
	}
	return nil, ErrNotFound
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// parseDate returns the zero time for dates it cannot read
func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FormatDate renders a date as "Jan 2, 2006"; unreadable dates are returned as given
func FormatDate(value string) string {
	if value == "" {
		return ""
	}
	t := parseDate(value)
	if t.IsZero() {
		return value
	}
	return t.Format("Jan 2, 2006")
}
