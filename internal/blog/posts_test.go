package blog

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestParseIndexShapes(t *testing.T) {
	posts, err := ParseIndex([]byte(`[{"slug":"a","title":"A"}]`))
	assert.Equal(t, err, nil)
	assert.Equal(t, len(posts), 1)
	assert.Equal(t, posts[0].Slug, "a")

	posts, err = ParseIndex([]byte(`{"posts":[{"slug":"a"},{"slug":"b","draft":true}]}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, len(posts), 2)
	assert.Equal(t, posts[1].Draft, true)

	posts, err = ParseIndex([]byte(`{"items":[]}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, len(posts), 0)

	_, err = ParseIndex([]byte(`[{"slug":`))
	assert.NotEqual(t, err, nil)
}

func TestPublishedFiltersAndSorts(t *testing.T) {
	posts := []Post{
		{Slug: "old", Date: "2023-05-01"},
		{Slug: "draft", Date: "2025-01-01", Draft: true},
		{Slug: "new", Date: "2024-11-20"},
		{Slug: "undated"},
	}

	published := Published(posts)
	assert.Equal(t, len(published), 3)
	assert.Equal(t, published[0].Slug, "new")
	assert.Equal(t, published[1].Slug, "old")
	assert.Equal(t, published[2].Slug, "undated")
}

func TestFind(t *testing.T) {
	posts := []Post{{Slug: "live"}, {Slug: "wip", Draft: true}}

	post, err := Find(posts, "live")
	assert.Equal(t, err, nil)
	assert.Equal(t, post.Slug, "live")

	_, err = Find(posts, "wip")
	assert.Equal(t, err, ErrDraft)
	assert.Equal(t, err.Error(), "This post is still marked as a draft.")

	_, err = Find(posts, "nope")
	assert.Equal(t, err, ErrNotFound)
	assert.Equal(t, err.Error(), "Post not found.")
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, FormatDate("2024-03-09"), "Mar 9, 2024")
	assert.Equal(t, FormatDate("2024-03-09T10:00:00Z"), "Mar 9, 2024")
	assert.Equal(t, FormatDate("sometime soon"), "sometime soon")
	assert.Equal(t, FormatDate(""), "")
	assert.Equal(t, Post{}.DisplayTitle(), "Untitled")
}
