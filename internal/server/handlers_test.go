package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"vanillasomethin/sitecms/internal/config"
	"vanillasomethin/sitecms/internal/publish"
	"vanillasomethin/sitecms/internal/store"
	"vanillasomethin/sitecms/internal/utils"
	"vanillasomethin/sitecms/pkg/contentproto"
)

func publishBody(t *testing.T, content, message string) string {
	t.Helper()
	data, err := json.Marshal(contentproto.PublishRequest{Content: content, Message: message})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func decodeError(t *testing.T, body string) string {
	t.Helper()
	var payload contentproto.ErrorResponse
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("not an error body: %q", body)
	}
	return payload.Error
}

func TestLoadEditPublishScenario(t *testing.T) {
	site := newTestSite(t, nil)

	resp, body := site.request(http.MethodGet, "/api/content", "", bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	var current contentproto.ContentResponse
	assert.Equal(t, json.Unmarshal([]byte(body), &current), nil)
	assert.Equal(t, string(current.Content), `{"a":1}`)
	assert.Equal(t, current.SHA, utils.CalculateHash([]byte(`{"a":1}`)))
	assert.Equal(t, current.Branch, "main")

	edited := "{\n  \"a\": 2\n}"
	resp, body = site.request(http.MethodPost, "/api/content", publishBody(t, edited, ""), bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, strings.TrimSpace(body), `{"status":"ok"}`)

	blob, err := site.store.ReadBlob(context.Background(), "public/content.json", "main")
	assert.Equal(t, err, nil)
	assert.Equal(t, string(blob.Content), edited)

	commits := site.store.Commits("public/content.json", "main")
	assert.Equal(t, len(commits), 2)
	assert.Equal(t, commits[1].Message, "Update content.json")
}

func TestPublishRejectsInvalidContent(t *testing.T) {
	site := newTestSite(t, nil)

	cases := []struct {
		body    string
		message string
	}{
		{`{"content":"{not json"}`, "Content must be valid JSON."},
		{`{"content":""}`, "Content is required."},
		{`{}`, "Content is required."},
		{`not a request`, "Invalid JSON payload."},
	}

	for _, c := range cases {
		resp, body := site.request(http.MethodPost, "/api/content", c.body, bearer(adminToken))
		assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
		assert.Equal(t, decodeError(t, body), c.message)
	}

	reads, writes := site.store.Calls()
	assert.Equal(t, reads, 0)
	assert.Equal(t, writes, 0)
}

func TestPublishConflictPassesThrough(t *testing.T) {
	site := newTestSite(t, nil)
	site.store.FailNext("write", &store.UpstreamError{
		Op:      "write",
		Status:  http.StatusConflict,
		Message: "public/content.json does not match abc",
		Err:     store.ErrConflict,
	})

	resp, body := site.request(http.MethodPost, "/api/content", publishBody(t, `{"a":3}`, "late"), bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusConflict)
	assert.Equal(t, decodeError(t, body), "Failed to update content: public/content.json does not match abc")

	blob, _ := site.store.ReadBlob(context.Background(), "public/content.json", "main")
	assert.Equal(t, string(blob.Content), `{"a":1}`)

	// the operator resubmits and the second attempt lands once
	resp, _ = site.request(http.MethodPost, "/api/content", publishBody(t, `{"a":3}`, "late"), bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, len(site.store.Commits("public/content.json", "main")), 2)
}

func TestPublishUpstreamFailures(t *testing.T) {
	site := newTestSite(t, nil)

	site.store.FailNext("read", &store.UpstreamError{Op: "read", Status: http.StatusUnauthorized, Message: "Bad credentials", Err: store.ErrUnauthorized})
	resp, body := site.request(http.MethodPost, "/api/content", publishBody(t, `{"a":2}`, ""), bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusUnauthorized)
	assert.Equal(t, decodeError(t, body), "Failed to load existing content: Bad credentials")

	site.store.FailNext("write", &store.UpstreamError{Op: "write", Message: "connection reset", Err: store.ErrTransient})
	resp, body = site.request(http.MethodPost, "/api/content", publishBody(t, `{"a":2}`, ""), bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusBadGateway)
	assert.Equal(t, decodeError(t, body), "Failed to update content: connection reset")
}

func TestForgeAuthFailureIsNotAnAdminChallenge(t *testing.T) {
	site := newTestSite(t, func(cfg *config.Config) {
		cfg.Admin.Token = ""
		cfg.Admin.InsecureOpen = true
	})

	site.store.FailNext("read", &store.UpstreamError{Op: "read", Status: http.StatusUnauthorized, Message: "Bad credentials", Err: store.ErrUnauthorized})
	resp, body := site.get("/api/content")
	assert.Equal(t, resp.StatusCode, http.StatusUnauthorized)
	assert.Equal(t, resp.Header.Get("WWW-Authenticate"), "")
	assert.Equal(t, decodeError(t, body), "Failed to load existing content: Bad credentials")

	// the editor only sends the operator to the login page on the admin challenge
	resp, body = site.get("/admin")
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, strings.Contains(body, `realm="admin"`), true)
}

func TestAdminChallengeOnMissingCredentials(t *testing.T) {
	site := newTestSite(t, nil)

	resp, _ := site.get("/api/content")
	assert.Equal(t, resp.StatusCode, http.StatusUnauthorized)
	assert.Equal(t, resp.Header.Get("WWW-Authenticate"), `Bearer realm="admin"`)
}

func TestPublishMisconfiguredStore(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "public/content.json", `{}`)
	cfg := config.Default()
	cfg.SiteDir = dir
	cfg.Admin.Token = adminToken

	_, err := store.New(cfg.Store)
	var configErr *store.ConfigError
	assert.Equal(t, errors.As(err, &configErr), true)

	publisher := publish.NewMisconfigured(err, publish.Config{Path: cfg.Store.Path, Branch: cfg.Store.Branch})
	site := startTestSite(t, dir, cfg, nil, publisher)

	// the configuration problem wins over a bad body
	resp, body := site.request(http.MethodPost, "/api/content", `{"content":"{not json"}`, bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusInternalServerError)
	assert.Equal(t, decodeError(t, body), "Missing GITHUB_TOKEN or GITHUB_REPO environment variables.")

	resp, _ = site.request(http.MethodGet, "/api/content", "", bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusInternalServerError)

	// the public site stays up
	resp, _ = site.get("/content.json")
	assert.Equal(t, resp.StatusCode, http.StatusOK)
}

func TestDiffPreview(t *testing.T) {
	site := newTestSite(t, nil)

	resp, body := site.request(http.MethodPost, "/api/content/diff", publishBody(t, `{"a":2,"b":true}`, ""), bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	var diff contentproto.DiffResponse
	assert.Equal(t, json.Unmarshal([]byte(body), &diff), nil)
	assert.Equal(t, diff.Changed, true)
	assert.Equal(t, diff.SHA, utils.CalculateHash([]byte(`{"a":1}`)))
	assert.Equal(t, len(diff.Operations), 2)

	resp, body = site.request(http.MethodPost, "/api/content/diff", publishBody(t, `{ "a": 1 }`, ""), bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, json.Unmarshal([]byte(body), &diff), nil)
	assert.Equal(t, diff.Changed, false)
	assert.Equal(t, len(diff.Operations), 0)

	_, writes := site.store.Calls()
	assert.Equal(t, writes, 0)
}

func TestDeployHookRunsAfterPublish(t *testing.T) {
	hits := make(chan string, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- r.Method
	}))
	defer hook.Close()

	site := newTestSite(t, func(cfg *config.Config) {
		cfg.Publish.DeployHookURL = hook.URL
	})

	resp, _ := site.request(http.MethodPost, "/api/content", publishBody(t, `{"a":2}`, ""), bearer(adminToken))
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	select {
	case method := <-hits:
		assert.Equal(t, method, http.MethodPost)
	case <-time.After(5 * time.Second):
		t.Fatal("deploy hook was not called")
	}

	// the hook url is never handed to the browser
	_, page := site.request(http.MethodGet, "/admin", "", bearer(adminToken))
	assert.Equal(t, strings.Contains(page, hook.URL), false)
	assert.Equal(t, strings.Contains(page, adminToken), false)
}

func TestContentDocument(t *testing.T) {
	site := newTestSite(t, nil)

	resp, body := site.get("/content.json")
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, body, `{"a":1}`)
	assert.Equal(t, resp.Header.Get("Version"), utils.QuoteVersion(utils.CalculateHash([]byte(`{"a":1}`))))

	// a publish updates the public copy right away
	site.request(http.MethodPost, "/api/content", publishBody(t, `{"a":2}`, ""), bearer(adminToken))
	_, body = site.get("/content.json")
	assert.Equal(t, body, `{"a":2}`)
}

// readBlock reads one message of a subscription stream
func readBlock(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var block strings.Builder
	for !strings.HasSuffix(block.String(), "\r\n\r\n\r\n\r\n\r\n") {
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("stream ended after %q: %v", block.String(), err)
		}
		block.WriteByte(b)
	}
	return block.String()
}

func TestContentSubscription(t *testing.T) {
	site := newTestSite(t, nil)
	v1 := utils.CalculateHash([]byte(`{"a":1}`))
	v2 := utils.CalculateHash([]byte(`{"a":2}`))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, site.http.URL+"/content.json", nil)
	req.Header.Set("Subscribe", "true")
	resp, err := site.client.Do(req)
	assert.Equal(t, err, nil)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, 209)

	stream := bufio.NewReader(resp.Body)
	initial := readBlock(t, stream)
	assert.Equal(t, strings.Contains(initial, "Version: \""+v1+"\"\r\n"), true)
	assert.Equal(t, strings.Contains(initial, "\r\n\r\n{\"a\":1}"), true)
	assert.Equal(t, site.server.hub.Count(), 1)

	resp2, _ := site.request(http.MethodPost, "/api/content", publishBody(t, `{"a":2}`, ""), bearer(adminToken))
	assert.Equal(t, resp2.StatusCode, http.StatusOK)

	update := readBlock(t, stream)
	assert.Equal(t, strings.Contains(update, "Version: \""+v2+"\"\r\n"), true)
	assert.Equal(t, strings.Contains(update, "Parents: \""+v1+"\"\r\n"), true)
	assert.Equal(t, strings.Contains(update, "Content-Range: replace /a\r\n\r\n2"), true)

	// republishing the same document sends nothing new; the next change does
	site.server.hub.Update([]byte(`{"a":2}`))
	site.server.hub.Update([]byte(`{"a":2,"b":[1]}`))
	update = readBlock(t, stream)
	assert.Equal(t, strings.Contains(update, "Content-Range: add /b"), true)

	cancel()
	deadline := time.Now().Add(5 * time.Second)
	for site.server.hub.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, site.server.hub.Count(), 0)
}
