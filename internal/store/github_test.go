package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"vanillasomethin/sitecms/internal/utils"
)

// fakeForge imitates the contents API for a single repository
type fakeForge struct {
	mu       sync.Mutex
	t        *testing.T
	token    string
	files    map[string][]byte // keyed by branch:path
	inline   bool
	puts     []updateRequest
	lastPath string
}

func newFakeForge(t *testing.T) *fakeForge {
	return &fakeForge{t: t, token: "ghp_test", files: map[string][]byte{}, inline: true}
}

func (f *fakeForge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Bad credentials"}`))
		return
	}
	if r.Header.Get("X-GitHub-Api-Version") != githubAPIVersion {
		f.t.Errorf("missing api version header")
	}

	const prefix = "/repos/studio/site/contents/"
	escaped := r.URL.EscapedPath()
	if !strings.HasPrefix(escaped, prefix) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
		return
	}
	f.lastPath = strings.TrimPrefix(escaped, prefix)
	path := strings.TrimPrefix(r.URL.Path, prefix)

	switch r.Method {
	case http.MethodGet:
		key := r.URL.Query().Get("ref") + ":" + path
		data, ok := f.files[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		if r.Header.Get("Accept") == acceptRaw {
			w.Write(data)
			return
		}
		resp := contentsResponse{Type: "file", SHA: utils.CalculateHash(data), Encoding: "none"}
		if f.inline {
			encoded := base64.StdEncoding.EncodeToString(data)
			// wrap like the real API does
			var wrapped strings.Builder
			for len(encoded) > 60 {
				wrapped.WriteString(encoded[:60] + "\n")
				encoded = encoded[60:]
			}
			wrapped.WriteString(encoded)
			resp.Encoding = "base64"
			resp.Content = wrapped.String()
		}
		json.NewEncoder(w).Encode(resp)

	case http.MethodPut:
		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		f.puts = append(f.puts, req)
		key := req.Branch + ":" + path
		current := ""
		if data, ok := f.files[key]; ok {
			current = utils.CalculateHash(data)
		}
		if req.SHA != current {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"` + path + ` does not match ` + req.SHA + `"}`))
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		f.files[key] = data
		var resp updateResponse
		resp.Content.SHA = utils.CalculateHash(data)
		resp.Commit.SHA = "c0ffee"
		resp.Commit.HTMLURL = "https://github.com/studio/site/commit/c0ffee"
		resp.Commit.Message = req.Message
		json.NewEncoder(w).Encode(resp)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestGitHubStore(t *testing.T, forge http.Handler) (*GitHubStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(forge)
	t.Cleanup(srv.Close)
	s, err := NewGitHubStore(srv.URL, "studio/site", "ghp_test", WithHTTPClient(srv.Client()))
	assert.Equal(t, err, nil)
	return s, srv
}

func TestGitHubReadBlob(t *testing.T) {
	forge := newFakeForge(t)
	doc := []byte(`{"cms":{"team":[{"name":"Ana","bio":"` + strings.Repeat("long bio ", 20) + `"}]}}`)
	forge.files["main:public/content.json"] = doc
	s, _ := newTestGitHubStore(t, forge)

	blob, err := s.ReadBlob(context.Background(), "public/content.json", "main")
	assert.Equal(t, err, nil)
	assert.Equal(t, string(blob.Content), string(doc))
	assert.Equal(t, blob.SHA, utils.CalculateHash(doc))
	assert.Equal(t, blob.Branch, "main")
}

func TestGitHubReadBlobFallsBackToRaw(t *testing.T) {
	forge := newFakeForge(t)
	forge.inline = false
	forge.files["main:public/content.json"] = []byte(`{"big":true}`)
	s, _ := newTestGitHubStore(t, forge)

	blob, err := s.ReadBlob(context.Background(), "public/content.json", "main")
	assert.Equal(t, err, nil)
	assert.Equal(t, string(blob.Content), `{"big":true}`)
}

func TestGitHubReadBlobEscapesPath(t *testing.T) {
	forge := newFakeForge(t)
	forge.files["main:public/site content.json"] = []byte(`{}`)
	s, _ := newTestGitHubStore(t, forge)

	_, err := s.ReadBlob(context.Background(), "public/site content.json", "main")
	assert.Equal(t, err, nil)
	assert.Equal(t, forge.lastPath, "public/site%20content.json")
}

func TestGitHubReadBlobErrors(t *testing.T) {
	forge := newFakeForge(t)
	s, srv := newTestGitHubStore(t, forge)

	_, err := s.ReadBlob(context.Background(), "public/content.json", "main")
	assert.Equal(t, errors.Is(err, ErrNotFound), true)
	assert.Equal(t, StatusOf(err), http.StatusNotFound)
	assert.Equal(t, strings.Contains(err.Error(), "Not Found"), true)

	bad, err := NewGitHubStore(srv.URL, "studio/site", "wrong", WithHTTPClient(srv.Client()))
	assert.Equal(t, err, nil)
	_, err = bad.ReadBlob(context.Background(), "public/content.json", "main")
	assert.Equal(t, errors.Is(err, ErrUnauthorized), true)
	assert.Equal(t, strings.Contains(err.Error(), "Bad credentials"), true)
}

func TestGitHubServerErrorIsTransient(t *testing.T) {
	s, _ := newTestGitHubStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))

	_, err := s.ReadBlob(context.Background(), "public/content.json", "main")
	assert.Equal(t, errors.Is(err, ErrTransient), true)
	assert.Equal(t, StatusOf(err), http.StatusBadGateway)
	assert.Equal(t, strings.Contains(err.Error(), "upstream down"), true)
}

func TestGitHubNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, err := NewGitHubStore(url, "studio/site", "ghp_test")
	assert.Equal(t, err, nil)
	_, err = s.ReadBlob(context.Background(), "public/content.json", "main")
	assert.Equal(t, errors.Is(err, ErrTransient), true)
	assert.Equal(t, StatusOf(err), 0)
}

func TestGitHubWriteBlobEncodesContent(t *testing.T) {
	forge := newFakeForge(t)
	original := []byte(`{"a":1}`)
	forge.files["main:public/content.json"] = original
	s, _ := newTestGitHubStore(t, forge)

	next := "{\n  \"a\": 2,\n  \"studio\": \"Vanilla & Somethin’\"\n}"
	commit, err := s.WriteBlob(context.Background(), WriteRequest{
		Path:    "public/content.json",
		Branch:  "main",
		Content: []byte(next),
		SHA:     utils.CalculateHash(original),
		Message: "Update content.json",
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, commit.SHA, utils.CalculateHash([]byte(next)))
	assert.Equal(t, commit.CommitSHA, "c0ffee")

	assert.Equal(t, len(forge.puts), 1)
	put := forge.puts[0]
	decoded, err := base64.StdEncoding.DecodeString(put.Content)
	assert.Equal(t, err, nil)
	assert.Equal(t, string(decoded), next)
	assert.Equal(t, put.SHA, utils.CalculateHash(original))
	assert.Equal(t, put.Branch, "main")
	assert.Equal(t, put.Message, "Update content.json")
}

func TestGitHubWriteBlobStaleMarkerConflicts(t *testing.T) {
	forge := newFakeForge(t)
	forge.files["main:public/content.json"] = []byte(`{"a":2}`)
	s, _ := newTestGitHubStore(t, forge)

	_, err := s.WriteBlob(context.Background(), WriteRequest{
		Path:    "public/content.json",
		Branch:  "main",
		Content: []byte(`{"a":3}`),
		SHA:     utils.CalculateHash([]byte(`{"a":1}`)),
		Message: "stale",
	})
	assert.Equal(t, errors.Is(err, ErrConflict), true)
	assert.Equal(t, StatusOf(err), http.StatusConflict)
	assert.Equal(t, string(forge.files["main:public/content.json"]), `{"a":2}`)
}

func TestNewGitHubStoreRequiresCredentials(t *testing.T) {
	_, err := NewGitHubStore("https://api.github.com", "", "token")
	var configErr *ConfigError
	assert.Equal(t, errors.As(err, &configErr), true)

	_, err = NewGitHubStore("https://api.github.com", "studio/site", "")
	assert.Equal(t, errors.As(err, &configErr), true)
}

func TestGitHubOptionsLeaveSharedClientAlone(t *testing.T) {
	shared := &http.Client{}

	s, err := NewGitHubStore("https://api.github.com", "studio/site", "ghp_test",
		WithTimeout(5*time.Second), WithHTTPClient(shared), WithInsecureTLS())
	assert.Equal(t, err, nil)
	assert.Equal(t, s.client.Timeout, 5*time.Second)
	assert.NotEqual(t, s.client.Transport, nil)

	assert.Equal(t, shared.Timeout, time.Duration(0))
	assert.Equal(t, shared.Transport, nil)
	assert.Equal(t, http.DefaultClient.Timeout, time.Duration(0))
}
