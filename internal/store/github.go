package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"
)

const (
	githubAPIVersion = "2022-11-28"
	acceptJSON       = "application/vnd.github+json"
	acceptRaw        = "application/vnd.github.raw+json"

	// maxResponseSize bounds what is read from the forge for a single call
	maxResponseSize = 32 << 20
)

// contentsResponse is the subset of the contents API answer the store needs
type contentsResponse struct {
	Type     string `json:"type"`
	SHA      string `json:"sha"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type updateRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

type updateResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
		Message string `json:"message"`
	} `json:"commit"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// GitHubStore speaks the GitHub contents API
type GitHubStore struct {
	apiURL      string
	repo        string
	token       string
	client      *http.Client
	timeout     time.Duration
	insecureTLS bool
}

// GitHubOption configures optional GitHubStore behavior
type GitHubOption func(*GitHubStore)

// WithHTTPClient replaces the HTTP client used for forge calls
func WithHTTPClient(client *http.Client) GitHubOption {
	return func(s *GitHubStore) {
		s.client = client
	}
}

// WithTimeout bounds every forge call
func WithTimeout(timeout time.Duration) GitHubOption {
	return func(s *GitHubStore) {
		s.timeout = timeout
	}
}

// WithInsecureTLS disables certificate verification, for forges behind self-signed certificates
func WithInsecureTLS() GitHubOption {
	return func(s *GitHubStore) {
		s.insecureTLS = true
	}
}

// NewGitHubStore creates a store for repo ("owner/repo") on the forge at apiURL
func NewGitHubStore(apiURL, repo, token string, opts ...GitHubOption) (*GitHubStore, error) {
	if token == "" || repo == "" {
		return nil, &ConfigError{Message: "Missing GITHUB_TOKEN or GITHUB_REPO environment variables."}
	}
	if _, err := url.ParseRequestURI(apiURL); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("invalid forge API URL %q: %v", apiURL, err)}
	}

	s := &GitHubStore{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		repo:   repo,
		token:  token,
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}

	// the client passed in may be shared, so settings go on a copy
	client := *s.client
	if s.timeout > 0 {
		client.Timeout = s.timeout
	}
	if s.insecureTLS {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		client.Transport = transport
	}
	s.client = &client
	return s, nil
}

// contentsURL builds the contents API URL of path, escaping every segment
func (s *GitHubStore) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/repos/%s/contents/%s", s.apiURL, s.repo, strings.Join(segments, "/"))
}

func (s *GitHubStore) newRequest(ctx context.Context, method, target, accept string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and returns the status and body. Transport failures come back
// as a transient UpstreamError.
func (s *GitHubStore) do(op string, req *http.Request) (int, []byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, &UpstreamError{Op: op, Message: err.Error(), Err: ErrTransient}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, &UpstreamError{Op: op, Status: resp.StatusCode, Message: err.Error(), Err: ErrTransient}
	}
	return resp.StatusCode, body, nil
}

// ReadBlob fetches the document and its blob SHA
func (s *GitHubStore) ReadBlob(ctx context.Context, path, branch string) (*Blob, error) {
	target := s.contentsURL(path) + "?ref=" + url.QueryEscape(branch)

	req, err := s.newRequest(ctx, http.MethodGet, target, acceptJSON, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create read request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	status, body, err := s.do("read", req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, upstreamError("read", status, body)
	}

	var payload contentsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &UpstreamError{Op: "read", Status: status, Message: fmt.Sprintf("invalid contents response: %v", err)}
	}
	if payload.Type != "" && payload.Type != "file" {
		return nil, &UpstreamError{Op: "read", Status: status, Message: fmt.Sprintf("%s is a %s, not a file", path, payload.Type)}
	}

	blob := &Blob{Path: path, Branch: branch, SHA: payload.SHA}

	switch payload.Encoding {
	case "base64":
		// the API wraps base64 content at 60 columns
		content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
		if err != nil {
			return nil, &UpstreamError{Op: "read", Status: status, Message: fmt.Sprintf("invalid base64 content: %v", err)}
		}
		blob.Content = content
	default:
		// files over 1 MB come back without inline content
		glog.V(1).Infof("Content of %s not inlined (encoding %q), fetching raw", path, payload.Encoding)
		content, err := s.readRaw(ctx, target)
		if err != nil {
			return nil, err
		}
		blob.Content = content
	}

	return blob, nil
}

// readRaw fetches the file body through the raw media type
func (s *GitHubStore) readRaw(ctx context.Context, target string) ([]byte, error) {
	req, err := s.newRequest(ctx, http.MethodGet, target, acceptRaw, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create raw read request: %w", err)
	}

	status, body, err := s.do("read", req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, upstreamError("read", status, body)
	}
	return body, nil
}

// WriteBlob commits req.Content conditioned on req.SHA
func (s *GitHubStore) WriteBlob(ctx context.Context, req WriteRequest) (*Commit, error) {
	payload, err := json.Marshal(updateRequest{
		Message: req.Message,
		Content: base64.StdEncoding.EncodeToString(req.Content),
		SHA:     req.SHA,
		Branch:  req.Branch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode write request: %w", err)
	}

	httpReq, err := s.newRequest(ctx, http.MethodPut, s.contentsURL(req.Path), acceptJSON, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create write request: %w", err)
	}

	status, body, err := s.do("write", httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, upstreamError("write", status, body)
	}

	var result updateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		// the commit exists at this point, only the acknowledgement is unreadable
		glog.Warningf("Unreadable write response for %s: %v", req.Path, err)
		return &Commit{Message: req.Message}, nil
	}

	return &Commit{
		SHA:       result.Content.SHA,
		CommitSHA: result.Commit.SHA,
		URL:       result.Commit.HTMLURL,
		Message:   req.Message,
	}, nil
}

// upstreamError builds the error for a non-success answer, preferring the
// forge's own message over the raw body
func upstreamError(op string, status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var payload errorResponse
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		message = payload.Message
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &UpstreamError{Op: op, Status: status, Message: message, Err: classify(status)}
}
