package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"vanillasomethin/sitecms/pkg/contentproto"
)

// ResponseError is a non-2xx answer from the server; Message is shown verbatim
type ResponseError struct {
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	return e.Message
}

// HTTPBackend talks to the site server's content API
type HTTPBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPBackend creates a backend for the server at baseURL authenticating
// with the admin token
func NewHTTPBackend(baseURL, token string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPBackend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

func (b *HTTPBackend) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Load fetches the committed document
func (b *HTTPBackend) Load(ctx context.Context) (*contentproto.ContentResponse, error) {
	req, err := b.newRequest(ctx, http.MethodGet, "/api/content", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp, "Failed to load content.json (%d)")
	}

	var content contentproto.ContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}
	return &content, nil
}

// Publish submits a publish request
func (b *HTTPBackend) Publish(ctx context.Context, publishReq contentproto.PublishRequest) error {
	return b.post(ctx, "/api/content", publishReq, nil)
}

// Diff asks the server which operations a publish would apply
func (b *HTTPBackend) Diff(ctx context.Context, publishReq contentproto.PublishRequest) (*contentproto.DiffResponse, error) {
	var diff contentproto.DiffResponse
	if err := b.post(ctx, "/api/content/diff", publishReq, &diff); err != nil {
		return nil, err
	}
	return &diff, nil
}

func (b *HTTPBackend) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := b.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp, "Save failed (%d)")
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// responseError prefers the server's {error} message over the fallback
func responseError(resp *http.Response, fallback string) error {
	var payload contentproto.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return &ResponseError{Status: resp.StatusCode, Message: payload.Error}
	}
	return &ResponseError{Status: resp.StatusCode, Message: fmt.Sprintf(fallback, resp.StatusCode)}
}
