package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DeployHook triggers a site rebuild after a publish. The URL is a server-side
// secret and never leaves the process.
type DeployHook struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewDeployHook creates a hook posting to url, or returns nil when url is empty
func NewDeployHook(url string, timeout time.Duration) *DeployHook {
	if url == "" {
		return nil
	}
	return &DeployHook{url: url, client: &http.Client{}, timeout: timeout}
}

// Trigger posts to the hook URL and reports a non-2xx answer as an error
func (h *DeployHook) Trigger(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create deploy request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to trigger deploy: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("deploy hook answered %d", resp.StatusCode)
	}
	return nil
}
