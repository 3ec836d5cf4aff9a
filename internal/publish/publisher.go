// Package publish validates edited content and commits it through a store
// with a read-then-conditional-write.
package publish

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/golang/glog"

	"vanillasomethin/sitecms/internal/store"
	"vanillasomethin/sitecms/pkg/contentproto"
)

// Config is fixed at construction
type Config struct {
	Path           string // document path within the repository
	Branch         string
	DefaultMessage string
}

// Result describes a committed publish
type Result struct {
	Previous *store.Blob
	Commit   *store.Commit
	Content  []byte
	Message  string
}

// Preview is what a publish would change, computed without writing
type Preview struct {
	Current    *store.Blob
	Operations []contentproto.Operation
}

// Publisher orchestrates one publish per call and holds no per-request state
type Publisher struct {
	store    store.Store
	cfg      Config
	cfgError error
}

// New creates a Publisher writing through s
func New(s store.Store, cfg Config) *Publisher {
	if cfg.DefaultMessage == "" {
		cfg.DefaultMessage = contentproto.DefaultCommitMessage
	}
	return &Publisher{store: s, cfg: cfg}
}

// NewMisconfigured creates a Publisher that answers every call with a
// ConfigurationError carrying cause, so the server can start and report the
// problem per request
func NewMisconfigured(cause error, cfg Config) *Publisher {
	p := New(nil, cfg)
	p.cfgError = cause
	return p
}

// Config returns the publisher's configuration
func (p *Publisher) Config() Config {
	return p.cfg
}

// Validate checks that content is a non-empty, syntactically valid JSON text
func Validate(content string) error {
	if content == "" {
		return &ValidationError{Reason: ReasonEmpty, Message: "Content is required."}
	}
	if !json.Valid([]byte(content)) {
		return &ValidationError{Reason: ReasonInvalidJSON, Message: "Content must be valid JSON."}
	}
	return nil
}

// Ready reports the configuration problem every call would fail with, if any
func (p *Publisher) Ready() error {
	return p.checkConfigured()
}

func (p *Publisher) checkConfigured() error {
	if p.cfgError != nil {
		return &ConfigurationError{Message: p.cfgError.Error(), Err: p.cfgError}
	}
	if p.store == nil {
		return &ConfigurationError{Message: "Content store is not configured."}
	}
	return nil
}

// Current reads the committed document and its revision marker
func (p *Publisher) Current(ctx context.Context) (*store.Blob, error) {
	if err := p.checkConfigured(); err != nil {
		return nil, err
	}
	blob, err := p.store.ReadBlob(ctx, p.cfg.Path, p.cfg.Branch)
	if err != nil {
		return nil, &UpstreamError{Stage: StageRead, Err: err}
	}
	return blob, nil
}

// Publish validates req, reads the current marker and writes the new content
// conditioned on it. A conflict is returned as is: the operator reloads and
// resubmits.
func (p *Publisher) Publish(ctx context.Context, req contentproto.PublishRequest) (*Result, error) {
	if err := p.checkConfigured(); err != nil {
		return nil, err
	}
	if err := Validate(req.Content); err != nil {
		return nil, err
	}

	// the marker is read right before the write to keep the race window small
	current, err := p.store.ReadBlob(ctx, p.cfg.Path, p.cfg.Branch)
	if err != nil {
		glog.Errorf("Publish: reading %s@%s failed: %v", p.cfg.Path, p.cfg.Branch, err)
		return nil, &UpstreamError{Stage: StageRead, Err: err}
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = p.cfg.DefaultMessage
	}

	content := []byte(req.Content)
	commit, err := p.store.WriteBlob(ctx, store.WriteRequest{
		Path:    p.cfg.Path,
		Branch:  p.cfg.Branch,
		Content: content,
		SHA:     current.SHA,
		Message: message,
	})
	if err != nil {
		glog.Errorf("Publish: writing %s@%s over %s failed: %v", p.cfg.Path, p.cfg.Branch, current.SHA, err)
		return nil, &UpstreamError{Stage: StageWrite, Err: err}
	}

	glog.Infof("Published %s@%s: %s -> %s (%q)", p.cfg.Path, p.cfg.Branch, current.SHA, commit.SHA, message)
	return &Result{Previous: current, Commit: commit, Content: content, Message: message}, nil
}

// Preview validates req and diffs it against the committed document
func (p *Publisher) Preview(ctx context.Context, req contentproto.PublishRequest) (*Preview, error) {
	if err := p.checkConfigured(); err != nil {
		return nil, err
	}
	if err := Validate(req.Content); err != nil {
		return nil, err
	}

	current, err := p.Current(ctx)
	if err != nil {
		return nil, err
	}

	before := current.Content
	if !json.Valid(before) {
		// a committed document that is not JSON diffs as a whole replacement
		before = []byte("null")
	}
	ops, err := contentproto.Diff(before, []byte(req.Content))
	if err != nil {
		return nil, err
	}
	return &Preview{Current: current, Operations: ops}, nil
}
