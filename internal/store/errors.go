package store

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("revision conflict")
	ErrTransient    = errors.New("transient upstream failure")
)

// UpstreamError is returned for every failed read or write. Status is the HTTP
// status reported by the backend, or 0 when none was received.
type UpstreamError struct {
	Op      string // "read" or "write"
	Status  int
	Message string // detail as reported by the backend
	Err     error  // one of the sentinels above, or nil for an unclassified failure
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed (%d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ConfigError reports a backend that cannot be built from the given configuration
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// classify maps an HTTP status to a sentinel error
func classify(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusConflict:
		return ErrConflict
	case status >= 500:
		return ErrTransient
	}
	return nil
}

// StatusOf returns the HTTP status carried by err, or 0
func StatusOf(err error) int {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status
	}
	return 0
}
