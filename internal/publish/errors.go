package publish

import (
	"errors"
	"net/http"

	"vanillasomethin/sitecms/internal/store"
)

// Validation failure reasons
const (
	ReasonMalformed   = "malformed"
	ReasonEmpty       = "empty"
	ReasonInvalidJSON = "invalid_json"
)

// ValidationError rejects a request before any store call
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConfigurationError reports missing deployment configuration
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Stages of a publish
const (
	StageRead  = "read"
	StageWrite = "write"
)

// UpstreamError wraps a store failure with the stage it happened in
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	prefix := "Failed to update content: "
	if e.Stage == StageRead {
		prefix = "Failed to load existing content: "
	}
	var upstream *store.UpstreamError
	if errors.As(e.Err, &upstream) {
		return prefix + upstream.Message
	}
	return prefix + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps a publish error to the status code the client sees.
// Upstream statuses are passed through; failures without one become 502.
func HTTPStatus(err error) int {
	var validation *ValidationError
	var configuration *ConfigurationError
	var upstream *UpstreamError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &configuration):
		return http.StatusInternalServerError
	case errors.As(err, &upstream):
		if status := store.StatusOf(err); status >= 400 {
			return status
		}
		if errors.Is(err, store.ErrConflict) {
			return http.StatusConflict
		}
		if errors.Is(err, store.ErrNotFound) {
			return http.StatusNotFound
		}
		if errors.Is(err, store.ErrUnauthorized) {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
