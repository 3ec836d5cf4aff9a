// Package editor holds the client-side edit session: load the committed
// document, track edits and their validity, and save through the publish
// endpoint with a bounded, cancellable request.
package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"vanillasomethin/sitecms/internal/publish"
	"vanillasomethin/sitecms/pkg/contentproto"
)

// State of an edit session
type State int

const (
	StateLoading State = iota
	StateReady
	StateLoadError
	StateEditing
	StateValidationError
	StateSaving
	StateSaved
	StateSaveError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateLoadError:
		return "load_error"
	case StateEditing:
		return "editing"
	case StateValidationError:
		return "validation_error"
	case StateSaving:
		return "saving"
	case StateSaved:
		return "saved"
	case StateSaveError:
		return "save_error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Messages shown to the operator
const (
	DefaultMessage = "Update content.json from admin panel"

	MsgEmpty       = "Content cannot be empty."
	MsgInvalidJSON = "Content must be valid JSON."
	MsgValid       = "JSON looks valid."

	StatusLoading = "Loading content.json..."
	StatusReady   = "Ready"
	StatusError   = "Error"
	StatusSaving  = "Saving to GitHub..."
	StatusSaved   = "Saved to GitHub"
)

// DefaultSaveTimeout bounds a save when no other timeout is configured
const DefaultSaveTimeout = 30 * time.Second

var (
	ErrNotLoaded    = errors.New("content has not been loaded")
	ErrSaveInFlight = errors.New("a save is already in progress")
)

// Backend is the server the session loads from and publishes to
type Backend interface {
	Load(ctx context.Context) (*contentproto.ContentResponse, error)
	Publish(ctx context.Context, req contentproto.PublishRequest) error
}

// View is a snapshot of the session for rendering
type View struct {
	State           State
	Buffer          string
	Message         string
	SHA             string
	ValidationError string
	Status          string
	Error           string
	SaveDisabled    bool
}

// SessionOption configures optional Session behavior
type SessionOption func(*Session)

// WithSaveTimeout bounds every save request
func WithSaveTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.saveTimeout = timeout
	}
}

// Session is one edit session. It is safe for concurrent use; the network
// calls run without holding the lock.
type Session struct {
	mu            sync.Mutex
	backend       Backend
	saveTimeout   time.Duration
	state         State
	buffer        string
	message       string
	sha           string
	loaded        bool
	saving        bool
	validationErr string
	status        string
	lastErr       string
	cancel        context.CancelFunc
}

// NewSession creates a session in the Loading state. Call Load to fetch the document.
func NewSession(backend Backend, opts ...SessionOption) *Session {
	s := &Session{
		backend:     backend,
		saveTimeout: DefaultSaveTimeout,
		state:       StateLoading,
		message:     DefaultMessage,
		status:      StatusLoading,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidationMessage returns the operator-facing validation error for text, or "" when valid
func ValidationMessage(text string) string {
	if strings.TrimSpace(text) == "" {
		return MsgEmpty
	}
	if err := publish.Validate(text); err != nil {
		return MsgInvalidJSON
	}
	return ""
}

// Load fetches the committed document and pretty-prints it into the buffer
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInFlight
	}
	s.state = StateLoading
	s.status = StatusLoading
	s.lastErr = ""
	// the buffer may no longer match the committed document
	s.loaded = false
	s.mu.Unlock()

	resp, err := s.backend.Load(ctx)

	var pretty bytes.Buffer
	if err == nil {
		if indentErr := json.Indent(&pretty, resp.Content, "", "  "); indentErr != nil {
			err = fmt.Errorf("loaded content is not valid JSON: %w", indentErr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateLoadError
		s.status = StatusError
		s.lastErr = err.Error()
		return err
	}

	s.buffer = pretty.String()
	s.sha = resp.SHA
	s.loaded = true
	s.validationErr = ValidationMessage(s.buffer)
	s.state = StateReady
	s.status = StatusReady
	return nil
}

// Edit replaces the buffer and revalidates it synchronously
func (s *Session) Edit(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotLoaded
	}
	if s.saving {
		return ErrSaveInFlight
	}

	s.buffer = text
	s.validationErr = ValidationMessage(text)
	if s.validationErr != "" {
		s.state = StateValidationError
	} else {
		s.state = StateEditing
	}
	return nil
}

// SetMessage sets the commit message used by the next save
func (s *Session) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// CanSave reports whether Save would submit
func (s *Session) CanSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canSaveLocked()
}

func (s *Session) canSaveLocked() bool {
	return s.loaded && !s.saving && s.validationErr == ""
}

// Save submits the buffer. It returns once the server answered, the save
// timeout elapsed or Cancel was called.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInFlight
	}
	if s.validationErr != "" {
		err := errors.New(s.validationErr)
		s.state = StateValidationError
		s.status = StatusError
		s.lastErr = s.validationErr
		s.mu.Unlock()
		return err
	}

	saveCtx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	s.cancel = cancel
	s.saving = true
	s.state = StateSaving
	s.status = StatusSaving
	s.lastErr = ""
	req := contentproto.PublishRequest{Content: s.buffer, Message: s.message}
	s.mu.Unlock()

	err := s.backend.Publish(saveCtx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()
	s.cancel = nil
	s.saving = false

	if err != nil {
		switch {
		case errors.Is(saveCtx.Err(), context.DeadlineExceeded):
			err = fmt.Errorf("Save timed out after %s.", s.saveTimeout)
		case errors.Is(saveCtx.Err(), context.Canceled):
			err = errors.New("Save cancelled.")
		}
		s.state = StateSaveError
		s.status = StatusError
		s.lastErr = err.Error()
		return err
	}

	s.state = StateSaved
	s.status = StatusSaved
	return nil
}

// Cancel aborts an in-flight save. It reports whether there was one.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// View returns a snapshot of the session
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		State:           s.state,
		Buffer:          s.buffer,
		Message:         s.message,
		SHA:             s.sha,
		ValidationError: s.validationErr,
		Status:          s.status,
		Error:           s.lastErr,
		SaveDisabled:    !s.canSaveLocked(),
	}
}
