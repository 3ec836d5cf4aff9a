package contentproto

import "encoding/json"

// DefaultCommitMessage is used when a publish request carries no message
const DefaultCommitMessage = "Update content.json"

// StatusOK is the status value of a successful publish acknowledgement
const StatusOK = "ok"

// PublishRequest is the body of POST /api/content
type PublishRequest struct {
	Content string `json:"content"`           // Content is the full document text, must parse as JSON
	Message string `json:"message,omitempty"` // Message is the commit message, DefaultCommitMessage when empty
}

// PublishResponse acknowledges a committed document
type PublishResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a human-readable failure for any non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
}

// ContentResponse is the body of GET /api/content: the committed document and its revision marker
type ContentResponse struct {
	Path    string          `json:"path"`
	Branch  string          `json:"branch"`
	SHA     string          `json:"sha"`
	Content json.RawMessage `json:"content"`
}

// Operation is a single RFC 6902 patch operation
type Operation struct {
	Op    string          `json:"op"`             // Op is the operation type, e.g. "replace"
	Path  string          `json:"path"`           // Path is the JSON pointer of the target, e.g. "/cms/team/0/name"
	From  string          `json:"from,omitempty"` // From is the source pointer of move and copy operations
	Value json.RawMessage `json:"value,omitempty"`
}

// DiffResponse is the body of POST /api/content/diff
type DiffResponse struct {
	SHA        string      `json:"sha"`     // SHA is the revision marker the diff was computed against
	Changed    bool        `json:"changed"` // Changed is false when the submitted document equals the committed one
	Operations []Operation `json:"operations"`
}
