package store

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"vanillasomethin/sitecms/internal/utils"
)

type memoryEntry struct {
	content []byte
	sha     string
}

// MemoryStore keeps documents in process. It enforces the same revision
// marker check as the forge and records every commit.
type MemoryStore struct {
	mu      sync.Mutex
	blobs   map[string]memoryEntry
	commits map[string][]Commit
	failing map[string]error
	reads   int
	writes  int
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:   make(map[string]memoryEntry),
		commits: make(map[string][]Commit),
		failing: make(map[string]error),
	}
}

func memoryKey(path, branch string) string {
	return branch + ":" + path
}

// Put commits content outside of the conditional write path, the way another
// editor or a direct push would, and returns the new marker
func (m *MemoryStore) Put(path, branch string, content []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.commitLocked(path, branch, content, "external commit").SHA
}

// FailNext makes the next call of op ("read" or "write") return err
func (m *MemoryStore) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[op] = err
}

// Commits returns the commits made to path on branch, oldest first
func (m *MemoryStore) Commits(path, branch string) []Commit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Commit(nil), m.commits[memoryKey(path, branch)]...)
}

// Calls returns how many reads and writes reached the store
func (m *MemoryStore) Calls() (reads, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.writes
}

// ReadBlob returns the stored document
func (m *MemoryStore) ReadBlob(ctx context.Context, path, branch string) (*Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if err := m.takeFailure("read"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &UpstreamError{Op: "read", Message: err.Error(), Err: ErrTransient}
	}

	entry, ok := m.blobs[memoryKey(path, branch)]
	if !ok {
		return nil, &UpstreamError{Op: "read", Status: http.StatusNotFound, Message: "Not Found", Err: ErrNotFound}
	}

	return &Blob{
		Path:    path,
		Branch:  branch,
		Content: append([]byte(nil), entry.content...),
		SHA:     entry.sha,
	}, nil
}

// WriteBlob commits req.Content if req.SHA is the current marker
func (m *MemoryStore) WriteBlob(ctx context.Context, req WriteRequest) (*Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	if err := m.takeFailure("write"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &UpstreamError{Op: "write", Message: err.Error(), Err: ErrTransient}
	}

	current := m.blobs[memoryKey(req.Path, req.Branch)]
	if req.SHA != current.sha {
		return nil, &UpstreamError{
			Op:      "write",
			Status:  http.StatusConflict,
			Message: fmt.Sprintf("%s does not match %s", req.Path, req.SHA),
			Err:     ErrConflict,
		}
	}

	commit := m.commitLocked(req.Path, req.Branch, req.Content, req.Message)
	return &commit, nil
}

func (m *MemoryStore) commitLocked(path, branch string, content []byte, message string) Commit {
	key := memoryKey(path, branch)
	sha := utils.CalculateHash(content)
	m.blobs[key] = memoryEntry{content: append([]byte(nil), content...), sha: sha}

	commit := Commit{
		SHA:       sha,
		CommitSHA: utils.GenerateRandomID(),
		Message:   message,
	}
	m.commits[key] = append(m.commits[key], commit)
	return commit
}

func (m *MemoryStore) takeFailure(op string) error {
	err, ok := m.failing[op]
	if !ok {
		return nil
	}
	delete(m.failing, op)
	return err
}
