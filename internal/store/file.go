package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/glog"

	"vanillasomethin/sitecms/internal/utils"
)

// FileStore commits documents into a local checkout. It serves a single
// branch; markers are git blob SHAs of the file bytes.
type FileStore struct {
	mu     sync.Mutex
	root   string
	branch string
}

// NewFileStore creates a FileStore rooted at root serving branch
func NewFileStore(root, branch string) (*FileStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("store root %s: %v", root, err)}
	}
	if !info.IsDir() {
		return nil, &ConfigError{Message: fmt.Sprintf("store root %s is not a directory", root)}
	}
	return &FileStore{root: root, branch: branch}, nil
}

// resolve maps a repository path to a file inside root
func (s *FileStore) resolve(op, path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &UpstreamError{Op: op, Status: http.StatusNotFound, Message: fmt.Sprintf("path %s is outside the repository", path), Err: ErrNotFound}
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FileStore) checkBranch(op, branch string) error {
	if branch != s.branch {
		return &UpstreamError{Op: op, Status: http.StatusNotFound, Message: fmt.Sprintf("No commit found for the ref %s", branch), Err: ErrNotFound}
	}
	return nil
}

// ReadBlob reads the document from disk
func (s *FileStore) ReadBlob(ctx context.Context, path, branch string) (*Blob, error) {
	if err := s.checkBranch("read", branch); err != nil {
		return nil, err
	}
	filePath, err := s.resolve("read", path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &UpstreamError{Op: "read", Status: http.StatusNotFound, Message: "Not Found", Err: ErrNotFound}
	}
	if err != nil {
		return nil, &UpstreamError{Op: "read", Message: err.Error(), Err: ErrTransient}
	}

	return &Blob{Path: path, Branch: branch, Content: data, SHA: utils.CalculateHash(data)}, nil
}

// WriteBlob replaces the document atomically if req.SHA matches the file on disk
func (s *FileStore) WriteBlob(ctx context.Context, req WriteRequest) (*Commit, error) {
	if err := s.checkBranch("write", req.Branch); err != nil {
		return nil, err
	}
	filePath, err := s.resolve("write", req.Path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := ""
	if data, err := os.ReadFile(filePath); err == nil {
		current = utils.CalculateHash(data)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, &UpstreamError{Op: "write", Message: err.Error(), Err: ErrTransient}
	}

	if req.SHA != current {
		return nil, &UpstreamError{
			Op:      "write",
			Status:  http.StatusConflict,
			Message: fmt.Sprintf("%s does not match %s", req.Path, req.SHA),
			Err:     ErrConflict,
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, &UpstreamError{Op: "write", Message: err.Error(), Err: ErrTransient}
	}

	if err := writeFileAtomic(filePath, req.Content); err != nil {
		return nil, &UpstreamError{Op: "write", Message: err.Error(), Err: ErrTransient}
	}

	sha := utils.CalculateHash(req.Content)
	glog.Infof("Committed %s on %s (%s): %s", req.Path, req.Branch, sha, req.Message)

	return &Commit{SHA: sha, CommitSHA: utils.GenerateRandomID(), Message: req.Message}, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".content-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
