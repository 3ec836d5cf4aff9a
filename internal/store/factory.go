package store

import (
	"fmt"

	"vanillasomethin/sitecms/internal/config"
)

// New creates a Store based on the configured backend.
//
// Supported backends:
//
//	"github" - the GitHub contents API (default)
//	"file"   - a local checkout at cfg.Root, single branch
//	"memory" - in-process, for tests and demos
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendGitHub, "":
		opts := []GitHubOption{WithTimeout(cfg.Timeout)}
		if cfg.InsecureVerify {
			opts = append(opts, WithInsecureTLS())
		}
		s, err := NewGitHubStore(cfg.APIURL, cfg.Repo, cfg.Token, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendFile:
		s, err := NewFileStore(cfg.Root, cfg.Branch)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, &ConfigError{Message: fmt.Sprintf("unknown store backend: %q (supported: github, file, memory)", cfg.Backend)}
	}
}
