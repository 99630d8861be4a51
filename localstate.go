package gigsync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// LocalState is the small piece of client state kept on disk between runs:
// the auth token and the jobs a guest has already viewed.
type LocalState struct {
	Token       string            `toml:"token"`
	ViewerID    string            `toml:"viewer_id"`
	ViewedJobs  []string          `toml:"viewed_jobs"`
	ViewedTimes map[string]string `toml:"viewed_at,omitempty"`

	path string
	mu   sync.Mutex
}

// LoadLocalState reads the state file at path. A missing file yields an
// empty state that will be created on Save.
func LoadLocalState(path string) (*LocalState, error) {
	st := &LocalState{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return nil, fmt.Errorf("cannot read local state: %w", err)
	}
	if err := toml.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("cannot parse local state: %w", err)
	}
	return st, nil
}

// Path returns the file the state is saved to.
func (s *LocalState) Path() string {
	return s.path
}

// MarkJobViewed records a job view. It returns true only the first time a
// job id is seen, so callers count each guest view once.
func (s *LocalState) MarkJobViewed(jobID string) bool {
	if jobID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.ViewedJobs {
		if id == jobID {
			return false
		}
	}
	s.ViewedJobs = append(s.ViewedJobs, jobID)
	if s.ViewedTimes == nil {
		s.ViewedTimes = make(map[string]string)
	}
	s.ViewedTimes[jobID] = time.Now().UTC().Format(time.RFC3339)
	return true
}

// HasViewedJob reports whether jobID was already recorded.
func (s *LocalState) HasViewedJob(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.ViewedJobs {
		if id == jobID {
			return true
		}
	}
	return false
}

// Save writes the state back to its file with owner-only permissions.
func (s *LocalState) Save() error {
	if s.path == "" {
		return errors.New("local state has no path")
	}
	s.mu.Lock()
	data, err := toml.Marshal(s)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("cannot marshal local state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("cannot create state directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write local state: %w", err)
	}
	return nil
}
