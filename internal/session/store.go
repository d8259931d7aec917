// Package session provides durable and in-memory session state for managed
// accounts: a filesystem artifact store and a process-wide registry of live
// client handles.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Load when no usable artifact exists for an
// account.
var ErrNotFound = errors.New("session artifact not found")

// minArtifactBytes is the validity threshold for a stored artifact. A
// zero-size file indicates an interrupted write or corruption; resurrecting
// it is unsafe, so Load deletes it and reports NotFound.
const minArtifactBytes = 1

const artifactSuffix = ".session"

// Store persists one serialized session artifact per account under a single
// directory. The artifact content is opaque to the store; it only checks
// existence and integrity.
type Store struct {
	dir string
}

// NewStore creates the session directory if needed and returns a store
// rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the artifact path for an account: the normalized identifier
// with its "+" prefix stripped, under the session directory.
func (s *Store) Path(phone string) string {
	return filepath.Join(s.dir, strings.TrimPrefix(phone, "+")+artifactSuffix)
}

// Record describes a stored artifact that passed the integrity check.
type Record struct {
	Phone string
	Path  string
	Size  int64
}

// Load looks up the artifact for an account. Artifacts below the minimum
// size are deleted and treated as absent.
func (s *Store) Load(phone string) (*Record, error) {
	path := s.Path(phone)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat session artifact: %w", err)
	}

	if info.Size() < minArtifactBytes {
		slog.Warn("Session artifact too small, deleting", "phone", phone, "path", path, "size", info.Size())
		s.Delete(phone)
		return nil, ErrNotFound
	}

	return &Record{Phone: phone, Path: path, Size: info.Size()}, nil
}

// Delete removes the artifact for an account. Deletion failure is logged
// and otherwise ignored; the state machine proceeds as though it succeeded.
func (s *Store) Delete(phone string) {
	path := s.Path(phone)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Error("Failed to delete session artifact", "phone", phone, "path", path, "error", err)
	}
}
