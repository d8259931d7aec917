package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStorePathStripsPlus(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	path := s.Path("+963980907351")
	if filepath.Base(path) != "963980907351.session" {
		t.Errorf("Expected artifact name 963980907351.session, got %s", filepath.Base(path))
	}
}

func TestStoreLoadMissing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if _, err := s.Load("+963980907351"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStoreLoadDeletesEmptyArtifact(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	phone := "+963980907351"
	if err := os.WriteFile(s.Path(phone), nil, 0o600); err != nil {
		t.Fatalf("Failed to create empty artifact: %v", err)
	}

	if _, err := s.Load(phone); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty artifact, got %v", err)
	}
	if _, err := os.Stat(s.Path(phone)); !os.IsNotExist(err) {
		t.Errorf("Expected empty artifact to be deleted, stat err = %v", err)
	}
}

func TestStoreLoadValidArtifact(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	phone := "+963980907351"
	blob := make([]byte, 1400)
	if err := os.WriteFile(s.Path(phone), blob, 0o600); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}

	rec, err := s.Load(phone)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec.Size != 1400 {
		t.Errorf("Expected size 1400, got %d", rec.Size)
	}
	if rec.Path != s.Path(phone) {
		t.Errorf("Expected path %s, got %s", s.Path(phone), rec.Path)
	}
}

func TestStoreDeleteMissingIsNonFatal(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	// Deleting an absent artifact must not panic or error out.
	s.Delete("+963980907351")
}
