package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestLog(t *testing.T) AuditLog {
	t.Helper()
	log, err := NewSQLite(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := log.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return log
}

func TestAuditLogRecordAndRecent(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	if err := log.Record(ctx, "+963980907351", EventCodeRequested, ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := log.Record(ctx, "+963980907351", EventSignedIn, "session authorized"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	events, err := log.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	// Newest first.
	if events[0].Kind != EventSignedIn {
		t.Errorf("Expected newest event %s, got %s", EventSignedIn, events[0].Kind)
	}
	if events[1].Kind != EventCodeRequested {
		t.Errorf("Expected oldest event %s, got %s", EventCodeRequested, events[1].Kind)
	}
	if events[0].Detail != "session authorized" {
		t.Errorf("Expected detail preserved, got %q", events[0].Detail)
	}
}

func TestAuditLogRecentLimit(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := log.Record(ctx, "+963980907351", EventSignInFailed, "invalid code"); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	events, err := log.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("Expected 3 events, got %d", len(events))
	}
}

func TestAuditLogRecentEmpty(t *testing.T) {
	log := newTestLog(t)

	events, err := log.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events, got %d", len(events))
	}
}
