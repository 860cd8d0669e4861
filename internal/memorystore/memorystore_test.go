package memorystore

import (
	"context"
	"testing"
)

func TestLongTermReadWriteRoundTrip(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	text, err := s.ReadLongTerm(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty long-term memory initially, got %q", text)
	}

	if err := s.WriteLongTerm(ctx, "user prefers concise replies"); err != nil {
		t.Fatalf("write: %v", err)
	}
	text, err = s.ReadLongTerm(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if text != "user prefers concise replies" {
		t.Fatalf("unexpected long-term memory: %q", text)
	}

	if err := s.WriteLongTerm(ctx, "updated note"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	text, err = s.ReadLongTerm(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if text != "updated note" {
		t.Fatalf("expected overwrite to replace text, got %q", text)
	}
}

func TestAppendTodayAndReadRecent(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.AppendToday(ctx, "reminded user about meeting"); err != nil {
		t.Fatalf("append today: %v", err)
	}
	if err := s.AppendToday(ctx, "set volume to 30%"); err != nil {
		t.Fatalf("append today: %v", err)
	}

	recent, err := s.ReadRecent(ctx, 1)
	if err != nil {
		t.Fatalf("read recent: %v", err)
	}
	if recent == "" {
		t.Fatal("expected non-empty recent notes")
	}
}

func TestReadRecentZeroDaysIsEmpty(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.AppendToday(ctx, "note")

	recent, err := s.ReadRecent(ctx, 0)
	if err != nil {
		t.Fatalf("read recent: %v", err)
	}
	if recent != "" {
		t.Fatalf("expected empty for days<=0, got %q", recent)
	}
}
