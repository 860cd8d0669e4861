package sessionstore

import (
	"context"
	"testing"
)

func TestAppendAndHistoryOrdering(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Append(ctx, "c1", "user", "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, "c1", "assistant", "hi there"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, "c2", "user", "other chat"); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := s.History(ctx, "c1", 20)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Text != "hello" {
		t.Fatalf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Role != "assistant" || turns[1].Text != "hi there" {
		t.Fatalf("unexpected second turn: %+v", turns[1])
	}
}

func TestHistoryRespectsCap(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, "c1", "user", "msg"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	turns, err := s.History(ctx, "c1", 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(turns))
	}
}

func TestClearRemovesChat(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Append(ctx, "c1", "user", "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Clear(ctx, "c1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	turns, err := s.History(ctx, "c1", 20)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected no turns after clear, got %d", len(turns))
	}
}

func TestListChats(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.Append(ctx, "c1", "user", "a")
	_ = s.Append(ctx, "c2", "user", "b")

	chats, err := s.ListChats(ctx)
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
}
