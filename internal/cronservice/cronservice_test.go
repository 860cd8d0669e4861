package cronservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jholhewres/mimiclaw/internal/bus"
)

func TestTriggerNowWithNoScheduleIsSkipped(t *testing.T) {
	s := New(func(_ context.Context, _ bus.Message) error { return nil }, nil)
	if err := s.TriggerNow(context.Background()); err == nil {
		t.Fatal("expected error when no schedule configured")
	}
	if s.GetStats().SkippedNotConfigured != 1 {
		t.Fatalf("expected 1 skipped run, got %d", s.GetStats().SkippedNotConfigured)
	}
}

func TestTriggerNowRunsConfiguredTask(t *testing.T) {
	received := make(chan bus.Message, 1)
	s := New(func(_ context.Context, msg bus.Message) error {
		received <- msg
		return nil
	}, nil)

	if err := s.SetSchedule(context.Background(), "@every 1h", "water the plants"); err != nil {
		t.Fatalf("set schedule: %v", err)
	}

	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("trigger now: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Channel != bus.ChannelSystem {
			t.Fatalf("expected system channel, got %s", msg.Channel)
		}
		if msg.ChatID != "cron" {
			t.Fatalf("expected chat_id 'cron', got %s", msg.ChatID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a synthesized inbound message")
	}

	stats := s.GetStats()
	if stats.TriggeredRuns != 1 || stats.EnqueueSuccess != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestClearScheduleDisablesFutureRuns(t *testing.T) {
	s := New(func(_ context.Context, _ bus.Message) error { return nil }, nil)
	if err := s.SetSchedule(context.Background(), "@every 1h", "task"); err != nil {
		t.Fatalf("set schedule: %v", err)
	}
	s.ClearSchedule()

	if err := s.TriggerNow(context.Background()); err == nil {
		t.Fatal("expected trigger to fail after clearing schedule")
	}
}

func TestSetScheduleRejectsInvalidExpression(t *testing.T) {
	s := New(func(_ context.Context, _ bus.Message) error { return nil }, nil)
	if err := s.SetSchedule(context.Background(), "not a cron expr", "task"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestEnqueueFailureIsCounted(t *testing.T) {
	s := New(func(_ context.Context, _ bus.Message) error { return errors.New("bus full") }, nil)
	if err := s.SetSchedule(context.Background(), "@every 1h", "task"); err != nil {
		t.Fatalf("set schedule: %v", err)
	}
	_ = s.TriggerNow(context.Background())

	stats := s.GetStats()
	if stats.EnqueueFailures != 1 {
		t.Fatalf("expected 1 enqueue failure, got %d", stats.EnqueueFailures)
	}
}
