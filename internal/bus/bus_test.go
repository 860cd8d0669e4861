package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jholhewres/mimiclaw/internal/mimierr"
)

func TestIsStatusLike(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{NewStatusContent("正在执行中"), true},
		{"普通回复文本", false},
		{statusMarker + "缺少省略号", false},
	}
	for _, c := range cases {
		if got := (Message{Content: c.content}).IsStatusLike(); got != c.want {
			t.Errorf("IsStatusLike(%q) = %v, want %v", c.content, got, c.want)
		}
	}
}

func TestPushPopInbound(t *testing.T) {
	b := New(Config{QueueLen: 2}, nil)
	ctx := context.Background()

	msg := Message{Channel: ChannelTelegram, ChatID: "c1", Content: "hi"}
	if err := b.PushInbound(ctx, msg); err != nil {
		t.Fatalf("push: %v", err)
	}

	got, err := b.PopInbound(ctx, time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got.Content != "hi" {
		t.Errorf("got %q, want %q", got.Content, "hi")
	}
}

func TestPushInboundQueueFull(t *testing.T) {
	b := New(Config{QueueLen: 1}, nil)
	ctx := context.Background()

	if err := b.PushInbound(ctx, Message{Content: "1"}); err != nil {
		t.Fatalf("first push: %v", err)
	}
	// Second push should block ~1s then fail with QueueFull.
	start := time.Now()
	err := b.PushInbound(ctx, Message{Content: "2"})
	if !errors.Is(err, mimierr.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("expected push to wait ~1s before failing, waited %v", elapsed)
	}
}

func TestPopInboundTimeout(t *testing.T) {
	b := New(Config{QueueLen: 1}, nil)
	_, err := b.PopInbound(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, mimierr.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestPushOutboundStatusLikeOneShot(t *testing.T) {
	b := New(Config{QueueLen: 1}, nil)
	ctx := context.Background()

	status := Message{Channel: ChannelSystem, Content: NewStatusContent("working")}
	if err := b.PushOutbound(ctx, status); err != nil {
		t.Fatalf("first status push: %v", err)
	}
	// Queue is now full; a second status push must fail immediately, not retry.
	start := time.Now()
	err := b.PushOutbound(ctx, status)
	if !errors.Is(err, mimierr.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("status push should not retry/wait, took %v", elapsed)
	}
}

func TestPushOutboundFinalRetries(t *testing.T) {
	b := New(Config{QueueLen: 1, OutboundRetryMax: 1, OutboundRetryBaseMs: 10, OutboundFinalWaitMs: 20}, nil)
	ctx := context.Background()

	if err := b.PushOutbound(ctx, Message{Content: "fill"}); err != nil {
		t.Fatalf("fill push: %v", err)
	}

	// Drain in background after the first 20ms attempt has timed out, so the
	// retry succeeds.
	go func() {
		time.Sleep(25 * time.Millisecond)
		<-b.outbound
	}()

	if err := b.PushOutbound(ctx, Message{Content: "final"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}
