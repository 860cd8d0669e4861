package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jholhewres/mimiclaw/internal/bus"
	"github.com/jholhewres/mimiclaw/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(noopWriter{}, nil))
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

type recordingSender struct {
	mu       sync.Mutex
	sent     []string
	failN    int32 // number of leading calls to fail
	attempts int32
}

func (s *recordingSender) Send(_ context.Context, chatID, text string) error {
	n := atomic.AddInt32(&s.attempts, 1)
	if n <= atomic.LoadInt32(&s.failN) {
		return errors.New("transient send failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return nil
}

type countingRecorder struct {
	n atomic.Int32
}

func (c *countingRecorder) RecordOutboundSendFailure() { c.n.Add(1) }

func testConfig() Config {
	return Config{MaxAttempts: 3, RetryBaseMs: 5, PopTimeoutMs: 50}
}

func TestDispatcherDeliversToChannelSender(t *testing.T) {
	b := bus.New(bus.Config{QueueLen: 4, OutboundRetryMax: 1, OutboundFinalWaitMs: 100}, nil)
	sender := &recordingSender{}
	d := New(testConfig(), b, map[string]ports.ChatSender{bus.ChannelTelegram: sender}, nil, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	if err := b.PushOutbound(context.Background(), bus.Message{Channel: bus.ChannelTelegram, ChatID: "c1", Content: "hello"}); err != nil {
		t.Fatalf("push outbound: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sender.mu.Lock()
		n := len(sender.sent)
		sender.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected message to be delivered")
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	b := bus.New(bus.Config{QueueLen: 4, OutboundRetryMax: 1, OutboundFinalWaitMs: 100}, nil)
	sender := &recordingSender{failN: 2} // fails first 2 attempts, succeeds 3rd
	d := New(testConfig(), b, map[string]ports.ChatSender{bus.ChannelCLI: sender}, nil, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	if err := b.PushOutbound(context.Background(), bus.Message{Channel: bus.ChannelCLI, ChatID: "c1", Content: "retry me"}); err != nil {
		t.Fatalf("push outbound: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sender.mu.Lock()
		n := len(sender.sent)
		sender.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected delivery to eventually succeed after retries")
}

func TestDispatcherRecordsPermanentFailure(t *testing.T) {
	b := bus.New(bus.Config{QueueLen: 4, OutboundRetryMax: 1, OutboundFinalWaitMs: 100}, nil)
	sender := &recordingSender{failN: 100} // always fails
	rec := &countingRecorder{}
	d := New(Config{MaxAttempts: 2, RetryBaseMs: 5, PopTimeoutMs: 50}, b, map[string]ports.ChatSender{bus.ChannelCLI: sender}, nil, rec, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	if err := b.PushOutbound(context.Background(), bus.Message{Channel: bus.ChannelCLI, ChatID: "c1", Content: "never arrives"}); err != nil {
		t.Fatalf("push outbound: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec.n.Load() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected permanent failure to be recorded")
}

func TestDispatcherStatusMessageIsOneShot(t *testing.T) {
	b := bus.New(bus.Config{QueueLen: 4, OutboundRetryMax: 1, OutboundFinalWaitMs: 100}, nil)
	sender := &recordingSender{failN: 100}
	rec := &countingRecorder{}
	d := New(Config{MaxAttempts: 5, RetryBaseMs: 5, PopTimeoutMs: 50}, b, map[string]ports.ChatSender{bus.ChannelCLI: sender}, nil, rec, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	status := bus.Message{Channel: bus.ChannelCLI, ChatID: "c1", Content: bus.NewStatusContent("正在处理")}
	if err := b.PushOutbound(context.Background(), status); err != nil {
		t.Fatalf("push outbound: %v", err)
	}

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if rec.n.Load() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if rec.n.Load() != 1 {
		t.Fatal("expected permanent failure recorded")
	}
	if atomic.LoadInt32(&sender.attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt for a status-like message, got %d", sender.attempts)
	}
}

func TestDispatcherVoiceChannel(t *testing.T) {
	b := bus.New(bus.Config{QueueLen: 4, OutboundRetryMax: 1, OutboundFinalWaitMs: 100}, nil)
	voice := &ports.LoggingVoiceOut{Logger: discardLogger()}
	d := New(testConfig(), b, nil, voice, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	if err := b.PushOutbound(context.Background(), bus.Message{Channel: bus.ChannelVoice, ChatID: "voice", Content: "你好"}); err != nil {
		t.Fatalf("push outbound: %v", err)
	}
	// No assertion target beyond "doesn't block/crash": LoggingVoiceOut only logs.
	time.Sleep(50 * time.Millisecond)
}
