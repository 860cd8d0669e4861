// Package dispatcher implements the outbound half of the message bus: a pop
// loop that routes each queued message to the collaborator matching its
// channel tag, retrying transient send failures and recording permanent
// ones, generalizing assistant.go's sendReply channel-dispatch pattern to
// spec's four channel kinds.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/mimiclaw/internal/bus"
	"github.com/jholhewres/mimiclaw/internal/mimierr"
	"github.com/jholhewres/mimiclaw/internal/ports"
)

// Config controls the dispatcher's send-retry policy, separate from (and in
// addition to) the bus's own enqueue-retry policy.
type Config struct {
	MaxAttempts  int
	RetryBaseMs  int
	PopTimeoutMs int
}

// DefaultConfig matches spec §6's stated MAX_ATTEMPTS=3, base 500ms, cap 5s.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, RetryBaseMs: 500, PopTimeoutMs: 1000}
}

// FailureRecorder is notified when a message exhausts its send attempts,
// satisfied by orchestrator.Stats.RecordOutboundSendFailure.
type FailureRecorder interface {
	RecordOutboundSendFailure()
}

// Dispatcher routes outbound bus messages to per-channel senders.
type Dispatcher struct {
	cfg      Config
	bus      *bus.Bus
	chat     map[string]ports.ChatSender
	voice    ports.VoiceOut
	stats    FailureRecorder
	log      *slog.Logger
}

// New constructs a Dispatcher. chat maps channel name (bus.ChannelTelegram,
// bus.ChannelWebSocket, bus.ChannelCLI) to its sender; voice handles
// bus.ChannelVoice separately since it is speak/play/stop, not plain text.
func New(cfg Config, b *bus.Bus, chat map[string]ports.ChatSender, voice ports.VoiceOut, stats FailureRecorder, logger *slog.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{cfg: cfg, bus: b, chat: chat, voice: voice, stats: stats, log: logger.With("component", "dispatcher")}
}

// Run pops outbound messages until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	timeout := time.Duration(d.cfg.PopTimeoutMs) * time.Millisecond
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := d.bus.PopOutbound(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		d.deliver(ctx, msg)
	}
}

// deliver sends one message, retrying transient failures up to MaxAttempts
// for non-status messages. Status-like messages (bus.Message.IsStatusLike)
// get exactly one attempt, matching the bus's own one-shot enqueue policy.
// Per spec §4.4, the "system" channel is local-only (log and consume, no
// egress, never a failure) and any channel tag this dispatcher doesn't
// recognize is logged and dropped without retry.
func (d *Dispatcher) deliver(ctx context.Context, msg bus.Message) {
	if msg.Channel == bus.ChannelSystem {
		d.log.Info("system message consumed locally", "chat_id", msg.ChatID, "content", msg.Content)
		return
	}
	if !d.knownChannel(msg.Channel) {
		d.log.Warn("dropping outbound message for unknown channel", "channel", msg.Channel, "chat_id", msg.ChatID)
		return
	}

	attempts := d.cfg.MaxAttempts
	if msg.IsStatusLike() {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay(attempt, d.cfg.RetryBaseMs)):
			case <-ctx.Done():
				return
			}
		}
		if err := d.send(ctx, msg); err != nil {
			lastErr = err
			d.log.Warn("outbound send failed", "channel", msg.Channel, "chat_id", msg.ChatID, "attempt", attempt+1, "err", err)
			continue
		}
		return
	}

	d.log.Error("outbound send permanently failed", "channel", msg.Channel, "chat_id", msg.ChatID, "err", lastErr)
	if d.stats != nil {
		d.stats.RecordOutboundSendFailure()
	}
}

// knownChannel reports whether msg.Channel is one this dispatcher can route:
// voice (speak/play) or a registered chat sender (telegram/websocket/cli).
func (d *Dispatcher) knownChannel(channel string) bool {
	if channel == bus.ChannelVoice {
		return true
	}
	_, ok := d.chat[channel]
	return ok
}

func (d *Dispatcher) send(ctx context.Context, msg bus.Message) error {
	if msg.Channel == bus.ChannelVoice {
		if d.voice == nil {
			return fmt.Errorf("dispatcher: no voice collaborator configured: %w", mimierr.ErrSendFailed)
		}
		if msg.IsStatusLike() {
			return nil
		}
		return d.voice.Speak(ctx, msg.Content)
	}

	sender, ok := d.chat[msg.Channel]
	if !ok {
		return fmt.Errorf("dispatcher: no sender for channel %q: %w", msg.Channel, mimierr.ErrSendFailed)
	}
	return sender.Send(ctx, msg.ChatID, msg.Content)
}

// retryDelay mirrors bus.retryDelay: exponential backoff from baseMs,
// doubling per attempt, capped at 5s.
func retryDelay(attempt int, baseMs int) time.Duration {
	if baseMs <= 0 {
		baseMs = 500
	}
	delay := time.Duration(baseMs) * time.Millisecond
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > 5*time.Second {
			return 5 * time.Second
		}
	}
	if delay > 5*time.Second {
		delay = 5 * time.Second
	}
	return delay
}
