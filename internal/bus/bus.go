// Package bus implements the two-queue bounded message bus: inbound messages
// flow from ingress collaborators to the turn orchestrator, outbound messages
// flow from the orchestrator (and the control plane's timer callbacks) to the
// outbound dispatcher.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jholhewres/mimiclaw/internal/mimierr"
)

// Channel identifiers, matching the four ingress/egress channels plus the
// local-only system channel.
const (
	ChannelTelegram  = "telegram"
	ChannelWebSocket = "websocket"
	ChannelCLI       = "cli"
	ChannelVoice     = "voice"
	ChannelSystem    = "system"
)

// Media types a Message may carry.
const (
	MediaText     = "text"
	MediaVoice    = "voice"
	MediaPhoto    = "photo"
	MediaDocument = "document"
	MediaMedia    = "media"
	MediaSystem   = "system"
)

// statusMarker and statusEllipsis together identify a "status-like" outbound
// message: one that bypasses retries and (on the voice channel) playback.
const (
	statusMarker   = "⏳" // hourglass, the fixed status prefix
	statusEllipsis = "…" // the single-character ellipsis token
)

// Message is the bus's unit of transfer. It is a value type: ownership
// transfers to the bus by copy on a successful push, and the caller retains
// ownership (and may reuse or discard it) on push failure.
type Message struct {
	Channel   string
	ChatID    string
	MediaType string
	FileID    string
	FilePath  string
	Content   string
	MetaJSON  string
}

// IsStatusLike reports whether this message's content is a one-shot status
// update (reserved prefix + ellipsis marker), per spec §6's message content
// conventions.
func (m Message) IsStatusLike() bool {
	return strings.HasPrefix(m.Content, statusMarker) && strings.Contains(m.Content, statusEllipsis)
}

// NewStatusContent formats a one-shot status string carrying the reserved
// marker and ellipsis token.
func NewStatusContent(phrase string) string {
	return statusMarker + phrase + statusEllipsis
}

// Config controls queue depth and outbound retry policy.
type Config struct {
	QueueLen            int
	OutboundRetryMax    int
	OutboundRetryBaseMs int
	OutboundFinalWaitMs int
}

// DefaultConfig matches spec.md §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		QueueLen:            8,
		OutboundRetryMax:    3,
		OutboundRetryBaseMs: 200,
		OutboundFinalWaitMs: 1200,
	}
}

// Bus is the two-queue message bus.
type Bus struct {
	cfg      Config
	inbound  chan Message
	outbound chan Message
	logger   *slog.Logger
}

// New constructs a Bus with the given configuration.
func New(cfg Config, logger *slog.Logger) *Bus {
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = DefaultConfig().QueueLen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		cfg:      cfg,
		inbound:  make(chan Message, cfg.QueueLen),
		outbound: make(chan Message, cfg.QueueLen),
		logger:   logger.With("component", "bus"),
	}
}

// PushInbound pushes towards the orchestrator. Blocks up to ~1s; on full,
// returns mimierr.ErrQueueFull and the caller retains ownership of msg.
func (b *Bus) PushInbound(ctx context.Context, msg Message) error {
	return push(ctx, b.inbound, msg, time.Second)
}

// PopInbound blocks for up to timeout waiting for a message.
func (b *Bus) PopInbound(ctx context.Context, timeout time.Duration) (Message, error) {
	return pop(ctx, b.inbound, timeout)
}

// PushOutbound pushes towards the dispatcher. Status-like messages are
// one-shot (single attempt, no wait beyond the channel send itself);
// everything else retries up to cfg.OutboundRetryMax times with exponential
// backoff starting at cfg.OutboundRetryBaseMs and capped at 5s, each attempt
// waiting up to cfg.OutboundFinalWaitMs.
func (b *Bus) PushOutbound(ctx context.Context, msg Message) error {
	if msg.IsStatusLike() {
		select {
		case b.outbound <- msg:
			return nil
		default:
			return fmt.Errorf("push status outbound: %w", mimierr.ErrQueueFull)
		}
	}

	attempts := b.cfg.OutboundRetryMax
	if attempts <= 0 {
		attempts = DefaultConfig().OutboundRetryMax
	}
	wait := time.Duration(b.cfg.OutboundFinalWaitMs) * time.Millisecond
	if wait <= 0 {
		wait = time.Duration(DefaultConfig().OutboundFinalWaitMs) * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt, b.cfg.OutboundRetryBaseMs)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := push(ctx, b.outbound, msg, wait); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("push outbound after %d attempts: %w", attempts+1, lastErr)
}

// PopOutbound blocks for up to timeout waiting for a message.
func (b *Bus) PopOutbound(ctx context.Context, timeout time.Duration) (Message, error) {
	return pop(ctx, b.outbound, timeout)
}

// retryDelay computes exponential backoff starting at baseMs, doubling per
// attempt, capped at 5s.
func retryDelay(attempt int, baseMs int) time.Duration {
	if baseMs <= 0 {
		baseMs = 200
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

func push(ctx context.Context, ch chan Message, msg Message, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- msg:
		return nil
	case <-timer.C:
		return mimierr.ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

func pop(ctx context.Context, ch chan Message, timeout time.Duration) (Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-ch:
		return msg, nil
	case <-timer.C:
		return Message{}, mimierr.ErrTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}
