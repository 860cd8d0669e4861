// Package cronservice implements the single-job compatibility alias from
// original_source/main/cron/cron_service.c: one named scheduled task that,
// when due, synthesizes a system-channel inbound message carrying the task
// text, using a real cron-expression engine in place of the C source's
// interval-minutes ticker.
package cronservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jholhewres/mimiclaw/internal/bus"
)

// Stats mirrors original_source's cron_stats_t fields.
type Stats struct {
	TotalRuns             uint32
	TriggeredRuns         uint32
	EnqueueSuccess        uint32
	EnqueueFailures       uint32
	SkippedNotConfigured  uint32
	LastRunUnix           int64
}

// Service runs a single named cron-scheduled task.
type Service struct {
	mu       sync.Mutex
	cron     *cron.Cron
	entryID  cron.EntryID
	schedule string
	task     string
	enabled  bool
	stats    Stats

	pushInbound func(ctx context.Context, msg bus.Message) error
	log         *slog.Logger
}

// New constructs a Service. pushInbound is called with a synthesized
// system-channel message each time the schedule fires.
func New(pushInbound func(ctx context.Context, msg bus.Message) error, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cron:        cron.New(),
		pushInbound: pushInbound,
		log:         logger.With("component", "cron"),
	}
}

// Start begins the underlying scheduler goroutine. Safe to call with no
// schedule configured yet; SetSchedule may be called afterward.
func (s *Service) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight run to finish.
func (s *Service) Stop() { <-s.cron.Stop().Done() }

// SetSchedule installs (replacing any prior) a cron-syntax schedule and the
// task text to deliver each time it fires.
func (s *Service) SetSchedule(ctx context.Context, spec, task string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}

	id, err := s.cron.AddFunc(spec, func() { s.runOnce(ctx, "interval") })
	if err != nil {
		return fmt.Errorf("cronservice: invalid schedule %q: %w", spec, err)
	}

	s.entryID = id
	s.schedule = spec
	s.task = task
	s.enabled = true
	return nil
}

// ClearSchedule disables the configured schedule without losing the task
// text, matching cron_service_clear_schedule's enabled=false semantics.
func (s *Service) ClearSchedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}
	s.enabled = false
}

// TriggerNow runs the configured task immediately, regardless of schedule.
func (s *Service) TriggerNow(ctx context.Context) error {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled {
		s.mu.Lock()
		s.stats.SkippedNotConfigured++
		s.mu.Unlock()
		return fmt.Errorf("cronservice: no schedule configured")
	}
	s.runOnce(ctx, "manual")
	return nil
}

// Task returns the currently configured task text.
func (s *Service) Task() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// GetStats returns a snapshot of the lifetime counters.
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Service) runOnce(ctx context.Context, reason string) {
	s.mu.Lock()
	enabled := s.enabled
	task := s.task
	schedule := s.schedule
	s.mu.Unlock()

	if !enabled || task == "" {
		s.mu.Lock()
		s.stats.SkippedNotConfigured++
		s.mu.Unlock()
		return
	}

	now := time.Now()
	content := fmt.Sprintf("Cron trigger (%s) at %s, schedule=%q.\nExecute the scheduled task below:\n%s",
		reason, now.Format("2006-01-02 15:04:05"), schedule, task)

	msg := bus.Message{
		Channel:   bus.ChannelSystem,
		ChatID:    "cron",
		MediaType: bus.MediaSystem,
		Content:   content,
	}

	err := s.pushInbound(ctx, msg)

	s.mu.Lock()
	s.stats.TotalRuns++
	s.stats.LastRunUnix = now.Unix()
	if err == nil {
		s.stats.TriggeredRuns++
		s.stats.EnqueueSuccess++
	} else {
		s.stats.EnqueueFailures++
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("cron enqueue failed", "reason", reason, "err", err)
	} else {
		s.log.Info("cron triggered", "reason", reason, "schedule", schedule)
	}
}
