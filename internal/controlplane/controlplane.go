package controlplane

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jholhewres/mimiclaw/internal/bus"
	"github.com/jholhewres/mimiclaw/internal/ports"
)

// Config controls the control plane's fixed-capacity resources.
type Config struct {
	MaxAlarms          int
	MaxTempRules       int
	IdempCacheSize     int
	IdempWindowMs      int64
	AuditSize          int
	TempRuleCooldownMs int64
}

// DefaultConfig matches spec.md §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxAlarms:          8,
		MaxTempRules:       8,
		IdempCacheSize:     DefaultIdempCacheSize,
		IdempWindowMs:      DefaultIdempWindowMs,
		AuditSize:          DefaultAuditSize,
		TempRuleCooldownMs: 60_000,
	}
}

// Deps are the external collaborators the control plane's capabilities act
// on (spec §6).
type Deps struct {
	Volume       ports.VolumeSink
	Voice        ports.VoiceOut
	Reboot       ports.Rebooter
	PushOutbound func(ctx context.Context, msg bus.Message) error
}

// Plane is the control plane: the single lock-guarded owner of the
// idempotency cache, audit ring, alarm pool, and temperature-rule pool.
type Plane struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	// bgCtx is long-lived, scoped to the Plane's own lifetime rather than to
	// any one turn. Armed timers (alarms, reboot) close over this instead of
	// the turn-scoped ctx passed into TryHandleMessage, since a reminder can
	// legitimately fire up to 24h after the turn that armed it has long since
	// completed and its ctx been canceled.
	bgCtx    context.Context
	bgCancel context.CancelFunc

	mu             sync.Mutex
	idemp          *idempCache
	audit          *auditRing
	alarms         []alarmSlot
	nextAlarmID    uint32
	tempRules      []tempRuleSlot
	nextTempRuleID uint32
	rebootTimer    timerHandle
}

// New constructs a Plane. deps must be fully populated. The Plane owns its
// own background context for its timer fleet, independent of any turn's ctx;
// call (*Plane).Close to cancel it on shutdown.
func New(cfg Config, deps Deps, logger *slog.Logger) *Plane {
	return NewWithContext(context.Background(), cfg, deps, logger)
}

// NewWithContext is New, but lets the caller supply the long-lived parent
// context the timer fleet is scoped to (e.g. the process's shutdown context,
// rather than context.Background()).
func NewWithContext(ctx context.Context, cfg Config, deps Deps, logger *slog.Logger) *Plane {
	if cfg.MaxAlarms <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	bgCtx, bgCancel := context.WithCancel(ctx)
	return &Plane{
		cfg:            cfg,
		deps:           deps,
		log:            logger.With("component", "controlplane"),
		bgCtx:          bgCtx,
		bgCancel:       bgCancel,
		idemp:          newIdempCache(cfg.IdempCacheSize, cfg.IdempWindowMs),
		audit:          newAuditRing(cfg.AuditSize),
		alarms:         make([]alarmSlot, cfg.MaxAlarms),
		tempRules:      make([]tempRuleSlot, cfg.MaxTempRules),
		nextAlarmID:    1,
		nextTempRuleID: 1,
	}
}

// Close cancels the Plane's background context, stopping any further alarm
// reminders from being enqueued once their timers fire. A pending reboot
// timer still fires and calls the Rebooter with the cancelled context.
func (p *Plane) Close() {
	p.bgCancel()
}

// TryHandleMessage is the control plane's public contract (spec §4.2): if
// Result.Handled is false the orchestrator must run the LLM flow; otherwise
// it must honor ResponseText (possibly empty, meaning silent success) and
// must not call the LLM.
func (p *Plane) TryHandleMessage(ctx context.Context, msg bus.Message) Result {
	mediaType := msg.MediaType
	if mediaType == "" {
		mediaType = bus.MediaText
	}
	if mediaType != bus.MediaVoice {
		return Result{}
	}

	cmd, reason, recognized := p.recognize(msg)
	if !recognized {
		return Result{}
	}

	result := Result{Handled: true, FromRule: true, RequestID: cmd.RequestID}

	p.mu.Lock()
	if cached, hit := p.idemp.lookup(cmd.RequestID); hit {
		p.audit.append(cached, "幂等命中，返回缓存结果")
		p.mu.Unlock()
		p.log.Info("idempotency hit", "request_id", cmd.RequestID, "capability", cached.Capability)
		return cached
	}
	p.mu.Unlock()

	if reason != "" {
		result.Success = false
		result.ResponseText = reason
		p.storeAndAudit(cmd.RequestID, result, reason)
		return result
	}

	out, err := p.executeWithCapability(ctx, &cmd)
	if err != nil {
		result.Success = false
		result.ResponseText = "操作失败：" + err.Error() + "。"
		p.storeAndAudit(cmd.RequestID, result, result.ResponseText)
		p.log.Warn("command execute failed", "request_id", cmd.RequestID, "capability", cmd.Capability, "error", err)
		return result
	}

	out.Handled = true
	out.FromRule = true
	out.Success = true
	out.RequestID = cmd.RequestID
	p.storeAndAudit(cmd.RequestID, out, out.ResponseText)
	p.log.Info("rule command handled", "request_id", cmd.RequestID, "capability", out.Capability)
	return out
}

func (p *Plane) storeAndAudit(requestID string, result Result, summary string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idemp.store(requestID, result)
	p.audit.append(result, summary)
}

// recognize runs the five intent parsers in order: reboot, alarm,
// temperature-rule, music, volume. First match wins.
func (p *Plane) recognize(msg bus.Message) (Command, string, bool) {
	if cmd, ok := parseRebootCommand(msg); ok {
		return cmd, "", true
	}
	if cmd, ok := parseAlarmCommand(msg); ok {
		return cmd, "", true
	}
	if cmd, reason, ok := parseTempRuleCommand(msg); ok {
		return cmd, reason, true
	}
	if cmd, ok := parseMusicCommand(msg); ok {
		return cmd, "", true
	}
	currentVolume := 0
	if p.deps.Volume != nil {
		currentVolume, _ = p.deps.Volume.Get(context.Background())
	}
	if cmd, reason, ok := parseVolumeCommand(msg, currentVolume); ok {
		return cmd, reason, true
	}
	return Command{}, "", false
}

// RecentAudits returns up to n most recent audit entries, reverse-chronological.
func (p *Plane) RecentAudits(n int) []AuditEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audit.recent(n)
}

// ActiveAlarms returns a snapshot of currently-active alarm slots.
func (p *Plane) ActiveAlarms() []AlarmInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := nowMs()
	out := make([]AlarmInfo, 0, len(p.alarms))
	for _, s := range p.alarms {
		if !s.active {
			continue
		}
		remaining := uint32(0)
		if s.dueMs > now {
			remaining = uint32(s.dueMs - now)
		}
		out = append(out, AlarmInfo{AlarmID: s.alarmID, RemainingMs: remaining, Channel: s.channel, ChatID: s.chatID, Note: s.note})
	}
	return out
}

// TemperatureRules returns a snapshot of currently-active temperature rules.
func (p *Plane) TemperatureRules() []TempRuleInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TempRuleInfo, 0, len(p.tempRules))
	for _, s := range p.tempRules {
		if !s.active {
			continue
		}
		out = append(out, TempRuleInfo{RuleID: s.ruleID, ThresholdX10: s.thresholdX10, Comparator: s.comparator, ActionType: s.actionType, ActionValue: s.actionValue, Note: s.note})
	}
	return out
}
