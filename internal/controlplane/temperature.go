package controlplane

import (
	"context"
	"fmt"

	"github.com/jholhewres/mimiclaw/internal/bus"
	"github.com/jholhewres/mimiclaw/internal/mimierr"
)

// tempRuleSlot is one entry of the fixed-capacity temperature-rule pool
// (spec §3, max MaxTempRules, default 8).
type tempRuleSlot struct {
	active        bool
	ruleID        uint32
	thresholdX10  int
	comparator    int
	actionType    int
	actionValue   int
	note          string
	lastTriggerMs int64
}

// createTempRule finds a free slot, assigns the next rule id, and populates
// it. Returns mimierr.ErrTempRuleCapacity if the pool is full.
func (p *Plane) createTempRule(cmd *Command) (uint32, tempRuleSlot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i := range p.tempRules {
		if !p.tempRules[i].active {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, tempRuleSlot{}, mimierr.ErrTempRuleCapacity
	}

	ruleID := p.nextTempRuleID
	p.nextTempRuleID++
	slot := &p.tempRules[idx]
	*slot = tempRuleSlot{
		active:       true,
		ruleID:       ruleID,
		thresholdX10: cmd.TempThresholdX10,
		comparator:   cmd.TempComparator,
		actionType:   cmd.TempActionType,
		actionValue:  cmd.TempActionValue,
		note:         cmd.Note,
	}
	return ruleID, *slot, nil
}

// clearTempRules removes one rule (ruleID != 0) or all active rules
// (ruleID == 0).
func (p *Plane) clearTempRules(ruleID uint32) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cleared := 0
	found := false
	for i := range p.tempRules {
		slot := &p.tempRules[i]
		if !slot.active {
			continue
		}
		if ruleID != 0 && slot.ruleID != ruleID {
			continue
		}
		*slot = tempRuleSlot{}
		cleared++
		if ruleID != 0 {
			found = true
			break
		}
	}
	return cleared, found
}

type tempHit struct {
	ruleID       uint32
	thresholdX10 int
	comparator   int
	actionType   int
	actionValue  int
	note         string
}

// HandleTemperatureEvent scans rules under the lock, collecting cooldown-
// eligible matches and stamping last_trigger_ms, then acts on each hit
// outside the lock (a set_volume capability call or an outbound reminder).
// A failure on one hit does not stop the remaining hits from being acted on.
func (p *Plane) HandleTemperatureEvent(ctx context.Context, tempX10 int) {
	now := nowMs()

	p.mu.Lock()
	var hits []tempHit
	for i := range p.tempRules {
		rule := &p.tempRules[i]
		if !rule.active {
			continue
		}
		if now-rule.lastTriggerMs < p.cfg.TempRuleCooldownMs {
			continue
		}
		matched := false
		switch rule.comparator {
		case ComparatorGTE:
			matched = tempX10 >= rule.thresholdX10
		case ComparatorLTE:
			matched = tempX10 <= rule.thresholdX10
		}
		if !matched {
			continue
		}
		hits = append(hits, tempHit{
			ruleID:       rule.ruleID,
			thresholdX10: rule.thresholdX10,
			comparator:   rule.comparator,
			actionType:   rule.actionType,
			actionValue:  rule.actionValue,
			note:         rule.note,
		})
		rule.lastTriggerMs = now
	}
	p.mu.Unlock()

	for _, hit := range hits {
		if hit.actionType == ActionSetVolume {
			p.fireTempRuleSetVolume(ctx, hit, now)
			continue
		}
		p.fireTempRuleRemind(ctx, hit, tempX10, now)
	}
}

func (p *Plane) fireTempRuleSetVolume(ctx context.Context, hit tempHit, now int64) {
	cmd := Command{
		Capability:  CapSetVolume,
		RequestID:   fmt.Sprintf("temp-%d-%d", hit.ruleID, now),
		TargetValue: clampInt(hit.actionValue, 0, 100),
	}
	out, err := p.executeWithCapability(ctx, &cmd)
	if err != nil {
		result := Result{Handled: true, FromRule: true, RequestID: cmd.RequestID, Success: false,
			ResponseText: fmt.Sprintf("温度规则执行失败：%s", err.Error())}
		p.storeAndAudit(cmd.RequestID, result, result.ResponseText)
		p.log.Warn("temp rule execute failed", "rule_id", hit.ruleID, "error", err)
		return
	}
	out.Handled = true
	out.FromRule = true
	out.Success = true
	out.RequestID = cmd.RequestID
	p.storeAndAudit(cmd.RequestID, out, "温度规则触发：执行音量调整")
	p.log.Info("temp rule hit", "rule_id", hit.ruleID, "temp_x10", hit.thresholdX10, "action", "set_volume")
}

func (p *Plane) fireTempRuleRemind(ctx context.Context, hit tempHit, tempX10 int, now int64) {
	note := hit.note
	if note == "" {
		note = "请注意温度变化。"
	}
	requestID := fmt.Sprintf("temp-%d-%d-n", hit.ruleID, now)
	whole := tempX10 / 10
	frac := tempX10 % 10
	if frac < 0 {
		frac = -frac
	}
	msg := bus.Message{
		Channel:   bus.ChannelSystem,
		ChatID:    "temp_rule",
		MediaType: bus.MediaText,
		Content:   fmt.Sprintf("温度触发提醒：当前%d.%d°C，%s", whole, frac, note),
	}
	result := Result{Handled: true, FromRule: true, Capability: "temp_rule_notify", RequestID: requestID}
	if err := p.deps.PushOutbound(ctx, msg); err != nil {
		result.Success = false
		result.ResponseText = "温度规则提醒入队失败"
		p.storeAndAudit(requestID, result, result.ResponseText)
		p.log.Warn("temp rule outbound enqueue failed", "rule_id", hit.ruleID, "error", err)
		return
	}
	result.Success = true
	result.ResponseText = "温度规则触发：执行提醒"
	p.storeAndAudit(requestID, result, result.ResponseText)
	p.log.Info("temp rule hit", "rule_id", hit.ruleID, "temp_x10", hit.thresholdX10, "action", "remind")
}
