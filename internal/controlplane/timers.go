package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/jholhewres/mimiclaw/internal/bus"
	"github.com/jholhewres/mimiclaw/internal/mimierr"
)

// timerHandle wraps the single reboot timer; re-arming replaces it, matching
// original_source's execute_reboot (stop+delete any existing s_reboot_timer
// before creating a new one).
type timerHandle struct {
	timer *time.Timer
}

// alarmSlot is one entry of the fixed-capacity alarm pool (spec §3,
// max MaxAlarms, default 8). generation guards against a timer firing after
// the slot has already been reused by a later alarm_create.
type alarmSlot struct {
	active     bool
	generation uint64
	alarmID    uint32
	dueMs      int64
	channel    string
	chatID     string
	note       string
	timer      *time.Timer
}

// armReboot stops any in-flight reboot timer and starts a new one, mirroring
// execute_reboot's stop/delete-then-create sequence. The callback runs on
// the Plane's own background context, not the turn-scoped ctx the command
// arrived on, since it can fire long after that turn has completed.
func (p *Plane) armReboot(delayMs uint32) {
	p.mu.Lock()
	if p.rebootTimer.timer != nil {
		p.rebootTimer.timer.Stop()
		p.rebootTimer.timer = nil
	}
	delay := time.Duration(delayMs) * time.Millisecond
	p.rebootTimer.timer = time.AfterFunc(delay, func() {
		p.fireReboot(p.bgCtx)
	})
	p.mu.Unlock()
}

func (p *Plane) fireReboot(ctx context.Context) {
	p.mu.Lock()
	p.rebootTimer.timer = nil
	p.mu.Unlock()
	p.log.Warn("reboot timer fired")
	p.deps.Reboot.Reboot(ctx)
}

// armAlarm finds a free slot, assigns the next alarm id, and starts its
// timer. Returns mimierr.ErrAlarmCapacity if the pool is full. The timer
// callback runs on the Plane's own background context (see armReboot).
func (p *Plane) armAlarm(cmd *Command) (uint32, error) {
	p.mu.Lock()
	idx := -1
	for i := range p.alarms {
		if !p.alarms[i].active {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return 0, mimierr.ErrAlarmCapacity
	}

	alarmID := p.nextAlarmID
	p.nextAlarmID++
	slot := &p.alarms[idx]
	slot.active = true
	slot.generation++
	gen := slot.generation
	slot.alarmID = alarmID
	slot.dueMs = nowMs() + int64(cmd.DelayMs)
	slot.channel = cmd.Channel
	slot.chatID = cmd.ChatID
	slot.note = cmd.Note

	delay := time.Duration(cmd.DelayMs) * time.Millisecond
	slot.timer = time.AfterFunc(delay, func() {
		p.fireAlarm(p.bgCtx, idx, gen)
	})
	p.mu.Unlock()

	return alarmID, nil
}

// fireAlarm reads and invalidates the slot under lock, then enqueues the
// reminder message outside the lock, avoiding a double-fire race against a
// concurrent alarm_clear: the lock-read-invalidate-unlock-then-enqueue
// pattern of original_source's alarm_timer_cb.
func (p *Plane) fireAlarm(ctx context.Context, idx int, gen uint64) {
	p.mu.Lock()
	slot := &p.alarms[idx]
	if !slot.active || slot.generation != gen {
		p.mu.Unlock()
		return
	}
	alarmID := slot.alarmID
	channel := slot.channel
	chatID := slot.chatID
	note := slot.note
	slot.active = false
	slot.timer = nil
	p.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	text := note
	if text == "" {
		text = "时间到了"
	}
	msg := bus.Message{
		Channel:   channel,
		ChatID:    chatID,
		MediaType: bus.MediaText,
		Content:   fmt.Sprintf("闹钟提醒：%s", text),
	}
	if err := p.deps.PushOutbound(ctx, msg); err != nil {
		p.log.Warn("alarm enqueue failed", "alarm_id", alarmID, "error", err)
	}
}

// clearAlarms stops and invalidates one alarm (alarmID != 0) or all active
// alarms (alarmID == 0). Returns the number cleared and, for a targeted
// clear, whether it was found.
func (p *Plane) clearAlarms(alarmID uint32) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cleared := 0
	found := false
	for i := range p.alarms {
		slot := &p.alarms[i]
		if !slot.active {
			continue
		}
		if alarmID != 0 && slot.alarmID != alarmID {
			continue
		}
		if slot.timer != nil {
			slot.timer.Stop()
			slot.timer = nil
		}
		slot.active = false
		slot.generation++
		cleared++
		if alarmID != 0 {
			found = true
			break
		}
	}
	return cleared, found
}
