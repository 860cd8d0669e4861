package controlplane

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jholhewres/mimiclaw/internal/bus"
	"github.com/jholhewres/mimiclaw/internal/mimierr"
	"github.com/jholhewres/mimiclaw/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(noopWriter{}, nil))
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestPlane(t *testing.T, initialVolume int) (*Plane, *ports.InMemoryVolumeSink, chan bus.Message) {
	t.Helper()
	outbound := make(chan bus.Message, 16)
	deps := Deps{
		Volume: ports.NewInMemoryVolumeSink(initialVolume),
		Voice:  &ports.LoggingVoiceOut{Logger: discardLogger()},
		Reboot: &ports.LoggingRebooter{Logger: discardLogger()},
		PushOutbound: func(_ context.Context, msg bus.Message) error {
			outbound <- msg
			return nil
		},
	}
	vol := deps.Volume.(*ports.InMemoryVolumeSink)
	p := New(DefaultConfig(), deps, discardLogger())
	return p, vol, outbound
}

func voiceMsg(content string) bus.Message {
	return bus.Message{Channel: bus.ChannelVoice, ChatID: "voice", MediaType: bus.MediaVoice, Content: content}
}

// Scenario 1: voice volume query fast path.
func TestVolumeQueryFastPath(t *testing.T) {
	p, _, _ := newTestPlane(t, 42)
	res := p.TryHandleMessage(context.Background(), voiceMsg("现在音量是多少？"))
	if !res.Handled || !res.Success {
		t.Fatalf("expected handled+success, got %+v", res)
	}
	if res.Capability != CapGetVolume {
		t.Fatalf("expected get_volume, got %s", res.Capability)
	}
	if res.ResponseText != "当前音量是百分之42。" {
		t.Fatalf("unexpected response text: %q", res.ResponseText)
	}
}

// Scenario 2: voice set-volume with percentage.
func TestSetVolumeAbsolute(t *testing.T) {
	p, vol, _ := newTestPlane(t, 30)
	res := p.TryHandleMessage(context.Background(), voiceMsg("把音量调到70%"))
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if got, _ := vol.Get(context.Background()); got != 70 {
		t.Fatalf("expected volume 70, got %d", got)
	}
	if res.ResponseText != "音量已设置为百分之70。" {
		t.Fatalf("unexpected response text: %q", res.ResponseText)
	}
	if res.DedupHit {
		t.Fatalf("expected dedup_hit=false on first call")
	}
}

// Scenario 3: voice relative increase.
func TestSetVolumeRelativeIncrease(t *testing.T) {
	p, vol, _ := newTestPlane(t, 30)
	res := p.TryHandleMessage(context.Background(), voiceMsg("音量调大20%"))
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if got, _ := vol.Get(context.Background()); got != 50 {
		t.Fatalf("expected volume 50, got %d", got)
	}
	if res.ResponseText != "已将音量增大百分之20，当前为百分之50。" {
		t.Fatalf("unexpected response text: %q", res.ResponseText)
	}
}

// Scenario 6: idempotent reboot via voice — two identical messages within TTL.
func TestIdempotentReboot(t *testing.T) {
	p, _, _ := newTestPlane(t, 0)
	msg := voiceMsg("30秒后重启")

	first := p.TryHandleMessage(context.Background(), msg)
	if !first.Success || first.DedupHit {
		t.Fatalf("expected first call success, dedup_hit=false, got %+v", first)
	}

	second := p.TryHandleMessage(context.Background(), msg)
	if !second.DedupHit {
		t.Fatalf("expected second call dedup_hit=true, got %+v", second)
	}
	if second.ResponseText != first.ResponseText {
		t.Fatalf("expected identical response text, got %q vs %q", first.ResponseText, second.ResponseText)
	}

	p.mu.Lock()
	armed := p.rebootTimer.timer != nil
	p.mu.Unlock()
	if !armed {
		t.Fatalf("expected reboot timer to remain armed after idempotent replay")
	}
}

// Round-trip: try_handle_message twice within TTL yields identical
// response_text/success, dedup_hit false then true.
func TestTryHandleMessageIdempotentRoundTrip(t *testing.T) {
	p, _, _ := newTestPlane(t, 10)
	msg := voiceMsg("把音量调到55%")

	first := p.TryHandleMessage(context.Background(), msg)
	second := p.TryHandleMessage(context.Background(), msg)

	if first.DedupHit {
		t.Fatalf("expected dedup_hit=false on first call")
	}
	if !second.DedupHit {
		t.Fatalf("expected dedup_hit=true on second call")
	}
	if first.ResponseText != second.ResponseText || first.Success != second.Success {
		t.Fatalf("responses diverged: %+v vs %+v", first, second)
	}
}

// Boundary: alarm delay < 1s is rejected.
func TestAlarmCreateRejectsTooShortDelay(t *testing.T) {
	p, _, _ := newTestPlane(t, 0)
	cmd := Command{Capability: CapAlarmCreate, RequestID: "manual-alarm-short", DelayMs: 500, Note: "喝水"}
	_, err := p.executeWithCapability(context.Background(), &cmd)
	if err == nil {
		t.Fatal("expected failure for sub-1s alarm delay")
	}
}

// Boundary: alarm delay > 24h is rejected.
func TestAlarmCreateRejectsTooLongDelay(t *testing.T) {
	p, _, _ := newTestPlane(t, 0)
	cmd := Command{Capability: CapAlarmCreate, RequestID: "manual-alarm-long", DelayMs: 25 * 3600 * 1000, Note: "喝水"}
	_, err := p.executeWithCapability(context.Background(), &cmd)
	if err == nil {
		t.Fatal("expected failure for alarm delay exceeding 24h")
	}
}

// Boundary: alarm_clear prevents the timer from firing a reminder.
func TestAlarmClearPreventsFire(t *testing.T) {
	p, _, outbound := newTestPlane(t, 0)
	create := p.TryHandleMessage(context.Background(), voiceMsg("1秒后提醒我喝水"))
	if !create.Success {
		t.Fatalf("expected alarm create success, got %+v", create)
	}

	alarms := p.ActiveAlarms()
	if len(alarms) != 1 {
		t.Fatalf("expected one active alarm, got %d", len(alarms))
	}

	cleared, found := p.clearAlarms(alarms[0].AlarmID)
	if !found || cleared != 1 {
		t.Fatalf("expected clear to find and remove one alarm, got cleared=%d found=%v", cleared, found)
	}

	select {
	case msg := <-outbound:
		t.Fatalf("expected no reminder after clear, got %+v", msg)
	case <-time.After(1500 * time.Millisecond):
	}
}

// Temperature threshold outside [-50.0, 120.0] is rejected.
func TestTempRuleCreateRejectsOutOfRangeThreshold(t *testing.T) {
	p, _, _ := newTestPlane(t, 0)
	cmd := Command{
		Capability:       CapTempRuleCreate,
		RequestID:        "manual-temp-oor",
		TempThresholdX10: 2000,
		TempComparator:   ComparatorGTE,
		TempActionType:   ActionRemind,
		Note:             "通风",
	}
	_, err := p.executeWithCapability(context.Background(), &cmd)
	if err == nil {
		t.Fatal("expected failure for out-of-range threshold")
	}
}

func TestTempRuleCreateAndNotify(t *testing.T) {
	p, _, outbound := newTestPlane(t, 0)
	res := p.TryHandleMessage(context.Background(), voiceMsg("超过30度，温度规则，提醒我通风"))
	if !res.Success {
		t.Fatalf("expected temp rule create success, got %+v", res)
	}
	if !strings.Contains(res.ResponseText, "已创建温度规则") {
		t.Fatalf("unexpected response text: %q", res.ResponseText)
	}

	p.HandleTemperatureEvent(context.Background(), 305)

	select {
	case msg := <-outbound:
		if !strings.Contains(msg.Content, "温度触发提醒") {
			t.Fatalf("unexpected notify content: %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a temperature notification on outbound")
	}
}

func TestRecognizeNonVoiceMessageIsNotHandled(t *testing.T) {
	p, _, _ := newTestPlane(t, 10)
	msg := bus.Message{Channel: bus.ChannelTelegram, ChatID: "c", MediaType: bus.MediaText, Content: "把音量调到70%"}
	res := p.TryHandleMessage(context.Background(), msg)
	if res.Handled {
		t.Fatalf("expected non-voice message to be unhandled by control plane, got %+v", res)
	}
}

func TestAlarmClearUnknownIDReturnsNotFound(t *testing.T) {
	p, _, _ := newTestPlane(t, 0)
	p.TryHandleMessage(context.Background(), voiceMsg("30秒后提醒我喝水"))

	cmd := Command{Capability: CapAlarmClear, RequestID: "manual-clear-99", AlarmID: 99}
	_, err := p.executeWithCapability(context.Background(), &cmd)
	if err == nil {
		t.Fatal("expected error clearing unknown alarm id")
	}
	if !errors.Is(err, mimierr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
