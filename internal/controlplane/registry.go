package controlplane

import (
	"context"
	"fmt"

	"github.com/jholhewres/mimiclaw/internal/mimierr"
)

type capability struct {
	Name     string
	TimeoutMs uint32
	RetryMax  uint8
	Validate  func(*Plane, *Command) error
	Execute   func(*Plane, context.Context, *Command, *Result) error
}

// capabilities is the static registry, in the exact order and with the exact
// per-capability timeout/retry policy of original_source's s_capabilities[].
// No capability currently configures retry > 0; the field is preserved for
// future hardware capabilities, per spec §4.2.2.
var capabilities = []capability{
	{Name: CapGetVolume, TimeoutMs: 500, Validate: validateGetVolume, Execute: executeGetVolume},
	{Name: CapSetVolume, TimeoutMs: 500, Validate: validateSetVolume, Execute: executeSetVolume},
	{Name: CapReboot, TimeoutMs: 1000, Validate: validateReboot, Execute: executeReboot},
	{Name: CapAlarmCreate, TimeoutMs: 1000, Validate: validateAlarmCreate, Execute: executeAlarmCreate},
	{Name: CapAlarmList, TimeoutMs: 500, Validate: noopValidate, Execute: executeAlarmList},
	{Name: CapAlarmClear, TimeoutMs: 1000, Validate: noopValidate, Execute: executeAlarmClear},
	{Name: CapTempRuleCreate, TimeoutMs: 1000, Validate: validateTempRuleCreate, Execute: executeTempRuleCreate},
	{Name: CapTempRuleList, TimeoutMs: 500, Validate: noopValidate, Execute: executeTempRuleList},
	{Name: CapTempRuleClear, TimeoutMs: 1000, Validate: noopValidate, Execute: executeTempRuleClear},
	{Name: CapPlayMusic, TimeoutMs: 1000, Validate: validatePlayMusic, Execute: executePlayMusic},
	{Name: CapStopMusic, TimeoutMs: 1000, Validate: noopValidate, Execute: executeStopMusic},
}

func findCapability(name string) *capability {
	for i := range capabilities {
		if capabilities[i].Name == name {
			return &capabilities[i]
		}
	}
	return nil
}

func noopValidate(*Plane, *Command) error { return nil }

// executeWithCapability validates once, then executes up to retry_max+1
// times, matching original_source's execute_with_capability.
func (p *Plane) executeWithCapability(ctx context.Context, cmd *Command) (Result, error) {
	cap := findCapability(cmd.Capability)
	if cap == nil {
		return Result{}, fmt.Errorf("未注册能力: %s", cmd.Capability)
	}

	if err := cap.Validate(p, cmd); err != nil {
		return Result{}, err
	}

	var out Result
	var err error
	for attempt := 0; attempt <= int(cap.RetryMax); attempt++ {
		out = Result{}
		err = cap.Execute(p, ctx, cmd, &out)
		if err == nil {
			out.Capability = cap.Name
			return out, nil
		}
	}
	return Result{}, err
}

// --- get_volume ---

func validateGetVolume(*Plane, *Command) error { return nil }

func executeGetVolume(p *Plane, ctx context.Context, _ *Command, out *Result) error {
	vol, err := p.deps.Volume.Get(ctx)
	if err != nil {
		return err
	}
	out.BeforeValue = vol
	out.AfterValue = vol
	out.ResponseText = fmt.Sprintf("当前音量是百分之%d。", vol)
	return nil
}

// --- set_volume ---

func validateSetVolume(_ *Plane, cmd *Command) error {
	if cmd.TargetValue < 0 || cmd.TargetValue > 100 {
		return fmt.Errorf("目标音量超出范围(0-100): %d", cmd.TargetValue)
	}
	return nil
}

func executeSetVolume(p *Plane, ctx context.Context, cmd *Command, out *Result) error {
	before, err := p.deps.Volume.Get(ctx)
	if err != nil {
		return err
	}
	out.BeforeValue = before
	if err := p.deps.Volume.Set(ctx, cmd.TargetValue); err != nil {
		return err
	}
	after, err := p.deps.Volume.Get(ctx)
	if err != nil {
		return err
	}
	out.AfterValue = after
	if after != cmd.TargetValue {
		return fmt.Errorf("写入后回读不一致: expect=%d actual=%d", cmd.TargetValue, after)
	}

	if cmd.Relative {
		verb := "增大"
		delta := cmd.DeltaValue
		if cmd.DeltaValue < 0 {
			verb = "减小"
			delta = -cmd.DeltaValue
		}
		out.ResponseText = fmt.Sprintf("已将音量%s百分之%d，当前为百分之%d。", verb, delta, after)
	} else {
		out.ResponseText = fmt.Sprintf("音量已设置为百分之%d。", after)
	}
	return nil
}

// --- reboot ---

func validateReboot(_ *Plane, cmd *Command) error {
	if cmd.DelayMs < 500 || cmd.DelayMs > 3600*1000 {
		return fmt.Errorf("重启延迟非法: %dms", cmd.DelayMs)
	}
	return nil
}

func executeReboot(p *Plane, ctx context.Context, cmd *Command, out *Result) error {
	p.armReboot(cmd.DelayMs)
	out.PendingAction = true
	out.ResponseText = fmt.Sprintf("设备将在%.1f秒后重启。", float64(cmd.DelayMs)/1000.0)
	return nil
}

// --- alarm_create ---

func validateAlarmCreate(_ *Plane, cmd *Command) error {
	if cmd.DelayMs < 1000 || cmd.DelayMs > 24*3600*1000 {
		return fmt.Errorf("闹钟延迟非法: %dms", cmd.DelayMs)
	}
	return nil
}

func executeAlarmCreate(p *Plane, ctx context.Context, cmd *Command, out *Result) error {
	alarmID, err := p.armAlarm(cmd)
	if err != nil {
		return err
	}
	out.PendingAction = true
	out.ResponseText = fmt.Sprintf("已创建闹钟#%d，%.1f秒后提醒你。", alarmID, float64(cmd.DelayMs)/1000.0)
	return nil
}

// --- alarm_list ---

func executeAlarmList(p *Plane, _ context.Context, _ *Command, out *Result) error {
	infos := p.ActiveAlarms()
	if len(infos) == 0 {
		out.ResponseText = "当前没有活动闹钟。"
		return nil
	}
	text := fmt.Sprintf("当前有%d个闹钟：", len(infos))
	for i, info := range infos {
		sec := (info.RemainingMs + 999) / 1000
		text += fmt.Sprintf("#%d(%ds)", info.AlarmID, sec)
		if i != len(infos)-1 {
			text += " "
		}
	}
	out.ResponseText = text
	return nil
}

// --- alarm_clear ---

func executeAlarmClear(p *Plane, _ context.Context, cmd *Command, out *Result) error {
	cleared, found := p.clearAlarms(cmd.AlarmID)
	if cmd.AlarmID != 0 && !found {
		return fmt.Errorf("%w: 未找到闹钟#%d", mimierr.ErrNotFound, cmd.AlarmID)
	}
	if cmd.AlarmID == 0 && cleared == 0 {
		out.ResponseText = "当前没有活动闹钟。"
		return nil
	}
	if cmd.AlarmID != 0 {
		out.ResponseText = fmt.Sprintf("已取消闹钟#%d。", cmd.AlarmID)
	} else {
		out.ResponseText = fmt.Sprintf("已取消全部闹钟（%d个）。", cleared)
	}
	return nil
}

// --- temp_rule_create ---

func validateTempRuleCreate(_ *Plane, cmd *Command) error {
	if cmd.TempThresholdX10 < -500 || cmd.TempThresholdX10 > 1200 {
		return fmt.Errorf("温度阈值超出范围(-50.0~120.0°C): %.1f", float64(cmd.TempThresholdX10)/10.0)
	}
	if cmd.TempComparator != ComparatorGTE && cmd.TempComparator != ComparatorLTE {
		return fmt.Errorf("温度比较符无效")
	}
	if cmd.TempActionType != ActionRemind && cmd.TempActionType != ActionSetVolume {
		return fmt.Errorf("温度动作类型无效")
	}
	if cmd.TempActionType == ActionSetVolume && (cmd.TempActionValue < 0 || cmd.TempActionValue > 100) {
		return fmt.Errorf("目标音量无效: %d", cmd.TempActionValue)
	}
	return nil
}

func executeTempRuleCreate(p *Plane, _ context.Context, cmd *Command, out *Result) error {
	ruleID, slot, err := p.createTempRule(cmd)
	if err != nil {
		return err
	}
	cmpStr := ">="
	if slot.comparator == ComparatorLTE {
		cmpStr = "<="
	}
	deg := float64(slot.thresholdX10) / 10.0
	if slot.actionType == ActionSetVolume {
		out.ResponseText = fmt.Sprintf("已创建温度规则#%d：温度%s%.1f°C时，音量设为%d%%。", ruleID, cmpStr, deg, slot.actionValue)
	} else {
		note := slot.note
		if note == "" {
			note = "温度事件触发"
		}
		out.ResponseText = fmt.Sprintf("已创建温度规则#%d：温度%s%.1f°C时提醒“%s”。", ruleID, cmpStr, deg, note)
	}
	return nil
}

// --- temp_rule_list ---

func executeTempRuleList(p *Plane, _ context.Context, _ *Command, out *Result) error {
	rules := p.TemperatureRules()
	if len(rules) == 0 {
		out.ResponseText = "当前没有温度规则。"
		return nil
	}
	text := fmt.Sprintf("当前有%d条温度规则：", len(rules))
	for i, r := range rules {
		cmpStr := ">="
		if r.Comparator == ComparatorLTE {
			cmpStr = "<="
		}
		deg := float64(r.ThresholdX10) / 10.0
		if r.ActionType == ActionSetVolume {
			text += fmt.Sprintf("#%d(%s%.1f°C->%d%%)", r.RuleID, cmpStr, deg, r.ActionValue)
		} else {
			text += fmt.Sprintf("#%d(%s%.1f°C->提醒)", r.RuleID, cmpStr, deg)
		}
		if i != len(rules)-1 {
			text += " "
		}
	}
	out.ResponseText = text
	return nil
}

// --- temp_rule_clear ---

func executeTempRuleClear(p *Plane, _ context.Context, cmd *Command, out *Result) error {
	cleared, found := p.clearTempRules(cmd.TempRuleID)
	if cmd.TempRuleID != 0 && !found {
		return fmt.Errorf("%w: 未找到温度规则#%d", mimierr.ErrNotFound, cmd.TempRuleID)
	}
	if cmd.TempRuleID == 0 && cleared == 0 {
		out.ResponseText = "当前没有温度规则。"
		return nil
	}
	if cmd.TempRuleID != 0 {
		out.ResponseText = fmt.Sprintf("已删除温度规则#%d。", cmd.TempRuleID)
	} else {
		out.ResponseText = fmt.Sprintf("已清空温度规则（%d条）。", cleared)
	}
	return nil
}

// --- play_music / stop_music ---

func validatePlayMusic(_ *Plane, cmd *Command) error {
	if cmd.Note == "" {
		return fmt.Errorf("音乐内容为空")
	}
	return nil
}

func executePlayMusic(p *Plane, ctx context.Context, cmd *Command, out *Result) error {
	if err := p.deps.Voice.PlayMusic(ctx, cmd.Note); err != nil {
		return fmt.Errorf("播放音乐失败: %w", err)
	}
	out.PendingAction = true
	out.ResponseText = "" // silent on success, so as not to interrupt playback
	return nil
}

func executeStopMusic(p *Plane, ctx context.Context, _ *Command, out *Result) error {
	if err := p.deps.Voice.StopMusic(ctx); err != nil {
		return fmt.Errorf("停止音乐失败: %w", err)
	}
	out.ResponseText = "已停止音乐播放。"
	return nil
}
