package controlplane

import (
	"strings"

	"github.com/jholhewres/mimiclaw/internal/bus"
)

// initCommand seeds a Command's routing fields from the inbound message and
// derives its request id (meta_json.request_id if present, else the
// "auto-"+fnv1a32 fallback), mirroring init_command_common + build_request_id.
func initCommand(msg bus.Message) Command {
	return Command{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		RequestID: buildRequestID(msg),
	}
}

// parseVolumeCommand recognizes get_volume / set_volume voice commands.
// currentVolume supplies the base for relative adjustments.
func parseVolumeCommand(msg bus.Message, currentVolume int) (cmd Command, reason string, recognized bool) {
	text := msg.Content
	if !strings.Contains(text, "音量") {
		return Command{}, "", false
	}

	conceptual := []string{"什么是音量", "音量是什么", "音量原理", "音量单位", "音量概念"}
	if containsAny(text, conceptual) {
		return Command{}, "", false
	}

	queryKW := []string{"多少", "几", "当前", "现在", "查询", "查看", "告诉我", "是多少", "啥", "?"}
	absoluteKW := []string{"调到", "调成", "设置", "设为", "改到", "改成", "变成", "开到"}
	increaseKW := []string{"增大", "增加", "调大", "大一点", "提高", "升高"}
	decreaseKW := []string{"减小", "减少", "调小", "小一点", "降低", "调低"}

	askQuery := containsAny(text, queryKW)
	isAbsolute := containsAny(text, absoluteKW)
	isIncrease := containsAny(text, increaseKW)
	isDecrease := containsAny(text, decreaseKW)
	hasAdjustVerb := isAbsolute || isIncrease || isDecrease ||
		strings.Contains(text, "静音") || strings.Contains(text, "最大") || strings.Contains(text, "最小")

	cmd = initCommand(msg)

	if !hasAdjustVerb && askQuery {
		cmd.Capability = CapGetVolume
		return cmd, "", true
	}
	if !hasAdjustVerb {
		return Command{}, "", false
	}

	cmd.Capability = CapSetVolume

	if strings.Contains(text, "静音") || strings.Contains(text, "最小") {
		cmd.TargetValue = 0
		return cmd, "", true
	}
	if strings.Contains(text, "最大") {
		cmd.TargetValue = 100
		return cmd, "", true
	}

	value, hasValue := parsePercentValue(text)
	if !hasValue && (isIncrease || isDecrease) {
		value = 10
		hasValue = true
	}
	if !hasValue {
		return cmd, "未识别到目标音量，请说例如“调到30%”或“减小10%”。", true
	}

	if isIncrease || isDecrease {
		delta := clampInt(value, 0, 100)
		target := currentVolume + delta
		if isDecrease {
			target = currentVolume - delta
			delta = -delta
		}
		cmd.Relative = true
		cmd.DeltaValue = delta
		cmd.TargetValue = clampInt(target, 0, 100)
	} else {
		cmd.TargetValue = clampInt(value, 0, 100)
	}
	return cmd, "", true
}

// parseRebootCommand recognizes "...重启..." voice commands, excluding the
// negated "不要重启" phrasing.
func parseRebootCommand(msg bus.Message) (Command, bool) {
	text := msg.Content
	if !strings.Contains(text, "重启") {
		return Command{}, false
	}
	if strings.Contains(text, "不要重启") {
		return Command{}, false
	}

	cmd := initCommand(msg)
	cmd.Capability = CapReboot

	minutes := parseLastNumberBefore(text, "分钟后")
	seconds := parseLastNumberBefore(text, "秒后")
	switch {
	case minutes > 0:
		cmd.DelayMs = uint32(minutes) * 60 * 1000
	case seconds > 0:
		cmd.DelayMs = uint32(seconds) * 1000
	default:
		cmd.DelayMs = 2000
	}
	return cmd, true
}

// parseAlarmCommand recognizes alarm create/list/clear voice commands.
func parseAlarmCommand(msg bus.Message) (Command, bool) {
	text := msg.Content
	if !strings.Contains(text, "闹钟") && !strings.Contains(text, "提醒") {
		return Command{}, false
	}

	cmd := initCommand(msg)

	if strings.Contains(text, "查看闹钟") || strings.Contains(text, "闹钟列表") || strings.Contains(text, "还有几个闹钟") {
		cmd.Capability = CapAlarmList
		return cmd, true
	}
	if strings.Contains(text, "取消闹钟") || strings.Contains(text, "清空闹钟") || strings.Contains(text, "删除闹钟") {
		cmd.Capability = CapAlarmClear
		if id := parseLastNumberBefore(text, "闹钟"); id > 0 {
			cmd.AlarmID = uint32(id)
		}
		return cmd, true
	}

	minutes := parseLastNumberBefore(text, "分钟后")
	seconds := parseLastNumberBefore(text, "秒后")
	if minutes <= 0 && seconds <= 0 {
		return Command{}, false
	}

	cmd.Capability = CapAlarmCreate
	if minutes > 0 {
		cmd.DelayMs = uint32(minutes) * 60 * 1000
	} else {
		cmd.DelayMs = uint32(seconds) * 1000
	}
	cmd.Note = extractNote(text, "提醒", "时间到了。")
	return cmd, true
}

// parseTempRuleCommand recognizes temperature-rule create/list/clear voice
// commands. reason is set (with recognized=true) when a rule phrase is
// matched but a required field is missing.
func parseTempRuleCommand(msg bus.Message) (cmd Command, reason string, recognized bool) {
	text := msg.Content
	if !strings.Contains(text, "温度") {
		return Command{}, "", false
	}

	listRule := strings.Contains(text, "温度规则") &&
		(strings.Contains(text, "查看") || strings.Contains(text, "列表") || strings.Contains(text, "多少"))
	clearRule := strings.Contains(text, "温度规则") &&
		(strings.Contains(text, "清空") || strings.Contains(text, "删除") || strings.Contains(text, "取消"))
	setRule := (strings.Contains(text, "规则") || strings.Contains(text, "温度")) &&
		(strings.Contains(text, "高于") || strings.Contains(text, "超过") || strings.Contains(text, "大于") ||
			strings.Contains(text, "低于") || strings.Contains(text, "小于") ||
			strings.Contains(text, "不高于") || strings.Contains(text, "不低于")) &&
		(strings.Contains(text, "提醒") || strings.Contains(text, "音量"))

	if !listRule && !clearRule && !setRule {
		return Command{}, "", false
	}

	cmd = initCommand(msg)

	if listRule {
		cmd.Capability = CapTempRuleList
		return cmd, "", true
	}
	if clearRule {
		cmd.Capability = CapTempRuleClear
		if id := parseLastNumberBefore(text, "规则"); id > 0 {
			cmd.TempRuleID = uint32(id)
		}
		return cmd, "", true
	}

	cmd.Capability = CapTempRuleCreate

	thresholdX10, ok := parseTemperatureThresholdX10(text)
	if !ok {
		return cmd, "未识别到温度阈值，请说例如“温度高于30度时音量调到40%”。", true
	}
	cmd.TempThresholdX10 = thresholdX10

	switch {
	case strings.Contains(text, "不高于"):
		cmd.TempComparator = ComparatorLTE
	case strings.Contains(text, "高于") || strings.Contains(text, "超过") || strings.Contains(text, "大于") || strings.Contains(text, "不低于"):
		cmd.TempComparator = ComparatorGTE
	case strings.Contains(text, "低于") || strings.Contains(text, "小于") || strings.Contains(text, "不高于"):
		cmd.TempComparator = ComparatorLTE
	default:
		return cmd, "未识别到比较条件，请使用“高于/低于”。", true
	}

	if strings.Contains(text, "音量") {
		volume, ok := parsePercentValue(text)
		if !ok {
			return cmd, "未识别到目标音量，请说例如“音量调到40%”。", true
		}
		cmd.TempActionType = ActionSetVolume
		cmd.TempActionValue = clampInt(volume, 0, 100)
		return cmd, "", true
	}

	cmd.TempActionType = ActionRemind
	cmd.Note = extractNote(text, "提醒", "温度事件触发")
	return cmd, "", true
}

// parseMusicCommand recognizes play/stop music voice commands.
func parseMusicCommand(msg bus.Message) (Command, bool) {
	text := msg.Content

	stopKW := []string{"停止音乐", "暂停音乐", "关闭音乐", "停掉音乐", "停歌", "别放了"}
	playKW := []string{"播放音乐", "放音乐", "来点音乐", "来首歌", "放首歌", "播一首"}
	isStop := containsAny(text, stopKW)
	isPlay := containsAny(text, playKW)
	if !isStop && !isPlay {
		return Command{}, false
	}

	cmd := initCommand(msg)
	if isStop {
		cmd.Capability = CapStopMusic
		return cmd, true
	}

	cmd.Capability = CapPlayMusic
	triggers := []string{"播放音乐", "放音乐", "来点音乐", "来首歌", "放首歌", "播一首"}
	note := text
	for _, trig := range triggers {
		if idx := strings.Index(text, trig); idx >= 0 {
			note = text[idx+len(trig):]
			break
		}
	}
	note = trimPunct(note)
	if note == "" {
		note = "轻音乐"
	}
	cmd.Note = note
	return cmd, true
}

// extractNote returns the text following keyword (skipping a leading "我");
// if keyword is absent it returns the whole text. fallback is returned only
// when that result is empty.
func extractNote(text, keyword, fallback string) string {
	idx := strings.Index(text, keyword)
	var rest string
	if idx < 0 {
		rest = text
	} else {
		rest = text[idx+len(keyword):]
		rest = strings.TrimLeft(rest, " \t")
		rest = strings.TrimPrefix(rest, "我")
		rest = strings.TrimLeft(rest, " \t")
	}
	if rest == "" {
		return fallback
	}
	return rest
}
