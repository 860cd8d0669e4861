package controlplane

import (
	"strconv"
	"strings"
)

// zhDigitValue maps a single Chinese digit rune to its value, or -1.
func zhDigitValue(r rune) int {
	switch r {
	case '零', '〇':
		return 0
	case '一':
		return 1
	case '二', '两':
		return 2
	case '三':
		return 3
	case '四':
		return 4
	case '五':
		return 5
	case '六':
		return 6
	case '七':
		return 7
	case '八':
		return 8
	case '九':
		return 9
	default:
		return -1
	}
}

// zhUnitValue maps a Chinese positional unit rune (十/百) to its multiplier,
// or 0 if r is not a unit.
func zhUnitValue(r rune) int {
	switch r {
	case '十':
		return 10
	case '百':
		return 100
	default:
		return 0
	}
}

// parseIntASCII parses leading ASCII whitespace then an ASCII decimal integer
// at the start of s. Returns the value and the number of runes consumed.
func parseIntASCII(s string) (value int, consumed int, ok bool) {
	runes := []rune(s)
	i := 0
	for i < len(runes) && (runes[i] == ' ' || runes[i] == '\t') {
		i++
	}
	start := i
	for i < len(runes) && runes[i] >= '0' && runes[i] <= '9' {
		i++
	}
	if i == start {
		return 0, 0, false
	}
	v, err := strconv.Atoi(string(runes[start:i]))
	if err != nil {
		return 0, 0, false
	}
	return v, i, true
}

// parseIntZh parses a Chinese numeral (digits + positional units) at the
// start of s, e.g. "三十" = 30, "二十五" = 25, "十" = 10, "五" = 5.
func parseIntZh(s string) (value int, consumed int, ok bool) {
	runes := []rune(s)
	result := 0
	current := 0
	seen := false
	i := 0

	for i < len(runes) {
		r := runes[i]
		if d := zhDigitValue(r); d >= 0 {
			current = d
			seen = true
			i++
			continue
		}
		if u := zhUnitValue(r); u > 0 {
			if !seen || current == 0 {
				current = 1
			}
			result += current * u
			current = 0
			seen = true
			i++
			continue
		}
		break
	}

	if !seen {
		return 0, 0, false
	}
	result += current
	return result, i, true
}

// parseNumberToken tries an ASCII integer first, then a Chinese numeral.
func parseNumberToken(s string) (value int, consumed int, ok bool) {
	if v, n, ok := parseIntASCII(s); ok {
		return v, n, true
	}
	if v, n, ok := parseIntZh(s); ok {
		return v, n, true
	}
	return 0, 0, false
}

// parseLastNumberBefore finds the last number token that appears fully
// before the first occurrence of keyword in text, returns -1 if none.
func parseLastNumberBefore(text, keyword string) int {
	idx := strings.Index(text, keyword)
	if idx < 0 {
		return -1
	}
	runes := []rune(text)
	keyRuneIdx := len([]rune(text[:idx]))

	last := -1
	i := 0
	for i < keyRuneIdx {
		if v, n, ok := parseNumberToken(string(runes[i:])); ok && i+n <= keyRuneIdx {
			last = v
			i += n
			continue
		}
		i++
	}
	return last
}

// parsePercentValue extracts a percentage from text: "百分之N", "N%", or a
// bare number, in that priority order.
func parsePercentValue(text string) (int, bool) {
	if idx := strings.Index(text, "百分之"); idx >= 0 {
		rest := text[idx+len("百分之"):]
		if v, _, ok := parseNumberToken(rest); ok {
			return v, true
		}
	}

	runes := []rune(text)
	for i := range runes {
		if v, n, ok := parseIntASCII(string(runes[i:])); ok {
			after := i + n
			for after < len(runes) && runes[after] == ' ' {
				after++
			}
			if after < len(runes) && runes[after] == '%' {
				return v, true
			}
		}
	}

	for i := range runes {
		if v, _, ok := parseIntASCII(string(runes[i:])); ok {
			return v, true
		}
	}
	return 0, false
}

// parseTemperatureThresholdX10 finds a Celsius value before "摄氏度"/"度"/"℃"
// and returns it scaled by 10 (tenths of a degree).
func parseTemperatureThresholdX10(text string) (int, bool) {
	celsius := parseLastNumberBefore(text, "摄氏度")
	if celsius < 0 {
		celsius = parseLastNumberBefore(text, "度")
	}
	if celsius < 0 {
		celsius = parseLastNumberBefore(text, "℃")
	}
	if celsius < 0 {
		return 0, false
	}
	return celsius * 10, true
}

// trimPunct trims leading ASCII whitespace, and trailing ASCII whitespace
// plus ASCII or Chinese sentence punctuation (.!? 。！？), matching
// trim_ascii_inplace in the original source.
func trimPunct(s string) string {
	s = strings.TrimLeft(s, " \t\n\r")
	for {
		trimmed := strings.TrimRight(s, " \t\n\r.!?")
		trimmed = strings.TrimSuffix(trimmed, "。")
		trimmed = strings.TrimSuffix(trimmed, "！")
		trimmed = strings.TrimSuffix(trimmed, "？")
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

func containsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
