package orchestrator

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jholhewres/mimiclaw/internal/bus"
)

// RouteHintTable is the file-driven, TTL-reloaded channel×media_type hint
// table of spec §4.3's "User content transformation", adapted from the
// teacher's PromptComposer skill-prompt callback pattern to a plain
// key/value cache instead of a callback, since route hints are looked up by
// (channel, media_type) rather than computed once per turn.
type RouteHintTable struct {
	mu       sync.Mutex
	hints    map[string]string
	path     string
	reload   time.Duration
	lastLoad time.Time
}

// NewRouteHintTable constructs a table seeded with built-in defaults. path
// may be empty, in which case only the built-ins are ever used.
func NewRouteHintTable(path string, reloadInterval time.Duration) *RouteHintTable {
	if reloadInterval <= 0 {
		reloadInterval = time.Minute
	}
	t := &RouteHintTable{
		hints:  defaultRouteHints(),
		path:   path,
		reload: reloadInterval,
	}
	return t
}

func defaultRouteHints() map[string]string {
	return map[string]string{
		routeHintKey(bus.ChannelVoice, bus.MediaVoice):       "This message was transcribed from speech; expect informal phrasing and occasional mis-recognized words.",
		routeHintKey("*", bus.MediaPhoto):                   "The user sent a photo. If no vision tool is available, ask them to describe what's in it.",
		routeHintKey("*", bus.MediaDocument):                "The user sent a document. Summarize or act on it only if its contents are available as tool output.",
		routeHintKey("*", bus.MediaMedia):                   "The user sent a media attachment with no text body; respond based on its metadata if content is unavailable.",
		routeHintKey(bus.ChannelCLI, bus.MediaText):          "",
		routeHintKey(bus.ChannelWebSocket, bus.MediaText):    "",
	}
}

func routeHintKey(channel, mediaType string) string { return channel + ":" + mediaType }

// Get returns the configured hint for (channel, mediaType), falling back to
// a channel-agnostic "*" entry, or "" if none applies. Reloads the backing
// file first if the TTL has elapsed.
func (t *RouteHintTable) Get(channel, mediaType string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reloadLocked()
	if h, ok := t.hints[routeHintKey(channel, mediaType)]; ok && h != "" {
		return h
	}
	if h, ok := t.hints[routeHintKey("*", mediaType)]; ok {
		return h
	}
	return ""
}

func (t *RouteHintTable) reloadLocked() {
	if t.path == "" {
		return
	}
	if !t.lastLoad.IsZero() && time.Since(t.lastLoad) < t.reload {
		return
	}
	t.lastLoad = time.Now()

	data, err := os.ReadFile(t.path)
	if err != nil {
		return // keep whatever was previously loaded (or the built-ins)
	}
	var overlay map[string]string
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return
	}
	merged := defaultRouteHints()
	for k, v := range overlay {
		merged[k] = v
	}
	t.hints = merged
}

// SkillRule is one file-driven skill-hint matcher: if any Keyword is
// contained in the turn's raw user content, Hint is a candidate for the
// skill-hints block, ranked by Priority (lower first) then Order (lower
// first) among ties.
type SkillRule struct {
	Keywords []string `yaml:"keywords"`
	Hint     string   `yaml:"hint"`
	Priority int      `yaml:"priority"`
	Order    int      `yaml:"order"`
}

// maxSkillHints bounds the skill-hints block to spec §4.3's "up to 4
// best-priority matches".
const maxSkillHints = 4

// SkillRuleSet is the file-driven, TTL-reloaded skill-hint rule table.
type SkillRuleSet struct {
	mu       sync.Mutex
	rules    []SkillRule
	path     string
	reload   time.Duration
	lastLoad time.Time
}

// NewSkillRuleSet constructs a rule set seeded with built-in defaults.
func NewSkillRuleSet(path string, reloadInterval time.Duration) *SkillRuleSet {
	if reloadInterval <= 0 {
		reloadInterval = time.Minute
	}
	return &SkillRuleSet{rules: defaultSkillRules(), path: path, reload: reloadInterval}
}

func defaultSkillRules() []SkillRule {
	return []SkillRule{
		{Keywords: []string{"天气", "气温", "下雨"}, Hint: "Call the weather tool for current conditions rather than guessing.", Priority: 10, Order: 0},
		{Keywords: []string{"提醒我", "备忘", "记一下"}, Hint: "Consider whether this should be stored as a long-term memory or daily note.", Priority: 20, Order: 0},
		{Keywords: []string{"几点", "现在几号", "今天星期"}, Hint: "Call the time/date tool rather than guessing the current date or time.", Priority: 10, Order: 1},
		{Keywords: []string{"唱歌", "放首歌", "播放音乐"}, Hint: "This is a music request; prefer the play_music capability over a text reply.", Priority: 30, Order: 0},
	}
}

// Match returns up to maxSkillHints hints whose keywords appear in content,
// ordered by Priority then Order.
func (s *SkillRuleSet) Match(content string) []string {
	s.mu.Lock()
	rules := append([]SkillRule(nil), s.reloadedRulesLocked()...)
	s.mu.Unlock()

	type scored struct {
		rule SkillRule
	}
	var matched []scored
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(content, kw) {
				matched = append(matched, scored{r})
				break
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].rule.Priority != matched[j].rule.Priority {
			return matched[i].rule.Priority < matched[j].rule.Priority
		}
		return matched[i].rule.Order < matched[j].rule.Order
	})

	out := make([]string, 0, maxSkillHints)
	for _, m := range matched {
		if len(out) >= maxSkillHints {
			break
		}
		out = append(out, m.rule.Hint)
	}
	return out
}

func (s *SkillRuleSet) reloadedRulesLocked() []SkillRule {
	if s.path == "" {
		return s.rules
	}
	if !s.lastLoad.IsZero() && time.Since(s.lastLoad) < s.reload {
		return s.rules
	}
	s.lastLoad = time.Now()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.rules
	}
	var rules []SkillRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return s.rules
	}
	s.rules = rules
	return s.rules
}

// runtimeHint implements spec §4.3's per-media-type forced-tool-call hint:
// a voice-channel volume query is nudged to call get_volume before
// answering, even though the control plane's intent parser usually
// short-circuits such turns before they ever reach the LLM.
func runtimeHint(msg bus.Message) string {
	if msg.MediaType != bus.MediaVoice {
		return ""
	}
	if !strings.Contains(msg.Content, "音量") {
		return ""
	}
	queryWords := []string{"多少", "现在", "几"}
	hasQuery := false
	for _, w := range queryWords {
		if strings.Contains(msg.Content, w) {
			hasQuery = true
			break
		}
	}
	if !hasQuery {
		return ""
	}
	return "Before answering, call the get_volume tool to read the actual current volume; do not guess."
}

// messageMetadataBlock describes a non-text attachment so the LLM has
// something to act on even when it cannot itself fetch the file. Voice
// messages are excluded: their content is the transcription itself, not an
// attachment alongside it.
func messageMetadataBlock(msg bus.Message) string {
	switch msg.MediaType {
	case bus.MediaPhoto, bus.MediaDocument, bus.MediaMedia:
	default:
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[attachment] media_type=%s", msg.MediaType)
	if msg.FileID != "" {
		fmt.Fprintf(&b, " file_id=%s", msg.FileID)
	}
	if msg.FilePath != "" {
		fmt.Fprintf(&b, " file_path=%s", msg.FilePath)
	}
	return b.String()
}

// composeUserContent builds the text fed to the LLM for one turn: the raw
// content plus, when applicable, a route hint, a runtime hint, a skill
// hints block, and a message-metadata block, per spec §4.3's "User content
// transformation". If none apply the raw content is returned unchanged.
func (o *Orchestrator) composeUserContent(msg bus.Message) string {
	parts := []string{msg.Content}

	if o.deps.RouteHints != nil {
		if h := o.deps.RouteHints.Get(msg.Channel, msg.MediaType); h != "" {
			parts = append(parts, h)
		}
	}
	if h := runtimeHint(msg); h != "" {
		parts = append(parts, h)
	}
	if o.deps.SkillRules != nil {
		if hints := o.deps.SkillRules.Match(msg.Content); len(hints) > 0 {
			var b strings.Builder
			b.WriteString("[skill hints]")
			for _, h := range hints {
				b.WriteString("\n- ")
				b.WriteString(h)
			}
			parts = append(parts, b.String())
		}
	}
	if meta := messageMetadataBlock(msg); meta != "" {
		parts = append(parts, meta)
	}

	return strings.Join(parts, "\n\n")
}
