// Package orchestrator implements the per-turn control plane/ReAct pipeline:
// fast-path dispatch to the control plane, layered system-prompt assembly,
// the hard-budgeted tool loop, session/memory updates, and outbound delivery.
package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Layer is a prompt layer's priority; lower values sort first, matching the
// teacher's PromptLayer ordering. No layer is ever trimmed; the composed
// prompt's size is checked only by the ReAct loop's context budget.
type Layer int

const (
	LayerCore         Layer = 0
	LayerSafety       Layer = 5
	LayerIdentity     Layer = 10
	LayerBootstrap    Layer = 15
	LayerBusiness     Layer = 20
	LayerSkills       Layer = 40
	LayerMemory       Layer = 50
	LayerDailyNotes   Layer = 55
	LayerTemporal     Layer = 60
	LayerConversation Layer = 70
	LayerRuntime      Layer = 80
	LayerContext      Layer = 90
)

type layerEntry struct {
	layer   Layer
	content string
}

// TurnContext is the per-turn context block spec §4.3's system-prompt
// assembly appends last: the originating channel and chat_id, so the
// assembled prompt can vary its behavior (e.g. brevity) by surface without
// the LLM needing to infer it from conversational history.
type TurnContext struct {
	SourceChannel string
	SourceChatID  string
}

// PromptComposer assembles the system prompt from a fixed set of layers,
// generalizing the teacher's PromptComposer to this domain's assistant.
type PromptComposer struct {
	assistantName   string
	customInstr     string
	businessContext string
	skillPrompt     func() string
	longTermMemory  func() string
	recentNotes     func() string
}

// NewPromptComposer constructs a composer for the named assistant persona.
func NewPromptComposer(assistantName, customInstructions, businessContext string) *PromptComposer {
	return &PromptComposer{
		assistantName:   assistantName,
		customInstr:     customInstructions,
		businessContext: businessContext,
	}
}

// SetSkillPrompt installs the callback supplying the active skill layer.
func (p *PromptComposer) SetSkillPrompt(fn func() string) { p.skillPrompt = fn }

// SetLongTermMemory installs the callback supplying the memory layer.
func (p *PromptComposer) SetLongTermMemory(fn func() string) { p.longTermMemory = fn }

// SetRecentNotes installs the callback supplying the last-3-days daily
// notes layer, per spec §4.3's system-prompt assembly order.
func (p *PromptComposer) SetRecentNotes(fn func() string) { p.recentNotes = fn }

// Compose builds the final system prompt for one turn, in layer order: the
// fixed preamble and safety layers, the optional custom-instructions,
// business-context and skill layers, long-term memory, recent daily notes,
// the current time, recent conversation history, a runtime note, and
// finally the per-turn {source_channel, source_chat_id} context block. No
// config files are read; the custom-instructions and business-context text
// is whatever the caller passed to NewPromptComposer.
func (p *PromptComposer) Compose(recentHistory string, turnCtx TurnContext) string {
	layers := []layerEntry{
		{LayerCore, p.buildCoreLayer()},
		{LayerSafety, p.buildSafetyLayer()},
	}
	if p.customInstr != "" {
		layers = append(layers, layerEntry{LayerIdentity, "## Custom Instructions\n\n" + p.customInstr})
	}
	if p.businessContext != "" {
		layers = append(layers, layerEntry{LayerBusiness, "## Context\n\n" + p.businessContext})
	}
	if p.skillPrompt != nil {
		if s := p.skillPrompt(); s != "" {
			layers = append(layers, layerEntry{LayerSkills, s})
		}
	}
	if p.longTermMemory != nil {
		if m := p.longTermMemory(); m != "" {
			layers = append(layers, layerEntry{LayerMemory, "## Memory\n\n" + m})
		}
	}
	if p.recentNotes != nil {
		if n := p.recentNotes(); n != "" {
			layers = append(layers, layerEntry{LayerDailyNotes, "## Recent Notes\n\n" + n})
		}
	}
	layers = append(layers, layerEntry{LayerTemporal, p.buildTemporalLayer()})
	if recentHistory != "" {
		layers = append(layers, layerEntry{LayerConversation, "## Recent Conversation\n\n" + recentHistory})
	}
	layers = append(layers, layerEntry{LayerRuntime, p.buildRuntimeLayer()})
	layers = append(layers, layerEntry{LayerContext, buildContextBlock(turnCtx)})

	return assembleLayers(layers)
}

// buildContextBlock renders the per-turn {source_channel, source_chat_id}
// block spec §4.3 requires last in the assembled system prompt.
func buildContextBlock(turnCtx TurnContext) string {
	return fmt.Sprintf("## Turn Context\n\nsource_channel=%s\nsource_chat_id=%s", turnCtx.SourceChannel, turnCtx.SourceChatID)
}

func (p *PromptComposer) buildCoreLayer() string {
	name := p.assistantName
	if name == "" {
		name = "Mimi"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an on-device personal voice and chat assistant.\n\n", name)
	b.WriteString("## Tooling\n\n")
	b.WriteString("You have access to a small set of device and information tools. ")
	b.WriteString("Call tools exactly as listed; tool names are case-sensitive.\n\n")
	b.WriteString("## Tool Call Style\n\n")
	b.WriteString("Do not narrate routine tool calls. Keep replies brief and in plain language.\n")
	return b.String()
}

func (p *PromptComposer) buildSafetyLayer() string {
	return `## Safety

You control real device state (volume, reboot, alarms, temperature rules). Confirm before destructive actions the user has not explicitly requested. Never pursue goals beyond the current request.`
}

func (p *PromptComposer) buildTemporalLayer() string {
	return "## Current Time\n\n" + time.Now().Format("2006-01-02 15:04:05 MST")
}

func (p *PromptComposer) buildRuntimeLayer() string {
	return "Respond concisely; this device has a small display and limited speaker output."
}

func assembleLayers(layers []layerEntry) string {
	sort.SliceStable(layers, func(i, j int) bool { return layers[i].layer < layers[j].layer })
	parts := make([]string, 0, len(layers))
	for _, l := range layers {
		if l.content != "" {
			parts = append(parts, l.content)
		}
	}
	return strings.Join(parts, "\n\n")
}
