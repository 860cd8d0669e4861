package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/mimiclaw/internal/bus"
	"github.com/jholhewres/mimiclaw/internal/config"
	"github.com/jholhewres/mimiclaw/internal/controlplane"
	"github.com/jholhewres/mimiclaw/internal/cronservice"
	"github.com/jholhewres/mimiclaw/internal/dispatcher"
	"github.com/jholhewres/mimiclaw/internal/llm"
	"github.com/jholhewres/mimiclaw/internal/memorystore"
	"github.com/jholhewres/mimiclaw/internal/orchestrator"
	"github.com/jholhewres/mimiclaw/internal/ports"
	"github.com/jholhewres/mimiclaw/internal/secrets"
	"github.com/jholhewres/mimiclaw/internal/sessionstore"
)

const popInboundTimeout = time.Second

// runtime bundles every wired subsystem a command needs to drive the
// assistant, mirroring assistant.go's role as the single composition root.
type runtime struct {
	cfg          *config.Config
	bus          *bus.Bus
	controlPlane *controlplane.Plane
	orchestrator *orchestrator.Orchestrator
	dispatcher   *dispatcher.Dispatcher
	cron         *cronservice.Service
	sessions     *sessionstore.Store
	memory       *memorystore.Store
	wsGateway    *ports.WebSocketGateway
	logger       *slog.Logger
}

// buildRuntime loads config, resolves secrets, and wires every subsystem
// together: bus → control plane + orchestrator (consumers of inbound) →
// dispatcher (consumer of outbound) → cron (producer of inbound).
func buildRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd)
	secrets.ResolveAPIKey(cfg, logger)

	b := bus.New(bus.Config{
		QueueLen:            cfg.Bus.QueueLen,
		OutboundRetryMax:    cfg.Bus.OutboundRetryMax,
		OutboundRetryBaseMs: cfg.Bus.OutboundRetryBaseMs,
	}, logger)

	sessions, err := sessionstore.Open(cfg.SessionDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	memory, err := memorystore.Open(cfg.MemoryDBPath)
	if err != nil {
		sessions.Close()
		return nil, fmt.Errorf("opening memory store: %w", err)
	}

	cpDeps := controlplane.Deps{
		Volume:       ports.NewInMemoryVolumeSink(50),
		Voice:        &ports.LoggingVoiceOut{Logger: logger},
		Reboot:       &ports.LoggingRebooter{Logger: logger},
		PushOutbound: b.PushOutbound,
	}
	cpCfg := controlplane.Config{
		MaxAlarms:          cfg.ControlPlane.MaxAlarms,
		MaxTempRules:       cfg.ControlPlane.MaxTempRules,
		IdempCacheSize:     cfg.ControlPlane.IdempCacheSize,
		IdempWindowMs:      cfg.ControlPlane.IdempWindowMs,
		AuditSize:          cfg.ControlPlane.AuditSize,
		TempRuleCooldownMs: 60_000,
	}
	plane := controlplane.New(cpCfg, cpDeps, logger)

	llmClient := llm.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.FallbackModels, logger)

	stats := &orchestrator.Stats{}
	composer := orchestrator.NewPromptComposer(cfg.AssistantName, "", "")

	orchCfg := orchestrator.Config{
		MaxContextBytes:     cfg.Orchestrator.MaxContextBytes,
		MaxToolIterations:   cfg.Orchestrator.MaxToolIterations,
		TurnTimeoutMs:       cfg.Orchestrator.TurnTimeoutMs,
		ToolResultMaxBytes:  cfg.Orchestrator.ToolResultMaxBytes,
		ToolResultsTotalMax: cfg.Orchestrator.ToolResultsTotalMax,
		SessionMaxMsgs:      cfg.Orchestrator.SessionMaxMsgs,
	}
	routeHints := orchestrator.NewRouteHintTable(cfg.Orchestrator.RouteHintsPath, time.Duration(cfg.Orchestrator.RouteHintReloadMs)*time.Millisecond)
	skillRules := orchestrator.NewSkillRuleSet(cfg.Orchestrator.SkillRulesPath, time.Duration(cfg.Orchestrator.SkillRuleReloadMs)*time.Millisecond)

	orch := orchestrator.New(orchCfg, orchestrator.Deps{
		ControlPlane: plane,
		LLM:          llm.PortAdapter{Client: llmClient},
		Sessions:     sessions,
		Memory:       memory,
		RouteHints:   routeHints,
		SkillRules:   skillRules,
		PushOutbound: b.PushOutbound,
	}, composer, stats, logger)

	wsGateway := ports.NewWebSocketGateway(b.PushInbound, logger)

	disp := dispatcher.New(dispatcher.Config{
		MaxAttempts: cfg.Bus.OutboundSendRetryMax,
		RetryBaseMs: cfg.Bus.OutboundSendRetryBaseMs,
	}, b, map[string]ports.ChatSender{
		bus.ChannelCLI:       &ports.LoggingChatSender{Channel: bus.ChannelCLI, Logger: logger},
		bus.ChannelTelegram:  &ports.LoggingChatSender{Channel: bus.ChannelTelegram, Logger: logger},
		bus.ChannelWebSocket: wsGateway,
	}, &ports.LoggingVoiceOut{Logger: logger}, stats, logger)

	cron := cronservice.New(b.PushInbound, logger)
	if cfg.CronSchedule != "" && cfg.CronTask != "" {
		if err := cron.SetSchedule(context.Background(), cfg.CronSchedule, cfg.CronTask); err != nil {
			logger.Warn("invalid cron schedule in config", "err", err)
		}
	}

	return &runtime{
		cfg:          cfg,
		bus:          b,
		controlPlane: plane,
		orchestrator: orch,
		dispatcher:   disp,
		cron:         cron,
		sessions:     sessions,
		memory:       memory,
		wsGateway:    wsGateway,
		logger:       logger,
	}, nil
}

// run starts the dispatcher's pop loop, the cron scheduler, and the
// orchestrator's single-threaded inbound pop loop, blocking until ctx is
// cancelled. Per spec §5's ordering guarantees, one turn runs to completion
// before the next inbound message is popped — turns are never processed
// concurrently with each other, even across distinct chat_ids.
func (r *runtime) run(ctx context.Context) {
	go r.dispatcher.Run(ctx)
	r.cron.Start()
	defer r.cron.Stop()

	if r.cfg.WebSocketAddr != "" {
		srv := &http.Server{Addr: r.cfg.WebSocketAddr, Handler: r.wsGateway}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("websocket server stopped", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
	}

	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := r.bus.PopInbound(ctx, popInboundTimeout)
		if err != nil {
			continue
		}
		if err := r.orchestrator.HandleMessage(ctx, msg); err != nil {
			r.logger.Error("turn failed", "channel", msg.Channel, "chat_id", msg.ChatID, "err", err)
		}
	}
}

func (r *runtime) close() {
	r.controlPlane.Close()
	r.sessions.Close()
	r.memory.Close()
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := config.FindFile(); found != "" {
		cfg, err := config.LoadFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		return cfg, nil
	}

	return config.DefaultConfig(), nil
}
