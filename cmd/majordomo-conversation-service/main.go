// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// majordomo-conversation-service is the conversation daemon: it
// attaches the configured agents, connects them to the hub and the
// model provider, and serves the conversation protocol on a Unix
// socket for the CLI and chat clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/majordomo-home/majordomo/lib/clock"
	"github.com/majordomo-home/majordomo/lib/config"
	"github.com/majordomo-home/majordomo/lib/conversation"
	"github.com/majordomo-home/majordomo/lib/hub"
	"github.com/majordomo-home/majordomo/lib/llm"
	"github.com/majordomo-home/majordomo/lib/process"
	"github.com/majordomo-home/majordomo/lib/prompt"
	"github.com/majordomo-home/majordomo/lib/service"
	"github.com/majordomo-home/majordomo/lib/sessionstore"
	"github.com/majordomo-home/majordomo/lib/tools"
	"github.com/majordomo-home/majordomo/lib/transcript"
	"github.com/majordomo-home/majordomo/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "configuration file (defaults to $MAJORDOMO_CONFIG)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		version.Print("majordomo-conversation-service")
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	systemClock := clock.Real()

	hubClient, err := hub.NewClient(hub.ClientConfig{
		BaseURL:    cfg.Hub.BaseURL,
		Token:      cfg.Hub.Token,
		Expose:     cfg.Hub.Expose,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger.With("component", "hub"),
		Clock:      systemClock,
	})
	if err != nil {
		return fmt.Errorf("creating hub client: %w", err)
	}

	// A bad token will never start working; anything else (hub
	// restarting, network blip) is worth starting through.
	if err := hubClient.Ping(ctx); err != nil {
		if hub.IsAuthFailure(err) {
			return fmt.Errorf("hub rejected the configured token: %w", err)
		}
		logger.Warn("hub unreachable at startup, continuing", "error", err)
	}

	endpoint := cfg.Bedrock.BaseURL
	if endpoint == "" {
		endpoint = llm.EndpointForRegion(cfg.Bedrock.Region)
	}
	provider := llm.NewBedrock(
		&http.Client{Timeout: 2 * time.Minute},
		endpoint,
		cfg.Bedrock.APIKey,
	)

	registry, err := toolRegistry(cfg, hubClient, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Paths.State, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	idleTimeout, err := cfg.Sessions.ParseIdleTimeout()
	if err != nil {
		return err
	}

	daemon := &ConversationService{
		agents:    conversation.NewRegistry(),
		hub:       hubClient,
		recorders: make(map[string]*transcript.Recorder),
		clock:     systemClock,
		logger:    logger,
		startedAt: systemClock.Now(),
	}
	defer func() {
		for _, recorder := range daemon.recorders {
			if err := recorder.Close(); err != nil {
				logger.Warn("closing transcript recorder", "error", err)
			}
		}
	}()

	// Each agent owns its database: sessions are independent across
	// agents even when callers reuse a session id between them.
	var stores []*sessionstore.Store
	defer func() {
		for _, store := range stores {
			if err := store.Close(); err != nil {
				logger.Warn("closing session store", "error", err)
			}
		}
	}()

	for _, agentConfig := range cfg.Agents {
		store, err := sessionstore.Open(sessionstore.Config{
			Path:               filepath.Join(cfg.Paths.State, "sessions-"+agentConfig.Name+".db"),
			RetainInteractions: agentConfig.RememberNumInteractions,
			Clock:              systemClock,
			Logger:             logger.With("component", "sessionstore", "agent", agentConfig.Name),
		})
		if err != nil {
			return fmt.Errorf("agent %q: opening session store: %w", agentConfig.Name, err)
		}
		stores = append(stores, store)

		agent, err := buildAgent(agentConfig, provider, registry, hubClient, store, systemClock, logger)
		if err != nil {
			return fmt.Errorf("agent %q: %w", agentConfig.Name, err)
		}
		if err := daemon.agents.Attach(agent); err != nil {
			return err
		}
		if cfg.Transcripts.Enabled {
			recorder, err := transcript.NewRecorder(transcript.Config{
				Agent:     agentConfig.Name,
				Directory: filepath.Join(cfg.Paths.Transcripts, agentConfig.Name),
				Recipient: cfg.Transcripts.Recipient,
				Clock:     systemClock,
				Logger:    logger.With("component", "transcript", "agent", agentConfig.Name),
			})
			if err != nil {
				return fmt.Errorf("agent %q: creating transcript recorder: %w", agentConfig.Name, err)
			}
			daemon.recorders[agentConfig.Name] = recorder
		}
	}

	// Sessions that went stale while the daemon was down.
	if idleTimeout > 0 {
		for _, store := range stores {
			purged, err := store.PurgeStale(ctx, idleTimeout)
			if err != nil {
				logger.Warn("purging stale sessions at startup", "error", err)
			} else if len(purged) > 0 {
				logger.Info("purged stale sessions", "count", len(purged))
			}
		}
	}

	if idleTimeout > 0 {
		sweepInterval, err := cfg.Sessions.ParseSweepInterval(idleTimeout)
		if err != nil {
			return err
		}
		go func() {
			ticker := systemClock.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					daemon.expireIdleSessions(ctx, idleTimeout)
				}
			}
		}()
	}

	if dir := filepath.Dir(cfg.Paths.Socket); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating socket directory: %w", err)
		}
	}
	socketServer := service.NewSocketServer(cfg.Paths.Socket, logger.With("component", "socket"))
	daemon.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	logger.Info("conversation service running",
		"version", version.Version,
		"socket", cfg.Paths.Socket,
		"agents", daemon.agents.Names(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	// In-flight turns finish before the socket server returns.
	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}
	daemon.detachAgents()
	return nil
}

// loadConfig loads from the --config flag, falling back to the
// MAJORDOMO_CONFIG environment variable.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// toolRegistry assembles the shared tool registry: the built-in
// device command plus any declared tools from the tools directory.
func toolRegistry(cfg *config.Config, hubClient *hub.Client, logger *slog.Logger) (*tools.Registry, error) {
	toolLogger := logger.With("component", "tools")
	registryTools := []tools.Tool{tools.NewDeviceCommand(hubClient, toolLogger)}

	if cfg.Paths.Tools != "" {
		declarations, err := tools.LoadDeclarationDir(cfg.Paths.Tools)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("tools directory %s does not exist", cfg.Paths.Tools)
			}
			return nil, fmt.Errorf("loading tool declarations: %w", err)
		}
		for _, declaration := range declarations {
			registryTools = append(registryTools, tools.NewDeclaredTool(declaration, hubClient, toolLogger))
		}
	}

	registry, err := tools.NewRegistry(registryTools...)
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}
	logger.Info("tool registry ready", "tools", registry.Names())
	return registry, nil
}

// buildAgent wires one configured agent.
func buildAgent(
	agentConfig config.AgentConfig,
	provider llm.Provider,
	registry *tools.Registry,
	hubClient *hub.Client,
	store *sessionstore.Store,
	systemClock clock.Clock,
	logger *slog.Logger,
) (*conversation.Agent, error) {
	builder, err := prompt.NewBuilder(agentConfig.ExtraExposedAttributes)
	if err != nil {
		return nil, fmt.Errorf("building prompt template: %w", err)
	}

	return conversation.NewAgent(conversation.AgentConfig{
		Name: agentConfig.Name,
		Conversation: conversation.Config{
			Model:                 agentConfig.Model,
			Temperature:           agentConfig.Temperature,
			TopP:                  agentConfig.TopP,
			TopK:                  agentConfig.TopK,
			MaxTokens:             agentConfig.MaxTokens,
			RememberConversation:  boolOr(agentConfig.RememberConversation, true),
			RememberInteractions:  agentConfig.RememberNumInteractions,
			MaxToolCallIterations: agentConfig.MaxToolCallIterations,
			RefreshPromptEachTurn: boolOr(agentConfig.RefreshSystemPromptEachTurn, true),
			Persona:               agentConfig.Persona,
		},
		Provider:      provider,
		Tools:         registry,
		Prompts:       builder,
		Snapshots:     hubClient,
		Store:         store,
		ContextWindow: agentConfig.ContextWindow,
		Logger:        logger.With("agent", agentConfig.Name),
		Clock:         systemClock,
	})
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
