// Package svc wires the core components into the single context the
// HTTP handlers and CLI commands share.
package svc

import (
	"context"
	"fmt"

	"github.com/lavishq/lavis/internal/actuator"
	"github.com/lavishq/lavis/internal/agent/ai"
	"github.com/lavishq/lavis/internal/agent/memory"
	"github.com/lavishq/lavis/internal/agent/runner"
	"github.com/lavishq/lavis/internal/agent/scheduler"
	"github.com/lavishq/lavis/internal/agent/skills"
	"github.com/lavishq/lavis/internal/agent/tools"
	"github.com/lavishq/lavis/internal/agent/turn"
	"github.com/lavishq/lavis/internal/agent/vision"
	"github.com/lavishq/lavis/internal/config"
	"github.com/lavishq/lavis/internal/events"
	"github.com/lavishq/lavis/internal/logging"
	"github.com/lavishq/lavis/internal/screen"
	"github.com/lavishq/lavis/internal/store"
)

// Agent is the reasoning surface the handlers talk to. Satisfied by
// runner.Runner; narrowed so handler tests can stub it.
type Agent interface {
	Chat(ctx context.Context, text string) (string, error)
	RunTask(ctx context.Context, goal string) (string, error)
	Stop() bool
	Available() bool
	ModelName() string
	State() string
}

// ServiceContext carries every live component of the core.
type ServiceContext struct {
	Config  config.Config
	Version string

	Store     *store.Store
	Cold      *vision.ColdStorage
	Perceiver screen.Perceiver
	Capturer  *vision.Capturer
	Memory    *memory.Manager
	Registry  *tools.Registry
	Turns     *turn.Context
	Loader    *skills.Loader
	Skills    *skills.Service
	Agent     Agent
	Scheduler *scheduler.Scheduler
	Events    *events.Hub
}

// NewServiceContext builds and wires the whole core from configuration.
// A missing API key leaves the agent unavailable but everything else
// (scheduler shell tasks, skills CRUD, history) functional.
func NewServiceContext(ctx context.Context, cfg config.Config, version string) (*ServiceContext, error) {
	st, err := store.Open(cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cold, err := vision.NewColdStorage(cfg.ColdStoreDir())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open cold storage: %w", err)
	}

	perceiver := screen.NewDisplayPerceiver(0, cfg.GridOverlay)
	capturer := vision.NewCapturer(perceiver, cold, cfg.DedupThreshold)

	model := buildModel(ctx, &cfg)

	manager := memory.NewManager(memory.ManagerConfig{
		Store:            st,
		Window:           memory.NewWindow(cfg.Memory.WindowSize, cfg.Memory.KeepImages),
		Compactor:        vision.NewCompactor(st, cfg.ExceptionPatterns),
		Cold:             cold,
		Model:            model,
		SummaryThreshold: cfg.Memory.SummaryTokenThreshold,
	})

	act := actuator.New()
	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, tools.Deps{Actuator: act}); err != nil {
		st.Close()
		return nil, fmt.Errorf("register built-in tools: %w", err)
	}

	shell := func(ctx context.Context, command string) (string, error) {
		return act.RunShell(ctx, command)
	}

	loader := skills.NewLoader(cfg.SkillsDir())
	if err := loader.LoadAll(); err != nil {
		logging.Warnf("load skills: %v", err)
	}
	skillSvc := skills.NewService(skills.Deps{
		Loader: loader,
		Store:  st,
		Shell:  shell,
	})

	hub := events.NewHub()

	turns := turn.New()
	agent := runner.New(runner.Config{
		Model:         model,
		Registry:      registry,
		Capturer:      capturer,
		Cold:          cold,
		Turns:         turns,
		Memory:        manager,
		Skills:        skillSvc.ExecutionContext(),
		ChatStepCap:   cfg.ChatStepCap,
		RetryAttempts: cfg.Retry.Attempts,
		RetryBase:     cfg.Retry.BaseDelay(),
		WaitOverrides: cfg.ToolWaitOverrides(),
		Notify:        hub.Publish,
	})
	skillSvc.SetRunner(agent)
	skillSvc.AttachRegistry(registry)

	sched := scheduler.New(scheduler.Config{
		Store:  st,
		Runner: agent,
		Shell:  shell,
		Notify: hub.Publish,
	})

	registry.OnChange(func(added, removed []string) {
		hub.Publish(events.TypeToolsChanged, map[string]any{
			"added":   added,
			"removed": removed,
		})
	})

	return &ServiceContext{
		Config:    cfg,
		Version:   version,
		Store:     st,
		Cold:      cold,
		Perceiver: perceiver,
		Capturer:  capturer,
		Memory:    manager,
		Registry:  registry,
		Turns:     turns,
		Loader:    loader,
		Skills:    skillSvc,
		Agent:     agent,
		Scheduler: sched,
		Events:    hub,
	}, nil
}

// buildModel resolves the provider key and constructs the chat model.
// Returns nil (agent unavailable) rather than failing startup.
func buildModel(ctx context.Context, cfg *config.Config) ai.ChatModel {
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" && cfg.Provider != "ollama" {
		logging.Warnf("no API key for provider %q, agent unavailable", cfg.Provider)
		return nil
	}
	model, err := ai.New(ctx, ai.Options{
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		APIKey:     apiKey,
		OllamaHost: cfg.OllamaHost,
	})
	if err != nil {
		logging.Errorf("chat model init failed: %v", err)
		return nil
	}
	logging.Infof("chat model ready: %s", model.Name())
	return model
}

// Close releases everything the context owns.
func (s *ServiceContext) Close() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.Loader != nil {
		s.Loader.Stop()
	}
	if s.Events != nil {
		s.Events.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}
