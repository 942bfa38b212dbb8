package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/postrv/patina/internal/capability"
	"github.com/postrv/patina/internal/config"
	"github.com/postrv/patina/internal/hook"
	"github.com/postrv/patina/internal/metrics"
	"github.com/postrv/patina/internal/permission"
	"github.com/postrv/patina/internal/pipeline"
	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/telemetry"
	"github.com/postrv/patina/internal/tool"
	"github.com/postrv/patina/internal/tool/builtin"
)

// App bundles everything a command needs after config wiring. Session
// infrastructure (router, hooks, permissions, metrics) lives for the
// whole run; the pipeline is rebuilt on policy reload and swapped in
// between invocations.
type App struct {
	Router *capability.Router

	mu   sync.Mutex
	pipe *pipeline.Pipeline

	hooks     *hook.Engine
	perms     *permission.Manager
	audit     *security.AuditLogger
	m         *metrics.Metrics
	sessionID string

	ruleStore *permission.SQLiteStore
	metricsrv *metrics.Server
	telemetry *telemetry.Telemetry
	reloader  *config.Reloader
	logger    *slog.Logger
}

// Run executes a batch through the current pipeline.
func (a *App) Run(ctx context.Context, batch []tool.Call) []tool.Result {
	a.mu.Lock()
	p := a.pipe
	a.mu.Unlock()
	return p.Run(ctx, batch)
}

// buildApp loads the config and wires the full pipeline. interactive
// controls whether unapproved calls trigger a terminal prompt.
func buildApp(cmd *cobra.Command, interactive bool) (*App, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		resolved, err := resolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	app := &App{
		logger:    logger,
		sessionID: fmt.Sprintf("patina-%d", os.Getpid()),
		audit:     security.NewAuditLogger(security.AuditLoggerConfig{Writer: os.Stderr}),
	}

	app.hooks = hook.NewEngine(hook.EngineConfig{Logger: logger})
	for eventName, defs := range cfg.Hooks {
		for _, def := range defs {
			if err := app.hooks.Register(hook.Event(eventName), def); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		app.m = metrics.New(promReg)
		app.metricsrv = metrics.NewServer(cfg.Metrics.Addr, promReg, logger)
		go func() {
			if err := app.metricsrv.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	tel, err := telemetry.New(cmd.Context(), cfg.Telemetry)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.telemetry = tel

	var persisted permission.Store
	if cfg.Permissions.StorePath != "" {
		store, err := permission.OpenSQLiteStore(cfg.Permissions.StorePath)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.ruleStore = store
		persisted = store
	}

	var prompter permission.Prompter
	if interactive {
		prompter = pipeline.PromptWithHooks(app.hooks, app.sessionID, app.m, &terminalPrompter{})
	}
	app.perms = permission.NewManager(permission.ManagerConfig{
		Persisted: persisted,
		Prompter:  prompter,
		Logger:    logger,
	})

	if err := app.applyConfig(cfg, true); err != nil {
		app.Close()
		return nil, err
	}

	if _, err := app.hooks.Fire(cmd.Context(), hook.EventSessionStart, hook.Context{
		SessionID: app.sessionID,
	}); err != nil {
		logger.Warn("session_start hooks", "error", err)
	}

	if cfg.Reload.Cron != "" {
		reloader, err := config.NewReloader(cfgPath, cfg.Reload.Cron, logger, func(next *config.Config) {
			if err := app.applyConfig(next, false); err != nil {
				logger.Error("policy reload failed, keeping previous pipeline", "error", err)
			}
		})
		if err != nil {
			app.Close()
			return nil, err
		}
		app.reloader = reloader
		reloader.Start()
	}

	return app, nil
}

// applyConfig builds a pipeline from cfg and swaps it in. The capability
// router is only built on the first call; reloads change policy, tools,
// and scheduling but never silently restart servers.
func (a *App) applyConfig(cfg *config.Config, first bool) error {
	engine, err := security.NewEngine(*cfg.Security)
	if err != nil {
		return err
	}

	registry := tool.NewRegistry()
	if err := builtin.RegisterAll(registry, engine); err != nil {
		return err
	}

	if first {
		router := capability.NewRouter(capability.RouterConfig{
			Engine: engine,
			Logger: a.logger,
		})
		for _, srv := range cfg.Servers {
			if err := router.AddServer(srv); err != nil {
				return err
			}
		}
		a.Router = router
	}

	p, err := pipeline.New(pipeline.Config{
		Engine:      engine,
		Registry:    registry,
		Classifier:  tool.NewClassifier(registry.Classifications()),
		Hooks:       a.hooks,
		Permissions: a.perms,
		Router:      a.Router,
		Audit:       a.audit,
		Metrics:     a.m,
		Tracer:      a.telemetry.Tracer(),
		Logger:      a.logger,
		SessionID:   a.sessionID,
		Root:        cfg.Session.Root,
		Concurrency: cfg.Scheduler.Concurrency,
		CallTimeout: cfg.Scheduler.CallTimeout,
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.pipe = p
	a.mu.Unlock()
	if !first {
		a.audit.Log(security.AuditEvent{
			Type:      security.EventPolicyReload,
			SessionID: a.sessionID,
		})
	}
	return nil
}

// Close releases connections and flushes telemetry. Safe on a partially
// built App.
func (a *App) Close() {
	if a.reloader != nil {
		a.reloader.Stop()
	}
	if a.hooks != nil {
		if _, err := a.hooks.Fire(context.Background(), hook.EventSessionEnd, hook.Context{
			SessionID: a.sessionID,
		}); err != nil {
			a.logger.Warn("session_end hooks", "error", err)
		}
	}
	if a.Router != nil {
		if err := a.Router.Close(); err != nil {
			a.logger.Warn("closing capability servers", "error", err)
		}
	}
	if a.ruleStore != nil {
		_ = a.ruleStore.Close()
	}
	if a.metricsrv != nil {
		_ = a.metricsrv.Shutdown(context.Background())
	}
	if a.telemetry != nil {
		_ = a.telemetry.Shutdown(context.Background())
	}
}
