package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Reloader re-reads the config file on a cron schedule and hands the new
// config to a callback when the file has changed. The callback runs
// between pipeline invocations; in-flight calls keep the policy they
// started with.
type Reloader struct {
	path     string
	onReload func(*Config)
	logger   *slog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	lastMod time.Time
}

// NewReloader creates a reloader for the config at path. spec is a
// standard cron expression; onReload receives each successfully parsed
// new config.
func NewReloader(path, spec string, logger *slog.Logger, onReload func(*Config)) (*Reloader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Reloader{
		path:     path,
		onReload: onReload,
		logger:   logger,
		cron:     cron.New(),
	}

	if info, err := os.Stat(path); err == nil {
		r.lastMod = info.ModTime()
	}

	if _, err := r.cron.AddFunc(spec, r.check); err != nil {
		return nil, fmt.Errorf("config: bad reload schedule %q: %w", spec, err)
	}
	return r, nil
}

// Start begins the schedule. Stop with Stop.
func (r *Reloader) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running check to finish.
func (r *Reloader) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// check reloads the file if its modification time advanced. A config
// that fails to parse or validate is logged and skipped; the previous
// config stays active.
func (r *Reloader) check() {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil {
		r.logger.Warn("config: reload stat failed", "path", r.path, "error", err)
		return
	}
	if !info.ModTime().After(r.lastMod) {
		return
	}

	cfg, err := Load(r.path)
	if err != nil {
		r.logger.Error("config: reload rejected, keeping previous config",
			"path", r.path,
			"error", err,
		)
		return
	}

	r.lastMod = info.ModTime()
	r.logger.Info("config: reloaded", "path", r.path)
	r.onReload(cfg)
}

// CheckNow runs one reload check outside the schedule, for explicit
// operator-triggered reloads.
func (r *Reloader) CheckNow() {
	r.check()
}
