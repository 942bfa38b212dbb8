package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/tool"
)

// Router maintains one long-lived connection per configured capability
// server and dispatches remote tool calls over them.
//
// A transport failure marks the server down; subsequent calls fail fast
// with ErrServerDown until Restart is called. There is no automatic
// reconnect.
type Router struct {
	engine *security.Engine
	dial   Dialer
	logger *slog.Logger

	mu      sync.Mutex
	servers map[string]*server
}

// server guards one connection. The mutex covers connection lifecycle
// (connect, mark down, restart), not individual calls; the transport
// correlates concurrent in-flight calls by request id.
type server struct {
	cfg ServerConfig

	mu      sync.Mutex
	conn    Conn
	tools   []RemoteTool
	down    bool
	lastErr error
}

// RouterConfig configures a Router.
type RouterConfig struct {
	// Engine validates launch commands before a server process spawns.
	// Required for command-launched servers.
	Engine *security.Engine

	// Dial establishes connections. Nil uses the production dialer.
	Dial Dialer

	// Logger receives connection lifecycle events. Nil discards.
	Logger *slog.Logger
}

// NewRouter creates a router with no servers.
func NewRouter(cfg RouterConfig) *Router {
	dial := cfg.Dial
	if dial == nil {
		dial = DialServer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		engine:  cfg.Engine,
		dial:    dial,
		logger:  logger,
		servers: make(map[string]*server),
	}
}

// AddServer registers a server config. Connections are not established
// here; they open at Start or on first use.
func (r *Router) AddServer(cfg ServerConfig) error {
	if cfg.Name == "" {
		return errors.New("capability: server name is required")
	}
	if (cfg.Command == "") == (cfg.URL == "") {
		return fmt.Errorf("capability: server %s must set exactly one of command and url", cfg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.servers[cfg.Name]; exists {
		return fmt.Errorf("capability: duplicate server %s", cfg.Name)
	}
	r.servers[cfg.Name] = &server{cfg: cfg}
	return nil
}

// Start connects all enabled servers. Individual failures mark that
// server down and are joined into the returned error; other servers
// still connect.
func (r *Router) Start(ctx context.Context) error {
	var errs []error
	for _, name := range r.names() {
		srv := r.lookup(name)
		if srv == nil || !srv.cfg.Enabled {
			continue
		}
		srv.mu.Lock()
		err := r.connectLocked(ctx, srv)
		srv.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Restart tears down the server's connection, if any, and reconnects.
// This is the only way a down server comes back.
func (r *Router) Restart(ctx context.Context, name string) error {
	srv := r.lookup(name)
	if srv == nil {
		return fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.conn != nil {
		_ = srv.conn.Close()
		srv.conn = nil
	}
	srv.down = false
	srv.lastErr = nil
	srv.tools = nil

	r.logger.Info("capability: restarting server", "server", name)
	return r.connectLocked(ctx, srv)
}

// connectLocked dials and loads the tool catalog. Caller holds srv.mu.
func (r *Router) connectLocked(ctx context.Context, srv *server) error {
	if !srv.cfg.Enabled {
		return fmt.Errorf("%w: %s", ErrServerDisabled, srv.cfg.Name)
	}
	if srv.conn != nil {
		return nil
	}

	if srv.cfg.Command != "" {
		if r.engine == nil {
			return fmt.Errorf("capability: server %s: no security engine for launch validation", srv.cfg.Name)
		}
		spec := security.LaunchSpec{
			Command: srv.cfg.Command,
			Args:    srv.cfg.Args,
			Env:     srv.cfg.Env,
		}
		if err := r.engine.CheckLaunch(spec); err != nil {
			return fmt.Errorf("capability: server %s launch rejected: %w", srv.cfg.Name, err)
		}
	}

	conn, err := r.dial(ctx, srv.cfg)
	if err != nil {
		srv.down = true
		srv.lastErr = err
		r.logger.Error("capability: server connect failed",
			"server", srv.cfg.Name,
			"error", err,
		)
		return err
	}

	tools, err := conn.ListTools(ctx)
	if err != nil {
		_ = conn.Close()
		srv.down = true
		srv.lastErr = err
		return err
	}

	srv.conn = conn
	srv.down = false
	srv.lastErr = nil
	srv.tools = tools
	r.logger.Info("capability: server connected",
		"server", srv.cfg.Name,
		"tools", len(tools),
	)
	return nil
}

// Dispatch routes a "<server>:<tool>" call to its server and returns the
// tool's text output. A tool-level error from the server comes back as a
// plain error with the server's message; transport failures mark the
// server down and wrap ErrTransport.
func (r *Router) Dispatch(ctx context.Context, call tool.Call) (string, error) {
	serverName, toolName, ok := SplitName(call.Name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotRemote, call.Name)
	}

	srv := r.lookup(serverName)
	if srv == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, serverName)
	}

	conn, err := r.acquire(ctx, srv)
	if err != nil {
		return "", err
	}

	var args map[string]any
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &args); err != nil {
			return "", fmt.Errorf("capability: call %s: bad input: %w", call.ID, err)
		}
	}

	output, isError, err := conn.CallTool(ctx, toolName, args)
	if err != nil {
		if errors.Is(err, ErrTransport) {
			r.markDown(srv, err)
		}
		return "", err
	}
	if isError {
		return "", fmt.Errorf("capability: %s on %s failed: %s", toolName, serverName, output)
	}
	return output, nil
}

// acquire returns the server's live connection, connecting on first use.
// Down servers fail fast.
func (r *Router) acquire(ctx context.Context, srv *server) (Conn, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.down {
		return nil, fmt.Errorf("%w: %s: %v", ErrServerDown, srv.cfg.Name, srv.lastErr)
	}
	if srv.conn == nil {
		if err := r.connectLocked(ctx, srv); err != nil {
			return nil, err
		}
	}
	return srv.conn, nil
}

func (r *Router) markDown(srv *server, cause error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.conn != nil {
		_ = srv.conn.Close()
		srv.conn = nil
	}
	srv.down = true
	srv.lastErr = cause
	r.logger.Error("capability: server marked down",
		"server", srv.cfg.Name,
		"error", cause,
	)
}

// Catalog returns the tools of every connected server, sorted by full
// name. Down or unconnected servers contribute nothing.
func (r *Router) Catalog() []RemoteTool {
	var all []RemoteTool
	for _, name := range r.names() {
		srv := r.lookup(name)
		if srv == nil {
			continue
		}
		srv.mu.Lock()
		if srv.conn != nil {
			all = append(all, srv.tools...)
		}
		srv.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].FullName() < all[j].FullName() })
	return all
}

// Status reports per-server state for operator display.
type Status struct {
	Name      string
	Enabled   bool
	Connected bool
	Down      bool
	LastError string
	Tools     int
}

// Statuses returns the state of every configured server, sorted by name.
func (r *Router) Statuses() []Status {
	var out []Status
	for _, name := range r.names() {
		srv := r.lookup(name)
		if srv == nil {
			continue
		}
		srv.mu.Lock()
		st := Status{
			Name:      srv.cfg.Name,
			Enabled:   srv.cfg.Enabled,
			Connected: srv.conn != nil,
			Down:      srv.down,
			Tools:     len(srv.tools),
		}
		if srv.lastErr != nil {
			st.LastError = srv.lastErr.Error()
		}
		srv.mu.Unlock()
		out = append(out, st)
	}
	return out
}

// Close tears down every connection. The router is not usable after.
func (r *Router) Close() error {
	var errs []error
	for _, name := range r.names() {
		srv := r.lookup(name)
		if srv == nil {
			continue
		}
		srv.mu.Lock()
		if srv.conn != nil {
			if err := srv.conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("capability: close %s: %w", srv.cfg.Name, err))
			}
			srv.conn = nil
		}
		srv.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (r *Router) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) lookup(name string) *server {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.servers[name]
}
