package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/postrv/patina/internal/tool"
)

// Request carries everything a prompter needs to ask the user about a
// call.
type Request struct {
	Call           tool.Call
	Classification tool.Classification
	Signature      string
}

// Prompter asks the user to decide a call with no matching rule. It must
// return AllowOnce, AllowAlways, or Deny; NeedsPrompt from a prompter is
// an error. A nil error with an invalid decision is treated as Deny.
type Prompter interface {
	Prompt(ctx context.Context, req Request) (Decision, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, req Request) (Decision, error)

// Prompt implements Prompter.
func (f PrompterFunc) Prompt(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// Manager resolves calls against the session and persisted rule stores,
// prompting when neither has an answer. Resolution for a given signature
// is serialized so two concurrent first-time calls produce one prompt,
// not two.
type Manager struct {
	session   *SessionStore
	persisted Store
	prompter  Prompter
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Persisted is the cross-session rule store. Nil means persisted
	// rules are disabled and every AllowAlways lives only for the
	// session.
	Persisted Store

	// Prompter answers first-time requests. Nil means unresolved calls
	// return NeedsPrompt.
	Prompter Prompter

	// Logger receives rule activity. Nil discards.
	Logger *slog.Logger
}

// NewManager creates a manager with an empty session store.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		session:   NewSessionStore(),
		persisted: cfg.Persisted,
		prompter:  cfg.Prompter,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Resolve decides whether the call may run. Session rules win over
// persisted ones since they are newer. When neither store has a rule the
// prompter is asked; its answer is recorded (AllowAlways and Deny
// persist, AllowOnce does not) and returned. Without a prompter the
// result is NeedsPrompt and the caller decides how to fail.
func (m *Manager) Resolve(ctx context.Context, call tool.Call, class tool.Classification) (Decision, error) {
	sig := Signature(call.Name, call.Input)

	lock := m.signatureLock(sig)
	lock.Lock()
	defer lock.Unlock()

	if rule, ok, err := m.session.Lookup(ctx, sig); err != nil {
		return DecisionDeny, err
	} else if ok {
		return rule.Decision, nil
	}

	if m.persisted != nil {
		rule, ok, err := m.persisted.Lookup(ctx, sig)
		if err != nil {
			return DecisionDeny, err
		}
		if ok {
			return rule.Decision, nil
		}
	}

	if m.prompter == nil {
		return DecisionNeedsPrompt, nil
	}

	decision, err := m.prompter.Prompt(ctx, Request{
		Call:           call,
		Classification: class,
		Signature:      sig,
	})
	if errors.Is(err, ErrPromptBlocked) {
		m.logger.Info("permission: prompt blocked, denying without a rule",
			"signature", sig,
			"cause", err.Error(),
		)
		return DecisionDeny, nil
	}
	if err != nil {
		return DecisionDeny, fmt.Errorf("permission: prompt for %q: %w", sig, err)
	}
	if !decision.Valid() || decision == DecisionNeedsPrompt {
		m.logger.Warn("permission: prompter returned invalid decision, denying",
			"signature", sig,
			"decision", string(decision),
		)
		decision = DecisionDeny
	}

	if err := m.record(ctx, sig, decision); err != nil {
		return DecisionDeny, err
	}
	return decision, nil
}

// Record stores a decision for a call outside the prompt flow, for
// example from a CLI subcommand that pre-approves a signature.
func (m *Manager) Record(ctx context.Context, call tool.Call, decision Decision) error {
	if !decision.Valid() || decision == DecisionNeedsPrompt {
		return fmt.Errorf("permission: cannot record decision %q", decision)
	}
	sig := Signature(call.Name, call.Input)

	lock := m.signatureLock(sig)
	lock.Lock()
	defer lock.Unlock()

	return m.record(ctx, sig, decision)
}

// record assumes the signature lock is held.
func (m *Manager) record(ctx context.Context, sig string, decision Decision) error {
	switch decision {
	case DecisionAllowOnce:
		// Valid for the current call only, nothing to store.
		return nil
	case DecisionAllowAlways, DecisionDeny:
		rule := Rule{Signature: sig, Decision: decision, Scope: ScopeSession}
		if m.persisted != nil {
			rule.Scope = ScopePersisted
			if err := m.persisted.Append(ctx, rule); err != nil {
				return err
			}
		}
		if err := m.session.Append(ctx, rule); err != nil {
			return err
		}
		m.logger.Info("permission: rule recorded",
			"signature", sig,
			"decision", string(decision),
			"scope", string(rule.Scope),
		)
		return nil
	default:
		return fmt.Errorf("permission: cannot record decision %q", decision)
	}
}

func (m *Manager) signatureLock(sig string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[sig]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sig] = lock
	}
	return lock
}
