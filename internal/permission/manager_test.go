package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/postrv/patina/internal/tool"
)

func bashCall(command string) tool.Call {
	input, _ := json.Marshal(map[string]string{"command": command})
	return tool.Call{ID: "c1", Name: "bash", Input: input}
}

func TestManagerResolveNoRuleNoPrompter(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{})
	d, err := m.Resolve(context.Background(), bashCall("git status"), tool.ClassUnknown)
	if err != nil {
		t.Fatal(err)
	}
	if d != DecisionNeedsPrompt {
		t.Fatalf("got %q, want needs_prompt", d)
	}
}

func TestManagerPromptAllowOnceNotRecorded(t *testing.T) {
	t.Parallel()

	var prompts atomic.Int32
	m := NewManager(ManagerConfig{
		Prompter: PrompterFunc(func(context.Context, Request) (Decision, error) {
			prompts.Add(1)
			return DecisionAllowOnce, nil
		}),
	})

	for i := 0; i < 2; i++ {
		d, err := m.Resolve(context.Background(), bashCall("git status"), tool.ClassUnknown)
		if err != nil {
			t.Fatal(err)
		}
		if d != DecisionAllowOnce {
			t.Fatalf("got %q, want allow_once", d)
		}
	}
	if got := prompts.Load(); got != 2 {
		t.Fatalf("allow_once must not be recorded, got %d prompts", got)
	}
}

func TestManagerBlockedPromptDeniesWithoutRule(t *testing.T) {
	t.Parallel()

	persisted := NewSessionStore()
	var prompts atomic.Int32
	m := NewManager(ManagerConfig{
		Persisted: persisted,
		Prompter: PrompterFunc(func(context.Context, Request) (Decision, error) {
			prompts.Add(1)
			return DecisionDeny, fmt.Errorf("%w: quarantine window", ErrPromptBlocked)
		}),
	})

	for i := 0; i < 2; i++ {
		d, err := m.Resolve(context.Background(), bashCall("git push"), tool.ClassUnknown)
		if err != nil {
			t.Fatal(err)
		}
		if d != DecisionDeny {
			t.Fatalf("got %q, want deny", d)
		}
	}
	if got := prompts.Load(); got != 2 {
		t.Fatalf("blocked prompt must not be recorded, got %d prompts", got)
	}
	if persisted.Len() != 0 {
		t.Fatalf("blocked prompt wrote %d rules", persisted.Len())
	}
}

func TestManagerPromptAllowAlwaysRecorded(t *testing.T) {
	t.Parallel()

	var prompts atomic.Int32
	m := NewManager(ManagerConfig{
		Prompter: PrompterFunc(func(context.Context, Request) (Decision, error) {
			prompts.Add(1)
			return DecisionAllowAlways, nil
		}),
	})

	for i := 0; i < 3; i++ {
		d, err := m.Resolve(context.Background(), bashCall("git status"), tool.ClassUnknown)
		if err != nil {
			t.Fatal(err)
		}
		if d != DecisionAllowAlways {
			t.Fatalf("got %q, want allow_always", d)
		}
	}
	if got := prompts.Load(); got != 1 {
		t.Fatalf("allow_always must resolve without further prompts, got %d", got)
	}
}

func TestManagerPromptDenyRecorded(t *testing.T) {
	t.Parallel()

	var prompts atomic.Int32
	m := NewManager(ManagerConfig{
		Prompter: PrompterFunc(func(context.Context, Request) (Decision, error) {
			prompts.Add(1)
			return DecisionDeny, nil
		}),
	})

	for i := 0; i < 2; i++ {
		d, err := m.Resolve(context.Background(), bashCall("curl example.com"), tool.ClassUnknown)
		if err != nil {
			t.Fatal(err)
		}
		if d != DecisionDeny {
			t.Fatalf("got %q, want deny", d)
		}
	}
	if got := prompts.Load(); got != 1 {
		t.Fatalf("deny must auto-resolve future identical calls, got %d prompts", got)
	}
}

func TestManagerDistinctSignaturesPromptSeparately(t *testing.T) {
	t.Parallel()

	var prompts atomic.Int32
	m := NewManager(ManagerConfig{
		Prompter: PrompterFunc(func(context.Context, Request) (Decision, error) {
			prompts.Add(1)
			return DecisionAllowAlways, nil
		}),
	})

	if _, err := m.Resolve(context.Background(), bashCall("git status"), tool.ClassUnknown); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Resolve(context.Background(), bashCall("make all"), tool.ClassUnknown); err != nil {
		t.Fatal(err)
	}
	if got := prompts.Load(); got != 2 {
		t.Fatalf("expected one prompt per signature, got %d", got)
	}
}

func TestManagerConcurrentFirstCallsPromptOnce(t *testing.T) {
	t.Parallel()

	var prompts atomic.Int32
	m := NewManager(ManagerConfig{
		Prompter: PrompterFunc(func(context.Context, Request) (Decision, error) {
			prompts.Add(1)
			return DecisionAllowAlways, nil
		}),
	})

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := m.Resolve(context.Background(), bashCall("git status"), tool.ClassUnknown)
			if err != nil {
				t.Error(err)
				return
			}
			if d != DecisionAllowAlways {
				t.Errorf("got %q, want allow_always", d)
			}
		}()
	}
	wg.Wait()

	if got := prompts.Load(); got != 1 {
		t.Fatalf("concurrent first-time calls must serialize to one prompt, got %d", got)
	}
}

func TestManagerInvalidPrompterDecisionDenies(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{
		Prompter: PrompterFunc(func(context.Context, Request) (Decision, error) {
			return Decision("maybe"), nil
		}),
	})

	d, err := m.Resolve(context.Background(), bashCall("git status"), tool.ClassUnknown)
	if err != nil {
		t.Fatal(err)
	}
	if d != DecisionDeny {
		t.Fatalf("invalid prompter decision must deny, got %q", d)
	}
}

func TestManagerPersistedStoreConsulted(t *testing.T) {
	t.Parallel()

	persisted := NewSessionStore()
	err := persisted.Append(context.Background(), Rule{
		Signature: "bash:git",
		Decision:  DecisionAllowAlways,
		Scope:     ScopePersisted,
	})
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(ManagerConfig{
		Persisted: persisted,
		Prompter: PrompterFunc(func(context.Context, Request) (Decision, error) {
			t.Error("prompter must not run when a persisted rule matches")
			return DecisionDeny, nil
		}),
	})

	d, err := m.Resolve(context.Background(), bashCall("git status"), tool.ClassUnknown)
	if err != nil {
		t.Fatal(err)
	}
	if d != DecisionAllowAlways {
		t.Fatalf("got %q, want allow_always", d)
	}
}

func TestManagerRecord(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{})
	call := bashCall("git status")
	if err := m.Record(context.Background(), call, DecisionDeny); err != nil {
		t.Fatal(err)
	}

	d, err := m.Resolve(context.Background(), call, tool.ClassUnknown)
	if err != nil {
		t.Fatal(err)
	}
	if d != DecisionDeny {
		t.Fatalf("got %q, want deny", d)
	}

	if err := m.Record(context.Background(), call, DecisionNeedsPrompt); err == nil {
		t.Fatal("recording needs_prompt must fail")
	}
}
