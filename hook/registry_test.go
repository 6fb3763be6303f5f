package hook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mailscout/bulkq/hook"
	"github.com/mailscout/bulkq/job"
)

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobSubmitted(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobSubmitted")
	return nil
}

func (e *allHooksExt) OnJobDispatched(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobDispatched")
	return nil
}

func (e *allHooksExt) OnJobProgress(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobProgress")
	return nil
}

func (e *allHooksExt) OnJobStopped(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobStopped")
	return nil
}

func (e *allHooksExt) OnJobRecovered(_ context.Context, _ *job.Job, _ int) error {
	e.calls = append(e.calls, "OnJobRecovered")
	return nil
}

func (e *allHooksExt) OnJobTerminal(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobTerminal")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// terminalOnlyExt only implements the terminal hook.
type terminalOnlyExt struct {
	calls int
}

func (e *terminalOnlyExt) Name() string { return "terminal-only" }

func (e *terminalOnlyExt) OnJobTerminal(_ context.Context, _ *job.Job) error {
	e.calls++
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobSubmitted(_ context.Context, _ *job.Job) error {
	return errors.New("boom")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJob() *job.Job {
	return job.New("acct_1", job.KindFind, []json.RawMessage{[]byte(`{}`)})
}

func TestRegistryDispatchesAllHooks(t *testing.T) {
	t.Parallel()

	r := hook.NewRegistry(testLogger())
	ext := &allHooksExt{}
	r.Register(ext)

	ctx := context.Background()
	j := testJob()

	r.EmitJobSubmitted(ctx, j)
	r.EmitJobDispatched(ctx, j)
	r.EmitJobProgress(ctx, j)
	r.EmitJobStopped(ctx, j)
	r.EmitJobRecovered(ctx, j, 1)
	r.EmitJobTerminal(ctx, j)
	r.EmitShutdown(ctx)

	want := []string{
		"OnJobSubmitted", "OnJobDispatched", "OnJobProgress",
		"OnJobStopped", "OnJobRecovered", "OnJobTerminal", "OnShutdown",
	}
	if len(ext.calls) != len(want) {
		t.Fatalf("got %d calls, want %d: %v", len(ext.calls), len(want), ext.calls)
	}
	for i, name := range want {
		if ext.calls[i] != name {
			t.Errorf("call %d = %s, want %s", i, ext.calls[i], name)
		}
	}
}

func TestRegistryPartialExtension(t *testing.T) {
	t.Parallel()

	r := hook.NewRegistry(testLogger())
	ext := &terminalOnlyExt{}
	r.Register(ext)

	ctx := context.Background()
	j := testJob()

	// Non-terminal events must not reach a terminal-only extension.
	r.EmitJobSubmitted(ctx, j)
	r.EmitJobProgress(ctx, j)
	if ext.calls != 0 {
		t.Fatalf("terminal-only extension received %d non-terminal calls", ext.calls)
	}

	r.EmitJobTerminal(ctx, j)
	if ext.calls != 1 {
		t.Fatalf("terminal calls = %d, want 1", ext.calls)
	}
}

func TestRegistryHookErrorsDoNotPropagate(t *testing.T) {
	t.Parallel()

	r := hook.NewRegistry(testLogger())
	r.Register(&failingExt{})
	tail := &allHooksExt{}
	r.Register(tail)

	// A failing hook must not stop later extensions from being notified.
	r.EmitJobSubmitted(context.Background(), testJob())
	if len(tail.calls) != 1 || tail.calls[0] != "OnJobSubmitted" {
		t.Fatalf("later extension not notified: %v", tail.calls)
	}
}

func TestRegistryExtensions(t *testing.T) {
	t.Parallel()

	r := hook.NewRegistry(testLogger())
	r.Register(&allHooksExt{})
	r.Register(&terminalOnlyExt{})

	if got := len(r.Extensions()); got != 2 {
		t.Fatalf("Extensions() = %d, want 2", got)
	}
}
