package manager

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func helperWorker(pub EventPublisher, extra ...string) SubprocessConfig {
	return SubprocessConfig{
		Cmd:          append([]string{os.Args[0]}, extra...),
		Env:          []string{envHelperWorker + "=1"},
		ReadyTimeout: 10 * time.Second,
		StopTimeout:  2 * time.Second,
		Publisher:    pub,
		Logger:       zerolog.Nop(),
	}
}

func TestSubprocessRuntimeServesEdits(t *testing.T) {
	pub := NewMemoryPublisher()
	cfg := helperWorker(pub, "--cuda")
	m := NewWithConfig(ManagerConfig{
		Publisher: pub,
		NewRuntime: func(ctx context.Context) (Runtime, error) {
			return NewSubprocessRuntime(ctx, cfg)
		},
	})
	if err := m.Load(testCtx(t)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := m.Snapshot()
	if snap.Pipeline == nil || snap.Pipeline.Device != "cuda" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if _, err := m.Process(testCtx(t), editInput("p")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := m.Close(time.Second); err != nil {
		t.Fatalf("Close: %v", err)
	}
	names := strings.Join(pub.Names(), ",")
	for _, want := range []string{EventWorkerStart, EventWorkerReady, EventAssembleReady, EventWorkerStop} {
		if !strings.Contains(names, want) {
			t.Fatalf("missing event %q in %s", want, names)
		}
	}
}

func TestSubprocessEarlyExitEmitsError(t *testing.T) {
	pub := NewMemoryPublisher()
	_, err := NewSubprocessRuntime(testCtx(t), helperWorker(pub, "--exit-early"))
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "refusing to start") {
		t.Fatalf("stderr tail missing from error: %v", err)
	}
	var startOK, exitOK bool
	for _, e := range pub.Events() {
		if e.Name == EventWorkerStart {
			startOK = true
		}
		if e.Name == EventWorkerExit {
			exitOK = true
		}
	}
	if !startOK || !exitOK {
		t.Fatalf("expected worker_start and worker_exit events, got: %v", pub.Names())
	}
}

func TestSubprocessMissingBinary(t *testing.T) {
	_, err := NewSubprocessRuntime(testCtx(t), SubprocessConfig{Cmd: []string{"definitely-not-a-qwenedit-worker"}})
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if _, err := NewSubprocessRuntime(testCtx(t), SubprocessConfig{}); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable for empty command, got %v", err)
	}
}

func TestSubprocessStopIsIdempotent(t *testing.T) {
	rt, err := NewSubprocessRuntime(testCtx(t), helperWorker(nil))
	if err != nil {
		t.Fatalf("NewSubprocessRuntime: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := rt.Probe(testCtx(t)); !IsDependencyUnavailable(err) {
		t.Fatalf("stopped worker should be unreachable, got %v", err)
	}
}
