package manager

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBeginGeneration_QueueFullRejectsImmediately(t *testing.T) {
	m := NewWithConfig(ManagerConfig{MaxQueueDepth: 1, MaxWait: time.Minute})
	rel, err := m.beginGeneration(context.Background())
	if err != nil {
		t.Fatalf("beginGeneration first: %v", err)
	}
	defer rel()
	start := time.Now()
	_, err = m.beginGeneration(context.Background())
	if !IsTooBusy(err) {
		t.Fatalf("expected tooBusyError, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("full queue should not wait, took %s", time.Since(start))
	}
}

func TestBeginGeneration_GenTimeout(t *testing.T) {
	m := NewWithConfig(ManagerConfig{MaxQueueDepth: 2, MaxWait: 20 * time.Millisecond})
	// Occupy genCh so acquisitions block at the gen stage.
	m.genCh <- struct{}{}
	_, err := m.beginGeneration(context.Background())
	if !IsTooBusy(err) {
		t.Fatalf("expected tooBusyError on gen wait, got %v", err)
	}
	if len(m.queueCh) != 0 {
		t.Fatalf("queue slot leaked after timeout: %d", len(m.queueCh))
	}
}

func TestBeginGeneration_ContextCanceled(t *testing.T) {
	m := NewWithConfig(ManagerConfig{MaxQueueDepth: 2, MaxWait: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.beginGeneration(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	m.genCh <- struct{}{}
	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.beginGeneration(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(m.queueCh) != 0 {
		t.Fatalf("queue slot leaked after cancel: %d", len(m.queueCh))
	}
}

func TestBeginGeneration_ReleaseFreesSlots(t *testing.T) {
	m := NewWithConfig(ManagerConfig{MaxQueueDepth: 1, MaxWait: 50 * time.Millisecond})
	for i := 0; i < 3; i++ {
		rel, err := m.beginGeneration(context.Background())
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		rel()
	}
	if len(m.genCh) != 0 || len(m.queueCh) != 0 {
		t.Fatalf("slots not released: gen=%d queue=%d", len(m.genCh), len(m.queueCh))
	}
}

func TestProcessQueueFullReturnsTooBusy(t *testing.T) {
	rt := &fakeRuntime{block: make(chan struct{})}
	m := newReadyManager(t, rt, ManagerConfig{MaxQueueDepth: 1, MaxWait: time.Minute})
	done := make(chan error, 1)
	go func() {
		_, err := m.Process(context.Background(), editInput("p"))
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for rt.editCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := m.Process(testCtx(t), editInput("p")); !IsTooBusy(err) {
		t.Fatalf("expected too busy, got %v", err)
	}
	close(rt.block)
	if err := <-done; err != nil {
		t.Fatalf("first edit: %v", err)
	}
}
