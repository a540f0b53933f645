package httpapi

import (
	"context"
	"testing"
	"time"
)

type ctxKey struct{}

func TestJoinContexts_CancelOnEither(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	b := context.WithValue(context.Background(), ctxKey{}, "v")
	ctx, cancel := joinContexts(a, b)
	defer cancel()
	if ctx.Value(ctxKey{}) != "v" {
		t.Fatalf("request values lost")
	}
	cancelA()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("joined context not canceled by base")
	}

	b2, cancelB := context.WithCancel(context.Background())
	ctx2, cancel2 := joinContexts(context.Background(), b2)
	defer cancel2()
	cancelB()
	select {
	case <-ctx2.Done():
	case <-time.After(time.Second):
		t.Fatalf("joined context not canceled by request")
	}
}

func TestSetBaseContextNil(t *testing.T) {
	SetBaseContext(nil)
	if serverBaseCtx == nil {
		t.Fatalf("base context must never be nil")
	}
}
