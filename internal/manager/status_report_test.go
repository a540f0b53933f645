package manager

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"qwenedit/pkg/types"
)

func TestSnapshotReturnsState(t *testing.T) {
	m := NewWithConfig(ManagerConfig{})
	m.mu.Lock()
	m.state = StateError
	m.err = "boom"
	m.mu.Unlock()
	s := m.Snapshot()
	if s.State != StateError || s.Err == "" || s.Pipeline != nil {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
}

func TestHealthUnloaded(t *testing.T) {
	m := NewWithConfig(ManagerConfig{Device: "cuda", Offload: types.OffloadPolicy{Enabled: true, BlockCount: 16, PinMemory: true}})
	h := m.Health()
	if h.Status != "unhealthy" || h.ModelLoaded {
		t.Fatalf("unexpected health: %+v", h)
	}
	for _, k := range []string{"model_name", "dfloat11_model_name", "device", "cpu_offload", "cpu_offload_blocks", "pin_memory", "loaded", "state"} {
		if _, ok := h.ModelInfo[k]; !ok {
			t.Fatalf("model_info missing %q: %+v", k, h.ModelInfo)
		}
	}
	if h.ModelInfo["model_name"] != m.ModelID() || h.ModelInfo["cpu_offload_blocks"] != 16 || h.ModelInfo["pin_memory"] != true {
		t.Fatalf("unexpected model_info: %+v", h.ModelInfo)
	}
}

func TestHealthReady(t *testing.T) {
	m := newReadyManager(t, &fakeRuntime{cuda: true}, ManagerConfig{})
	h := m.Health()
	if h.Status != "healthy" || !h.ModelLoaded {
		t.Fatalf("unexpected health: %+v", h)
	}
	if h.ModelInfo["device"] != "cuda" || h.ModelInfo["cuda_available"] != true || h.ModelInfo["dtype"] != "bfloat16" {
		t.Fatalf("unexpected model_info: %+v", h.ModelInfo)
	}
}

func TestHealthDoesNotWaitForInference(t *testing.T) {
	m := newReadyManager(t, &fakeRuntime{}, ManagerConfig{})
	m.genCh <- struct{}{}
	defer func() { <-m.genCh }()
	if h := m.Health(); h.ModelInfo["inflight"] != 1 {
		t.Fatalf("expected inflight=1, got %+v", h.ModelInfo)
	}
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt := &fakeRuntime{}
	m := newReadyManager(t, rt, ManagerConfig{Registerer: reg})
	if got := testutil.ToFloat64(m.metrics.loaded); got != 1 {
		t.Fatalf("loaded gauge=%v", got)
	}
	if _, err := m.Process(testCtx(t), editInput("p")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	rt.editErr = errBoom
	_, _ = m.Process(testCtx(t), editInput("p"))
	if got := testutil.ToFloat64(m.metrics.total.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok count=%v", got)
	}
	if got := testutil.ToFloat64(m.metrics.total.WithLabelValues("error")); got != 1 {
		t.Fatalf("error count=%v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "qwenedit_inference_total"); err != nil || n != 2 {
		t.Fatalf("gathered %d series, err=%v", n, err)
	}
}

func TestCounterPublisherCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCounterPublisher(reg)
	pub := MultiPublisher{NewMemoryPublisher(), c}
	rt := &fakeRuntime{}
	m := newReadyManager(t, rt, ManagerConfig{Publisher: pub})
	if _, err := m.Process(testCtx(t), editInput("p")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := testutil.ToFloat64(c.events.WithLabelValues(EventAssembleReady)); got != 1 {
		t.Fatalf("assemble_ready=%v", got)
	}
	if got := testutil.ToFloat64(c.events.WithLabelValues(EventInferEnd)); got != 1 {
		t.Fatalf("infer_end=%v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "qwenedit_manager_events_total"); err != nil || n == 0 {
		t.Fatalf("gathered %d series, err=%v", n, err)
	}
}
