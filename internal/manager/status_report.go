package manager

import (
	"fmt"

	"qwenedit/pkg/types"
)

const (
	healthHealthy   = "healthy"
	healthUnhealthy = "unhealthy"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.state, Err: m.err, QueueLen: len(m.queueCh), Inflight: len(m.genCh)}
	if m.pipe != nil {
		info := m.pipe.Info()
		s.Pipeline = &info
	}
	return s
}

// Health builds the liveness/readiness payload. It never waits on the
// inference slot and never panics; internal failures are reported as an
// unhealthy payload carrying the error.
func (m *Manager) Health() (resp types.HealthResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = types.HealthResponse{
				Status:      healthUnhealthy,
				ModelLoaded: false,
				ModelInfo:   map[string]any{"error": fmt.Sprint(r)},
			}
		}
	}()
	snap := m.Snapshot()
	loaded := snap.State == StateReady && snap.Pipeline != nil
	p := m.cfg.Pairing
	info := map[string]any{
		"model_name":          p.ModelID,
		"dfloat11_model_name": p.CompressedID,
		"device":              m.cfg.Device,
		"cpu_offload":         m.cfg.Offload.Enabled,
		"cpu_offload_blocks":  m.cfg.Offload.Normalized().BlockCount,
		"pin_memory":          m.cfg.Offload.Normalized().PinMemory,
		"loaded":              loaded,
		"state":               string(snap.State),
		"model_type":          p.ModelType,
		"compression_ratio":   p.CompressionRatio,
		"estimated_size":      p.EstimatedSize,
		"queue_len":           snap.QueueLen,
		"inflight":            snap.Inflight,
	}
	if snap.Pipeline != nil {
		info["device"] = snap.Pipeline.Device
		info["cuda_available"] = snap.Pipeline.CUDAAvailable
		info["placement"] = string(snap.Pipeline.Placement)
		info["dtype"] = string(snap.Pipeline.DType)
		info["load_seconds"] = snap.Pipeline.LoadDuration.Seconds()
	}
	if snap.Err != "" {
		info["error"] = snap.Err
	}
	status := healthUnhealthy
	if loaded {
		status = healthHealthy
	}
	return types.HealthResponse{Status: status, ModelLoaded: loaded, ModelInfo: info}
}
