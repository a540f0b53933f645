package manager

import (
	"context"
	"time"
)

// Load creates the runtime and assembles the pipeline. Only the first call
// does work; later calls return its result. A failed load leaves the manager
// in StateError for the life of the process.
func (m *Manager) Load(ctx context.Context) error {
	m.loadOnce.Do(func() {
		m.loadErr = m.load(ctx)
	})
	return m.loadErr
}

func (m *Manager) load(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrUnavailable("manager closed")
	}
	m.state = StateLoading
	m.mu.Unlock()

	modelID := m.cfg.Pairing.ModelID
	pub := m.pub()
	pub.Publish(Event{Name: EventAssembleStart, ModelID: modelID, Fields: map[string]any{"device": m.cfg.Device}})
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.AssembleTimeout)
	defer cancel()

	pipe, err := m.assemble(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateError
		m.err = err.Error()
		m.mu.Unlock()
		m.metrics.setLoaded(false)
		pub.Publish(Event{Name: EventAssembleFailed, ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
		m.log.Error().Err(err).Str("model", modelID).Str("compressed", m.cfg.Pairing.CompressedID).Str("device", m.cfg.Device).Msg("pipeline assembly failed")
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = pipe.close()
		return ErrUnavailable("manager closed during load")
	}
	m.pipe = pipe
	m.state = StateReady
	m.err = ""
	m.mu.Unlock()
	m.metrics.setLoaded(true)

	info := pipe.Info()
	pub.Publish(Event{Name: EventAssembleReady, ModelID: modelID, Fields: map[string]any{"device": info.Device, "placement": string(info.Placement), "duration_ms": time.Since(start).Milliseconds()}})
	m.log.Info().Str("model", modelID).Str("device", info.Device).Str("placement", string(info.Placement)).Dur("duration", time.Since(start)).Msg("pipeline ready")
	return nil
}

func (m *Manager) assemble(ctx context.Context) (*Pipeline, error) {
	rt, err := m.cfg.NewRuntime(ctx)
	if err != nil {
		return nil, err
	}
	spec := AssemblySpec{
		Pairing:  m.cfg.Pairing,
		Device:   m.cfg.Device,
		Offload:  m.cfg.Offload,
		CacheDir: m.cfg.CacheDir,
	}
	return Assemble(ctx, rt, spec, m.pub(), m.log)
}
