package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager owns the single pipeline handle of the process: it assembles it
// once, reports its state, and serializes edits through an admission queue.
type Manager struct {
	mu    sync.RWMutex
	cfg   ManagerConfig
	state State
	err   string
	pipe  *Pipeline

	loadOnce sync.Once
	loadErr  error
	closed   bool

	// Queueing primitives
	genCh   chan struct{} // size 1: single in-flight edit
	queueCh chan struct{} // buffered: queue slots

	publisher EventPublisher
	log       zerolog.Logger
	metrics   *inferenceMetrics
	startTime time.Time
}

// New constructs a Manager with package defaults for everything not set.
func New(cfg ManagerConfig) *Manager { return NewWithConfig(cfg) }

// Ready reports whether a pipeline is assembled and the manager is open.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.pipe != nil && !m.closed
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ModelID is the base model the manager serves.
func (m *Manager) ModelID() string { return m.cfg.Pairing.ModelID }

// SetEventPublisher installs an EventPublisher. Nil restores the no-op.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		p = noopPublisher{}
	}
	m.publisher = p
}

func (m *Manager) pub() EventPublisher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.publisher
}

// Uptime reports how long the manager has existed.
func (m *Manager) Uptime() time.Duration { return time.Since(m.startTime) }
