package manager

import "time"

// Close drains in-flight work for up to drain and releases the runtime.
// After Close the manager reports unavailable for every request.
func (m *Manager) Close(drain time.Duration) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	pipe := m.pipe
	m.mu.Unlock()

	deadline := time.Now().Add(drain)
	for len(m.genCh) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	m.mu.Lock()
	m.pipe = nil
	m.state = StateUnloaded
	m.mu.Unlock()
	m.metrics.setLoaded(false)
	if pipe == nil {
		return nil
	}
	m.log.Info().Msg("releasing pipeline runtime")
	return pipe.close()
}
