package manager

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred. Waiting is bounded by ctx and the
// configured MaxWait; once acquired the slot is held until release.
func (m *Manager) beginGeneration(ctx context.Context) (func(), error) {
	modelID := m.cfg.Pairing.ModelID
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	deadline := time.NewTimer(m.cfg.MaxWait)
	defer deadline.Stop()

	// A full queue rejects immediately rather than waiting for a slot.
	select {
	case m.queueCh <- struct{}{}:
	default:
		m.metrics.backpressure.Inc()
		return func() {}, ErrTooBusy(modelID)
	}

	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
		}
	}()
	select {
	case m.genCh <- struct{}{}:
		acquired = true
		return func() { <-m.genCh; <-m.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-deadline.C:
		m.metrics.backpressure.Inc()
		return func() {}, ErrTooBusy(modelID)
	}
}
