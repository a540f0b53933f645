package manager

import "github.com/rs/zerolog"

// Event names published by the manager and the worker runtime.
const (
	EventAssembleStart  = "assemble_start"
	EventAssembleStep   = "assemble_step"
	EventAssembleReady  = "assemble_ready"
	EventAssembleFailed = "assemble_failed"
	EventInferStart     = "infer_start"
	EventInferEnd       = "infer_end"
	EventWorkerStart    = "worker_start"
	EventWorkerReady    = "worker_ready"
	EventWorkerExit     = "worker_exit"
	EventWorkerTimeout  = "worker_timeout"
	EventWorkerStop     = "worker_stop"
)

// Event represents a manager lifecycle event.
// Minimal and stable: name + model ID and optional fields via key/values.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// LogPublisher writes every event to a zerolog logger at debug level.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	ev := p.Logger.Debug().Str("event", e.Name)
	if e.ModelID != "" {
		ev = ev.Str("model", e.ModelID)
	}
	ev.Fields(e.Fields).Msg("manager event")
}

// MultiPublisher fans an event out to several publishers.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}
