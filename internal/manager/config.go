package manager

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"qwenedit/internal/registry"
	"qwenedit/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth   = 8
	defaultMaxWait         = 10 * time.Minute
	defaultAssembleTimeout = 30 * time.Minute
)

// RuntimeFactory creates the runtime the pipeline is assembled on. It is
// called once, from Load.
type RuntimeFactory func(ctx context.Context) (Runtime, error)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Pairing  registry.Pairing
	Device   string
	Offload  types.OffloadPolicy
	CacheDir string

	NewRuntime      RuntimeFactory
	AssembleTimeout time.Duration

	MaxQueueDepth int
	MaxWait       time.Duration

	Publisher EventPublisher
	Logger    zerolog.Logger
	// Registerer receives the inference metrics; nil skips registration.
	Registerer prometheus.Registerer
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.Pairing.ModelID == "" {
		cfg.Pairing, _ = registry.Lookup(registry.DefaultModelID)
	}
	if cfg.Device == "" {
		cfg.Device = "auto"
	}
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = defaultMaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.AssembleTimeout <= 0 {
		cfg.AssembleTimeout = defaultAssembleTimeout
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.NewRuntime == nil {
		cfg.NewRuntime = func(context.Context) (Runtime, error) {
			return nil, ErrDependencyUnavailable("no pipeline worker configured")
		}
	}
	m := &Manager{
		cfg:       cfg,
		state:     StateUnloaded,
		genCh:     make(chan struct{}, 1),
		queueCh:   make(chan struct{}, cfg.MaxQueueDepth),
		publisher: cfg.Publisher,
		log:       cfg.Logger.With().Str("component", "manager").Logger(),
		metrics:   newInferenceMetrics(cfg.Registerer),
		startTime: time.Now(),
	}
	return m
}
