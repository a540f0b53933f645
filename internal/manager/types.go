package manager

import (
	"image"
	"time"

	"qwenedit/pkg/types"
)

// State represents the lifecycle state of the pipeline.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateError    State = "error"
)

// PipelineInfo is the immutable description of an assembled pipeline.
type PipelineInfo struct {
	ModelID       string
	CompressedID  string
	Device        string
	Offload       types.OffloadPolicy
	DType         DType
	Placement     PlacementMode
	CUDAAvailable bool
	AssembledAt   time.Time
	LoadDuration  time.Duration
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State    State
	Err      string
	Pipeline *PipelineInfo
	QueueLen int
	Inflight int
}

// ProcessInput is one edit request after transport decoding.
type ProcessInput struct {
	Image  image.Image
	Params types.GenerationParams
	// RequestID correlates logs with the HTTP request.
	RequestID string
}

// ProcessOutput is the result of one edit.
type ProcessOutput struct {
	JobID     string
	Image     image.Image
	ModelUsed string
	Duration  time.Duration
}
