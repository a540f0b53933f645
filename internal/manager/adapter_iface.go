package manager

import (
	"context"
	"image"

	"qwenedit/pkg/types"
)

// DType names the numeric format the pipeline runs in.
type DType string

// DTypeBF16 is the 16-bit float format every stage is bound to.
const DTypeBF16 DType = "bfloat16"

// PlacementMode selects how the assembled pipeline is moved to compute.
type PlacementMode string

const (
	// PlacementCPUOffload migrates each stage to the device on demand.
	PlacementCPUOffload PlacementMode = "model_cpu_offload"
	// PlacementDevice moves the whole pipeline to the device up front.
	PlacementDevice PlacementMode = "to_device"
)

// Runtime abstracts the machine-learning runtime that owns the tensors. The
// Assembler drives it through the load sequence in order; the Manager then
// only calls Edit.
type Runtime interface {
	// Probe reports accelerator availability and runtime versions.
	Probe(ctx context.Context) (ProbeInfo, error)
	// LoadStructure reads only the transformer's structural config and
	// instantiates it in dtype with uninitialised weight storage.
	LoadStructure(ctx context.Context, req StructureRequest) error
	// InjectWeights decompresses the compressed weights into the structure.
	InjectWeights(ctx context.Context, req WeightsRequest) error
	// AttachPipeline wraps the structure in the editing pipeline.
	AttachPipeline(ctx context.Context, req PipelineRequest) error
	// Place moves the pipeline to compute.
	Place(ctx context.Context, req PlacementRequest) error
	// ConfigureProgress toggles the runtime's progress reporting.
	ConfigureProgress(ctx context.Context, enabled bool) error
	// Edit runs one image edit. The image is 3-channel RGB.
	Edit(ctx context.Context, req EditRequest) (EditResult, error)
	// Close releases the runtime and any process backing it.
	Close() error
}

// ProbeInfo describes the runtime host.
type ProbeInfo struct {
	CUDAAvailable bool   `json:"cuda_available"`
	DeviceName    string `json:"device_name,omitempty"`
	RuntimeInfo   string `json:"runtime,omitempty"`
}

// StructureRequest is step 1 of assembly.
type StructureRequest struct {
	ModelID   string `json:"model_id"`
	Subfolder string `json:"subfolder"`
	DType     DType  `json:"dtype"`
	CacheDir  string `json:"cache_dir,omitempty"`
}

// WeightsRequest is step 3 of assembly.
type WeightsRequest struct {
	CompressedID string              `json:"compressed_id"`
	LoadDevice   string              `json:"load_device"`
	Offload      types.OffloadPolicy `json:"offload"`
	CacheDir     string              `json:"cache_dir,omitempty"`
}

// PipelineRequest is step 4 of assembly.
type PipelineRequest struct {
	ModelID  string `json:"model_id"`
	DType    DType  `json:"dtype"`
	CacheDir string `json:"cache_dir,omitempty"`
}

// PlacementRequest is step 5 of assembly.
type PlacementRequest struct {
	Device string        `json:"device"`
	Mode   PlacementMode `json:"mode"`
}

// EditRequest is one inference call.
type EditRequest struct {
	Image  image.Image
	Params types.GenerationParams
}

// EditResult is the output of one inference call.
type EditResult struct {
	Image image.Image
	// PeakMemoryBytes is the accelerator high-water mark, 0 when unknown.
	PeakMemoryBytes uint64
}
