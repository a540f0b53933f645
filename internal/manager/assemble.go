package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"qwenedit/internal/registry"
	"qwenedit/pkg/types"
)

// Step names one stage of pipeline assembly.
type Step string

const (
	StepProbe     Step = "probe"
	StepStructure Step = "structure"
	StepWeights   Step = "weights"
	StepPipeline  Step = "pipeline"
	StepPlacement Step = "placement"
	StepProgress  Step = "progress"
)

// transformerSubfolder holds the structural config inside the base repo.
const transformerSubfolder = "transformer"

// AssemblySpec is everything the Assembler needs besides the runtime.
type AssemblySpec struct {
	Pairing  registry.Pairing
	Device   string
	Offload  types.OffloadPolicy
	CacheDir string
}

// Pipeline is the assembled, immutable pipeline handle. Edit calls are only
// made through the Manager, which serializes them.
type Pipeline struct {
	info PipelineInfo
	rt   Runtime
}

// Info returns the pipeline description.
func (p *Pipeline) Info() PipelineInfo { return p.info }

func (p *Pipeline) edit(ctx context.Context, req EditRequest) (EditResult, error) {
	return p.rt.Edit(ctx, req)
}

func (p *Pipeline) close() error { return p.rt.Close() }

// ResolveDevice maps "auto" to cuda or cpu depending on what the runtime
// reports.
func ResolveDevice(requested string, probe ProbeInfo) string {
	d := strings.ToLower(strings.TrimSpace(requested))
	if d == "" || d == "auto" {
		if probe.CUDAAvailable {
			return "cuda"
		}
		return "cpu"
	}
	return d
}

// PlacementFor picks per-stage migration when offload is enabled or the
// device is the host, and a whole-pipeline move otherwise.
func PlacementFor(device string, offload types.OffloadPolicy) PlacementMode {
	if offload.Enabled || device == "cpu" {
		return PlacementCPUOffload
	}
	return PlacementDevice
}

// Assemble runs the load sequence on rt in order. Any failure aborts the
// sequence, closes rt and is returned as an *AssemblyError.
func Assemble(ctx context.Context, rt Runtime, spec AssemblySpec, pub EventPublisher, log zerolog.Logger) (*Pipeline, error) {
	if pub == nil {
		pub = noopPublisher{}
	}
	start := time.Now()
	offload := spec.Offload.Normalized()
	modelID := spec.Pairing.ModelID
	run := func(step Step, fn func() error) error {
		t0 := time.Now()
		if err := fn(); err != nil {
			return &AssemblyError{Step: step, Err: err}
		}
		pub.Publish(Event{Name: EventAssembleStep, ModelID: modelID, Fields: map[string]any{"step": string(step), "duration_ms": time.Since(t0).Milliseconds()}})
		log.Info().Str("step", string(step)).Dur("duration", time.Since(t0)).Msg("assembly step done")
		return nil
	}

	var probe ProbeInfo
	var device string
	var placement PlacementMode
	steps := []struct {
		step Step
		fn   func() error
	}{
		{StepProbe, func() (err error) {
			probe, err = rt.Probe(ctx)
			if err != nil {
				return err
			}
			device = ResolveDevice(spec.Device, probe)
			if device == "cuda" && !probe.CUDAAvailable {
				return fmt.Errorf("device cuda requested but the runtime reports no accelerator")
			}
			placement = PlacementFor(device, offload)
			log.Info().
				Str("base", modelID).
				Str("compressed", spec.Pairing.CompressedID).
				Str("device", device).
				Bool("cpu_offload", offload.Enabled).
				Int("cpu_offload_blocks", offload.BlockCount).
				Bool("cuda_available", probe.CUDAAvailable).
				Msg("assembling pipeline")
			return nil
		}},
		{StepStructure, func() error {
			return rt.LoadStructure(ctx, StructureRequest{ModelID: modelID, Subfolder: transformerSubfolder, DType: DTypeBF16, CacheDir: spec.CacheDir})
		}},
		{StepWeights, func() error {
			// Weights always land on the host first; placement moves them.
			return rt.InjectWeights(ctx, WeightsRequest{CompressedID: spec.Pairing.CompressedID, LoadDevice: "cpu", Offload: offload, CacheDir: spec.CacheDir})
		}},
		{StepPipeline, func() error {
			return rt.AttachPipeline(ctx, PipelineRequest{ModelID: modelID, DType: DTypeBF16, CacheDir: spec.CacheDir})
		}},
		{StepPlacement, func() error {
			return rt.Place(ctx, PlacementRequest{Device: device, Mode: placement})
		}},
		{StepProgress, func() error {
			return rt.ConfigureProgress(ctx, false)
		}},
	}
	for _, s := range steps {
		if err := run(s.step, s.fn); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	return &Pipeline{
		rt: rt,
		info: PipelineInfo{
			ModelID:       modelID,
			CompressedID:  spec.Pairing.CompressedID,
			Device:        device,
			Offload:       offload,
			DType:         DTypeBF16,
			Placement:     placement,
			CUDAAvailable: probe.CUDAAvailable,
			AssembledAt:   time.Now(),
			LoadDuration:  time.Since(start),
		},
	}, nil
}
