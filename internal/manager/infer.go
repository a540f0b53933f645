package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"qwenedit/internal/imaging"
)

// Process runs one edit on the assembled pipeline. It fails fast with an
// unavailable error when no pipeline exists, a bad-input error for invalid
// parameters, and a too-busy error when the admission queue is saturated.
//
// ctx bounds only the wait for the inference slot. Once the edit starts it
// runs to completion even if the caller goes away, since the runtime cannot
// abandon a half-finished diffusion loop.
func (m *Manager) Process(ctx context.Context, in ProcessInput) (ProcessOutput, error) {
	m.mu.RLock()
	pipe, closed, state := m.pipe, m.closed, m.state
	m.mu.RUnlock()
	if closed || pipe == nil || state != StateReady {
		return ProcessOutput{}, ErrUnavailable(fmt.Sprintf("state=%s", state))
	}
	if in.Image == nil {
		return ProcessOutput{}, ErrBadInput(errors.New("image is required"))
	}
	if err := in.Params.Validate(); err != nil {
		return ProcessOutput{}, ErrBadInput(err)
	}

	release, err := m.beginGeneration(ctx)
	if err != nil {
		return ProcessOutput{}, err
	}
	defer release()
	// Close may have released the runtime while this request waited.
	m.mu.RLock()
	closed = m.closed
	m.mu.RUnlock()
	if closed {
		return ProcessOutput{}, ErrUnavailable("closed")
	}

	info := pipe.Info()
	jobID := uuid.NewString()
	log := m.log.With().
		Str("job_id", jobID).
		Str("request_id", in.RequestID).
		Str("device", info.Device).
		Logger()
	log.Info().
		Str("prompt", in.Params.Prompt).
		Int("steps", in.Params.NumInferenceSteps).
		Float64("true_cfg_scale", in.Params.TrueCFGScale).
		Int64("seed", in.Params.Seed).
		Msg("processing image")
	pub := m.pub()
	pub.Publish(Event{Name: EventInferStart, ModelID: info.ModelID, Fields: map[string]any{"job_id": jobID, "steps": in.Params.NumInferenceSteps, "seed": in.Params.Seed}})

	start := time.Now()
	res, err := pipe.edit(context.WithoutCancel(ctx), EditRequest{Image: imaging.ToRGB(in.Image), Params: in.Params})
	dur := time.Since(start)
	if err == nil && res.Image == nil {
		err = errors.New("runtime returned no image")
	}
	if err != nil {
		m.metrics.observe("error", dur)
		pub.Publish(Event{Name: EventInferEnd, ModelID: info.ModelID, Fields: map[string]any{"job_id": jobID, "error": err.Error()}})
		log.Error().Err(err).Str("prompt", in.Params.Prompt).Dur("duration", dur).Msg("processing failed")
		if IsDependencyUnavailable(err) {
			return ProcessOutput{}, err
		}
		return ProcessOutput{}, inferenceError{err: err}
	}
	m.metrics.observe("ok", dur)
	pub.Publish(Event{Name: EventInferEnd, ModelID: info.ModelID, Fields: map[string]any{"job_id": jobID, "duration_ms": dur.Milliseconds()}})
	ev := log.Info().Dur("duration", dur)
	if res.PeakMemoryBytes > 0 {
		ev = ev.Str("max_accelerator_memory", humanize.Bytes(res.PeakMemoryBytes))
	}
	ev.Msg("image processed")
	return ProcessOutput{JobID: jobID, Image: res.Image, ModelUsed: info.ModelID, Duration: dur}, nil
}
