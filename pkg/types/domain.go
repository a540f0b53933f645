package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Defaults for generation parameters omitted by the client.
const (
	DefaultNegativePrompt    = " "
	DefaultInferenceSteps    = 50
	DefaultTrueCFGScale      = 4.0
	DefaultSeed        int64 = 42

	MaxInferenceSteps = 150
)

// OffloadPolicy governs how much of the transformer stays in host memory.
// BlockCount only means something when Enabled is true.
type OffloadPolicy struct {
	Enabled    bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	BlockCount int  `json:"block_count" yaml:"block_count" toml:"block_count"`
	PinMemory  bool `json:"pin_memory" yaml:"pin_memory" toml:"pin_memory"`
}

// Normalized returns the policy with BlockCount forced to zero when offload
// is disabled and clamped at zero otherwise.
func (p OffloadPolicy) Normalized() OffloadPolicy {
	if !p.Enabled || p.BlockCount < 0 {
		p.BlockCount = 0
	}
	return p
}

// GenerationParams are the per-request inputs forwarded to the pipeline.
type GenerationParams struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	TrueCFGScale      float64 `json:"true_cfg_scale"`
	Seed              int64   `json:"seed"`
}

// DefaultParams returns the parameters used for prompt when the client sets
// nothing else.
func DefaultParams(prompt string) GenerationParams {
	return GenerationParams{
		Prompt:            prompt,
		NegativePrompt:    DefaultNegativePrompt,
		NumInferenceSteps: DefaultInferenceSteps,
		TrueCFGScale:      DefaultTrueCFGScale,
		Seed:              DefaultSeed,
	}
}

// Validate rejects parameters the pipeline cannot run with.
func (p GenerationParams) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Prompt) == "" {
		errs = append(errs, errors.New("prompt is required"))
	}
	if p.NumInferenceSteps < 1 || p.NumInferenceSteps > MaxInferenceSteps {
		errs = append(errs, fmt.Errorf("num_inference_steps must be between 1 and %d", MaxInferenceSteps))
	}
	if !(p.TrueCFGScale > 0) || math.IsInf(p.TrueCFGScale, 0) {
		errs = append(errs, errors.New("true_cfg_scale must be a positive number"))
	}
	return errors.Join(errs...)
}

// ParamsFromRequest fills in defaults for every optional field of req. Values
// from the legacy options bag apply first; explicit fields override them.
func ParamsFromRequest(req ProcessRequest) (GenerationParams, error) {
	p := DefaultParams(req.Prompt)
	if err := p.applyOptions(req.Options); err != nil {
		return p, err
	}
	if req.NegativePrompt != nil {
		p.NegativePrompt = *req.NegativePrompt
	}
	if req.NumInferenceSteps != nil {
		p.NumInferenceSteps = *req.NumInferenceSteps
	}
	if req.TrueCFGScale != nil {
		p.TrueCFGScale = *req.TrueCFGScale
	}
	if req.Seed != nil {
		p.Seed = *req.Seed
	}
	return p, nil
}

func (p *GenerationParams) applyOptions(opts map[string]any) error {
	for k, v := range opts {
		switch k {
		case "negative_prompt":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("options.negative_prompt must be a string")
			}
			p.NegativePrompt = s
		case "num_inference_steps":
			n, err := wholeNumber(k, v)
			if err != nil {
				return err
			}
			p.NumInferenceSteps = int(n)
		case "true_cfg_scale":
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("options.true_cfg_scale must be a number")
			}
			p.TrueCFGScale = f
		case "seed":
			n, err := wholeNumber(k, v)
			if err != nil {
				return err
			}
			p.Seed = n
		}
	}
	return nil
}

func wholeNumber(key string, v any) (int64, error) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("options.%s must be an integer", key)
	}
	return int64(f), nil
}
