// Package harness drives a running edit service over HTTP with a fixed
// fixture (a 512×512 solid-red PNG and a colour-change prompt) and checks
// status codes and payload shapes. It backs `qwenedit verify` and the
// end-to-end tests.
package harness

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"qwenedit/internal/imaging"
	"qwenedit/pkg/types"
)

// Fixture values used by CheckProcess.
const (
	DefaultPrompt   = "Make this image blue instead of red"
	DefaultSteps    = 20
	DefaultSeed     = int64(42)
	FixtureSize     = 512
	DefaultBaseURL  = "http://localhost:8000"
	queryTimeout    = 10 * time.Second
	defaultEditWait = 5 * time.Minute
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Check is one line of a Report.
type Check struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Harness is a client for the service's public endpoints.
type Harness struct {
	BaseURL string
	Client  *http.Client
	Log     zerolog.Logger

	// Prompt, Steps and Seed override the fixture request when set.
	Prompt string
	Steps  int
	Seed   *int64
	// EditTimeout bounds the process call. Defaults to five minutes.
	EditTimeout time.Duration
	// SavePath, when set, receives the edited image as PNG.
	SavePath string
}

// New returns a Harness for baseURL with the fixture defaults.
func New(baseURL string) *Harness {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Harness{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{},
		Log:     zerolog.Nop(),
	}
}

// Fixture returns the PNG bytes of the solid-red input image.
func Fixture() ([]byte, error) {
	return imaging.SolidPNG(FixtureSize, FixtureSize, color.RGBA{R: 255, A: 255})
}

// CheckHealth queries GET /health. The returned response is valid only when
// the check passed.
func (h *Harness) CheckHealth(ctx context.Context) (types.HealthResponse, Check) {
	c := Check{Name: "health"}
	start := time.Now()
	var hr types.HealthResponse
	status, body, err := h.get(ctx, "/health", &hr)
	switch {
	case err != nil:
		c = failCheck(c, start, err.Error())
	case status != http.StatusOK:
		c = failCheck(c, start, fmt.Sprintf("status %d: %s", status, snippet(body)))
	case hr.Status != "healthy" && hr.Status != "unhealthy":
		c = failCheck(c, start, fmt.Sprintf("unexpected status field %q", hr.Status))
	case hr.ModelLoaded != (hr.Status == "healthy"):
		c = failCheck(c, start, fmt.Sprintf("status %q disagrees with model_loaded=%v", hr.Status, hr.ModelLoaded))
	default:
		c.Status = StatusPass
		c.Duration = time.Since(start)
		c.Detail = fmt.Sprintf("status=%s model_loaded=%v", hr.Status, hr.ModelLoaded)
		if dev, ok := hr.ModelInfo["device"]; ok {
			c.Detail += fmt.Sprintf(" device=%v", dev)
		}
	}
	h.logCheck(c)
	return hr, c
}

// CheckModels queries GET /models and requires non-empty model and
// capability lists.
func (h *Harness) CheckModels(ctx context.Context) Check {
	c := Check{Name: "models"}
	start := time.Now()
	var mr types.ModelsResponse
	status, body, err := h.get(ctx, "/models", &mr)
	switch {
	case err != nil:
		c = failCheck(c, start, err.Error())
	case status != http.StatusOK:
		c = failCheck(c, start, fmt.Sprintf("status %d: %s", status, snippet(body)))
	case len(mr.AvailableModels) == 0:
		c = failCheck(c, start, "available_models is empty")
	case len(mr.Capabilities) == 0:
		c = failCheck(c, start, "capabilities is empty")
	default:
		c.Status = StatusPass
		c.Detail = fmt.Sprintf("models=%v capabilities=%v", mr.AvailableModels, mr.Capabilities)
		c.Duration = time.Since(start)
	}
	h.logCheck(c)
	return c
}

// CheckProcess posts the fixture to POST /process and validates the
// returned image. It returns the decoded result on success.
func (h *Harness) CheckProcess(ctx context.Context) (Check, image.Image) {
	c := Check{Name: "process"}
	start := time.Now()
	fixture, err := Fixture()
	if err != nil {
		c = failCheck(c, start, err.Error())
		h.logCheck(c)
		return c, nil
	}
	req := h.request(fixture)

	timeout := h.EditTimeout
	if timeout <= 0 {
		timeout = defaultEditWait
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var pr types.ProcessResponse
	status, body, err := h.post(ctx, "/process", req, &pr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("processing timed out after %s", timeout)
		}
		c = failCheck(c, start, err.Error())
		h.logCheck(c)
		return c, nil
	}
	if status != http.StatusOK {
		c = failCheck(c, start, fmt.Sprintf("status %d: %s", status, errorDetail(body)))
		h.logCheck(c)
		return c, nil
	}
	img, err := h.validateResult(pr)
	if err != nil {
		c = failCheck(c, start, err.Error())
		h.logCheck(c)
		return c, nil
	}
	c.Status = StatusPass
	c.Duration = time.Since(start)
	c.Detail = fmt.Sprintf("server_time=%.1fs model=%s", pr.ProcessingTime, pr.ModelUsed)
	if h.SavePath != "" {
		if err := h.save(pr.ProcessedImageBase64); err != nil {
			h.Log.Warn().Err(err).Str("path", h.SavePath).Msg("could not save result image")
		} else {
			c.Detail += " saved=" + h.SavePath
		}
	}
	h.logCheck(c)
	return c, img
}

// Run performs health, models and process checks in order. Processing is
// skipped when the health check does not report a loaded model.
func (h *Harness) Run(ctx context.Context) Report {
	rep := Report{BaseURL: h.BaseURL, Started: time.Now()}
	hr, hc := h.CheckHealth(ctx)
	rep.Checks = append(rep.Checks, hc)
	rep.ModelLoaded = hc.Status == StatusPass && hr.ModelLoaded
	rep.Checks = append(rep.Checks, h.CheckModels(ctx))
	if rep.ModelLoaded {
		pc, _ := h.CheckProcess(ctx)
		rep.Checks = append(rep.Checks, pc)
	} else {
		skip := Check{Name: "process", Status: StatusSkip, Detail: "model not loaded"}
		h.logCheck(skip)
		rep.Checks = append(rep.Checks, skip)
	}
	rep.Elapsed = time.Since(rep.Started)
	return rep
}

func (h *Harness) request(fixture []byte) types.ProcessRequest {
	prompt := h.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	steps := h.Steps
	if steps <= 0 {
		steps = DefaultSteps
	}
	seed := DefaultSeed
	if h.Seed != nil {
		seed = *h.Seed
	}
	return types.ProcessRequest{
		ImageBase64:       base64.StdEncoding.EncodeToString(fixture),
		Prompt:            prompt,
		NumInferenceSteps: &steps,
		Seed:              &seed,
	}
}

func (h *Harness) validateResult(pr types.ProcessResponse) (image.Image, error) {
	if !pr.Success {
		return nil, errors.New("success=false")
	}
	if pr.ProcessedImageBase64 == "" {
		return nil, errors.New("processed_image_base64 is empty")
	}
	if pr.ModelUsed == "" {
		return nil, errors.New("model_used is empty")
	}
	img, err := imaging.DecodeBase64Image(pr.ProcessedImageBase64)
	if err != nil {
		return nil, fmt.Errorf("result image: %w", err)
	}
	if b := img.Bounds(); b.Dx() != FixtureSize || b.Dy() != FixtureSize {
		return nil, fmt.Errorf("result is %dx%d, want %dx%d", b.Dx(), b.Dy(), FixtureSize, FixtureSize)
	}
	return img, nil
}

func (h *Harness) save(b64 string) error {
	raw, err := imaging.DecodeBase64(b64)
	if err != nil {
		return err
	}
	return os.WriteFile(h.SavePath, raw, 0o644)
}

func (h *Harness) get(ctx context.Context, path string, out any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+path, nil)
	if err != nil {
		return 0, nil, err
	}
	return h.do(req, out)
}

func (h *Harness) post(ctx context.Context, path string, in, out any) (int, []byte, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req, out)
}

// do sends req and decodes a 200 body into out.
func (h *Harness) do(req *http.Request, out any) (int, []byte, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, body, fmt.Errorf("decode %s: %w", req.URL.Path, err)
		}
	}
	return resp.StatusCode, body, nil
}

func (h *Harness) logCheck(c Check) {
	var ev *zerolog.Event
	switch c.Status {
	case StatusPass:
		ev = h.Log.Info()
	case StatusSkip:
		ev = h.Log.Warn()
	default:
		ev = h.Log.Error()
	}
	ev.Str("check", c.Name).Str("status", string(c.Status)).Dur("dur", c.Duration).Str("base_url", h.BaseURL).Msg(c.Detail)
}

func failCheck(c Check, start time.Time, detail string) Check {
	c.Status = StatusFail
	c.Detail = detail
	c.Duration = time.Since(start)
	return c
}

// errorDetail extracts the detail field of an error payload, falling back to
// the raw body.
func errorDetail(body []byte) string {
	var e types.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return snippet(body)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
