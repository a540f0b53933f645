package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"qwenedit/internal/imaging"
)

// Worker protocol paths. A worker is any process that serves these over
// HTTP JSON and holds the pipeline tensors.
const (
	workerPathHealth    = "/v1/health"
	workerPathProbe     = "/v1/probe"
	workerPathStructure = "/v1/structure"
	workerPathWeights   = "/v1/weights"
	workerPathPipeline  = "/v1/pipeline"
	workerPathPlace     = "/v1/place"
	workerPathProgress  = "/v1/progress"
	workerPathEdit      = "/v1/edit"
)

// WorkerEditRequest is the /v1/edit request body.
type WorkerEditRequest struct {
	ImageBase64       string  `json:"image_base64"`
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	TrueCFGScale      float64 `json:"true_cfg_scale"`
	Seed              int64   `json:"seed"`
}

// WorkerEditResponse is the /v1/edit response body.
type WorkerEditResponse struct {
	ImageBase64     string `json:"image_base64"`
	PeakMemoryBytes uint64 `json:"max_memory_allocated"`
}

// WorkerProgressRequest is the /v1/progress request body.
type WorkerProgressRequest struct {
	Disable bool `json:"disable"`
}

// WorkerError is the body of any non-2xx worker response.
type WorkerError struct {
	Error string `json:"error"`
}

// workerClient implements Runtime against a worker over HTTP.
type workerClient struct {
	baseURL    string
	httpClient *http.Client
	onClose    func() error
}

// NewRemoteRuntime returns a Runtime talking to an already running worker.
func NewRemoteRuntime(baseURL string) Runtime {
	return newWorkerClient(baseURL, 5*time.Second)
}

func newWorkerClient(baseURL string, connectTimeout time.Duration) *workerClient {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          8,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout=0: assembly and inference can take many minutes, so every call
	// is bounded by its context instead.
	return &workerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: tr, Timeout: 0},
	}
}

func (c *workerClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrDependencyUnavailable("pipeline worker unreachable: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var we WorkerError
		if json.Unmarshal(b, &we) == nil && we.Error != "" {
			return fmt.Errorf("worker %s: %s", path, we.Error)
		}
		return fmt.Errorf("worker %s: %s: %s", path, resp.Status, strings.TrimSpace(string(b)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("worker %s: decode response: %w", path, err)
	}
	return nil
}

func (c *workerClient) healthy(ctx context.Context) bool {
	return c.call(ctx, http.MethodGet, workerPathHealth, nil, nil) == nil
}

func (c *workerClient) Probe(ctx context.Context) (ProbeInfo, error) {
	var info ProbeInfo
	err := c.call(ctx, http.MethodGet, workerPathProbe, nil, &info)
	return info, err
}

func (c *workerClient) LoadStructure(ctx context.Context, req StructureRequest) error {
	return c.call(ctx, http.MethodPost, workerPathStructure, req, nil)
}

func (c *workerClient) InjectWeights(ctx context.Context, req WeightsRequest) error {
	return c.call(ctx, http.MethodPost, workerPathWeights, req, nil)
}

func (c *workerClient) AttachPipeline(ctx context.Context, req PipelineRequest) error {
	return c.call(ctx, http.MethodPost, workerPathPipeline, req, nil)
}

func (c *workerClient) Place(ctx context.Context, req PlacementRequest) error {
	return c.call(ctx, http.MethodPost, workerPathPlace, req, nil)
}

func (c *workerClient) ConfigureProgress(ctx context.Context, enabled bool) error {
	return c.call(ctx, http.MethodPost, workerPathProgress, WorkerProgressRequest{Disable: !enabled}, nil)
}

func (c *workerClient) Edit(ctx context.Context, req EditRequest) (EditResult, error) {
	if req.Image == nil {
		return EditResult{}, errors.New("edit: nil image")
	}
	b64, err := imaging.EncodeBase64PNG(req.Image)
	if err != nil {
		return EditResult{}, err
	}
	in := WorkerEditRequest{
		ImageBase64:       b64,
		Prompt:            req.Params.Prompt,
		NegativePrompt:    req.Params.NegativePrompt,
		NumInferenceSteps: req.Params.NumInferenceSteps,
		TrueCFGScale:      req.Params.TrueCFGScale,
		Seed:              req.Params.Seed,
	}
	var out WorkerEditResponse
	if err := c.call(ctx, http.MethodPost, workerPathEdit, in, &out); err != nil {
		return EditResult{}, err
	}
	img, err := imaging.DecodeBase64Image(out.ImageBase64)
	if err != nil {
		return EditResult{}, fmt.Errorf("worker returned an undecodable image: %w", err)
	}
	return EditResult{Image: img, PeakMemoryBytes: out.PeakMemoryBytes}, nil
}

func (c *workerClient) Close() error {
	c.httpClient.CloseIdleConnections()
	if c.onClose != nil {
		return c.onClose()
	}
	return nil
}
