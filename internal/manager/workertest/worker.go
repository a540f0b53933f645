// Package workertest provides an in-process pipeline worker that speaks the
// worker HTTP protocol. It enforces the assembly order and produces
// deterministic edits, so manager, HTTP and end-to-end tests can run without
// a GPU or model weights.
package workertest

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"qwenedit/internal/imaging"
)

// Options tune the fake worker.
type Options struct {
	CUDA bool
	// FailPath makes the worker answer 500 on that protocol path
	// (e.g. "/v1/weights").
	FailPath string
	// EditDelay is slept inside every edit.
	EditDelay time.Duration
	// PeakMemory is reported by every edit.
	PeakMemory uint64
}

// order is the assembly sequence the worker accepts.
var order = []string{"/v1/structure", "/v1/weights", "/v1/pipeline", "/v1/place", "/v1/progress"}

// Worker is an http.Handler implementing the worker protocol.
type Worker struct {
	opts Options
	mux  *http.ServeMux

	mu       sync.Mutex
	calls    []string
	stage    int
	bodies   map[string]map[string]any
	edits    int
	inflight int
	maxInfl  int
}

// New returns a worker with opts.
func New(opts Options) *Worker {
	w := &Worker{opts: opts, mux: http.NewServeMux(), bodies: map[string]map[string]any{}}
	w.mux.HandleFunc("GET /v1/health", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	})
	w.mux.HandleFunc("GET /v1/probe", func(rw http.ResponseWriter, r *http.Request) {
		if w.fail(rw, r) {
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"cuda_available": w.opts.CUDA, "device_name": "fake", "runtime": "workertest"})
	})
	for i, p := range order {
		w.mux.HandleFunc("POST "+p, w.stageHandler(i, p))
	}
	w.mux.HandleFunc("POST /v1/edit", w.edit)
	return w
}

func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	w.calls = append(w.calls, r.URL.Path)
	w.mu.Unlock()
	w.mux.ServeHTTP(rw, r)
}

// Calls returns the protocol paths requested so far, in order.
func (w *Worker) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

// Body returns the last JSON body received on path. Edit bodies omit the
// image.
func (w *Worker) Body(path string) map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bodies[path]
}

// Edits counts completed edits.
func (w *Worker) Edits() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edits
}

// MaxConcurrentEdits is the highest number of edits seen running at once.
func (w *Worker) MaxConcurrentEdits() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxInfl
}

func (w *Worker) fail(rw http.ResponseWriter, r *http.Request) bool {
	if w.opts.FailPath != "" && r.URL.Path == w.opts.FailPath {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "injected failure at " + r.URL.Path})
		return true
	}
	return false
}

func (w *Worker) stageHandler(i int, path string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		w.mu.Lock()
		w.bodies[path] = body
		stage := w.stage
		w.mu.Unlock()
		if stage != i {
			writeJSON(rw, http.StatusConflict, map[string]string{"error": fmt.Sprintf("%s called out of order (stage %d)", path, stage)})
			return
		}
		if w.fail(rw, r) {
			return
		}
		w.mu.Lock()
		w.stage++
		w.mu.Unlock()
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type editRequest struct {
	ImageBase64       string  `json:"image_base64"`
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	TrueCFGScale      float64 `json:"true_cfg_scale"`
	Seed              int64   `json:"seed"`
}

func (w *Worker) edit(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	ready := w.stage == len(order)
	w.inflight++
	if w.inflight > w.maxInfl {
		w.maxInfl = w.inflight
	}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.inflight--
		w.mu.Unlock()
	}()
	if !ready {
		writeJSON(rw, http.StatusConflict, map[string]string{"error": "pipeline not assembled"})
		return
	}
	if w.fail(rw, r) {
		return
	}
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	w.mu.Lock()
	w.bodies[r.URL.Path] = map[string]any{
		"prompt":              req.Prompt,
		"negative_prompt":     req.NegativePrompt,
		"num_inference_steps": req.NumInferenceSteps,
		"true_cfg_scale":      req.TrueCFGScale,
		"seed":                req.Seed,
	}
	w.mu.Unlock()
	img, err := imaging.DecodeBase64Image(req.ImageBase64)
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if w.opts.EditDelay > 0 {
		time.Sleep(w.opts.EditDelay)
	}
	out := Transform(img, req.Prompt, req.Seed)
	b64, err := imaging.EncodeBase64PNG(out)
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.mu.Lock()
	w.edits++
	w.mu.Unlock()
	writeJSON(rw, http.StatusOK, map[string]any{"image_base64": b64, "max_memory_allocated": w.opts.PeakMemory})
}

// Transform is the fake edit: prompts mentioning blue swap the red and blue
// channels, and a seeded jitter of at most ±2 is added to every channel.
func Transform(src *image.RGBA, prompt string, seed int64) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)
	rng := rand.New(rand.NewSource(seed))
	swap := strings.Contains(strings.ToLower(prompt), "blue")
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			if swap {
				c.R, c.B = c.B, c.R
			}
			out.SetRGBA(x, y, color.RGBA{R: jitter(c.R, rng), G: jitter(c.G, rng), B: jitter(c.B, rng), A: 0xff})
		}
	}
	return out
}

func jitter(v uint8, rng *rand.Rand) uint8 {
	n := int(v) + rng.Intn(5) - 2
	return uint8(min(max(n, 0), 255))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
