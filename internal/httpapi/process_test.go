package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"qwenedit/internal/imaging"
	"qwenedit/internal/manager"
	"qwenedit/pkg/types"
)

func TestProcess_NotReadyIs503ForEveryBody(t *testing.T) {
	svc := &mockService{ready: false}
	h := NewMux(svc)
	for _, body := range []any{processBody(t, "make it blue"), "{not json", map[string]any{"prompt": ""}} {
		rr := postJSON(t, h, body)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("body %v: expected 503, got %d", body, rr.Code)
		}
		e := decodeError(t, rr)
		if e.Detail != "Model not loaded. Service unavailable." || e.Code != 503 {
			t.Fatalf("unexpected error body: %+v", e)
		}
	}
	if svc.callCount() != 0 {
		t.Fatalf("service invoked while not ready")
	}
}

func TestProcess_Success(t *testing.T) {
	svc := &mockService{ready: true}
	rr := postJSON(t, NewMux(svc), processBody(t, "Make this image blue instead of red"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp types.ProcessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.ModelUsed != "Qwen/Qwen-Image-Edit" || resp.Message != "Image processed successfully" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	img, err := imaging.DecodeBase64Image(resp.ProcessedImageBase64)
	if err != nil {
		t.Fatalf("result does not decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
		t.Fatalf("dimensions changed: %v", b)
	}
	in := svc.lastCall()
	if in.Params != types.DefaultParams("Make this image blue instead of red") {
		t.Fatalf("defaults not applied: %+v", in.Params)
	}
	if in.RequestID == "" {
		t.Fatalf("request id not forwarded")
	}
}

func TestProcess_ExplicitParamsAndDataURL(t *testing.T) {
	svc := &mockService{ready: true}
	body := map[string]any{
		"image_base64":        "data:image/png;base64," + base64.StdEncoding.EncodeToString(redPNG(t, 4, 4)),
		"prompt":              "p",
		"num_inference_steps": 20,
		"seed":                7,
		"true_cfg_scale":      2.5,
		"negative_prompt":     "blurry",
		"model":               "something-else",
	}
	if rr := postJSON(t, NewMux(svc), body); rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	p := svc.lastCall().Params
	if p.NumInferenceSteps != 20 || p.Seed != 7 || p.TrueCFGScale != 2.5 || p.NegativePrompt != "blurry" {
		t.Fatalf("unexpected params: %+v", p)
	}
}

func TestProcess_ClientErrors(t *testing.T) {
	png := base64.StdEncoding.EncodeToString(redPNG(t, 4, 4))
	cases := []struct {
		name   string
		body   any
		status int
		detail string
	}{
		{"invalid json", "{", http.StatusBadRequest, "invalid JSON body"},
		{"blank prompt", map[string]any{"image_base64": png, "prompt": "  "}, http.StatusBadRequest, "prompt"},
		{"zero steps", map[string]any{"image_base64": png, "prompt": "p", "num_inference_steps": 0}, http.StatusBadRequest, "num_inference_steps"},
		{"negative cfg", map[string]any{"image_base64": png, "prompt": "p", "true_cfg_scale": -1}, http.StatusBadRequest, "true_cfg_scale"},
		{"missing image", map[string]any{"prompt": "p"}, http.StatusBadRequest, "Invalid image data"},
		{"bad base64", map[string]any{"image_base64": "!!!not base64!!!", "prompt": "p"}, http.StatusBadRequest, "Invalid image data"},
		{"not an image", map[string]any{"image_base64": base64.StdEncoding.EncodeToString([]byte("hello world")), "prompt": "p"}, http.StatusBadRequest, "Invalid image data"},
		{"oversized header", map[string]any{"image_base64": base64.StdEncoding.EncodeToString(pngHeader(t, 12000, 12000)), "prompt": "p"}, http.StatusBadRequest, "too large"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc := &mockService{ready: true}
			rr := postJSON(t, NewMux(svc), c.body)
			if rr.Code != c.status {
				t.Fatalf("expected %d, got %d (%s)", c.status, rr.Code, rr.Body.String())
			}
			if e := decodeError(t, rr); !strings.Contains(e.Detail, c.detail) || e.Error != e.Detail {
				t.Fatalf("detail %q does not contain %q", e.Detail, c.detail)
			}
			if svc.callCount() != 0 {
				t.Fatalf("service invoked for a bad request")
			}
		})
	}
}

func TestProcess_ContentTypeRequired(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	NewMux(&mockService{ready: true}).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}
}

func TestProcess_BodyTooLarge(t *testing.T) {
	SetMaxBodyBytes(64)
	t.Cleanup(func() { SetMaxBodyBytes(0) })
	rr := postJSON(t, NewMux(&mockService{ready: true}), processBody(t, "p"))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestProcess_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"unavailable", manager.ErrUnavailable("state=loading"), http.StatusServiceUnavailable, "Model not loaded. Service unavailable."},
		{"worker gone", manager.ErrDependencyUnavailable("pipeline worker unreachable: connection refused"), http.StatusServiceUnavailable, "Processing failed: pipeline worker unreachable: connection refused"},
		{"bad input", manager.ErrBadInput(errors.New("prompt is required")), http.StatusBadRequest, "prompt is required"},
		{"generic", fmt.Errorf("cuda out of memory"), http.StatusInternalServerError, "Processing failed: cuda out of memory"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc := &mockService{ready: true, processFn: func(context.Context, manager.ProcessInput) (manager.ProcessOutput, error) {
				return manager.ProcessOutput{}, c.err
			}}
			rr := postJSON(t, NewMux(svc), processBody(t, "p"))
			if rr.Code != c.status {
				t.Fatalf("expected %d, got %d", c.status, rr.Code)
			}
			if e := decodeError(t, rr); e.Detail != c.detail {
				t.Fatalf("detail=%q want %q", e.Detail, c.detail)
			}
		})
	}
}

func TestProcess_TooBusyMaps429(t *testing.T) {
	busy := &mockService{ready: true, processFn: func(ctx context.Context, in manager.ProcessInput) (manager.ProcessOutput, error) {
		return manager.ProcessOutput{}, manager.ErrTooBusy("Qwen/Qwen-Image-Edit")
	}}
	rr := postJSON(t, NewMux(busy), processBody(t, "p"))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != 429 {
		t.Fatalf("unexpected error body: %+v", e)
	}
}

type inferenceFailure struct{ error }

func (inferenceFailure) StatusCode() int { return http.StatusBadGateway }

func TestProcess_HTTPErrorStatus(t *testing.T) {
	svc := &mockService{ready: true, processFn: func(context.Context, manager.ProcessInput) (manager.ProcessOutput, error) {
		return manager.ProcessOutput{}, inferenceFailure{errors.New("upstream")}
	}}
	if rr := postJSON(t, NewMux(svc), processBody(t, "p")); rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}
