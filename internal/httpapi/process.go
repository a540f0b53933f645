package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"qwenedit/internal/imaging"
	"qwenedit/internal/manager"
	"qwenedit/pkg/types"
)

// processJSONHandler godoc
// @Summary      Edit an image (JSON)
// @Description  Decodes a base64 image, runs the editing pipeline with the prompt and returns the result as base64 PNG.
// @Tags         process
// @Accept       json
// @Produce      json
// @Param        request  body      types.ProcessRequest  true  "Image and prompt"
// @Success      200      {object}  types.ProcessResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      500      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /process [post]
func processJSONHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rl := newRequestLog(r)
		// Without a pipeline every request is unavailable, whatever its body.
		if !svc.Ready() {
			fail(w, rl, http.StatusServiceUnavailable, msgUnavailable, nil)
			return
		}
		ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if ct != "application/json" {
			fail(w, rl, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ProcessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				fail(w, rl, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", mbe.Limit), err)
				return
			}
			fail(w, rl, http.StatusBadRequest, "invalid JSON body", err)
			return
		}
		params, err := types.ParamsFromRequest(req)
		if err == nil {
			err = params.Validate()
		}
		if err != nil {
			fail(w, rl, http.StatusBadRequest, err.Error(), err)
			return
		}
		if strings.TrimSpace(req.ImageBase64) == "" {
			fail(w, rl, http.StatusBadRequest, prefixBadImage+"image_base64 is required", nil)
			return
		}
		raw, err := imaging.DecodeBase64(req.ImageBase64)
		if err != nil {
			fail(w, rl, http.StatusBadRequest, prefixBadImage+err.Error(), err)
			return
		}
		img, format, err := imaging.Decode(raw)
		if err != nil {
			fail(w, rl, http.StatusBadRequest, prefixBadImage+err.Error(), err)
			return
		}
		rl.debug("decoded input", map[string]any{"format": format, "width": img.Bounds().Dx(), "height": img.Bounds().Dy()})
		observeInput(format, "json", len(raw))
		runProcess(w, r, svc, rl, img, params)
	}
}

// processMultipartHandler godoc
// @Summary      Edit an image (multipart upload)
// @Description  Same as /process with the image uploaded as the "file" form field.
// @Tags         process
// @Accept       multipart/form-data
// @Produce      json
// @Param        file                 formData  file    true   "Input image"
// @Param        prompt               formData  string  true   "Editing instruction"
// @Param        model                formData  string  false  "Model alias (ignored)"
// @Param        negative_prompt      formData  string  false  "Negative prompt"
// @Param        num_inference_steps  formData  int     false  "Denoising steps"
// @Param        true_cfg_scale       formData  number  false  "Guidance scale"
// @Param        seed                 formData  int     false  "Generator seed"
// @Success      200  {object}  types.ProcessResponse
// @Failure      400  {object}  types.ErrorResponse
// @Failure      429  {object}  types.ErrorResponse
// @Failure      500  {object}  types.ErrorResponse
// @Failure      503  {object}  types.ErrorResponse
// @Router       /process-multipart [post]
func processMultipartHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rl := newRequestLog(r)
		if !svc.Ready() {
			fail(w, rl, http.StatusServiceUnavailable, msgUnavailable, nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				fail(w, rl, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", mbe.Limit), err)
				return
			}
			fail(w, rl, http.StatusBadRequest, "invalid multipart form: "+err.Error(), err)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, header, err := r.FormFile("file")
		if err != nil {
			fail(w, rl, http.StatusBadRequest, "file is required", err)
			return
		}
		defer file.Close()
		// The declared type is checked before anything is decoded.
		if !imaging.IsImageContentType(header.Header.Get("Content-Type")) {
			fail(w, rl, http.StatusBadRequest, msgNotAnImage, nil)
			return
		}

		req, err := formRequest(r)
		if err != nil {
			fail(w, rl, http.StatusBadRequest, err.Error(), err)
			return
		}
		params, err := types.ParamsFromRequest(req)
		if err == nil {
			err = params.Validate()
		}
		if err != nil {
			fail(w, rl, http.StatusBadRequest, err.Error(), err)
			return
		}

		raw, err := io.ReadAll(file)
		if err != nil {
			fail(w, rl, http.StatusBadRequest, prefixBadImage+err.Error(), err)
			return
		}
		img, format, err := imaging.Decode(raw)
		if err != nil {
			fail(w, rl, http.StatusBadRequest, prefixBadImage+err.Error(), err)
			return
		}
		rl.debug("decoded upload", map[string]any{"filename": header.Filename, "format": format, "bytes": len(raw)})
		observeInput(format, "multipart", len(raw))
		runProcess(w, r, svc, rl, img, params)
	}
}

// formRequest collects the optional generation fields of a multipart form
// into a ProcessRequest.
func formRequest(r *http.Request) (types.ProcessRequest, error) {
	req := types.ProcessRequest{
		Prompt: r.FormValue("prompt"),
		Model:  r.FormValue("model"),
	}
	if v, ok := formField(r, "negative_prompt"); ok {
		req.NegativePrompt = &v
	}
	if v, ok := formField(r, "num_inference_steps"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return req, fmt.Errorf("num_inference_steps must be an integer, got %q", v)
		}
		req.NumInferenceSteps = &n
	}
	if v, ok := formField(r, "true_cfg_scale"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return req, fmt.Errorf("true_cfg_scale must be a number, got %q", v)
		}
		req.TrueCFGScale = &f
	}
	if v, ok := formField(r, "seed"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return req, fmt.Errorf("seed must be an integer, got %q", v)
		}
		req.Seed = &n
	}
	return req, nil
}

func formField(r *http.Request, key string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	vs, ok := r.MultipartForm.Value[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// runProcess hands the decoded image to the service and writes the response.
func runProcess(w http.ResponseWriter, r *http.Request, svc Service, rl *requestLog, img image.Image, params types.GenerationParams) {
	rl.begin(params.Prompt)
	// Join server base context with request context so shutdown also stops
	// requests still waiting for the inference slot.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	out, err := svc.Process(ctx, manager.ProcessInput{
		Image:     img,
		Params:    params,
		RequestID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		if r.Context().Err() != nil {
			rl.end(499, err)
			return
		}
		status, msg := statusFor(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure("queue")
		}
		fail(w, rl, status, msg, err)
		return
	}
	b64, err := imaging.EncodeBase64PNG(out.Image)
	if err != nil {
		fail(w, rl, http.StatusInternalServerError, prefixFailed+err.Error(), err)
		return
	}
	writeJSON(w, http.StatusOK, types.ProcessResponse{
		Success:              true,
		ProcessedImageBase64: b64,
		ProcessingTime:       time.Since(rl.start).Seconds(),
		ModelUsed:            out.ModelUsed,
		Message:              msgProcessedOK,
	})
	rl.end(http.StatusOK, nil)
}

func fail(w http.ResponseWriter, rl *requestLog, status int, msg string, err error) {
	if err == nil {
		err = errors.New(msg)
	}
	writeJSONError(w, status, msg)
	rl.end(status, err)
}
