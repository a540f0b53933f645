package types

// ProcessRequest is the JSON payload accepted by POST /process.
type ProcessRequest struct {
	// Base64-encoded input image. A data URL (data:image/png;base64,...) is also accepted.
	ImageBase64 string `json:"image_base64"`
	// Editing instruction.
	// example: Make this image blue instead of red
	Prompt string `json:"prompt" example:"Make this image blue instead of red"`
	// Optional model alias. Accepted for compatibility; the server always uses its loaded pipeline.
	// example: qwen-image-edit
	Model string `json:"model,omitempty" example:"qwen-image-edit"`
	// Negative prompt. Defaults to a single space.
	// example:
	NegativePrompt *string `json:"negative_prompt,omitempty"`
	// Number of denoising steps. Defaults to 50.
	// example: 20
	NumInferenceSteps *int `json:"num_inference_steps,omitempty" example:"20"`
	// True classifier-free guidance scale. Defaults to 4.0.
	// example: 4.0
	TrueCFGScale *float64 `json:"true_cfg_scale,omitempty" example:"4.0"`
	// Seed for the pseudo-random generator. Defaults to 42.
	// example: 42
	Seed *int64 `json:"seed,omitempty" example:"42"`
	// Legacy parameter bag. Recognized keys are negative_prompt,
	// num_inference_steps, true_cfg_scale and seed; explicit fields win.
	Options map[string]any `json:"options,omitempty" swaggertype:"object"`
}

// ProcessResponse is returned by POST /process and POST /process-multipart.
type ProcessResponse struct {
	Success bool `json:"success"`
	// PNG result, base64-encoded.
	ProcessedImageBase64 string `json:"processed_image_base64,omitempty"`
	// Wall-clock processing time in seconds.
	// example: 41.7
	ProcessingTime float64 `json:"processing_time,omitempty" example:"41.7"`
	// example: Qwen/Qwen-Image-Edit
	ModelUsed string `json:"model_used,omitempty" example:"Qwen/Qwen-Image-Edit"`
	// example: Image processed successfully
	Message string `json:"message,omitempty" example:"Image processed successfully"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// healthy or unhealthy
	// example: healthy
	Status      string         `json:"status" example:"healthy"`
	ModelLoaded bool           `json:"model_loaded"`
	ModelInfo   map[string]any `json:"model_info"`
}

// ModelsResponse is returned by GET /models.
type ModelsResponse struct {
	AvailableModels  []string `json:"available_models"`
	Capabilities     []string `json:"capabilities"`
	SupportedFormats []string `json:"supported_formats"`
}

// ServiceDescriptor is returned by GET /.
type ServiceDescriptor struct {
	// example: Qwen Image Edit
	Service string `json:"service" example:"Qwen Image Edit"`
	// example: 1.0.0
	Version   string   `json:"version" example:"1.0.0"`
	Status    string   `json:"status" example:"running"`
	Endpoints []string `json:"endpoints"`
}

// ErrorResponse is a consistent JSON error payload. Detail mirrors Error so
// clients written against FastAPI-style services keep working.
type ErrorResponse struct {
	// Error message.
	// example: Model not loaded. Service unavailable.
	Error string `json:"error" example:"Model not loaded. Service unavailable."`
	// example: Model not loaded. Service unavailable.
	Detail string `json:"detail" example:"Model not loaded. Service unavailable."`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}
