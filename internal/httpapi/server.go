package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qwenedit/internal/imaging"
	"qwenedit/internal/manager"
	"qwenedit/internal/registry"
	"qwenedit/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Health() types.HealthResponse
	Ready() bool
	ModelID() string
	Process(ctx context.Context, in manager.ProcessInput) (manager.ProcessOutput, error)
}

// Service descriptor values served on GET /.
const (
	ServiceName    = "Qwen Image Edit"
	ServiceVersion = "1.0.0"
)

// Capabilities advertised on GET /models.
var Capabilities = []string{"image_editing", "background_removal", "object_manipulation"}

// NewMux builds the router: the public endpoints plus liveness, readiness
// and metrics.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(corsAllowedMethods, []string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Content-Type", "X-Request-Id", "X-Log-Level"}),
			MaxAge:         300,
		}))
	}

	r.Get("/", rootHandler)
	r.Get("/health", healthHandler(svc))
	r.Get("/models", modelsHandler)
	r.Post("/process", processJSONHandler(svc))
	r.Post("/process-multipart", processMultipartHandler(svc))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// rootHandler godoc
// @Summary      Service descriptor
// @Tags         service
// @Produce      json
// @Success      200  {object}  types.ServiceDescriptor
// @Router       / [get]
func rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ServiceDescriptor{
		Service:   ServiceName,
		Version:   ServiceVersion,
		Status:    "running",
		Endpoints: []string{"/health", "/models", "/process", "/process-multipart"},
	})
}

// healthHandler godoc
// @Summary      Pipeline health
// @Description  Always 200; status is "unhealthy" until the pipeline is assembled.
// @Tags         service
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Router       /health [get]
func healthHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health())
	}
}

// modelsHandler godoc
// @Summary      Models and capabilities
// @Tags         service
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Router       /models [get]
func modelsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{
		AvailableModels:  registry.Aliases(),
		Capabilities:     Capabilities,
		SupportedFormats: imaging.SupportedFormats,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
