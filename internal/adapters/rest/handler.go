package rest

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/ewilliams-labs/widdle/internal/core/services"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Pinger is anything /ready should check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the use cases the HTTP layer drives.
type Services struct {
	Analysis *services.AnalysisService
	Tracks   *services.TrackService
	Mashups  *services.MashupService
	Chat     *services.ChatService
}

// Handler manages the HTTP interface for our application.
type Handler struct {
	svc    Services
	ready  map[string]Pinger
	log    *zap.Logger
	router *mux.Router
}

// NewHandler initializes the HTTP adapter and sets up routes. ready maps a
// dependency name to its health check.
func NewHandler(svc Services, ready map[string]Pinger, log *zap.Logger) *Handler {
	h := &Handler{
		svc:    svc,
		ready:  ready,
		log:    log,
		router: mux.NewRouter(),
	}

	// Register Routes
	h.routes()

	return h
}

// ServeHTTP satisfies the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// routes defines the mapping between URLs and methods.
func (h *Handler) routes() {
	h.router.Use(h.logRequests)

	h.router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	h.router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)

	h.router.HandleFunc("/analyze-audio", h.AnalyzeAudio).Methods(http.MethodPost)

	h.router.HandleFunc("/tracks", h.UploadTrack).Methods(http.MethodPost)
	h.router.HandleFunc("/tracks", h.ListTracks).Methods(http.MethodGet)
	h.router.HandleFunc("/tracks/{id}", h.GetTrack).Methods(http.MethodGet)
	h.router.HandleFunc("/tracks/{id}/analysis", h.GetAnalysis).Methods(http.MethodGet)

	h.router.HandleFunc("/mashups", h.CreateMashup).Methods(http.MethodPost)
	h.router.HandleFunc("/query", h.Query).Methods(http.MethodPost)

	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// HealthCheck is a simple endpoint to verify the API is running.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Widdle is live"})
}

// ReadyCheck pings every dependency and reports 503 if any fails.
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.ready))
	status := http.StatusOK
	for name, p := range h.ready {
		if err := p.Ping(ctx); err != nil {
			h.log.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrTooFewTracks),
		errors.Is(err, domain.ErrDuplicateTrack):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTrackNotFound),
		errors.Is(err, domain.ErrFileNotFound),
		errors.Is(err, domain.ErrAnalysisNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInferenceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and writes the mapped status. Server-side
// failures get publicMsg instead of the error text.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, publicMsg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(publicMsg, zap.Error(err))
		writeError(w, status, publicMsg)
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func isJSONContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	return err == nil && mediaType == "application/json"
}

// decodeJSON enforces the JSON content type and decodes the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if !isJSONContentType(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
