package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/kalambet/hrassist/internal/metrics"
	"github.com/kalambet/hrassist/internal/orchestrator"
	"github.com/kalambet/hrassist/internal/session"
	"github.com/kalambet/hrassist/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Assistant answers questions within a session.
type Assistant interface {
	Ask(ctx context.Context, sessionID, text string) (orchestrator.Answer, error)
	Reset(sessionID string)
	Sessions() *session.Store
}

// JobQueue is the upload job queue.
type JobQueue interface {
	EnqueueJob(job storage.Job) error
	GetJob(id string) (storage.Job, error)
}

// DocumentCatalog lists ingested documents.
type DocumentCatalog interface {
	ListDocuments() ([]storage.Document, error)
}

// DocumentRemover drops a document and its chunks from the index.
type DocumentRemover interface {
	RemoveDocument(ctx context.Context, id string) error
}

type Deps struct {
	Assistant Assistant
	Jobs      JobQueue
	Documents DocumentCatalog
	Remover   DocumentRemover
}

var validate = validator.New()

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/ask", handleAsk(deps))
	r.Get("/sessions/{id}", handleGetSession(deps))
	r.Post("/sessions/{id}/reset", handleResetSession(deps))

	r.Post("/ingest", handleIngest(deps))
	r.Get("/jobs/{id}", handleGetJob(deps))
	r.Get("/documents", handleListDocuments(deps))
	r.Delete("/documents/{id}", handleDeleteDocument(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// decodeBody reads a JSON body into dst and runs struct validation.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s failed %q", fe.Field(), fe.Tag())
			return false
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// parseIntParam reads a non-negative query parameter. maxVal <= 0 means no cap.
func parseIntParam(r *http.Request, name string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
