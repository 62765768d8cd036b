package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/hrassist/internal/ingest"
	"github.com/kalambet/hrassist/internal/loader"
	"github.com/kalambet/hrassist/internal/storage"
)

const maxIngestBodySize = 10 << 20 // 10MB

// IngestRequest uploads one document. PDF content is base64 encoded; text
// and markdown are sent as-is unless Base64 is set.
type IngestRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Format  string `json:"format" validate:"omitempty,oneof=pdf text txt plain markdown md"`
	Content string `json:"content" validate:"required"`
	Base64  bool   `json:"base64"`
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IngestRequest
		if !decodeBody(w, r, maxIngestBodySize, &req) {
			return
		}
		name := filepath.Base(req.Name)

		format, data, err := resolveUpload(name, req)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		job, err := ingest.NewJob(name, format, data)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build job: %v", err)
			return
		}
		if err := deps.Jobs.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":          job.ID,
			"document_id": ingest.DocumentID(name),
			"status":      "queued",
		})
	}
}

// resolveUpload works out the document format and raw bytes of an upload.
func resolveUpload(name string, req IngestRequest) (loader.Format, []byte, error) {
	var (
		format loader.Format
		err    error
	)
	if req.Format != "" {
		format, err = loader.ParseFormat(req.Format)
	} else {
		format, err = loader.FormatFromPath(name)
	}
	known := err == nil

	data := []byte(req.Content)
	if req.Base64 || format == loader.PDF {
		data, err = base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return "", nil, errors.New("invalid base64 content")
		}
	}
	if !known {
		format, err = loader.Detect(name, data)
		if err != nil {
			return "", nil, err
		}
	}
	return format, data, nil
}

type jobResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := deps.Jobs.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, jobResponse{
			ID:        job.ID,
			Status:    job.Status,
			Attempts:  job.Attempts,
			LastError: job.LastError,
			UpdatedAt: job.UpdatedAt,
		})
	}
}

type documentResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Format     string    `json:"format"`
	ChunkCount int       `json:"chunk_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Documents.ListDocuments()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		limit := parseIntParam(r, "limit", len(docs), 0)
		if limit < len(docs) {
			docs = docs[:limit]
		}
		out := make([]documentResponse, 0, len(docs))
		for _, d := range docs {
			out = append(out, documentResponse{
				ID:         d.ID,
				Name:       d.Name,
				Format:     d.Format,
				ChunkCount: d.ChunkCount,
				IngestedAt: d.IngestedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Remover.RemoveDocument(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
