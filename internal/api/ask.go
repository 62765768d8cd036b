package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/hrassist/internal/generator"
	"github.com/kalambet/hrassist/internal/intent"
	"github.com/kalambet/hrassist/internal/orchestrator"
	"github.com/kalambet/hrassist/internal/retrieval"
	"github.com/kalambet/hrassist/internal/session"
)

type AskRequest struct {
	Question  string `json:"question" validate:"required"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
}

type AskResponse struct {
	Answer    string             `json:"answer"`
	SessionID string             `json:"session_id"`
	Intent    intent.Intent      `json:"intent"`
	Sources   []retrieval.Source `json:"sources"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AskRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}

		sessionID := strings.TrimSpace(req.SessionID)
		if sessionID == "" {
			sessionID = session.NewID()
		}

		ans, err := deps.Assistant.Ask(r.Context(), sessionID, req.Question)
		switch {
		case errors.Is(err, orchestrator.ErrEmptyQuestion):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		case errors.Is(err, generator.ErrModelUnavailable):
			httpError(w, http.StatusServiceUnavailable, "api_error", "assistant unavailable")
			return
		case err != nil && r.Context().Err() != nil:
			// Client went away.
			return
		case err != nil:
			slog.Error("answering question", "session", sessionID, "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "failed to answer question: %v", err)
			return
		}

		sources := ans.Sources
		if sources == nil {
			sources = []retrieval.Source{}
		}
		writeJSON(w, http.StatusOK, AskResponse{
			Answer:    ans.Text,
			SessionID: sessionID,
			Intent:    ans.Intent,
			Sources:   sources,
		})
	}
}

type turnsResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []session.Turn `json:"turns"`
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, err := deps.Assistant.Sessions().Lookup(id)
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load session: %v", err)
			return
		}

		turns := sess.Window(parseIntParam(r, "last", 0, 0))
		if turns == nil {
			turns = []session.Turn{}
		}
		writeJSON(w, http.StatusOK, turnsResponse{SessionID: id, Turns: turns})
	}
}

func handleResetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		deps.Assistant.Reset(id)
		writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "reset"})
	}
}
