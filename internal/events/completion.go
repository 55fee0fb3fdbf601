package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"invoice-workflow-orchestrator/internal/domain"
)

// CompletionHandler processes one completion event. It must be idempotent:
// the transport is at-least-once, so duplicates and reordering across jobs
// are normal. A nil return acknowledges the event; an error makes the
// transport redeliver it.
type CompletionHandler func(ctx context.Context, event domain.CompletionEvent) error

type completionPayload struct {
	JobID            string `json:"job_id"`
	Status           string `json:"status"`
	DocumentLocation struct {
		Bucket string `json:"bucket"`
		Key    string `json:"key"`
	} `json:"document_location"`
}

func decodeCompletionPayload(body []byte) (domain.CompletionEvent, error) {
	var payload completionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.CompletionEvent{}, fmt.Errorf("unable to parse completion payload: %w", err)
	}
	if payload.JobID == "" {
		return domain.CompletionEvent{}, fmt.Errorf("completion payload missing job_id")
	}
	status := domain.JobStatus(payload.Status)
	if status != domain.JobStatusSucceeded && status != domain.JobStatusFailed {
		return domain.CompletionEvent{}, fmt.Errorf("completion payload has unknown status %q", payload.Status)
	}
	return domain.CompletionEvent{
		JobID:  payload.JobID,
		Status: status,
		Document: domain.Document{
			Bucket: payload.DocumentLocation.Bucket,
			Key:    payload.DocumentLocation.Key,
		},
	}, nil
}

// NewCompletionRouter returns the webhook surface the engine's completion
// channel delivers to. Malformed payloads are rejected with 400; handler
// failures return 500 so the channel retries delivery.
func NewCompletionRouter(handler CompletionHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/completions", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read body"})
			return
		}
		event, err := decodeCompletionPayload(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := handler(req.Context(), event); err != nil {
			log.Printf("completion event handling failed job_id=%s status=%s: %v", event.JobID, event.Status, err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "completion handling failed"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"job_id": event.JobID, "status": "accepted"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
