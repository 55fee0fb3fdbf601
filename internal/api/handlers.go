package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"

	"invoice-workflow-orchestrator/internal/config"
	"invoice-workflow-orchestrator/internal/domain"
	"invoice-workflow-orchestrator/internal/storage"
)

type Handler struct {
	cfg   config.Config
	store *storage.PostgresStore
	blob  uploadBlobStore
}

type uploadBlobStore interface {
	PutDocument(ctx context.Context, key string, content []byte) (domain.Document, error)
}

type statusResponse struct {
	DocumentID     string                `json:"document_id"`
	JobID          string                `json:"job_id,omitempty"`
	Phase          domain.Phase          `json:"phase"`
	DecisionStatus domain.DecisionStatus `json:"decision_status,omitempty"`
	FailureReason  string                `json:"failure_reason,omitempty"`
}

type resultResponse struct {
	DocumentID     string                `json:"document_id"`
	JobID          string                `json:"job_id"`
	Phase          domain.Phase          `json:"phase"`
	Document       domain.Document       `json:"document"`
	Artifact       *domain.ArtifactRef   `json:"artifact,omitempty"`
	DecisionStatus domain.DecisionStatus `json:"decision_status,omitempty"`
	FailureReason  string                `json:"failure_reason,omitempty"`
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Reviewer string `json:"reviewer,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func NewHandler(cfg config.Config, store *storage.PostgresStore, blob uploadBlobStore) *Handler {
	return &Handler{cfg: cfg, store: store, blob: blob}
}

// UploadInvoice stores the scanned document in the working bucket and
// returns immediately. Workflow start is decoupled: the event handler
// listens for the object-created notification and submits the analysis job.
func (h *Handler) UploadInvoice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := r.ParseMultipartForm(h.cfg.AllowedUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid multipart payload"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file form field is required"})
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, h.cfg.AllowedUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read file"})
		return
	}
	if int64(len(body)) > h.cfg.AllowedUploadBytes {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file exceeds size limit"})
		return
	}
	if !isSupportedScanUpload(body) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "only PDF documents are supported"})
		return
	}

	documentID := uuid.NewString()
	doc, err := h.blob.PutDocument(ctx, path.Join(documentID, header.Filename), body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to upload file"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"document_id": documentID,
		"document":    doc,
		"status":      "accepted",
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request, documentID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	inst, err := h.store.GetInstanceByDocumentID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "document not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch status"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		DocumentID:     documentID,
		JobID:          inst.JobID,
		Phase:          inst.Phase,
		DecisionStatus: inst.DecisionStatus,
		FailureReason:  inst.FailureReason,
	})
}

func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request, documentID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	inst, err := h.store.GetInstanceByDocumentID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "document not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch result"})
		return
	}

	resp := resultResponse{
		DocumentID:     documentID,
		JobID:          inst.JobID,
		Phase:          inst.Phase,
		Document:       inst.Document,
		DecisionStatus: inst.DecisionStatus,
		FailureReason:  inst.FailureReason,
	}
	if !inst.Artifact.IsZero() {
		artifact := inst.Artifact
		resp.Artifact = &artifact
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request, documentID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	decision := domain.ReviewDecisionType(req.Decision)
	switch decision {
	case domain.ReviewDecisionApprove, domain.ReviewDecisionReject:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid decision"})
		return
	}

	inst, err := h.store.GetInstanceByDocumentID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "document not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch instance"})
		return
	}
	if inst.Phase != domain.PhaseUnderReview {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "document is not under review"})
		return
	}

	resolved := "APPROVED"
	if decision == domain.ReviewDecisionReject {
		resolved = "REJECTED"
	}
	if err := h.store.ResolveReview(ctx, inst.Document.Key, resolved); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to resolve review"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"document_id": documentID, "review_status": resolved})
}

func (h *Handler) PendingReviews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.store.ListPendingReviews(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch pending reviews"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
