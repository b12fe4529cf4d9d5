package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bobarin/storyvoice/internal/db"
	"github.com/bobarin/storyvoice/internal/models"
)

// downloadURLExpiry is how long a signed download link stays valid, in seconds.
const downloadURLExpiry = 3600

type RenderStore interface {
	CreateRender(ctx context.Context, render *models.Render) error
	GetRender(ctx context.Context, id uuid.UUID) (*models.Render, error)
}

type RenderQueue interface {
	EnqueueRender(ctx context.Context, renderID uuid.UUID, text string) error
	Len(ctx context.Context, queueName string) (int64, error)
}

type DownloadSigner interface {
	GetSignedURL(ctx context.Context, objectPath string, expiresIn int) (string, error)
}

// WithRenders enables the async render endpoints.
func (h *Handler) WithRenders(store RenderStore, q RenderQueue, signer DownloadSigner) *Handler {
	h.renders = store
	h.queue = q
	h.storage = signer
	return h
}

func (h *Handler) rendersEnabled() bool {
	return h.renders != nil && h.queue != nil && h.storage != nil
}

// CreateRender handles POST /v1/renders
func (h *Handler) CreateRender(w http.ResponseWriter, r *http.Request) {
	text, ok := h.decodeText(w, r)
	if !ok {
		return
	}

	render := &models.Render{
		ID:     uuid.New(),
		Status: models.RenderStatusQueued,
	}

	if err := h.renders.CreateRender(r.Context(), render); err != nil {
		log.Printf("[API] Failed to create render: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create render")
		return
	}

	if err := h.queue.EnqueueRender(r.Context(), render.ID, text); err != nil {
		log.Printf("[API] Failed to enqueue render %s: %v", render.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue render")
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateRenderResponse{
		RenderID: render.ID,
		Status:   render.Status,
	})
}

// GetRender handles GET /v1/renders/{id}
func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) {
	render, ok := h.loadRender(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, models.RenderResponse{Render: *render})
}

// GetRenderDownload handles GET /v1/renders/{id}/download
func (h *Handler) GetRenderDownload(w http.ResponseWriter, r *http.Request) {
	render, ok := h.loadRender(w, r)
	if !ok {
		return
	}

	if render.Status != models.RenderStatusCompleted || render.AudioPath == nil {
		respondError(w, http.StatusNotFound, "Audio not ready")
		return
	}

	url, err := h.storage.GetSignedURL(r.Context(), *render.AudioPath, downloadURLExpiry)
	if err != nil {
		log.Printf("[API] Failed to sign download for render %s: %v", render.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to generate download URL")
		return
	}

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (h *Handler) loadRender(w http.ResponseWriter, r *http.Request) (*models.Render, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid render ID")
		return nil, false
	}

	render, err := h.renders.GetRender(r.Context(), id)
	if errors.Is(err, db.ErrRenderNotFound) {
		respondError(w, http.StatusNotFound, "Render not found")
		return nil, false
	}
	if err != nil {
		log.Printf("[API] Failed to get render %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to get render")
		return nil, false
	}

	return render, true
}
