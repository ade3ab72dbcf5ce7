package http

import (
	"net/http"

	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/internal/sync"
	"github.com/driftwatch/deltasync/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type syncService = sync.Service

type syncHandler struct {
	encoder     encoder
	syncService syncService
}

func newSyncHandler(encoder encoder, syncService syncService) *syncHandler {
	return &syncHandler{
		encoder:     encoder,
		syncService: syncService,
	}
}

func (h syncHandler) Routes(r chi.Router) {
	r.Post("/pull", h.handlePull)
	r.Post("/push", h.handlePush)
}

func (h syncHandler) handlePull(w http.ResponseWriter, r *http.Request) {
	var req domain.SyncPullRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{
			Message: errors.Wrap(err, "malformed pull request").Error(),
			Status:  http.StatusBadRequest,
		}, http.StatusBadRequest)
		return
	}

	resp, err := h.syncService.PullWithRetry(r.Context(), &req)
	if err != nil {
		h.writeSyncError(w, r, err)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, resp, http.StatusOK)
}

func (h syncHandler) handlePush(w http.ResponseWriter, r *http.Request) {
	var req domain.SyncPushRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{
			Message: errors.Wrap(err, "malformed push request").Error(),
			Status:  http.StatusBadRequest,
		}, http.StatusBadRequest)
		return
	}

	resp, err := h.syncService.PushWithRetry(r.Context(), &req)
	if err != nil {
		h.writeSyncError(w, r, err)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, resp, http.StatusOK)
}

// writeSyncError maps engine errors onto HTTP statuses: transient store
// failures are a server problem, anything else came from the request itself.
func (h syncHandler) writeSyncError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsTransient(err) {
		h.encoder.Error(w, err)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, errorResponse{
		Message: err.Error(),
		Status:  http.StatusBadRequest,
	}, http.StatusBadRequest)
}
