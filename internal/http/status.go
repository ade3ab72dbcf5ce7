package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
)

// entityCounter is the slice of the store the status endpoint reads.
type entityCounter interface {
	CountByType(ctx context.Context) (map[string]int64, error)
}

type statusHandler struct {
	encoder encoder
	counter entityCounter

	version     string
	commit      string
	date        string
	entityTypes []string
	startedAt   time.Time
}

func newStatusHandler(encoder encoder, counter entityCounter, version, commit, date string, entityTypes []string) *statusHandler {
	return &statusHandler{
		encoder:     encoder,
		counter:     counter,
		version:     version,
		commit:      commit,
		date:        date,
		entityTypes: entityTypes,
		startedAt:   time.Now(),
	}
}

func (h statusHandler) Routes(r chi.Router) {
	r.Get("/", h.handleStatus)
}

type statusResponse struct {
	Version     string           `json:"version"`
	Commit      string           `json:"commit,omitempty"`
	Date        string           `json:"date,omitempty"`
	Uptime      string           `json:"uptime"`
	EntityTypes []string         `json:"entity_types"`
	Entities    map[string]int64 `json:"entities"`
}

func (h statusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.counter.CountByType(r.Context())
	if err != nil {
		h.encoder.Error(w, err)
		return
	}

	// entity types with no rows yet still show up with a zero count
	for _, name := range h.entityTypes {
		if _, ok := counts[name]; !ok {
			counts[name] = 0
		}
	}

	h.encoder.StatusResponse(r.Context(), w, statusResponse{
		Version:     h.version,
		Commit:      h.commit,
		Date:        h.date,
		Uptime:      humanize.Time(h.startedAt),
		EntityTypes: h.entityTypes,
		Entities:    counts,
	}, http.StatusOK)
}
