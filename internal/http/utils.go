package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// handleGenerateClientID hands out a fresh client identifier. Clients without
// stable device identity call this once and persist the result.
func (s *Server) handleGenerateClientID(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{"client_id": uuid.New().String()}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.Error().Err(err).Msg("failed to encode client id response")
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
