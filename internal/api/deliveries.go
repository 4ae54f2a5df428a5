package api

import (
	"net/http"
	"strconv"

	"github.com/shaharia-lab/verimail/internal/storage"
)

const maxDeliveriesLimit = 500

// handleListDeliveries returns recent delivery log entries.
// Accepts optional ?limit=N (default 50, max 500) and ?recipient= filters.
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.deliveries == nil {
		writeError(w, http.StatusServiceUnavailable, "delivery log is not enabled")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxDeliveriesLimit)
	}

	entries, err := s.deliveries.ListDeliveries(r.Context(), r.URL.Query().Get("recipient"), limit)
	if err != nil {
		s.logger.Error("failed to list delivery log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list delivery log")
		return
	}
	if entries == nil {
		entries = []storage.DeliveryLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
