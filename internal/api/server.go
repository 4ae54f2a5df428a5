package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shaharia-lab/verimail/internal/dispatch"
	"github.com/shaharia-lab/verimail/internal/event"
	"github.com/shaharia-lab/verimail/internal/storage"
)

// defaultMaxBodyBytes caps one pushed delivery.
const defaultMaxBodyBytes = 1 << 20

// BatchDispatcher processes one batch of messages.
type BatchDispatcher interface {
	Dispatch(ctx context.Context, msgs []event.Message) dispatch.BatchOutcome
}

// Server holds all dependencies for the REST API handlers.
type Server struct {
	dispatcher   BatchDispatcher
	deliveries   storage.DeliveryLogStore
	logger       *slog.Logger
	maxBodyBytes int64
}

// New creates a new API Server. deliveries may be nil, in which case the
// delivery log endpoint reports 503.
func New(d BatchDispatcher, deliveries storage.DeliveryLogStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dispatcher:   d,
		deliveries:   deliveries,
		logger:       logger.With("component", "api"),
		maxBodyBytes: defaultMaxBodyBytes,
	}
}

// Mount registers all API routes under the given router.
func (s *Server) Mount(r chi.Router) {
	r.Post("/events", s.handlePushEvents)
	r.Get("/deliveries", s.handleListDeliveries)
	r.Get("/version", s.handleVersion)
}

// ─── Shared helpers ───────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
