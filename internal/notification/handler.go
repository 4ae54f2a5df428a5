package notification

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shaharia-lab/verimail/internal/eventbus"
	"github.com/shaharia-lab/verimail/internal/storage"
)

const logWriteTimeout = 5 * time.Second

// DeliveryLogHandler receives dispatch events from the bus and appends them
// to the local delivery log.
type DeliveryLogHandler struct {
	store  storage.DeliveryLogStore
	logger *slog.Logger
}

// NewDeliveryLogHandler creates a DeliveryLogHandler.
func NewDeliveryLogHandler(store storage.DeliveryLogStore, logger *slog.Logger) *DeliveryLogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryLogHandler{store: store, logger: logger}
}

// Handle converts a dispatch event into a delivery log entry. Events of any
// other type are ignored. Failures to write the log are logged and dropped.
func (h *DeliveryLogHandler) Handle(e eventbus.Event) {
	if e.Type != eventbus.DispatchCompleted && e.Type != eventbus.DispatchFailed {
		return
	}

	entry := entryFromPayload(e.Payload)
	entry.CreatedAt = e.Timestamp

	ctx, cancel := context.WithTimeout(context.Background(), logWriteTimeout)
	defer cancel()

	if err := h.store.LogDelivery(ctx, entry); err != nil {
		h.logger.Error("failed to write delivery log",
			"message_id", entry.MessageID, "event", e.Type, "error", err)
	}
}

func entryFromPayload(p map[string]string) storage.DeliveryLogEntry {
	entry := storage.DeliveryLogEntry{
		MessageID: p[eventbus.KeyMessageID],
		Recipient: p[eventbus.KeyRecipient],
		Transport: p[eventbus.KeyTransport],
		Stage:     p[eventbus.KeyStage],
		Status:    p[eventbus.KeyStatus],
		ErrorKind: p[eventbus.KeyErrorKind],
		ErrorMsg:  p[eventbus.KeyError],
	}
	// Malformed numbers are left at zero.
	entry.RowsAffected, _ = strconv.ParseInt(p[eventbus.KeyRowsAffected], 10, 64)
	entry.DurationMS, _ = strconv.ParseInt(p[eventbus.KeyDurationMS], 10, 64)
	return entry
}
