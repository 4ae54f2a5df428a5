package storage

import (
	"context"
	"time"
)

// DeliveryLogEntry records the outcome of dispatching one channel message.
type DeliveryLogEntry struct {
	ID           int64     `json:"id"`
	MessageID    string    `json:"message_id"`
	Recipient    string    `json:"recipient"`
	Transport    string    `json:"transport"`
	Stage        string    `json:"stage"`
	Status       string    `json:"status"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMsg     string    `json:"error_msg,omitempty"`
	RowsAffected int64     `json:"rows_affected"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// DeliveryLogStore defines the interface for persisting dispatch outcomes.
type DeliveryLogStore interface {
	// LogDelivery records one dispatch outcome.
	LogDelivery(ctx context.Context, entry DeliveryLogEntry) error
	// ListDeliveries returns the most recent entries, up to limit. A non-empty
	// recipient filters to that address.
	ListDeliveries(ctx context.Context, recipient string, limit int) ([]DeliveryLogEntry, error)
	// PruneBefore deletes entries created before cutoff and returns how many were removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
