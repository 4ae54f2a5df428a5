package eventbus

import "time"

// Event types published by the dispatcher.
const (
	// DispatchCompleted fires once a verification mail has been handed to the
	// transport, whether or not the user row was updated afterwards.
	DispatchCompleted = "verification.dispatch.completed"
	// DispatchFailed fires when a message stops before the mail was sent.
	DispatchFailed = "verification.dispatch.failed"
	// DeliveryLogPruned fires after the retention job removed delivery log rows.
	DeliveryLogPruned = "scheduler.delivery_log.pruned"
)

// Payload keys shared by the dispatch events.
const (
	KeyMessageID    = "message_id"
	KeyRecipient    = "recipient"
	KeyTransport    = "transport"
	KeyStage        = "stage"
	KeyStatus       = "status"
	KeyErrorKind    = "error_kind"
	KeyError        = "error"
	KeyRowsAffected = "rows_affected"
	KeyDurationMS   = "duration_ms"
)

// Payload keys of DeliveryLogPruned.
const (
	KeyRemoved = "removed"
	KeyCutoff  = "cutoff"
)

// Event is a single bus message.
type Event struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// Listener handles an event.
type Listener func(Event)
