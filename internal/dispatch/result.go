package dispatch

import (
	"errors"
	"time"
)

// Stage is a point in the per-message lifecycle. A successful message moves
// Received, Decoded, Composed, Delivered, Recorded. A failed message carries
// the stage it was trying to reach.
type Stage string

// Lifecycle stages.
const (
	StageReceived  Stage = "received"
	StageDecoded   Stage = "decoded"
	StageComposed  Stage = "composed"
	StageDelivered Stage = "delivered"
	StageRecorded  Stage = "recorded"
)

// Status is the terminal outcome of one message.
type Status string

// Terminal outcomes. Every status except StatusFailed means the mail went out.
const (
	StatusSent           Status = "sent"
	StatusSentNoRow      Status = "sent_no_row"
	StatusSentUnrecorded Status = "sent_unrecorded"
	StatusFailed         Status = "failed"
)

// Result is the outcome of one message.
type Result struct {
	MessageID    string        `json:"message_id"`
	Recipient    string        `json:"recipient,omitempty"`
	Stage        Stage         `json:"stage"`
	Status       Status        `json:"status"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	Error        string        `json:"error,omitempty"`
	RowsAffected int64         `json:"rows_affected"`
	DurationMS   int64         `json:"duration_ms"`
	Duration     time.Duration `json:"-"`
	Err          error         `json:"-"`
}

// Delivered reports whether the verification mail was handed to the transport.
func (r Result) Delivered() bool { return r.Status != StatusFailed }

func (r *Result) fail(stage Stage, err error) {
	r.Stage = stage
	r.Status = StatusFailed
	r.Err = err
	r.ErrorKind = errorKind(err)
	r.Error = err.Error()
}

// BatchOutcome aggregates the results of one batch. A message counts as
// succeeded once its mail was delivered, whatever happened to the record.
type BatchOutcome struct {
	Results   []Result `json:"results"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
}

func (b *BatchOutcome) add(r Result) {
	b.Results = append(b.Results, r)
	if r.Delivered() {
		b.Succeeded++
	} else {
		b.Failed++
	}
}

// Err joins the errors of all failed messages, or returns nil when every
// message was delivered.
func (b BatchOutcome) Err() error {
	var errs []error
	for _, r := range b.Results {
		if !r.Delivered() {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
