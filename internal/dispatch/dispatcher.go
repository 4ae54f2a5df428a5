// Package dispatch drives each channel message through decode, link
// composition, mail delivery and delivery-status recording.
//
// Messages in a batch are processed one at a time and independently: a
// failure in one message never prevents the rest from being attempted, and
// nothing is retried here. Redelivery, if any, is the channel's business.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaharia-lab/verimail/internal/event"
	"github.com/shaharia-lab/verimail/internal/eventbus"
	"github.com/shaharia-lab/verimail/internal/metrics"
	"github.com/shaharia-lab/verimail/internal/notification"
	"github.com/shaharia-lab/verimail/internal/storage"
	"github.com/shaharia-lab/verimail/internal/verification"
)

const tracerName = "github.com/shaharia-lab/verimail/internal/dispatch"

const (
	defaultSendTimeout   = 30 * time.Second
	defaultRecordTimeout = 10 * time.Second
)

// LinkComposer builds the verification link for a user.
type LinkComposer interface {
	Compose(id event.UserIdentity) (verification.Link, error)
}

// MailComposer renders the verification mail for a user and link.
type MailComposer interface {
	Render(id event.UserIdentity, link verification.Link) (notification.Message, error)
}

// Config wires a Dispatcher. Links, Mail, Transport and Recorder are
// required; everything else is optional.
type Config struct {
	Links     LinkComposer
	Mail      MailComposer
	Transport notification.Transport
	Recorder  storage.Recorder

	Bus     eventbus.EventBus
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// SendTimeout bounds one transport call. Zero selects 30s.
	SendTimeout time.Duration
	// RecordTimeout bounds one delivery-status update. Zero selects 10s.
	RecordTimeout time.Duration
}

// Dispatcher processes batches of channel messages.
type Dispatcher struct {
	links         LinkComposer
	mail          MailComposer
	transport     notification.Transport
	recorder      storage.Recorder
	bus           eventbus.EventBus
	metrics       *metrics.Metrics
	logger        *slog.Logger
	tracer        trace.Tracer
	sendTimeout   time.Duration
	recordTimeout time.Duration
}

// New validates cfg and returns a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	switch {
	case cfg.Links == nil:
		return nil, errors.New("dispatch: link composer is required")
	case cfg.Mail == nil:
		return nil, errors.New("dispatch: mail composer is required")
	case cfg.Transport == nil:
		return nil, errors.New("dispatch: transport is required")
	case cfg.Recorder == nil:
		return nil, errors.New("dispatch: recorder is required")
	}

	d := &Dispatcher{
		links:         cfg.Links,
		mail:          cfg.Mail,
		transport:     cfg.Transport,
		recorder:      cfg.Recorder,
		bus:           cfg.Bus,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		tracer:        otel.Tracer(tracerName),
		sendTimeout:   cfg.SendTimeout,
		recordTimeout: cfg.RecordTimeout,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "dispatcher", "transport", cfg.Transport.Name())
	if d.sendTimeout <= 0 {
		d.sendTimeout = defaultSendTimeout
	}
	if d.recordTimeout <= 0 {
		d.recordTimeout = defaultRecordTimeout
	}
	return d, nil
}

// Dispatch processes every message of the batch in order and reports the
// outcome of each. It never returns early: once ctx is done the remaining
// messages are reported as failed at StageReceived.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []event.Message) BatchOutcome {
	d.metrics.ObserveBatch()

	out := BatchOutcome{Results: make([]Result, 0, len(msgs))}
	for _, m := range msgs {
		r := d.process(ctx, m)
		out.add(r)
	}

	d.logger.Info("batch dispatched",
		"messages", len(msgs), "succeeded", out.Succeeded, "failed", out.Failed)
	return out
}

// process runs one message through the state machine.
func (d *Dispatcher) process(ctx context.Context, m event.Message) Result {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "dispatch.message",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", m.ID),
			attribute.String("verimail.transport", d.transport.Name()),
		))
	defer span.End()

	r := Result{MessageID: m.ID, Stage: StageReceived}
	finish := func() Result {
		r.Duration = time.Since(start)
		r.DurationMS = r.Duration.Milliseconds()
		d.report(r)
		span.SetAttributes(
			attribute.String("verimail.stage", string(r.Stage)),
			attribute.String("verimail.status", string(r.Status)),
		)
		if r.Err != nil && r.Status == StatusFailed {
			span.RecordError(r.Err)
			span.SetStatus(codes.Error, r.ErrorKind)
		}
		return r
	}

	if err := ctx.Err(); err != nil {
		r.fail(StageReceived, err)
		return finish()
	}

	id, err := event.Decode(m.Body)
	if err != nil {
		r.fail(StageDecoded, err)
		return finish()
	}
	r.Stage = StageDecoded
	r.Recipient = id.Email

	link, err := d.links.Compose(id)
	if err != nil {
		r.fail(StageComposed, fmt.Errorf("composing link: %w", err))
		return finish()
	}
	msg, err := d.mail.Render(id, link)
	if err != nil {
		r.fail(StageComposed, fmt.Errorf("rendering mail: %w", err))
		return finish()
	}
	r.Stage = StageComposed

	if err := d.send(ctx, msg); err != nil {
		r.fail(StageDelivered, err)
		return finish()
	}
	r.Stage = StageDelivered

	outcome, err := d.record(ctx, id)
	switch {
	case err != nil:
		// The mail is already out; the failed update is reported, not undone.
		r.Status = StatusSentUnrecorded
		r.Err = err
		r.ErrorKind = errorKind(err)
		r.Error = err.Error()
	case !outcome.Updated():
		r.Stage = StageRecorded
		r.Status = StatusSentNoRow
	default:
		r.Stage = StageRecorded
		r.Status = StatusSent
		r.RowsAffected = outcome.RowsAffected
	}
	return finish()
}

func (d *Dispatcher) send(ctx context.Context, msg notification.Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	start := time.Now()
	err := d.transport.Send(ctx, msg)
	d.metrics.ObserveSend(d.transport.Name(), time.Since(start), err)
	return err
}

func (d *Dispatcher) record(ctx context.Context, id event.UserIdentity) (storage.RecordOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, d.recordTimeout)
	defer cancel()
	return d.recorder.Record(ctx, id)
}

// report logs, counts and publishes a finished result.
func (d *Dispatcher) report(r Result) {
	d.metrics.ObserveMessage(string(r.Stage), string(r.Status))

	switch r.Status {
	case StatusFailed:
		d.logger.Error("dispatch failed",
			"message_id", r.MessageID, "stage", r.Stage, "error_kind", r.ErrorKind, "error", r.Err)
	case StatusSentUnrecorded:
		d.logger.Warn("verification mail sent but delivery status not recorded",
			"message_id", r.MessageID, "recipient", r.Recipient, "stage", StageRecorded,
			"error_kind", r.ErrorKind, "error", r.Err)
	case StatusSentNoRow:
		d.logger.Warn("verification mail sent but no user row matched",
			"message_id", r.MessageID, "recipient", r.Recipient)
	default:
		d.logger.Info("verification mail sent",
			"message_id", r.MessageID, "recipient", r.Recipient,
			"rows_affected", r.RowsAffected, "duration_ms", r.DurationMS)
	}

	if d.bus == nil {
		return
	}
	eventType := eventbus.DispatchCompleted
	if r.Status == StatusFailed {
		eventType = eventbus.DispatchFailed
	}
	d.bus.Publish(eventType, map[string]string{
		eventbus.KeyMessageID:    r.MessageID,
		eventbus.KeyRecipient:    r.Recipient,
		eventbus.KeyTransport:    d.transport.Name(),
		eventbus.KeyStage:        string(r.Stage),
		eventbus.KeyStatus:       string(r.Status),
		eventbus.KeyErrorKind:    r.ErrorKind,
		eventbus.KeyError:        r.Error,
		eventbus.KeyRowsAffected: strconv.FormatInt(r.RowsAffected, 10),
		eventbus.KeyDurationMS:   strconv.FormatInt(r.DurationMS, 10),
	})
}

// errorKind maps a stage error to a short, stable label.
func errorKind(err error) string {
	var decErr *event.DecodeError
	var trErr *notification.TransportError
	var perErr *storage.PersistenceError
	switch {
	case errors.As(err, &decErr):
		return string(decErr.Kind)
	case errors.As(err, &trErr):
		return string(trErr.Kind)
	case errors.As(err, &perErr):
		return string(perErr.Kind)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
