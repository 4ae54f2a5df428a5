// Package consumer feeds channel messages from Kafka into the dispatcher.
// Each poll forms one batch; offsets are committed after the batch has been
// dispatched, whatever the per-message outcome.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/shaharia-lab/verimail/internal/dispatch"
	"github.com/shaharia-lab/verimail/internal/event"
)

// Config holds Kafka connection settings.
type Config struct {
	Brokers []string
	Topics  []string
	Group   string
	// MaxPollRecords caps one batch. Zero selects 100.
	MaxPollRecords int
}

// Client is the subset of *kgo.Client used by the consumer.
type Client interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

// BatchDispatcher processes one batch of messages.
type BatchDispatcher interface {
	Dispatch(ctx context.Context, msgs []event.Message) dispatch.BatchOutcome
}

// NewClient creates a consumer-group client with auto-commit disabled.
func NewClient(cfg Config) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 || len(cfg.Topics) == 0 {
		return nil, errors.New("kafka: brokers and topics are required")
	}
	group := cfg.Group
	if group == "" {
		group = "verimail"
	}
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.ClientID("verimail"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	return cl, nil
}

// CheckTopics verifies that every topic exists on the cluster.
func CheckTopics(ctx context.Context, cl *kgo.Client, topics []string) error {
	adm := kadm.NewClient(cl)
	details, err := adm.ListTopics(ctx, topics...)
	if err != nil {
		return fmt.Errorf("listing kafka topics: %w", err)
	}
	var errs []error
	for _, t := range topics {
		d, ok := details[t]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("kafka topic %q not found", t))
		case d.Err != nil:
			errs = append(errs, fmt.Errorf("kafka topic %q: %w", t, d.Err))
		}
	}
	return errors.Join(errs...)
}

// Consumer polls a Kafka client and dispatches each poll as one batch.
type Consumer struct {
	client     Client
	dispatcher BatchDispatcher
	logger     *slog.Logger
	maxRecords int
}

// New creates a Consumer.
func New(client Client, d BatchDispatcher, maxPollRecords int, logger *slog.Logger) *Consumer {
	if maxPollRecords <= 0 {
		maxPollRecords = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:     client,
		dispatcher: d,
		logger:     logger.With("component", "kafka_consumer"),
		maxRecords: maxPollRecords,
	}
}

// Run polls until ctx is done or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("kafka consumer started")
	for {
		fetches := c.client.PollRecords(ctx, c.maxRecords)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			c.logger.Info("kafka consumer stopped")
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})

		records := fetches.Records()
		if len(records) == 0 {
			continue
		}
		c.handle(ctx, records)
	}
}

func (c *Consumer) handle(ctx context.Context, records []*kgo.Record) {
	msgs := make([]event.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, event.Message{ID: recordID(r), Body: r.Value})
	}

	out := c.dispatcher.Dispatch(ctx, msgs)

	if err := c.client.CommitRecords(ctx, records...); err != nil {
		c.logger.Error("failed to commit kafka offsets", "records", len(records), "error", err)
		return
	}
	c.logger.Debug("kafka batch committed",
		"records", len(records), "succeeded", out.Succeeded, "failed", out.Failed)
}

// recordID names a record by its log position.
func recordID(r *kgo.Record) string {
	return r.Topic + "/" + strconv.Itoa(int(r.Partition)) + "/" + strconv.FormatInt(r.Offset, 10)
}
