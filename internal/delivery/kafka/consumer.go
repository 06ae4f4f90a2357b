package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/azizikri/loyalty-wallet/internal/metrics"
	"github.com/azizikri/loyalty-wallet/internal/usecase"
)

type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Consumer feeds balance events committed on other replicas into the local
// sink. Events this replica produced are skipped since the sink already saw
// them.
type Consumer struct {
	client     *kgo.Client
	dlq        syncProducer
	instanceID string
	sink       usecase.BalanceListener
	logger     zerolog.Logger
}

func NewConsumer(client *kgo.Client, instanceID string, sink usecase.BalanceListener, logger zerolog.Logger) *Consumer {
	return &Consumer{
		client:     client,
		dlq:        client,
		instanceID: instanceID,
		sink:       sink,
		logger:     logger.With().Str("component", "relay_consumer").Logger(),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				c.logger.Warn().Err(e.Err).Str("topic", e.Topic).Int32("partition", e.Partition).Msg("poll error")
			}
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			c.handleRecord(ctx, iter.Next())
		}

		if err := c.client.CommitRecords(ctx, fetches.Records()...); err != nil {
			c.logger.Error().Err(err).Msg("commit records")
		}
	}
}

func (c *Consumer) handleRecord(ctx context.Context, record *kgo.Record) {
	if origin(record) == c.instanceID {
		metrics.RelayRecords.WithLabelValues("in", "skipped").Inc()
		return
	}

	var payload EventPayload
	if err := json.Unmarshal(record.Value, &payload); err != nil {
		c.sendDLQ(ctx, record, fmt.Sprintf("invalid payload: %v", err))
		return
	}
	if payload.SchemaVersion != SchemaVersion || payload.Event.CustomerID == "" {
		c.sendDLQ(ctx, record, fmt.Sprintf("unsupported payload version %d", payload.SchemaVersion))
		return
	}
	if payload.Origin == c.instanceID {
		metrics.RelayRecords.WithLabelValues("in", "skipped").Inc()
		return
	}

	c.sink.OnBalanceChanged(ctx, payload.Event)
	metrics.RelayRecords.WithLabelValues("in", metrics.Result(true)).Inc()
}

func (c *Consumer) sendDLQ(ctx context.Context, record *kgo.Record, message string) {
	metrics.RelayRecords.WithLabelValues("in", metrics.Result(false)).Inc()
	c.logger.Warn().Str("topic", record.Topic).Int64("offset", record.Offset).Str("reason", message).Msg("dead-lettering record")

	dlqRecord := &kgo.Record{
		Topic: record.Topic + TopicDLQSuffix,
		Key:   record.Key,
		Value: record.Value,
		Headers: append(append([]kgo.RecordHeader(nil), record.Headers...),
			kgo.RecordHeader{Key: ErrorHeaderKey, Value: []byte(message)}),
	}
	if err := c.dlq.ProduceSync(ctx, dlqRecord).FirstErr(); err != nil {
		c.logger.Error().Err(err).Msg("produce dead letter")
	}
}

func origin(record *kgo.Record) string {
	for _, header := range record.Headers {
		if header.Key == OriginHeaderKey {
			return string(header.Value)
		}
	}
	return ""
}
