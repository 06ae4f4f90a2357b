package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/metrics"
)

type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Publisher forwards committed balance events to the other replicas.
type Publisher struct {
	client     producer
	instanceID string
	logger     zerolog.Logger
}

func NewPublisher(client *kgo.Client, instanceID string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client:     client,
		instanceID: instanceID,
		logger:     logger.With().Str("component", "relay_publisher").Logger(),
	}
}

// OnBalanceChanged produces asynchronously; it runs under the customer lock
// and must not wait on the broker.
func (p *Publisher) OnBalanceChanged(ctx context.Context, ev domain.BalanceEvent) {
	record, err := encodeRecord(p.instanceID, ev)
	if err != nil {
		metrics.RelayRecords.WithLabelValues("out", metrics.Result(false)).Inc()
		p.logger.Error().Err(err).Str("customer_id", ev.CustomerID).Msg("encode balance event")
		return
	}

	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		metrics.RelayRecords.WithLabelValues("out", metrics.Result(err == nil)).Inc()
		if err != nil {
			p.logger.Warn().Err(err).Str("customer_id", ev.CustomerID).Msg("relay balance event")
		}
	})
}

func encodeRecord(instanceID string, ev domain.BalanceEvent) (*kgo.Record, error) {
	value, err := json.Marshal(EventPayload{
		SchemaVersion: SchemaVersion,
		Origin:        instanceID,
		Event:         ev,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &kgo.Record{
		Topic: TopicBalanceEvents,
		Key:   []byte(ev.CustomerID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: OriginHeaderKey, Value: []byte(instanceID)},
		},
	}, nil
}
