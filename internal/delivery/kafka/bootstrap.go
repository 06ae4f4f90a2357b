package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/azizikri/loyalty-wallet/internal/config"
)

// EnsureTopics creates the relay topic and its dead letter topic when missing.
func EnsureTopics(ctx context.Context, client *kgo.Client, cfg *config.Config, logger zerolog.Logger) error {
	adm := kadm.NewClient(client)

	topics := []string{
		TopicBalanceEvents,
		TopicBalanceEvents + TopicDLQSuffix,
	}

	partitions := cfg.TopicPartitions()
	replicationFactor := cfg.ReplicationFactor()

	for _, topic := range topics {
		p := partitions
		if strings.HasSuffix(topic, TopicDLQSuffix) {
			p = 1
		}

		resp, err := adm.CreateTopics(ctx, int32(p), replicationFactor, nil, topic)
		if err != nil {
			return fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		for _, detail := range resp {
			if detail.Err != nil && !strings.Contains(detail.Err.Error(), "already exists") {
				return fmt.Errorf("failed to create topic %s: %w", detail.Topic, detail.Err)
			}
		}
	}

	logger.Info().Strs("topics", topics).Msg("relay topics ensured")
	return nil
}
