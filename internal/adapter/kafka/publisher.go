// Package kafka publishes upserted observations to a topic for downstream
// consumers. Publishing is optional; the pipeline only constructs a
// Publisher when KAFKA_ENABLED is set.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/fluview-etl/internal/config"
	"github.com/couchcryptid/fluview-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher produces observation messages to a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes and sends the observations in a single WriteMessages
// call. An empty batch is a no-op.
func (p *Publisher) Publish(ctx context.Context, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(obs))
	for i := range obs {
		msg, err := serializeObservation(obs[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeObservation marshals an observation into a Kafka message keyed
// by source_id, so each region-week lands on a stable partition and
// re-published weeks compact naturally.
func serializeObservation(o domain.Observation) (kafkago.Message, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(o.SourceID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "metric", Value: []byte(o.Metric)},
			{Key: "epiweek", Value: []byte(strconv.Itoa(o.Epiweek))},
		},
	}, nil
}
