package kafka

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/ptype-inference-service/internal/config"
	"github.com/couchcryptid/ptype-inference-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes forecast job messages from a Kafka topic.
// It implements pipeline.Extractor.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a Kafka consumer for the configured job topic. Offsets
// are committed explicitly through JobEvent.Commit after a job is handled.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaJobTopic,
		GroupID: cfg.KafkaGroupID,
	})
	return &Reader{reader: r, logger: logger}
}

// Extract blocks until the next job message arrives or ctx is canceled.
func (r *Reader) Extract(ctx context.Context) (domain.JobEvent, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return domain.JobEvent{}, err
	}

	event := mapMessageToJobEvent(msg)
	event.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return event, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToJobEvent copies the Kafka message fields into a domain JobEvent.
func mapMessageToJobEvent(msg kafkago.Message) domain.JobEvent {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.JobEvent{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
