package journal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
}

// Handler processes one decoded record.
type Handler func(ctx context.Context, key string, rec Record) error

// Consume reads records until ctx is done. Read errors are retried after
// retryDelay; undecodable records and handler errors are logged and skipped.
func Consume(ctx context.Context, r MessageReader, handle Handler, retryDelay time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Warn("journal read failed; retrying", "err", err, "delay", retryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}

		var rec Record
		if err := json.Unmarshal(m.Value, &rec); err != nil {
			logger.Warn("journal record undecodable", "offset", m.Offset, "err", err)
			continue
		}
		if err := handle(ctx, string(m.Key), rec); err != nil {
			logger.Error("journal record not handled", "offset", m.Offset, "event", rec.Event, "err", err)
		}
	}
}
