package kafka

import (
	"context"
	"encoding/json"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// FailureWriter publishes a notice for every message that exhausted its
// retry budget, keyed by message id.
type FailureWriter struct {
	w *kafkago.Writer
}

func NewFailureWriter(brokers []string, topic string) *FailureWriter {
	return &FailureWriter{
		w: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafkago.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (f *FailureWriter) PublishFailure(ctx context.Context, notice domain.FailureNotice) error {
	value, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return f.w.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(notice.MessageID),
		Value: value,
	})
}

// Close flushes and closes the underlying writer.
func (f *FailureWriter) Close() error { return f.w.Close() }
