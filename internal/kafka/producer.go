package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/broker"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Producer publishes envelopes with an idempotent producer. Snapshots are
// keyed by conversation so one conversation's submissions stay ordered on a
// partition; bare ids are keyed by message id.
type Producer struct {
	p    *kafka.Producer
	done chan struct{}
}

var _ broker.Publisher = (*Producer)(nil)

func NewProducer(brokers []string) (*Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(brokers, ","),
		"acks":               "all",
		"enable.idempotence": true,
		"linger.ms":          5,
		"compression.type":   "lz4",
	})
	if err != nil {
		return nil, fmt.Errorf("kafka: new producer: %w", err)
	}

	prod := &Producer{p: p, done: make(chan struct{})}
	go prod.watchErrors()
	return prod, nil
}

// watchErrors logs client-level errors. Per-message results arrive on the
// delivery channel passed to Produce, not here.
func (p *Producer) watchErrors() {
	defer close(p.done)
	log := observability.GetLogger(context.Background())
	for ev := range p.p.Events() {
		if kerr, ok := ev.(kafka.Error); ok {
			log.Error("kafka producer error",
				zap.String("code", kerr.Code().String()),
				zap.Bool("fatal", kerr.IsFatal()),
				zap.Error(kerr))
		}
	}
}

// Publish blocks until the broker acknowledges the envelope or ctx ends.
func (p *Producer) Publish(ctx context.Context, topic string, env domain.Envelope) error {
	value, err := env.Marshal()
	if err != nil {
		return err
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(env.Key()),
		Value:          value,
	}
	otel.GetTextMapPropagator().Inject(ctx, kafkaHeaderCarrier{headers: &msg.Headers})

	acks := make(chan kafka.Event, 1)
	if err := p.p.Produce(msg, acks); err != nil {
		return fmt.Errorf("kafka: produce %s: %w", env.MessageID, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-acks:
		delivered, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("kafka: unexpected delivery event %v", ev)
		}
		if delivered.TopicPartition.Error != nil {
			return fmt.Errorf("kafka: deliver %s: %w", env.MessageID, delivered.TopicPartition.Error)
		}
		return nil
	}
}

// Flush waits up to timeoutMs for in-flight envelopes and reports how many
// were still queued.
func (p *Producer) Flush(timeoutMs int) int {
	return p.p.Flush(timeoutMs)
}

func (p *Producer) Close() {
	p.p.Close()
	<-p.done
}
