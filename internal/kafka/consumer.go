package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/broker"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Consumer polls a consumer group and hands each fetched batch to a fixed
// number of workers. Offsets are marked only after the whole batch has been
// handled, so a crash replays rather than skips.
type Consumer struct {
	client  *kgo.Client
	workers int

	mu       sync.RWMutex
	handlers map[string]broker.Handler

	startOnce sync.Once
	started   atomic.Bool
	done      chan struct{}
}

var _ broker.Subscriber = (*Consumer)(nil)

func NewConsumer(brokers []string, group string, workers int) (*Consumer, error) {
	if workers < 1 {
		workers = 1
	}
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.AutoCommitMarks(),
		kgo.OnPartitionsRevoked(func(ctx context.Context, _ *kgo.Client, _ map[string][]int32) {
			observability.GetLogger(ctx).Info("kafka partitions revoked")
		}),
		kgo.OnPartitionsAssigned(func(ctx context.Context, _ *kgo.Client, _ map[string][]int32) {
			observability.GetLogger(ctx).Info("kafka partitions assigned")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		client:   cl,
		workers:  workers,
		handlers: make(map[string]broker.Handler),
		done:     make(chan struct{}),
	}, nil
}

// Subscribe registers h for topic and starts the poll loop on first use.
func (c *Consumer) Subscribe(ctx context.Context, topic string, h broker.Handler) error {
	c.mu.Lock()
	c.handlers[topic] = h
	c.mu.Unlock()

	c.client.AddConsumeTopics(topic)
	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.run(ctx)
	})
	return nil
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)

	log := observability.GetLogger(ctx)
	log.Info("kafka consumer started", zap.Int("workers", c.workers))

	for {
		select {
		case <-ctx.Done():
			log.Info("kafka consumer loop stopping: context canceled")
			return
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			log.Info("kafka consumer loop stopping: client closed")
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, ferr := range errs {
				if errors.Is(ferr.Err, context.Canceled) {
					return
				}
				log.Error("kafka fetch error", zap.String("topic", ferr.Topic), zap.Int32("partition", ferr.Partition), zap.Error(ferr.Err))
			}
			continue
		}

		var g errgroup.Group
		g.SetLimit(c.workers)

		var records []*kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
			g.Go(func() error {
				c.handle(ctx, r)
				return nil
			})
		})
		_ = g.Wait()

		c.client.MarkCommitRecords(records...)
	}
}

func (c *Consumer) handle(ctx context.Context, r *kgo.Record) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, kgoRecordCarrier{record: r})

	c.mu.RLock()
	h, ok := c.handlers[r.Topic]
	c.mu.RUnlock()
	if !ok {
		return
	}

	env, err := domain.DecodeEnvelope(r.Value)
	if err != nil {
		observability.GetLogger(ctx).Error("dropping undecodable record",
			zap.String("topic", r.Topic),
			zap.Int32("partition", r.Partition),
			zap.Int64("offset", r.Offset),
			zap.Error(err))
		return
	}

	h.HandleEnvelope(ctx, env)
}

func (c *Consumer) Close() {
	c.client.Close()
	if c.started.Load() {
		<-c.done
	}
}
