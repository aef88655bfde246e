package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("broker closed")

type delivery struct {
	ctx   context.Context
	topic string
	data  []byte
}

// Memory is an in-process broker for single-node runs. Envelopes go through
// the same wire encoding as Kafka and are handed to a fixed pool of workers.
type Memory struct {
	mu       sync.RWMutex
	handlers map[string][]Handler

	queue     chan delivery
	done      chan struct{}
	workers   int
	wg        sync.WaitGroup
	start     sync.Once
	closeOnce sync.Once
}

func NewMemory(workers, buffer int) *Memory {
	if workers < 1 {
		workers = 1
	}
	return &Memory{
		handlers: make(map[string][]Handler),
		queue:    make(chan delivery, buffer),
		done:     make(chan struct{}),
		workers:  workers,
	}
}

// Start launches the worker pool. Workers run until Close, then drain what is
// already queued.
func (m *Memory) Start() {
	m.start.Do(func() {
		for i := 0; i < m.workers; i++ {
			m.wg.Add(1)
			go m.work()
		}
	})
}

func (m *Memory) Publish(ctx context.Context, topic string, env domain.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}

	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	select {
	case m.queue <- delivery{ctx: context.WithoutCancel(ctx), topic: topic, data: data}:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Subscribe(_ context.Context, topic string, h Handler) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = append(m.handlers[topic], h)
	return nil
}

func (m *Memory) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

func (m *Memory) work() {
	defer m.wg.Done()
	for {
		select {
		case d := <-m.queue:
			m.dispatch(d)
		case <-m.done:
			for {
				select {
				case d := <-m.queue:
					m.dispatch(d)
				default:
					return
				}
			}
		}
	}
}

func (m *Memory) dispatch(d delivery) {
	m.mu.RLock()
	handlers := m.handlers[d.topic]
	m.mu.RUnlock()

	env, err := domain.DecodeEnvelope(d.data)
	if err != nil {
		observability.GetLogger(d.ctx).Error("memory broker: undecodable envelope", zap.Error(err))
		return
	}
	if len(handlers) == 0 {
		observability.GetLogger(d.ctx).Debug("memory broker: no subscriber", zap.String("topic", d.topic))
		return
	}
	for _, h := range handlers {
		h.HandleEnvelope(d.ctx, env)
	}
}
