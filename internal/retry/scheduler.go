package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/broker"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxRetryCount = 3
	DefaultBatchSize     = 500
)

// FailureSink receives a notice for every message that runs out of attempts.
type FailureSink interface {
	PublishFailure(ctx context.Context, notice domain.FailureNotice) error
}

// Scheduler republishes PENDING messages and retires them as FAILED once
// their retry budget is spent.
type Scheduler struct {
	messages      repository.MessageStore
	publisher     broker.Publisher
	topic         string
	maxRetryCount int
	batchSize     int
	limiter       *rate.Limiter
	failures      FailureSink
	now           func() time.Time
}

type Option func(*Scheduler)

// WithPublishRate paces republishes. Zero or less means unlimited.
func WithPublishRate(perSecond float64) Option {
	return func(s *Scheduler) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithFailureSink(sink FailureSink) Option {
	return func(s *Scheduler) { s.failures = sink }
}

func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func New(messages repository.MessageStore, publisher broker.Publisher, topic string, maxRetryCount int, opts ...Option) *Scheduler {
	if maxRetryCount <= 0 {
		maxRetryCount = DefaultMaxRetryCount
	}
	s := &Scheduler{
		messages:      messages,
		publisher:     publisher,
		topic:         topic,
		maxRetryCount: maxRetryCount,
		batchSize:     DefaultBatchSize,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep is one scheduler tick. Per-message errors are logged and the sweep
// moves on; only a failed query is returned.
func (s *Scheduler) Sweep(ctx context.Context) error {
	msgs, err := s.messages.FindMessages(ctx, repository.MessageFilter{
		Statuses:      []domain.MessageStatus{domain.StatusPending},
		MaxRetryCount: repository.RetryCountAtMost(s.maxRetryCount),
		Limit:         s.batchSize,
	})
	if err != nil {
		return fmt.Errorf("query pending messages: %w", err)
	}

	for _, msg := range msgs {
		if err := s.attempt(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.GetLogger(ctx).Error("retry: attempt failed",
				zap.String("message_id", msg.ID),
				zap.Int("retry_count", msg.RetryCount),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Scheduler) attempt(ctx context.Context, msg *domain.Message) error {
	log := observability.GetLogger(ctx).With(zap.String("message_id", msg.ID))

	prev := msg.Status
	exhausted, err := msg.RecordRetryAttempt(s.maxRetryCount)
	if err != nil {
		return err
	}
	err = s.messages.SaveMessage(ctx, msg, prev)
	if errors.Is(err, domain.ErrStaleStatus) {
		log.Debug("retry: message moved since the sweep read it, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("save retry count: %w", err)
	}

	if exhausted {
		observability.MessagesFailedTotal.Inc()
		log.Warn("retry: message failed permanently", zap.Int("retry_count", msg.RetryCount))
		s.notifyFailure(ctx, msg)
		return nil
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	observability.RetryAttemptsTotal.Inc()
	if err := s.publisher.Publish(ctx, s.topic, domain.IDEnvelope(msg.ID, s.now())); err != nil {
		// Still PENDING; the next tick spends another attempt on it.
		return fmt.Errorf("republish: %w", err)
	}
	log.Info("retry: message republished", zap.Int("retry_count", msg.RetryCount))
	return nil
}

func (s *Scheduler) notifyFailure(ctx context.Context, msg *domain.Message) {
	if s.failures == nil {
		return
	}
	notice := domain.FailureNotice{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		RetryCount:     msg.RetryCount,
		FailedAt:       s.now(),
	}
	if err := s.failures.PublishFailure(ctx, notice); err != nil {
		observability.GetLogger(ctx).Warn("retry: failed to publish failure notice",
			zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// RetryFailed moves a FAILED message back to PENDING with a fresh budget and
// republishes it. It reports false when the message is missing or not FAILED.
func (s *Scheduler) RetryFailed(ctx context.Context, messageID string) (bool, error) {
	log := observability.GetLogger(ctx).With(zap.String("message_id", messageID))

	msg, err := s.messages.GetMessage(ctx, messageID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !msg.ResetForRetry() {
		log.Info("retry: manual retry refused", zap.String("status", string(msg.Status)))
		return false, nil
	}
	err = s.messages.SaveMessage(ctx, msg, domain.StatusFailed)
	if errors.Is(err, domain.ErrStaleStatus) {
		log.Info("retry: manual retry lost a race with another retry")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.publisher.Publish(ctx, s.topic, domain.IDEnvelope(msg.ID, s.now())); err != nil {
		// The row is PENDING again, so the next sweep republishes it.
		log.Warn("retry: manual republish failed, leaving it to the scheduler", zap.Error(err))
		return true, nil
	}

	log.Info("retry: manual retry accepted")
	return true, nil
}
