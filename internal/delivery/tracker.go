package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/broker"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/dedup"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/presence"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeSent      Outcome = "sent"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeMissing   Outcome = "missing"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeFailed    Outcome = "failed"
)

// ConversationSource resolves a conversation and its participants.
type ConversationSource interface {
	Conversation(ctx context.Context, convID string) (*domain.Conversation, error)
}

// Tracker consumes broker envelopes and advances message status. Errors never
// go back to the broker: a failed run parks the message in PENDING and the
// retry scheduler owns what happens next.
type Tracker struct {
	messages      repository.MessageStore
	conversations ConversationSource
	reachability  presence.Reachability
	notifier      router.Notifier
	guard         dedup.Guard
	now           func() time.Time
}

var _ broker.Handler = (*Tracker)(nil)

func NewTracker(
	messages repository.MessageStore,
	conversations ConversationSource,
	reachability presence.Reachability,
	notifier router.Notifier,
	guard dedup.Guard,
) *Tracker {
	return &Tracker{
		messages:      messages,
		conversations: conversations,
		reachability:  reachability,
		notifier:      notifier,
		guard:         guard,
		now:           time.Now,
	}
}

func (t *Tracker) HandleEnvelope(ctx context.Context, env domain.Envelope) {
	outcome := t.process(ctx, env)
	observability.EnvelopesProcessedTotal.WithLabelValues(string(outcome)).Inc()
}

func (t *Tracker) process(ctx context.Context, env domain.Envelope) Outcome {
	log := observability.GetLogger(ctx)

	id := env.ResolveID()
	if id == "" {
		log.Warn("tracker: envelope without message id")
		return OutcomeInvalid
	}

	release, acquired, err := t.guard.Acquire(ctx, id)
	switch {
	case err != nil:
		log.Warn("tracker: duplicate guard unavailable, processing anyway",
			zap.String("message_id", id), zap.Error(err))
	case !acquired:
		log.Debug("tracker: concurrent duplicate dropped", zap.String("message_id", id))
		return OutcomeDuplicate
	}
	defer release()

	msg, err := t.messages.GetMessage(ctx, id)
	if errors.Is(err, domain.ErrMessageNotFound) {
		log.Warn("tracker: message no longer exists, dropping envelope", zap.String("message_id", id))
		return OutcomeMissing
	}
	if err != nil {
		log.Error("tracker: failed to load message", zap.String("message_id", id), zap.Error(err))
		return OutcomeFailed
	}

	outcome, err := t.track(ctx, msg)
	if err != nil {
		t.park(ctx, id, err)
		return OutcomeFailed
	}
	return outcome
}

func (t *Tracker) track(ctx context.Context, msg *domain.Message) (Outcome, error) {
	switch msg.Status {
	case domain.StatusDelivered, domain.StatusRead, domain.StatusFailed:
		return OutcomeSkipped, nil
	}
	redistributed := msg.Status == domain.StatusPending

	conv, err := t.conversations.Conversation(ctx, msg.ConversationID)
	if err != nil {
		return "", err
	}

	reachable, err := t.anyReachable(ctx, conv.Recipients(msg.SenderID))
	if err != nil {
		return "", err
	}

	prev := msg.Status
	var outcome Outcome
	if reachable {
		msg.MarkDelivered(t.now())
		outcome = OutcomeDelivered
	} else {
		msg.MarkSent()
		outcome = OutcomeSent
	}
	if msg.Status != prev {
		err := t.messages.SaveMessage(ctx, msg, prev)
		if errors.Is(err, domain.ErrStaleStatus) {
			observability.GetLogger(ctx).Debug("tracker: message moved concurrently, leaving it",
				zap.String("message_id", msg.ID))
			return OutcomeSkipped, nil
		}
		if err != nil {
			return "", err
		}
	}

	if redistributed {
		// The first live push went out before the broker publish failed; a
		// retried message is pushed again so connected clients see it.
		t.push(ctx, router.ConversationChannel(msg.ConversationID), msg, "conversation")
	}
	if outcome == OutcomeDelivered {
		observability.MessagesPromotedTotal.WithLabelValues("tracker").Inc()
		observability.MessageDeliveryLatency.Observe(msg.DeliveredAt.Sub(msg.SentAt).Seconds())
		t.push(ctx, router.StatusChannel(msg.ConversationID), msg, "status")
	}
	return outcome, nil
}

// anyReachable stops at the first online recipient. A lookup error only
// matters when nobody else turned out to be online.
func (t *Tracker) anyReachable(ctx context.Context, recipients []string) (bool, error) {
	var firstErr error
	for _, userID := range recipients {
		online, err := t.reachability.IsOnline(ctx, userID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if online {
			return true, nil
		}
	}
	return false, firstErr
}

// park reloads the row and hands it to the retry scheduler. FAILED and READ
// rows are left alone.
func (t *Tracker) park(ctx context.Context, id string, cause error) {
	log := observability.GetLogger(ctx).With(zap.String("message_id", id))
	log.Error("tracker: processing failed, parking message for retry", zap.Error(cause))

	msg, err := t.messages.GetMessage(ctx, id)
	if err != nil {
		log.Error("tracker: failed to reload message for parking", zap.Error(err))
		return
	}
	prev := msg.Status
	if !msg.MarkPending() {
		return
	}
	err = t.messages.SaveMessage(ctx, msg, prev)
	switch {
	case errors.Is(err, domain.ErrStaleStatus):
		log.Debug("tracker: message moved before parking, leaving it")
	case err != nil:
		log.Error("tracker: failed to park message", zap.Error(err))
	}
}

func (t *Tracker) push(ctx context.Context, channel string, msg *domain.Message, kind string) {
	if err := t.notifier.Publish(ctx, channel, msg); err != nil {
		observability.LivePushFailuresTotal.WithLabelValues(kind).Inc()
		observability.GetLogger(ctx).Warn("tracker: live push failed",
			zap.String("channel", channel), zap.String("message_id", msg.ID), zap.Error(err))
	}
}
