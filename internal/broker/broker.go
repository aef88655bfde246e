package broker

import (
	"context"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
)

// Handler consumes one envelope. It owns its own error handling: nothing it
// does is reported back to the broker.
type Handler interface {
	HandleEnvelope(ctx context.Context, env domain.Envelope)
}

type HandlerFunc func(ctx context.Context, env domain.Envelope)

func (f HandlerFunc) HandleEnvelope(ctx context.Context, env domain.Envelope) {
	f(ctx, env)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, env domain.Envelope) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h Handler) error
}
