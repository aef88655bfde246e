package application

import (
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/broker"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"github.com/google/uuid"
)

type Service struct {
	repo      repository.Repository
	publisher broker.Publisher
	topic     string
	notifier  router.Notifier
	now       func() time.Time
	newID     func() string
}

func New(repo repository.Repository, publisher broker.Publisher, topic string, notifier router.Notifier) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		topic:     topic,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}
