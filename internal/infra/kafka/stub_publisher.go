package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nisum/oppenheimer/internal/core/domain"
	"github.com/nisum/oppenheimer/internal/core/port"
	"github.com/nisum/oppenheimer/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

// PublishIdentityRegistered logs identity.registered events with the email masked.
func (p *StubPublisher) PublishIdentityRegistered(_ context.Context, event domain.IdentityRegisteredEvent) error {
	at := event.RegisteredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", EventIdentityRegistered),
		zap.String("identity_id", event.IdentityID),
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.Int("phone_count", event.PhoneCount),
		zap.Time("timestamp", at.UTC()),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
