package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"notify-service/internal/auth"
)

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (auth.Principal, error) {
	args := m.Called(ctx, token)
	var principal auth.Principal
	if val := args.Get(0); val != nil {
		principal = val.(auth.Principal)
	}
	return principal, args.Error(1)
}

// EventPublisherMock stands in for the AMQP publisher behind the audit
// emitter and the lifecycle event sink.
type EventPublisherMock struct {
	mock.Mock
}

func (m *EventPublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}
