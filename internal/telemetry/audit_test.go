package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"notify-service/internal/mocks"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.EventPublisherMock)
	publisher.On("Publish", mock.Anything, "audit.notify", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.Service == "notify-service" &&
			env.Environment == "test" &&
			env.RequestID == "req-1" &&
			env.UserID != nil && *env.UserID == "42" &&
			env.Payload == AuditPayload{Level: "INFO", Text: "dispatcher started"}
	})).Return(nil).Once()

	emitter := NewAuditEmitter(publisher, "audit.notify", "notify-service", "test", discard())
	emitter.Emit(context.Background(), AuditRecord{Level: "INFO", Text: "dispatcher started", RequestID: "req-1", UserID: 42})

	publisher.AssertExpectations(t)
}

func TestEmitWithoutUser(t *testing.T) {
	publisher := new(mocks.EventPublisherMock)
	publisher.On("Publish", mock.Anything, "audit.notify", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.UserID == nil
	})).Return(errors.New("channel closed")).Once()

	emitter := NewAuditEmitter(publisher, "audit.notify", "notify-service", "test", discard())
	emitter.Emit(context.Background(), AuditRecord{Level: "ERROR", Text: "dispatcher terminated"})

	publisher.AssertExpectations(t)
}

func TestEmitOnNilEmitter(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), AuditRecord{Text: "ignored"})
	})
}
