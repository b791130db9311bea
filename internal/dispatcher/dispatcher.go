package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"notify-service/internal/changes"
	"notify-service/internal/events"
	"notify-service/internal/observability"
	"notify-service/internal/registry"
)

// Stream is the change source the dispatcher consumes.
type Stream interface {
	Next(ctx context.Context) (changes.RawChange, error)
}

// Dispatcher is the single consumer of a change stream. It decodes each
// change and hands the event to the live sessions of every recipient.
type Dispatcher struct {
	stream   Stream
	registry *registry.Registry
	log      *slog.Logger
	tracer   trace.Tracer
	running  atomic.Bool
}

// New builds a Dispatcher. It never creates registry entries: a principal
// that has never connected gets nothing.
func New(stream Stream, reg *registry.Registry, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		stream:   stream,
		registry: reg,
		log:      log.With("component", "dispatcher"),
		tracer:   otel.Tracer("notify-service/dispatcher"),
	}
}

// Run consumes the stream until ctx is cancelled (returns nil) or the stream
// ends (returns its error). Changes are handled strictly one at a time.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher started")
	d.running.Store(true)
	observability.SetDispatcherUp(true)
	defer func() {
		d.running.Store(false)
		observability.SetDispatcherUp(false)
	}()

	for {
		change, err := d.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.log.Info("dispatcher stopped")
				return nil
			}
			return fmt.Errorf("change stream ended: %w", err)
		}
		d.Dispatch(ctx, change)
	}
}

// Running reports whether Run is consuming the stream.
func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// Dispatch decodes one change and publishes it. It returns the number of
// sessions the event was handed to. Undecodable changes are logged and
// dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, change changes.RawChange) int {
	_, span := d.tracer.Start(ctx, "notify.dispatch",
		trace.WithAttributes(attribute.String("notify.channel", change.Channel)))
	defer span.End()

	observability.IncChangeReceived(change.Channel)
	n, err := events.Decode(change.Channel, change.Payload)
	if err != nil {
		observability.IncDecodeError(change.Channel, decodeReason(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		d.log.Warn("skipping undecodable change", "channel", change.Channel, "error", err)
		return 0
	}

	kind := string(n.Event.Kind())
	span.SetAttributes(attribute.String("notify.kind", kind), attribute.Int("notify.recipients", len(n.Recipients)))
	if len(n.Recipients) == 0 {
		d.log.Debug("no recipients", "channel", change.Channel, "kind", kind)
		return 0
	}

	sessions := 0
	for _, id := range n.Recipients.IDs() {
		b, ok := d.registry.TryGet(id)
		if !ok {
			observability.IncEventUnrouted(kind)
			continue
		}
		sent := b.Send(n.Event)
		if sent == 0 {
			observability.IncEventUnrouted(kind)
			continue
		}
		observability.IncEventPublished(kind)
		d.log.Debug("event published", "user_id", id, "kind", kind, "sessions", sent)
		sessions += sent
	}
	span.SetAttributes(attribute.Int("notify.sessions", sessions))
	return sessions
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, events.ErrUnknownChannel):
		return "unknown_channel"
	case errors.Is(err, events.ErrMalformedPayload):
		return "malformed_payload"
	default:
		return "other"
	}
}
