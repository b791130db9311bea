package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

// ErrConnectivity marks every error that ends a Source: the connection could
// not be established, a LISTEN was rejected, or the connection was lost.
var ErrConnectivity = errors.New("change source connectivity")

// RawChange is one notification as delivered by Postgres.
type RawChange struct {
	Channel string
	Payload []byte
}

// Options tunes the underlying pq.Listener.
type Options struct {
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	// PingInterval is how long Next waits in silence before pinging the
	// server to detect a dead connection.
	PingInterval time.Duration
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MinReconnectInterval <= 0 {
		o.MinReconnectInterval = 10 * time.Second
	}
	if o.MaxReconnectInterval < o.MinReconnectInterval {
		o.MaxReconnectInterval = time.Minute
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 90 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Source is a non-restartable stream of notifications from one database
// connection. Once it ends, every call to Next returns the same error;
// reconnecting means opening a new Source.
type Source struct {
	l    listener
	opts Options
	log  *slog.Logger

	failOnce sync.Once
	failed   chan struct{}
	failErr  error

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// Open connects to dsn and listens on every channel. It returns an error
// wrapping ErrConnectivity if the connection cannot be made or a LISTEN is
// rejected.
func Open(ctx context.Context, dsn string, channels []string, opts Options) (*Source, error) {
	s := newSource(opts)
	s.l = pq.NewListener(dsn, s.opts.MinReconnectInterval, s.opts.MaxReconnectInterval, s.onEvent)
	if err := s.listen(ctx, channels); err != nil {
		return nil, err
	}
	s.log.Info("listening for changes", "channels", channels)
	return s, nil
}

func newSource(opts Options) *Source {
	opts = opts.withDefaults()
	return &Source{
		opts:   opts,
		log:    opts.Logger.With("component", "change_source"),
		failed: make(chan struct{}),
	}
}

func (s *Source) listen(ctx context.Context, channels []string) error {
	done := make(chan error, 1)
	go func() {
		for _, ch := range channels {
			if err := s.l.Listen(ch); err != nil {
				done <- fmt.Errorf("%w: listen %q: %w", ErrConnectivity, ch, err)
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			s.terminate(err)
		}
		return err
	case <-s.failed:
		s.terminate(s.failErr)
		<-done
		return s.failErr
	case <-ctx.Done():
		s.terminate(fmt.Errorf("%w: %w", ErrConnectivity, ctx.Err()))
		<-done
		return ctx.Err()
	}
}

// Next blocks until the next notification arrives, ctx is done, or the
// stream ends. Cancelling ctx does not end the stream.
func (s *Source) Next(ctx context.Context) (RawChange, error) {
	if err := s.Err(); err != nil {
		return RawChange{}, err
	}

	idle := time.NewTimer(s.opts.PingInterval)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return RawChange{}, ctx.Err()
		case <-s.failed:
			return RawChange{}, s.terminate(s.failErr)
		case n, ok := <-s.l.NotificationChannel():
			if !ok {
				return RawChange{}, s.terminate(fmt.Errorf("%w: listener closed", ErrConnectivity))
			}
			if n == nil {
				// pq sends nil after re-establishing a dropped connection.
				return RawChange{}, s.terminate(fmt.Errorf("%w: connection was re-established, notifications may be lost", ErrConnectivity))
			}
			return RawChange{Channel: n.Channel, Payload: []byte(n.Extra)}, nil
		case <-idle.C:
			if err := s.l.Ping(); err != nil {
				return RawChange{}, s.terminate(fmt.Errorf("%w: ping: %w", ErrConnectivity, err))
			}
			idle.Reset(s.opts.PingInterval)
		}
	}
}

// Err returns the error that ended the stream, or nil while it is live.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream and releases the connection.
func (s *Source) Close() error {
	s.terminate(fmt.Errorf("%w: source closed", ErrConnectivity))
	return nil
}

// terminate records the first terminal error and closes the listener.
func (s *Source) terminate(err error) error {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	err = s.err
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		if cerr := s.l.Close(); cerr != nil {
			s.log.Debug("closing listener", "error", cerr)
		}
	})
	return err
}

// onEvent runs on the listener's goroutine, possibly before Open returns.
func (s *Source) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		s.log.Info("change source connected")
	case pq.ListenerEventDisconnected:
		s.fail("disconnected", err)
	case pq.ListenerEventReconnected:
		s.fail("reconnected after connection loss", nil)
	case pq.ListenerEventConnectionAttemptFailed:
		s.fail("connection attempt failed", err)
	}
}

func (s *Source) fail(reason string, err error) {
	s.failOnce.Do(func() {
		if err != nil {
			s.failErr = fmt.Errorf("%w: %s: %w", ErrConnectivity, reason, err)
		} else {
			s.failErr = fmt.Errorf("%w: %s", ErrConnectivity, reason)
		}
		s.log.Error("change source failed", "error", s.failErr)
		close(s.failed)
	})
}
