package registry

import (
	"sync"
	"sync/atomic"

	"notify-service/internal/events"
)

// DefaultCapacity bounds each receiver's buffer when no capacity is given.
const DefaultCapacity = 256

// Registry maps principal ids to their shared Broadcaster. Entries are
// created on first need and live for the rest of the process.
type Registry struct {
	capacity     int
	broadcasters sync.Map // int64 -> *Broadcaster
}

// New creates an empty registry whose receivers buffer up to capacity events.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{capacity: capacity}
}

// GetOrCreate returns the principal's broadcaster, creating it if absent.
func (r *Registry) GetOrCreate(principalID int64) *Broadcaster {
	if b, ok := r.broadcasters.Load(principalID); ok {
		return b.(*Broadcaster)
	}
	b, _ := r.broadcasters.LoadOrStore(principalID, newBroadcaster(principalID, r.capacity))
	return b.(*Broadcaster)
}

// TryGet returns the principal's broadcaster if one was ever created.
func (r *Registry) TryGet(principalID int64) (*Broadcaster, bool) {
	b, ok := r.broadcasters.Load(principalID)
	if !ok {
		return nil, false
	}
	return b.(*Broadcaster), true
}

// Subscribe attaches a new receiver to the principal's broadcaster. The
// receiver sees only events sent after Subscribe returns.
func (r *Registry) Subscribe(principalID int64) *Receiver {
	return r.GetOrCreate(principalID).Subscribe()
}

// Len reports how many principals have a broadcaster.
func (r *Registry) Len() int {
	n := 0
	r.broadcasters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Broadcaster multicasts events to every receiver of one principal.
type Broadcaster struct {
	principalID int64
	capacity    int

	mu        sync.Mutex
	receivers map[*Receiver]struct{}
}

func newBroadcaster(principalID int64, capacity int) *Broadcaster {
	return &Broadcaster{
		principalID: principalID,
		capacity:    capacity,
		receivers:   make(map[*Receiver]struct{}),
	}
}

func (b *Broadcaster) PrincipalID() int64 { return b.principalID }

// Subscribe attaches a new receiver.
func (b *Broadcaster) Subscribe() *Receiver {
	rx := &Receiver{
		ch:     make(chan *events.Event, b.capacity),
		parent: b,
	}
	b.mu.Lock()
	b.receivers[rx] = struct{}{}
	b.mu.Unlock()
	return rx
}

// Send delivers ev to every current receiver and returns how many there
// were. It never blocks: a receiver whose buffer is full loses its oldest
// unread event to make room.
func (b *Broadcaster) Send(ev *events.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for rx := range b.receivers {
		rx.push(ev)
	}
	return len(b.receivers)
}

// ReceiverCount reports the number of attached receivers.
func (b *Broadcaster) ReceiverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.receivers)
}

func (b *Broadcaster) remove(rx *Receiver) {
	b.mu.Lock()
	delete(b.receivers, rx)
	b.mu.Unlock()
}

// Receiver is one session's handle on a principal's event stream.
type Receiver struct {
	ch      chan *events.Event
	parent  *Broadcaster
	lagged  atomic.Uint64
	closing sync.Once
}

// C yields events in send order. It is never closed; stop reading once the
// session ends and call Close.
func (rx *Receiver) C() <-chan *events.Event { return rx.ch }

// Lagged returns how many events were dropped since the previous call.
func (rx *Receiver) Lagged() uint64 { return rx.lagged.Swap(0) }

// Close detaches the receiver from its broadcaster. Safe to call twice.
func (rx *Receiver) Close() {
	rx.closing.Do(func() { rx.parent.remove(rx) })
}

// push is only called with the parent's lock held, so there is a single
// writer; the session may drain concurrently.
func (rx *Receiver) push(ev *events.Event) {
	for {
		select {
		case rx.ch <- ev:
			return
		default:
		}
		select {
		case <-rx.ch:
			rx.lagged.Add(1)
		default:
		}
	}
}
