package stores

import (
	"sync"

	"github.com/kemicky/forage/pkg/telemetry"
)

// ChangeFeed fans change notifications out to subscribers.
//
// Each subscriber channel holds one pending notification. When it is full the
// new notification is coalesced into the pending one, so Publish never blocks
// and a subscriber never misses that something changed. The Change payload is
// a hint; subscribers re-read the store rather than apply it.
type ChangeFeed struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Change
	nextID  uint64
	closed  bool
	metrics *telemetry.Metrics
}

// NewChangeFeed creates an empty change feed. metrics may be nil.
func NewChangeFeed(metrics *telemetry.Metrics) *ChangeFeed {
	return &ChangeFeed{
		subs:    make(map[uint64]chan Change),
		metrics: metrics,
	}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel; calling it more than once is safe. After Close the
// channel is returned already closed.
func (f *ChangeFeed) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
}

// Publish notifies every subscriber of c.
func (f *ChangeFeed) Publish(c Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}

	f.metrics.RecordChangePublished(string(c.Kind))

	for _, ch := range f.subs {
		select {
		case ch <- c:
		default:
			// A notification is already pending for this subscriber.
		}
	}
}

// Subscribers returns the number of active subscribers.
func (f *ChangeFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close closes every subscriber channel. Later publishes are dropped.
func (f *ChangeFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true

	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
