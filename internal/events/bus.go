// Package events provides the typed notification bus that replaces ad hoc
// cross-component broadcasts. Producers publish a Kind plus payload and
// subscribers receive them over buffered channels, so a slow consumer never
// blocks the publishing request.
package events

import "sync"

// Kind identifies the event family a subscriber is interested in.
type Kind string

const (
	ServerChanged  Kind = "server-changed"
	ChannelCreated Kind = "channel-created"
	ChannelUpdated Kind = "channel-updated"
	ChannelDeleted Kind = "channel-deleted"
	SessionRevoked Kind = "session-revoked"
)

// Event carries a kind and an optional subject (profile ID, channel name, or
// session username depending on the kind).
type Event struct {
	Kind    Kind
	Subject string
}

type subscriber struct {
	kinds map[Kind]struct{}
	ch    chan Event
}

// Bus fans events out to subscribers. The zero value is not usable; call New.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
	buffer int
}

// New constructs a Bus whose subscriber channels buffer up to buffer events.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{subs: make(map[int]*subscriber), buffer: buffer}
}

// Subscribe registers interest in the provided kinds (all kinds when empty)
// and returns the delivery channel plus a cancel function. Cancel closes the
// channel and must be called when the consumer is torn down.
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, b.buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, kind := range kinds {
			sub.kinds[kind] = struct{}{}
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every matching subscriber. Delivery is
// best-effort: when a subscriber's buffer is full the event is dropped for
// that subscriber rather than blocking the publisher.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.kinds != nil {
			if _, ok := sub.kinds[event.Kind]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}
