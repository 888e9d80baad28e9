// Package events is a small, typed, in-process event bus. The sync core
// offers status and change notices on it and the playback engine offers its
// commands to the host. Delivery never blocks and is not durable.
package events

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Bus delivers offered values to subscribers registered for their type.
// Subscriptions are typed via generics and Close closes every subscription channel.
type Bus struct {
	mu        sync.RWMutex
	subs      map[reflect.Type]map[uint64]*subscriber
	nextID    atomic.Uint64
	isClosed  atomic.Bool
	closeOnce sync.Once
	dropped   atomic.Uint64
}

type subscriber struct {
	offer func(evt any) bool
	close func()
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[reflect.Type]map[uint64]*subscriber),
	}
}

// Subscribe registers a subscription for events of type T.
//
// If T is an interface, offered events whose concrete type implements T will be delivered.
// For concrete T, events are delivered only when the concrete type matches exactly.
// The returned function unsubscribes and closes the channel.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	eventType := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	if b.isClosed.Load() {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID.Add(1)

	// Senders hold sendMu for reading so the channel is never closed under them.
	var (
		sendMu    sync.RWMutex
		closed    bool
		closeOnce sync.Once
	)
	closeChannel := func() {
		closeOnce.Do(func() {
			sendMu.Lock()
			closed = true
			close(ch)
			sendMu.Unlock()
		})
	}

	var unsubOnce sync.Once
	unsubscribe := func() {
		unsubOnce.Do(func() {
			b.mu.Lock()
			if typeSubs, ok := b.subs[eventType]; ok {
				delete(typeSubs, id)
				if len(typeSubs) == 0 {
					delete(b.subs, eventType)
				}
			}
			b.mu.Unlock()

			closeChannel()
		})
	}

	sub := &subscriber{
		offer: func(evt any) bool {
			v, ok := evt.(T)
			if !ok {
				return false
			}
			sendMu.RLock()
			defer sendMu.RUnlock()
			if closed {
				return false
			}
			select {
			case ch <- v:
				return true
			default:
				return false
			}
		},
		close: closeChannel,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed.Load() {
		closeChannel()
		return ch, func() {}
	}

	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[uint64]*subscriber)
	}
	b.subs[eventType][id] = sub

	return ch, unsubscribe
}

func (b *Bus) targets(evt any) []*subscriber {
	evtType := reflect.TypeOf(evt)

	b.mu.RLock()
	defer b.mu.RUnlock()

	var targets []*subscriber
	for subType, typeSubs := range b.subs {
		match := subType == evtType
		if !match && subType.Kind() == reflect.Interface {
			match = evtType.Implements(subType)
		}
		if !match {
			continue
		}
		for _, s := range typeSubs {
			targets = append(targets, s)
		}
	}
	return targets
}

// Offer delivers evt to every subscriber with buffer space and never blocks.
// It returns the number of subscribers that received it; the rest are counted
// in Dropped. Timer-driven publishers use it so a stalled host cannot stall them.
func (b *Bus) Offer(evt any) int {
	if b == nil || evt == nil || b.isClosed.Load() {
		return 0
	}
	delivered := 0
	for _, s := range b.targets(evt) {
		if s.offer(evt) {
			delivered++
		} else {
			b.dropped.Add(1)
		}
	}
	return delivered
}

// Dropped reports how many deliveries Offer skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes the bus and all subscription channels.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.isClosed.Store(true)

		b.mu.Lock()
		estimated := 0
		for _, typeSubs := range b.subs {
			estimated += len(typeSubs)
		}

		toClose := make([]*subscriber, 0, estimated)
		for _, typeSubs := range b.subs {
			for _, s := range typeSubs {
				toClose = append(toClose, s)
			}
		}
		b.subs = make(map[reflect.Type]map[uint64]*subscriber)
		b.mu.Unlock()

		for _, s := range toClose {
			s.close()
		}
	})
}
