// Package eventbus delivers events to subscribers synchronously and in
// publish order.
package eventbus

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Bus is an ordered publish/subscribe bus. Publish blocks until every
// subscriber has handled the event; concurrent publishers are serialized.
type Bus[T any] struct {
	dispatchMu sync.Mutex

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription[T]

	logger *zap.Logger
}

// Subscription is a handle for one registered handler.
type Subscription[T any] struct {
	id      uint64
	bus     *Bus[T]
	handler func(T)
	active  atomic.Bool
}

func New[T any](logger *zap.Logger) *Bus[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus[T]{
		subs:   make(map[uint64]*Subscription[T]),
		logger: logger,
	}
}

// Subscribe registers handler for all future events.
func (b *Bus[T]) Subscribe(handler func(T)) *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription[T]{id: b.nextID, bus: b, handler: handler}
	sub.active.Store(true)
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the handler. It is safe to call more than once and
// from inside a handler.
func (s *Subscription[T]) Unsubscribe() {
	if s == nil || !s.active.CompareAndSwap(true, false) {
		return
	}
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
}

// Publish hands event to every active subscriber in subscription order.
func (b *Bus[T]) Publish(event T) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	for _, sub := range b.snapshot() {
		if !sub.active.Load() {
			continue
		}
		b.deliver(sub, event)
	}
}

// Len returns the number of active subscriptions.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus[T]) snapshot() []*Subscription[T] {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Subscription[T], 0, len(b.subs))
	for _, sub := range b.subs {
		out = append(out, sub)
	}
	slices.SortFunc(out, func(a, c *Subscription[T]) int {
		return cmp.Compare(a.id, c.id)
	})
	return out
}

func (b *Bus[T]) deliver(sub *Subscription[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", zap.Uint64("subscription", sub.id), zap.Any("recover", r))
		}
	}()
	sub.handler(event)
}
