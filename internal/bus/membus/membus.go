// Package membus is an in-process implementation of bus.Bus. Tests use it
// to run workers and the relay against each other without a NATS server.
package membus

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/previewer/internal/bus"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

// Bus fans published payloads out to pattern subscriptions.
//
// Publish blocks until every matching subscriber accepted the message or ctx
// is canceled, so a slow subscriber applies backpressure to publishers.
type Bus struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscriber
	nextID    atomic.Uint64
	isClosed  atomic.Bool
	closeOnce sync.Once
	buffer    int
}

type subscriber struct {
	pattern string
	ch      chan bus.Message
	once    sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// New returns a bus whose subscription channels hold buffer messages.
func New(buffer int) *Bus {
	return &Bus{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// PSubscribe implements bus.PatternSubscriber.
func (b *Bus) PSubscribe(ctx context.Context, pattern string) (<-chan bus.Message, func(), error) {
	if pattern == "" {
		return nil, nil, ferrors.ValidationError("subscription pattern cannot be empty").Build()
	}
	sub := &subscriber{pattern: pattern, ch: make(chan bus.Message, b.buffer)}

	b.mu.Lock()
	if b.isClosed.Load() {
		b.mu.Unlock()
		return nil, nil, ferrors.BusError("bus is closed").Build()
	}
	id := b.nextID.Add(1)
	b.subs[id] = sub
	b.mu.Unlock()

	var unsubOnce sync.Once
	unsubscribe := func() {
		unsubOnce.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
	return sub.ch, unsubscribe, nil
}

// Publish implements bus.Publisher.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.isClosed.Load() {
		return ferrors.BusError("bus is closed").WithContext("channel", channel).Build()
	}
	msg := bus.Message{Channel: channel, Payload: slices.Clone(payload)}

	// Sending under the read lock keeps unsubscribe (which takes the write
	// lock before closing) from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !bus.Match(s.pattern, channel) {
			continue
		}
		select {
		case s.ch <- msg:
		case <-ctx.Done():
			return ferrors.WrapError(ctx.Err(), ferrors.CategoryBus, "publish canceled").
				WithContext("channel", channel).Build()
		}
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes the bus and every subscription channel. Safe to call repeatedly.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.isClosed.Store(true)
		b.mu.Lock()
		subs := b.subs
		b.subs = make(map[uint64]*subscriber)
		b.mu.Unlock()
		for _, s := range subs {
			s.close()
		}
	})
	return nil
}

// NopCloser wraps a shared Bus so that Close on the wrapper leaves the
// underlying bus open. A worker closes its publisher when it finishes; in a
// shared process that must not tear down the relay's subscription.
func NopCloser(b *Bus) bus.Publisher { return nopCloser{b} }

type nopCloser struct{ *Bus }

func (nopCloser) Close() error { return nil }
