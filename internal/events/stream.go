package events

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/kode4food/vantage/closer"
	"github.com/kode4food/vantage/internal/sync/channel"
	"github.com/kode4food/vantage/message"
)

type (
	// Coalescer folds the next published message into a subscriber's
	// pending queue. It is the mechanism by which a slow consumer sees
	// the latest state of a key rather than an unbounded backlog
	Coalescer[Msg any] func(pending []Msg, next Msg) []Msg

	// Stream fans published messages out to any number of independent
	// subscribers. Each subscriber owns a pending queue managed by the
	// Stream's Coalescer and drains it over a channel at its own pace
	Stream[Msg any] struct {
		coalesce Coalescer[Msg]
		subs     map[uuid.UUID]*subscriber[Msg]
		mu       sync.RWMutex
	}

	subscriber[Msg any] struct {
		closer.Closer
		id      uuid.UUID
		ready   *channel.ReadyWait
		channel chan Msg
		mu      sync.Mutex
		pending []Msg
	}
)

// Make instantiates a new Stream whose subscribers queue pending messages
// according to the provided Coalescer
func Make[Msg any](c Coalescer[Msg]) *Stream[Msg] {
	return &Stream[Msg]{
		coalesce: c,
		subs:     map[uuid.UUID]*subscriber[Msg]{},
	}
}

// Appended is a Coalescer that performs no coalescing at all
func Appended[Msg any]() Coalescer[Msg] {
	return func(pending []Msg, next Msg) []Msg {
		return append(pending, next)
	}
}

// LatestByKey is a Coalescer that retains only the latest pending message
// per key, preserving the arrival order of first appearance
func LatestByKey[Msg any](key func(Msg) string) Coalescer[Msg] {
	return func(pending []Msg, next Msg) []Msg {
		k := key(next)
		for i, m := range pending {
			if key(m) == k {
				pending[i] = next
				return pending
			}
		}
		return append(pending, next)
	}
}

// Publish folds a message into every subscriber's pending queue and wakes
// the subscribers up. Publish never blocks on a slow subscriber
func (s *Stream[Msg]) Publish(m Msg) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		sub.push(s.coalesce, m)
	}
}

// Subscribe registers a new independent subscriber with the Stream
func (s *Stream[Msg]) Subscribe() message.ClosingReceiver[Msg] {
	sub := &subscriber[Msg]{
		id:    uuid.New(),
		ready: channel.MakeReadyWait(),
	}
	sub.Closer = closer.Make(func() {
		sub.ready.Close()
		s.remove(sub.id)
	})
	sub.channel = startSubscriber(sub)
	runtime.SetFinalizer(sub, subscriberDebugFinalizer[Msg])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.id] = sub
	return sub
}

// Close closes every subscriber of the Stream
func (s *Stream[Msg]) Close() {
	s.mu.RLock()
	subs := make([]*subscriber[Msg], 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func (s *Stream[Msg]) remove(i uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, i)
}

func (s *subscriber[Msg]) Receive() <-chan Msg {
	return s.channel
}

func (s *subscriber[Msg]) push(c Coalescer[Msg], m Msg) {
	s.mu.Lock()
	s.pending = c(s.pending, m)
	s.mu.Unlock()
	s.ready.Notify()
}

func (s *subscriber[Msg]) next() (Msg, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		var zero Msg
		return zero, false
	}
	m := s.pending[0]
	s.pending = s.pending[1:]
	return m, true
}

func startSubscriber[Msg any](s *subscriber[Msg]) chan Msg {
	ch := make(chan Msg)
	go func() {
		for {
			select {
			case <-s.IsClosed():
				goto closed
			default:
				if m, ok := s.next(); ok {
					select {
					case <-s.IsClosed():
						goto closed
					case ch <- m:
					}
				} else {
					// Wait for something to happen
					select {
					case <-s.IsClosed():
						goto closed
					case <-s.ready.Wait():
					}
				}
			}
		}
	closed:
		close(ch)
	}()
	return ch
}

func subscriberDebugFinalizer[Msg any](s *subscriber[Msg]) {
	select {
	case <-s.IsClosed():
	default:
		slog.Debug("subscriber not closed before garbage collection",
			"id", s.id,
		)
	}
}
