// Package notify is a publish/subscribe registry keyed by string. Each key
// owns an ordered delivery group: subscribers first receive an initial value
// (fetched asynchronously), then every value published after they joined, in
// publish order, with values published during the initial fetch buffered
// rather than dropped. A key's group, including its cached last value, is
// garbage-collected when its final subscriber cancels.
package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog/log"
)

type Hub[T any] struct {
	mu     sync.Mutex
	groups map[string]*group[T]
}

type group[T any] struct {
	// mu serializes publishes and membership changes for one key, so a
	// second publish never starts dispatching before the first finished.
	mu      sync.Mutex
	subs    *xsync.Map[uint64, *subscriber[T]]
	nextID  atomic.Uint64
	count   int
	last    T
	hasLast bool
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{groups: make(map[string]*group[T])}
}

// Subscribe registers fn for key and returns a cancel function. The initial
// callback supplies the first delivered value; it may be slow (a store
// read). A nil initial replays the group's cached last value, if any. An
// initial fetch error is fatal for this subscriber only.
func (h *Hub[T]) Subscribe(ctx context.Context, key string, initial func(ctx context.Context) (T, error), fn func(T)) func() {
	h.mu.Lock()
	g, ok := h.groups[key]
	if !ok {
		g = &group[T]{subs: xsync.NewMap[uint64, *subscriber[T]]()}
		h.groups[key] = g
	}
	g.count++
	h.mu.Unlock()

	id := g.nextID.Add(1)
	sub := &subscriber[T]{fn: fn, wake: make(chan struct{}, 1)}

	g.mu.Lock()
	if initial == nil && g.hasLast {
		last := g.last
		initial = func(context.Context) (T, error) { return last, nil }
	}
	g.subs.Store(id, sub)
	g.mu.Unlock()

	go sub.loop(ctx, key, initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.subs.Delete(id)
			g.mu.Unlock()
			sub.stop()

			h.mu.Lock()
			g.count--
			if g.count == 0 {
				delete(h.groups, key)
			}
			h.mu.Unlock()
		})
	}
}

// Publish delivers v to every current subscriber of key, in publish order.
// Publishing to a key nobody watches is a no-op.
func (h *Hub[T]) Publish(key string, v T) {
	h.mu.Lock()
	g, ok := h.groups[key]
	h.mu.Unlock()
	if !ok {
		return
	}

	g.mu.Lock()
	g.last = v
	g.hasLast = true
	g.subs.Range(func(_ uint64, sub *subscriber[T]) bool {
		sub.enqueue(v)
		return true
	})
	g.mu.Unlock()
}

// Last returns the most recently published value for key, if the key still
// has a live group.
func (h *Hub[T]) Last(key string) (T, bool) {
	h.mu.Lock()
	g, ok := h.groups[key]
	h.mu.Unlock()
	if !ok {
		var zero T
		return zero, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.hasLast
}

// subscriber owns an unbounded queue drained by a single goroutine, so fn
// invocations for one subscriber never interleave or reorder.
type subscriber[T any] struct {
	fn   func(T)
	wake chan struct{}

	mu    sync.Mutex
	queue []T
	dead  bool
}

func (s *subscriber[T]) enqueue(v T) {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) stop() {
	s.mu.Lock()
	s.dead = true
	s.queue = nil
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) loop(ctx context.Context, key string, initial func(ctx context.Context) (T, error)) {
	if initial != nil {
		v, err := initial(ctx)
		if err != nil {
			log.Warn().Err(err).Str("module", "notify").Str("key", key).Msg("initial value fetch failed, dropping subscriber")
			s.mu.Lock()
			s.dead = true
			s.queue = nil
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		if s.dead {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.fn(v)
	}

	for {
		for {
			s.mu.Lock()
			if s.dead {
				s.mu.Unlock()
				return
			}
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			v := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.fn(v)
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}
	}
}
