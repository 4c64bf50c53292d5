// Package keyqueue serializes asynchronous operations that share a key.
// Operations for the same key run strictly one after another in submission
// order; operations for different keys run fully concurrently. A key's
// bookkeeping is dropped as soon as its last pending operation finishes, so
// idle keys cost nothing.
package keyqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

type chain struct {
	pending int
	tail    chan struct{}
}

type Queue struct {
	mu     sync.Mutex
	chains map[string]*chain
}

func New() *Queue {
	return &Queue{chains: make(map[string]*chain)}
}

// Do runs op after every previously submitted operation for key has
// finished. The error (or recovered panic) of op is returned to this caller
// only; it never blocks or poisons the chain for later submissions.
func (q *Queue) Do(ctx context.Context, key string, op func(ctx context.Context) error) error {
	q.mu.Lock()
	c, ok := q.chains[key]
	if !ok {
		c = &chain{}
		q.chains[key] = c
	}
	prev := c.tail
	done := make(chan struct{})
	c.tail = done
	c.pending++
	q.mu.Unlock()

	if prev != nil {
		<-prev
	}

	err := run(ctx, op)
	close(done)

	q.mu.Lock()
	c.pending--
	if c.pending == 0 {
		delete(q.chains, key)
	}
	q.mu.Unlock()

	return err
}

// Pending reports how many operations are queued or running for key.
func (q *Queue) Pending(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if c, ok := q.chains[key]; ok {
		return c.pending
	}
	return 0
}

func run(ctx context.Context, op func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "keyqueue").Any("panic", r).Msg("queued operation panicked")
			err = fmt.Errorf("queued operation panicked: %v", r)
		}
	}()
	return op(ctx)
}

// Single is the unkeyed variant: one global chain guarding a single
// resource.
type Single struct {
	q Queue
}

func NewSingle() *Single {
	return &Single{q: Queue{chains: make(map[string]*chain)}}
}

func (s *Single) Do(ctx context.Context, op func(ctx context.Context) error) error {
	return s.q.Do(ctx, "", op)
}
