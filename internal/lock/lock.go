// Package lock serializes check-then-write sequences per resource.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bookcore/internal/model"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// context expired.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive per-key locks. The returned unlock func is safe
// to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ResourceKey is the lock key guarding reservations of one resource.
func ResourceKey(business model.BusinessID, resourceID int64) string {
	return fmt.Sprintf("reservation:%d:%d", business, resourceID)
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Entries are dropped once no goroutine
// holds or waits for them.
type Local struct {
	mu   sync.Mutex
	keys map[string]*entry
}

// NewLocal creates an empty keyed mutex.
func NewLocal() *Local {
	return &Local{keys: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
