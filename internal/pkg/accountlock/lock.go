// Package accountlock serializes work on one account. Callers in the same
// process queue on a local slot; other instances are kept out by a Redis
// claim on the same key.
package accountlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// ErrBusy is returned when another instance holds the claim.
var ErrBusy = errors.New("account is busy")

// Claimer is satisfied by repository.ClaimRepository.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type slot struct {
	ch   chan struct{}
	refs int
}

type Locker struct {
	claims Claimer
	ttl    time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

// New returns a Locker. A nil claimer restricts locking to this process.
func New(claims Claimer, ttl time.Duration) *Locker {
	return &Locker{claims: claims, ttl: ttl, slots: make(map[string]*slot)}
}

// Acquire waits for the local slot of key and then takes the shared claim.
// The returned func releases both. When Redis cannot be reached the local
// slot alone is held and a warning is logged.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	s := l.ref(key)
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	}

	unlock := func() {
		<-s.ch
		l.unref(key)
	}
	if l.claims == nil {
		return unlock, nil
	}

	ok, err := l.claims.Claim(ctx, key, l.ttl)
	if err != nil {
		log.Warnf("[AccountLock] Claim %s unavailable, continuing with local lock: %v", key, err)
		return unlock, nil
	}
	if !ok {
		unlock()
		return nil, ErrBusy
	}
	return func() {
		if err := l.claims.Release(context.Background(), key); err != nil {
			log.Warnf("[AccountLock] Release %s failed: %v", key, err)
		}
		unlock()
	}, nil
}

func (l *Locker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Locker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.slots[key]; s != nil {
		s.refs--
		if s.refs == 0 {
			delete(l.slots, key)
		}
	}
}
