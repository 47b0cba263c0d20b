package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker is a process-local implementation of app.Locker with expiring leases.
type Locker struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]lease
}

type lease struct {
	token     string
	expiresAt time.Time
}

func NewLocker() *Locker {
	return &Locker{now: time.Now, locks: make(map[string]lease)}
}

func (l *Locker) TryAcquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if current, ok := l.locks[key]; ok && current.expiresAt.After(now) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.locks[key] = lease{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Release frees key only if token still holds it.
func (l *Locker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if current, ok := l.locks[key]; ok && current.token == token {
		delete(l.locks, key)
	}
	return nil
}
