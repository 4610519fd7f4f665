package reconciliation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brainsait/reconciler/internal/domain"
)

// Locker serializes reconciliation runs that share a (provider, window) key.
// Acquire fails with domain.ErrRunInProgress when the key is already held.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, domain.ErrRunInProgress
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// WindowKey identifies a reconciliation window for locking and de-duplication.
func WindowKey(provider domain.Provider, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s", provider, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
}
