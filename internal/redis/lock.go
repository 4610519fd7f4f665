package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/brainsait/reconciler/internal/domain"
)

// releaseScript deletes the lock only if it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// extendScript pushes the expiry out only if the caller still holds the lock.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// RunLocker serializes reconciliation windows across instances with SET NX.
// The TTL bounds how long a crashed holder can block a window; a live holder
// renews it every third of the TTL until it releases.
type RunLocker struct {
	client *Client
	ttl    time.Duration
}

func NewRunLocker(c *Client, ttl time.Duration) *RunLocker {
	return &RunLocker{client: c, ttl: ttl}
}

func (l *RunLocker) lockKey(key string) string {
	return l.client.prefixKey("lock:reconcile:" + key)
}

// Acquire takes the lock for key. It returns domain.ErrRunInProgress when
// another holder has it.
func (l *RunLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := l.lockKey(key)
	token := uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrRunInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, l.ttl/3, func() (bool, error) {
			return l.extend(ctx, lockKey, token)
		}, l.client.log.With().Str("key", lockKey).Logger())
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// The run may have been cancelled; the lock must still be released.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client.rdb, []string{lockKey}, token).Err(); err != nil {
				l.client.log.Warn().Err(err).Str("key", lockKey).Msg("release lock")
			}
		})
	}, nil
}

// extend resets the TTL of a held lock. It reports false once the lock has
// expired or passed to another holder.
func (l *RunLocker) extend(ctx context.Context, lockKey, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.ttl/3)
	defer cancel()

	n, err := extendScript.Run(ctx, l.client.rdb, []string{lockKey}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// keepAlive calls extend every interval until stop is closed or the lock is
// reported lost. Failed calls are retried on the next tick.
func keepAlive(stop <-chan struct{}, interval time.Duration, extend func() (bool, error), log zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := extend()
			if err != nil {
				log.Warn().Err(err).Msg("extend lock")
				continue
			}
			if !held {
				log.Error().Msg("lock lost before release")
				return
			}
		}
	}
}
