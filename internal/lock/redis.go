package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// refreshScript extends the lease only if we still own it.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Redis is a lease-based lock stored under a single key. The lease is
// refreshed while held so a long scan keeps it; a crashed holder loses it
// after ttl.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	retry  time.Duration
	local  *Local
	logger *slog.Logger
}

// NewRedis creates a lock on key. ttl bounds how long a crashed holder
// blocks others.
func NewRedis(client redis.UniversalClient, key string, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client: client,
		key:    key,
		ttl:    ttl,
		retry:  250 * time.Millisecond,
		local:  NewLocal(),
		logger: logger,
	}
}

// Acquire implements Locker. Waiters in the same process queue on a local
// lock first so only one of them polls Redis.
func (r *Redis) Acquire(ctx context.Context) (func(), error) {
	releaseLocal, err := r.local.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
		if err != nil {
			releaseLocal()
			return nil, fmt.Errorf("failed to acquire lock %q: %w", r.key, err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			releaseLocal()
			return nil, ctx.Err()
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
				r.logger.Warn("failed to release lock", "key", r.key, "error", err)
			}
			releaseLocal()
		})
	}, nil
}

func (r *Redis) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := refreshScript.Run(ctx, r.client, []string{r.key}, token, r.ttl.Milliseconds()).Err()
			cancel()
			if err != nil {
				r.logger.Warn("failed to refresh lock", "key", r.key, "error", err)
			}
		}
	}
}
