// Package jobs runs the scheduled escrow jobs. Each run holds a redis lock
// so that only one worker instance executes a given job at a time.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLocked means another instance holds the job lock.
var ErrLocked = errors.New("job lock held elsewhere")

type Locker interface {
	// Acquire takes the named lock for at most ttl. The returned release is
	// safe to call after the lock expired.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	owner  string
}

// NewRedisLocker identifies this process by owner (host name plus pid is enough).
func NewRedisLocker(client *redis.Client, owner string) *RedisLocker {
	return &RedisLocker{client: client, owner: owner}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	key := "jobs:lock:" + name
	ok, err := l.client.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, l.owner).Err()
	}, nil
}
