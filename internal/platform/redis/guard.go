package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SubmissionGuard is a per-user mutual exclusion lock shared across
// instances. A holder that crashes frees the lock when the TTL lapses.
type SubmissionGuard struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewSubmissionGuard(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *SubmissionGuard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &SubmissionGuard{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Acquire returns a release func when the lock was taken, or ok=false when
// another submission holds it.
func (g *SubmissionGuard) Acquire(ctx context.Context, userID string) (release func(), ok bool, err error) {
	if g == nil || g.rdb == nil {
		return func() {}, true, nil
	}
	k := key(g.prefix, "submit", userID)
	token := uuid.NewString()
	ok, err = g.rdb.SetNX(ctx, k, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire submission guard: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func() {
		// The lock must be freed even if the request context is gone.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, g.rdb, []string{k}, token).Err()
	}
	return release, true, nil
}
