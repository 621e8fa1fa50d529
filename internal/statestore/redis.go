package statestore

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript is a Lua compare-and-delete: the lock is removed only if
// the caller still owns it, preventing a slow holder from deleting a lock
// another process has since acquired.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// extendScript renews the lock's TTL only if the caller still owns it.
const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Redis is the multi-instance StateStore backend: dedup/result use plain
// SET ... EX [NX], locking uses SET NX EX for acquisition and a Lua script
// for compare-and-delete release / compare-and-extend renewal, grounded on
// the original's RedisLock/RedisDedup/RedisResultStore. Connection errors
// are logged and returned: IsSeen/GetResult report "not found" together
// with the error, MarkSeen/SetResult/ExtendLock/ReleaseLock log the
// failure and return it, and TryAcquireLock returns its error unlogged.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing go-redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) IsSeen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, dedupPrefix+key).Result()
	if err != nil {
		log.Printf("[StateStore:redis] is_seen unreachable key=%s err=%v", key, err)
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) MarkSeen(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Set(ctx, dedupPrefix+key, "1", ttl).Err(); err != nil {
		log.Printf("[StateStore:redis] mark_seen unreachable key=%s err=%v", key, err)
		return err
	}
	return nil
}

func (r *Redis) GetResult(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, resultPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		log.Printf("[StateStore:redis] get_result unreachable key=%s err=%v", key, err)
		return "", false, err
	}
	return val, true, nil
}

func (r *Redis) SetResult(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, resultPrefix+key, value, ttl).Err(); err != nil {
		log.Printf("[StateStore:redis] set_result unreachable key=%s err=%v", key, err)
		return err
	}
	return nil
}

func (r *Redis) TryAcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockPrefix+key, token, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Redis) ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	res, err := r.client.Eval(ctx, extendScript, []string{lockPrefix + key}, token, int64(ttl/time.Second)).Result()
	if err != nil {
		log.Printf("[StateStore:redis] extend_lock failed key=%s err=%v", key, err)
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (r *Redis) ReleaseLock(ctx context.Context, key, token string) error {
	if err := r.client.Eval(ctx, releaseScript, []string{lockPrefix + key}, token).Err(); err != nil {
		log.Printf("[StateStore:redis] release_lock failed key=%s err=%v", key, err)
		return err
	}
	return nil
}
