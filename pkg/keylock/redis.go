package keylock

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	goredis "github.com/redis/go-redis/v9"
)

// Redis is a Locker for multi-process deployments. Each key is a SET NX
// with a TTL holding a random token; release deletes only if the token
// still matches.
type Redis struct {
	rdb          goredis.UniversalClient
	prefix       string
	ttl          time.Duration
	waitInterval time.Duration
	waitJitter   time.Duration
}

type RedisParams struct {
	Client       goredis.UniversalClient
	Prefix       string
	TTL          time.Duration
	WaitInterval time.Duration
	WaitJitter   time.Duration
}

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedis(params RedisParams) *Redis {
	if params.Prefix == "" {
		params.Prefix = "hazgraph:lock:"
	}
	if params.TTL <= 0 {
		params.TTL = 30 * time.Second
	}
	if params.WaitInterval <= 0 {
		params.WaitInterval = 50 * time.Millisecond
	}
	if params.WaitJitter < 0 {
		params.WaitJitter = 0
	}
	return &Redis{
		rdb:          params.Client,
		prefix:       params.Prefix,
		ttl:          params.TTL,
		waitInterval: params.WaitInterval,
		waitJitter:   params.WaitJitter,
	}
}

func (r *Redis) LockKeys(ctx context.Context, keys []string) (func(), error) {
	return lockEach(ctx, keys, r.lock)
}

func (r *Redis) lock(ctx context.Context, key string) (func(), error) {
	token, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	redisKey := r.prefix + key
	for {
		ok, err := r.rdb.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if err := sleepWithJitter(ctx, r.waitInterval, r.waitJitter); err != nil {
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.rdb, []string{redisKey}, token).Err()
		})
	}, nil
}
