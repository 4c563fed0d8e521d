package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tokostok/backend/internal/domain"
)

const versionKeyPrefix = "tokostok:version:"

// setIfNewer stores ARGV[1] for ARGV[3] ms unless the cached row's generation
// is already at least ARGV[2].
var setIfNewer = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current then
	local ok, row = pcall(cjson.decode, current)
	if ok and (tonumber(row.generation) or 0) >= tonumber(ARGV[2]) then
		return 0
	end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

type RedisVersionCache struct {
	client *redis.Client
}

func NewRedisVersionCache(addr string, password string, db int) *RedisVersionCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisVersionCache{client: client}
}

func (c *RedisVersionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisVersionCache) Close() error {
	return c.client.Close()
}

func versionKey(kind domain.Kind) string {
	return versionKeyPrefix + strconv.Itoa(int(kind))
}

func (c *RedisVersionCache) Get(ctx context.Context, kind domain.Kind) (domain.DataVersion, bool, error) {
	val, err := c.client.Get(ctx, versionKey(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.DataVersion{}, false, nil
	}
	if err != nil {
		return domain.DataVersion{}, false, err
	}

	var version domain.DataVersion
	if err := json.Unmarshal([]byte(val), &version); err != nil {
		return domain.DataVersion{}, false, err
	}
	return version, true, nil
}

func (c *RedisVersionCache) Set(ctx context.Context, version domain.DataVersion, ttl time.Duration) error {
	payload, err := json.Marshal(version)
	if err != nil {
		return err
	}
	return setIfNewer.Run(ctx, c.client,
		[]string{versionKey(version.ID)},
		payload, version.Generation, ttl.Milliseconds(),
	).Err()
}

func (c *RedisVersionCache) Invalidate(ctx context.Context, kind domain.Kind) error {
	return c.client.Del(ctx, versionKey(kind)).Err()
}
