package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig contains configuration options for Redis.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password is the Redis password (empty for no auth)
	Password string

	// DB is the Redis database number (0-15)
	DB int

	// KeyPrefix is prepended to all keys (default: "sitecookie:").
	// typically ends with a colon.
	KeyPrefix string
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}
	return client, nil
}

// closeRedis tolerates a client already closed by another store sharing it.
func closeRedis(client *redis.Client) error {
	if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func redisPrefix(prefix string) string {
	if prefix == "" {
		return "sitecookie:"
	}
	return prefix
}

// RedisGeoCache implements GeoCache using Redis.
// It leverages Redis's native TTL for automatic expiration.
type RedisGeoCache struct {
	client *redis.Client
	prefix string
}

// NewRedisGeoCache creates a geolocation cache from a Redis client and a key prefix.
func NewRedisGeoCache(client *redis.Client, keyPrefix string) *RedisGeoCache {
	return &RedisGeoCache{client: client, prefix: redisPrefix(keyPrefix)}
}

// Get returns the cached value or ErrCacheMiss.
func (c *RedisGeoCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get key: %w", err)
	}
	return value, nil
}

// Set stores value under key for ttl.
func (c *RedisGeoCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set key: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisGeoCache) Close() error {
	return closeRedis(c.client)
}

// RedisBuffer implements PendingBuffer as a Redis list, so several
// processes can feed one flush. A companion key holds the list's generation
// and expires with it; a counter key hands out generations.
type RedisBuffer struct {
	client *redis.Client
	key    string
	genKey string
	seqKey string
}

// NewRedisBuffer creates a pending buffer stored under <prefix>pending.
func NewRedisBuffer(client *redis.Client, keyPrefix string) *RedisBuffer {
	key := redisPrefix(keyPrefix) + "pending"
	return &RedisBuffer{
		client: client,
		key:    key,
		genKey: key + ":gen",
		seqKey: key + ":seq",
	}
}

// KEYS: list, generation, counter. ARGV: payload, ttl in ms.
var appendScript = redis.NewScript(`
local n = redis.call('RPUSH', KEYS[1], ARGV[1])
if n == 1 then
	local gen = redis.call('INCR', KEYS[3])
	redis.call('SET', KEYS[2], gen, 'PX', ARGV[2])
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return n
`)

// KEYS: list, generation. ARGV: expected generation, count.
var drainScript = redis.NewScript(`
if redis.call('GET', KEYS[2]) ~= ARGV[1] then
	return 0
end
redis.call('LTRIM', KEYS[1], ARGV[2], -1)
return 1
`)

// Append pushes the entry to the tail; the first entry starts the TTL and a
// new generation.
func (b *RedisBuffer) Append(ctx context.Context, entry *UsageEntry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: failed to encode entry: %w", err)
	}

	keys := []string{b.key, b.genKey, b.seqKey}
	if err := appendScript.Run(ctx, b.client, keys, payload, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis: failed to append entry: %w", err)
	}
	return nil
}

// Snapshot returns the buffered entries in insertion order with their generation.
func (b *RedisBuffer) Snapshot(ctx context.Context) ([]*UsageEntry, int64, error) {
	var (
		genCmd   *redis.StringCmd
		rangeCmd *redis.StringSliceCmd
	)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		genCmd = pipe.Get(ctx, b.genKey)
		rangeCmd = pipe.LRange(ctx, b.key, 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("redis: failed to read buffer: %w", err)
	}

	var gen int64
	if genCmd.Err() == nil {
		if gen, err = genCmd.Int64(); err != nil {
			return nil, 0, fmt.Errorf("redis: invalid buffer generation: %w", err)
		}
	}

	raw := rangeCmd.Val()
	entries := make([]*UsageEntry, 0, len(raw))
	for _, item := range raw {
		var entry UsageEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, 0, fmt.Errorf("redis: failed to decode entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, gen, nil
}

// Drain removes the first n entries if the list is still at generation gen.
func (b *RedisBuffer) Drain(ctx context.Context, gen int64, n int) error {
	if n <= 0 {
		return nil
	}
	keys := []string{b.key, b.genKey}
	if err := drainScript.Run(ctx, b.client, keys, strconv.FormatInt(gen, 10), n).Err(); err != nil {
		return fmt.Errorf("redis: failed to drain buffer: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (b *RedisBuffer) Close() error {
	return closeRedis(b.client)
}

// RedisSettingsStore implements SettingsStore with one hash per tenant.
type RedisSettingsStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSettingsStore creates a settings store from a Redis client and a key prefix.
func NewRedisSettingsStore(client *redis.Client, keyPrefix string) *RedisSettingsStore {
	return &RedisSettingsStore{client: client, prefix: redisPrefix(keyPrefix)}
}

func (s *RedisSettingsStore) key(tenantID int64) string {
	return s.prefix + "settings:" + strconv.FormatInt(tenantID, 10)
}

// GetExpirations returns the tenant's role -> seconds mapping.
func (s *RedisSettingsStore) GetExpirations(ctx context.Context, tenantID int64) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.key(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to load settings: %w", err)
	}

	out := make(map[string]int64, len(raw))
	for role, v := range raw {
		seconds, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: invalid expiration for role %q: %w", role, err)
		}
		out[role] = seconds
	}
	return out, nil
}

// SetExpirations replaces the tenant's mapping.
func (s *RedisSettingsStore) SetExpirations(ctx context.Context, tenantID int64, expirations map[string]int64) error {
	key := s.key(tenantID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(expirations) > 0 {
			fields := make(map[string]any, len(expirations))
			for role, seconds := range expirations {
				fields[role] = seconds
			}
			pipe.HSet(ctx, key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to save settings: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisSettingsStore) Close() error {
	return closeRedis(s.client)
}
