package directory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds directory (Redis) connection configuration.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Directory is the Redis-backed implementation of the shared presence
// directory: vnode ownership, vnode load, and the user->instance cache.
type Directory struct {
	client *redis.Client
}

// New creates a Directory backed by a Redis client with connection pooling
// tuned for the small, frequent reads/writes this service performs.
func New(cfg Config) (*Directory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping directory store: %w", err)
	}

	return &Directory{client: client}, nil
}

// Close releases the underlying Redis connection.
func (d *Directory) Close() error {
	return d.client.Close()
}

// GetOwners returns a snapshot of the full vnode->instance ownership map.
func (d *Directory) GetOwners(ctx context.Context) (map[int]string, error) {
	return d.getIntStringHash(ctx, ownersKey)
}

// PutOwners merges partial into the owners namespace and refreshes the
// namespace TTL. A partial-map write must not erase unrelated entries,
// so this is implemented as per-field HSET, never a key replace.
func (d *Directory) PutOwners(ctx context.Context, partial map[int]string, ttl time.Duration) error {
	return d.putIntStringHash(ctx, ownersKey, partial, ttl)
}

// DeleteOwners atomically removes the given vnode ids from the owners
// namespace. Used on instance unregister.
func (d *Directory) DeleteOwners(ctx context.Context, vnodes []int) error {
	if len(vnodes) == 0 {
		return nil
	}
	fields := make([]string, len(vnodes))
	for i, v := range vnodes {
		fields[i] = strconv.Itoa(v)
	}
	return d.client.HDel(ctx, ownersKey, fields...).Err()
}

// OwnersTTL returns the remaining TTL on the owners namespace, for tests
// and operators verifying that heartbeats are keeping ownership fresh.
func (d *Directory) OwnersTTL(ctx context.Context) (time.Duration, error) {
	return d.client.TTL(ctx, ownersKey).Result()
}

// LoadsTTL returns the remaining TTL on the loads namespace.
func (d *Directory) LoadsTTL(ctx context.Context) (time.Duration, error) {
	return d.client.TTL(ctx, loadsKey).Result()
}

// GetLoads returns a snapshot of the full vnode->load map.
func (d *Directory) GetLoads(ctx context.Context) (map[int]int, error) {
	raw, err := d.getIntStringHash(ctx, loadsKey)
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(raw))
	for vnode, s := range raw {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			continue
		}
		out[vnode] = n
	}
	return out, nil
}

// PutLoads merges partial into the loads namespace and refreshes its TTL.
func (d *Directory) PutLoads(ctx context.Context, partial map[int]int, ttl time.Duration) error {
	strs := make(map[int]string, len(partial))
	for vnode, load := range partial {
		strs[vnode] = strconv.Itoa(load)
	}
	return d.putIntStringHash(ctx, loadsKey, strs, ttl)
}

// GetUserInstance returns the cached owning instance for a user, or "" if
// the cache entry is absent or expired.
func (d *Directory) GetUserInstance(ctx context.Context, userID string) (string, error) {
	val, err := d.client.Get(ctx, userKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user cache entry: %w", err)
	}
	return val, nil
}

// PutUserInstance writes the user->instance routing cache entry. This is a
// fire-and-forget cache set: callers should log, not fail the request, on
// error.
func (d *Directory) PutUserInstance(ctx context.Context, userID, instanceID string, ttl time.Duration) error {
	return d.client.Set(ctx, userKey(userID), instanceID, ttl).Err()
}

func (d *Directory) getIntStringHash(ctx context.Context, key string) (map[int]string, error) {
	raw, err := d.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	out := make(map[int]string, len(raw))
	for field, val := range raw {
		vnode, convErr := strconv.Atoi(field)
		if convErr != nil {
			continue
		}
		out[vnode] = val
	}
	return out, nil
}

func (d *Directory) putIntStringHash(ctx context.Context, key string, partial map[int]string, ttl time.Duration) error {
	if len(partial) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(partial))
	for vnode, val := range partial {
		fields[strconv.Itoa(vnode)] = val
	}

	pipe := d.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
