package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dispatchboard/internal/config"
	"dispatchboard/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStateRepository keeps per-driver session state and the board's read
// markers in Redis. Everything carries a TTL; this is a cache of the day's
// working set, not a system of record.
type RedisStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStateRepository(client *redis.Client, ttl time.Duration) *RedisStateRepository {
	if ttl <= 0 {
		ttl = models.DefaultRedisTTL
	}
	return &RedisStateRepository{
		client: client,
		ttl:    ttl,
	}
}

func driverJobsKey(userID int64) string   { return fmt.Sprintf("driver_jobs:%d", userID) }
func lastSyncKey(userID int64) string     { return fmt.Sprintf("last_sync:%d", userID) }
func readMarkersKey(date time.Time) string {
	return fmt.Sprintf("read_markers:%s", date.Format(models.DateLayout))
}

func (r *RedisStateRepository) GetCachedJobs(ctx context.Context, userID int64) ([]*models.Job, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, driverJobsKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached jobs from redis: %w", err)
	}

	var jobs []*models.Job
	if err := json.Unmarshal([]byte(val), &jobs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached jobs: %w", err)
	}
	return jobs, nil
}

func (r *RedisStateRepository) SetCachedJobs(ctx context.Context, userID int64, jobs []*models.Job) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}

	if err := r.client.Set(ctx, driverJobsKey(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache jobs in redis: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) GetLastSync(ctx context.Context, userID int64) (time.Time, error) {
	if r.client == nil {
		return time.Time{}, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, lastSyncKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync from redis: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last sync stamp: %w", err)
	}
	return at, nil
}

func (r *RedisStateRepository) SetLastSync(ctx context.Context, userID int64, at time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, lastSyncKey(userID), at.Format(time.RFC3339Nano), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set last sync in redis: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) GetReadMarkers(ctx context.Context, date time.Time) (map[int64]bool, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	members, err := r.client.SMembers(ctx, readMarkersKey(date)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get read markers from redis: %w", err)
	}

	markers := make(map[int64]bool, len(members))
	for _, m := range members {
		var id int64
		if _, err := fmt.Sscanf(m, "%d", &id); err == nil {
			markers[id] = true
		}
	}
	return markers, nil
}

// MarkRead adds a job to the date's read set. Re-marking is a no-op, which
// makes the operation idempotent by construction.
func (r *RedisStateRepository) MarkRead(ctx context.Context, date time.Time, jobID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := readMarkersKey(date)
	if err := r.client.SAdd(ctx, key, jobID).Err(); err != nil {
		return fmt.Errorf("failed to mark job read: %w", err)
	}
	r.client.Expire(ctx, key, r.ttl)
	return nil
}

func (r *RedisStateRepository) ClearSession(ctx context.Context, userID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, driverJobsKey(userID), lastSyncKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session from redis: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	rlKey := "rate_limit:" + key
	count, err := r.client.Incr(ctx, rlKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, rlKey, window)
	}

	return count <= int64(limit), nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
