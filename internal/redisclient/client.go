package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"course-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/seat_reserve.lua
var seatReserveScript string

//go:embed scripts/seat_release.lua
var seatReleaseScript string

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(seatReserveScript),
		releaseScript: redis.NewScript(seatReleaseScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ReserveSeat atomically claims one company seat using a Lua script.
// Returns true when a seat was claimed, false when the limit is reached.
// A missing hash is reported as an error so callers fall back to the database.
func (c *Client) ReserveSeat(ctx context.Context, companyID int64) (bool, error) {
	key := fmt.Sprintf("seats:%d", companyID)

	result, err := c.reserveScript.Run(ctx, c.rdb, []string{key}).Result()
	if err != nil {
		return false, fmt.Errorf("seat reserve script failed: %w", err)
	}

	status, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	if status == -1 {
		return false, fmt.Errorf("seat hash not initialized for company %d", companyID)
	}

	return status == 1, nil
}

// ReleaseSeat returns a claimed seat (compensation when the invite write fails)
func (c *Client) ReleaseSeat(ctx context.Context, companyID int64) error {
	key := fmt.Sprintf("seats:%d", companyID)

	_, err := c.releaseScript.Run(ctx, c.rdb, []string{key}).Result()
	if err != nil {
		return fmt.Errorf("seat release script failed: %w", err)
	}

	return nil
}

// InitSeats initializes the seat hash for a company
func (c *Client) InitSeats(ctx context.Context, companyID int64, limit, used int) error {
	key := fmt.Sprintf("seats:%d", companyID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "limit", limit)
	pipe.HSet(ctx, key, "used", used)

	_, err := pipe.Exec(ctx)
	return err
}

// GetCachedProgress retrieves cached course progress for a learner.
// Returns nil on a cache miss.
func (c *Client) GetCachedProgress(ctx context.Context, learnerID, courseID int64) (*models.CourseProgress, error) {
	key := progressKey(learnerID, courseID)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var progress models.CourseProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("failed to decode cached progress: %w", err)
	}
	return &progress, nil
}

// SetCachedProgress stores course progress with a TTL
func (c *Client) SetCachedProgress(ctx context.Context, learnerID, courseID int64, progress *models.CourseProgress, ttl time.Duration) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, progressKey(learnerID, courseID), data, ttl).Err()
}

// InvalidateProgress drops the cached progress after a completion toggle
func (c *Client) InvalidateProgress(ctx context.Context, learnerID, courseID int64) error {
	return c.rdb.Del(ctx, progressKey(learnerID, courseID)).Err()
}

func progressKey(learnerID, courseID int64) string {
	return fmt.Sprintf("progress:%d:%d", learnerID, courseID)
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
