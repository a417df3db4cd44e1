package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
)

// LatestSampleTTL bounds how long a cached position stays servable. A
// sample older than this is treated as stale by readers anyway, so there
// is no point keeping it around.
const LatestSampleTTL = 60 * time.Second

// TrackingCache keeps the most recent tracking sample per request in
// Redis so tracking readouts skip Postgres on the hot path. All methods
// degrade to a no-op / miss when constructed with a nil client.
type TrackingCache struct {
	client *redis.Client
}

func NewTrackingCache(client *redis.Client) *TrackingCache {
	return &TrackingCache{client: client}
}

func trackingKey(requestID string) string {
	return "tracking:latest:" + requestID
}

// SetLatest overwrites the cached sample for a request.
func (c *TrackingCache) SetLatest(ctx context.Context, requestID string, sample model.TrackingSample) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("cache sample: marshal: %w", err)
	}
	if err := c.client.Set(ctx, trackingKey(requestID), data, LatestSampleTTL).Err(); err != nil {
		return fmt.Errorf("cache sample: %w", err)
	}
	return nil
}

// Latest returns the cached sample, or nil on a miss.
func (c *TrackingCache) Latest(ctx context.Context, requestID string) (*model.TrackingSample, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, trackingKey(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cached sample: %w", err)
	}
	var sample model.TrackingSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, fmt.Errorf("read cached sample: decode: %w", err)
	}
	return &sample, nil
}

// Invalidate drops the cached sample when tracking ends.
func (c *TrackingCache) Invalidate(ctx context.Context, requestID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, trackingKey(requestID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached sample: %w", err)
	}
	return nil
}
