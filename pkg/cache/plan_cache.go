// Package cache provides a two-tier read-through cache for plan limits: an
// in-process LRU in front of Redis. Both tiers are optional and every cache
// failure falls through to the loader, so a cache outage degrades to direct
// database reads.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/crewdesk/crewdesk/pkg/billing"
	"github.com/crewdesk/crewdesk/pkg/observability"
)

const (
	planCacheType = "plan_limits"
	defaultSize   = 1024
)

// Loader fetches plan limits on a cache miss
type Loader func(ctx context.Context) (*billing.PlanLimits, error)

// PlanCache caches per-workspace plan limits. redis may be nil for
// single-node deployments; the LRU tier alone still applies.
type PlanCache struct {
	lru     *expirable.LRU[int64, *billing.PlanLimits]
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewPlanCache creates a plan-limits cache with the given L1 size and TTL.
// Both tiers share the TTL so an upgrade is visible everywhere within one
// TTL window.
func NewPlanCache(client *redis.Client, size int, ttl time.Duration, metrics *observability.Metrics, logger *observability.Logger) *PlanCache {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PlanCache{
		lru:     expirable.NewLRU[int64, *billing.PlanLimits](size, nil, ttl),
		redis:   client,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// GetPlanLimits returns the cached limits for a workspace, loading and
// populating both tiers on a miss
func (c *PlanCache) GetPlanLimits(ctx context.Context, workspaceID int64, load Loader) (*billing.PlanLimits, error) {
	if limits, ok := c.lru.Get(workspaceID); ok {
		c.countHit("l1")
		return limits, nil
	}
	c.countMiss("l1")

	if limits := c.redisGet(ctx, workspaceID); limits != nil {
		c.countHit("l2")
		c.lru.Add(workspaceID, limits)
		return limits, nil
	}
	c.countMiss("l2")

	limits, err := load(ctx)
	if err != nil {
		return nil, err
	}

	c.lru.Add(workspaceID, limits)
	c.redisSet(ctx, workspaceID, limits)
	return limits, nil
}

// Invalidate drops the workspace's entry from both tiers; call it when the
// owner's subscription changes
func (c *PlanCache) Invalidate(ctx context.Context, workspaceID int64) {
	c.lru.Remove(workspaceID)
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, planKey(workspaceID)).Err(); err != nil {
		c.warn(err, "failed to invalidate plan cache entry")
	}
}

func (c *PlanCache) redisGet(ctx context.Context, workspaceID int64) *billing.PlanLimits {
	if c.redis == nil {
		return nil
	}
	raw, err := c.redis.Get(ctx, planKey(workspaceID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.warn(err, "plan cache read failed")
		}
		return nil
	}
	limits := &billing.PlanLimits{}
	if err := json.Unmarshal(raw, limits); err != nil {
		c.warn(err, "plan cache entry malformed")
		return nil
	}
	return limits
}

func (c *PlanCache) redisSet(ctx context.Context, workspaceID int64, limits *billing.PlanLimits) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(limits)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, planKey(workspaceID), raw, c.ttl).Err(); err != nil {
		c.warn(err, "plan cache write failed")
	}
}

func planKey(workspaceID int64) string {
	return fmt.Sprintf("crewdesk:plan_limits:%d", workspaceID)
}

func (c *PlanCache) countHit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(planCacheType, tier).Inc()
	}
}

func (c *PlanCache) countMiss(tier string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(planCacheType, tier).Inc()
	}
}

func (c *PlanCache) warn(err error, msg string) {
	if c.logger != nil {
		c.logger.WithError(err).Warn(msg)
	}
}
