package knowledge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/japaniel/sieve/pkg/metrics"
)

// DefaultLifetime is how long a snapshot is served before a rebuild.
const DefaultLifetime = 30 * time.Minute

// Builder produces a snapshot; *Aggregator is the production Builder.
type Builder interface {
	Build(ctx context.Context, prev *Snapshot) (*Snapshot, error)
}

// Cache holds the current snapshot of one language. Only one rebuild runs
// at a time; callers arriving during a rebuild get the previous snapshot.
type Cache struct {
	builder  Builder
	lifetime time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu        sync.RWMutex
	snap      *Snapshot
	checkedAt time.Time

	building atomic.Bool
	group    singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// NewCache returns an empty cache. A non-positive lifetime means DefaultLifetime.
func NewCache(b Builder, lifetime time.Duration, opts ...CacheOption) *Cache {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	c := &Cache{builder: b, lifetime: lifetime, log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached snapshot, rebuilding it when it is older than the
// lifetime. The first call always builds.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	snap, at := c.snap, c.checkedAt
	c.mu.RUnlock()

	if snap != nil {
		if c.now().Sub(at) <= c.lifetime {
			c.metrics.Cache("hit")
			return snap, nil
		}
		if c.building.Load() {
			c.metrics.Cache("stale")
			return snap, nil
		}
	}
	c.metrics.Cache("miss")
	return c.refresh(ctx)
}

// Refresh rebuilds now, e.g. after an import or an override change. It joins
// a rebuild already in flight instead of starting another.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	return c.refresh(ctx)
}

// Invalidate makes the next Get rebuild. The current snapshot keeps being
// served to callers that arrive while that rebuild runs.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.checkedAt = time.Time{}
	c.mu.Unlock()
}

// Peek returns the current snapshot without building; nil before the first build.
func (c *Cache) Peek() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	// The build outlives a caller that stops waiting for it.
	ctx = context.WithoutCancel(ctx)
	v, err, _ := c.group.Do("snapshot", func() (interface{}, error) {
		c.building.Store(true)
		defer c.building.Store(false)

		prev := c.Peek()
		snap, err := c.builder.Build(ctx, prev)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.checkedAt = c.now()
		if err != nil {
			if prev != nil {
				c.log.Warn("snapshot rebuild failed, serving previous", zap.Error(err))
				return prev, nil
			}
			return nil, err
		}
		c.snap = snap
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, prev *Snapshot) (*Snapshot, error)

func (f BuilderFunc) Build(ctx context.Context, prev *Snapshot) (*Snapshot, error) {
	return f(ctx, prev)
}
