// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache holds research results keyed by normalized topic. Concurrent
// lookups for the same uncached topic share a single computation.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/research-mcp/internal/envelope"
	"github.com/pdiddy/research-mcp/pkg/types"
)

// Store persists results beyond the in-memory tier.
type Store interface {
	// Load returns the stored result for a normalized topic. A missing
	// topic is reported with ok == false and a nil error.
	Load(ctx context.Context, topic string) (r types.Result, ok bool, err error)
	Save(ctx context.Context, topic string, r types.Result) error
}

// Options configures a Cache. Zero MaxEntries means unbounded and zero TTL
// means entries never expire. Store is optional.
type Options struct {
	MaxEntries int
	TTL        time.Duration
	Store      Store
	Logger     *zap.Logger
}

// Cache is a bounded topic → result map with single-flight fill.
type Cache struct {
	entries *expirable.LRU[string, types.Result]
	group   singleflight.Group
	store   Store
	logger  *zap.Logger
}

// ComputeFunc produces the result for a topic on a miss.
type ComputeFunc func(ctx context.Context) (types.Result, error)

// New returns an empty cache.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries: expirable.NewLRU[string, types.Result](opts.MaxEntries, nil, opts.TTL),
		store:   opts.Store,
		logger:  logger,
	}
}

// Normalize trims topic and collapses internal whitespace runs to a single
// space. Case is preserved.
func Normalize(topic string) string {
	return strings.Join(strings.Fields(topic), " ")
}

// Get returns a copy of the in-memory entry for topic.
func (c *Cache) Get(topic string) (types.Result, bool) {
	r, ok := c.entries.Get(Normalize(topic))
	if !ok {
		return types.Result{}, false
	}
	return r.Clone(), true
}

// Put stores a copy of r under topic, replacing any earlier entry, and
// writes it through to the Store under ctx. Store failures are logged.
func (c *Cache) Put(ctx context.Context, topic string, r types.Result) {
	key := Normalize(topic)
	if key == "" {
		return
	}
	c.entries.Add(key, r.Clone())
	if c.store != nil {
		if err := c.store.Save(ctx, key, r); err != nil {
			c.logger.Warn("persisting cached result failed", zap.String("topic", key), zap.Error(err))
		}
	}
}

// Len reports the number of in-memory entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

type flight struct {
	result types.Result
	hit    bool
}

// GetOrCompute returns the cached result for topic, or runs compute to
// produce it. At most one compute per topic is in flight; concurrent callers
// join it and receive the same result. A failed compute is not cached. A
// caller whose ctx ends stops waiting and gets ctx.Err() while the compute
// continues for the others. The hit result reports whether the value came
// from the memory or Store tier.
func (c *Cache) GetOrCompute(ctx context.Context, topic string, compute ComputeFunc) (types.Result, bool, error) {
	key := Normalize(topic)
	if key == "" {
		return types.Result{}, false, fmt.Errorf("%w: topic is empty", envelope.ErrValidation)
	}
	if r, ok := c.Get(key); ok {
		return r, true, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if r, ok := c.entries.Get(key); ok {
			return flight{result: r, hit: true}, nil
		}
		if c.store != nil {
			r, ok, err := c.store.Load(flightCtx, key)
			if err != nil {
				c.logger.Warn("loading cached result failed", zap.String("topic", key), zap.Error(err))
			} else if ok {
				c.entries.Add(key, r.Clone())
				return flight{result: r, hit: true}, nil
			}
		}

		r, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}
		c.Put(flightCtx, key, r)
		return flight{result: r}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return types.Result{}, false, res.Err
		}
		f := res.Val.(flight)
		return f.result.Clone(), f.hit, nil
	case <-ctx.Done():
		return types.Result{}, false, ctx.Err()
	}
}
