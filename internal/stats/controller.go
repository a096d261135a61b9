// Package stats triggers the server-side statistics recompute and serves the
// cached results.
package stats

import (
	"context"
	"sync"

	"github.com/julianstephens/habitlog/internal/cache"
	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/errors"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/models"
)

type Gateway interface {
	InvokeProcedure(ctx context.Context, name string) error
	Statistics(ctx context.Context, includeArchived bool) ([]models.HabitStatistics, error)
}

// Controller exposes the recompute trigger with its pending and error state.
// The once-per-day limit is enforced by the backend.
type Controller struct {
	gw    Gateway
	cache *cache.Cache

	mu      sync.Mutex
	pending int
	err     *errors.Error
}

func NewController(gw Gateway, c *cache.Cache) *Controller {
	return &Controller{gw: gw, cache: c}
}

// Recalculate runs the recompute procedure for the caller and, on success,
// invalidates the cached statistics and habits.
func (c *Controller) Recalculate(ctx context.Context) error {
	return c.run(ctx, constants.ProcRecomputeStatistics)
}

// RecalculateAll recomputes every user's statistics. It needs a service
// identity and is not rate limited.
func (c *Controller) RecalculateAll(ctx context.Context) error {
	return c.run(ctx, constants.ProcRecomputeAllStatistics)
}

func (c *Controller) run(ctx context.Context, procedure string) error {
	c.mu.Lock()
	c.pending++
	c.err = nil
	c.mu.Unlock()

	err := c.gw.InvokeProcedure(ctx, procedure)

	c.mu.Lock()
	c.pending--
	if err != nil {
		c.err = errors.RecomputeError(err)
	}
	c.mu.Unlock()

	if err != nil {
		logger.Warn("statistics recompute failed", "procedure", procedure, "error", err)
		return errors.RecomputeError(err)
	}

	c.cache.Invalidate(constants.CacheKeyStatistics, constants.CacheKeyHabits)
	logger.Info("statistics recomputed", "procedure", procedure)
	return nil
}

func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

// Err returns the failure of the last recompute, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return nil
	}
	return c.err
}

// Message is the user-facing text of Err, or "" when the last run succeeded.
func (c *Controller) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return ""
	}
	return c.err.Message
}

// Statistics returns the caller's statistics, best rate first, through the
// cache.
func (c *Controller) Statistics(ctx context.Context, includeArchived bool) ([]models.HabitStatistics, error) {
	all, err := cache.Fetch(ctx, c.cache, constants.CacheKeyStatistics, func(ctx context.Context) ([]models.HabitStatistics, error) {
		return c.gw.Statistics(ctx, true)
	})
	if err != nil {
		return nil, errors.FetchError(err)
	}
	if includeArchived {
		return all, nil
	}
	active := make([]models.HabitStatistics, 0, len(all))
	for _, s := range all {
		if !s.Archived {
			active = append(active, s)
		}
	}
	return active, nil
}
