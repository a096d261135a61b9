// Package catalog manages the caller's habits and the template list, keeping
// the query cache consistent with every change.
package catalog

import (
	"context"
	"strings"

	"github.com/julianstephens/habitlog/internal/cache"
	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/models"
)

type Gateway interface {
	Habits(ctx context.Context, filter gateway.HabitFilter) ([]models.Habit, error)
	Habit(ctx context.Context, id string) (models.Habit, error)
	CreateHabit(ctx context.Context, h models.Habit) (models.Habit, error)
	SetArchived(ctx context.Context, id string, archived bool) (models.Habit, error)
	Templates(ctx context.Context) ([]models.HabitTemplate, error)
}

type Catalog struct {
	gw    Gateway
	cache *cache.Cache
}

func New(gw Gateway, c *cache.Cache) *Catalog {
	return &Catalog{gw: gw, cache: c}
}

// Habits lists habits newest first. Archived habits are included on request.
func (c *Catalog) Habits(ctx context.Context, includeArchived bool) ([]models.Habit, error) {
	all, err := cache.Fetch(ctx, c.cache, constants.CacheKeyHabits, func(ctx context.Context) ([]models.Habit, error) {
		return c.gw.Habits(ctx, gateway.HabitFilter{IncludeArchived: true})
	})
	if err != nil {
		return nil, err
	}
	if includeArchived {
		return all, nil
	}
	active := make([]models.Habit, 0, len(all))
	for _, h := range all {
		if !h.Archived {
			active = append(active, h)
		}
	}
	return active, nil
}

// Find resolves ref as a habit id, then as a case-insensitive name.
func (c *Catalog) Find(ctx context.Context, ref string) (models.Habit, error) {
	habits, err := c.Habits(ctx, true)
	if err != nil {
		return models.Habit{}, err
	}
	for _, h := range habits {
		if h.ID == ref {
			return h, nil
		}
	}
	for _, h := range habits {
		if strings.EqualFold(h.Name, ref) {
			return h, nil
		}
	}
	// the cached list may predate a habit created by another process
	return c.gw.Habit(ctx, ref)
}

func (c *Catalog) Create(ctx context.Context, h models.Habit) (models.Habit, error) {
	created, err := c.gw.CreateHabit(ctx, h)
	if err != nil {
		return models.Habit{}, err
	}
	c.cache.Invalidate(constants.CacheKeyHabits, constants.CacheKeyStatistics)
	logger.Info("habit created", "habit", created.ID, "name", created.Name)
	return created, nil
}

func (c *Catalog) SetArchived(ctx context.Context, id string, archived bool) (models.Habit, error) {
	h, err := c.gw.SetArchived(ctx, id, archived)
	if err != nil {
		return models.Habit{}, err
	}
	c.cache.Invalidate(constants.CacheKeyHabits, constants.CacheKeyStatistics)
	logger.Info("habit archive state changed", "habit", id, "archived", archived)
	return h, nil
}

// Templates lists the predefined habits ordered by name.
func (c *Catalog) Templates(ctx context.Context) ([]models.HabitTemplate, error) {
	return cache.Fetch(ctx, c.cache, constants.CacheKeyTemplates, c.gw.Templates)
}

// FromTemplate returns a daily, weekly or monthly habit prefilled from the
// template with the given id or name.
func (c *Catalog) FromTemplate(ctx context.Context, ref string) (models.Habit, error) {
	templates, err := c.Templates(ctx)
	if err != nil {
		return models.Habit{}, err
	}
	for _, t := range templates {
		if t.ID == ref || strings.EqualFold(t.Name, ref) {
			return models.Habit{
				Name:       t.Name,
				Icon:       t.Icon,
				TemplateID: t.ID,
				Frequency:  models.Frequency{Type: t.DefaultFrequencyType, Value: 1},
			}, nil
		}
	}
	return models.Habit{}, &TemplateNotFoundError{Ref: ref}
}

type TemplateNotFoundError struct {
	Ref string
}

func (e *TemplateNotFoundError) Error() string {
	return "habit template not found: " + e.Ref
}
