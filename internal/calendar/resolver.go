package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/cache"
	"github.com/deskops/helpdesk-sla/internal/domain"
)

const (
	cacheKeyPrefix = "calendar:"
	defaultKey     = cacheKeyPrefix + "default"
)

// Store loads calendars. GetDefault returns nil without error when no
// calendar is flagged as default.
type Store interface {
	GetByID(ctx context.Context, id string) (*Calendar, error)
	GetDefault(ctx context.Context) (*Calendar, error)
}

// TeamSource looks up the team owning a ticket.
type TeamSource interface {
	GetByID(ctx context.Context, id string) (*domain.Team, error)
}

// Resolver picks the working calendar of a team: the team's own calendar,
// then the configured company calendar, then the calendar flagged default.
// Loaded calendars are cached for TTL.
type Resolver struct {
	teams     TeamSource
	store     Store
	cache     cache.Store
	defaultID string
	ttl       time.Duration
	logger    *zap.Logger
}

// ResolverDependencies bundles collaborators for the resolver.
type ResolverDependencies struct {
	Teams     TeamSource
	Store     Store
	Cache     cache.Store
	DefaultID string
	TTL       time.Duration
	Logger    *zap.Logger
}

// NewResolver constructs a resolver.
func NewResolver(deps ResolverDependencies) *Resolver {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		teams:     deps.Teams,
		store:     deps.Store,
		cache:     deps.Cache,
		defaultID: deps.DefaultID,
		ttl:       deps.TTL,
		logger:    logger,
	}
}

// ForTeam returns nil, nil when no calendar applies.
func (r *Resolver) ForTeam(ctx context.Context, teamID string) (*Calendar, error) {
	id := r.defaultID
	if teamID != "" && r.teams != nil {
		team, err := r.teams.GetByID(ctx, teamID)
		if err != nil {
			return nil, fmt.Errorf("load team %s: %w", teamID, err)
		}
		if team.CalendarID != nil && *team.CalendarID != "" {
			id = *team.CalendarID
		}
	}
	return r.load(ctx, id)
}

// Get returns the calendar with the given id through the cache.
func (r *Resolver) Get(ctx context.Context, id string) (*Calendar, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidCalendar)
	}
	return r.load(ctx, id)
}

// Invalidate drops cached copies of a calendar. The default entry is always
// dropped since any calendar may have become the default.
func (r *Resolver) Invalidate(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	keys := []string{defaultKey}
	if id != "" {
		keys = append(keys, cacheKeyPrefix+id)
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.logger.Warn("calendar cache invalidation failed", zap.String("calendar_id", id), zap.Error(err))
	}
}

func (r *Resolver) load(ctx context.Context, id string) (*Calendar, error) {
	key := defaultKey
	if id != "" {
		key = cacheKeyPrefix + id
	}

	if r.cache != nil {
		var cached Calendar
		err := r.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			r.logger.Warn("calendar cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	var (
		cal *Calendar
		err error
	)
	if id != "" {
		cal, err = r.store.GetByID(ctx, id)
	} else {
		cal, err = r.store.GetDefault(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load calendar %q: %w", id, err)
	}
	if cal == nil {
		return nil, nil
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, cal, r.ttl); err != nil {
			r.logger.Warn("calendar cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return cal, nil
}
