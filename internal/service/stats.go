package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/repository"
	"github.com/dom/rally-league/internal/riot"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentLookups = 8

// StatsResolver serves ranked stats from the per-user snapshot when it is
// fresh and refreshes it from the Riot API otherwise.
type StatsResolver struct {
	lookup riot.StatsLookup
	users  repository.UserRepository
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewStatsResolver(lookup riot.StatsLookup, users repository.UserRepository, ttl time.Duration, logger *slog.Logger) *StatsResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsResolver{
		lookup: lookup,
		users:  users,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Current returns the user's stats, or nil when they have no Riot ID or the
// live lookup fails. A stale snapshot is never served.
func (r *StatsResolver) Current(ctx context.Context, user *domain.User) *domain.RankedStats {
	if !user.HasRiotID() {
		return nil
	}
	if user.StatsFresh(r.now(), r.ttl) {
		return user.Stats()
	}
	stats, err := r.Refresh(ctx, user)
	if err != nil {
		return nil
	}
	return stats
}

// Refresh performs a live lookup and persists the result on success.
func (r *StatsResolver) Refresh(ctx context.Context, user *domain.User) (*domain.RankedStats, error) {
	if r.lookup == nil || !user.HasRiotID() {
		return nil, domain.NewError(domain.ErrUpstreamUnavailable, "stats lookup not configured")
	}
	stats, err := r.lookup.Lookup(ctx, *user.RiotID)
	if err != nil {
		return nil, err
	}

	user.SetStats(stats, r.now())
	if err := r.users.UpdateStats(ctx, user); err != nil {
		r.logger.Warn("failed to cache ranked stats", "user_id", user.ID, "error", err)
	}
	return stats, nil
}

// Summaries builds public summaries for users, resolving stats concurrently.
func (r *StatsResolver) Summaries(ctx context.Context, users []*domain.User) map[uuid.UUID]domain.UserSummary {
	out := make(map[uuid.UUID]domain.UserSummary, len(users))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for _, u := range users {
		g.Go(func() error {
			summary := Summarize(u, r.Current(gctx, u))
			mu.Lock()
			out[u.ID] = summary
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return out
}

// Summarize is the public view of u.
func Summarize(u *domain.User, stats *domain.RankedStats) domain.UserSummary {
	return domain.UserSummary{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		RiotID:      u.RiotID,
		Stats:       stats,
	}
}
