package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/repository"
	"github.com/dom/rally-league/internal/riot"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type ProfileService struct {
	userRepo repository.UserRepository
	lookup   riot.StatsLookup
	stats    *StatsResolver
	logger   *slog.Logger
}

func NewProfileService(userRepo repository.UserRepository, lookup riot.StatsLookup, stats *StatsResolver, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{
		userRepo: userRepo,
		lookup:   lookup,
		stats:    stats,
		logger:   logger,
	}
}

// Profile is a user's own view of their account.
type Profile struct {
	User  *domain.User
	Stats *domain.RankedStats
	// StatsStale is set when the live refresh failed and Stats is the last
	// cached snapshot (possibly nil).
	StatsStale bool
}

// GetProfile refreshes the user's ranked stats. A failed refresh is logged
// and the cached snapshot is returned instead.
func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile := &Profile{User: user}
	if !user.HasRiotID() {
		return profile, nil
	}

	stats, err := s.stats.Refresh(ctx, user)
	if err != nil {
		s.logger.Warn("profile stats refresh failed, serving cached snapshot",
			"user_id", user.ID,
			"error", err,
		)
		profile.Stats = user.Stats()
		profile.StatsStale = true
		return profile, nil
	}
	profile.Stats = stats
	return profile, nil
}

// UpdateProfileInput holds optional edits. Nil fields are left unchanged; an
// empty RiotID unlinks the game account.
type UpdateProfileInput struct {
	DisplayName *string
	RiotID      *string
	Password    *string
}

func (s *ProfileService) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*Profile, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if err := validateDisplayName(name); err != nil {
			return nil, err
		}
		user.DisplayName = name
	}

	if input.Password != nil {
		if len([]rune(*input.Password)) < minPasswordLength {
			return nil, domain.NewValidationError("password", "is too short")
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = string(hashed)
	}

	if input.RiotID != nil {
		riotID := strings.TrimSpace(*input.RiotID)
		switch {
		case riotID == "":
			user.RiotID = nil
			user.SetStats(nil, time.Time{})
		case user.RiotID == nil || !strings.EqualFold(*user.RiotID, riotID):
			if err := linkRiotID(ctx, s.lookup, user, riotID, s.logger); err != nil {
				return nil, err
			}
		}
	}

	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return &Profile{User: user, Stats: user.Stats()}, nil
}

// LookupSummoner fetches live stats for any Riot ID.
func (s *ProfileService) LookupSummoner(ctx context.Context, riotID string) (*domain.RankedStats, error) {
	if s.lookup == nil {
		return nil, riot.ErrUpstreamUnavailable
	}
	return s.lookup.Lookup(ctx, riotID)
}

func (s *ProfileService) getUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
