package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dom/rally-league/internal/config"
	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const dailyPostWindow = 24 * time.Hour

type PostService struct {
	postRepo    repository.PostRepository
	userRepo    repository.UserRepository
	stats       *StatsResolver
	postsPerDay int
	logger      *slog.Logger
}

func NewPostService(repos *repository.Repositories, stats *StatsResolver, cfg *config.Config, logger *slog.Logger) *PostService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostService{
		postRepo:    repos.Post,
		userRepo:    repos.User,
		stats:       stats,
		postsPerDay: cfg.PostsPerDay,
		logger:      logger,
	}
}

type CreatePostInput struct {
	Title       string
	Mode        domain.GameMode
	RankTier    domain.Tier
	Lane        domain.Lane
	Description string
}

// Create validates and stores a post. The daily cap is checked before the
// insert and is not atomic: concurrent creates may overshoot it by a few.
func (s *PostService) Create(ctx context.Context, ownerID uuid.UUID, input CreatePostInput) (*domain.Post, error) {
	post := &domain.Post{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       input.Title,
		Mode:        input.Mode,
		RankTier:    input.RankTier,
		Lane:        input.Lane,
		Description: input.Description,
		CreatedAt:   time.Now(),
	}
	if err := domain.ValidatePost(post); err != nil {
		return nil, err
	}

	if s.postsPerDay > 0 {
		count, err := s.postRepo.CountByOwnerSince(ctx, ownerID, time.Now().Add(-dailyPostWindow))
		if err != nil {
			return nil, err
		}
		if count >= int64(s.postsPerDay) {
			return nil, domain.ErrDailyPostLimit
		}
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// List returns matching posts newest first, each with its author's public
// profile. Author stats that cannot be resolved are left nil.
func (s *PostService) List(ctx context.Context, filter domain.PostFilter) ([]*domain.PostWithAuthor, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	posts, err := s.postRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return []*domain.PostWithAuthor{}, nil
	}

	seen := make(map[uuid.UUID]bool)
	var ownerIDs []uuid.UUID
	for _, p := range posts {
		if !seen[p.OwnerID] {
			seen[p.OwnerID] = true
			ownerIDs = append(ownerIDs, p.OwnerID)
		}
	}
	owners, err := s.userRepo.GetByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}
	summaries := s.stats.Summaries(ctx, owners)

	result := make([]*domain.PostWithAuthor, 0, len(posts))
	for _, p := range posts {
		author, ok := summaries[p.OwnerID]
		if !ok {
			author = domain.UserSummary{ID: p.OwnerID}
		}
		result = append(result, &domain.PostWithAuthor{Post: p, Author: author})
	}
	return result, nil
}

func (s *PostService) Get(ctx context.Context, postID uuid.UUID) (*domain.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	return post, nil
}

// Delete soft-deletes a post. Existing applications and parties are kept.
func (s *PostService) Delete(ctx context.Context, postID, actingUserID uuid.UUID) error {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return err
	}
	if post.OwnerID != actingUserID {
		return domain.ErrNotPostOwner
	}
	if err := s.postRepo.Delete(ctx, postID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrPostNotFound
		}
		return err
	}
	s.logger.Info("post deleted", "post_id", postID, "owner_id", actingUserID)
	return nil
}
