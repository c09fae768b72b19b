package postgres

import (
	"context"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *postRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *domain.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	var post domain.Post
	err := r.db.WithContext(ctx).First(&post, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetByIDUnscoped(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	var post domain.Post
	err := r.db.WithContext(ctx).Unscoped().First(&post, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, filter domain.PostFilter) ([]*domain.Post, error) {
	query := r.db.WithContext(ctx).Model(&domain.Post{})
	if filter.RankTier != "" {
		query = query.Where("rank_tier = ?", filter.RankTier)
	}
	if filter.Mode != "" {
		query = query.Where("mode = ?", filter.Mode)
	}
	if filter.Lane != "" {
		query = query.Where("lane = ?", filter.Lane)
	}

	var posts []*domain.Post
	err := query.Order("created_at DESC, id DESC").Find(&posts).Error
	return posts, err
}

func (r *postRepository) CountByOwnerSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	// Deleted posts still count toward the cap.
	err := r.db.WithContext(ctx).
		Unscoped().
		Model(&domain.Post{}).
		Where("owner_id = ? AND created_at > ?", ownerID, since).
		Count(&count).Error
	return count, err
}

func (r *postRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&domain.Post{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
