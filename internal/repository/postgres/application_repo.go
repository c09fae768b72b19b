package postgres

import (
	"context"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type applicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) *applicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) Create(ctx context.Context, app *domain.Application) error {
	return r.db.WithContext(ctx).Create(app).Error
}

func (r *applicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	var app domain.Application
	err := r.db.WithContext(ctx).First(&app, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *applicationRepository) HasPending(ctx context.Context, postID, applicantID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("post_id = ? AND applicant_id = ? AND status = ?", postID, applicantID, domain.ApplicationStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *applicationRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.ApplicationStatus, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":      to,
			"resolved_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *applicationRepository) ListByApplicant(ctx context.Context, applicantID uuid.UUID) ([]*domain.Application, error) {
	var apps []*domain.Application
	err := r.db.WithContext(ctx).
		Where("applicant_id = ?", applicantID).
		Order("created_at DESC, id DESC").
		Find(&apps).Error
	return apps, err
}

func (r *applicationRepository) ListByPostOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Application, error) {
	var apps []*domain.Application
	err := r.db.WithContext(ctx).
		Joins("JOIN posts ON posts.id = applications.post_id").
		Where("posts.owner_id = ? AND posts.deleted_at IS NULL", ownerID).
		Order("applications.created_at DESC, applications.id DESC").
		Find(&apps).Error
	return apps, err
}

func (r *applicationRepository) ListAcceptedWithoutParty(ctx context.Context, limit int) ([]*domain.Application, error) {
	var apps []*domain.Application
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.ApplicationStatusAccepted).
		Where("NOT EXISTS (SELECT 1 FROM parties WHERE parties.application_id = applications.id)").
		Order("resolved_at ASC").
		Limit(limit).
		Find(&apps).Error
	return apps, err
}
