package postgres

import (
	"context"

	"github.com/dom/rally-league/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type partyMemberRepository struct {
	db *gorm.DB
}

func NewPartyMemberRepository(db *gorm.DB) *partyMemberRepository {
	return &partyMemberRepository{db: db}
}

func (r *partyMemberRepository) Create(ctx context.Context, member *domain.PartyMember) error {
	return r.db.WithContext(ctx).Omit("User").Create(member).Error
}

func (r *partyMemberRepository) Get(ctx context.Context, partyID, userID uuid.UUID) (*domain.PartyMember, error) {
	var member domain.PartyMember
	err := r.db.WithContext(ctx).
		Where("party_id = ? AND user_id = ?", partyID, userID).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ListByParty returns the leader first, then members by join time.
func (r *partyMemberRepository) ListByParty(ctx context.Context, partyID uuid.UUID) ([]*domain.PartyMember, error) {
	var members []*domain.PartyMember
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("party_id = ?", partyID).
		Order("CASE WHEN role = 'leader' THEN 0 ELSE 1 END, joined_at ASC").
		Find(&members).Error
	return members, err
}

func (r *partyMemberRepository) Count(ctx context.Context, partyID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.PartyMember{}).
		Where("party_id = ?", partyID).
		Count(&count).Error
	return count, err
}

func (r *partyMemberRepository) Delete(ctx context.Context, partyID, userID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("party_id = ? AND user_id = ?", partyID, userID).
		Delete(&domain.PartyMember{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *partyMemberRepository) DeleteByParty(ctx context.Context, partyID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("party_id = ?", partyID).Delete(&domain.PartyMember{}).Error
}
