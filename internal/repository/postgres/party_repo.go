package postgres

import (
	"context"

	"github.com/dom/rally-league/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type partyRepository struct {
	db *gorm.DB
}

func NewPartyRepository(db *gorm.DB) *partyRepository {
	return &partyRepository{db: db}
}

func (r *partyRepository) Create(ctx context.Context, party *domain.Party) error {
	return r.db.WithContext(ctx).Create(party).Error
}

func (r *partyRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Party, error) {
	var party domain.Party
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&party, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &party, nil
}

func (r *partyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.PartyMembership, error) {
	var members []*domain.PartyMember
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("joined_at DESC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []*domain.PartyMembership{}, nil
	}

	partyIDs := make([]uuid.UUID, len(members))
	for i, m := range members {
		partyIDs[i] = m.PartyID
	}

	var parties []*domain.Party
	if err := r.db.WithContext(ctx).Where("id IN ?", partyIDs).Find(&parties).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*domain.Party, len(parties))
	for _, p := range parties {
		byID[p.ID] = p
	}

	result := make([]*domain.PartyMembership, 0, len(members))
	for _, m := range members {
		if party, ok := byID[m.PartyID]; ok {
			result = append(result, &domain.PartyMembership{Party: party, Role: m.Role, Lane: m.Lane})
		}
	}
	return result, nil
}

func (r *partyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.Party{}, "id = ?", id).Error
}
