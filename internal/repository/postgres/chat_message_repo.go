package postgres

import (
	"context"
	"slices"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type chatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) *chatMessageRepository {
	return &chatMessageRepository{db: db}
}

func (r *chatMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	return r.db.WithContext(ctx).Omit("Sender").Create(msg).Error
}

func (r *chatMessageRepository) GetByID(ctx context.Context, partyID, id uuid.UUID) (*domain.ChatMessage, error) {
	var msg domain.ChatMessage
	err := r.db.WithContext(ctx).First(&msg, "party_id = ? AND id = ?", partyID, id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *chatMessageRepository) Latest(ctx context.Context, partyID uuid.UUID) (*domain.ChatMessage, error) {
	var msg domain.ChatMessage
	err := r.db.WithContext(ctx).
		Where("party_id = ?", partyID).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByParty returns messages oldest first. Without since it returns the
// newest limit messages; with since it returns the first limit messages
// after it, so a poller can page forward.
func (r *chatMessageRepository) ListByParty(ctx context.Context, partyID uuid.UUID, since *time.Time, limit int) ([]*domain.ChatMessage, error) {
	query := r.db.WithContext(ctx).
		Preload("Sender").
		Where("party_id = ?", partyID)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var msgs []*domain.ChatMessage
	if since != nil {
		err := query.Where("created_at > ?", *since).
			Order("created_at ASC, id ASC").
			Find(&msgs).Error
		return msgs, err
	}

	if err := query.Order("created_at DESC, id DESC").Find(&msgs).Error; err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *chatMessageRepository) ListAfter(ctx context.Context, partyID uuid.UUID, after *domain.ChatMessage, limit int) ([]*domain.ChatMessage, error) {
	query := r.db.WithContext(ctx).
		Preload("Sender").
		Where("party_id = ?", partyID).
		Where("(created_at, id) > (?, ?)", after.CreatedAt, after.ID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var msgs []*domain.ChatMessage
	if err := query.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *chatMessageRepository) DeleteByParty(ctx context.Context, partyID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("party_id = ?", partyID).Delete(&domain.ChatMessage{}).Error
}
