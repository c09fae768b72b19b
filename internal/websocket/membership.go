package websocket

import (
	"context"
	"errors"

	"github.com/dom/rally-league/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RepositoryMembership answers membership checks straight from the party
// member table, so the hub can be built before the services that publish
// through it.
type RepositoryMembership struct {
	Members repository.PartyMemberRepository
}

func (m RepositoryMembership) IsMember(ctx context.Context, partyID, userID uuid.UUID) (bool, error) {
	_, err := m.Members.Get(ctx, partyID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}
