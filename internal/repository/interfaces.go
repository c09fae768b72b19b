package repository

import (
	"context"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByDiscordID(ctx context.Context, discordID string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	// UpdateStats writes only the cached ranked snapshot so it never races profile edits.
	UpdateStats(ctx context.Context, user *domain.User) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.UserSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSession, error)
	// Delete reports whether a session was removed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
	// DeleteExpired drops the user's sessions that expired at or before now.
	DeleteExpired(ctx context.Context, userID uuid.UUID, now time.Time) error
}

type PostRepository interface {
	Create(ctx context.Context, post *domain.Post) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Post, error)
	// GetByIDUnscoped also returns soft-deleted posts.
	GetByIDUnscoped(ctx context.Context, id uuid.UUID) (*domain.Post, error)
	List(ctx context.Context, filter domain.PostFilter) ([]*domain.Post, error)
	CountByOwnerSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ApplicationRepository interface {
	Create(ctx context.Context, app *domain.Application) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	HasPending(ctx context.Context, postID, applicantID uuid.UUID) (bool, error)
	// Transition moves an application from one status to another. It reports
	// false without error when the application was not in the from status.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.ApplicationStatus, at time.Time) (bool, error)
	ListByApplicant(ctx context.Context, applicantID uuid.UUID) ([]*domain.Application, error)
	ListByPostOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Application, error)
	// ListAcceptedWithoutParty finds accepted applications that never got a party.
	ListAcceptedWithoutParty(ctx context.Context, limit int) ([]*domain.Application, error)
}

type PartyRepository interface {
	Create(ctx context.Context, party *domain.Party) error
	// GetByIDForUpdate locks the party row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Party, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.PartyMembership, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type PartyMemberRepository interface {
	Create(ctx context.Context, member *domain.PartyMember) error
	Get(ctx context.Context, partyID, userID uuid.UUID) (*domain.PartyMember, error)
	ListByParty(ctx context.Context, partyID uuid.UUID) ([]*domain.PartyMember, error)
	Count(ctx context.Context, partyID uuid.UUID) (int64, error)
	Delete(ctx context.Context, partyID, userID uuid.UUID) (bool, error)
	DeleteByParty(ctx context.Context, partyID uuid.UUID) error
}

type ChatMessageRepository interface {
	Create(ctx context.Context, msg *domain.ChatMessage) error
	GetByID(ctx context.Context, partyID, id uuid.UUID) (*domain.ChatMessage, error)
	// Latest returns the newest message of the party.
	Latest(ctx context.Context, partyID uuid.UUID) (*domain.ChatMessage, error)
	// ListByParty returns messages oldest first. A non-nil since keeps only messages created after it.
	ListByParty(ctx context.Context, partyID uuid.UUID, since *time.Time, limit int) ([]*domain.ChatMessage, error)
	// ListAfter pages forward from the (created_at, id) position of after.
	ListAfter(ctx context.Context, partyID uuid.UUID, after *domain.ChatMessage, limit int) ([]*domain.ChatMessage, error)
	DeleteByParty(ctx context.Context, partyID uuid.UUID) error
}

// Transactor runs fn against repositories bound to a single database
// transaction. Returning an error from fn rolls everything back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(tx *Repositories) error) error
}

type Repositories struct {
	User        UserRepository
	Session     SessionRepository
	Post        PostRepository
	Application ApplicationRepository
	Party       PartyRepository
	PartyMember PartyMemberRepository
	ChatMessage ChatMessageRepository
	Tx          Transactor
}
