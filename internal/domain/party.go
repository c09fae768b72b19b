package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MaxChatMessageLength = 500

type PartyRole string

const (
	PartyRoleLeader PartyRole = "leader"
	PartyRoleMember PartyRole = "member"
)

// Party is created only by accepting an application, so ApplicationID is unique.
// Disbanded parties are soft-deleted; the tombstone keeps the reconciler from
// recreating them.
type Party struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PostID        uuid.UUID      `json:"postId" gorm:"type:uuid;not null;index"`
	ApplicationID uuid.UUID      `json:"applicationId" gorm:"type:uuid;not null;uniqueIndex"`
	Name          string         `json:"name" gorm:"not null"`
	CreatedAt     time.Time      `json:"createdAt"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// PartyNameFor derives a party's name from the post it was recruited from.
func PartyNameFor(post *Post) string {
	return post.Title + " party"
}

type PartyMember struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PartyID  uuid.UUID `json:"partyId" gorm:"type:uuid;not null;uniqueIndex:idx_party_member"`
	UserID   uuid.UUID `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_party_member;index"`
	User     *User     `json:"-" gorm:"foreignKey:UserID"`
	Role     PartyRole `json:"role" gorm:"type:varchar(20);not null"`
	Lane     Lane      `json:"lane" gorm:"type:varchar(20);not null"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ChatMessage timestamps strictly increase within a party, so
// (CreatedAt, ID) orders a party's history the same way its inserts
// committed.
type ChatMessage struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PartyID   uuid.UUID `json:"partyId" gorm:"type:uuid;not null;index:idx_chat_party_created,priority:1"`
	SenderID  uuid.UUID `json:"senderId" gorm:"type:uuid;not null"`
	Sender    *User     `json:"-" gorm:"foreignKey:SenderID"`
	Content   string    `json:"content" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_chat_party_created,priority:2"`
}

// ChatCursor picks where a history read starts. After, the id of the last
// message a client holds, takes precedence over Since. The zero value reads
// the newest page.
type ChatCursor struct {
	Since *time.Time
	After *uuid.UUID
}

func ValidateChatContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", NewValidationError("content", "is required")
	}
	if utf8.RuneCountInString(content) > MaxChatMessageLength {
		return "", NewValidationError("content", "is too long")
	}
	return content, nil
}

// PartyMembership is a party as seen by one of its members.
type PartyMembership struct {
	Party *Party    `json:"party"`
	Role  PartyRole `json:"role"`
	Lane  Lane      `json:"lane"`
}

// RosterEntry is one member of a party with their public profile.
type RosterEntry struct {
	UserSummary
	Role     PartyRole `json:"role"`
	Lane     Lane      `json:"lane"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ChatMessageView is a chat message with its sender's display details.
type ChatMessageView struct {
	*ChatMessage
	SenderName   string  `json:"senderName"`
	SenderRiotID *string `json:"senderRiotId,omitempty"`
}
