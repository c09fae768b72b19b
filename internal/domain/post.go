package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MaxPostTitleLength       = 60
	MaxPostDescriptionLength = 500
)

// Post is a recruitment listing. Deleted posts are soft-deleted so that the
// applications and parties referencing them keep a valid foreign key.
type Post struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OwnerID     uuid.UUID      `json:"ownerId" gorm:"type:uuid;not null;index"`
	Owner       *User          `json:"-" gorm:"foreignKey:OwnerID"`
	Title       string         `json:"title" gorm:"not null"`
	Mode        GameMode       `json:"mode" gorm:"type:varchar(20);not null;index"`
	RankTier    Tier           `json:"rankTier" gorm:"type:varchar(20);not null;index"`
	Lane        Lane           `json:"lane" gorm:"type:varchar(20);not null;index"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"createdAt" gorm:"index"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// PostFilter narrows a listing. Zero values match everything.
type PostFilter struct {
	RankTier Tier
	Mode     GameMode
	Lane     Lane
}

func (f PostFilter) Validate() error {
	if f.RankTier != "" && !f.RankTier.IsValid() {
		return NewValidationError("rank", "unknown rank tier")
	}
	if f.Mode != "" && !f.Mode.IsValid() {
		return NewValidationError("mode", "unknown game mode")
	}
	if f.Lane != "" && !f.Lane.IsValid() {
		return NewValidationError("lane", "unknown lane")
	}
	return nil
}

// ValidatePost checks the user-supplied fields of a post.
func ValidatePost(p *Post) error {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)

	switch {
	case p.Title == "":
		return NewValidationError("title", "is required")
	case utf8.RuneCountInString(p.Title) > MaxPostTitleLength:
		return NewValidationError("title", "is too long")
	case !p.Mode.IsValid():
		return NewValidationError("mode", "unknown game mode")
	case !p.RankTier.IsValid():
		return NewValidationError("rankTier", "unknown rank tier")
	case !p.Lane.IsValid():
		return NewValidationError("lane", "unknown lane")
	case utf8.RuneCountInString(p.Description) > MaxPostDescriptionLength:
		return NewValidationError("description", "is too long")
	}
	return nil
}

// PostWithAuthor is a listing entry enriched with its author's public profile.
type PostWithAuthor struct {
	*Post
	Author UserSummary `json:"author"`
}
