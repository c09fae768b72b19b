package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type User struct {
	ID               uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Username         string         `json:"username" gorm:"uniqueIndex;not null"`
	DisplayName      string         `json:"displayName" gorm:"not null"`
	PasswordHash     string         `json:"-"`
	DiscordID        *string        `json:"-" gorm:"uniqueIndex"`
	RiotID           *string        `json:"riotId,omitempty"`
	RankedStats      datatypes.JSON `json:"-"`
	StatsRefreshedAt *time.Time     `json:"statsRefreshedAt,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// HasRiotID reports whether the user has linked a game account.
func (u *User) HasRiotID() bool {
	return u.RiotID != nil && *u.RiotID != ""
}

// Stats decodes the cached ranked snapshot. A missing or unreadable snapshot yields nil.
func (u *User) Stats() *RankedStats {
	if len(u.RankedStats) == 0 || string(u.RankedStats) == "null" {
		return nil
	}
	var stats RankedStats
	if err := json.Unmarshal(u.RankedStats, &stats); err != nil {
		return nil
	}
	return &stats
}

// SetStats replaces the cached snapshot. Passing nil clears it.
func (u *User) SetStats(stats *RankedStats, at time.Time) {
	if stats == nil {
		u.RankedStats = nil
		u.StatsRefreshedAt = nil
		return
	}
	data, _ := json.Marshal(stats)
	u.RankedStats = datatypes.JSON(data)
	u.StatsRefreshedAt = &at
}

// StatsFresh reports whether the snapshot was refreshed within ttl of now.
func (u *User) StatsFresh(now time.Time, ttl time.Duration) bool {
	return u.StatsRefreshedAt != nil && now.Sub(*u.StatsRefreshedAt) < ttl
}

type UserSession struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID           uuid.UUID `json:"userId" gorm:"type:uuid;not null;index"`
	RefreshTokenHash string    `json:"-" gorm:"not null"`
	ExpiresAt        time.Time `json:"expiresAt" gorm:"not null"`
	CreatedAt        time.Time `json:"createdAt"`
}

// UserSummary is the public view of a user embedded in other resources.
type UserSummary struct {
	ID          uuid.UUID    `json:"id"`
	DisplayName string       `json:"displayName"`
	RiotID      *string      `json:"riotId,omitempty"`
	Stats       *RankedStats `json:"stats"`
}
