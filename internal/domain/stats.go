package domain

import (
	"strings"
)

// RiotID is a player's cross-game identity, written as name#tag.
type RiotID struct {
	GameName string
	TagLine  string
}

func (r RiotID) String() string {
	return r.GameName + "#" + r.TagLine
}

// ParseRiotID splits "name#tag". Both parts must be non-empty after trimming.
func ParseRiotID(s string) (RiotID, error) {
	name, tag, ok := strings.Cut(strings.TrimSpace(s), "#")
	name = strings.TrimSpace(name)
	tag = strings.TrimSpace(tag)
	if !ok || name == "" || tag == "" || strings.Contains(tag, "#") {
		return RiotID{}, NewValidationError("riotId", "must be in the form name#tag")
	}
	return RiotID{GameName: name, TagLine: tag}, nil
}

type QueueStats struct {
	Tier         Tier   `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// WinRate returns the percentage of games won, rounded down.
func (q *QueueStats) WinRate() int {
	total := q.Wins + q.Losses
	if total == 0 {
		return 0
	}
	return q.Wins * 100 / total
}

// RankedStats is a point-in-time snapshot of a player's ranked standing.
type RankedStats struct {
	SummonerLevel int         `json:"summonerLevel"`
	ProfileIconID int         `json:"profileIconId"`
	IconURL       string      `json:"iconUrl,omitempty"`
	Solo          *QueueStats `json:"solo,omitempty"`
	Flex          *QueueStats `json:"flex,omitempty"`
}

// SoloTier is the solo/duo tier, or unranked when the player has no solo entry.
func (s *RankedStats) SoloTier() Tier {
	if s == nil || s.Solo == nil {
		return TierUnranked
	}
	return s.Solo.Tier
}
