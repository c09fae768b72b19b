package domain

import "strings"

// Lane represents a position on Summoner's Rift
type Lane string

const (
	LaneTop      Lane = "top"
	LaneJungle   Lane = "jungle"
	LaneMid      Lane = "mid"
	LaneBot      Lane = "bot"
	LaneSupport  Lane = "support"
	LaneAutofill Lane = "autofill"
)

// AllLanes contains all valid lanes in display order
var AllLanes = []Lane{LaneTop, LaneJungle, LaneMid, LaneBot, LaneSupport, LaneAutofill}

// IsValid checks if a lane is valid
func (l Lane) IsValid() bool {
	switch l {
	case LaneTop, LaneJungle, LaneMid, LaneBot, LaneSupport, LaneAutofill:
		return true
	}
	return false
}

func (l Lane) String() string {
	return string(l)
}

// DisplayName returns a user-friendly display name for the lane
func (l Lane) DisplayName() string {
	switch l {
	case LaneTop:
		return "Top"
	case LaneJungle:
		return "Jungle"
	case LaneMid:
		return "Mid"
	case LaneBot:
		return "Bot"
	case LaneSupport:
		return "Support"
	case LaneAutofill:
		return "Fill"
	default:
		return string(l)
	}
}

// GameMode is the queue a recruitment post is looking to play
type GameMode string

const (
	GameModeRanked GameMode = "ranked"
	GameModeFlex   GameMode = "flex"
	GameModeNormal GameMode = "normal"
	GameModeARAM   GameMode = "aram"
	GameModeCustom GameMode = "custom"
)

func (m GameMode) IsValid() bool {
	switch m {
	case GameModeRanked, GameModeFlex, GameModeNormal, GameModeARAM, GameModeCustom:
		return true
	}
	return false
}

// Tier is a ranked ladder tier. Divisions are tracked separately in QueueStats.
type Tier string

const (
	TierUnranked    Tier = "unranked"
	TierIron        Tier = "iron"
	TierBronze      Tier = "bronze"
	TierSilver      Tier = "silver"
	TierGold        Tier = "gold"
	TierPlatinum    Tier = "platinum"
	TierEmerald     Tier = "emerald"
	TierDiamond     Tier = "diamond"
	TierMaster      Tier = "master"
	TierGrandmaster Tier = "grandmaster"
	TierChallenger  Tier = "challenger"
)

// AllTiers is ordered lowest to highest
var AllTiers = []Tier{
	TierUnranked, TierIron, TierBronze, TierSilver, TierGold, TierPlatinum,
	TierEmerald, TierDiamond, TierMaster, TierGrandmaster, TierChallenger,
}

func (t Tier) IsValid() bool {
	for _, v := range AllTiers {
		if v == t {
			return true
		}
	}
	return false
}

// ParseTier converts a Riot league tier ("GOLD") to a Tier. Unknown values map to unranked.
func ParseTier(s string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return TierUnranked
	}
	return t
}
