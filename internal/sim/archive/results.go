package archive

import (
	"archivum.ai/internal/sim/archive/amendments"
	"archivum.ai/internal/sim/archive/research"
	"archivum.ai/internal/sim/catalogs"
)

type ExcavationResult struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	Relic                  *catalogs.RelicDef `json:"relic"`
	XP                     int                `json:"xp"`
	Spark                  int                `json:"spark"`
	LoreUnlocked           []string           `json:"lore_unlocked"`
	SiteDepletionRemaining int                `json:"site_depletion_remaining"`
}

// DiscoveryResult carries the computed reward of a first discovery; the
// caller applies it to the player's balance.
type DiscoveryResult struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	Relic        *catalogs.RelicDef `json:"relic"`
	LoreUnlocked []string           `json:"lore_unlocked"`
	AlreadyOwned bool               `json:"already_owned"`
	XP           int                `json:"xp"`
	Spark        int                `json:"spark"`
}

type RarityCount struct {
	Found int `json:"found"`
	Total int `json:"total"`
}

type Collection struct {
	Found    int                    `json:"found"`
	Total    int                    `json:"total"`
	Percent  int                    `json:"percent"`
	ByRarity map[string]RarityCount `json:"by_rarity"`
}

type StartResult struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	Project *research.Progress `json:"project"`
}

type ContributeResult struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	GuildID       string                 `json:"guild_id,omitempty"`
	PhaseProgress research.PhaseProgress `json:"phase_progress"`
	PhaseComplete bool                   `json:"phase_complete"`
}

type AdvanceResult struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	NewPhase int `json:"new_phase"`
}

type CompleteResult struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	Reward      catalogs.Reward `json:"reward"`
	LoreCreated string          `json:"lore_created,omitempty"`
}

type ProposeResult struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	Amendment *amendments.Amendment `json:"amendment"`
}

type VoteCounts struct {
	Yes int `json:"yes"`
	No  int `json:"no"`
}

// VoteResult.Approved is nil while the amendment is still open.
type VoteResult struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	CurrentVotes VoteCounts `json:"current_votes"`
	Approved     *bool      `json:"approved"`
}
