package protocol

// Action ops. Mutations run inside the tick that drains them; queries are
// answered between ticks against the same state.
const (
	OpExcavate           = "EXCAVATE"
	OpDiscoverRelic      = "DISCOVER_RELIC"
	OpStartResearch      = "START_RESEARCH"
	OpContributeResearch = "CONTRIBUTE_RESEARCH"
	OpAdvanceResearch    = "ADVANCE_RESEARCH"
	OpCompleteResearch   = "COMPLETE_RESEARCH"
	OpProposeAmendment   = "PROPOSE_AMENDMENT"
	OpVoteAmendment      = "VOTE_AMENDMENT"

	OpSiteStatus       = "SITE_STATUS"
	OpPlayerRelics     = "PLAYER_RELICS"
	OpRelicCollection  = "RELIC_COLLECTION"
	OpResearchProgress = "RESEARCH_PROGRESS"
	OpActiveResearch   = "ACTIVE_RESEARCH"
	OpAmendments       = "AMENDMENTS"
	OpArchivistRank    = "ARCHIVIST_RANK"
	OpLeaderboard      = "LEADERBOARD"
)

var mutationOps = map[string]struct{}{
	OpExcavate:           {},
	OpDiscoverRelic:      {},
	OpStartResearch:      {},
	OpContributeResearch: {},
	OpAdvanceResearch:    {},
	OpCompleteResearch:   {},
	OpProposeAmendment:   {},
	OpVoteAmendment:      {},
}

var queryOps = map[string]struct{}{
	OpSiteStatus:       {},
	OpPlayerRelics:     {},
	OpRelicCollection:  {},
	OpResearchProgress: {},
	OpActiveResearch:   {},
	OpAmendments:       {},
	OpArchivistRank:    {},
	OpLeaderboard:      {},
}

func IsMutation(op string) bool {
	_, ok := mutationOps[op]
	return ok
}

func IsQuery(op string) bool {
	_, ok := queryOps[op]
	return ok
}

// ACT (client -> server). Only the fields the op needs are set.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActID           string `json:"act_id"`
	Op              string `json:"op"`

	// PlayerID is filled from the session; queries may name another player.
	PlayerID string `json:"player_id,omitempty"`

	SiteID      string `json:"site_id,omitempty"`
	RelicID     string `json:"relic_id,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	GuildID     string `json:"guild_id,omitempty"`
	Amount      int    `json:"amount,omitempty"`
	LoreID      string `json:"lore_id,omitempty"`
	NewText     string `json:"new_text,omitempty"`
	Reason      string `json:"reason,omitempty"`
	AmendmentID string `json:"amendment_id,omitempty"`
	VoteYes     bool   `json:"vote_yes,omitempty"`
	TotalVoters int    `json:"total_voters,omitempty"`
	Status      string `json:"status,omitempty"`
	Limit       int    `json:"limit,omitempty"`

	// Seed and TotalVoters are assigned by the server when the act is
	// applied and recorded in the tick log; client values are overwritten.
	Seed int64 `json:"seed,omitempty"`
}
