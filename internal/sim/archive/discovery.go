package archive

import (
	"strings"

	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/catalogs"
)

// DiscoverRelic adds a relic to the player's archive. A repeat discovery
// succeeds with AlreadyOwned set and unlocks nothing.
func (s *State) DiscoverRelic(playerID, relicID string) DiscoveryResult {
	if strings.TrimSpace(playerID) == "" {
		return DiscoveryResult{Code: protocol.ErrBadRequest, Reason: "missing player_id"}
	}
	def, ok := s.cats.Relic(relicID)
	if !ok {
		return DiscoveryResult{Code: protocol.ErrNotFound, Reason: "unknown relic: " + relicID}
	}
	return s.discover(playerID, def)
}

func (s *State) discover(playerID string, def catalogs.RelicDef) DiscoveryResult {
	relic := def
	if !s.ledger.AddRelic(playerID, def.ID) {
		return DiscoveryResult{OK: true, Relic: &relic, LoreUnlocked: []string{}, AlreadyOwned: true}
	}
	lore := append([]string(nil), def.LoreChain...)
	return DiscoveryResult{
		OK:           true,
		Relic:        &relic,
		LoreUnlocked: lore,
		XP:           def.XPReward,
		Spark:        def.SparkReward,
	}
}

// GetPlayerRelics returns the player's relics sorted by id; unknown
// players own nothing.
func (s *State) GetPlayerRelics(playerID string) []catalogs.RelicDef {
	p := s.ledger.Get(playerID)
	out := make([]catalogs.RelicDef, 0, p.RelicCount())
	for _, id := range p.RelicIDs() {
		if def, ok := s.cats.Relic(id); ok {
			out = append(out, def)
		}
	}
	return out
}

func (s *State) GetRelicCollection(playerID string) Collection {
	p := s.ledger.Get(playerID)
	c := Collection{
		Total:    len(s.cats.Relics.IDs),
		ByRarity: make(map[string]RarityCount, len(catalogs.Rarities)),
	}
	for _, r := range catalogs.Rarities {
		c.ByRarity[r] = RarityCount{}
	}
	for _, id := range s.cats.Relics.IDs {
		def := s.cats.Relics.ByID[id]
		rc := c.ByRarity[def.Rarity]
		rc.Total++
		if p.Owns(id) {
			rc.Found++
			c.Found++
		}
		c.ByRarity[def.Rarity] = rc
	}
	if c.Total > 0 {
		c.Percent = c.Found * 100 / c.Total
	}
	return c
}
