package archive

import (
	"strings"

	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/archive/excavation"
)

// GetSiteStatus returns nil for unknown sites.
func (s *State) GetSiteStatus(siteID string, currentTick uint64) *excavation.Status {
	def, ok := s.cats.Site(siteID)
	if !ok {
		return nil
	}
	st := excavation.StatusAt(def, s.site(siteID), currentTick)
	return &st
}

// Excavate consumes one dig at the site. The outcome depends only on the
// site and seed; the dig counter and player archive are the state touched.
func (s *State) Excavate(playerID, siteID string, seed int64, currentTick uint64) ExcavationResult {
	s.Observe(currentTick)
	if strings.TrimSpace(playerID) == "" {
		return ExcavationResult{Code: protocol.ErrBadRequest, Reason: "missing player_id", LoreUnlocked: []string{}}
	}
	def, ok := s.cats.Site(siteID)
	if !ok {
		return ExcavationResult{Code: protocol.ErrNotFound, Reason: "unknown site: " + siteID, LoreUnlocked: []string{}}
	}
	st := s.sites[siteID]
	if st == nil {
		st = &excavation.SiteState{}
		s.sites[siteID] = st
	}
	if excavation.Remaining(def, *st, currentTick) == 0 {
		return ExcavationResult{Code: protocol.ErrPrecondition, Reason: "site depleted", LoreUnlocked: []string{}}
	}

	remaining := excavation.Consume(def, st, currentTick)
	s.ledger.RecordExcavation(playerID)

	res := ExcavationResult{OK: true, LoreUnlocked: []string{}, SiteDepletionRemaining: remaining}
	draw := excavation.Resolve(def, seed, s.tune.Excavation)
	if !draw.Found {
		return res
	}
	relic, ok := s.cats.Relic(draw.RelicID)
	if !ok {
		return res
	}
	d := s.discover(playerID, relic)
	res.Relic = d.Relic
	res.LoreUnlocked = d.LoreUnlocked
	res.XP, res.Spark = excavation.Rewards(relic.Rarity, s.tune.Excavation)
	return res
}
