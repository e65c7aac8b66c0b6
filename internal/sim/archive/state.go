package archive

import (
	"archivum.ai/internal/sim/archive/amendments"
	"archivum.ai/internal/sim/archive/excavation"
	"archivum.ai/internal/sim/archive/ledger"
	"archivum.ai/internal/sim/archive/research"
	"archivum.ai/internal/sim/catalogs"
	"archivum.ai/internal/sim/tuning"
)

// State is the archival core. It is not safe for concurrent use: callers
// serialize writes, normally through the engine loop.
type State struct {
	cats *catalogs.Catalogs
	tune tuning.Tuning

	ledger   *ledger.Ledger
	sites    map[string]*excavation.SiteState
	research *research.Coordinator
	board    *amendments.Board

	// now is the latest tick supplied by any caller; it stamps resolutions
	// of operations that take no tick argument.
	now uint64
}

func New(cats *catalogs.Catalogs, tune tuning.Tuning) *State {
	return &State{
		cats:     cats,
		tune:     tune,
		ledger:   ledger.New(),
		sites:    map[string]*excavation.SiteState{},
		research: research.NewCoordinator(),
		board:    amendments.NewBoard(),
	}
}

func (s *State) Catalogs() *catalogs.Catalogs { return s.cats }
func (s *State) Tuning() tuning.Tuning        { return s.tune }

// Observe advances the state's notion of the current tick. Ticks never move backwards.
func (s *State) Observe(tick uint64) {
	if tick > s.now {
		s.now = tick
	}
}

func (s *State) Now() uint64 { return s.now }

// PlayerIDs lists every player with an archive, sorted.
func (s *State) PlayerIDs() []string { return s.ledger.PlayerIDs() }

func (s *State) site(siteID string) excavation.SiteState {
	if st := s.sites[siteID]; st != nil {
		return *st
	}
	return excavation.SiteState{}
}
