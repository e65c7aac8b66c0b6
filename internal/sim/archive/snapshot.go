package archive

import (
	"fmt"
	"sort"

	"archivum.ai/internal/persistence/snapshot"
	"archivum.ai/internal/sim/archive/amendments"
	"archivum.ai/internal/sim/archive/excavation"
	"archivum.ai/internal/sim/archive/ledger"
	"archivum.ai/internal/sim/archive/research"
)

// CatalogDigests names each loaded catalog's digest.
func (s *State) CatalogDigests() map[string]string {
	return map[string]string{
		"relics":            s.cats.Relics.Digest,
		"sites":             s.cats.Sites.Digest,
		"research_projects": s.cats.Projects.Digest,
		"archivist_ranks":   s.cats.Ranks.Digest,
	}
}

func (s *State) ExportSnapshot(archiveID string, tick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header:             snapshot.Header{Version: snapshot.Version, ArchiveID: archiveID, Tick: tick},
		CatalogDigests:     s.CatalogDigests(),
		SnapshotEveryTicks: s.tune.SnapshotEveryTicks,
		VoteWindowTicks:    s.tune.Amendments.VoteWindowTicks,
		MinElectorate:      s.tune.Amendments.MinElectorate,
		Counters:           snapshot.CountersV1{NextAmendment: s.board.NextSeq()},
	}

	for _, id := range s.ledger.PlayerIDs() {
		p := s.ledger.Get(id)
		pv := snapshot.PlayerV1{
			ID:                   id,
			Relics:               p.RelicIDs(),
			CompletedExcavations: p.CompletedExcavations,
			ProposedAmendments:   append([]string(nil), p.ProposedAmendments...),
		}
		if len(p.ResearchContributions) > 0 {
			pv.ResearchContributions = make(map[string]int, len(p.ResearchContributions))
			for k, v := range p.ResearchContributions {
				pv.ResearchContributions[k] = v
			}
		}
		snap.Players = append(snap.Players, pv)
	}

	siteIDs := make([]string, 0, len(s.sites))
	for id := range s.sites {
		siteIDs = append(siteIDs, id)
	}
	sort.Strings(siteIDs)
	for _, id := range siteIDs {
		st := s.sites[id]
		snap.Sites = append(snap.Sites, snapshot.SiteV1{ID: id, DigsUsed: st.DigsUsed, Depleted: st.Depleted, DepletedAt: st.DepletedAt})
	}

	for _, k := range s.research.Keys() {
		snap.Research = append(snap.Research, exportInstance(s.research.Get(k)))
	}
	for _, inst := range s.research.History {
		snap.ResearchHistory = append(snap.ResearchHistory, exportInstance(inst))
	}

	for _, a := range s.board.List("") {
		av := snapshot.AmendmentV1{
			ID:         a.ID,
			LoreID:     a.LoreID,
			ProposerID: a.ProposerID,
			NewText:    a.NewText,
			Reason:     a.Reason,
			Yes:        a.Yes,
			No:         a.No,
			Status:     string(a.Status),
			CreatedAt:  a.CreatedAt,
			ResolvedAt: a.ResolvedAt,
			Resolution: a.Resolution,
			Electorate: a.Electorate,
		}
		if len(a.Ballots) > 0 {
			av.Ballots = make(map[string]bool, len(a.Ballots))
			for k, v := range a.Ballots {
				av.Ballots[k] = v
			}
		}
		snap.Amendments = append(snap.Amendments, av)
	}
	return snap
}

func exportInstance(inst *research.Instance) snapshot.ResearchV1 {
	rv := snapshot.ResearchV1{
		ProjectID:    inst.Key.ProjectID,
		GuildID:      inst.Key.GuildID,
		Status:       string(inst.Status),
		CurrentPhase: inst.CurrentPhase,
		StartedAt:    inst.StartedAt,
		CompletedAt:  inst.CompletedAt,
		Phases:       make([]snapshot.PhaseV1, len(inst.Phases)),
	}
	for i, ph := range inst.Phases {
		pv := snapshot.PhaseV1{Current: ph.Current, Complete: ph.Complete}
		for r, ok := range ph.RelicsContributed {
			if ok {
				pv.RelicsContributed = append(pv.RelicsContributed, r)
			}
		}
		sort.Strings(pv.RelicsContributed)
		rv.Phases[i] = pv
	}
	if len(inst.Contributors) > 0 {
		rv.Contributors = make(map[string]int, len(inst.Contributors))
		for k, v := range inst.Contributors {
			rv.Contributors[k] = v
		}
	}
	return rv
}

// ImportSnapshot replaces all mutable state. The snapshot must have been
// taken against the same catalogs.
func (s *State) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	cur := s.CatalogDigests()
	for name, d := range snap.CatalogDigests {
		if cur[name] != d {
			return fmt.Errorf("catalog %s digest mismatch: snapshot %s, loaded %s", name, d, cur[name])
		}
	}

	l := ledger.New()
	for _, pv := range snap.Players {
		p := &ledger.PlayerArchive{
			PlayerID:              pv.ID,
			Relics:                make(map[string]struct{}, len(pv.Relics)),
			CompletedExcavations:  pv.CompletedExcavations,
			ResearchContributions: map[string]int{},
			ProposedAmendments:    append([]string(nil), pv.ProposedAmendments...),
		}
		for _, r := range pv.Relics {
			p.Relics[r] = struct{}{}
		}
		for k, v := range pv.ResearchContributions {
			p.ResearchContributions[k] = v
		}
		l.Put(p)
	}

	sites := make(map[string]*excavation.SiteState, len(snap.Sites))
	for _, sv := range snap.Sites {
		if _, ok := s.cats.Site(sv.ID); !ok {
			return fmt.Errorf("snapshot references unknown site %s", sv.ID)
		}
		sites[sv.ID] = &excavation.SiteState{DigsUsed: sv.DigsUsed, Depleted: sv.Depleted, DepletedAt: sv.DepletedAt}
	}

	coord := research.NewCoordinator()
	for _, rv := range snap.Research {
		inst, err := s.importInstance(rv)
		if err != nil {
			return err
		}
		coord.Put(inst)
	}
	for _, rv := range snap.ResearchHistory {
		inst, err := s.importInstance(rv)
		if err != nil {
			return err
		}
		coord.History = append(coord.History, inst)
	}

	board := amendments.NewBoard()
	list := make([]*amendments.Amendment, 0, len(snap.Amendments))
	for _, av := range snap.Amendments {
		st, ok := amendments.ParseStatus(av.Status)
		if !ok {
			return fmt.Errorf("amendment %s: bad status %q", av.ID, av.Status)
		}
		a := &amendments.Amendment{
			ID:         av.ID,
			LoreID:     av.LoreID,
			ProposerID: av.ProposerID,
			NewText:    av.NewText,
			Reason:     av.Reason,
			Yes:        av.Yes,
			No:         av.No,
			Ballots:    map[string]bool{},
			Status:     st,
			CreatedAt:  av.CreatedAt,
			ResolvedAt: av.ResolvedAt,
			Resolution: av.Resolution,
			Electorate: av.Electorate,
		}
		for k, v := range av.Ballots {
			a.Ballots[k] = v
		}
		list = append(list, a)
	}
	board.Restore(list, snap.Counters.NextAmendment)

	s.ledger = l
	s.sites = sites
	s.research = coord
	s.board = board
	s.now = snap.Header.Tick
	return nil
}

func (s *State) importInstance(rv snapshot.ResearchV1) (*research.Instance, error) {
	def, ok := s.cats.Project(rv.ProjectID)
	if !ok {
		return nil, fmt.Errorf("snapshot references unknown project %s", rv.ProjectID)
	}
	if len(rv.Phases) != len(def.Phases) || rv.CurrentPhase < 0 || rv.CurrentPhase >= len(def.Phases) {
		return nil, fmt.Errorf("research %s/%s: phase layout does not match catalog", rv.ProjectID, rv.GuildID)
	}
	st := research.Status(rv.Status)
	if st != research.StatusActive && st != research.StatusCompleted {
		return nil, fmt.Errorf("research %s/%s: bad status %q", rv.ProjectID, rv.GuildID, rv.Status)
	}
	inst := &research.Instance{
		Key:          research.Key{ProjectID: rv.ProjectID, GuildID: rv.GuildID},
		Status:       st,
		CurrentPhase: rv.CurrentPhase,
		Phases:       make([]research.PhaseState, len(rv.Phases)),
		StartedAt:    rv.StartedAt,
		CompletedAt:  rv.CompletedAt,
		Contributors: map[string]int{},
	}
	for i, pv := range rv.Phases {
		ps := research.PhaseState{Current: pv.Current, Complete: pv.Complete, RelicsContributed: map[string]bool{}}
		for _, r := range pv.RelicsContributed {
			ps.RelicsContributed[r] = true
		}
		inst.Phases[i] = ps
	}
	for k, v := range rv.Contributors {
		inst.Contributors[k] = v
	}
	return inst, nil
}
