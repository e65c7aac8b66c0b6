package archive

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/archive/amendments"
	"archivum.ai/internal/sim/archive/research"
	"archivum.ai/internal/sim/catalogs"
	"archivum.ai/internal/sim/tuning"
)

func newState(t *testing.T) *State {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return New(cats, tuning.Defaults())
}

func TestExcavateDeterministicAcrossStates(t *testing.T) {
	a := newState(t)
	b := newState(t)
	ra := a.Excavate("p1", "wilds_ruins", 99999, 100)
	rb := b.Excavate("p1", "wilds_ruins", 99999, 100)
	if !ra.OK || !rb.OK {
		t.Fatalf("expected both digs to succeed: %+v %+v", ra, rb)
	}
	if (ra.Relic == nil) != (rb.Relic == nil) {
		t.Fatalf("expected identical find outcome, got %+v vs %+v", ra.Relic, rb.Relic)
	}
	if ra.Relic != nil && ra.Relic.ID != rb.Relic.ID {
		t.Fatalf("expected same relic, got %s vs %s", ra.Relic.ID, rb.Relic.ID)
	}
	if a.Digest() != b.Digest() {
		t.Fatalf("expected equal digests")
	}
}

func TestExcavateOutcomeIgnoresCallOrder(t *testing.T) {
	a := newState(t)
	b := newState(t)
	// Unrelated digs on b must not change the outcome of seed 7.
	for i := int64(0); i < 5; i++ {
		b.Excavate("p2", "wilds_ruins", 1000+i, uint64(i))
	}
	ra := a.Excavate("p1", "wilds_ruins", 7, 50)
	rb := b.Excavate("p1", "wilds_ruins", 7, 50)
	if diff := cmp.Diff(ra.Relic, rb.Relic); diff != "" {
		t.Fatalf("relic differs (-a +b):\n%s", diff)
	}
	if ra.XP != rb.XP || ra.Spark != rb.Spark {
		t.Fatalf("expected equal rewards, got %d/%d vs %d/%d", ra.XP, ra.Spark, rb.XP, rb.Spark)
	}
}

func TestExcavateRewardsAndCounters(t *testing.T) {
	s := newState(t)
	finds := 0
	for seed := int64(0); seed < 10; seed++ {
		res := s.Excavate("p1", "wilds_ruins", seed, uint64(seed))
		if !res.OK {
			t.Fatalf("dig %d failed: %s", seed, res.Reason)
		}
		if res.SiteDepletionRemaining != 9-int(seed) {
			t.Fatalf("expected %d digs left, got %d", 9-seed, res.SiteDepletionRemaining)
		}
		if res.Relic == nil {
			if res.XP != 0 || res.Spark != 0 || len(res.LoreUnlocked) != 0 {
				t.Fatalf("no-find must not reward: %+v", res)
			}
			continue
		}
		finds++
		if res.XP < 10 || res.Spark < 5 {
			t.Fatalf("expected xp>=10 spark>=5, got %d/%d", res.XP, res.Spark)
		}
	}
	p := s.ledger.Get("p1")
	if p.CompletedExcavations != 10 {
		t.Fatalf("expected 10 completed excavations, got %d", p.CompletedExcavations)
	}
	if finds > 0 && p.RelicCount() == 0 {
		t.Fatalf("expected found relics in archive")
	}
}

func TestSiteDepletionAndRespawn(t *testing.T) {
	s := newState(t)
	if s.GetSiteStatus("nope", 0) != nil {
		t.Fatalf("expected nil status for unknown site")
	}
	st := s.GetSiteStatus("wilds_ruins", 0)
	if st == nil || st.DigsRemaining != 10 || st.Depleted {
		t.Fatalf("expected full site, got %+v", st)
	}
	for i := 0; i < 10; i++ {
		if res := s.Excavate("p1", "wilds_ruins", int64(i), uint64(10+i)); !res.OK {
			t.Fatalf("dig %d failed: %s", i, res.Reason)
		}
	}
	// Depleted at tick 19.
	st = s.GetSiteStatus("wilds_ruins", 20)
	if st.DigsRemaining != 0 || !st.Depleted || st.RespawnIn != 599 {
		t.Fatalf("expected depleted site, got %+v", st)
	}
	res := s.Excavate("p1", "wilds_ruins", 42, 20)
	if res.OK || res.Code != protocol.ErrPrecondition || res.Relic != nil || res.Reason == "" {
		t.Fatalf("expected depleted failure, got %+v", res)
	}
	if got := s.ledger.Get("p1").CompletedExcavations; got != 10 {
		t.Fatalf("failed dig must not count, got %d", got)
	}

	st = s.GetSiteStatus("wilds_ruins", 19+600)
	if st.DigsRemaining != 10 || st.Depleted || st.RespawnIn != 0 {
		t.Fatalf("expected revived site, got %+v", st)
	}
	res = s.Excavate("p1", "wilds_ruins", 43, 19+600)
	if !res.OK || res.SiteDepletionRemaining != 9 {
		t.Fatalf("expected dig on revived site, got %+v", res)
	}
}

func TestExcavateUnknownSite(t *testing.T) {
	s := newState(t)
	res := s.Excavate("p1", "atlantis", 1, 1)
	if res.OK || res.Code != protocol.ErrNotFound || res.Relic != nil {
		t.Fatalf("expected not found, got %+v", res)
	}
	if s.ledger.Get("p1") != nil {
		t.Fatalf("failed dig must not create an archive")
	}
}

func TestDiscoverRelicIdempotent(t *testing.T) {
	s := newState(t)
	for _, id := range s.cats.Relics.IDs {
		def := s.cats.Relics.ByID[id]
		first := s.DiscoverRelic("p1", id)
		if !first.OK || first.AlreadyOwned || len(first.LoreUnlocked) != len(def.LoreChain) {
			t.Fatalf("%s: unexpected first discovery %+v", id, first)
		}
		if first.XP != def.XPReward || first.Spark != def.SparkReward {
			t.Fatalf("%s: expected relic rewards, got %d/%d", id, first.XP, first.Spark)
		}
		second := s.DiscoverRelic("p1", id)
		if !second.OK || !second.AlreadyOwned || len(second.LoreUnlocked) != 0 || second.XP != 0 {
			t.Fatalf("%s: unexpected repeat discovery %+v", id, second)
		}
	}
	if res := s.DiscoverRelic("p1", "unobtainium"); res.OK || res.Code != protocol.ErrNotFound {
		t.Fatalf("expected not found, got %+v", res)
	}
}

func TestRelicCollection(t *testing.T) {
	s := newState(t)
	empty := s.GetRelicCollection("nobody")
	if empty.Found != 0 || empty.Total != len(s.cats.Relics.IDs) || empty.Percent != 0 {
		t.Fatalf("unexpected empty collection: %+v", empty)
	}
	if len(empty.ByRarity) != len(catalogs.Rarities) {
		t.Fatalf("expected every rarity listed, got %v", empty.ByRarity)
	}
	s.DiscoverRelic("p1", "crystal_shard")
	s.DiscoverRelic("p1", "origin_fragment")
	c := s.GetRelicCollection("p1")
	if c.Found != 2 || c.ByRarity["common"].Found != 1 || c.ByRarity["legendary"].Found != 1 {
		t.Fatalf("unexpected collection: %+v", c)
	}
	if c.Percent != 2*100/c.Total {
		t.Fatalf("unexpected percent %d", c.Percent)
	}
	relics := s.GetPlayerRelics("p1")
	if len(relics) != 2 || relics[0].ID != "crystal_shard" || relics[1].ID != "origin_fragment" {
		t.Fatalf("unexpected relics: %+v", relics)
	}
	if got := s.GetPlayerRelics("nobody"); len(got) != 0 {
		t.Fatalf("expected no relics, got %+v", got)
	}
}

func TestResearchContributionScenario(t *testing.T) {
	s := newState(t)
	if res := s.StartResearchProject("G", "origin_mystery", 0); !res.OK {
		t.Fatalf("start failed: %s", res.Reason)
	}
	res := s.ContributeToResearch("p", "origin_mystery", 50, "")
	if !res.OK || res.PhaseComplete || res.GuildID != "G" {
		t.Fatalf("unexpected contribution: %+v", res)
	}
	prog := s.GetResearchProgress("origin_mystery")
	if prog == nil || prog.Phases[0].Current != 50 {
		t.Fatalf("expected phases[0].current == 50, got %+v", prog)
	}
	if got := s.ledger.Get("p").ResearchContributions["origin_mystery"]; got != 50 {
		t.Fatalf("expected ledger contribution 50, got %d", got)
	}
}

func TestResearchFullLifecycle(t *testing.T) {
	s := newState(t)
	s.StartResearchProject("G", "origin_mystery", 0)
	if r := s.StartResearchProject("G", "origin_mystery", 1); r.OK || r.Code != protocol.ErrPrecondition {
		t.Fatalf("expected duplicate start refused, got %+v", r)
	}
	if r := s.AdvanceResearchPhase("origin_mystery"); r.OK {
		t.Fatalf("advance must fail before goal")
	}
	if r := s.ContributeToResearch("p", "origin_mystery", 100, ""); !r.OK || !r.PhaseComplete {
		t.Fatalf("expected phase 0 complete, got %+v", r)
	}
	if r := s.CompleteResearch("origin_mystery"); r.OK {
		t.Fatalf("complete must fail with phases open")
	}
	if r := s.AdvanceResearchPhase("origin_mystery"); !r.OK || r.NewPhase != 1 {
		t.Fatalf("expected phase 1, got %+v", r)
	}
	if r := s.AdvanceResearchPhase("origin_mystery"); r.OK {
		t.Fatalf("advance must succeed once per phase")
	}

	s.ContributeToResearch("p", "origin_mystery", 200, "")
	if r := s.ContributeToResearch("p", "origin_mystery", 0, "stone_tablet"); r.OK || r.Code != protocol.ErrPrecondition {
		t.Fatalf("expected relic ownership check, got %+v", r)
	}
	s.DiscoverRelic("p", "stone_tablet")
	if r := s.ContributeToResearch("p", "origin_mystery", 0, "stone_tablet"); !r.OK || !r.PhaseComplete {
		t.Fatalf("expected phase 1 complete, got %+v", r)
	}
	if r := s.AdvanceResearchPhase("origin_mystery"); !r.OK || r.NewPhase != 2 {
		t.Fatalf("expected phase 2, got %+v", r)
	}
	s.DiscoverRelic("p", "founders_compass")
	s.DiscoverRelic("p", "origin_fragment")
	s.ContributeToResearch("p", "origin_mystery", 300, "founders_compass")
	if r := s.ContributeToResearch("p", "origin_mystery", 0, "origin_fragment"); !r.PhaseComplete {
		t.Fatalf("expected final phase complete, got %+v", r)
	}
	if r := s.AdvanceResearchPhase("origin_mystery"); r.OK || r.Code != protocol.ErrPrecondition {
		t.Fatalf("advance past last phase must fail, got %+v", r)
	}
	done := s.CompleteResearch("origin_mystery")
	if !done.OK || done.LoreCreated != "origin_mystery_full_legacy" || done.Reward.Spark != 500 || done.Reward.XP != 1000 {
		t.Fatalf("unexpected completion: %+v", done)
	}
	if r := s.CompleteResearch("origin_mystery"); r.OK || r.Code != protocol.ErrPrecondition {
		t.Fatalf("second completion must fail, got %+v", r)
	}
	if r := s.ContributeToResearch("p", "origin_mystery", 5, ""); r.OK || r.Code != protocol.ErrPrecondition {
		t.Fatalf("contribution to completed research must fail, got %+v", r)
	}
	prog := s.GetResearchProgress("origin_mystery")
	if prog == nil || prog.Status != "completed" || prog.Contributors["p"] != 600 {
		t.Fatalf("unexpected final progress: %+v", prog)
	}
	if got := s.GetActiveResearch("G"); len(got) != 0 {
		t.Fatalf("expected no active research, got %+v", got)
	}
}

func TestResearchInputErrors(t *testing.T) {
	s := newState(t)
	if r := s.StartResearchProject("G", "perpetual_motion", 0); r.Code != protocol.ErrNotFound {
		t.Fatalf("expected not found, got %+v", r)
	}
	if r := s.StartResearchProject("", "origin_mystery", 0); r.Code != protocol.ErrBadRequest {
		t.Fatalf("expected bad request, got %+v", r)
	}
	if r := s.ContributeToResearch("p", "origin_mystery", 10, ""); r.Code != protocol.ErrNotFound {
		t.Fatalf("expected not found without instance, got %+v", r)
	}
	s.StartResearchProject("G", "origin_mystery", 0)
	if r := s.ContributeToResearch("p", "origin_mystery", -5, ""); r.Code != protocol.ErrBadRequest {
		t.Fatalf("expected bad request for negative amount, got %+v", r)
	}
	if r := s.ContributeToResearch("p", "origin_mystery", 0, ""); r.Code != protocol.ErrBadRequest {
		t.Fatalf("expected bad request for empty contribution, got %+v", r)
	}
	if r := s.ContributeToResearch("p", "origin_mystery", 0, "unobtainium"); r.Code != protocol.ErrNotFound {
		t.Fatalf("expected not found relic, got %+v", r)
	}
	if s.GetResearchProgress("codex_restoration") != nil {
		t.Fatalf("expected nil progress for unstarted project")
	}
}

func TestResearchContributionBounded(t *testing.T) {
	s := newState(t)
	s.StartResearchProject("G", "origin_mystery", 0)
	if r := s.ContributeToResearch("p", "origin_mystery", research.MaxContribution+1, ""); r.Code != protocol.ErrBadRequest {
		t.Fatalf("expected bad request above the cap, got %+v", r)
	}
	if r := s.ContributeToResearch("p", "origin_mystery", math.MaxInt, ""); r.Code != protocol.ErrBadRequest {
		t.Fatalf("expected bad request for MaxInt, got %+v", r)
	}

	last := 0
	for i := 0; i < 3; i++ {
		r := s.ContributeToResearch("p", "origin_mystery", research.MaxContribution, "")
		if !r.OK {
			t.Fatalf("contribution %d: %+v", i, r)
		}
		if r.PhaseProgress.Current < last {
			t.Fatalf("progress went backwards: %d after %d", r.PhaseProgress.Current, last)
		}
		last = r.PhaseProgress.Current
	}
	if rank := s.GetArchivistRank("p"); rank.Score <= 0 || rank.Progress < 0 {
		t.Fatalf("expected positive score, got %+v", rank)
	}
}

func TestResearchAmbiguousAcrossGuilds(t *testing.T) {
	s := newState(t)
	s.StartResearchProject("G1", "origin_mystery", 0)
	s.StartResearchProject("G2", "origin_mystery", 0)
	if r := s.ContributeToResearch("p", "origin_mystery", 10, ""); r.OK || r.Code != protocol.ErrConflict {
		t.Fatalf("expected conflict, got %+v", r)
	}
	if r := s.ContributeToGuildResearch("p", "G2", "origin_mystery", 10, ""); !r.OK || r.GuildID != "G2" {
		t.Fatalf("expected guild-scoped contribution, got %+v", r)
	}
	g1 := s.GetGuildResearchProgress("G1", "origin_mystery")
	g2 := s.GetGuildResearchProgress("G2", "origin_mystery")
	if g1.Phases[0].Current != 0 || g2.Phases[0].Current != 10 {
		t.Fatalf("guild instances must be independent: %+v %+v", g1, g2)
	}
	if s.GetResearchProgress("origin_mystery") != nil {
		t.Fatalf("expected nil progress while ambiguous")
	}
	if got := s.GetActiveResearch("G1"); len(got) != 1 || got[0].GuildID != "G1" {
		t.Fatalf("unexpected active research: %+v", got)
	}
}

func TestAmendmentFlow(t *testing.T) {
	s := newState(t)
	if r := s.ProposeAmendment("p1", "lore_origin", "", "why", 5); r.OK || r.Code != protocol.ErrBadRequest {
		t.Fatalf("expected bad request, got %+v", r)
	}
	if r := s.ProposeAmendment("p1", "lore_origin", "Make it closed source", "why", 5); r.OK {
		t.Fatalf("expected forbidden phrase rejection")
	}
	prop := s.ProposeAmendment("p1", "lore_origin", "The void sang first.", "New tablet found", 5)
	if !prop.OK || prop.Amendment.ID != "AM000001" || prop.Amendment.Status != amendments.StatusVoting {
		t.Fatalf("unexpected proposal: %+v", prop)
	}
	if got := s.ledger.Get("p1").ProposedAmendments; len(got) != 1 || got[0] != "AM000001" {
		t.Fatalf("expected proposal in archive, got %v", got)
	}

	v := s.VoteOnAmendment("v1", "AM000001", true, 3)
	if !v.OK || v.Approved != nil || v.CurrentVotes.Yes != 1 {
		t.Fatalf("expected pending after first vote, got %+v", v)
	}
	if dup := s.VoteOnAmendment("v1", "AM000001", true, 3); dup.OK || dup.Reason != "Already voted" {
		t.Fatalf("expected Already voted, got %+v", dup)
	}
	v = s.VoteOnAmendment("v2", "AM000001", true, 3)
	if !v.OK || v.Approved == nil || !*v.Approved {
		t.Fatalf("expected approval at 2/3, got %+v", v)
	}
	if late := s.VoteOnAmendment("v3", "AM000001", false, 3); late.OK || late.Code != protocol.ErrConflict {
		t.Fatalf("expected conflict on resolved amendment, got %+v", late)
	}
	if r := s.VoteOnAmendment("v1", "AM999999", true, 3); r.Code != protocol.ErrNotFound {
		t.Fatalf("expected not found, got %+v", r)
	}
	if got := s.GetAmendments(amendments.StatusApproved); len(got) != 1 {
		t.Fatalf("expected one approved amendment, got %d", len(got))
	}
}

func TestAmendmentRejectedOnceAllVoted(t *testing.T) {
	s := newState(t)
	id := s.ProposeAmendment("p1", "lore", "text", "reason", 0).Amendment.ID
	s.VoteOnAmendment("v1", id, true, 3)
	s.VoteOnAmendment("v2", id, false, 3)
	v := s.VoteOnAmendment("v3", id, false, 3)
	if !v.OK || v.Approved == nil || *v.Approved {
		t.Fatalf("expected rejection, got %+v", v)
	}
	if v.CurrentVotes != (VoteCounts{Yes: 1, No: 2}) {
		t.Fatalf("unexpected tally %+v", v.CurrentVotes)
	}
}

func TestAmendmentElectorateFixedAtProposal(t *testing.T) {
	s := newState(t)
	id := s.ProposeAmendment("mallory", "lore", "text", "reason", 1).Amendment.ID
	if got := s.Electorate(id); got != s.tune.Amendments.MinElectorate {
		t.Fatalf("expected minimum electorate %d, got %d", s.tune.Amendments.MinElectorate, got)
	}
	if v := s.VoteOnAmendment("mallory", id, true, s.Electorate(id)); !v.OK || v.Approved != nil {
		t.Fatalf("a lone yes must not approve, got %+v", v)
	}

	for _, p := range []string{"p1", "p2", "p3", "p4"} {
		s.DiscoverRelic(p, "crystal_shard")
	}
	if got := s.Electorate(id); got != 3 {
		t.Fatalf("electorate must not change after proposal, got %d", got)
	}
	id2 := s.ProposeAmendment("p1", "lore", "text", "reason", 2).Amendment.ID
	if got := s.Electorate(id2); got != 5 {
		t.Fatalf("expected electorate of 5 archives, got %d", got)
	}
	if got := s.Electorate("AM999999"); got != 5 {
		t.Fatalf("expected current electorate for unknown id, got %d", got)
	}
}

func TestDigestCoversAmendmentResolution(t *testing.T) {
	a := newState(t)
	b := newState(t)
	for _, s := range []*State{a, b} {
		id := s.ProposeAmendment("p1", "lore", "text", "reason", 0).Amendment.ID
		s.VoteOnAmendment("p1", id, false, 1)
	}
	if a.Digest() != b.Digest() {
		t.Fatalf("expected equal digests")
	}
	b.board.Get("AM000001").Resolution = "edited"
	if a.Digest() == b.Digest() {
		t.Fatalf("expected resolution to change the digest")
	}
}

func TestExpireAmendments(t *testing.T) {
	s := newState(t)
	id := s.ProposeAmendment("p1", "lore", "text", "reason", 10).Amendment.ID
	window := s.tune.Amendments.VoteWindowTicks
	if got := s.ExpireAmendments(10 + window - 1); len(got) != 0 {
		t.Fatalf("expected nothing expired yet")
	}
	got := s.ExpireAmendments(10 + window)
	if len(got) != 1 || got[0].ID != id || got[0].Status != amendments.StatusRejected {
		t.Fatalf("expected expiry, got %+v", got)
	}
}

func TestRankMonotonicInRelics(t *testing.T) {
	s := newState(t)
	prev := s.GetArchivistRank("p1")
	if prev.Score != 0 || prev.Rank.ID != "novice" {
		t.Fatalf("unexpected starting rank: %+v", prev)
	}
	for _, id := range s.cats.Relics.IDs {
		s.DiscoverRelic("p1", id)
		cur := s.GetArchivistRank("p1")
		if cur.Score < prev.Score {
			t.Fatalf("score decreased after %s: %d -> %d", id, prev.Score, cur.Score)
		}
		prev = cur
	}
	if prev.Score != 20*len(s.cats.Relics.IDs) {
		t.Fatalf("expected %d, got %d", 20*len(s.cats.Relics.IDs), prev.Score)
	}
}

func TestLeaderboard(t *testing.T) {
	s := newState(t)
	if got := s.GetArchivalLeaderboard(10); len(got) != 0 {
		t.Fatalf("expected empty leaderboard, got %+v", got)
	}
	s.DiscoverRelic("p1", "crystal_shard")
	s.DiscoverRelic("p2", "crystal_shard")
	s.DiscoverRelic("p2", "stone_tablet")
	s.ProposeAmendment("p3", "lore", "text", "reason", 0)
	board := s.GetArchivalLeaderboard(2)
	if len(board) != 2 || board[0].PlayerID != "p2" || board[0].Score != 40 || board[1].PlayerID != "p1" {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newState(t)
	s.Excavate("p1", "wilds_ruins", 3, 1)
	s.DiscoverRelic("p1", "stone_tablet")
	s.StartResearchProject("G", "origin_mystery", 2)
	s.ContributeToResearch("p1", "origin_mystery", 120, "")
	s.StartResearchProject("G", "garden_genome", 3)
	id := s.ProposeAmendment("p2", "lore", "text", "reason", 4).Amendment.ID
	s.VoteOnAmendment("v1", id, false, 5)

	snap := s.ExportSnapshot("archive_test", 4)
	restored := newState(t)
	if err := restored.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if restored.Digest() != s.Digest() {
		t.Fatalf("digest mismatch after import")
	}
	if diff := cmp.Diff(snap, restored.ExportSnapshot("archive_test", 4)); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
	next := restored.ProposeAmendment("p2", "lore", "text", "reason", 5)
	if next.Amendment.ID != "AM000002" {
		t.Fatalf("expected id counter restored, got %s", next.Amendment.ID)
	}
}

func TestImportRejectsCatalogMismatch(t *testing.T) {
	s := newState(t)
	snap := s.ExportSnapshot("a", 0)
	snap.CatalogDigests["relics"] = "deadbeef"
	if err := newState(t).ImportSnapshot(snap); err == nil {
		t.Fatalf("expected digest mismatch error")
	}
}
