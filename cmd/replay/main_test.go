package main

import (
	"path/filepath"
	"strings"
	"testing"

	persistlog "archivum.ai/internal/persistence/log"
	"archivum.ai/internal/persistence/snapshot"
	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/archive"
	"archivum.ai/internal/sim/catalogs"
	"archivum.ai/internal/sim/engine"
	"archivum.ai/internal/sim/tuning"
)

func act(op string, mutate func(*protocol.ActMsg)) protocol.ActMsg {
	a := protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Op: op}
	mutate(&a)
	return a
}

// record runs five ticks of play against a fresh archive and returns the
// archive dir and the snapshot taken at tick 2.
func record(t *testing.T, cats *catalogs.Catalogs, tune tuning.Tuning) (string, snapshot.SnapshotV1) {
	t.Helper()
	dir := t.TempDir()
	eng := engine.New(engine.Config{ArchiveID: "a1", Seed: 1337, SnapshotEveryTicks: 2}, archive.New(cats, tune), nil)
	tl := persistlog.NewTickLogger(dir)
	eng.SetTickLogger(tl)
	snaps := make(chan snapshot.SnapshotV1, 4)
	eng.SetSnapshotSink(snaps)

	dig := func(player string) engine.ActionEnvelope {
		return engine.ActionEnvelope{PlayerID: player, Act: act(protocol.OpExcavate, func(a *protocol.ActMsg) { a.SiteID = "wilds_ruins" })}
	}
	ticks := [][]engine.ActionEnvelope{
		{dig("p1"), dig("p2")},
		{{PlayerID: "p1", Act: act(protocol.OpStartResearch, func(a *protocol.ActMsg) { a.ProjectID = "origin_mystery"; a.GuildID = "G" })}},
		{dig("p1"), {PlayerID: "p2", Act: act(protocol.OpContributeResearch, func(a *protocol.ActMsg) { a.ProjectID = "origin_mystery"; a.Amount = 30 })}},
		{dig("p2"), {PlayerID: "p1", Act: act(protocol.OpProposeAmendment, func(a *protocol.ActMsg) {
			a.LoreID = "lore_origin"
			a.NewText = "The void sang first."
			a.Reason = "tablet"
		})}},
		{{PlayerID: "p2", Act: act(protocol.OpVoteAmendment, func(a *protocol.ActMsg) { a.AmendmentID = "AM000001"; a.VoteYes = true; a.TotalVoters = 2 })}},
	}
	for _, batch := range ticks {
		eng.StepOnce(batch)
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close tick log: %v", err)
	}
	var snap snapshot.SnapshotV1
	select {
	case snap = <-snaps:
	default:
		t.Fatalf("expected a snapshot at tick 2")
	}
	if snap.Header.Tick != 2 {
		t.Fatalf("expected snapshot tick 2, got %d", snap.Header.Tick)
	}
	return dir, snap
}

func loadAll(t *testing.T) (*catalogs.Catalogs, tuning.Tuning) {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats, tuning.Defaults()
}

func TestReplayFromGenesis(t *testing.T) {
	cats, tune := loadAll(t)
	dir, _ := record(t, cats, tune)

	eng, err := newReplayEngine(cats, tune, nil, 1337)
	if err != nil {
		t.Fatalf("newReplayEngine: %v", err)
	}
	checked, err := replay(eng, filepath.Join(dir, "events"), 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 5 {
		t.Fatalf("expected 5 ticks checked, got %d", checked)
	}
}

func TestReplayFromSnapshot(t *testing.T) {
	cats, tune := loadAll(t)
	dir, snap := record(t, cats, tune)

	eng, err := newReplayEngine(cats, tune, &snap, 0)
	if err != nil {
		t.Fatalf("newReplayEngine: %v", err)
	}
	if eng.CurrentTick() != 3 {
		t.Fatalf("expected resume at tick 3, got %d", eng.CurrentTick())
	}
	checked, err := replay(eng, filepath.Join(dir, "events"), 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 2 {
		t.Fatalf("expected ticks 3 and 4 checked, got %d", checked)
	}
}

func TestReplayStopsAtToTick(t *testing.T) {
	cats, tune := loadAll(t)
	dir, _ := record(t, cats, tune)

	eng, _ := newReplayEngine(cats, tune, nil, 1337)
	checked, err := replay(eng, filepath.Join(dir, "events"), 1, 2)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 2 || eng.CurrentTick() != 3 {
		t.Fatalf("expected ticks 1..2 checked, got checked=%d tick=%d", checked, eng.CurrentTick())
	}
}

func TestReplayDetectsTamperedDigest(t *testing.T) {
	cats, tune := loadAll(t)
	dir := t.TempDir()
	tl := persistlog.NewTickLogger(dir)
	_ = tl.WriteTick(engine.TickLogEntry{Tick: 0, Digest: "bogus"})
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	eng, _ := newReplayEngine(cats, tune, nil, 1337)
	_, err := replay(eng, filepath.Join(dir, "events"), 0, 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch at tick 0") {
		t.Fatalf("expected digest mismatch, got %v", err)
	}
}

func TestReplayRequiresEvents(t *testing.T) {
	cats, tune := loadAll(t)
	eng, _ := newReplayEngine(cats, tune, nil, 1337)
	if _, err := replay(eng, t.TempDir(), 0, 0); err == nil || !strings.Contains(err.Error(), "no events files") {
		t.Fatalf("expected missing events error, got %v", err)
	}
}
