package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "3000.snap.zst")
	in := SnapshotV1{
		Header:          Header{Version: Version, ArchiveID: "archive_1", Tick: 3000},
		CatalogDigests:  map[string]string{"relics": "abc"},
		VoteWindowTicks: 36000,
		Players: []PlayerV1{{
			ID:                    "p1",
			Relics:                []string{"crystal_shard", "stone_tablet"},
			CompletedExcavations:  4,
			ResearchContributions: map[string]int{"origin_mystery": 50},
			ProposedAmendments:    []string{"AM000001"},
		}},
		Sites: []SiteV1{{ID: "wilds_ruins", DigsUsed: 10, Depleted: true, DepletedAt: 2990}},
		Research: []ResearchV1{{
			ProjectID: "origin_mystery",
			GuildID:   "G1",
			Status:    "active",
			Phases:    []PhaseV1{{Current: 50}, {}, {}},
		}},
		Amendments: []AmendmentV1{{
			ID: "AM000001", LoreID: "lore_origin", ProposerID: "p1", NewText: "t", Reason: "r",
			Yes: 1, Ballots: map[string]bool{"p2": true}, Status: "voting", CreatedAt: 10,
		}},
		Counters: CountersV1{NextAmendment: 1},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Tick != 3000 || h.ArchiveID != "archive_1" {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestReadSnapshotRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.snap.zst")
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 9, Tick: 1}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
