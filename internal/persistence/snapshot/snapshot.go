package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	ArchiveID string `json:"archive_id"`
	Tick      uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Catalog digests at export time; a resume with different catalogs is refused.
	CatalogDigests map[string]string `json:"catalog_digests,omitempty"`

	// Seed feeds per-dig seed derivation; a resume must keep it.
	Seed               int64  `json:"seed"`
	TickRateHz         int    `json:"tick_rate_hz,omitempty"`
	SnapshotEveryTicks int    `json:"snapshot_every_ticks,omitempty"`
	VoteWindowTicks    uint64 `json:"vote_window_ticks,omitempty"`
	MinElectorate      int    `json:"min_electorate,omitempty"`

	Players         []PlayerV1    `json:"players"`
	Sites           []SiteV1      `json:"sites"`
	Research        []ResearchV1  `json:"research"`
	ResearchHistory []ResearchV1  `json:"research_history,omitempty"`
	Amendments      []AmendmentV1 `json:"amendments"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextAmendment uint64 `json:"next_amendment"`
}

type PlayerV1 struct {
	ID                    string         `json:"id"`
	Relics                []string       `json:"relics"`
	CompletedExcavations  int            `json:"completed_excavations"`
	ResearchContributions map[string]int `json:"research_contributions,omitempty"`
	ProposedAmendments    []string       `json:"proposed_amendments,omitempty"`
}

type SiteV1 struct {
	ID         string `json:"id"`
	DigsUsed   int    `json:"digs_used"`
	Depleted   bool   `json:"depleted"`
	DepletedAt uint64 `json:"depleted_at"`
}

type ResearchV1 struct {
	ProjectID    string         `json:"project_id"`
	GuildID      string         `json:"guild_id"`
	Status       string         `json:"status"`
	CurrentPhase int            `json:"current_phase"`
	Phases       []PhaseV1      `json:"phases"`
	StartedAt    uint64         `json:"started_at"`
	CompletedAt  uint64         `json:"completed_at,omitempty"`
	Contributors map[string]int `json:"contributors,omitempty"`
}

type PhaseV1 struct {
	Current           int      `json:"current"`
	Complete          bool     `json:"complete"`
	RelicsContributed []string `json:"relics_contributed,omitempty"`
}

type AmendmentV1 struct {
	ID         string          `json:"id"`
	LoreID     string          `json:"lore_id"`
	ProposerID string          `json:"proposer_id"`
	NewText    string          `json:"new_text"`
	Reason     string          `json:"reason"`
	Yes        int             `json:"yes"`
	No         int             `json:"no"`
	Ballots    map[string]bool `json:"ballots,omitempty"`
	Status     string          `json:"status"`
	CreatedAt  uint64          `json:"created_at"`
	ResolvedAt uint64          `json:"resolved_at,omitempty"`
	Resolution string          `json:"resolution,omitempty"`
	Electorate int             `json:"electorate"`
}

// WriteSnapshot writes a zstd stream holding one JSON header line followed
// by the gob-encoded snapshot.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is duplicated inside the gob body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
