package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "archivum.ai/internal/persistence/log"
	"archivum.ai/internal/persistence/snapshot"
	"archivum.ai/internal/sim/archive"
	"archivum.ai/internal/sim/catalogs"
	"archivum.ai/internal/sim/engine"
	"archivum.ai/internal/sim/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (empty replays from tick 0)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 1337, "dig seed base when replaying from tick 0")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d archive=%s tick=%d seed=%d players=%d sites=%d research=%d amendments=%d\n",
			s.Header.Version, s.Header.ArchiveID, s.Header.Tick, s.Seed,
			len(s.Players), len(s.Sites), len(s.Research), len(s.Amendments))
		snap = &s
	}
	if *eventsDir == "" {
		if snap == nil {
			fmt.Fprintln(os.Stderr, "missing -events or -snapshot")
			os.Exit(2)
		}
		return
	}

	eng, err := newReplayEngine(cats, tune, snap, *seed)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	checked, err := replay(eng, *eventsDir, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (start tick=%d)\n", checked, startTick(snap))
}

func startTick(snap *snapshot.SnapshotV1) uint64 {
	if snap == nil {
		return 0
	}
	return snap.Header.Tick + 1
}

// newReplayEngine rebuilds the engine the server ran: the snapshot fixes
// the seed and amendment rules, and replay resumes on the tick after it.
func newReplayEngine(cats *catalogs.Catalogs, tune tuning.Tuning, snap *snapshot.SnapshotV1, seed int64) (*engine.Engine, error) {
	cfg := engine.Config{Seed: seed, TickRateHz: tune.TickRateHz}
	if snap == nil {
		return engine.New(cfg, archive.New(cats, tune), nil), nil
	}
	tune.Amendments.VoteWindowTicks = snap.VoteWindowTicks
	if snap.MinElectorate > 0 {
		tune.Amendments.MinElectorate = snap.MinElectorate
	}
	cfg.ArchiveID = snap.Header.ArchiveID
	cfg.Seed = snap.Seed
	cfg.StartTick = startTick(snap)
	state := archive.New(cats, tune)
	if err := state.ImportSnapshot(*snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return engine.New(cfg, state, nil), nil
}

var errStop = errors.New("stop")

// replay steps the engine through the tick log and compares digests.
// Entries before the engine's tick are skipped; a gap is an error.
func replay(eng *engine.Engine, eventsDir string, verifyFrom, toTick uint64) (checked uint64, err error) {
	files, err := persistlog.ListFiles(eventsDir, "events")
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no events files found in %s", eventsDir)
	}

	step := func(line []byte) error {
		var entry engine.TickLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if entry.Tick < eng.CurrentTick() {
			return nil
		}
		if toTick != 0 && entry.Tick > toTick {
			return errStop
		}
		if entry.Tick != eng.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", eng.CurrentTick(), entry.Tick)
		}

		acts := make([]engine.ActionEnvelope, 0, len(entry.Actions))
		for _, ra := range entry.Actions {
			acts = append(acts, engine.ActionEnvelope{PlayerID: ra.PlayerID, Act: ra.Act})
		}
		tick, got := eng.StepOnce(acts)
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
		}
		if tick >= verifyFrom {
			checked++
			if got != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, got, entry.Digest)
			}
		}
		return nil
	}

	for _, path := range files {
		if err := persistlog.ScanFile(path, step); err != nil {
			if errors.Is(err, errStop) {
				break
			}
			return checked, err
		}
	}
	return checked, nil
}
