package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"archivum.ai/internal/persistence/indexdb"
	persistlog "archivum.ai/internal/persistence/log"
	"archivum.ai/internal/persistence/snapshot"
	"archivum.ai/internal/sim/archive"
	"archivum.ai/internal/sim/catalogs"
	"archivum.ai/internal/sim/engine"
	"archivum.ai/internal/sim/tuning"
	"archivum.ai/internal/transport/ws"
)

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return l, nil
}

func run(ctx context.Context, cfg serverConfig, root *zap.Logger) error {
	logger := root.Named("server")

	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}

	archiveDir := filepath.Join(cfg.DataDir, "archives", cfg.ArchiveID)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}

	snapshotToLoad := strings.TrimSpace(cfg.Snapshot)
	if snapshotToLoad == "" && cfg.LoadLatest {
		snapshotToLoad = latestSnapshot(archiveDir)
	}

	tp := strings.TrimSpace(cfg.Tuning)
	if tp == "" {
		tp = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	// Tuning is required for a fresh archive; a resume may fall back to defaults.
	tune, err := tuning.Load(tp)
	if err != nil {
		if snapshotToLoad == "" || !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load tuning: %w", err)
		}
		logger.Warn("tuning not found; using defaults", zap.String("path", tp))
		tune = tuning.Defaults()
	}

	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if s.Header.ArchiveID != "" && s.Header.ArchiveID != cfg.ArchiveID {
			return fmt.Errorf("snapshot archive id mismatch: flag=%s snap=%s", cfg.ArchiveID, s.Header.ArchiveID)
		}
		snap = &s
	}
	state, ecfg, err := buildState(cfg, cats, tune, snap)
	if err != nil {
		return err
	}
	if snap != nil {
		logger.Info("resumed from snapshot", zap.String("snapshot", filepath.Base(snapshotToLoad)), zap.Uint64("tick", snap.Header.Tick))
	}

	idx, err := openRuntimeIndex(archiveDir, cfg.IndexBackend)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cfg.ConfigDir, cats, tune); err != nil {
			logger.Warn("index upsert catalogs failed", zap.Error(err))
		}
	}

	eng := engine.New(ecfg, state, root.Named("engine"))

	tickLog := persistlog.NewTickLogger(archiveDir)
	auditLog := persistlog.NewAuditLogger(archiveDir)
	defer tickLog.Close()
	defer auditLog.Close()
	eng.SetTickLogger(multiTickLogger{tickLog, idx})
	eng.SetAuditLogger(multiAuditLogger{auditLog, idx})
	if idx != nil {
		eng.SetReadModel(idx)
	}

	snapCh := make(chan snapshot.SnapshotV1, 2)
	eng.SetSnapshotSink(snapCh)

	mux := http.NewServeMux()
	api := &httpAPI{archiveID: cfg.ArchiveID, engine: eng, idx: idx}
	api.routes(mux, cfg.EnableAdmin)
	mux.HandleFunc("/v1/ws", ws.NewServer(eng, root.Named("ws")).Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := eng.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		writeSnapshots(gctx, archiveDir, snapCh, idx, logger)
		return nil
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("archive", cfg.ArchiveID), zap.Uint64("tick", ecfg.StartTick))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// buildState creates a fresh archive, or resumes one at the tick after the
// snapshot. Values that change replay outcomes come from the snapshot.
func buildState(cfg serverConfig, cats *catalogs.Catalogs, tune tuning.Tuning, snap *snapshot.SnapshotV1) (*archive.State, engine.Config, error) {
	ecfg := engine.Config{
		ArchiveID:          cfg.ArchiveID,
		TickRateHz:         tune.TickRateHz,
		Seed:               cfg.Seed,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		IndexEveryTicks:    tune.Leaderboard.IndexEveryTicks,
		IndexLimit:         tune.Leaderboard.IndexLimit,
	}
	if snap == nil {
		return archive.New(cats, tune), ecfg, nil
	}

	tune.Amendments.VoteWindowTicks = snap.VoteWindowTicks
	if snap.MinElectorate > 0 {
		tune.Amendments.MinElectorate = snap.MinElectorate
	}
	if snap.SnapshotEveryTicks > 0 {
		tune.SnapshotEveryTicks = snap.SnapshotEveryTicks
		ecfg.SnapshotEveryTicks = snap.SnapshotEveryTicks
	}
	if snap.TickRateHz > 0 {
		ecfg.TickRateHz = snap.TickRateHz
	}
	ecfg.Seed = snap.Seed
	ecfg.StartTick = snap.Header.Tick + 1

	state := archive.New(cats, tune)
	if err := state.ImportSnapshot(*snap); err != nil {
		return nil, ecfg, fmt.Errorf("import snapshot: %w", err)
	}
	return state, ecfg, nil
}

func writeSnapshots(ctx context.Context, archiveDir string, ch <-chan snapshot.SnapshotV1, idx *indexdb.SQLiteIndex, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := filepath.Join(archiveDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Error("snapshot write failed", zap.Uint64("tick", snap.Header.Tick), zap.Error(err))
				continue
			}
			logger.Debug("snapshot written", zap.String("path", path))
			idx.RecordSnapshot(path, snap)
		}
	}
}

func latestSnapshot(archiveDir string) string {
	dir := filepath.Join(archiveDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
