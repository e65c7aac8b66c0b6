package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"archivum.ai/internal/persistence/snapshot"
	"archivum.ai/internal/sim/archive/amendments"
	"archivum.ai/internal/sim/archive/ranking"
	"archivum.ai/internal/sim/catalogs"
	"archivum.ai/internal/sim/engine"
	"archivum.ai/internal/sim/tuning"
)

// SQLiteIndex is a secondary read model. Writes are queued and applied by a
// single goroutine in batched transactions; the JSONL logs and snapshots
// remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick        atomic.Uint64
	dropAudit       atomic.Uint64
	dropSnapshot    atomic.Uint64
	dropLeaderboard atomic.Uint64
	dropAmendments  atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqLeaderboard
	reqAmendments
)

type req struct {
	kind reqKind

	tick        engine.TickLogEntry
	audit       engine.AuditEntry
	snapshot    snapshotRow
	projTick    uint64
	leaderboard []ranking.Entry
	amendments  []amendments.Amendment
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Seed       int64
	Players    int
	Sites      int
	Research   int
	Amendments int
}

// Stats reports queue pressure; drops mean the writer fell behind.
type Stats struct {
	QueueDepth           int    `json:"queue_depth"`
	QueueCapacity        int    `json:"queue_capacity"`
	DropTickTotal        uint64 `json:"drop_tick_total"`
	DropAuditTotal       uint64 `json:"drop_audit_total"`
	DropSnapshotTotal    uint64 `json:"drop_snapshot_total"`
	DropLeaderboardTotal uint64 `json:"drop_leaderboard_total"`
	DropAmendmentsTotal  uint64 `json:"drop_amendments_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			actions INTEGER NOT NULL,
			expired INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			op TEXT NOT NULL,
			act_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_player_tick ON actions(player_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT,
			detail TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			players INTEGER NOT NULL,
			sites INTEGER NOT NULL,
			research INTEGER NOT NULL,
			amendments INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS leaderboard (
			player_id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			rank TEXT NOT NULL,
			title TEXT NOT NULL,
			score INTEGER NOT NULL,
			relics_found INTEGER NOT NULL,
			tick INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS amendments (
			id TEXT PRIMARY KEY,
			lore_id TEXT NOT NULL,
			proposer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			yes INTEGER NOT NULL,
			no INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			resolved_at INTEGER NOT NULL,
			resolution TEXT,
			tick INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_amendments_status ON amendments(status, id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:           len(s.ch),
		QueueCapacity:        cap(s.ch),
		DropTickTotal:        s.dropTick.Load(),
		DropAuditTotal:       s.dropAudit.Load(),
		DropSnapshotTotal:    s.dropSnapshot.Load(),
		DropLeaderboardTotal: s.dropLeaderboard.Load(),
		DropAmendmentsTotal:  s.dropAmendments.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry engine.TickLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry engine.AuditEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

// WriteLeaderboard replaces the leaderboard table with the projection.
func (s *SQLiteIndex) WriteLeaderboard(tick uint64, entries []ranking.Entry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqLeaderboard, projTick: tick, leaderboard: entries}, &s.dropLeaderboard)
	return nil
}

func (s *SQLiteIndex) WriteAmendments(tick uint64, rows []amendments.Amendment) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqAmendments, projTick: tick, amendments: rows}, &s.dropAmendments)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		Seed:       snap.Seed,
		Players:    len(snap.Players),
		Sites:      len(snap.Sites),
		Research:   len(snap.Research),
		Amendments: len(snap.Amendments),
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// UpsertCatalogs stores the raw catalog documents and the applied tuning
// with their digests, synchronously.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	files := []struct {
		name, file, digest string
	}{
		{"relics", "relics.json", cats.Relics.Digest},
		{"sites", "sites.json", cats.Sites.Digest},
		{"research_projects", "research_projects.json", cats.Projects.Digest},
		{"archivist_ranks", "archivist_ranks.json", cats.Ranks.Digest},
	}
	for _, f := range files {
		if configDir == "" {
			break
		}
		b, err := os.ReadFile(filepath.Join(configDir, f.file))
		if err != nil {
			continue
		}
		rows = append(rows, kv{name: f.name, digest: f.digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,actions,expired,raw_json) VALUES(?,?,?,?,?)`)
	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(tick,seq,player_id,op,act_json) VALUES(?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,target,detail,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,players,sites,research,amendments) VALUES(?,?,?,?,?,?,?)`)
	insertBoard, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaderboard(player_id,position,rank,title,score,relics_found,tick) VALUES(?,?,?,?,?,?,?)`)
	insertAmendment, _ := s.db.Prepare(`INSERT OR REPLACE INTO amendments(id,lore_id,proposer_id,status,yes,no,created_at,resolved_at,resolution,tick) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertAction, insertAudit, insertSnapshot, insertBoard, insertAmendment} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if !exec(insertTick, int64(r.tick.Tick), r.tick.Digest, len(r.tick.Actions), len(r.tick.Expired), string(b)) {
				continue
			}
			for i, a := range r.tick.Actions {
				actJSON, _ := json.Marshal(a.Act)
				if !exec(insertAction, int64(r.tick.Tick), i, a.PlayerID, a.Act.Op, string(actJSON)) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Tick), seq, a.Actor, a.Action, a.Target, a.Detail, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Players, sn.Sites, sn.Research, sn.Amendments)

		case reqLeaderboard:
			// The projection is a full top-N; older rows fall off.
			if _, err := tx.Exec(`DELETE FROM leaderboard`); err != nil {
				rollback()
				continue
			}
			for i, e := range r.leaderboard {
				if !exec(insertBoard, e.PlayerID, i+1, e.Rank, e.Title, e.Score, e.RelicsFound, int64(r.projTick)) {
					break
				}
			}

		case reqAmendments:
			for _, a := range r.amendments {
				if !exec(insertAmendment, a.ID, a.LoreID, a.ProposerID, string(a.Status), a.Yes, a.No,
					int64(a.CreatedAt), int64(a.ResolvedAt), a.Resolution, int64(r.projTick)) {
					break
				}
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

// LeaderboardRow is one indexed leaderboard line.
type LeaderboardRow struct {
	Position    int    `json:"position"`
	PlayerID    string `json:"player_id"`
	Rank        string `json:"rank"`
	Title       string `json:"title"`
	Score       int    `json:"score"`
	RelicsFound int    `json:"relics_found"`
	Tick        uint64 `json:"tick"`
}

// Leaderboard reads the last projected leaderboard. A limit <= 0 returns
// every row.
func (s *SQLiteIndex) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	q := `SELECT position,player_id,rank,title,score,relics_found,tick FROM leaderboard ORDER BY position`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LeaderboardRow{}
	for rows.Next() {
		var r LeaderboardRow
		var tick int64
		if err := rows.Scan(&r.Position, &r.PlayerID, &r.Rank, &r.Title, &r.Score, &r.RelicsFound, &tick); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

type AmendmentRow struct {
	ID         string `json:"id"`
	LoreID     string `json:"lore_id"`
	ProposerID string `json:"proposer_id"`
	Status     string `json:"status"`
	Yes        int    `json:"yes"`
	No         int    `json:"no"`
	CreatedAt  uint64 `json:"created_at"`
	ResolvedAt uint64 `json:"resolved_at,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// Amendments reads indexed amendments ordered by id; an empty status
// matches all.
func (s *SQLiteIndex) Amendments(ctx context.Context, status string) ([]AmendmentRow, error) {
	q := `SELECT id,lore_id,proposer_id,status,yes,no,created_at,resolved_at,COALESCE(resolution,'') FROM amendments`
	args := []any{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AmendmentRow{}
	for rows.Next() {
		var r AmendmentRow
		var created, resolved int64
		if err := rows.Scan(&r.ID, &r.LoreID, &r.ProposerID, &r.Status, &r.Yes, &r.No, &created, &resolved, &r.Resolution); err != nil {
			return nil, err
		}
		r.CreatedAt = uint64(created)
		r.ResolvedAt = uint64(resolved)
		out = append(out, r)
	}
	return out, rows.Err()
}
