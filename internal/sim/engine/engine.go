package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"archivum.ai/internal/persistence/snapshot"
	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/archive"
	"archivum.ai/internal/sim/archive/amendments"
	"archivum.ai/internal/sim/archive/ranking"
)

type Config struct {
	ArchiveID  string
	TickRateHz int
	// Seed is folded with the tick and inbox position to seed each dig.
	Seed               int64
	SnapshotEveryTicks int
	IndexEveryTicks    int
	IndexLimit         int

	// StartTick is the first tick to run: 0 for a fresh archive, the
	// snapshot tick + 1 on resume.
	StartTick uint64
}

// ActionEnvelope is one ACT from a session. Out receives the encoded
// RESULT; it may be nil.
type ActionEnvelope struct {
	PlayerID string
	Act      protocol.ActMsg
	Out      chan []byte
}

type QueryRequest struct {
	PlayerID string
	Act      protocol.ActMsg
	Resp     chan protocol.ResultMsg
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// ReadModel receives periodic projections for the index. Implementations
// must not block the loop.
type ReadModel interface {
	WriteLeaderboard(tick uint64, entries []ranking.Entry) error
	WriteAmendments(tick uint64, rows []amendments.Amendment) error
}

type TickLogEntry struct {
	Tick    uint64           `json:"tick"`
	Actions []RecordedAction `json:"actions,omitempty"`
	Expired []string         `json:"expired,omitempty"`
	Digest  string           `json:"digest"`
}

type RecordedAction struct {
	PlayerID string          `json:"player_id"`
	Act      protocol.ActMsg `json:"act"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // e.g. "EXCAVATE"
	Target string `json:"target,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type Metrics struct {
	Tick       uint64  `json:"tick"`
	Players    int     `json:"players"`
	InboxDepth int     `json:"inbox_depth"`
	StepMS     float64 `json:"step_ms"`
}

var ErrStopped = errors.New("engine stopped")

// Engine runs the archive state on a single goroutine. All state access
// goes through Run's loop; other goroutines talk to it through channels.
type Engine struct {
	cfg   Config
	state *archive.State
	log   *zap.Logger

	tick atomic.Uint64

	inbox    chan ActionEnvelope
	queries  chan QueryRequest
	snapReqs chan chan uint64
	stop     chan struct{}
	done     chan struct{}

	tickLogger   TickLogger
	auditLogger  AuditLogger
	readModel    ReadModel
	snapshotSink chan<- snapshot.SnapshotV1

	players atomic.Int64
	stepNS  atomic.Int64
}

func New(cfg Config, state *archive.State, logger *zap.Logger) *Engine {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		state:    state,
		log:      logger,
		inbox:    make(chan ActionEnvelope, 1024),
		queries:  make(chan QueryRequest, 256),
		snapReqs: make(chan chan uint64, 4),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.tick.Store(cfg.StartTick)
	e.players.Store(int64(len(state.PlayerIDs())))
	return e
}

func (e *Engine) SetTickLogger(l TickLogger)                    { e.tickLogger = l }
func (e *Engine) SetAuditLogger(l AuditLogger)                  { e.auditLogger = l }
func (e *Engine) SetReadModel(m ReadModel)                      { e.readModel = m }
func (e *Engine) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { e.snapshotSink = ch }

func (e *Engine) Inbox() chan<- ActionEnvelope { return e.inbox }
func (e *Engine) Queries() chan<- QueryRequest { return e.queries }

func (e *Engine) CurrentTick() uint64 { return e.tick.Load() }
func (e *Engine) ArchiveID() string   { return e.cfg.ArchiveID }
func (e *Engine) TickRateHz() int     { return e.cfg.TickRateHz }

// CatalogDigests is safe from any goroutine: catalogs never change after load.
func (e *Engine) CatalogDigests() map[string]string { return e.state.CatalogDigests() }

func (e *Engine) Metrics() Metrics {
	return Metrics{
		Tick:       e.tick.Load(),
		Players:    int(e.players.Load()),
		InboxDepth: len(e.inbox),
		StepMS:     float64(e.stepNS.Load()) / 1e6,
	}
}

func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	interval := time.Second / time.Duration(e.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []ActionEnvelope

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case env := <-e.inbox:
			pending = append(pending, env)
		case q := <-e.queries:
			q.Resp <- e.answer(q)
		case resp := <-e.snapReqs:
			// Between ticks the state reflects the last completed tick.
			tick := e.tick.Load()
			if tick > 0 {
				tick--
			}
			e.emitSnapshot(tick)
			resp <- tick
		case <-ticker.C:
			e.step(pending)
			pending = pending[:0]
		}
	}
}

func (e *Engine) Stop() { close(e.stop) }

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Query asks the loop to answer a read-only op.
func (e *Engine) Query(ctx context.Context, playerID string, act protocol.ActMsg) (protocol.ResultMsg, error) {
	req := QueryRequest{PlayerID: playerID, Act: act, Resp: make(chan protocol.ResultMsg, 1)}
	select {
	case e.queries <- req:
	case <-ctx.Done():
		return protocol.ResultMsg{}, ctx.Err()
	case <-e.done:
		return protocol.ResultMsg{}, ErrStopped
	}
	select {
	case r := <-req.Resp:
		return r, nil
	case <-ctx.Done():
		return protocol.ResultMsg{}, ctx.Err()
	case <-e.done:
		return protocol.ResultMsg{}, ErrStopped
	}
}

// RequestSnapshot exports a snapshot at the current tick boundary.
func (e *Engine) RequestSnapshot(ctx context.Context) (uint64, error) {
	resp := make(chan uint64, 1)
	select {
	case e.snapReqs <- resp:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-e.done:
		return 0, ErrStopped
	}
	select {
	case tick := <-resp:
		return tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-e.done:
		return 0, ErrStopped
	}
}

func (e *Engine) step(actions []ActionEnvelope) {
	start := time.Now()
	nowTick := e.tick.Load()
	e.state.Observe(nowTick)

	// Expiry runs at the tick boundary before actions, so a vote arriving
	// in the closing tick is refused.
	var expired []string
	for _, a := range e.state.ExpireAmendments(nowTick) {
		expired = append(expired, a.ID)
		e.audit(AuditEntry{Tick: nowTick, Actor: "system", Action: "EXPIRE_AMENDMENT", Target: a.ID, Detail: a.Resolution})
	}

	// Apply actions in inbox order.
	recorded := make([]RecordedAction, 0, len(actions))
	for i, env := range actions {
		env.Act.PlayerID = env.PlayerID // trust session identity
		switch env.Act.Op {
		case protocol.OpExcavate:
			env.Act.Seed = DigSeed(e.cfg.Seed, nowTick, i)
		case protocol.OpVoteAmendment:
			env.Act.TotalVoters = e.state.Electorate(env.Act.AmendmentID)
		}
		recorded = append(recorded, RecordedAction{PlayerID: env.PlayerID, Act: env.Act})
		res := e.apply(env.Act, nowTick)
		if env.Out != nil {
			if b, err := json.Marshal(res); err == nil {
				sendLatest(env.Out, b)
			}
		}
	}
	e.players.Store(int64(len(e.state.PlayerIDs())))

	digest := e.state.Digest()
	if e.tickLogger != nil {
		if err := e.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Actions: recorded, Expired: expired, Digest: digest}); err != nil {
			e.log.Warn("tick log write failed", zap.Uint64("tick", nowTick), zap.Error(err))
		}
	}

	if e.readModel != nil && e.cfg.IndexEveryTicks > 0 && nowTick%uint64(e.cfg.IndexEveryTicks) == 0 {
		e.project(nowTick)
	}

	if e.snapshotSink != nil && e.cfg.SnapshotEveryTicks > 0 && nowTick != 0 && nowTick%uint64(e.cfg.SnapshotEveryTicks) == 0 {
		e.emitSnapshot(nowTick)
	}

	e.tick.Add(1)
	e.stepNS.Store(int64(time.Since(start)))
}

// StepOnce advances a single tick with the same ordering as Run. Replays
// and tests drive the engine through it.
func (e *Engine) StepOnce(actions []ActionEnvelope) (tick uint64, digest string) {
	tick = e.tick.Load()
	e.step(actions)
	return tick, e.state.Digest()
}

func (e *Engine) emitSnapshot(tick uint64) {
	if e.snapshotSink == nil {
		return
	}
	snap := e.state.ExportSnapshot(e.cfg.ArchiveID, tick)
	snap.Seed = e.cfg.Seed
	snap.TickRateHz = e.cfg.TickRateHz
	select {
	case e.snapshotSink <- snap:
	default:
		e.log.Warn("snapshot sink backed up; dropping snapshot", zap.Uint64("tick", tick))
	}
}

func (e *Engine) project(tick uint64) {
	limit := e.cfg.IndexLimit
	if limit <= 0 {
		limit = 50
	}
	if err := e.readModel.WriteLeaderboard(tick, e.state.GetArchivalLeaderboard(limit)); err != nil {
		e.log.Warn("index leaderboard failed", zap.Error(err))
	}
	list := e.state.GetAmendments("")
	rows := make([]amendments.Amendment, 0, len(list))
	for _, a := range list {
		row := *a
		row.Ballots = nil
		rows = append(rows, row)
	}
	if err := e.readModel.WriteAmendments(tick, rows); err != nil {
		e.log.Warn("index amendments failed", zap.Error(err))
	}
}

func (e *Engine) audit(entry AuditEntry) {
	if e.auditLogger == nil {
		return
	}
	if err := e.auditLogger.WriteAudit(entry); err != nil {
		e.log.Warn("audit write failed", zap.String("action", entry.Action), zap.Error(err))
	}
}

// sendLatest drops the oldest queued message when the session is slow.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
