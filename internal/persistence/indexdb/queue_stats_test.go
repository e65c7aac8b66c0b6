package indexdb

import (
	"testing"

	"archivum.ai/internal/persistence/snapshot"
	"archivum.ai/internal/sim/engine"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: engine.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(engine.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(engine.AuditEntry{Tick: 2})
	_ = s.WriteLeaderboard(2, nil)
	_ = s.WriteAmendments(2, nil)
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropAuditTotal != 1 {
		t.Fatalf("DropAuditTotal=%d want=1", st.DropAuditTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.DropLeaderboardTotal != 1 || st.DropAmendmentsTotal != 1 {
		t.Fatalf("projection drops mismatch: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_ClosedDropsSilently(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.closed.Store(true)
	_ = s.WriteTick(engine.TickLogEntry{Tick: 1})
	if st := s.Stats(); st.QueueDepth != 0 || st.DropTickTotal != 0 {
		t.Fatalf("expected closed index to ignore writes, got %+v", st)
	}

	var nilIdx *SQLiteIndex
	if err := nilIdx.WriteTick(engine.TickLogEntry{}); err != nil {
		t.Fatalf("nil index must be a no-op, got %v", err)
	}
}
