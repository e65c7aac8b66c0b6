package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"archivum.ai/internal/persistence/indexdb"
	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/archive/amendments"
	"archivum.ai/internal/sim/engine"
)

type httpAPI struct {
	archiveID string
	engine    *engine.Engine
	idx       *indexdb.SQLiteIndex
}

func (a *httpAPI) routes(mux *http.ServeMux, enableAdmin bool) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.metrics)
	mux.HandleFunc("/v1/leaderboard", a.leaderboard)
	mux.HandleFunc("/v1/amendments", a.amendments)
	if enableAdmin {
		mux.HandleFunc("/admin/v1/state", loopbackOnly(a.adminState))
		mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(a.adminSnapshot))
	}
}

func (a *httpAPI) metrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	m := a.engine.Metrics()

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP archivum_tick Current archive tick.\n")
	fmt.Fprintf(rw, "# TYPE archivum_tick gauge\n")
	fmt.Fprintf(rw, "archivum_tick{archive=%q} %d\n", a.archiveID, m.Tick)

	fmt.Fprintf(rw, "# HELP archivum_players Players with an archive record.\n")
	fmt.Fprintf(rw, "# TYPE archivum_players gauge\n")
	fmt.Fprintf(rw, "archivum_players{archive=%q} %d\n", a.archiveID, m.Players)

	fmt.Fprintf(rw, "# HELP archivum_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE archivum_queue_depth gauge\n")
	fmt.Fprintf(rw, "archivum_queue_depth{archive=%q,queue=%q} %d\n", a.archiveID, "inbox", m.InboxDepth)

	fmt.Fprintf(rw, "# HELP archivum_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE archivum_step_ms gauge\n")
	fmt.Fprintf(rw, "archivum_step_ms{archive=%q} %.3f\n", a.archiveID, m.StepMS)

	if a.idx == nil {
		return
	}
	st := a.idx.Stats()
	fmt.Fprintf(rw, "archivum_queue_depth{archive=%q,queue=%q} %d\n", a.archiveID, "index", st.QueueDepth)
	fmt.Fprintf(rw, "# HELP archivum_index_dropped_total Index writes dropped because the writer fell behind.\n")
	fmt.Fprintf(rw, "# TYPE archivum_index_dropped_total counter\n")
	for _, kv := range []struct {
		kind string
		n    uint64
	}{
		{"tick", st.DropTickTotal},
		{"audit", st.DropAuditTotal},
		{"snapshot", st.DropSnapshotTotal},
		{"leaderboard", st.DropLeaderboardTotal},
		{"amendments", st.DropAmendmentsTotal},
	} {
		fmt.Fprintf(rw, "archivum_index_dropped_total{archive=%q,kind=%q} %d\n", a.archiveID, kv.kind, kv.n)
	}
}

// leaderboard serves the indexed projection, or asks the engine directly
// when the index is disabled.
func (a *httpAPI) leaderboard(rw http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(rw, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if a.idx != nil {
		rows, err := a.idx.Leaderboard(ctx, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, http.StatusOK, rows)
		return
	}
	a.query(ctx, rw, protocol.ActMsg{Op: protocol.OpLeaderboard, Limit: limit})
}

func (a *httpAPI) amendments(rw http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" {
		st, ok := amendments.ParseStatus(status)
		if !ok {
			http.Error(rw, "bad status", http.StatusBadRequest)
			return
		}
		status = string(st)
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if a.idx != nil {
		rows, err := a.idx.Amendments(ctx, status)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, http.StatusOK, rows)
		return
	}
	a.query(ctx, rw, protocol.ActMsg{Op: protocol.OpAmendments, Status: status})
}

func (a *httpAPI) query(ctx context.Context, rw http.ResponseWriter, act protocol.ActMsg) {
	act.Type = protocol.TypeAct
	act.ProtocolVersion = protocol.Version
	res, err := a.engine.Query(ctx, "", act)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !res.OK {
		http.Error(rw, res.Message, http.StatusBadRequest)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(res.Data)
}

func (a *httpAPI) adminState(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, struct {
		ArchiveID string            `json:"archive_id"`
		Metrics   engine.Metrics    `json:"metrics"`
		Catalogs  map[string]string `json:"catalogs"`
	}{
		ArchiveID: a.archiveID,
		Metrics:   a.engine.Metrics(),
		Catalogs:  a.engine.CatalogDigests(),
	})
}

func (a *httpAPI) adminSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	tick, err := a.engine.RequestSnapshot(ctx)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": tick, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick})
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
