package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/archive"
	"archivum.ai/internal/sim/catalogs"
	"archivum.ai/internal/sim/engine"
	"archivum.ai/internal/sim/tuning"
)

func TestPlayerID(t *testing.T) {
	cases := map[string]string{
		"Ada Lovelace":  "ada_lovelace",
		"  bob  ":       "bob",
		"x--y":          "x--y",
		"!!!":           "player",
		"":              "player",
		"Ünïcode Name!": "n_code_name",
	}
	cases[strings.Repeat("a", 40)] = strings.Repeat("a", 32)
	for in, want := range cases {
		if got := PlayerID(in); got != want {
			t.Fatalf("PlayerID(%q): expected %q, got %q", in, want, got)
		}
	}
}

func startServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	e := engine.New(engine.Config{ArchiveID: "archive_ws", TickRateHz: 50, Seed: 7}, archive.New(cats, tuning.Defaults()), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = e.Run(ctx) }()
	srv := httptest.NewServer(NewServer(e, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-e.Done()
	})
	return srv, e
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}

func hello(t *testing.T, conn *websocket.Conn, name, guild string) protocol.WelcomeMsg {
	t.Helper()
	if err := conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      name,
		GuildID:         guild,
	}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	var w protocol.WelcomeMsg
	readJSON(t, conn, &w)
	return w
}

func TestHandshakeAndActs(t *testing.T) {
	srv, e := startServer(t)
	conn := dial(t, srv)

	w := hello(t, conn, "Ada Lovelace", "G1")
	if w.Type != protocol.TypeWelcome || w.PlayerID != "ada_lovelace" || w.GuildID != "G1" {
		t.Fatalf("unexpected welcome: %+v", w)
	}
	if w.SessionID == "" || w.ArchiveParams.ArchiveID != "archive_ws" || w.ArchiveParams.TickRateHz != 50 {
		t.Fatalf("unexpected welcome params: %+v", w)
	}
	if w.Catalogs.Relics != e.CatalogDigests()["relics"] || len(w.Catalogs.Relics) != 64 {
		t.Fatalf("unexpected catalog digests: %+v", w.Catalogs)
	}

	// Mutation goes through the inbox and comes back on the next tick.
	if err := conn.WriteJSON(protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ActID: "a1",
		Op: protocol.OpDiscoverRelic, RelicID: "petrified_bloom",
	}); err != nil {
		t.Fatalf("write act: %v", err)
	}
	var res protocol.ResultMsg
	readJSON(t, conn, &res)
	if res.ActID != "a1" || !res.OK {
		t.Fatalf("expected ok discovery, got %+v", res)
	}

	// Queries are answered between ticks.
	if err := conn.WriteJSON(protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ActID: "q1",
		Op: protocol.OpPlayerRelics,
	}); err != nil {
		t.Fatalf("write query: %v", err)
	}
	readJSON(t, conn, &res)
	if res.ActID != "q1" || !res.OK {
		t.Fatalf("expected ok query, got %+v", res)
	}
	var relics []catalogs.RelicDef
	if err := json.Unmarshal(res.Data, &relics); err != nil {
		t.Fatalf("decode relics: %v", err)
	}
	if len(relics) != 1 || relics[0].ID != "petrified_bloom" {
		t.Fatalf("expected petrified_bloom, got %+v", relics)
	}

	// The session guild fills START_RESEARCH.
	if err := conn.WriteJSON(protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ActID: "s1",
		Op: protocol.OpStartResearch, ProjectID: "origin_mystery",
	}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readJSON(t, conn, &res)
	if res.ActID != "s1" || !res.OK {
		t.Fatalf("expected research start in session guild, got %+v", res)
	}
}

func TestSchemaViolationIsRejected(t *testing.T) {
	srv, _ := startServer(t)
	conn := dial(t, srv)
	hello(t, conn, "bob", "")

	// EXCAVATE without site_id.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ACT","protocol_version":"1.0","act_id":"x","op":"EXCAVATE"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var res protocol.ResultMsg
	readJSON(t, conn, &res)
	if res.OK || res.Code != protocol.ErrProtoBadRequest || res.ActID != "x" {
		t.Fatalf("expected proto bad request, got %+v", res)
	}
}

func TestHandshakeRequiresHello(t *testing.T) {
	srv, _ := startServer(t)
	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ACT","protocol_version":"1.0","op":"LEADERBOARD"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}
