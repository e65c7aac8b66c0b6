package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"archivum.ai/internal/sim/archive/amendments"
)

type dbOpts struct {
	Limit  int
	Player string
	Status string
	Tick   uint64
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	archiveID := fs.String("archive", "", "archive id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	player := fs.String("player", "", "player_id filter (actions, audits)")
	status := fs.String("status", "", "status filter (amendments)")
	tick := fs.Uint64("tick", 0, "tick filter (actions, audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*archiveID) == "" {
			fmt.Fprintln(os.Stderr, "missing -archive or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "archives", *archiveID, "index", "archive.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	opts := dbOpts{Limit: *limit, Player: strings.TrimSpace(*player), Status: strings.TrimSpace(*status), Tick: *tick}
	if err := runDBQuery(db, os.Stdout, q, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-archive ID|-db PATH] snapshots|ticks|actions|audits|leaderboard|amendments|catalogs")
		os.Exit(1)
	}
}

func runDBQuery(db *sql.DB, w io.Writer, q string, o dbOpts) error {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,seed,players,sites,research,amendments FROM snapshots ORDER BY tick DESC LIMIT ?`, o.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick       int64  `json:"tick"`
				Path       string `json:"path"`
				Seed       int64  `json:"seed"`
				Players    int    `json:"players"`
				Sites      int    `json:"sites"`
				Research   int    `json:"research"`
				Amendments int    `json:"amendments"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Players, &r.Sites, &r.Research, &r.Amendments); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT tick,digest,actions,expired FROM ticks ORDER BY tick DESC LIMIT ?`, o.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    int64  `json:"tick"`
				Digest  string `json:"digest"`
				Actions int    `json:"actions"`
				Expired int    `json:"expired"`
			}
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Actions, &r.Expired); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "actions":
		where, args := tickPlayerFilter("player_id", o)
		rows, err := db.Query(`SELECT tick,seq,player_id,op,act_json FROM actions`+where+` ORDER BY tick DESC, seq DESC LIMIT ?`, append(args, o.Limit)...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int64  `json:"tick"`
				Seq      int    `json:"seq"`
				PlayerID string `json:"player_id"`
				Op       string `json:"op"`
				ActJSON  string `json:"act_json"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.PlayerID, &r.Op, &r.ActJSON); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "audits":
		where, args := tickPlayerFilter("actor", o)
		rows, err := db.Query(`SELECT tick,seq,actor,action,COALESCE(target,''),COALESCE(detail,'') FROM audits`+where+` ORDER BY tick DESC, seq DESC LIMIT ?`, append(args, o.Limit)...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick   int64  `json:"tick"`
				Seq    int    `json:"seq"`
				Actor  string `json:"actor"`
				Action string `json:"action"`
				Target string `json:"target,omitempty"`
				Detail string `json:"detail,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.Actor, &r.Action, &r.Target, &r.Detail); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "leaderboard":
		rows, err := db.Query(`SELECT position,player_id,rank,title,score,relics_found,tick FROM leaderboard ORDER BY position LIMIT ?`, o.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Position    int    `json:"position"`
				PlayerID    string `json:"player_id"`
				Rank        string `json:"rank"`
				Title       string `json:"title"`
				Score       int    `json:"score"`
				RelicsFound int    `json:"relics_found"`
				Tick        int64  `json:"tick"`
			}
			if err := rows.Scan(&r.Position, &r.PlayerID, &r.Rank, &r.Title, &r.Score, &r.RelicsFound, &r.Tick); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "amendments":
		q := `SELECT id,lore_id,proposer_id,status,yes,no,created_at,resolved_at,COALESCE(resolution,'') FROM amendments`
		args := []any{}
		if o.Status != "" {
			st, ok := amendments.ParseStatus(o.Status)
			if !ok {
				return fmt.Errorf("bad status: %s", o.Status)
			}
			q += ` WHERE status = ?`
			args = append(args, string(st))
		}
		rows, err := db.Query(q+` ORDER BY id LIMIT ?`, append(args, o.Limit)...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID         string `json:"id"`
				LoreID     string `json:"lore_id"`
				ProposerID string `json:"proposer_id"`
				Status     string `json:"status"`
				Yes        int    `json:"yes"`
				No         int    `json:"no"`
				CreatedAt  int64  `json:"created_at"`
				ResolvedAt int64  `json:"resolved_at,omitempty"`
				Resolution string `json:"resolution,omitempty"`
			}
			if err := rows.Scan(&r.ID, &r.LoreID, &r.ProposerID, &r.Status, &r.Yes, &r.No, &r.CreatedAt, &r.ResolvedAt, &r.Resolution); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func tickPlayerFilter(playerCol string, o dbOpts) (string, []any) {
	var conds []string
	var args []any
	if o.Tick != 0 {
		conds = append(conds, "tick = ?")
		args = append(args, int64(o.Tick))
	}
	if o.Player != "" {
		conds = append(conds, playerCol+" = ?")
		args = append(args, o.Player)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
