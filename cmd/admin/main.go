package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "archivum.ai/internal/persistence/log"
	"archivum.ai/internal/sim/engine"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	archiveID := fs.String("archive", "", "archive id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "archives")
	if *archiveID != "" {
		base = filepath.Join(base, *archiveID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	archiveID := fs.String("archive", "", "archive id")
	actor := fs.String("actor", "", "actor filter")
	action := fs.String("action", "", "action filter, e.g. EXCAVATE")
	target := fs.String("target", "", "target filter (site, relic, project or amendment id)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	newestFirst := fs.Bool("reverse", false, "print newest entries first")
	_ = fs.Parse(args)

	if strings.TrimSpace(*archiveID) == "" {
		fmt.Fprintln(os.Stderr, "missing -archive")
		os.Exit(2)
	}
	f := auditFilter{
		Actor:     strings.TrimSpace(*actor),
		Action:    strings.ToUpper(strings.TrimSpace(*action)),
		Target:    strings.TrimSpace(*target),
		SinceTick: *sinceTick,
		ToTick:    *toTick,
	}
	recs, err := readAudit(filepath.Join(*dataDir, "archives", *archiveID), f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if *newestFirst {
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Tick > recs[j].Tick })
	}
	for _, r := range recs {
		printJSON(os.Stdout, r)
	}
}

type auditFilter struct {
	Actor     string
	Action    string
	Target    string
	SinceTick uint64
	ToTick    uint64 // 0 means no upper bound
}

func (f auditFilter) match(e engine.AuditEntry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Target != "" && e.Target != f.Target {
		return false
	}
	if e.Tick < f.SinceTick {
		return false
	}
	return f.ToTick == 0 || e.Tick <= f.ToTick
}

var errAuditDone = errors.New("audit done")

// readAudit returns matching audit entries in log order.
func readAudit(archiveDir string, f auditFilter) ([]engine.AuditEntry, error) {
	files, err := persistlog.ListFiles(filepath.Join(archiveDir, "audit"), "audit")
	if err != nil {
		return nil, err
	}
	out := make([]engine.AuditEntry, 0, 256)
	for _, path := range files {
		err := persistlog.ScanFile(path, func(line []byte) error {
			var e engine.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if f.ToTick != 0 && e.Tick > f.ToTick {
				return errAuditDone
			}
			if f.match(e) {
				out = append(out, e)
			}
			return nil
		})
		if errors.Is(err, errAuditDone) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
