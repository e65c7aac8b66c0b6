package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"archivum.ai/internal/persistence/indexdb"
	"archivum.ai/internal/sim/engine"
)

// openRuntimeIndex opens the read-model index. It never affects sim
// determinism; a nil index disables it.
func openRuntimeIndex(archiveDir, backend string) (*indexdb.SQLiteIndex, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite":
		return indexdb.OpenSQLite(filepath.Join(archiveDir, "index", "archive.sqlite"))
	case "none", "off", "disabled":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", backend)
	}
}

type multiTickLogger []engine.TickLogger

func (m multiTickLogger) WriteTick(entry engine.TickLogEntry) error {
	var err error
	for _, l := range m {
		if l != nil {
			err = multierr.Append(err, l.WriteTick(entry))
		}
	}
	return err
}

type multiAuditLogger []engine.AuditLogger

func (m multiAuditLogger) WriteAudit(entry engine.AuditEntry) error {
	var err error
	for _, l := range m {
		if l != nil {
			err = multierr.Append(err, l.WriteAudit(entry))
		}
	}
	return err
}
