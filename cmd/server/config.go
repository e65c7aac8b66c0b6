package main

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// serverConfig holds process options. Environment variables set the
// defaults; command-line flags override them.
type serverConfig struct {
	Addr      string `env:"ARCHIVUM_ADDR" envDefault:":8080"`
	ArchiveID string `env:"ARCHIVUM_ARCHIVE_ID" envDefault:"archive_1"`
	Seed      int64  `env:"ARCHIVUM_SEED" envDefault:"1337"`
	ConfigDir string `env:"ARCHIVUM_CONFIGS" envDefault:"./configs"`
	DataDir   string `env:"ARCHIVUM_DATA" envDefault:"./data"`
	Tuning    string `env:"ARCHIVUM_TUNING"`

	Snapshot   string `env:"ARCHIVUM_SNAPSHOT"`
	LoadLatest bool   `env:"ARCHIVUM_LOAD_LATEST_SNAPSHOT" envDefault:"true"`

	IndexBackend string `env:"ARCHIVUM_INDEX_BACKEND" envDefault:"sqlite"`
	EnableAdmin  bool   `env:"ARCHIVUM_ENABLE_ADMIN_HTTP" envDefault:"true"`
	Debug        bool   `env:"ARCHIVUM_DEBUG"`
}

func parseConfig(fs *flag.FlagSet, args []string) (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	fs.StringVar(&cfg.ArchiveID, "archive", cfg.ArchiveID, "archive id")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "dig seed base (used only when starting a fresh archive)")
	fs.StringVar(&cfg.ConfigDir, "configs", cfg.ConfigDir, "config directory")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	fs.StringVar(&cfg.Tuning, "tuning", cfg.Tuning, "path to tuning.yaml (default: <configs>/tuning.yaml)")
	fs.StringVar(&cfg.Snapshot, "snapshot", cfg.Snapshot, "path to snapshot to load (optional)")
	fs.BoolVar(&cfg.LoadLatest, "load_latest_snapshot", cfg.LoadLatest, "load latest snapshot from data dir if present (when -snapshot is empty)")
	fs.StringVar(&cfg.IndexBackend, "index", cfg.IndexBackend, "read-model index backend: sqlite|none")
	fs.BoolVar(&cfg.EnableAdmin, "admin", cfg.EnableAdmin, "enable loopback-only admin endpoints")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "debug logging")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}
