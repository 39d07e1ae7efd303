package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"localsolana/config"
	"localsolana/core/events"
	"localsolana/native/escrow"
	"localsolana/observability/logging"
	"localsolana/rpc"
	"localsolana/services/evidence"
	"localsolana/state"
	"localsolana/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LOCALSOLANA_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Env
	}
	logger := logging.Setup("escrowd", env, logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	arbitrator, err := cfg.ArbitratorAddress()
	if err != nil {
		logger.Error("invalid arbitrator configuration", "err", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("failed to open ledger database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := evidence.Open(cfg.EvidenceDB)
	if err != nil {
		logger.Error("failed to open evidence store", "err", err)
		os.Exit(1)
	}

	mgr := state.NewManager(db)
	engine := escrow.NewEngine()
	engine.SetState(mgr)
	engine.SetArbitrator(arbitrator)
	engine.SetWindows(cfg.Windows())
	engine.SetEmitter(events.Fanout{evidence.NewRecorder(store, logger)})

	logger.Info("escrow ledger ready",
		"arbitrator", arbitrator.String(),
		"dataDir", cfg.DataDir,
	)

	server := rpc.NewServer(engine, mgr, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "err", err)
		os.Exit(1)
	}
}
