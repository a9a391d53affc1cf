// Command aiswarmctl is a read-only admin dashboard over the
// coordination kernel's SQLite store. It never starts the kernel
// itself — that is cmd/aiswarm's job — it only observes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aiswarm/swarmd/internal/config"
	"github.com/aiswarm/swarmd/internal/dashboard"
	"github.com/aiswarm/swarmd/internal/doctor"
	"github.com/aiswarm/swarmd/internal/persistence"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func main() {
	workdir := flag.String("workdir", ".", "working directory of the kernel instance to observe")
	doctorMode := flag.Bool("doctor", false, "run startup diagnostics and print a JSON report instead of the dashboard")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *workdir, *doctorMode); err != nil {
		fmt.Fprintln(os.Stderr, "aiswarmctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, workdir string, doctorMode bool) error {
	cfg, err := config.Load(workdir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if doctorMode {
		diagnosis := doctor.Run(ctx, &cfg, Version)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diagnosis)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = persistence.DefaultDBPath(cfg.WorkingDirectory)
	}
	store, err := persistence.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	return dashboard.Run(ctx, func() dashboard.Snapshot {
		return dashboard.Collect(ctx, store)
	})
}
