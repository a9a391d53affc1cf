// Command incident_export builds a postmortem bundle for a coordination
// kernel instance: a hash of its config file, a tail of its structured
// log, and the most recent event log entries from its store. It exercises
// the same config/logging/persistence wiring cmd/aiswarm uses at startup.
package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aiswarm/swarmd/internal/bus"
	"github.com/aiswarm/swarmd/internal/clock"
	"github.com/aiswarm/swarmd/internal/config"
	"github.com/aiswarm/swarmd/internal/coordination"
	"github.com/aiswarm/swarmd/internal/events"
	"github.com/aiswarm/swarmd/internal/persistence"
	"github.com/aiswarm/swarmd/internal/telemetry"
)

const (
	maxEvents = 64
	maxLogs   = 32
)

type bundle struct {
	ExportedAt  time.Time                  `json:"exported_at"`
	ConfigHash  string                     `json:"config_hash"`
	EventCount  int                        `json:"event_count"`
	LogCount    int                        `json:"log_count"`
	Events      []persistence.EventLogEntry `json:"events"`
	RedactedLog []string                   `json:"redacted_logs"`
}

func main() {
	ctx := context.Background()
	home, err := os.MkdirTemp("", "aiswarm-incident-export-*")
	if err != nil {
		fmt.Printf("mktemp_error=%v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(home)

	cfg, err := config.Load(home)
	if err != nil {
		fmt.Printf("load_config_error=%v\n", err)
		os.Exit(1)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, true)
	if err != nil {
		fmt.Printf("new_logger_error=%v\n", err)
		os.Exit(1)
	}
	logger.Info("incident export drill starting")
	logger.Warn("simulated leaked credential", "api_key", "sk-should-be-redacted")
	closer.Close()

	dbPath := persistence.DefaultDBPath(cfg.WorkingDirectory)
	store, err := persistence.Open(dbPath)
	if err != nil {
		fmt.Printf("open_store_error=%v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	agentBus := events.NewAgentBus(bus.Options{Capacity: 64})
	defer agentBus.Close()
	taskBus := events.NewTaskBus(bus.Options{Capacity: 64})
	defer taskBus.Close()
	eventLogger := coordination.NewEventLogger(clock.New(), logger)
	agents := coordination.NewAgentService(store, agentBus, eventLogger, clock.New())
	tasks := coordination.NewTaskService(store, taskBus, eventLogger, clock.New())

	persona := "incident-export-drill"
	agentID, err := agents.Register(ctx, coordination.RegisterRequest{
		PersonaID: persona, AgentType: "drill", WorkingDirectory: home,
	})
	if err != nil {
		fmt.Printf("register_agent_error=%v\n", err)
		os.Exit(1)
	}
	for i := 0; i < 10; i++ {
		taskID, err := tasks.Create(ctx, coordination.CreateRequest{
			Description: fmt.Sprintf("incident-%d", i), PersonaID: &persona,
		})
		if err != nil {
			fmt.Printf("create_task_error=%v\n", err)
			os.Exit(1)
		}
		if err := tasks.ReportCompletion(ctx, taskID, agentID, true, "ok"); err != nil {
			fmt.Printf("complete_task_error=%v\n", err)
			os.Exit(1)
		}
	}

	op := store.BeginOperation(ctx)
	evs, err := persistence.ListEvents(op.Read(), "", "", time.Time{}, maxEvents)
	op.Close()
	if err != nil {
		fmt.Printf("list_events_error=%v\n", err)
		os.Exit(1)
	}

	logPath := filepath.Join(cfg.HomeDir, "logs", "system.jsonl")
	logs, err := tailLines(logPath, maxLogs)
	if err != nil {
		fmt.Printf("tail_logs_error=%v\n", err)
		os.Exit(1)
	}
	cfgPath := config.ConfigPath(cfg.HomeDir)
	cfgHash := "sha256:0000000000000000000000000000000000000000000000000000000000000"
	if _, statErr := os.Stat(cfgPath); statErr == nil {
		cfgHash, err = sha256File(cfgPath)
		if err != nil {
			fmt.Printf("config_hash_error=%v\n", err)
			os.Exit(1)
		}
	}

	b := bundle{
		ExportedAt:  time.Now().UTC(),
		ConfigHash:  cfgHash,
		EventCount:  len(evs),
		LogCount:    len(logs),
		Events:      evs,
		RedactedLog: logs,
	}

	bundlePath := filepath.Join(home, "incident_bundle.json")
	encoded, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		fmt.Printf("marshal_bundle_error=%v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(bundlePath, encoded, 0o644); err != nil {
		fmt.Printf("write_bundle_error=%v\n", err)
		os.Exit(1)
	}

	fmt.Printf("bundle_path=%s\n", bundlePath)
	fmt.Printf("config_hash=%s\n", cfgHash)
	fmt.Printf("events=%d max_events=%d\n", len(evs), maxEvents)
	fmt.Printf("logs=%d max_logs=%d\n", len(logs), maxLogs)
	for _, line := range logs {
		if strings.Contains(line, "sk-should-be-redacted") {
			fmt.Println("VERDICT FAIL — secret leaked into log bundle")
			os.Exit(1)
		}
	}
	if len(evs) == 0 || len(logs) == 0 || len(evs) > maxEvents || len(logs) > maxLogs {
		fmt.Println("VERDICT FAIL")
		os.Exit(1)
	}
	fmt.Println("VERDICT PASS")
}

func tailLines(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if limit <= 0 {
		limit = 1
	}
	lines := make([]string, 0, limit)
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func sha256File(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
