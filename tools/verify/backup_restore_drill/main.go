// Command backup_restore_drill exercises an online SQLite backup (via
// VACUUM INTO) and restore cycle against a populated coordination store,
// reporting RPO/RTO timings and validating that agents, tasks, and the
// event log survive the round trip.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aiswarm/swarmd/internal/bus"
	"github.com/aiswarm/swarmd/internal/clock"
	"github.com/aiswarm/swarmd/internal/coordination"
	"github.com/aiswarm/swarmd/internal/events"
	"github.com/aiswarm/swarmd/internal/persistence"
)

func main() {
	ctx := context.Background()
	baseDir, err := os.MkdirTemp("", "aiswarm-backup-drill-*")
	if err != nil {
		fmt.Printf("mktemp_error=%v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(baseDir)

	dbPath := filepath.Join(baseDir, "aiswarm.db")
	backupPath := filepath.Join(baseDir, "backup.db")
	restorePath := filepath.Join(baseDir, "restore.db")

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
	logger := coordination.NewEventLogger(clock.New(), nil)
	agents := coordination.NewAgentService(store, agentBus, logger, clock.New())
	tasks := coordination.NewTaskService(store, taskBus, logger, clock.New())

	persona := "backup-drill"
	agentID, err := agents.Register(ctx, coordination.RegisterRequest{
		PersonaID: persona, AgentType: "drill", WorkingDirectory: baseDir,
	})
	if err != nil {
		fmt.Printf("register_agent_error=%v\n", err)
		os.Exit(1)
	}
	for i := 0; i < 40; i++ {
		taskID, err := tasks.Create(ctx, coordination.CreateRequest{
			Description: fmt.Sprintf("backup-drill task %d", i), PersonaID: &persona,
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

	backupStart := time.Now().UTC()
	if _, err := store.DB().ExecContext(ctx, `VACUUM INTO ?;`, backupPath); err != nil {
		fmt.Printf("backup_error=%v\n", err)
		os.Exit(1)
	}
	backupEnd := time.Now().UTC()

	backupBytes, err := os.ReadFile(backupPath)
	if err != nil {
		fmt.Printf("read_backup_error=%v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(restorePath, backupBytes, 0o644); err != nil {
		fmt.Printf("write_restore_error=%v\n", err)
		os.Exit(1)
	}
	restoreStart := time.Now().UTC()
	restoreStore, err := persistence.Open(restorePath)
	if err != nil {
		fmt.Printf("open_restore_error=%v\n", err)
		os.Exit(1)
	}
	defer restoreStore.Close()
	restoreEnd := time.Now().UTC()

	var taskCount, eventCount, agentCount int
	if err := restoreStore.DB().QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks;`).Scan(&taskCount); err != nil {
		fmt.Printf("count_tasks_error=%v\n", err)
		os.Exit(1)
	}
	if err := restoreStore.DB().QueryRowContext(ctx, `SELECT COUNT(1) FROM event_log;`).Scan(&eventCount); err != nil {
		fmt.Printf("count_events_error=%v\n", err)
		os.Exit(1)
	}
	if err := restoreStore.DB().QueryRowContext(ctx, `SELECT COUNT(1) FROM agents;`).Scan(&agentCount); err != nil {
		fmt.Printf("count_agents_error=%v\n", err)
		os.Exit(1)
	}

	rpo := backupEnd.Sub(backupStart)
	rto := restoreEnd.Sub(restoreStart)
	fmt.Printf("backup_started=%s\n", backupStart.Format(time.RFC3339Nano))
	fmt.Printf("backup_completed=%s\n", backupEnd.Format(time.RFC3339Nano))
	fmt.Printf("restore_started=%s\n", restoreStart.Format(time.RFC3339Nano))
	fmt.Printf("restore_completed=%s\n", restoreEnd.Format(time.RFC3339Nano))
	fmt.Printf("rpo_duration=%s\n", rpo)
	fmt.Printf("rto_duration=%s\n", rto)
	fmt.Printf("restored_agents=%d\n", agentCount)
	fmt.Printf("restored_tasks=%d\n", taskCount)
	fmt.Printf("restored_events=%d\n", eventCount)

	if taskCount < 40 || eventCount == 0 || agentCount < 1 {
		fmt.Println("VERDICT FAIL")
		os.Exit(1)
	}
	fmt.Println("VERDICT PASS")
}
