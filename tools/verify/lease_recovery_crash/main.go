// Command lease_recovery_crash drills the heartbeat-sweep path: an agent
// claims a task, the process is killed (simulated by an infinite sleep so an
// external harness can send SIGKILL), and a second invocation verifies the
// sweep marks the agent Unhealthy once its heartbeat goes stale.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aiswarm/swarmd/internal/bus"
	"github.com/aiswarm/swarmd/internal/clock"
	"github.com/aiswarm/swarmd/internal/coordination"
	"github.com/aiswarm/swarmd/internal/events"
	"github.com/aiswarm/swarmd/internal/persistence"
)

const personaID = "lease-recovery-drill"

func main() {
	mode := flag.String("mode", "", "prepare|claim-sleep|recover")
	dbPath := flag.String("db", "", "path to sqlite db")
	flag.Parse()

	if *mode == "" || *dbPath == "" {
		fmt.Fprintln(os.Stderr, "mode and db are required")
		os.Exit(2)
	}

	ctx := context.Background()
	store, err := persistence.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
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

	switch *mode {
	case "prepare":
		agentID, err := agents.Register(ctx, coordination.RegisterRequest{
			PersonaID: personaID, AgentType: "drill", WorkingDirectory: os.TempDir(),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "register agent: %v\n", err)
			os.Exit(1)
		}
		taskID, err := tasks.Create(ctx, coordination.CreateRequest{
			Description: "lease-recovery drill task", PersonaID: &personaID,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create task: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("PREPARED_AGENT_ID=%s\n", agentID)
		fmt.Printf("PREPARED_TASK_ID=%s\n", taskID)
	case "claim-sleep":
		agentID := os.Getenv("DRILL_AGENT_ID")
		if agentID == "" {
			fmt.Fprintln(os.Stderr, "DRILL_AGENT_ID env var required")
			os.Exit(2)
		}
		result, err := tasks.GetNext(ctx, agentID, 5*time.Second, 200*time.Millisecond)
		if err != nil {
			fmt.Fprintf(os.Stderr, "claim task: %v\n", err)
			os.Exit(1)
		}
		if result.TimedOut {
			fmt.Fprintln(os.Stderr, "no claimable task before timeout")
			os.Exit(1)
		}
		fmt.Printf("CLAIMED_TASK_ID=%s\n", result.TaskID)
		// Simulate a crashed agent process: no further heartbeats, ever.
		// An external harness sends SIGKILL to this process at this point.
		select {}
	case "recover":
		agentID := os.Getenv("DRILL_AGENT_ID")
		if agentID == "" {
			fmt.Fprintln(os.Stderr, "DRILL_AGENT_ID env var required")
			os.Exit(2)
		}
		if err := agents.SweepUnhealthy(ctx, 1*time.Millisecond); err != nil {
			fmt.Fprintf(os.Stderr, "sweep unhealthy: %v\n", err)
			os.Exit(1)
		}
		roster, err := agents.List(ctx, personaID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list agents: %v\n", err)
			os.Exit(1)
		}
		pass := false
		for _, a := range roster {
			if a.ID == agentID {
				fmt.Printf("AGENT_STATUS id=%s status=%s\n", a.ID, a.Status)
				pass = a.Status == persistence.AgentUnhealthy
			}
		}
		if pass {
			fmt.Println("VERDICT PASS")
		} else {
			fmt.Println("VERDICT FAIL — agent did not transition to Unhealthy after sweep")
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
}
