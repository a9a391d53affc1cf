// Package dashboard is a read-only bubbletea status view over the
// coordination store: agent roster, task counts by status, and a tail
// of the recent event log. It never mutates Store state.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aiswarm/swarmd/internal/persistence"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	unhealthy    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Snapshot is one poll of the coordination store's observable state.
type Snapshot struct {
	Agents      []persistence.Agent
	TaskCounts  map[persistence.TaskStatus]int
	RecentEvents []persistence.EventLogEntry
	Err         error
}

// Collect builds a Snapshot by reading store directly, without mutation.
func Collect(ctx context.Context, store *persistence.Store) Snapshot {
	op := store.BeginOperation(ctx)
	defer op.Close()
	r := op.Read()

	snap := Snapshot{TaskCounts: make(map[persistence.TaskStatus]int)}

	agents, err := persistence.ListAgents(r, "")
	if err != nil {
		snap.Err = err
		return snap
	}
	snap.Agents = agents

	for _, status := range []persistence.TaskStatus{
		persistence.TaskPending, persistence.TaskInProgress, persistence.TaskCompleted, persistence.TaskFailed,
	} {
		tasks, err := persistence.GetTasksByStatus(r, status)
		if err != nil {
			snap.Err = err
			return snap
		}
		snap.TaskCounts[status] = len(tasks)
	}

	events, err := persistence.ListEvents(r, "", "", time.Time{}, 10)
	if err != nil {
		snap.Err = err
		return snap
	}
	snap.RecentEvents = events

	return snap
}

// Provider polls the store for the latest Snapshot.
type Provider func() Snapshot

type model struct {
	provider Provider
	snap     Snapshot
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return tickCmd() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.snap = m.provider()
		return m, tickCmd()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("aiswarm coordination kernel") + "\n\n")

	if m.snap.Err != nil {
		b.WriteString(unhealthy.Render(fmt.Sprintf("store error: %v", m.snap.Err)) + "\n")
		return b.String()
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("Agents (%d)", len(m.snap.Agents))) + "\n")
	for _, a := range m.snap.Agents {
		style := okStyle
		if !a.Status.IsActive() {
			style = dimStyle
		}
		if a.Status == persistence.AgentUnhealthy || a.Status == persistence.AgentFailed {
			style = unhealthy
		}
		b.WriteString(fmt.Sprintf("  %s  %-12s persona=%-12s %s\n", a.ID, style.Render(string(a.Status)), a.PersonaID, a.AgentType))
	}

	b.WriteString("\n" + headerStyle.Render("Tasks") + "\n")
	for _, status := range []persistence.TaskStatus{
		persistence.TaskPending, persistence.TaskInProgress, persistence.TaskCompleted, persistence.TaskFailed,
	} {
		b.WriteString(fmt.Sprintf("  %-12s %d\n", status, m.snap.TaskCounts[status]))
	}

	b.WriteString("\n" + headerStyle.Render("Recent events") + "\n")
	for _, e := range m.snap.RecentEvents {
		entityID := ""
		if e.EntityID != nil {
			entityID = *e.EntityID
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %s  %-20s %s\n", e.Timestamp.Format(time.Kitchen), e.EventType, entityID)))
	}

	b.WriteString("\nPress q to quit.\n")
	return b.String()
}

// Run starts the dashboard program, blocking until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, provider Provider) error {
	m := model{provider: provider, snap: provider()}
	p := tea.NewProgram(m)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	select {
	case <-ctx.Done():
		p.Quit()
		return ctx.Err()
	case err := <-done:
		return err
	}
}
