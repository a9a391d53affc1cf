// Package alert provides an outbound-only Telegram notifier for
// warning-and-above severity events on the agent and task buses. It
// never mutates coordination state — it only observes and forwards.
package alert

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aiswarm/swarmd/internal/bus"
	"github.com/aiswarm/swarmd/internal/events"
)

// Config controls the Telegram alert channel. Enabled defaults to false;
// there is no alerting unless a bot token is configured.
type Config struct {
	Enabled  bool
	BotToken string
	ChatID   int64
}

// TelegramChannel forwards AgentKilled, AgentStatusChanged(->Unhealthy),
// and TaskFailed events to a single Telegram chat. Adapted from the
// teacher's telegram adapter, reduced to its outbound-send path since
// this channel never accepts inbound commands.
type TelegramChannel struct {
	cfg      Config
	agents   *events.AgentBus
	tasks    *events.TaskBus
	logger   *slog.Logger
	bot      *tgbotapi.BotAPI
}

// NewTelegramChannel builds a channel over the agent and task buses. Call
// Start to begin forwarding; a disabled config makes Start a no-op.
func NewTelegramChannel(cfg Config, agents *events.AgentBus, tasks *events.TaskBus, logger *slog.Logger) *TelegramChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramChannel{cfg: cfg, agents: agents, tasks: tasks, logger: logger}
}

// Name identifies the channel for composition-root logging.
func (t *TelegramChannel) Name() string { return "telegram-alert" }

// Start subscribes to the buses and forwards matching events until ctx is
// cancelled. It blocks, per the teacher's Channel.Start contract.
func (t *TelegramChannel) Start(ctx context.Context) error {
	if !t.cfg.Enabled {
		t.logger.Info("telegram alert channel disabled, not starting")
		<-ctx.Done()
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(t.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("telegram alert init failed: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram alert channel started", "user", bot.Self.UserName)

	agentSub, err := t.agents.Subscribe(ctx, bus.Filter[events.AgentKind, events.AgentPayload]{
		Kinds: bus.KindSet(events.AgentKilled, events.AgentStatusChanged),
		Subject: func(p events.AgentPayload) bool {
			return p.NewStatus == "Killed" || p.NewStatus == "Unhealthy"
		},
	})
	if err != nil {
		return fmt.Errorf("subscribe agent bus: %w", err)
	}
	defer agentSub.Close()

	taskSub, err := t.tasks.Subscribe(ctx, bus.Filter[events.TaskKind, events.TaskPayload]{
		Kinds: bus.KindSet(events.TaskFailed),
	})
	if err != nil {
		return fmt.Errorf("subscribe task bus: %w", err)
	}
	defer taskSub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-agentSub.Events():
			if !ok {
				return nil
			}
			t.send(formatAgentAlert(env.Kind, env.Payload))
		case env, ok := <-taskSub.Events():
			if !ok {
				return nil
			}
			t.send(formatTaskAlert(env.Payload))
		}
	}
}

func formatAgentAlert(kind events.AgentKind, p events.AgentPayload) string {
	switch kind {
	case events.AgentKilled:
		return fmt.Sprintf("Agent %s (persona %s) was killed", p.AgentID, p.PersonaID)
	case events.AgentStatusChanged:
		return fmt.Sprintf("Agent %s (persona %s) became %s", p.AgentID, p.PersonaID, p.NewStatus)
	default:
		return fmt.Sprintf("Agent %s changed: %s -> %s", p.AgentID, p.OldStatus, p.NewStatus)
	}
}

func formatTaskAlert(p events.TaskPayload) string {
	return fmt.Sprintf("Task %s failed: %s", p.TaskID, truncate(p.Result, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (t *TelegramChannel) send(text string) {
	if t.cfg.ChatID == 0 {
		t.logger.Warn("telegram alert dropped, no chat_id configured", "text", text)
		return
	}
	msg := tgbotapi.NewMessage(t.cfg.ChatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("failed to send telegram alert", "error", err)
	}
}
