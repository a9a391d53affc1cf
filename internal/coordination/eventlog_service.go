package coordination

import (
	"encoding/json"
	"log/slog"

	"github.com/aiswarm/swarmd/internal/clock"
	"github.com/aiswarm/swarmd/internal/persistence"
)

// EventLogger appends one EventLog row per service-level event, within
// the same write scope as the mutation that caused it so the audit trail
// never records an event for a transaction that ultimately rolled back.
// Per spec §4.3, a logging failure never aborts the calling operation —
// it can only happen here if the surrounding transaction itself fails,
// in which case the whole operation already failed.
type EventLogger struct {
	clock  clock.Clock
	logger *slog.Logger
}

// NewEventLogger constructs an EventLogger.
func NewEventLogger(c clock.Clock, logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{clock: c, logger: logger}
}

// logWithin appends an EventLog row inside w. payload is marshaled to
// JSON; marshal failures are logged and degrade to an empty object rather
// than failing the caller's transaction.
func (l *EventLogger) logWithin(w *persistence.WriteScope, eventType string, severity persistence.Severity, entityID, entityType *string, payload any) {
	body := "{}"
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			l.logger.Warn("event log payload marshal failed", "eventType", eventType, "error", err)
		} else {
			body = string(b)
		}
	}
	entry := persistence.EventLogEntry{
		EventType:  eventType,
		Timestamp:  l.clock.Now(),
		EntityID:   entityID,
		EntityType: entityType,
		Severity:   severity,
		Payload:    body,
	}
	if err := persistence.AppendEvent(w, entry); err != nil {
		l.logger.Error("append event log failed", "eventType", eventType, "error", err)
	}
}
