package telemetry

import "go.opentelemetry.io/otel/metric"

// Metrics holds the kernel's metric instruments.
type Metrics struct {
	ToolCallDuration metric.Float64Histogram
	ToolCallErrors   metric.Int64Counter
	EventsPublished  metric.Int64Counter
	TasksClaimed     metric.Int64Counter
	TasksCompleted   metric.Int64Counter
	AgentsRegistered metric.Int64Counter
}

// NewMetrics creates all metric instruments from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ToolCallDuration, err = meter.Float64Histogram("aiswarm.tool.duration",
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallErrors, err = meter.Int64Counter("aiswarm.tool.errors",
		metric.WithDescription("MCP tool calls that returned success=false"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsPublished, err = meter.Int64Counter("aiswarm.events.published",
		metric.WithDescription("Events published across all buses"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksClaimed, err = meter.Int64Counter("aiswarm.tasks.claimed",
		metric.WithDescription("Tasks successfully claimed via get_next_task"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("aiswarm.tasks.completed",
		metric.WithDescription("Tasks reported complete, success or failure"),
	)
	if err != nil {
		return nil, err
	}

	m.AgentsRegistered, err = meter.Int64Counter("aiswarm.agents.registered",
		metric.WithDescription("Agents registered"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
