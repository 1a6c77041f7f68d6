package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "codeswarm"

// Metrics holds all CodeSwarm coordinator metric instruments.
type Metrics struct {
	AgentsSpawned     metric.Int64Counter
	AgentsCompleted   metric.Int64Counter
	AgentsFailed      metric.Int64Counter
	AgentsCancelled   metric.Int64Counter
	SpawnsRejected    metric.Int64Counter
	ConflictsDetected metric.Int64Counter
	ConflictsResolved metric.Int64Counter
	WriteDenials      metric.Int64Counter
	AgentDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.AgentsSpawned, err = meter.Int64Counter("codeswarm.agents.spawned",
		metric.WithDescription("Number of agent instances admitted"))
	if err != nil {
		return nil, err
	}

	m.AgentsCompleted, err = meter.Int64Counter("codeswarm.agents.completed",
		metric.WithDescription("Number of agent instances completed successfully"))
	if err != nil {
		return nil, err
	}

	m.AgentsFailed, err = meter.Int64Counter("codeswarm.agents.failed",
		metric.WithDescription("Number of agent instances that ended in error"))
	if err != nil {
		return nil, err
	}

	m.AgentsCancelled, err = meter.Int64Counter("codeswarm.agents.cancelled",
		metric.WithDescription("Number of agent instances cancelled"))
	if err != nil {
		return nil, err
	}

	m.SpawnsRejected, err = meter.Int64Counter("codeswarm.spawns.rejected",
		metric.WithDescription("Number of spawns rejected at admission"))
	if err != nil {
		return nil, err
	}

	m.ConflictsDetected, err = meter.Int64Counter("codeswarm.conflicts.detected",
		metric.WithDescription("Number of file conflicts detected"))
	if err != nil {
		return nil, err
	}

	m.ConflictsResolved, err = meter.Int64Counter("codeswarm.conflicts.resolved",
		metric.WithDescription("Number of file conflicts resolved"))
	if err != nil {
		return nil, err
	}

	m.WriteDenials, err = meter.Int64Counter("codeswarm.write.denials",
		metric.WithDescription("Number of denied write-access requests"))
	if err != nil {
		return nil, err
	}

	m.AgentDuration, err = meter.Float64Histogram("codeswarm.agent.duration_seconds",
		metric.WithDescription("Agent instance duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
