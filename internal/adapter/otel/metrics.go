package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "sofia"

// Metrics holds the orchestrator's metric instruments.
type Metrics struct {
	ExecutionsStarted   metric.Int64Counter
	ExecutionsCompleted metric.Int64Counter
	ExecutionsFailed    metric.Int64Counter
	StepsRun            metric.Int64Counter
	TokensUsed          metric.Int64Counter
	DispatchAttempts    metric.Int64Counter
	ExecutionDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ExecutionsStarted, err = meter.Int64Counter("sofia.executions.started",
		metric.WithDescription("Number of executions started"))
	if err != nil {
		return nil, err
	}

	m.ExecutionsCompleted, err = meter.Int64Counter("sofia.executions.completed",
		metric.WithDescription("Number of executions completed"))
	if err != nil {
		return nil, err
	}

	m.ExecutionsFailed, err = meter.Int64Counter("sofia.executions.failed",
		metric.WithDescription("Number of executions failed"))
	if err != nil {
		return nil, err
	}

	m.StepsRun, err = meter.Int64Counter("sofia.steps",
		metric.WithDescription("Number of agent steps run"))
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("sofia.tokens",
		metric.WithDescription("LLM tokens consumed by executions"))
	if err != nil {
		return nil, err
	}

	m.DispatchAttempts, err = meter.Int64Counter("sofia.dispatch.attempts",
		metric.WithDescription("Output dispatch attempts by type and status"))
	if err != nil {
		return nil, err
	}

	m.ExecutionDuration, err = meter.Float64Histogram("sofia.execution.duration_seconds",
		metric.WithDescription("Execution duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
