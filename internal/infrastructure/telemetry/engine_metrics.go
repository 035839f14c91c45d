package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/shared"
)

// EngineMetrics turns plan lifecycle events into OTEL metrics. It is an
// event bus subscriber, so the engine itself never touches a meter: wiring
// it up is one Subscribe call, and removing it costs nothing.
type EngineMetrics struct {
	logger *zap.Logger

	plansCreated  *Counter
	plansApproved *Counter

	executions        *Counter
	executionDuration *Histogram
	executionAPICalls *Histogram
	itemsProcessed    *Counter

	rollbacks           *Counter
	rollbackStepsFailed *Counter
	rollbackFallbacks   *Counter
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewEngineMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// NewEngineMetrics creates the engine metric instruments on meter.
func NewEngineMetrics(meter metric.Meter, logger *zap.Logger) (*EngineMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	em := &EngineMetrics{logger: logger}

	var err error
	em.plansCreated, err = NewCounter(meter,
		"automator_plans_created_total",
		"Total number of plans that passed validation",
		"{plans}")
	if err != nil {
		return nil, err
	}
	em.plansApproved, err = NewCounter(meter,
		"automator_plans_approved_total",
		"Total number of gated plans released by an approval",
		"{plans}")
	if err != nil {
		return nil, err
	}
	em.executions, err = NewCounter(meter,
		"automator_executions_total",
		"Total number of finished runs, dry runs included",
		"{runs}")
	if err != nil {
		return nil, err
	}
	em.executionDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "automator_execution_duration_seconds",
		Description: "Wall clock duration of one run",
		Unit:        "s",
		Boundaries:  ExecutionDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	em.executionAPICalls, err = NewHistogram(meter, HistogramOpts{
		Name:        "automator_execution_api_calls",
		Description: "External API calls made during one run, retries included",
		Unit:        "{calls}",
	})
	if err != nil {
		return nil, err
	}
	em.itemsProcessed, err = NewCounter(meter,
		"automator_items_processed_total",
		"Total work items examined across all runs",
		"{items}")
	if err != nil {
		return nil, err
	}
	em.rollbacks, err = NewCounter(meter,
		"automator_rollbacks_total",
		"Total number of rollback attempts by outcome",
		"{rollbacks}")
	if err != nil {
		return nil, err
	}
	em.rollbackStepsFailed, err = NewCounter(meter,
		"automator_rollback_steps_failed_total",
		"Total compensation steps that failed",
		"{steps}")
	if err != nil {
		return nil, err
	}
	em.rollbackFallbacks, err = NewCounter(meter,
		"automator_rollback_fallbacks_total",
		"Total rollbacks that escalated to the fallback action",
		"{rollbacks}")
	if err != nil {
		return nil, err
	}

	return em, nil
}

// Handle records metrics for one lifecycle event.
func (em *EngineMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch ev := event.(type) {
	case *plan.CreatedEvent:
		em.plansCreated.Inc(ctx,
			AttrAgentType.String(ev.AgentType),
			AttrRisk.String(string(ev.Risk)),
			attribute.Bool("needs_approval", ev.NeedsApproval),
		)
	case *plan.ApprovedEvent:
		em.plansApproved.Inc(ctx)
	case *plan.ExecutedEvent:
		attrs := []attribute.KeyValue{
			AttrAgentType.String(ev.AgentType),
			AttrMode.String(string(ev.Mode)),
		}
		em.executions.Inc(ctx, append(attrs, AttrRunStatus.String(string(ev.Status)))...)
		em.executionDuration.RecordDuration(ctx, ev.Metrics.Duration, attrs...)
		em.executionAPICalls.Record(ctx, float64(ev.Metrics.APICalls), AttrAgentType.String(ev.AgentType))
		em.itemsProcessed.Add(ctx, ev.Metrics.DataProcessed, AttrAgentType.String(ev.AgentType))
	case *plan.RolledBackEvent:
		em.rollbacks.Inc(ctx,
			AttrAgentType.String(ev.AgentType),
			AttrRunStatus.String(string(ev.Status)),
		)
		if ev.StepsFailed > 0 {
			em.rollbackStepsFailed.Add(ctx, int64(ev.StepsFailed), AttrAgentType.String(ev.AgentType))
		}
		if ev.FallbackInvoked {
			em.rollbackFallbacks.Inc(ctx, AttrAgentType.String(ev.AgentType))
		}
	default:
		em.logger.Debug("unhandled event type", zap.String("event_type", event.EventType()))
	}
	return nil
}

// EventTypes lists the lifecycle events this handler subscribes to.
func (em *EngineMetrics) EventTypes() []string {
	return []string{
		plan.EventPlanCreated,
		plan.EventPlanApproved,
		plan.EventPlanExecuted,
		plan.EventPlanRolledBack,
	}
}

var _ shared.EventHandler = (*EngineMetrics)(nil)
