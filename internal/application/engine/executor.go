package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/work"
)

// Executor runs plans. Items are processed by a bounded worker pool so a
// big plan never fans out past the per-provider pacing budget; the default
// of one worker keeps execution strictly sequential.
type Executor struct {
	workers int
	logger  *zap.Logger
}

// NewExecutor creates an executor with the given worker count
func NewExecutor(workers int, logger *zap.Logger) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{workers: workers, logger: logger.Named("executor")}
}

func newResult(p *plan.Plan, mode work.Mode) *work.ExecutionResult {
	return &work.ExecutionResult{
		PlanID:    p.ID,
		Agent:     p.AgentType,
		Action:    p.Action,
		Mode:      mode,
		StartedAt: time.Now(),
	}
}

// DryRun runs the collection and classification pipeline without a single
// mutating call, and projects what an apply would do. The projection lands
// in Summary; Results stays empty because nothing was processed.
func (e *Executor) DryRun(ctx context.Context, ag agent.Agent, p *plan.Plan) *work.ExecutionResult {
	collector := work.NewCollector()
	ctx = work.WithCollector(ctx, collector)

	res := newResult(p, work.ModeDryRun)
	defer func() {
		res.Metrics = collector.Snapshot()
		res.FinishedAt = time.Now()
	}()

	items, err := ag.Collect(ctx, p)
	if err != nil {
		res.Status = work.StatusError
		res.AddError(work.StageCollect, "", string(gateway.Classify(err)), err.Error())
		e.logger.Warn("dry run collection failed",
			zap.String("plan_id", p.ID.String()),
			zap.String("agent", p.AgentType),
			zap.Error(err),
		)
		return res
	}

	collector.Process(int64(len(items)))
	summary := ag.Preview(p, items)
	if summary == nil {
		summary = map[string]any{}
	}
	summary["item_count"] = len(items)
	res.Summary = summary
	res.Status = work.StatusSuccess

	e.logger.Info("dry run finished",
		zap.String("plan_id", p.ID.String()),
		zap.String("agent", p.AgentType),
		zap.Int("items", len(items)),
	)
	return res
}

// Apply executes the plan for real. Item failures are recorded and the
// loop keeps going; a fatal error or an unconfigured gateway stops
// dispatch but the partial result survives either way. Cancellation is
// honored between items, never mid-call.
func (e *Executor) Apply(ctx context.Context, ag agent.Agent, p *plan.Plan) *work.ExecutionResult {
	collector := work.NewCollector()
	runCtx, stop := context.WithCancel(work.WithCollector(ctx, collector))
	defer stop()

	res := newResult(p, work.ModeApply)
	defer func() {
		res.Metrics = collector.Snapshot()
		res.FinishedAt = time.Now()
	}()

	items, err := ag.Collect(runCtx, p)
	if err != nil {
		res.Status = work.StatusError
		res.AddError(work.StageCollect, "", string(gateway.Classify(err)), err.Error())
		e.logger.Error("collection failed, nothing applied",
			zap.String("plan_id", p.ID.String()),
			zap.String("agent", p.AgentType),
			zap.Error(err),
		)
		return res
	}

	var (
		mu       sync.Mutex
		aborted  work.AbortReason
		fatalErr error
	)
	abort := func(reason work.AbortReason, err error) {
		mu.Lock()
		if aborted == "" {
			aborted = reason
			fatalErr = err
		}
		mu.Unlock()
		stop()
	}
	skipReason := func() string {
		if ctx.Err() != nil {
			return "cancelled before processing"
		}
		return "aborted before processing"
	}

	results := make([]*work.ItemResult, len(items))
	jobs := make(chan int)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range jobs {
			item := items[idx]
			if runCtx.Err() != nil {
				results[idx] = work.Skipped(item, skipReason())
				continue
			}

			collector.Process(1)
			outcome, execErr := ag.Execute(runCtx, p, item)
			if outcome == nil {
				if execErr == nil {
					outcome = work.Succeeded(item)
				} else {
					outcome = work.Failed(item, execErr)
				}
			}
			if execErr != nil {
				outcome.Status = work.ItemFailed
				outcome.Error = execErr.Error()
				outcome.ErrorClass = string(gateway.Classify(execErr))
			}
			collector.UseResources(int64(len(outcome.Mutations)))
			results[idx] = outcome

			if execErr == nil {
				continue
			}
			if work.IsFatal(execErr) || gateway.IsUnavailable(execErr) {
				e.logger.Error("plan-fatal error, stopping dispatch",
					zap.String("plan_id", p.ID.String()),
					zap.String("item", item.Ref),
					zap.Error(execErr),
				)
				abort(work.AbortFatal, execErr)
				continue
			}
			e.logger.Warn("item failed, continuing",
				zap.String("plan_id", p.ID.String()),
				zap.String("item", item.Ref),
				zap.String("class", outcome.ErrorClass),
				zap.Error(execErr),
			)
		}
	}

	wg.Add(e.workers)
	for w := 0; w < e.workers; w++ {
		go worker()
	}
	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for idx := range results {
		r := results[idx]
		if r == nil {
			r = work.Skipped(items[idx], skipReason())
		}
		res.Results = append(res.Results, *r)
		if r.Status == work.ItemFailed {
			res.AddError(work.StageItem, r.Ref, r.ErrorClass, r.Error)
		}
	}

	if aborted == "" && ctx.Err() != nil {
		aborted = work.AbortCancelled
	}
	if aborted != "" {
		res.Aborted = aborted
		switch aborted {
		case work.AbortFatal:
			res.AddError(work.StagePlan, "", string(gateway.Classify(fatalErr)), fatalErr.Error())
		case work.AbortCancelled:
			res.AddError(work.StagePlan, "", "", "execution cancelled")
		}
	}

	succeeded, failed, skipped := res.Counts()
	res.Status = work.ComputeStatus(succeeded, failed)

	e.logger.Info("apply finished",
		zap.String("plan_id", p.ID.String()),
		zap.String("agent", p.AgentType),
		zap.String("status", string(res.Status)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.Int64("api_calls", collector.Snapshot().APICalls),
	)
	return res
}
