// Package runner orchestrates a load run against the automation API.
package runner

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shopops/automator/tools/loadgen/internal/client"
	"github.com/shopops/automator/tools/loadgen/internal/config"
	"github.com/shopops/automator/tools/loadgen/internal/generator"
	"github.com/shopops/automator/tools/loadgen/internal/loadctrl"
	"github.com/shopops/automator/tools/loadgen/internal/metrics"
	"github.com/shopops/automator/tools/loadgen/internal/pool"
)

// Operation labels used in metrics.
const (
	opSubmit  = "submit"
	opStatus  = "status"
	opResult  = "result"
	opApprove = "approve"
	opApply   = "apply"
)

const progressInterval = 5 * time.Second

// Runner wires the client, generator, limiter, worker pool and metrics into
// one load run. Submitted plans are harvested into a pool so status and
// result reads hit real identifiers.
type Runner struct {
	cfg       *config.Config
	client    *client.Client
	generator *generator.Generator
	limiter   *loadctrl.Limiter
	workers   *loadctrl.WorkerPool
	plans     *pool.Pool
	collector *metrics.Collector
	exporter  *metrics.Exporter

	rngMu sync.Mutex
	rng   *rand.Rand

	out     io.Writer
	running atomic.Bool
	wg      sync.WaitGroup
}

// New builds a runner from a validated config.
func New(cfg *config.Config) (*Runner, error) {
	apiClient, err := client.New(client.Config{
		BaseURL: cfg.Target.BaseURL,
		Timeout: cfg.Target.Timeout,
		Headers: cfg.Target.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API client: %w", err)
	}

	r := &Runner{
		cfg:       cfg,
		client:    apiClient,
		generator: generator.New(cfg.Seed),
		limiter:   loadctrl.NewLimiter(cfg.Rate.QPS, cfg.Rate.Burst),
		workers:   loadctrl.NewWorkerPool(cfg.Workers),
		plans: pool.New(pool.Config{
			MaxPerKind: 4096,
			TTL:        10 * time.Minute,
		}),
		collector: metrics.NewCollector(),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		out:       os.Stdout,
	}
	if cfg.Prometheus.Enabled {
		r.exporter = metrics.NewExporter(metrics.ExporterConfig{
			Addr: cfg.Prometheus.Addr,
			Path: cfg.Prometheus.Path,
		})
	}
	return r, nil
}

// SetOutput redirects run output. Used by tests.
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// Snapshot returns the run metrics collected so far.
func (r *Runner) Snapshot() metrics.Snapshot {
	return r.collector.Snapshot()
}

// Run drives load until the configured duration elapses or ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if r.running.Swap(true) {
		return fmt.Errorf("runner is already running")
	}
	defer r.running.Store(false)
	defer r.plans.Close()

	r.printBanner()

	if err := r.client.Health(ctx); err != nil {
		return fmt.Errorf("target health check: %w", err)
	}
	fmt.Fprintln(r.out, "  target is healthy")

	if r.exporter != nil {
		if err := r.exporter.Start(); err != nil {
			return fmt.Errorf("starting metrics endpoint: %w", err)
		}
		r.exporter.UpdateTargetQPS(r.cfg.Rate.QPS)
		fmt.Fprintf(r.out, "  metrics on %s\n", r.exporter.Addr())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = r.exporter.Stop(shutdownCtx)
		}()
	}
	fmt.Fprintln(r.out)

	runCtx := ctx
	if r.cfg.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Duration)
		defer cancel()
	}

	r.collector.Start()
	r.workers.Start(runCtx)

	r.wg.Add(2)
	go r.loop(runCtx)
	go r.reportProgress(runCtx)

	<-runCtx.Done()

	r.workers.Stop()
	r.wg.Wait()
	r.collector.Stop()

	metrics.WriteSummary(r.out, r.collector.Snapshot())
	return nil
}

// loop paces requests through the limiter and hands them to the worker pool.
func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		if err := r.limiter.Acquire(ctx); err != nil {
			return
		}

		op := r.pickOperation()
		if !r.workers.Submit(func(taskCtx context.Context) error {
			r.execute(taskCtx, op)
			return nil
		}) {
			if ctx.Err() != nil {
				return
			}
			// Queue full: run inline so the pace holds.
			r.execute(ctx, op)
		}
	}
}

func (r *Runner) execute(ctx context.Context, op string) {
	switch op {
	case opStatus, opResult:
		entry, ok := r.plans.Random(pool.KindPlan)
		if !ok {
			// Nothing harvested yet, submit instead.
			r.submit(ctx)
			return
		}
		r.read(ctx, op, entry)
	default:
		r.submit(ctx)
	}
}

func (r *Runner) submit(ctx context.Context) {
	agent := r.pickAgent()
	params, err := r.generator.ForAgent(agent.Type, agent.AutoApply)
	if err != nil {
		r.collector.Record(metrics.Result{Operation: opSubmit, Agent: agent.Type, Err: err})
		return
	}
	dryRun := r.chance(agent.DryRunFraction())

	start := time.Now()
	outcome, err := r.client.Execute(ctx, agent.Type, params, dryRun)
	r.record(opSubmit, agent.Type, outcome, err, time.Since(start))
	if err != nil || outcome.PlanID == uuid.Nil {
		return
	}

	if outcome.Parked {
		r.plans.Add(pool.KindParked, outcome.PlanID, agent.Type)
		if r.cfg.ApproveParked {
			r.approveParked(ctx)
		}
		return
	}
	if outcome.OK() {
		r.plans.Add(pool.KindPlan, outcome.PlanID, agent.Type)
	}
}

func (r *Runner) read(ctx context.Context, op string, entry pool.Entry) {
	start := time.Now()
	var outcome client.Outcome
	var err error
	if op == opStatus {
		outcome, err = r.client.PlanStatus(ctx, entry.PlanID)
	} else {
		outcome, err = r.client.Result(ctx, entry.PlanID)
	}
	r.record(op, entry.Agent, outcome, err, time.Since(start))

	// The ID may have aged out server side; stop rereading it.
	if err == nil && outcome.StatusCode == 404 {
		r.plans.Remove(pool.KindPlan, entry.PlanID)
	}
}

// approveParked approves and applies one parked plan.
func (r *Runner) approveParked(ctx context.Context) {
	entry, ok := r.plans.Take(pool.KindParked)
	if !ok {
		return
	}

	start := time.Now()
	outcome, err := r.client.Approve(ctx, entry.PlanID, r.cfg.Approver)
	r.record(opApprove, entry.Agent, outcome, err, time.Since(start))
	if err != nil || !outcome.OK() {
		return
	}

	start = time.Now()
	outcome, err = r.client.Apply(ctx, entry.PlanID)
	r.record(opApply, entry.Agent, outcome, err, time.Since(start))
	if err == nil && outcome.OK() {
		r.plans.Add(pool.KindPlan, entry.PlanID, entry.Agent)
	}
}

func (r *Runner) record(op, agent string, outcome client.Outcome, err error, latency time.Duration) {
	result := metrics.Result{
		Operation:  op,
		Agent:      agent,
		StatusCode: outcome.StatusCode,
		Latency:    latency,
		Success:    err == nil && outcome.OK(),
		Bytes:      outcome.Bytes,
		Err:        err,
	}
	r.collector.Record(result)
	if r.exporter != nil {
		r.exporter.RecordRequest(result)
	}

	if r.cfg.Verbose && !result.Success {
		if err != nil {
			fmt.Fprintf(r.out, "  %s failed: %v\n", op, err)
		} else {
			fmt.Fprintf(r.out, "  %s failed: status=%d code=%s\n", op, outcome.StatusCode, outcome.ErrorCode)
		}
	}
}

func (r *Runner) pickOperation() string {
	ops := r.cfg.Operations
	total := ops.Submit + ops.Status + ops.Result
	if total <= 0 {
		return opSubmit
	}
	n := r.intn(total)
	switch {
	case n < ops.Submit:
		return opSubmit
	case n < ops.Submit+ops.Status:
		return opStatus
	default:
		return opResult
	}
}

func (r *Runner) pickAgent() config.AgentConfig {
	agents := r.cfg.Agents
	if len(agents) == 1 {
		return agents[0]
	}
	n := r.intn(r.cfg.TotalAgentWeight())
	for _, a := range agents {
		w := a.Weight
		if w <= 0 {
			w = 1
		}
		if n < w {
			return a
		}
		n -= w
	}
	return agents[len(agents)-1]
}

func (r *Runner) intn(n int) int {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.Intn(n)
}

func (r *Runner) chance(p float64) bool {
	if p >= 1 {
		return true
	}
	if p <= 0 {
		return false
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.Float64() < p
}

func (r *Runner) reportProgress(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := r.collector.Snapshot()
			fmt.Fprintf(r.out, "  [%s] requests: %d | qps: %.1f | success: %.1f%% | p95: %s | plans: %d\n",
				snap.Duration.Round(time.Second), snap.TotalRequests, snap.QPS,
				snap.SuccessRate, snap.P95Latency.Round(time.Millisecond), r.plans.Size(pool.KindPlan))

			if r.exporter != nil {
				r.exporter.UpdateFromSnapshot(snap)
				r.exporter.UpdateActiveWorkers(r.workers.Stats().Active)
				r.exporter.UpdatePoolSize(r.plans.Size(pool.KindPlan) + r.plans.Size(pool.KindParked))
			}
		}
	}
}

func (r *Runner) printBanner() {
	fmt.Fprintf(r.out, "Load run: %s\n", r.cfg.Name)
	fmt.Fprintf(r.out, "  target:   %s\n", r.cfg.Target.BaseURL)
	if r.cfg.Duration > 0 {
		fmt.Fprintf(r.out, "  duration: %s\n", r.cfg.Duration)
	} else {
		fmt.Fprintf(r.out, "  duration: until interrupted\n")
	}
	fmt.Fprintf(r.out, "  rate:     %.1f qps (burst %d)\n", r.cfg.Rate.QPS, r.limiter.Burst())
	fmt.Fprintf(r.out, "  workers:  %d\n", r.cfg.Workers)

	agents := make([]string, 0, len(r.cfg.Agents))
	for _, a := range r.cfg.Agents {
		agents = append(agents, a.Type)
	}
	fmt.Fprintf(r.out, "  agents:   %s\n", strings.Join(agents, ", "))
}
