package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/aqensemble/internal/config"
	"github.com/lox/aqensemble/internal/ensemble"
	"github.com/lox/aqensemble/internal/measure"
	"github.com/lox/aqensemble/internal/metrics"
	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/store"
)

// RunStore persists runs.
type RunStore interface {
	CreateRun(run *store.Run) error
	CompleteRun(run *store.Run) error
}

var _ RunStore = (*store.Store)(nil)

// Result is the outcome of one method.
type Result struct {
	Method   config.Method
	RunID    string
	Steps    int
	Scores   store.Scores
	Duration time.Duration
	Err      error
}

// Score returns the global score of a measure, or NaN.
func (r Result) Score(name string) float64 {
	v := r.Scores[name]
	if len(v) == 0 {
		return math.NaN()
	}
	return v[0]
}

type Runner struct {
	store RunStore
	cfg   *config.Config
	reg   *measure.Registry
	// Parallel bounds the number of methods compared at once.
	Parallel int
}

// NewRunner returns a runner persisting to st. A nil st skips persistence.
func NewRunner(st RunStore, cfg *config.Config, reg *measure.Registry) *Runner {
	if reg == nil {
		reg = measure.Default()
	}
	return &Runner{store: st, cfg: cfg, reg: reg, Parallel: runtime.GOMAXPROCS(0)}
}

func (r *Runner) evaluation() (*ensemble.Evaluation, error) {
	names, err := r.reg.Resolve(r.cfg.Measures())
	if err != nil {
		return nil, err
	}
	return &ensemble.Evaluation{
		Registry: r.reg,
		Measures: names,
		Cutoff:   r.cfg.Output.Cutoff,
		Ratio:    r.cfg.Output.Ratio,
	}, nil
}

// Prepare builds the engine for one method without running it.
func (r *Runner) Prepare(ens *models.Ensemble, mc config.Method) (*ensemble.Method, error) {
	algo, err := NewAlgorithm(mc, r.reg)
	if err != nil {
		return nil, err
	}
	eval, err := r.evaluation()
	if err != nil {
		return nil, err
	}
	return ensemble.New(ens, algo, MethodOptions(r.cfg, mc, algo, eval))
}

func weightHistory(ens *models.Ensemble, m *ensemble.Method) *store.WeightHistory {
	if len(m.Weights) == 0 && m.GlobalWeight == nil {
		return nil
	}
	return &store.WeightHistory{
		Members:      ens.Members,
		Dates:        m.AllDates,
		Weights:      m.Weights,
		Bias:         m.Bias,
		GlobalWeight: m.GlobalWeight,
	}
}

// RunMethod combines the ensemble with one method, scores the result over
// the evaluated period and records the run. A failing method yields a
// Result with Err set; the returned error is reserved for persistence and
// cancellation.
func (r *Runner) RunMethod(ctx context.Context, ens *models.Ensemble, mc config.Method) (Result, error) {
	res := Result{Method: mc}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	params, err := json.Marshal(mc)
	if err != nil {
		return res, fmt.Errorf("encode params of %s: %w", mc.ID(), err)
	}
	evaluated := r.cfg.EvaluatedPeriod()
	run := &store.Run{
		Method:         mc.Name,
		Label:          mc.ID(),
		Params:         params,
		Concentrations: string(ens.Concentrations),
		PeriodStart:    evaluated.Start,
		PeriodEnd:      evaluated.End,
	}
	if r.store != nil {
		if err := r.store.CreateRun(run); err != nil {
			return res, fmt.Errorf("create run: %w", err)
		}
	}
	res.RunID = run.ID

	log.Printf("evaluate: running %s", mc.ID())
	start := time.Now()
	m, err := r.Prepare(ens, mc)
	if err == nil {
		err = m.Process()
	}
	if err == nil {
		err = m.ComputeStatistics(m.EvaluationPeriod())
	}
	res.Duration = time.Since(start)
	metrics.RunDuration.WithLabelValues(mc.Name).Observe(res.Duration.Seconds())

	if err != nil {
		log.Printf("evaluate: %s failed: %v", mc.ID(), err)
		res.Err = err
		metrics.RunsTotal.WithLabelValues(mc.Name, store.RunFailed).Inc()
		run.Status, run.Error = store.RunFailed, err.Error()
		return res, r.complete(run)
	}

	res.Steps = len(m.Weights)
	res.Scores = store.Scores(m.Stat.Values)
	metrics.StepsProcessed.WithLabelValues(mc.Name).Add(float64(res.Steps))
	metrics.RunsTotal.WithLabelValues(mc.Name, store.RunSucceeded).Inc()
	for name, v := range m.Stat.Values {
		if len(v) > 0 && !math.IsNaN(v[0]) {
			metrics.FinalScore.WithLabelValues(mc.ID(), name).Set(v[0])
		}
	}
	log.Printf("evaluate: %s done in %s, %d steps", mc.ID(), res.Duration.Round(time.Millisecond), res.Steps)

	run.Status = store.RunSucceeded
	run.Steps = res.Steps
	run.Weights = weightHistory(ens, m)
	run.Stats = res.Scores
	return res, r.complete(run)
}

func (r *Runner) complete(run *store.Run) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.CompleteRun(run); err != nil {
		return fmt.Errorf("complete run %s: %w", run.ID, err)
	}
	return nil
}

// Compare runs every configured method concurrently over the same
// ensemble. Each method runs sequentially on its own engine; the ensemble
// is only read. Results follow the configuration order.
func (r *Runner) Compare(ctx context.Context, ens *models.Ensemble) ([]Result, error) {
	results := make([]Result, len(r.cfg.Methods))
	g, ctx := errgroup.WithContext(ctx)
	if r.Parallel > 0 {
		g.SetLimit(r.Parallel)
	}
	for i, mc := range r.cfg.Methods {
		g.Go(func() error {
			res, err := r.RunMethod(ctx, ens, mc)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
