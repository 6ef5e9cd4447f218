// Package ensemble combines the members of a simulation ensemble into a
// single forecast, either once over a whole period or step by step with
// online learning algorithms that never look past the step being combined.
package ensemble

import (
	"fmt"
	"math"
	"time"

	"github.com/lox/aqensemble/internal/collect"
	"github.com/lox/aqensemble/internal/measure"
	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/stats"
	"github.com/lox/aqensemble/internal/temporal"
)

type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateStepping
	StateCombined
	StateStatisticsComputed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateStepping:
		return "stepping"
	case StateCombined:
		return "combined"
	case StateStatisticsComputed:
		return "statistics_computed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Evaluation is the resolved configuration used to score a combination.
type Evaluation struct {
	Registry *measure.Registry
	Measures []string
	Cutoff   float64
	Ratio    float64
}

func (e *Evaluation) registry() *measure.Registry {
	if e == nil || e.Registry == nil {
		return measure.Default()
	}
	return e.Registry
}

func (e *Evaluation) cutoff() float64 {
	if e == nil {
		return stats.NoCutoff
	}
	return e.Cutoff
}

type Options struct {
	// Nskip is the number of leading dates for which no weight is computed.
	Nskip int
	// Nlearning is the number of past steps in each training window.
	Nlearning int
	Option    models.Option
	// Extended doubles the members with their opposites scaled by U so that
	// simplex learners can produce signed weights.
	Extended bool
	U        float64
	// Statistics requests global statistics once combined. It requires Eval.
	Statistics bool
	Eval       *Evaluation
	// Filter restricts the stations used for learning.
	Filter collect.Filter
	// Unbiased applies a learner's weights to the members' anomalies around
	// their spatial mean and adds back the observed spatial mean, so the
	// combination has no spatial bias at any date.
	Unbiased bool
}

// Algorithm is a combination method.
type Algorithm interface {
	Name() string
}

// Setup describes the problem a Learner is initialised for.
type Setup struct {
	Nsim           int
	Dim            int // Nsim, or 2*Nsim when extended
	Concentrations models.Concentrations
}

// Learner updates the weight vector once per step.
type Learner interface {
	Algorithm
	// Init resets the learner and returns the initial weight over the Nsim
	// members.
	Init(s Setup) ([]float64, error)
	// Update returns the weight, of dimension Setup.Dim, for w.Target.
	Update(w *Window) ([]float64, error)
}

// Combiner computes the whole combination in one pass.
type Combiner interface {
	Algorithm
	Combine(m *Method) error
}

// WindowPlanner lets a learner choose its own training dates.
type WindowPlanner interface {
	PlanWindow(m *Method, step int) []time.Time
}

// biasReporter is implemented by learners that estimate the bias of the
// weight they just produced.
type biasReporter interface {
	LastBias() (float64, bool)
}

// Window is the training data handed to a learner at one step.
type Window struct {
	Step   int
	Target time.Time
	// Dates are the training dates. Except for a posteriori methods they all
	// precede Target.
	Dates  []time.Time
	Sample collect.Sample
	// Prev is the weight the update starts from, of the working dimension.
	Prev []float64
}

// Method runs one algorithm over an ensemble.
type Method struct {
	ens   *models.Ensemble
	algo  Algorithm
	opts  Options
	data  collect.Data
	state State

	initial    []float64
	initialExt []float64

	// AllDates are the dates at which a weight was computed.
	AllDates   []time.Time
	Weights    [][]float64
	WeightsExt [][]float64
	Bias       []float64
	// GlobalWeight is set by methods producing a single weight vector.
	GlobalWeight []float64
	// Selected holds the member picked by BestModel.
	Selected int
	// StationSelection holds, per station and date, the member picked by
	// BestModelStepStation.
	StationSelection [][]int

	Dates [][]time.Time
	Sim   [][]float64
	Obs   [][]float64

	Stat     *stats.Scores
	StatStep *stats.StepScores

	// OnWindow, when set, observes every training window before the update.
	OnWindow func(*Window)
}

// New validates the options and prepares a method. Call Process or Run to
// compute the combination.
func New(ens *models.Ensemble, algo Algorithm, opts Options) (*Method, error) {
	if err := ens.Validate(); err != nil {
		return nil, fmt.Errorf("validate ensemble: %w", err)
	}
	if opts.Nskip < opts.Nlearning {
		return nil, fmt.Errorf("%w: Nskip=%d, Nlearning=%d", ErrInvalidLearning, opts.Nskip, opts.Nlearning)
	}
	if opts.Nskip < 0 || opts.Nlearning < 0 {
		return nil, fmt.Errorf("%w: negative Nskip or Nlearning", ErrInvalidLearning)
	}
	if opts.Statistics && opts.Eval == nil {
		return nil, ErrNoConfiguration
	}
	if opts.Option == "" {
		opts.Option = models.OptionGlobal
		if _, ok := algo.(Learner); ok {
			opts.Option = models.OptionStep
		}
	}
	if opts.U == 0 {
		opts.U = 1
	}
	switch opts.Option {
	case models.OptionGlobal, models.OptionStep:
	case models.OptionStation:
		if _, ok := algo.(Combiner); !ok {
			return nil, fmt.Errorf("%w: %s cannot combine per station", ErrUnsupportedOption, algo.Name())
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOption, opts.Option)
	}
	if _, ok := algo.(Learner); opts.Unbiased && !ok {
		return nil, fmt.Errorf("%w: %s cannot combine unbiased", ErrUnsupportedOption, algo.Name())
	}
	return &Method{
		ens:  ens,
		algo: algo,
		opts: opts,
		data: collect.Data{Dates: ens.Dates, Sim: ens.Sim, Obs: ens.Obs},
	}, nil
}

func (m *Method) Name() string               { return m.algo.Name() }
func (m *Method) State() State               { return m.state }
func (m *Method) Options() Options           { return m.opts }
func (m *Method) Ensemble() *models.Ensemble { return m.ens }
func (m *Method) Data() collect.Data         { return m.data }

// Run processes the combination and, when requested, its statistics.
func (m *Method) Run() error {
	if err := m.Process(); err != nil {
		return err
	}
	if m.opts.Statistics {
		return m.ComputeStatistics(temporal.Period{})
	}
	return nil
}

func (m *Method) reset() {
	m.state = StateUninitialized
	m.initial, m.initialExt = nil, nil
	m.AllDates, m.Weights, m.WeightsExt, m.Bias = nil, nil, nil, nil
	m.GlobalWeight, m.Selected, m.StationSelection = nil, 0, nil
	m.Dates, m.Sim, m.Obs = nil, nil, nil
	m.Stat, m.StatStep = nil, nil
}

// Process computes the weights and the resulting combination. On failure
// the method keeps no partial result.
func (m *Method) Process() error {
	m.reset()
	var err error
	switch a := m.algo.(type) {
	case Combiner:
		m.state = StateInitialized
		err = a.Combine(m)
	case Learner:
		err = m.learn(a)
	default:
		err = fmt.Errorf("%w: %T is neither a learner nor a combiner", ErrUnsupportedOption, m.algo)
	}
	if err == nil {
		err = m.checkCompatibility()
	}
	if err != nil {
		m.reset()
		m.state = StateFailed
		return fmt.Errorf("%s: %w", m.algo.Name(), err)
	}
	m.state = StateCombined
	return nil
}

func (m *Method) dim() int {
	if m.opts.Extended {
		return 2 * m.ens.Nsim()
	}
	return m.ens.Nsim()
}

func (m *Method) learn(l Learner) error {
	nsim := m.ens.Nsim()
	w0, err := l.Init(Setup{Nsim: nsim, Dim: m.dim(), Concentrations: m.ens.Concentrations})
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if len(w0) != nsim {
		return fmt.Errorf("%w: initial weight has %d entries, want %d", ErrIncompatibleShapes, len(w0), nsim)
	}
	m.initial = w0
	if m.opts.Extended {
		m.initialExt = make([]float64, 2*nsim)
		for i, w := range w0 {
			m.initialExt[i] = w / 2
			m.initialExt[nsim+i] = w / 2
		}
	}
	m.state = StateInitialized

	m.state = StateStepping
	planner, _ := l.(WindowPlanner)
	reporter, _ := l.(biasReporter)
	for step := m.opts.Nskip; step < len(m.ens.AllDates); step++ {
		target := m.ens.AllDates[step]
		m.AllDates = append(m.AllDates, target)

		var dates []time.Time
		if planner != nil {
			dates = planner.PlanWindow(m, step)
		} else {
			dates = m.LearningDates(step, m.opts.Nlearning)
		}
		win := &Window{
			Step:   step,
			Target: target,
			Dates:  dates,
			Sample: m.collect(dates),
			Prev:   m.previousWeight(),
		}
		if m.OnWindow != nil {
			m.OnWindow(win)
		}
		w, err := l.Update(win)
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", step, target.Format(coeffDateLayout), err)
		}
		if len(w) != m.dim() {
			return fmt.Errorf("%w: step %d weight has %d entries, want %d", ErrIncompatibleShapes, step, len(w), m.dim())
		}
		m.acquire(w)
		if reporter != nil {
			if b, ok := reporter.LastBias(); ok {
				m.Bias = append(m.Bias, b)
			}
		}
	}

	combine := func() ([][]time.Time, [][]float64, error) {
		return CombineStep(m.ens.Dates, m.ens.Sim, m.AllDates, m.Weights, true)
	}
	if m.opts.Unbiased {
		combine = func() ([][]time.Time, [][]float64, error) {
			return CombineStepUnbiased(m.ens.Dates, m.ens.Sim, m.ens.Obs, m.AllDates, m.Weights, true)
		}
	}
	dates, sim, err := combine()
	if err != nil {
		return err
	}
	if len(m.Bias) > 0 {
		if sim, err = RemoveBiasStep(dates, sim, m.AllDates, m.Bias); err != nil {
			return err
		}
	}
	m.Dates, m.Sim = dates, sim
	m.Obs = m.restrictObs(temporal.PeriodOf(m.AllDates))
	return nil
}

// LearningDates returns the n training dates for step. For peaks they are
// the n preceding days. For hourly data they are the n most recent earlier
// dates at the same hour of day.
func (m *Method) LearningDates(step, n int) []time.Time {
	all := m.ens.AllDates
	if n <= 0 {
		return nil
	}
	if m.ens.Concentrations != models.Hourly {
		return append([]time.Time(nil), all[max(0, step-n):step]...)
	}
	h := all[step].Hour()
	var dates []time.Time
	for i := step - 1; i >= 0 && len(dates) < n; i-- {
		if all[i].Hour() == h {
			dates = append(dates, all[i])
		}
	}
	for i, j := 0, len(dates)-1; i < j; i, j = i+1, j-1 {
		dates[i], dates[j] = dates[j], dates[i]
	}
	return dates
}

// collect gathers the window sample, doubled with opposite sign when the
// method is extended.
func (m *Method) collect(dates []time.Time) collect.Sample {
	s := collect.CollectDates(m.data, dates, m.opts.Filter)
	if !m.opts.Extended {
		return s
	}
	nsim := s.Nsim()
	ext := collect.Sample{Sim: make([][]float64, 2*nsim), Obs: s.Obs, Dates: s.Dates}
	for i, row := range s.Sim {
		pos := make([]float64, len(row))
		neg := make([]float64, len(row))
		for j, v := range row {
			pos[j] = m.opts.U * v
			neg[j] = -m.opts.U * v
		}
		ext.Sim[i], ext.Sim[nsim+i] = pos, neg
	}
	return ext
}

// previousWeight is the last weight computed at the same position of the
// daily cycle, or the initial weight.
func (m *Method) previousWeight() []float64 {
	cycle := m.ens.Concentrations.Cycle()
	var w []float64
	switch {
	case len(m.Weights) < cycle && m.opts.Extended:
		w = m.initialExt
	case len(m.Weights) < cycle:
		w = m.initial
	case m.opts.Extended:
		w = m.WeightsExt[len(m.WeightsExt)-cycle]
	default:
		w = m.Weights[len(m.Weights)-cycle]
	}
	return append([]float64(nil), w...)
}

func (m *Method) acquire(w []float64) {
	if !m.opts.Extended {
		m.Weights = append(m.Weights, w)
		return
	}
	nsim := m.ens.Nsim()
	m.WeightsExt = append(m.WeightsExt, w)
	reduced := make([]float64, nsim)
	for i := range reduced {
		reduced[i] = m.opts.U * (w[i] - w[nsim+i])
	}
	m.Weights = append(m.Weights, reduced)
}

// EvaluationPeriod spans the dates after the skipped warm-up steps.
func (m *Method) EvaluationPeriod() temporal.Period {
	if m.opts.Nskip >= len(m.ens.AllDates) {
		return temporal.Period{}
	}
	return temporal.PeriodOf(m.ens.AllDates[m.opts.Nskip:])
}

func (m *Method) restrictObs(p temporal.Period) [][]float64 {
	out := make([][]float64, m.ens.Nstation())
	for st := range out {
		if p.IsZero() {
			out[st] = []float64{}
			continue
		}
		_, out[st] = temporal.RestrictToPeriod(m.ens.Dates[st], m.ens.Obs[st], p)
	}
	return out
}

func (m *Method) checkCompatibility() error {
	if len(m.Sim) != len(m.Obs) || len(m.Dates) != len(m.Obs) {
		return fmt.Errorf("%w: %d combined stations, %d observed", ErrIncompatibleShapes, len(m.Sim), len(m.Obs))
	}
	for st := range m.Sim {
		if len(m.Sim[st]) != len(m.Obs[st]) || len(m.Dates[st]) != len(m.Obs[st]) {
			return fmt.Errorf("%w: station %d has %d combined values, %d observations", ErrIncompatibleShapes, st, len(m.Sim[st]), len(m.Obs[st]))
		}
	}
	return nil
}

func (m *Method) result() collect.Data {
	return collect.Data{Dates: m.Dates, Sim: [][][]float64{m.Sim}, Obs: m.Obs}
}

func (m *Method) statOptions(p temporal.Period) stats.Options {
	return stats.Options{Period: p, Cutoff: m.opts.Eval.cutoff(), Ratio: m.opts.Eval.Ratio}
}

func (m *Method) checkStatistics() error {
	if m.opts.Eval == nil {
		return ErrNoConfiguration
	}
	if m.state != StateCombined && m.state != StateStatisticsComputed {
		return fmt.Errorf("%w: method is %s", ErrNotCombined, m.state)
	}
	return nil
}

// ComputeStatistics scores the combination over p, or over all combined
// dates when p is zero.
func (m *Method) ComputeStatistics(p temporal.Period) error {
	if err := m.checkStatistics(); err != nil {
		return err
	}
	s, err := stats.ComputeStat(m.result(), m.opts.Eval.registry(), m.opts.Eval.Measures, m.statOptions(p))
	if err != nil {
		return fmt.Errorf("compute statistics: %w", err)
	}
	m.Stat = s
	m.state = StateStatisticsComputed
	return nil
}

// ComputeStepStatistics scores the combination at each step of p.
func (m *Method) ComputeStepStatistics(p temporal.Period) error {
	if err := m.checkStatistics(); err != nil {
		return err
	}
	s, err := stats.ComputeStatStep(m.result(), m.ens.Concentrations, m.opts.Eval.registry(), m.opts.Eval.Measures, m.statOptions(p))
	if err != nil {
		return fmt.Errorf("compute step statistics: %w", err)
	}
	m.StatStep = s
	m.state = StateStatisticsComputed
	return nil
}

func (m *Method) ComputeAllStatistics() error {
	if err := m.ComputeStatistics(temporal.Period{}); err != nil {
		return err
	}
	return m.ComputeStepStatistics(temporal.Period{})
}

// Score returns the global statistic for a measure, or NaN.
func (m *Method) Score(name string) float64 {
	if m.Stat == nil {
		return math.NaN()
	}
	return m.Stat.Get(name, 0)
}

// CoveredDates returns the regular grid spanning the combined dates.
func (m *Method) CoveredDates() []time.Time {
	p := temporal.SpanOf(m.Dates)
	if p.IsZero() {
		return nil
	}
	return temporal.DateRange(p.Start, p.End, m.ens.Concentrations.Step())
}

// RestrictToPeriod narrows the combination, its observations and its weight
// history to p. The underlying ensemble is untouched.
func (m *Method) RestrictToPeriod(p temporal.Period) error {
	if m.state != StateCombined && m.state != StateStatisticsComputed {
		return fmt.Errorf("%w: method is %s", ErrNotCombined, m.state)
	}
	for st := range m.Dates {
		dates, obs := temporal.RestrictToPeriod(m.Dates[st], m.Obs[st], p)
		_, sim := temporal.RestrictToPeriod(m.Dates[st], m.Sim[st], p)
		m.Dates[st], m.Obs[st], m.Sim[st] = dates, obs, sim
	}
	if len(m.AllDates) > 0 {
		lo, hi := temporal.PeriodBounds(m.AllDates, p)
		m.AllDates = m.AllDates[lo:hi]
		if len(m.Weights) > 0 {
			m.Weights = m.Weights[lo:hi]
		}
		if len(m.WeightsExt) > 0 {
			m.WeightsExt = m.WeightsExt[lo:hi]
		}
		if len(m.Bias) > 0 {
			m.Bias = m.Bias[lo:hi]
		}
	}
	m.Stat, m.StatStep = nil, nil
	m.state = StateCombined
	return nil
}
