package ensemble

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/aqensemble/internal/collect"
	"github.com/lox/aqensemble/internal/measure"
	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/stats"
	"github.com/lox/aqensemble/internal/temporal"
)

const DefaultSelectionMeasure = "rmse"

// periodData restricts the whole ensemble to p.
func periodData(m *Method, p temporal.Period) collect.Data {
	ens := m.Ensemble()
	d := collect.Data{
		Dates: make([][]time.Time, ens.Nstation()),
		Sim:   make([][][]float64, ens.Nsim()),
		Obs:   make([][]float64, ens.Nstation()),
	}
	for st := range d.Dates {
		if p.IsZero() {
			d.Dates[st], d.Obs[st] = []time.Time{}, []float64{}
			continue
		}
		d.Dates[st], d.Obs[st] = temporal.RestrictToPeriod(ens.Dates[st], ens.Obs[st], p)
	}
	for j := range d.Sim {
		d.Sim[j] = make([][]float64, ens.Nstation())
		for st := range d.Sim[j] {
			if p.IsZero() {
				d.Sim[j][st] = []float64{}
				continue
			}
			_, d.Sim[j][st] = temporal.RestrictToPeriod(ens.Dates[st], ens.Sim[j][st], p)
		}
	}
	return d
}

func oneHot(n, i int) []float64 {
	w := make([]float64, n)
	w[i] = 1
	return w
}

func registryOr(r *measure.Registry) *measure.Registry {
	if r == nil {
		return measure.Default()
	}
	return r
}

func measureOr(name string) string {
	if name == "" {
		return DefaultSelectionMeasure
	}
	return name
}

// EnsembleMedian takes, at each station and date, the median of the
// members.
type EnsembleMedian struct{}

func NewEnsembleMedian() *EnsembleMedian { return &EnsembleMedian{} }

func (*EnsembleMedian) Name() string { return "ensemble-median" }

func (*EnsembleMedian) Combine(m *Method) error {
	d := periodData(m, m.EvaluationPeriod())
	values := make([]float64, d.Nsim())
	sim := make([][]float64, len(d.Dates))
	for st := range d.Dates {
		sim[st] = make([]float64, len(d.Dates[st]))
		for i := range sim[st] {
			for j := range values {
				values[j] = d.Sim[j][st][i]
			}
			sim[st][i] = Median(values)
		}
	}
	m.Dates, m.Sim, m.Obs = d.Dates, sim, d.Obs
	return nil
}

// BestModel picks the single member with the best global score over the
// evaluation period.
type BestModel struct {
	Registry *measure.Registry
	Measure  string
}

func NewBestModel(reg *measure.Registry, name string) *BestModel {
	return &BestModel{Registry: reg, Measure: name}
}

func (*BestModel) Name() string { return "best-model" }

func (b *BestModel) Combine(m *Method) error {
	if m.Options().Option != models.OptionGlobal {
		return fmt.Errorf("%w: best-model only supports the global option", ErrUnsupportedOption)
	}
	name := measureOr(b.Measure)
	p := m.EvaluationPeriod()
	d := periodData(m, p)
	opts := stats.DefaultOptions()
	opts.Filter = m.Options().Filter
	opts.Period = p
	scores, err := stats.ComputeStat(d, registryOr(b.Registry), []string{name}, opts)
	if err != nil {
		return fmt.Errorf("score members: %w", err)
	}
	best := measure.BestFor(name)(scores.Values[name])
	if best < 0 {
		return fmt.Errorf("%w: no member has a finite %s", ErrDegenerateWeights, name)
	}
	m.Selected = best
	m.GlobalWeight = oneHot(d.Nsim(), best)
	m.Dates, m.Sim, m.Obs = d.Dates, d.Sim[best], d.Obs
	return nil
}

// BestModelStep gives weight 1/Nmodel to the Nmodel members that score best
// over each training window. With BiasRemoval, the mean bias of the
// selection over the window is removed from the combination.
type BestModelStep struct {
	Registry    *measure.Registry
	Measure     string
	Nmodel      int
	BiasRemoval bool
	// Selector overrides the ordering implied by Measure.
	Selector measure.Selector

	lastBias float64
}

func NewBestModelStep(reg *measure.Registry, name string, nmodel int, biasRemoval bool) *BestModelStep {
	return &BestModelStep{Registry: reg, Measure: name, Nmodel: nmodel, BiasRemoval: biasRemoval}
}

func (*BestModelStep) Name() string { return "best-model-step" }

func (b *BestModelStep) Init(s Setup) ([]float64, error) {
	if b.Nmodel <= 0 {
		b.Nmodel = DefaultNmodel
	}
	if b.Nmodel > s.Dim {
		return nil, fmt.Errorf("cannot select %d of %d members", b.Nmodel, s.Dim)
	}
	if _, err := registryOr(b.Registry).Lookup(measureOr(b.Measure)); err != nil {
		return nil, err
	}
	return uniform(s.Nsim), nil
}

func (b *BestModelStep) Update(w *Window) ([]float64, error) {
	dim := len(w.Prev)
	b.lastBias = 0
	if w.Sample.Len() == 0 {
		return uniform(dim), nil
	}
	name := measureOr(b.Measure)
	f, err := registryOr(b.Registry).Lookup(name)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, dim)
	for j, sim := range w.Sample.Sim {
		scores[j] = f(sim, w.Sample.Obs)
	}
	sel := b.Selector
	if sel == nil {
		sel = measure.BestFor(name)
	}
	rank := measure.Rank(scores, sel)
	if len(rank) == 0 {
		return uniform(dim), nil
	}
	rank = rank[:min(b.Nmodel, len(rank))]

	weight := make([]float64, dim)
	var simMean float64
	for _, j := range rank {
		weight[j] = 1 / float64(len(rank))
		simMean += stat.Mean(w.Sample.Sim[j], nil)
	}
	b.lastBias = simMean/float64(len(rank)) - stat.Mean(w.Sample.Obs, nil)
	return weight, nil
}

func (b *BestModelStep) LastBias() (float64, bool) { return b.lastBias, b.BiasRemoval }

// BestModelStepStation picks, at each station and date, the member closest
// to the observation.
type BestModelStepStation struct{}

func NewBestModelStepStation() *BestModelStepStation { return &BestModelStepStation{} }

func (*BestModelStepStation) Name() string { return "best-model-step-station" }

func (*BestModelStepStation) Combine(m *Method) error {
	if m.Options().Option != models.OptionStation {
		return fmt.Errorf("%w: best-model-step-station only supports the station option", ErrUnsupportedOption)
	}
	ens := m.Ensemble()
	d := periodData(m, m.EvaluationPeriod())
	nsim := d.Nsim()
	weights := make([][][]float64, len(d.Dates))
	m.StationSelection = make([][]int, len(d.Dates))
	for st := range d.Dates {
		weights[st] = make([][]float64, len(d.Dates[st]))
		m.StationSelection[st] = make([]int, len(d.Dates[st]))
		for i, o := range d.Obs[st] {
			best, dist := 0, math.Inf(1)
			for j := 0; j < nsim; j++ {
				if e := math.Abs(d.Sim[j][st][i] - o); e < dist {
					best, dist = j, e
				}
			}
			weights[st][i] = oneHot(nsim, best)
			m.StationSelection[st][i] = best
		}
	}
	dates, sim, err := CombineStationStep(ens.Dates, ens.Sim, d.Dates, weights)
	if err != nil {
		return err
	}
	m.Dates, m.Sim, m.Obs = dates, sim, d.Obs
	return nil
}
