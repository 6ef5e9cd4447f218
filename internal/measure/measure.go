// Package measure provides named scoring functions comparing a simulated
// series with observations.
package measure

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrUnknownMeasure = errors.New("unknown measure")
	ErrLengthMismatch = errors.New("simulation and observation lengths differ")
)

// Func scores sim against obs. Both slices have the same length. An empty
// input scores NaN.
type Func func(sim, obs []float64) float64

// Registry maps measure names to scoring functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry of built-in measures.
func Default() *Registry {
	defaultOnce.Do(func() {
		r := NewRegistry()
		r.Register("bias", Bias)
		r.Register("mage", MAGE)
		r.Register("mange", MANGE)
		r.Register("rmse", RMSE)
		r.Register("correlation", Correlation)
		r.Register("determination", Determination)
		r.Register("mnbe", MNBE)
		r.Register("mfbe", MFBE)
		r.Register("fge", FGE)
		r.Register("bf", BiasFactor)
		r.Register("pea", PeakAccuracy)
		r.Register("nmb", NMB)
		r.Register("nme", NME)
		r.Register("sim_mean", func(sim, _ []float64) float64 { return mean(sim) })
		r.Register("obs_mean", func(_, obs []float64) float64 { return mean(obs) })
		defaultRegistry = r
	})
	return defaultRegistry
}

func (r *Registry) Register(name string, f Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = f
}

func (r *Registry) Lookup(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMeasure, name)
	}
	return f, nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve expands a requested name list. An empty list or one containing
// "all" selects every registered measure.
func (r *Registry) Resolve(names []string) ([]string, error) {
	if len(names) == 0 {
		return r.Names(), nil
	}
	for _, n := range names {
		if n == "all" {
			return r.Names(), nil
		}
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, err := r.Lookup(n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Apply evaluates each named measure on one pair of series.
func (r *Registry) Apply(names []string, sim, obs []float64) (map[string]float64, error) {
	if len(sim) != len(obs) {
		return nil, fmt.Errorf("%w: %d and %d", ErrLengthMismatch, len(sim), len(obs))
	}
	out := make(map[string]float64, len(names))
	for _, n := range names {
		f, err := r.Lookup(n)
		if err != nil {
			return nil, err
		}
		out[n] = f(sim, obs)
	}
	return out, nil
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

func meanOf(n int, term func(i int) float64) float64 {
	if n == 0 {
		return math.NaN()
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += term(i)
	}
	return sum / float64(n)
}

// Bias is the mean error.
func Bias(sim, obs []float64) float64 {
	return meanOf(len(sim), func(i int) float64 { return sim[i] - obs[i] })
}

// MAGE is the mean absolute gross error.
func MAGE(sim, obs []float64) float64 {
	return meanOf(len(sim), func(i int) float64 { return math.Abs(sim[i] - obs[i]) })
}

// MANGE is the mean absolute normalized gross error.
func MANGE(sim, obs []float64) float64 {
	return meanOf(len(sim), func(i int) float64 { return math.Abs(sim[i]-obs[i]) / obs[i] })
}

func RMSE(sim, obs []float64) float64 {
	if len(sim) == 0 {
		return math.NaN()
	}
	return floats.Distance(sim, obs, 2) / math.Sqrt(float64(len(sim)))
}

// Correlation is Pearson's coefficient. It is NaN when either series is
// constant.
func Correlation(sim, obs []float64) float64 {
	if len(sim) < 2 {
		return math.NaN()
	}
	return stat.Correlation(sim, obs, nil)
}

func Determination(sim, obs []float64) float64 {
	c := Correlation(sim, obs)
	return c * c
}

// MNBE is the mean normalized bias error.
func MNBE(sim, obs []float64) float64 {
	return meanOf(len(sim), func(i int) float64 { return (sim[i] - obs[i]) / obs[i] })
}

// MFBE is the mean fractional bias error.
func MFBE(sim, obs []float64) float64 {
	return meanOf(len(sim), func(i int) float64 { return 2 * (sim[i] - obs[i]) / (sim[i] + obs[i]) })
}

// FGE is the fractional gross error.
func FGE(sim, obs []float64) float64 {
	return meanOf(len(sim), func(i int) float64 { return 2 * math.Abs(sim[i]-obs[i]) / (sim[i] + obs[i]) })
}

// BiasFactor is the mean ratio of simulated to observed values.
func BiasFactor(sim, obs []float64) float64 {
	return meanOf(len(sim), func(i int) float64 { return sim[i] / obs[i] })
}

// PeakAccuracy is the relative error on the maximum, unpaired in time.
func PeakAccuracy(sim, obs []float64) float64 {
	if len(sim) == 0 {
		return math.NaN()
	}
	peak := floats.Max(obs)
	return (floats.Max(sim) - peak) / peak
}

// NMB is the normalized mean bias.
func NMB(sim, obs []float64) float64 {
	if len(sim) == 0 {
		return math.NaN()
	}
	return (floats.Sum(sim) - floats.Sum(obs)) / floats.Sum(obs)
}

// NME is the normalized mean error.
func NME(sim, obs []float64) float64 {
	if len(sim) == 0 {
		return math.NaN()
	}
	var num float64
	for i := range sim {
		num += math.Abs(sim[i] - obs[i])
	}
	return num / floats.Sum(obs)
}
