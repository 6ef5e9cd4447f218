// Package stats applies scoring functions to simulated and observed series,
// globally, per time step or per station.
package stats

import (
	"fmt"
	"math"
	"time"

	"github.com/lox/aqensemble/internal/collect"
	"github.com/lox/aqensemble/internal/measure"
	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/temporal"
)

// NoCutoff keeps every observation.
var NoCutoff = math.Inf(-1)

type Options struct {
	// Period restricts the evaluated samples. The zero Period covers all data.
	Period temporal.Period
	Filter collect.Filter
	// Cutoff drops samples whose observation is not strictly above it.
	Cutoff float64
	// Ratio is the minimum fraction of stations with data for a step to be
	// scored. Only used per step.
	Ratio float64
}

func DefaultOptions() Options {
	return Options{Cutoff: NoCutoff}
}

func (o Options) period(d collect.Data) temporal.Period {
	if o.Period.IsZero() {
		return temporal.SpanOf(d.Dates)
	}
	return o.Period
}

// Scores maps a measure name to one value per member.
type Scores struct {
	Names  []string
	Values map[string][]float64
}

func newScores(names []string, n int) *Scores {
	s := &Scores{Names: names, Values: make(map[string][]float64, len(names))}
	for _, name := range names {
		s.Values[name] = make([]float64, n)
	}
	return s
}

// Get returns the score of member i, or NaN when absent.
func (s *Scores) Get(name string, i int) float64 {
	v, ok := s.Values[name]
	if !ok || i >= len(v) {
		return math.NaN()
	}
	return v[i]
}

// Grid maps a measure name to a member by step or member by station table.
type Grid struct {
	Names  []string
	Values map[string][][]float64
}

func newGrid(names []string, nsim int) *Grid {
	g := &Grid{Names: names, Values: make(map[string][][]float64, len(names))}
	for _, name := range names {
		g.Values[name] = make([][]float64, nsim)
	}
	return g
}

// StepScores holds per-step scores and the step dates they belong to.
type StepScores struct {
	Dates []time.Time
	*Grid
}

func score(reg *measure.Registry, names []string, s collect.Sample, member int) (map[string]float64, error) {
	return reg.Apply(names, s.Sim[member], s.Obs)
}

// ComputeStat scores every member over the selected period and stations.
func ComputeStat(d collect.Data, reg *measure.Registry, names []string, opts Options) (*Scores, error) {
	names, err := reg.Resolve(names)
	if err != nil {
		return nil, err
	}
	sample := collect.Collect(d, opts.period(d), opts.Filter).Above(opts.Cutoff)
	out := newScores(names, d.Nsim())
	for m := 0; m < d.Nsim(); m++ {
		values, err := score(reg, names, sample, m)
		if err != nil {
			return nil, fmt.Errorf("score member %d: %w", m, err)
		}
		for name, v := range values {
			out.Values[name][m] = v
		}
	}
	return out, nil
}

// ComputeStatStep scores every member at each step of the hourly or daily
// grid covering the period. A step is kept when at least Ratio of the
// selected stations have a sample above the cutoff.
func ComputeStatStep(d collect.Data, conc models.Concentrations, reg *measure.Registry, names []string, opts Options) (*StepScores, error) {
	names, err := reg.Resolve(names)
	if err != nil {
		return nil, err
	}
	p := opts.period(d)
	nstation := len(opts.Filter.Stations)
	if opts.Filter.Stations == nil {
		nstation = len(d.Dates)
	}
	if opts.Filter.Out != nil {
		nstation = len(opts.Filter.Out)
	}

	out := &StepScores{Grid: newGrid(names, d.Nsim())}
	for _, step := range temporal.DateRange(p.Start, p.End, conc.Step()) {
		window := temporal.At(step)
		if conc == models.Peak {
			window = temporal.Period{Start: step, End: step.Add(conc.Step() - time.Nanosecond)}
		}
		sample := collect.Collect(d, window, opts.Filter).Above(opts.Cutoff)
		if sample.Len() == 0 || float64(sample.Len()) < opts.Ratio*float64(nstation) {
			continue
		}
		out.Dates = append(out.Dates, step)
		for m := 0; m < d.Nsim(); m++ {
			values, err := score(reg, names, sample, m)
			if err != nil {
				return nil, fmt.Errorf("score member %d at %s: %w", m, step, err)
			}
			for name, v := range values {
				out.Values[name][m] = append(out.Values[name][m], v)
			}
		}
	}
	return out, nil
}

// ComputeStatStation scores every member separately at each selected station.
func ComputeStatStation(d collect.Data, reg *measure.Registry, names []string, opts Options) (*Grid, error) {
	names, err := reg.Resolve(names)
	if err != nil {
		return nil, err
	}
	p := opts.period(d)
	stations := opts.Filter.Out
	if stations == nil {
		stations = opts.Filter.Stations
	}
	if stations == nil {
		for i := range d.Dates {
			stations = append(stations, i)
		}
	}

	out := newGrid(names, d.Nsim())
	for _, st := range stations {
		sample := collect.Collect(d, p, collect.Filter{Stations: []int{st}}).Above(opts.Cutoff)
		for m := 0; m < d.Nsim(); m++ {
			values, err := score(reg, names, sample, m)
			if err != nil {
				return nil, fmt.Errorf("score member %d at station %d: %w", m, st, err)
			}
			for name, v := range values {
				out.Values[name][m] = append(out.Values[name][m], v)
			}
		}
	}
	return out, nil
}
