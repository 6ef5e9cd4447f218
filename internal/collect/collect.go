// Package collect gathers simulated and observed values from per-station
// series into flat samples.
package collect

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/lox/aqensemble/internal/temporal"
)

// Data holds per-station series. Sim is indexed member, station, sample;
// Obs and Dates are indexed station, sample.
type Data struct {
	Dates [][]time.Time
	Sim   [][][]float64
	Obs   [][]float64
}

func (d Data) Nsim() int { return len(d.Sim) }

// Filter restricts the stations contributing to a sample. A nil Stations
// list selects every station; Out further restricts the selection.
type Filter struct {
	Stations []int
	Out      []int
}

func (f Filter) stations(n int) []int {
	base := f.Stations
	if base == nil {
		base = make([]int, n)
		for i := range base {
			base[i] = i
		}
	}
	if f.Out == nil {
		return base
	}
	out := make(map[int]bool, len(f.Out))
	for _, s := range f.Out {
		out[s] = true
	}
	var keep []int
	for _, s := range base {
		if out[s] {
			keep = append(keep, s)
		}
	}
	return keep
}

// Sample is a flattened set of observations with the matching member
// values. Samples are ordered station by station, then by date.
type Sample struct {
	Sim   [][]float64 // member, sample
	Obs   []float64
	Dates []time.Time
}

func newSample(nsim int) Sample {
	s := Sample{Sim: make([][]float64, nsim), Obs: []float64{}}
	for m := range s.Sim {
		s.Sim[m] = []float64{}
	}
	return s
}

func (s Sample) Len() int  { return len(s.Obs) }
func (s Sample) Nsim() int { return len(s.Sim) }

func (s *Sample) add(d Data, station, i int) {
	s.Obs = append(s.Obs, d.Obs[station][i])
	s.Dates = append(s.Dates, d.Dates[station][i])
	for m := range d.Sim {
		s.Sim[m] = append(s.Sim[m], d.Sim[m][station][i])
	}
}

// Matrix returns Sim as an Nsim by Len matrix, or nil for an empty sample.
func (s Sample) Matrix() *mat.Dense {
	if s.Len() == 0 || s.Nsim() == 0 {
		return nil
	}
	m := mat.NewDense(s.Nsim(), s.Len(), nil)
	for i, row := range s.Sim {
		m.SetRow(i, row)
	}
	return m
}

// Column returns the member values of sample i.
func (s Sample) Column(i int) []float64 {
	col := make([]float64, len(s.Sim))
	for m := range s.Sim {
		col[m] = s.Sim[m][i]
	}
	return col
}

// Above keeps the samples whose observation is strictly above cutoff.
func (s Sample) Above(cutoff float64) Sample {
	out := newSample(s.Nsim())
	for i, o := range s.Obs {
		if o <= cutoff {
			continue
		}
		out.Obs = append(out.Obs, o)
		out.Dates = append(out.Dates, s.Dates[i])
		for m := range s.Sim {
			out.Sim[m] = append(out.Sim[m], s.Sim[m][i])
		}
	}
	return out
}

// Collect gathers every sample dated within p, bounds included, at the
// selected stations. An empty period match yields an empty sample.
func Collect(d Data, p temporal.Period, f Filter) Sample {
	out := newSample(d.Nsim())
	for _, st := range f.stations(len(d.Dates)) {
		dates := d.Dates[st]
		i := 0
		for i < len(dates) && dates[i].Before(p.Start) {
			i++
		}
		for i < len(dates) && !dates[i].After(p.End) {
			out.add(d, st, i)
			i++
		}
	}
	return out
}

// CollectDates gathers the samples whose date exactly matches one of dates,
// which must be sorted.
func CollectDates(d Data, dates []time.Time, f Filter) Sample {
	out := newSample(d.Nsim())
	if len(dates) == 0 {
		return out
	}
	for _, st := range f.stations(len(d.Dates)) {
		stDates := d.Dates[st]
		j := 0
		for i := range stDates {
			for j < len(dates) && dates[j].Before(stDates[i]) {
				j++
			}
			if j == len(dates) {
				break
			}
			if dates[j].Equal(stDates[i]) {
				out.add(d, st, i)
			}
		}
	}
	return out
}
