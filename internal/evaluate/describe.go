package evaluate

import (
	"github.com/lox/aqensemble/internal/collect"
	"github.com/lox/aqensemble/internal/config"
	"github.com/lox/aqensemble/internal/measure"
	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/stats"
	"github.com/lox/aqensemble/internal/temporal"
)

// Summary scores the raw members of an ensemble.
type Summary struct {
	Members  []string
	Stations []string
	Global   *stats.Scores
	Station  *stats.Grid
	// Observed distribution above the cutoff.
	Centres []float64
	Density []float64
	Samples int
}

// Describe scores every member over the evaluated period, globally and per
// station, and estimates the density of the observations.
func Describe(ens *models.Ensemble, cfg *config.Config, reg *measure.Registry, nbins int) (*Summary, error) {
	if reg == nil {
		reg = measure.Default()
	}
	data := collect.Data{Dates: ens.Dates, Sim: ens.Sim, Obs: ens.Obs}
	opts := stats.Options{Period: temporal.PeriodOf(AllDates(cfg)), Cutoff: cfg.Output.Cutoff}

	global, err := stats.ComputeStat(data, reg, cfg.Measures(), opts)
	if err != nil {
		return nil, err
	}
	perStation, err := stats.ComputeStatStation(data, reg, cfg.Measures(), opts)
	if err != nil {
		return nil, err
	}
	sample := collect.Collect(data, opts.Period, collect.Filter{}).Above(opts.Cutoff)
	centres, density := stats.PDF(sample.Obs, nbins)

	s := &Summary{
		Members: ens.Members,
		Global:  global,
		Station: perStation,
		Centres: centres,
		Density: density,
		Samples: sample.Len(),
	}
	for _, st := range ens.Stations {
		s.Stations = append(s.Stations, st.StationID)
	}
	return s, nil
}
