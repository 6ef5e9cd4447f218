// Package evaluate loads ensembles from the store, runs the configured
// combination methods over them and persists the outcome of each run.
package evaluate

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lox/aqensemble/internal/config"
	"github.com/lox/aqensemble/internal/ensemble"
	"github.com/lox/aqensemble/internal/metrics"
	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/observation"
	"github.com/lox/aqensemble/internal/store"
	"github.com/lox/aqensemble/internal/temporal"
)

var (
	ErrNoStations = errors.New("no station selected")
	ErrNoMembers  = errors.New("no ensemble member stored")
)

// Source is the read side of the store used to build ensembles.
type Source interface {
	GetActiveStations() ([]models.Station, error)
	GetMembers() ([]string, error)
	GetObservations(stationID string, start, end time.Time) (models.Series, error)
	GetSimulations(member, stationID string, start, end time.Time) (models.Series, error)
}

var _ Source = (*store.Store)(nil)

// loadWindow is the stored period read for an evaluation. Peaks need the
// whole of the first and last days.
func loadWindow(cfg *config.Config) temporal.Period {
	p := cfg.EvaluatedPeriod()
	if cfg.Concentrations() == models.Peak {
		return temporal.Period{
			Start: temporal.Midnight(p.Start),
			End:   temporal.Midnight(p.End).Add(24*time.Hour - time.Nanosecond),
		}
	}
	return p
}

// AllDates is the grid of steps at which weights are computed.
func AllDates(cfg *config.Config) []time.Time {
	p := cfg.EvaluatedPeriod()
	conc := cfg.Concentrations()
	if conc == models.Peak {
		return temporal.DateRange(temporal.Midnight(p.Start), temporal.Midnight(p.End), conc.Step())
	}
	return temporal.DateRange(p.Start, p.End, conc.Step())
}

func midnights(dates []time.Time) []time.Time {
	out := make([]time.Time, len(dates))
	for i, d := range dates {
		out[i] = temporal.Midnight(d)
	}
	return out
}

// dailyPeaks turns an hourly series into daily peaks dated at midnight.
func dailyPeaks(s models.Series, opts temporal.PeakOptions) (models.Series, error) {
	dates, values, err := temporal.DailyPeaks(s.Dates, s.Values, opts)
	if err != nil {
		return models.Series{}, err
	}
	return models.Series{Dates: midnights(dates), Values: values}, nil
}

// pairedPeaks reads the simulated peak at the hour of the observed peak.
func pairedPeaks(sim, obs models.Series, opts temporal.PeakOptions) (models.Series, error) {
	dates, simValues, obsValues, err := temporal.RestrictToCommonDates(sim.Dates, sim.Values, obs.Dates, obs.Values)
	if err != nil {
		return models.Series{}, err
	}
	peaks, err := temporal.DailyObsPeaks(dates, simValues, obsValues, opts, true)
	if err != nil {
		return models.Series{}, err
	}
	return models.Series{Dates: midnights(peaks.SimDates), Values: peaks.Sim}, nil
}

// LoadEnsemble reads the selected stations, their cleaned observations and
// every member's simulations over the evaluated period, then aligns them.
func LoadEnsemble(src Source, cfg *config.Config) (*models.Ensemble, error) {
	stations, err := src.GetActiveStations()
	if err != nil {
		return nil, fmt.Errorf("get stations: %w", err)
	}
	if len(cfg.Output.SelectStation) > 0 {
		stations = observation.Filter(stations, observation.InIDs(cfg.Output.SelectStation))
	}
	if len(stations) == 0 {
		return nil, ErrNoStations
	}
	names, err := src.GetMembers()
	if err != nil {
		return nil, fmt.Errorf("get members: %w", err)
	}
	if len(names) == 0 {
		return nil, ErrNoMembers
	}

	conc := cfg.Concentrations()
	peakOpts := cfg.PeakOptions()
	window := loadWindow(cfg)

	rawObs := make([]models.Series, len(stations))
	obs := make([]models.Series, len(stations))
	kept, flagged := 0, 0
	for i, st := range stations {
		raw, err := src.GetObservations(st.StationID, window.Start, window.End)
		if err != nil {
			return nil, fmt.Errorf("get observations at %s: %w", st.StationID, err)
		}
		clean, counts := observation.Clean(raw)
		for flag, n := range counts {
			metrics.ObservationsLoaded.WithLabelValues(flag).Add(float64(n))
			flagged += n
		}
		metrics.ObservationsLoaded.WithLabelValues("kept").Add(float64(clean.Len()))
		kept += clean.Len()
		rawObs[i] = clean
		if conc == models.Peak {
			if clean, err = dailyPeaks(clean, peakOpts); err != nil {
				return nil, fmt.Errorf("observed peaks at %s: %w", st.StationID, err)
			}
		}
		obs[i] = clean
	}
	if flagged > 0 {
		log.Printf("evaluate: dropped %d flagged observations, kept %d", flagged, kept)
	}

	members := make([]models.Member, len(names))
	for j, name := range names {
		members[j] = models.Member{Name: name, Series: make([]models.Series, len(stations))}
		for i, st := range stations {
			sim, err := src.GetSimulations(name, st.StationID, window.Start, window.End)
			if err != nil {
				return nil, fmt.Errorf("get simulations of %s at %s: %w", name, st.StationID, err)
			}
			switch {
			case conc == models.Peak && cfg.Output.Paired:
				sim, err = pairedPeaks(sim, rawObs[i], peakOpts)
			case conc == models.Peak:
				sim, err = dailyPeaks(sim, peakOpts)
			}
			if err != nil {
				return nil, fmt.Errorf("simulated peaks of %s at %s: %w", name, st.StationID, err)
			}
			members[j].Series[i] = sim
		}
	}

	ens, err := ensemble.Build(stations, obs, members, AllDates(cfg), conc)
	if err != nil {
		return nil, fmt.Errorf("build ensemble: %w", err)
	}
	log.Printf("evaluate: loaded %d members at %d stations, %d %s steps", ens.Nsim(), ens.Nstation(), len(ens.AllDates), conc)
	return ens, nil
}
