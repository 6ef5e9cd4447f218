package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrShapeMismatch is returned when parallel arrays disagree in length.
var ErrShapeMismatch = errors.New("incompatible shapes")

type Concentrations string

const (
	Hourly Concentrations = "hourly"
	Peak   Concentrations = "peak"
)

func ParseConcentrations(s string) (Concentrations, error) {
	switch Concentrations(s) {
	case Hourly, Peak:
		return Concentrations(s), nil
	}
	return "", fmt.Errorf("unknown concentrations %q (want %q or %q)", s, Hourly, Peak)
}

// Step is the spacing of the date grid.
func (c Concentrations) Step() time.Duration {
	if c == Peak {
		return 24 * time.Hour
	}
	return time.Hour
}

// Cycle is the number of grid steps separating the same time of day.
func (c Concentrations) Cycle() int {
	if c == Hourly {
		return 24
	}
	return 1
}

// Option selects how coefficients are applied when combining.
type Option string

const (
	OptionGlobal  Option = "global"
	OptionStep    Option = "step"
	OptionStation Option = "station"
)

type Station struct {
	StationID string
	Name      string
	Latitude  float64
	Longitude float64
	Altitude  float64
	Country   string
	Network   string
	Type      string // "URB", "RUR", "SUB"
	Active    bool
}

// Series is a date-sorted sequence of values.
type Series struct {
	Dates  []time.Time
	Values []float64
}

func (s Series) Len() int { return len(s.Dates) }

func (s Series) Validate() error {
	if len(s.Dates) != len(s.Values) {
		return fmt.Errorf("%w: %d dates, %d values", ErrShapeMismatch, len(s.Dates), len(s.Values))
	}
	for i := 1; i < len(s.Dates); i++ {
		if !s.Dates[i].After(s.Dates[i-1]) {
			return fmt.Errorf("dates not strictly increasing at index %d", i)
		}
	}
	return nil
}

// Member is one simulation of the ensemble, one series per station.
type Member struct {
	Name   string
	Series []Series
}

// Ensemble holds observations and simulations aligned on common dates.
//
// Sim is indexed member, station, sample. Obs and Dates are indexed station,
// sample. For a given station every member shares Dates[station].
type Ensemble struct {
	Stations       []Station
	Members        []string
	Dates          [][]time.Time
	Sim            [][][]float64
	Obs            [][]float64
	AllDates       []time.Time
	Concentrations Concentrations
}

func (e *Ensemble) Nsim() int     { return len(e.Sim) }
func (e *Ensemble) Nstation() int { return len(e.Obs) }

// Validate checks that every array agrees with Dates.
func (e *Ensemble) Validate() error {
	if len(e.Dates) != len(e.Obs) {
		return fmt.Errorf("%w: %d date lists, %d observation series", ErrShapeMismatch, len(e.Dates), len(e.Obs))
	}
	if len(e.Members) != 0 && len(e.Members) != len(e.Sim) {
		return fmt.Errorf("%w: %d member names, %d members", ErrShapeMismatch, len(e.Members), len(e.Sim))
	}
	for s := range e.Dates {
		if len(e.Dates[s]) != len(e.Obs[s]) {
			return fmt.Errorf("%w: station %d has %d dates, %d observations", ErrShapeMismatch, s, len(e.Dates[s]), len(e.Obs[s]))
		}
	}
	for m, sim := range e.Sim {
		if len(sim) != len(e.Dates) {
			return fmt.Errorf("%w: member %d has %d stations, want %d", ErrShapeMismatch, m, len(sim), len(e.Dates))
		}
		for s := range sim {
			if len(sim[s]) != len(e.Dates[s]) {
				return fmt.Errorf("%w: member %d station %d has %d values, want %d", ErrShapeMismatch, m, s, len(sim[s]), len(e.Dates[s]))
			}
		}
	}
	return nil
}
