package temporal

import (
	"fmt"
	"time"
)

// PeakOptions controls daily peak extraction.
type PeakOptions struct {
	// FirstHour and LastHour bound the hours, inclusive, searched for the peak.
	FirstHour int
	LastHour  int
	// MinInRange is the minimum number of values within the hour range for
	// the day to be kept. It is capped at the width of the range.
	MinInRange int
	// MinInDay is the minimum number of values in the whole day.
	MinInDay int
}

// DefaultPeakOptions searches the whole day and requires it to be complete.
func DefaultPeakOptions() PeakOptions {
	return PeakOptions{FirstHour: 0, LastHour: 23, MinInRange: 24}
}

func (o PeakOptions) minInRange() int {
	width := o.LastHour - o.FirstHour + 1
	return min(o.MinInRange, width)
}

// dayWindow returns the entries of one day inside the hour range.
func (o PeakOptions) dayWindow(dates []time.Time) (lo, hi int, ok bool) {
	if len(dates) < o.MinInDay {
		return 0, 0, false
	}
	lo = 0
	for lo < len(dates) && dates[lo].Hour() < o.FirstHour {
		lo++
	}
	hi = lo
	for hi < len(dates) && dates[hi].Hour() <= o.LastHour {
		hi++
	}
	if hi == lo || hi-lo < o.minInRange() {
		return 0, 0, false
	}
	return lo, hi, true
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// DailyPeaks returns, for each sufficiently complete day, the date and value
// of the daily maximum.
func DailyPeaks(dates []time.Time, conc []float64, opts PeakOptions) ([]time.Time, []float64, error) {
	days, values, err := SplitIntoDays(dates, conc)
	if err != nil {
		return nil, nil, err
	}
	var outDates []time.Time
	var outConc []float64
	for i := range days {
		lo, hi, ok := opts.dayWindow(days[i])
		if !ok {
			continue
		}
		j := lo + argmax(values[i][lo:hi])
		outDates = append(outDates, days[i][j])
		outConc = append(outConc, values[i][j])
	}
	return outDates, outConc, nil
}

// ObsPeaks holds daily peaks of simulations and observations.
type ObsPeaks struct {
	SimDates []time.Time
	Sim      []float64
	ObsDates []time.Time
	Obs      []float64
}

// DailyObsPeaks extracts the daily peaks of sim and obs over the same days.
// Day selection follows the observations. When paired is set, the simulated
// peak is taken at the hour of the observed peak and SimDates equals
// ObsDates.
func DailyObsPeaks(dates []time.Time, sim, obs []float64, opts PeakOptions, paired bool) (*ObsPeaks, error) {
	if len(sim) != len(obs) {
		return nil, fmt.Errorf("%w: %d simulated and %d observed values", ErrDimensionMismatch, len(sim), len(obs))
	}
	days, simDays, err := SplitIntoDays(dates, sim)
	if err != nil {
		return nil, err
	}
	_, obsDays, err := SplitIntoDays(dates, obs)
	if err != nil {
		return nil, err
	}
	out := &ObsPeaks{}
	for i := range days {
		lo, hi, ok := opts.dayWindow(days[i])
		if !ok {
			continue
		}
		j := lo + argmax(obsDays[i][lo:hi])
		out.ObsDates = append(out.ObsDates, days[i][j])
		out.Obs = append(out.Obs, obsDays[i][j])
		if !paired {
			j = lo + argmax(simDays[i][lo:hi])
		}
		out.SimDates = append(out.SimDates, days[i][j])
		out.Sim = append(out.Sim, simDays[i][j])
	}
	return out, nil
}
