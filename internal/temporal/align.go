package temporal

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrDimensionMismatch is returned when a value array and its date list
// differ in length.
var ErrDimensionMismatch = errors.New("incompatible dimensions")

// MissingValue marks an absent observation in raw inputs.
const MissingValue = -999.0

func checkLen(dates []time.Time, data []float64, what string) error {
	if len(dates) != len(data) {
		return fmt.Errorf("%w: %s has %d dates and %d values", ErrDimensionMismatch, what, len(dates), len(data))
	}
	return nil
}

// MasksForCommonDates marks the positions of dates0 and dates1 that have an
// exact counterpart in the other list. Both lists must be sorted.
func MasksForCommonDates(dates0, dates1 []time.Time) (mask0, mask1 []bool) {
	mask0 = make([]bool, len(dates0))
	mask1 = make([]bool, len(dates1))
	i1 := 0
	for i0 := range dates0 {
		for i1 < len(dates1) && dates1[i1].Before(dates0[i0]) {
			i1++
		}
		if i1 == len(dates1) {
			break
		}
		if dates1[i1].Equal(dates0[i0]) {
			mask0[i0] = true
			mask1[i1] = true
		}
	}
	return mask0, mask1
}

// MasksForCommonDays is MasksForCommonDates comparing calendar days only.
// The first date of each day in dates0 is paired with each day of dates1.
func MasksForCommonDays(dates0, dates1 []time.Time) (mask0, mask1 []bool) {
	mask0 = make([]bool, len(dates0))
	mask1 = make([]bool, len(dates1))
	i0 := 0
	for i1 := range dates1 {
		day := Midnight(dates1[i1])
		for i0 < len(dates0) && Midnight(dates0[i0]).Before(day) {
			i0++
		}
		if i0 == len(dates0) {
			break
		}
		if SameDay(dates0[i0], dates1[i1]) {
			mask0[i0] = true
			mask1[i1] = true
			i0++
		}
	}
	return mask0, mask1
}

// ApplyMask keeps the entries of dates and data whose mask is set.
func ApplyMask(dates []time.Time, data []float64, mask []bool) ([]time.Time, []float64) {
	outDates := make([]time.Time, 0, len(dates))
	outData := make([]float64, 0, len(data))
	for i, keep := range mask {
		if keep {
			outDates = append(outDates, dates[i])
			outData = append(outData, data[i])
		}
	}
	return outDates, outData
}

// ApplyValues keeps the entries of data whose mask is set.
func ApplyValues(data []float64, mask []bool) []float64 {
	out := make([]float64, 0, len(data))
	for i, keep := range mask {
		if keep {
			out = append(out, data[i])
		}
	}
	return out
}

// RestrictToCommonDates keeps only the dates present in both series.
func RestrictToCommonDates(simDates []time.Time, sim []float64, obsDates []time.Time, obs []float64) ([]time.Time, []float64, []float64, error) {
	if err := checkLen(simDates, sim, "simulation"); err != nil {
		return nil, nil, nil, err
	}
	if err := checkLen(obsDates, obs, "observation"); err != nil {
		return nil, nil, nil, err
	}
	simMask, obsMask := MasksForCommonDates(simDates, obsDates)
	dates, simOut := ApplyMask(simDates, sim, simMask)
	return dates, simOut, ApplyValues(obs, obsMask), nil
}

// RestrictToCommonDays keeps only the days present in both series, matching
// on the calendar day and ignoring time of day. The returned dates are the
// simulation dates. Used when simulations are hourly and observations are
// daily peaks.
func RestrictToCommonDays(simDates []time.Time, sim []float64, obsDates []time.Time, obs []float64) ([]time.Time, []float64, []float64, error) {
	if err := checkLen(simDates, sim, "simulation"); err != nil {
		return nil, nil, nil, err
	}
	if err := checkLen(obsDates, obs, "observation"); err != nil {
		return nil, nil, nil, err
	}
	simMask, obsMask := MasksForCommonDays(simDates, obsDates)
	dates, simOut := ApplyMask(simDates, sim, simMask)
	return dates, simOut, ApplyValues(obs, obsMask), nil
}

// PeriodBounds returns the half-open index range [lo, hi) of the sorted
// dates falling inside p.
func PeriodBounds(dates []time.Time, p Period) (lo, hi int) {
	lo = sort.Search(len(dates), func(i int) bool { return !dates[i].Before(p.Start) })
	hi = lo
	for hi < len(dates) && !dates[hi].After(p.End) {
		hi++
	}
	return lo, hi
}

// RestrictToPeriod keeps the entries whose date lies in p, bounds included.
// A period matching no date yields empty slices.
func RestrictToPeriod(dates []time.Time, data []float64, p Period) ([]time.Time, []float64) {
	lo, hi := PeriodBounds(dates, p)
	outDates := make([]time.Time, hi-lo)
	copy(outDates, dates[lo:hi])
	outData := make([]float64, hi-lo)
	copy(outData, data[lo:hi])
	return outDates, outData
}

// SplitIntoDays groups consecutive entries by calendar day. Empty input
// yields a single empty group.
func SplitIntoDays(dates []time.Time, data []float64) ([][]time.Time, [][]float64, error) {
	if err := checkLen(dates, data, "series"); err != nil {
		return nil, nil, err
	}
	if len(dates) == 0 {
		return [][]time.Time{{}}, [][]float64{{}}, nil
	}
	outDates := [][]time.Time{{dates[0]}}
	outData := [][]float64{{data[0]}}
	for i := 1; i < len(dates); i++ {
		last := len(outDates) - 1
		if SameDay(dates[i], outDates[last][0]) {
			outDates[last] = append(outDates[last], dates[i])
			outData[last] = append(outData[last], data[i])
			continue
		}
		outDates = append(outDates, []time.Time{dates[i]})
		outData = append(outData, []float64{data[i]})
	}
	return outDates, outData, nil
}

// RemoveMissing drops the entries equal to any of the given values, or to
// MissingValue when none are given.
func RemoveMissing(dates []time.Time, data []float64, missing ...float64) ([]time.Time, []float64, error) {
	if err := checkLen(dates, data, "series"); err != nil {
		return nil, nil, err
	}
	if len(missing) == 0 {
		missing = []float64{MissingValue}
	}
	mask := make([]bool, len(data))
	for i, v := range data {
		mask[i] = true
		for _, m := range missing {
			if v == m {
				mask[i] = false
				break
			}
		}
	}
	outDates, outData := ApplyMask(dates, data, mask)
	return outDates, outData, nil
}
