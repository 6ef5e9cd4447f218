package ensemble

import (
	"fmt"
	"time"

	"github.com/lox/aqensemble/internal/temporal"
)

const coeffDateLayout = "2006-01-02 15:04"

// coefficientIndex maps each date of a station to the position of the same
// date in coeffDates. Both lists are sorted.
func coefficientIndex(dates, coeffDates []time.Time) ([]int, error) {
	idx := make([]int, len(dates))
	k := 0
	for i, d := range dates {
		for k < len(coeffDates) && coeffDates[k].Before(d) {
			k++
		}
		if k == len(coeffDates) || !coeffDates[k].Equal(d) {
			return nil, fmt.Errorf("%w for date %s", ErrMissingCoefficients, d.Format(coeffDateLayout))
		}
		idx[i] = k
	}
	return idx, nil
}

func restrictDates(dates []time.Time, coeffDates []time.Time, restricted bool) (lo, hi int) {
	if !restricted {
		return 0, len(dates)
	}
	if len(coeffDates) == 0 {
		return 0, 0
	}
	return temporal.PeriodBounds(dates, temporal.PeriodOf(coeffDates))
}

// dot is a plain left-to-right dot product so that results are bit-for-bit
// reproducible.
func dot(w []float64, sim [][][]float64, station, i int) float64 {
	var v float64
	for m := range w {
		v += w[m] * sim[m][station][i]
	}
	return v
}

// CombineStep applies, at each date of each station, the weight vector
// computed for that date. When restricted is set, only the dates within the
// span of coeffDates are combined. Any remaining date without coefficients
// is an error.
func CombineStep(dates [][]time.Time, sim [][][]float64, coeffDates []time.Time, weights [][]float64, restricted bool) ([][]time.Time, [][]float64, error) {
	if len(coeffDates) != len(weights) {
		return nil, nil, fmt.Errorf("%w: %d coefficient dates, %d weight vectors", ErrIncompatibleShapes, len(coeffDates), len(weights))
	}
	outDates := make([][]time.Time, len(dates))
	outSim := make([][]float64, len(dates))
	for st := range dates {
		lo, hi := restrictDates(dates[st], coeffDates, restricted)
		stDates := dates[st][lo:hi]
		idx, err := coefficientIndex(stDates, coeffDates)
		if err != nil {
			return nil, nil, err
		}
		outDates[st] = append([]time.Time{}, stDates...)
		outSim[st] = make([]float64, len(stDates))
		for i, k := range idx {
			outSim[st][i] = dot(weights[k], sim, st, lo+i)
		}
	}
	return outDates, outSim, nil
}

// CombineStepUnbiased is CombineStep around cross-station means. At each
// coefficient date, members and observations are recentred on their mean
// over the stations that have a sample at that date, the weights are
// applied to the anomalies and the observed mean is added back.
func CombineStepUnbiased(dates [][]time.Time, sim [][][]float64, obs [][]float64, coeffDates []time.Time, weights [][]float64, restricted bool) ([][]time.Time, [][]float64, error) {
	if len(coeffDates) != len(weights) {
		return nil, nil, fmt.Errorf("%w: %d coefficient dates, %d weight vectors", ErrIncompatibleShapes, len(coeffDates), len(weights))
	}
	nsim := len(sim)
	type ref struct{ station, i int }
	groups := make([][]ref, len(coeffDates))
	los := make([]int, len(dates))
	outDates := make([][]time.Time, len(dates))
	outSim := make([][]float64, len(dates))
	for st := range dates {
		lo, hi := restrictDates(dates[st], coeffDates, restricted)
		los[st] = lo
		idx, err := coefficientIndex(dates[st][lo:hi], coeffDates)
		if err != nil {
			return nil, nil, err
		}
		outDates[st] = append([]time.Time{}, dates[st][lo:hi]...)
		outSim[st] = make([]float64, hi-lo)
		for i, k := range idx {
			groups[k] = append(groups[k], ref{st, lo + i})
		}
	}

	simMean := make([]float64, nsim)
	for k, group := range groups {
		if len(group) == 0 {
			continue
		}
		var obsMean float64
		for m := range simMean {
			simMean[m] = 0
		}
		for _, r := range group {
			obsMean += obs[r.station][r.i]
			for m := 0; m < nsim; m++ {
				simMean[m] += sim[m][r.station][r.i]
			}
		}
		n := float64(len(group))
		obsMean /= n
		for m := range simMean {
			simMean[m] /= n
		}
		for _, r := range group {
			var v float64
			for m := 0; m < nsim; m++ {
				v += weights[k][m] * (sim[m][r.station][r.i] - simMean[m])
			}
			outSim[r.station][r.i-los[r.station]] = v + obsMean
		}
	}
	return outDates, outSim, nil
}

// CombineStationStep applies a separate coefficient timeline at each
// station. coeffDates and weights are indexed by station.
func CombineStationStep(dates [][]time.Time, sim [][][]float64, coeffDates [][]time.Time, weights [][][]float64) ([][]time.Time, [][]float64, error) {
	if len(coeffDates) != len(dates) || len(weights) != len(dates) {
		return nil, nil, fmt.Errorf("%w: %d stations, %d coefficient timelines", ErrIncompatibleShapes, len(dates), len(coeffDates))
	}
	outDates := make([][]time.Time, len(dates))
	outSim := make([][]float64, len(dates))
	for st := range dates {
		if len(coeffDates[st]) != len(weights[st]) {
			return nil, nil, fmt.Errorf("%w: station %d has %d coefficient dates, %d weight vectors", ErrIncompatibleShapes, st, len(coeffDates[st]), len(weights[st]))
		}
		lo, hi := restrictDates(dates[st], coeffDates[st], true)
		idx, err := coefficientIndex(dates[st][lo:hi], coeffDates[st])
		if err != nil {
			return nil, nil, fmt.Errorf("station %d: %w", st, err)
		}
		outDates[st] = append([]time.Time{}, dates[st][lo:hi]...)
		outSim[st] = make([]float64, hi-lo)
		for i, k := range idx {
			outSim[st][i] = dot(weights[st][k], sim, st, lo+i)
		}
	}
	return outDates, outSim, nil
}

// CombineConstant applies one weight vector at every date.
func CombineConstant(sim [][][]float64, w []float64) [][]float64 {
	if len(sim) == 0 {
		return nil
	}
	out := make([][]float64, len(sim[0]))
	for st := range out {
		out[st] = make([]float64, len(sim[0][st]))
		for i := range out[st] {
			out[st][i] = dot(w, sim, st, i)
		}
	}
	return out
}

// RemoveBiasStep subtracts from each combined value the bias estimated for
// its date.
func RemoveBiasStep(dates [][]time.Time, combined [][]float64, coeffDates []time.Time, bias []float64) ([][]float64, error) {
	if len(coeffDates) != len(bias) {
		return nil, fmt.Errorf("%w: %d coefficient dates, %d biases", ErrIncompatibleShapes, len(coeffDates), len(bias))
	}
	out := make([][]float64, len(dates))
	for st := range dates {
		idx, err := coefficientIndex(dates[st], coeffDates)
		if err != nil {
			return nil, err
		}
		out[st] = make([]float64, len(idx))
		for i, k := range idx {
			out[st][i] = combined[st][i] - bias[k]
		}
	}
	return out, nil
}
