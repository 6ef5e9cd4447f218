package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// PDF approximates the probability density of data over nbins equal bins
// spanning its range. It returns the bin centres and densities; the
// densities integrate to one over the range.
func PDF(data []float64, nbins int) (centres, density []float64) {
	if len(data) == 0 || nbins <= 0 {
		return nil, nil
	}
	x := append([]float64(nil), data...)
	sort.Float64s(x)
	lo, hi := x[0], x[len(x)-1]
	if hi == lo {
		return []float64{lo}, []float64{1}
	}
	width := (hi - lo) / float64(nbins)
	dividers := make([]float64, nbins+1)
	for i := range dividers {
		dividers[i] = lo + float64(i)*width
	}
	// Widen the outer edges so that the extreme values are counted.
	dividers[0] = lo - width
	dividers[nbins] = hi + width

	counts := stat.Histogram(nil, dividers, x, nil)
	centres = make([]float64, nbins)
	density = make([]float64, nbins)
	n := float64(len(x))
	for i := range counts {
		centres[i] = lo + (float64(i)+0.5)*width
		density[i] = counts[i] / n / width
	}
	return centres, density
}

// CDF returns the sorted data and the empirical cumulative probability at
// each value.
func CDF(data []float64) (values, prob []float64) {
	values = append([]float64(nil), data...)
	sort.Float64s(values)
	prob = make([]float64, len(values))
	for i := range prob {
		prob[i] = float64(i+1) / float64(len(values))
	}
	return values, prob
}
