package measure

import "math"

// Selector picks the best index among scores. NaN scores are never picked
// unless every score is NaN, in which case it returns -1.
type Selector func(scores []float64) int

func ArgMin(scores []float64) int {
	return pick(scores, func(a, b float64) bool { return a < b })
}

func ArgMax(scores []float64) int {
	return pick(scores, func(a, b float64) bool { return a > b })
}

// ClosestTo picks the score nearest to target.
func ClosestTo(target float64) Selector {
	return func(scores []float64) int {
		return pick(scores, func(a, b float64) bool {
			return math.Abs(a-target) < math.Abs(b-target)
		})
	}
}

func pick(scores []float64, better func(a, b float64) bool) int {
	best := -1
	for i, s := range scores {
		if math.IsNaN(s) {
			continue
		}
		if best < 0 || better(s, scores[best]) {
			best = i
		}
	}
	return best
}

// BestFor returns the selector matching the meaning of a measure: highest
// for correlations, nearest zero for signed biases, nearest one for ratios
// and lowest otherwise.
func BestFor(name string) Selector {
	switch name {
	case "correlation", "determination":
		return ArgMax
	case "bias", "mnbe", "mfbe", "nmb", "pea":
		return ClosestTo(0)
	case "bf":
		return ClosestTo(1)
	}
	return ArgMin
}

// Rank orders indices from best to worst according to sel.
func Rank(scores []float64, sel Selector) []int {
	remaining := make([]float64, len(scores))
	copy(remaining, scores)
	order := make([]int, 0, len(scores))
	for range scores {
		i := sel(remaining)
		if i < 0 {
			break
		}
		order = append(order, i)
		remaining[i] = math.NaN()
	}
	return order
}
