package ensemble

import (
	"errors"
	"testing"
	"time"
)

func TestCombineStepExactDotProduct(t *testing.T) {
	dates := [][]time.Time{{hour(0), hour(1), hour(2)}}
	sim := [][][]float64{
		{{41.3, 52.7, 38.1}},
		{{47.9, 44.2, 51.6}},
	}
	coeffDates := []time.Time{hour(0), hour(1), hour(2)}
	weights := [][]float64{{0.3, 0.7}, {0.15, 0.85}, {0.61, 0.39}}

	gotDates, got, err := CombineStep(dates, sim, coeffDates, weights, false)
	if err != nil {
		t.Fatalf("CombineStep: %v", err)
	}
	if len(gotDates[0]) != 3 {
		t.Fatalf("len(dates) = %d, want 3", len(gotDates[0]))
	}
	for i := range coeffDates {
		want := weights[i][0]*sim[0][0][i] + weights[i][1]*sim[1][0][i]
		if got[0][i] != want {
			t.Errorf("combined[%d] = %v, want exactly %v", i, got[0][i], want)
		}
	}
}

func TestCombineStepMissingCoefficients(t *testing.T) {
	dates := [][]time.Time{{hour(0), hour(1), hour(2)}}
	sim := [][][]float64{{{1, 2, 3}}}
	coeffDates := []time.Time{hour(0), hour(2)}
	weights := [][]float64{{1}, {1}}

	_, _, err := CombineStep(dates, sim, coeffDates, weights, false)
	if !errors.Is(err, ErrMissingCoefficients) {
		t.Fatalf("err = %v, want ErrMissingCoefficients", err)
	}

	gotDates, got, err := CombineStep(dates, sim, []time.Time{hour(1), hour(2)}, weights, true)
	if err != nil {
		t.Fatalf("restricted CombineStep: %v", err)
	}
	if len(got[0]) != 2 || got[0][0] != 2 || !gotDates[0][0].Equal(hour(1)) {
		t.Errorf("restricted combination = %v at %v, want [2 3] from hour 1", got[0], gotDates[0])
	}
}

func TestCombineStepUnbiasedSpatialMean(t *testing.T) {
	// Station 2 has no sample at hour 1.
	dates := [][]time.Time{
		{hour(0), hour(1)},
		{hour(0), hour(1)},
		{hour(0)},
	}
	sim := [][][]float64{
		{{30, 42}, {50, 61}, {70}},
		{{35, 40}, {44, 70}, {80}},
	}
	obs := [][]float64{{33, 45}, {52, 58}, {66}}
	coeffDates := []time.Time{hour(0), hour(1)}
	weights := [][]float64{{0.4, 0.6}, {0.8, 0.2}}

	_, got, err := CombineStepUnbiased(dates, sim, obs, coeffDates, weights, false)
	if err != nil {
		t.Fatalf("CombineStepUnbiased: %v", err)
	}

	tests := []struct {
		name     string
		i        int
		stations []int
	}{
		{"all stations", 0, []int{0, 1, 2}},
		{"available stations only", 1, []int{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMean, obsMean float64
			for _, st := range tt.stations {
				gotMean += got[st][tt.i]
				obsMean += obs[st][tt.i]
			}
			n := float64(len(tt.stations))
			if !approxEqual(gotMean/n, obsMean/n, 1e-9) {
				t.Errorf("spatial mean = %v, want %v", gotMean/n, obsMean/n)
			}
		})
	}
}

func TestCombineStationStep(t *testing.T) {
	dates := [][]time.Time{{hour(0), hour(1)}, {hour(0), hour(1)}}
	sim := [][][]float64{
		{{1, 2}, {3, 4}},
		{{10, 20}, {30, 40}},
	}
	coeffDates := [][]time.Time{{hour(0), hour(1)}, {hour(1)}}
	weights := [][][]float64{
		{{1, 0}, {0, 1}},
		{{0.5, 0.5}},
	}
	gotDates, got, err := CombineStationStep(dates, sim, coeffDates, weights)
	if err != nil {
		t.Fatalf("CombineStationStep: %v", err)
	}
	if got[0][0] != 1 || got[0][1] != 20 {
		t.Errorf("station 0 = %v, want [1 20]", got[0])
	}
	if len(got[1]) != 1 || got[1][0] != 22 || !gotDates[1][0].Equal(hour(1)) {
		t.Errorf("station 1 = %v at %v, want [22] at hour 1", got[1], gotDates[1])
	}
}

func TestCombineConstant(t *testing.T) {
	sim := [][][]float64{{{1, 2}}, {{3, 4}}}
	got := CombineConstant(sim, []float64{2, -1})
	if got[0][0] != -1 || got[0][1] != 0 {
		t.Errorf("CombineConstant = %v, want [[-1 0]]", got)
	}
}

func TestRemoveBiasStep(t *testing.T) {
	dates := [][]time.Time{{hour(0), hour(1)}}
	got, err := RemoveBiasStep(dates, [][]float64{{10, 20}}, []time.Time{hour(0), hour(1)}, []float64{1, -2})
	if err != nil {
		t.Fatalf("RemoveBiasStep: %v", err)
	}
	if got[0][0] != 9 || got[0][1] != 22 {
		t.Errorf("RemoveBiasStep = %v, want [[9 22]]", got)
	}

	_, err = RemoveBiasStep(dates, [][]float64{{10, 20}}, []time.Time{hour(0)}, []float64{1, 2})
	if !errors.Is(err, ErrIncompatibleShapes) {
		t.Errorf("err = %v, want ErrIncompatibleShapes", err)
	}
}
