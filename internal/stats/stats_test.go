package stats

import (
	"math"
	"testing"
	"time"

	"github.com/lox/aqensemble/internal/collect"
	"github.com/lox/aqensemble/internal/measure"
	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/temporal"
)

func hour(h int) time.Time {
	return time.Date(2001, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(h) * time.Hour)
}

// Member 0 matches the observations, member 1 is 5 above them. Station 1
// has no data at hour 2.
func testData() collect.Data {
	return collect.Data{
		Dates: [][]time.Time{
			{hour(0), hour(1), hour(2)},
			{hour(0), hour(1)},
		},
		Sim: [][][]float64{
			{{10, 20, 30}, {1, 2}},
			{{15, 25, 35}, {6, 7}},
		},
		Obs: [][]float64{{10, 20, 30}, {1, 2}},
	}
}

func TestComputeStat(t *testing.T) {
	scores, err := ComputeStat(testData(), measure.Default(), []string{"rmse", "bias"}, DefaultOptions())
	if err != nil {
		t.Fatalf("ComputeStat: %v", err)
	}
	if got := scores.Get("rmse", 0); got != 0 {
		t.Errorf("rmse[0] = %v, want 0", got)
	}
	if got := scores.Get("rmse", 1); math.Abs(got-5) > 1e-12 {
		t.Errorf("rmse[1] = %v, want 5", got)
	}
	if got := scores.Get("bias", 1); math.Abs(got-5) > 1e-12 {
		t.Errorf("bias[1] = %v, want 5", got)
	}
	if !math.IsNaN(scores.Get("nope", 0)) {
		t.Error("Get(unknown) is not NaN")
	}
}

func TestComputeStat_Cutoff(t *testing.T) {
	opts := DefaultOptions()
	opts.Cutoff = 5
	scores, err := ComputeStat(testData(), measure.Default(), []string{"obs_mean"}, opts)
	if err != nil {
		t.Fatalf("ComputeStat: %v", err)
	}
	if got := scores.Get("obs_mean", 0); got != 20 {
		t.Errorf("obs_mean with cutoff 5 = %v, want 20", got)
	}
}

func TestComputeStat_UnknownMeasure(t *testing.T) {
	if _, err := ComputeStat(testData(), measure.Default(), []string{"nope"}, DefaultOptions()); err == nil {
		t.Error("ComputeStat accepted an unknown measure")
	}
}

func TestComputeStatStep(t *testing.T) {
	tests := []struct {
		name      string
		ratio     float64
		wantSteps int
	}{
		{"any coverage", 0, 3},
		{"all stations required", 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Ratio = tt.ratio
			steps, err := ComputeStatStep(testData(), models.Hourly, measure.Default(), []string{"bias"}, opts)
			if err != nil {
				t.Fatalf("ComputeStatStep: %v", err)
			}
			if len(steps.Dates) != tt.wantSteps {
				t.Fatalf("len(Dates) = %d, want %d", len(steps.Dates), tt.wantSteps)
			}
			if got := steps.Values["bias"][1]; len(got) != tt.wantSteps || got[0] != 5 {
				t.Errorf("bias[1] = %v", got)
			}
		})
	}
}

func TestComputeStatStation(t *testing.T) {
	opts := DefaultOptions()
	opts.Period = temporal.Period{Start: hour(0), End: hour(1)}
	grid, err := ComputeStatStation(testData(), measure.Default(), []string{"obs_mean"}, opts)
	if err != nil {
		t.Fatalf("ComputeStatStation: %v", err)
	}
	got := grid.Values["obs_mean"][0]
	if len(got) != 2 || got[0] != 15 || got[1] != 1.5 {
		t.Errorf("obs_mean per station = %v, want [15 1.5]", got)
	}
}

func TestPDFAndCDF(t *testing.T) {
	data := []float64{4, 1, 3, 2, 2, 3, 3, 4}
	centres, density := PDF(data, 3)
	if len(centres) != 3 || len(density) != 3 {
		t.Fatalf("PDF returned %d centres and %d densities", len(centres), len(density))
	}
	width := 1.0
	var total float64
	for _, d := range density {
		total += d * width
	}
	if math.Abs(total-1) > 1e-12 {
		t.Errorf("density integrates to %v, want 1", total)
	}

	values, prob := CDF(data)
	if values[0] != 1 || values[len(values)-1] != 4 {
		t.Errorf("CDF values not sorted: %v", values)
	}
	if prob[len(prob)-1] != 1 || prob[0] != 1.0/8 {
		t.Errorf("CDF prob = %v", prob)
	}
}
