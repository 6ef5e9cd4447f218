package observation

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/lox/aqensemble/internal/models"
)

func testGrid(t *testing.T) *Grid {
	t.Helper()
	// Two time steps on a 2x3 grid; value = 100*t + 10*y + x.
	var data []float64
	for ti := 0; ti < 2; ti++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				data = append(data, float64(100*ti+10*y+x))
			}
		}
	}
	g, err := NewGrid(time.Date(2001, 5, 1, 0, 0, 0, 0, time.UTC), 45, 2, time.Hour, 0.5, 0.5, 2, 2, 3, data)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func TestGridInterpolate(t *testing.T) {
	g := testGrid(t)
	tests := []struct {
		name     string
		lat, lon float64
		want     []float64
	}{
		{"grid node", 45, 2, []float64{0, 100}},
		{"row midpoint", 45, 2.25, []float64{0.5, 100.5}},
		{"cell centre", 45.25, 2.75, []float64{6.5, 106.5}},
		{"last node", 45.5, 3, []float64{12, 112}},
		{"south of grid", 44.9, 2, nil},
		{"east of grid", 45, 3.6, nil},
		{"past last row", 45.6, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Interpolate(tt.lat, tt.lon)
			if tt.want == nil {
				if got != nil {
					t.Errorf("Interpolate(%v, %v) = %v, want nil", tt.lat, tt.lon, got)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Interpolate(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("Interpolate(%v, %v)[%d] = %v, want %v", tt.lat, tt.lon, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGridClosest(t *testing.T) {
	g := testGrid(t)
	if got := g.Closest(45.4, 2.6); !reflect.DeepEqual(got, []float64{11, 111}) {
		t.Errorf("Closest = %v, want [11 111]", got)
	}
	// On the far border the last column is used.
	if got := g.Closest(45, 3.5); !reflect.DeepEqual(got, []float64{2, 102}) {
		t.Errorf("Closest(border) = %v, want [2 102]", got)
	}
	if got := g.Closest(40, 2); got != nil {
		t.Errorf("Closest(outside) = %v, want nil", got)
	}
}

func TestNewGrid_ShapeMismatch(t *testing.T) {
	if _, err := NewGrid(time.Time{}, 0, 0, time.Hour, 1, 1, 2, 2, 2, make([]float64, 7)); err == nil {
		t.Error("NewGrid accepted 7 values for a 2x2x2 grid")
	}
}

func TestStationPredicates(t *testing.T) {
	stations := []models.Station{
		{StationID: "A", Latitude: 48.8, Longitude: 2.3, Type: TypeUrban},
		{StationID: "B", Latitude: 45.1, Longitude: 5.7, Type: TypeRural},
		{StationID: "C", Latitude: 0, Longitude: 0, Type: TypeRural},
	}

	urban := Filter(stations, IsUrban)
	if len(urban) != 1 || urban[0].StationID != "A" {
		t.Errorf("Filter(IsUrban) = %v", urban)
	}
	if len(stations) != 3 {
		t.Fatalf("Filter modified its input")
	}

	valid := Filter(stations, And(IsRural, HasValidLatLon))
	if len(valid) != 1 || valid[0].StationID != "B" {
		t.Errorf("Filter(rural, valid) = %v", valid)
	}

	box := Box{LatMin: 44, LatMax: 46, LonMin: 5, LonMax: 6}
	if !IsInsideBox(stations[1], box) || IsInsideBox(stations[0], box) {
		t.Error("IsInsideBox misclassified stations")
	}

	if idx := FilterIndices(stations, InIDs([]string{"C", "A"})); !reflect.DeepEqual(idx, []int{0, 2}) {
		t.Errorf("FilterIndices(InIDs) = %v, want [0 2]", idx)
	}
	if idx := FilterIndices(stations, InIDs(nil)); len(idx) != 3 {
		t.Errorf("InIDs(nil) kept %d stations, want 3", len(idx))
	}
	if s, ok := StationByID(stations, "B"); !ok || s.Latitude != 45.1 {
		t.Errorf("StationByID(B) = %v, %v", s, ok)
	}
}

func TestRemoveLowestHighest(t *testing.T) {
	d := []time.Time{time.Unix(0, 0), time.Unix(1, 0), time.Unix(2, 0)}
	obs := []float64{5, 10, 15}
	sim := []float64{1, 2, 3}

	dates, o, s := RemoveLowest(d, obs, sim, 5)
	if !reflect.DeepEqual(o, []float64{10, 15}) || !reflect.DeepEqual(s, []float64{2, 3}) || len(dates) != 2 {
		t.Errorf("RemoveLowest = %v %v %v", dates, o, s)
	}
	_, o, s = RemoveHighest(d, obs, sim, 15)
	if !reflect.DeepEqual(o, []float64{5, 10}) || !reflect.DeepEqual(s, []float64{1, 2}) {
		t.Errorf("RemoveHighest = %v %v", o, s)
	}
}

func TestValidateValue(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  []string
	}{
		{"valid", 42, nil},
		{"zero", 0, nil},
		{"missing", -999, []string{FlagMissing}},
		{"nan", math.NaN(), []string{FlagNotFinite}},
		{"negative", -3, []string{FlagNegative}},
		{"implausible", 5000, []string{FlagImplausible}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateValue(tt.value); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ValidateValue(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestClean(t *testing.T) {
	base := time.Date(2001, 5, 1, 0, 0, 0, 0, time.UTC)
	s := models.Series{
		Dates:  []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour), base.Add(3 * time.Hour)},
		Values: []float64{40, -999, 55, -1},
	}
	clean, counts := Clean(s)
	if !reflect.DeepEqual(clean.Values, []float64{40, 55}) {
		t.Errorf("Clean values = %v, want [40 55]", clean.Values)
	}
	if counts[FlagMissing] != 1 || counts[FlagNegative] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
