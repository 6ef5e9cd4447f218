package temporal

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func hour(h int) time.Time {
	return time.Date(2001, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(h) * time.Hour)
}

func hours(hs ...int) []time.Time {
	out := make([]time.Time, len(hs))
	for i, h := range hs {
		out[i] = hour(h)
	}
	return out
}

func TestMasksForCommonDates(t *testing.T) {
	tests := []struct {
		name   string
		d0, d1 []time.Time
		want0  []bool
		want1  []bool
	}{
		{
			name:  "interleaved",
			d0:    hours(0, 1, 2, 4),
			d1:    hours(1, 3, 4, 5),
			want0: []bool{false, true, false, true},
			want1: []bool{true, false, true, false},
		},
		{
			name:  "disjoint",
			d0:    hours(0, 1),
			d1:    hours(2, 3),
			want0: []bool{false, false},
			want1: []bool{false, false},
		},
		{
			name:  "empty second",
			d0:    hours(0, 1),
			d1:    nil,
			want0: []bool{false, false},
			want1: []bool{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m0, m1 := MasksForCommonDates(tt.d0, tt.d1)
			if !reflect.DeepEqual(m0, tt.want0) {
				t.Errorf("mask0 = %v, want %v", m0, tt.want0)
			}
			if !reflect.DeepEqual(m1, tt.want1) {
				t.Errorf("mask1 = %v, want %v", m1, tt.want1)
			}
		})
	}
}

func TestRestrictToCommonDates(t *testing.T) {
	simDates := hours(0, 1, 2, 3)
	sim := []float64{10, 11, 12, 13}
	obsDates := hours(1, 3, 7)
	obs := []float64{21, 23, 27}

	dates, s, o, err := RestrictToCommonDates(simDates, sim, obsDates, obs)
	if err != nil {
		t.Fatalf("RestrictToCommonDates: %v", err)
	}
	if !reflect.DeepEqual(dates, hours(1, 3)) {
		t.Errorf("dates = %v", dates)
	}
	if !reflect.DeepEqual(s, []float64{11, 13}) {
		t.Errorf("sim = %v, want [11 13]", s)
	}
	if !reflect.DeepEqual(o, []float64{21, 23}) {
		t.Errorf("obs = %v, want [21 23]", o)
	}

	// Applying the restriction again changes nothing.
	dates2, s2, o2, err := RestrictToCommonDates(dates, s, dates, o)
	if err != nil {
		t.Fatalf("second RestrictToCommonDates: %v", err)
	}
	if !reflect.DeepEqual(dates2, dates) || !reflect.DeepEqual(s2, s) || !reflect.DeepEqual(o2, o) {
		t.Errorf("restriction is not idempotent: %v %v %v", dates2, s2, o2)
	}
}

func TestRestrictToCommonDates_DimensionMismatch(t *testing.T) {
	_, _, _, err := RestrictToCommonDates(hours(0, 1), []float64{1}, hours(0), []float64{1})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestRestrictToCommonDays(t *testing.T) {
	// Hourly simulations over two days, daily observations stamped at noon.
	var simDates []time.Time
	var sim []float64
	for h := 0; h < 48; h++ {
		simDates = append(simDates, hour(h))
		sim = append(sim, float64(h))
	}
	obsDates := []time.Time{hour(12), hour(60)}
	obs := []float64{100, 300}

	dates, s, o, err := RestrictToCommonDays(simDates, sim, obsDates, obs)
	if err != nil {
		t.Fatalf("RestrictToCommonDays: %v", err)
	}
	if !reflect.DeepEqual(dates, hours(0)) {
		t.Errorf("dates = %v, want first hour of day one", dates)
	}
	if !reflect.DeepEqual(s, []float64{0}) || !reflect.DeepEqual(o, []float64{100}) {
		t.Errorf("sim = %v obs = %v", s, o)
	}
}

func TestRestrictToPeriod(t *testing.T) {
	dates := hours(0, 1, 2, 3, 4)
	data := []float64{0, 1, 2, 3, 4}

	tests := []struct {
		name   string
		period Period
		want   []float64
	}{
		{"inclusive bounds", Period{hour(1), hour(3)}, []float64{1, 2, 3}},
		{"single date", At(hour(2)), []float64{2}},
		{"covers everything", Period{hour(-5), hour(10)}, []float64{0, 1, 2, 3, 4}},
		{"after last date", Period{hour(6), hour(8)}, []float64{}},
		{"before first date", Period{hour(-3), hour(-1)}, []float64{}},
		{"between dates", Period{hour(1).Add(10 * time.Minute), hour(1).Add(20 * time.Minute)}, []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, v := RestrictToPeriod(dates, data, tt.period)
			if !reflect.DeepEqual(v, tt.want) {
				t.Errorf("RestrictToPeriod(%s) = %v, want %v", tt.period, v, tt.want)
			}
			if len(d) != len(v) {
				t.Errorf("len(dates) = %d, len(values) = %d", len(d), len(v))
			}
		})
	}
}

func TestSplitIntoDays(t *testing.T) {
	dates := hours(0, 5, 23, 24, 30, 50)
	data := []float64{1, 2, 3, 4, 5, 6}
	days, values, err := SplitIntoDays(dates, data)
	if err != nil {
		t.Fatalf("SplitIntoDays: %v", err)
	}
	want := [][]float64{{1, 2, 3}, {4, 5}, {6}}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("values = %v, want %v", values, want)
	}
	if len(days) != 3 || len(days[1]) != 2 {
		t.Errorf("days = %v", days)
	}

	days, values, err = SplitIntoDays(nil, nil)
	if err != nil {
		t.Fatalf("SplitIntoDays(empty): %v", err)
	}
	if len(days) != 1 || len(days[0]) != 0 || len(values) != 1 || len(values[0]) != 0 {
		t.Errorf("SplitIntoDays(empty) = %v %v, want one empty group", days, values)
	}
}

func TestGetPeriods(t *testing.T) {
	start := hour(0)
	end := hour(0).Add(5 * 24 * time.Hour)
	day := 24 * time.Hour

	tests := []struct {
		name        string
		length      time.Duration
		interperiod time.Duration
		fitLast     bool
		wantCount   int
	}{
		{"daily tiles", day, 0, false, 5},
		{"two days with gap", 2 * day, day, false, 2},
		{"fit last", 2 * day, 0, true, 3},
		{"zero length", 0, 0, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetPeriods(start, end, tt.length, tt.interperiod, tt.fitLast)
			if len(got) != tt.wantCount {
				t.Fatalf("len(GetPeriods) = %d, want %d (%v)", len(got), tt.wantCount, got)
			}
			if tt.fitLast && len(got) > 0 && !got[len(got)-1].End.Equal(end) {
				t.Errorf("last period ends %v, want %v", got[len(got)-1].End, end)
			}
		})
	}
}

func TestMidnightAndSimulationDates(t *testing.T) {
	ts := time.Date(2001, 5, 3, 17, 42, 11, 5, time.UTC)
	if got, want := Midnight(ts), time.Date(2001, 5, 3, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Midnight(%v) = %v, want %v", ts, got, want)
	}

	dates := SimulationDates(hour(0), 3*time.Hour, 4)
	if !reflect.DeepEqual(dates, hours(0, 3, 6, 9)) {
		t.Errorf("SimulationDates = %v", dates)
	}
	if got := DateRange(hour(0), hour(2), time.Hour); !reflect.DeepEqual(got, hours(0, 1, 2)) {
		t.Errorf("DateRange = %v", got)
	}
}

func TestRemoveMissing(t *testing.T) {
	dates := hours(0, 1, 2, 3)
	data := []float64{1, MissingValue, 3, -1}

	d, v, err := RemoveMissing(dates, data)
	if err != nil {
		t.Fatalf("RemoveMissing: %v", err)
	}
	if !reflect.DeepEqual(v, []float64{1, 3, -1}) || !reflect.DeepEqual(d, hours(0, 2, 3)) {
		t.Errorf("RemoveMissing = %v %v", d, v)
	}

	_, v, _ = RemoveMissing(dates, data, -1, MissingValue)
	if !reflect.DeepEqual(v, []float64{1, 3}) {
		t.Errorf("RemoveMissing(-1, -999) = %v, want [1 3]", v)
	}
}

func TestDailyPeaks(t *testing.T) {
	var dates []time.Time
	var conc []float64
	// Day one complete with a peak at 14h, day two missing hours.
	for h := 0; h < 24; h++ {
		dates = append(dates, hour(h))
		conc = append(conc, float64(h%15))
	}
	for h := 24; h < 30; h++ {
		dates = append(dates, hour(h))
		conc = append(conc, 50)
	}

	d, v, err := DailyPeaks(dates, conc, DefaultPeakOptions())
	if err != nil {
		t.Fatalf("DailyPeaks: %v", err)
	}
	if len(v) != 1 || v[0] != 14 || !d[0].Equal(hour(14)) {
		t.Errorf("DailyPeaks = %v %v, want one peak of 14 at 14h", d, v)
	}

	opts := PeakOptions{FirstHour: 0, LastHour: 23, MinInRange: 4}
	_, v, _ = DailyPeaks(dates, conc, opts)
	if len(v) != 2 {
		t.Errorf("DailyPeaks with MinInRange=4 kept %d days, want 2", len(v))
	}
}

func TestDailyObsPeaks(t *testing.T) {
	dates := hours(8, 9, 10, 11)
	sim := []float64{1, 5, 2, 0}
	obs := []float64{0, 1, 7, 2}
	opts := PeakOptions{FirstHour: 8, LastHour: 11, MinInRange: 4}

	peaks, err := DailyObsPeaks(dates, sim, obs, opts, false)
	if err != nil {
		t.Fatalf("DailyObsPeaks: %v", err)
	}
	if peaks.Sim[0] != 5 || !peaks.SimDates[0].Equal(hour(9)) {
		t.Errorf("unpaired sim peak = %v at %v, want 5 at 9h", peaks.Sim[0], peaks.SimDates[0])
	}
	if peaks.Obs[0] != 7 || !peaks.ObsDates[0].Equal(hour(10)) {
		t.Errorf("obs peak = %v at %v, want 7 at 10h", peaks.Obs[0], peaks.ObsDates[0])
	}

	peaks, err = DailyObsPeaks(dates, sim, obs, opts, true)
	if err != nil {
		t.Fatalf("DailyObsPeaks paired: %v", err)
	}
	if peaks.Sim[0] != 2 || !peaks.SimDates[0].Equal(hour(10)) {
		t.Errorf("paired sim peak = %v at %v, want 2 at 10h", peaks.Sim[0], peaks.SimDates[0])
	}
}
