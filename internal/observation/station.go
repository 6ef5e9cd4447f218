// Package observation holds station predicates, grid sampling and
// observation quality control.
package observation

import (
	"time"

	"github.com/lox/aqensemble/internal/models"
)

const (
	TypeUrban    = "URB"
	TypeRural    = "RUR"
	TypeSuburban = "SUB"
)

// Box is a latitude/longitude rectangle, bounds included.
type Box struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

func IsInsideBox(s models.Station, b Box) bool {
	return s.Latitude >= b.LatMin && s.Latitude <= b.LatMax &&
		s.Longitude >= b.LonMin && s.Longitude <= b.LonMax
}

// IsInsideGridBox reports whether s lies within the horizontal extent of g.
func IsInsideGridBox(s models.Station, g *Grid) bool {
	return IsInsideBox(s, g.Box())
}

func IsUrban(s models.Station) bool { return s.Type == TypeUrban }
func IsRural(s models.Station) bool { return s.Type == TypeRural }

// HasValidLatLon rejects stations whose coordinates were never filled in.
func HasValidLatLon(s models.Station) bool {
	return s.Latitude != 0 && s.Longitude != 0
}

// StationByID returns the station with the given identifier.
func StationByID(stations []models.Station, id string) (models.Station, bool) {
	for _, s := range stations {
		if s.StationID == id {
			return s, true
		}
	}
	return models.Station{}, false
}

// Filter returns the stations accepted by keep, in order. The input slice is
// left untouched.
func Filter(stations []models.Station, keep func(models.Station) bool) []models.Station {
	var out []models.Station
	for _, s := range stations {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// FilterIndices returns the positions of the stations accepted by keep.
func FilterIndices(stations []models.Station, keep func(models.Station) bool) []int {
	var out []int
	for i, s := range stations {
		if keep(s) {
			out = append(out, i)
		}
	}
	return out
}

// FilterWithSeries filters stations together with their observation series.
func FilterWithSeries(stations []models.Station, series []models.Series, keep func(models.Station, models.Series) bool) ([]models.Station, []models.Series) {
	var outStations []models.Station
	var outSeries []models.Series
	for i := range stations {
		if keep(stations[i], series[i]) {
			outStations = append(outStations, stations[i])
			outSeries = append(outSeries, series[i])
		}
	}
	return outStations, outSeries
}

// And combines predicates.
func And(preds ...func(models.Station) bool) func(models.Station) bool {
	return func(s models.Station) bool {
		for _, p := range preds {
			if !p(s) {
				return false
			}
		}
		return true
	}
}

// InIDs accepts stations whose identifier is listed. An empty list accepts
// every station.
func InIDs(ids []string) func(models.Station) bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(s models.Station) bool {
		return len(set) == 0 || set[s.StationID]
	}
}

// RemoveLowest drops the entries where data1 is not strictly above mini.
func RemoveLowest(dates []time.Time, data1, data2 []float64, mini float64) ([]time.Time, []float64, []float64) {
	return keepWhere(dates, data1, data2, func(v float64) bool { return v > mini })
}

// RemoveHighest drops the entries where data1 is not strictly below maxi.
func RemoveHighest(dates []time.Time, data1, data2 []float64, maxi float64) ([]time.Time, []float64, []float64) {
	return keepWhere(dates, data1, data2, func(v float64) bool { return v < maxi })
}

func keepWhere(dates []time.Time, data1, data2 []float64, keep func(float64) bool) ([]time.Time, []float64, []float64) {
	var outDates []time.Time
	out1 := []float64{}
	out2 := []float64{}
	for i, v := range data1 {
		if !keep(v) {
			continue
		}
		if dates != nil {
			outDates = append(outDates, dates[i])
		}
		out1 = append(out1, v)
		out2 = append(out2, data2[i])
	}
	return outDates, out1, out2
}
