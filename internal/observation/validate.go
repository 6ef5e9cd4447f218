package observation

import (
	"math"

	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/temporal"
)

const (
	FlagMissing     = "missing"
	FlagNotFinite   = "not_finite"
	FlagNegative    = "negative"
	FlagImplausible = "implausible"
)

// MaxPlausible is the largest concentration, in µg/m³, accepted from a
// monitor.
const MaxPlausible = 2000.0

// ValidateValue returns the quality flags raised by a single measurement.
func ValidateValue(v float64) []string {
	var flags []string
	switch {
	case v == temporal.MissingValue:
		flags = append(flags, FlagMissing)
	case math.IsNaN(v) || math.IsInf(v, 0):
		flags = append(flags, FlagNotFinite)
	case v < 0:
		flags = append(flags, FlagNegative)
	case v > MaxPlausible:
		flags = append(flags, FlagImplausible)
	}
	return flags
}

// Clean drops the flagged entries of s and counts the flags raised.
func Clean(s models.Series) (models.Series, map[string]int) {
	counts := make(map[string]int)
	out := models.Series{}
	for i, v := range s.Values {
		flags := ValidateValue(v)
		if len(flags) > 0 {
			for _, f := range flags {
				counts[f]++
			}
			continue
		}
		out.Dates = append(out.Dates, s.Dates[i])
		out.Values = append(out.Values, v)
	}
	return out, counts
}
