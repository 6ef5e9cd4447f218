// Package temporal aligns, restricts and splits date-indexed series.
//
// Every function assumes its date slices are sorted in increasing order and
// returns fresh slices; inputs are never modified.
package temporal

import (
	"fmt"
	"time"
)

// Period is a closed interval of time, both bounds included.
type Period struct {
	Start time.Time
	End   time.Time
}

const dateLayout = "2006-01-02 15:04"

func (p Period) String() string {
	return fmt.Sprintf("%s to %s", p.Start.Format(dateLayout), p.End.Format(dateLayout))
}

func (p Period) IsZero() bool { return p.Start.IsZero() && p.End.IsZero() }

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// At is the degenerate period covering a single instant.
func At(t time.Time) Period { return Period{Start: t, End: t} }

// PeriodOf returns the period spanned by sorted dates. It returns the zero
// Period when dates is empty.
func PeriodOf(dates []time.Time) Period {
	if len(dates) == 0 {
		return Period{}
	}
	return Period{Start: dates[0], End: dates[len(dates)-1]}
}

// SpanOf returns the period covering every non-empty date list.
func SpanOf(dates [][]time.Time) Period {
	var p Period
	for _, d := range dates {
		if len(d) == 0 {
			continue
		}
		if p.IsZero() || d[0].Before(p.Start) {
			p.Start = d[0]
		}
		if p.End.IsZero() || d[len(d)-1].After(p.End) {
			p.End = d[len(d)-1]
		}
	}
	return p
}

// GetPeriods tiles [start, end] with periods of the given length separated
// by interperiod gaps. When fitLast is set, a trailing shorter period
// reaching end is appended. A zero length yields no periods.
func GetPeriods(start, end time.Time, length, interperiod time.Duration, fitLast bool) []Period {
	var periods []Period
	if length <= 0 {
		return periods
	}
	inGap := false
	last := start
	current := start.Add(length)
	for !current.After(end) {
		if inGap {
			last = current
			current = current.Add(length)
		} else {
			periods = append(periods, Period{Start: last, End: current})
			last = current
			current = current.Add(interperiod)
		}
		inGap = !inGap
	}
	if !inGap && fitLast && !last.Equal(end) {
		periods = append(periods, Period{Start: last, End: end})
	}
	return periods
}

// Midnight truncates t to the start of its day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func SameDay(a, b time.Time) bool {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	return ya == yb && ma == mb && da == db
}

// SimulationDates returns the nt dates of a simulation grid starting at start.
func SimulationDates(start time.Time, deltaT time.Duration, nt int) []time.Time {
	if nt <= 0 {
		return nil
	}
	dates := make([]time.Time, nt)
	for i := range dates {
		dates[i] = start.Add(time.Duration(i) * deltaT)
	}
	return dates
}

// DateRange returns start, start+step, ... up to and including end.
func DateRange(start, end time.Time, step time.Duration) []time.Time {
	if step <= 0 || end.Before(start) {
		return nil
	}
	var dates []time.Time
	for t := start; !t.After(end); t = t.Add(step) {
		dates = append(dates, t)
	}
	return dates
}
