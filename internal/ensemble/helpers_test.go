package ensemble

import (
	"math"
	"time"

	"github.com/lox/aqensemble/internal/models"
)

var t0 = time.Date(2001, 5, 1, 0, 0, 0, 0, time.UTC)

func hour(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }

func day(d int) time.Time { return t0.AddDate(0, 0, d) }

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// testEnsemble builds a complete ensemble where every station has a value
// at every date. sim(m, st, i) and obs(st, i) give the values.
func testEnsemble(conc models.Concentrations, nsim, nstation, nt int, sim func(m, st, i int) float64, obs func(st, i int) float64) *models.Ensemble {
	at := hour
	if conc == models.Peak {
		at = day
	}
	ens := &models.Ensemble{
		Dates:          make([][]time.Time, nstation),
		Sim:            make([][][]float64, nsim),
		Obs:            make([][]float64, nstation),
		Concentrations: conc,
	}
	for i := 0; i < nt; i++ {
		ens.AllDates = append(ens.AllDates, at(i))
	}
	for st := 0; st < nstation; st++ {
		ens.Dates[st] = append([]time.Time(nil), ens.AllDates...)
		ens.Obs[st] = make([]float64, nt)
		for i := range ens.Obs[st] {
			ens.Obs[st][i] = obs(st, i)
		}
	}
	for m := 0; m < nsim; m++ {
		ens.Sim[m] = make([][]float64, nstation)
		for st := range ens.Sim[m] {
			ens.Sim[m][st] = make([]float64, nt)
			for i := range ens.Sim[m][st] {
				ens.Sim[m][st][i] = sim(m, st, i)
			}
		}
	}
	return ens
}

// ozone is a smooth, positive, station-dependent test signal.
func ozone(st, i int) float64 {
	return 60 + 10*float64(st) + 15*math.Sin(float64(i)/3)
}

// spread perturbs ozone differently for each member.
func spread(m, st, i int) float64 {
	return ozone(st, i) + float64(m*4-3) + 2*math.Cos(float64(i*(m+1)))
}
