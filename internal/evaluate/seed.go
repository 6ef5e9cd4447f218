package evaluate

import (
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/observation"
	"github.com/lox/aqensemble/internal/temporal"
)

// SeedStore is the write side of the store filled by SeedDemo.
type SeedStore interface {
	UpsertStation(st models.Station) error
	UpsertMember(name, description string) error
	InsertObservations(stationID string, series models.Series, flags []string) error
	InsertSimulations(member, stationID string, series models.Series) error
}

type DemoOptions struct {
	Origin   time.Time
	Days     int
	Stations int
	Seed     uint64
}

func DefaultDemoOptions() DemoOptions {
	return DemoOptions{
		Origin:   time.Date(2001, 5, 1, 0, 0, 0, 0, time.UTC),
		Days:     30,
		Stations: 8,
		Seed:     1,
	}
}

type demoMember struct {
	name        string
	description string
	bias        float64
	scale       float64
	noise       float64
}

var demoMembers = []demoMember{
	{"chimere", "Eulerian CTM, biased high", 8, 1.05, 6},
	{"emep", "Eulerian CTM, damped cycle", -3, 0.8, 5},
	{"lotos", "Eulerian CTM, noisy", 0, 1, 12},
	{"mocage", "global CTM, biased low", -10, 0.95, 7},
}

// demoOzone is a diurnal ozone profile: low at night, peaking mid
// afternoon.
func demoOzone(t time.Time, base, amplitude float64) float64 {
	phase := 2 * math.Pi * (float64(t.Hour()) - 9) / 24
	return base + amplitude*math.Sin(phase)
}

// SeedDemo fills the store with a synthetic hourly ensemble. About one
// observation in a hundred is corrupted so that quality control has work to
// do.
func SeedDemo(st SeedStore, opts DemoOptions) error {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	dates := temporal.SimulationDates(opts.Origin, time.Hour, opts.Days*24)

	for _, m := range demoMembers {
		if err := st.UpsertMember(m.name, m.description); err != nil {
			return fmt.Errorf("upsert member %s: %w", m.name, err)
		}
	}

	types := []string{observation.TypeUrban, observation.TypeSuburban, observation.TypeRural}
	for s := 0; s < opts.Stations; s++ {
		station := models.Station{
			StationID: fmt.Sprintf("DEMO%03d", s+1),
			Name:      fmt.Sprintf("Demo station %d", s+1),
			Latitude:  45 + rng.Float64()*5,
			Longitude: rng.Float64() * 8,
			Altitude:  math.Round(rng.Float64() * 800),
			Country:   "FR",
			Network:   "DEMO",
			Type:      types[s%len(types)],
			Active:    true,
		}
		if err := st.UpsertStation(station); err != nil {
			return fmt.Errorf("upsert station %s: %w", station.StationID, err)
		}

		base := 50 + rng.Float64()*20
		amplitude := 20 + rng.Float64()*15
		truth := make([]float64, len(dates))
		obs := models.Series{Dates: dates, Values: make([]float64, len(dates))}
		flags := make([]string, len(dates))
		for i, d := range dates {
			truth[i] = demoOzone(d, base, amplitude) + rng.NormFloat64()*4
			v := math.Max(truth[i]+rng.NormFloat64()*3, 1)
			switch rng.IntN(100) {
			case 0:
				v = temporal.MissingValue
			case 1:
				v = -v
			}
			obs.Values[i] = v
			flags[i] = strings.Join(observation.ValidateValue(v), ",")
		}
		if err := st.InsertObservations(station.StationID, obs, flags); err != nil {
			return err
		}

		for _, m := range demoMembers {
			sim := models.Series{Dates: dates, Values: make([]float64, len(dates))}
			for i := range dates {
				sim.Values[i] = math.Max(m.bias+m.scale*truth[i]+rng.NormFloat64()*m.noise, 0)
			}
			if err := st.InsertSimulations(m.name, station.StationID, sim); err != nil {
				return err
			}
		}
	}
	log.Printf("evaluate: seeded %d stations, %d members, %d days from %s",
		opts.Stations, len(demoMembers), opts.Days, opts.Origin.Format("2006-01-02"))
	return nil
}
