package ensemble

import (
	"fmt"
	"time"

	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/temporal"
)

// Build aligns observations and members station by station on the dates
// they all share. obs and every member's Series are indexed like stations.
// A station without any common date is kept with empty series.
func Build(stations []models.Station, obs []models.Series, members []models.Member, allDates []time.Time, conc models.Concentrations) (*models.Ensemble, error) {
	if len(obs) != len(stations) {
		return nil, fmt.Errorf("%w: %d stations, %d observation series", ErrIncompatibleShapes, len(stations), len(obs))
	}
	ens := &models.Ensemble{
		Stations:       stations,
		Members:        make([]string, len(members)),
		Dates:          make([][]time.Time, len(stations)),
		Sim:            make([][][]float64, len(members)),
		Obs:            make([][]float64, len(stations)),
		AllDates:       allDates,
		Concentrations: conc,
	}
	for j, mem := range members {
		if len(mem.Series) != len(stations) {
			return nil, fmt.Errorf("%w: member %s has %d series, want %d", ErrIncompatibleShapes, mem.Name, len(mem.Series), len(stations))
		}
		ens.Members[j] = mem.Name
		ens.Sim[j] = make([][]float64, len(stations))
	}

	for st := range stations {
		if err := obs[st].Validate(); err != nil {
			return nil, fmt.Errorf("observations at %s: %w", stations[st].StationID, err)
		}
		common := obs[st].Dates
		for _, mem := range members {
			if err := mem.Series[st].Validate(); err != nil {
				return nil, fmt.Errorf("member %s at %s: %w", mem.Name, stations[st].StationID, err)
			}
			mask, _ := temporal.MasksForCommonDates(common, mem.Series[st].Dates)
			common, _ = temporal.ApplyMask(common, make([]float64, len(common)), mask)
		}
		mask, _ := temporal.MasksForCommonDates(obs[st].Dates, common)
		ens.Dates[st], ens.Obs[st] = temporal.ApplyMask(obs[st].Dates, obs[st].Values, mask)
		for j, mem := range members {
			s := mem.Series[st]
			mask, _ := temporal.MasksForCommonDates(s.Dates, common)
			ens.Sim[j][st] = temporal.ApplyValues(s.Values, mask)
		}
	}
	return ens, nil
}
