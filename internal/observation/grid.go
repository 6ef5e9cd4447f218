package observation

import (
	"fmt"
	"math"
	"time"

	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/temporal"
)

// Grid is a regular time, latitude, longitude field stored row-major with
// longitude varying fastest.
type Grid struct {
	OriginT time.Time
	OriginY float64 // latitude of the first row
	OriginX float64 // longitude of the first column
	DeltaT  time.Duration
	DeltaY  float64
	DeltaX  float64
	Nt      int
	Ny      int
	Nx      int
	Data    []float64
}

func NewGrid(originT time.Time, originY, originX float64, deltaT time.Duration, deltaY, deltaX float64, nt, ny, nx int, data []float64) (*Grid, error) {
	if len(data) != nt*ny*nx {
		return nil, fmt.Errorf("%w: grid %dx%dx%d needs %d values, got %d", models.ErrShapeMismatch, nt, ny, nx, nt*ny*nx, len(data))
	}
	if deltaY <= 0 || deltaX <= 0 {
		return nil, fmt.Errorf("grid steps must be positive, got %v and %v", deltaY, deltaX)
	}
	return &Grid{
		OriginT: originT, OriginY: originY, OriginX: originX,
		DeltaT: deltaT, DeltaY: deltaY, DeltaX: deltaX,
		Nt: nt, Ny: ny, Nx: nx,
		Data: data,
	}, nil
}

func (g *Grid) At(t, y, x int) float64 {
	return g.Data[(t*g.Ny+y)*g.Nx+x]
}

// Box is the horizontal extent of the grid, taken as Ny by Nx cells.
func (g *Grid) Box() Box {
	return Box{
		LatMin: g.OriginY, LatMax: g.OriginY + g.DeltaY*float64(g.Ny),
		LonMin: g.OriginX, LonMax: g.OriginX + g.DeltaX*float64(g.Nx),
	}
}

func (g *Grid) Dates() []time.Time {
	return temporal.SimulationDates(g.OriginT, g.DeltaT, g.Nt)
}

// Interpolate returns the time series at (lat, lon) by bilinear
// interpolation of the four surrounding grid nodes. It returns nil when the
// point falls outside the grid.
func (g *Grid) Interpolate(lat, lon float64) []float64 {
	fy := (lat - g.OriginY) / g.DeltaY
	fx := (lon - g.OriginX) / g.DeltaX
	if fy < 0 || fx < 0 {
		return nil
	}
	iy, ix := int(fy), int(fx)
	if iy >= g.Ny || ix >= g.Nx {
		return nil
	}
	cy := fy - float64(iy)
	cx := fx - float64(ix)
	// A point on the last row or column needs no neighbour beyond it.
	iy1, ix1 := iy+1, ix+1
	if iy1 == g.Ny {
		if cy > 0 {
			return nil
		}
		iy1 = iy
	}
	if ix1 == g.Nx {
		if cx > 0 {
			return nil
		}
		ix1 = ix
	}

	out := make([]float64, g.Nt)
	for t := range out {
		out[t] = (1-cy)*(1-cx)*g.At(t, iy, ix) +
			cy*cx*g.At(t, iy1, ix1) +
			cy*(1-cx)*g.At(t, iy1, ix) +
			(1-cy)*cx*g.At(t, iy, ix1)
	}
	return out
}

// Closest returns the time series of the grid node nearest to (lat, lon).
// Points on the far border map to the last node; points beyond it yield nil.
func (g *Grid) Closest(lat, lon float64) []float64 {
	iy := int(math.Round((lat - g.OriginY) / g.DeltaY))
	ix := int(math.Round((lon - g.OriginX) / g.DeltaX))
	if iy == g.Ny {
		iy--
	}
	if ix == g.Nx {
		ix--
	}
	if iy < 0 || ix < 0 || iy >= g.Ny || ix >= g.Nx {
		return nil
	}
	out := make([]float64, g.Nt)
	for t := range out {
		out[t] = g.At(t, iy, ix)
	}
	return out
}

// AtStations interpolates the grid at every station. Stations outside the
// grid get a nil series.
func (g *Grid) AtStations(stations []models.Station) [][]float64 {
	out := make([][]float64, len(stations))
	for i, s := range stations {
		out[i] = g.Interpolate(s.Latitude, s.Longitude)
	}
	return out
}

// SeriesAt interpolates the grid at a station and pairs it with grid dates.
func (g *Grid) SeriesAt(s models.Station) (models.Series, bool) {
	values := g.Interpolate(s.Latitude, s.Longitude)
	if values == nil {
		return models.Series{}, false
	}
	return models.Series{Dates: g.Dates(), Values: values}, true
}
