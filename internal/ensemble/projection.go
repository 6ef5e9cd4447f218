package ensemble

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Projection maps a weight vector back onto a feasible set.
type Projection interface {
	Project(v []float64) []float64
	String() string
}

// SimplexProjection projects onto the probability simplex.
type SimplexProjection struct{}

func (SimplexProjection) Project(v []float64) []float64 { return ProjectSimplex(v) }
func (SimplexProjection) String() string                { return "simplex" }

// CubeProjection clamps every coordinate to [-Radius, Radius].
type CubeProjection struct{ Radius float64 }

func (p CubeProjection) Project(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Max(-p.Radius, math.Min(x, p.Radius))
	}
	return out
}

func (p CubeProjection) String() string { return fmt.Sprintf("cube(%g)", p.Radius) }

// BallProjection projects onto the L2 ball of the given radius.
type BallProjection struct{ Radius float64 }

func (p BallProjection) Project(v []float64) []float64 {
	out := append([]float64(nil), v...)
	norm := floats.Norm(v, 2)
	if norm > p.Radius && norm > 0 {
		floats.Scale(p.Radius/norm, out)
	}
	return out
}

func (p BallProjection) String() string { return fmt.Sprintf("l2(%g)", p.Radius) }

// ParseProjection resolves a projection by name: "simplex", "cube" or "l2".
func ParseProjection(name string, radius float64) (Projection, error) {
	switch name {
	case "", "simplex":
		return SimplexProjection{}, nil
	case "cube", "cubic":
		return CubeProjection{Radius: radius}, nil
	case "l2", "ball":
		return BallProjection{Radius: radius}, nil
	}
	return nil, fmt.Errorf("%w: projection %q", ErrUnsupportedOption, name)
}

// ProjectSimplex returns the Euclidean projection of v onto
// {w : w ≥ 0, Σw = 1}.
func ProjectSimplex(v []float64) []float64 {
	if len(v) == 0 {
		return nil
	}
	u := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))
	var cum, theta float64
	for j, x := range u {
		cum += x
		t := (cum - 1) / float64(j+1)
		if x-t > 0 {
			theta = t
		}
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Max(x-theta, 0)
	}
	return out
}
