package ensemble

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distmv"
)

// Mixture is a discretised exponentially weighted mixture over the simplex.
// Each of Napprox points drawn uniformly on the simplex acts as an expert
// whose forecast is the combination it defines.
type Mixture struct {
	Rate    float64
	Napprox int
	Seed    uint64

	points     [][]float64
	confidence []float64
}

func NewMixture(rate float64, napprox int, seed uint64) *Mixture {
	return &Mixture{Rate: rate, Napprox: napprox, Seed: seed}
}

func (*Mixture) Name() string { return "mixture" }

func (x *Mixture) Init(s Setup) ([]float64, error) {
	if x.Napprox <= 0 {
		return nil, fmt.Errorf("mixture needs at least one point, got %d", x.Napprox)
	}
	x.points = simplexPoints(s.Dim, x.Napprox, x.Seed)
	x.confidence = uniform(x.Napprox)
	return uniform(s.Nsim), nil
}

// simplexPoints draws n points from the flat Dirichlet distribution, which
// is uniform on the simplex.
func simplexPoints(dim, n int, seed uint64) [][]float64 {
	if dim == 1 {
		points := make([][]float64, n)
		for i := range points {
			points[i] = []float64{1}
		}
		return points
	}
	alpha := make([]float64, dim)
	floats.AddConst(1, alpha)
	d := distmv.NewDirichlet(alpha, rand.NewPCG(seed, seed))
	points := make([][]float64, n)
	for i := range points {
		points[i] = d.Rand(nil)
	}
	return points
}

func (x *Mixture) Update(w *Window) ([]float64, error) {
	loss := make([]float64, len(x.points))
	for k, p := range x.points {
		for i, o := range w.Sample.Obs {
			d := floats.Dot(p, w.Sample.Column(i)) - o
			loss[k] += d * d
		}
	}
	floats.Mul(x.confidence, expFactors(loss, x.Rate))
	if err := normalize(x.confidence); err != nil {
		return nil, err
	}
	weight := make([]float64, len(w.Prev))
	for k, p := range x.points {
		floats.AddScaled(weight, x.confidence[k], p)
	}
	return weight, nil
}
