package ensemble

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/lox/aqensemble/internal/collect"
)

// Default learning rates, tuned for ozone concentrations in µg/m³.
const (
	DefaultEWARate      = 3e-6
	DefaultEGRate       = 2e-5
	DefaultProdRate     = 5.5e-7
	DefaultGDRate       = 4.5e-9
	DefaultZinkRate     = 1e-6
	DefaultMixtureRate  = 1e-4
	DefaultEGWindowRate = 2e-5
	DefaultNapprox      = 5000
	DefaultNkeep        = 20
	DefaultPenalization = 1.0
	DefaultZinkRadius   = 1.0
	DefaultGDLambda     = 1.0
	DefaultMixtureSeed  = 1
	DefaultNmodel       = 1
)

func uniform(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// squaredLoss is, per member, the sum of squared residuals over the sample.
func squaredLoss(s collect.Sample) []float64 {
	loss := make([]float64, s.Nsim())
	for j, row := range s.Sim {
		for i, v := range row {
			d := v - s.Obs[i]
			loss[j] += d * d
		}
	}
	return loss
}

// gradientLoss is the gradient of the squared loss of the combination prev,
// 2·S(Sᵀprev − o).
func gradientLoss(s collect.Sample, prev []float64) []float64 {
	S := s.Matrix()
	if S == nil {
		return make([]float64, len(prev))
	}
	var r mat.VecDense
	r.MulVec(S.T(), mat.NewVecDense(len(prev), prev))
	r.SubVec(&r, mat.NewVecDense(len(s.Obs), s.Obs))
	var g mat.VecDense
	g.MulVec(S, &r)
	g.ScaleVec(2, &g)
	return mat.Col(nil, 0, &g)
}

// expFactors returns exp(−η·loss) shifted by the smallest loss. The shift
// is a common factor that normalization removes, and it keeps the largest
// factor at one.
func expFactors(loss []float64, eta float64) []float64 {
	f := make([]float64, len(loss))
	if len(loss) == 0 {
		return f
	}
	lo := floats.Min(loss)
	for i, l := range loss {
		f[i] = math.Exp(-eta * (l - lo))
	}
	return f
}

func normalize(w []float64) error {
	sum := floats.Sum(w)
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return fmt.Errorf("%w: sum is %v", ErrDegenerateWeights, sum)
	}
	floats.Scale(1/sum, w)
	return nil
}

// EnsembleMean gives every member the same weight at every step.
type EnsembleMean struct{}

func NewEnsembleMean() *EnsembleMean { return &EnsembleMean{} }

func (*EnsembleMean) Name() string { return "ensemble-mean" }

func (*EnsembleMean) Init(s Setup) ([]float64, error) { return uniform(s.Nsim), nil }

func (*EnsembleMean) Update(w *Window) ([]float64, error) { return uniform(len(w.Prev)), nil }

// EWA is the exponentially weighted average forecaster.
type EWA struct {
	Rate float64
}

func NewEWA(rate float64) *EWA { return &EWA{Rate: rate} }

func (*EWA) Name() string { return "ewa" }

func (*EWA) Init(s Setup) ([]float64, error) { return uniform(s.Nsim), nil }

func (e *EWA) Update(w *Window) ([]float64, error) {
	f := expFactors(squaredLoss(w.Sample), e.Rate)
	weight := make([]float64, len(w.Prev))
	floats.MulTo(weight, w.Prev, f)
	if err := normalize(weight); err != nil {
		return nil, err
	}
	return weight, nil
}

// ExponentiatedGradient updates multiplicatively along the gradient of the
// combination's squared loss.
type ExponentiatedGradient struct {
	Rate float64
}

func NewExponentiatedGradient(rate float64) *ExponentiatedGradient {
	return &ExponentiatedGradient{Rate: rate}
}

func (*ExponentiatedGradient) Name() string { return "eg" }

func (*ExponentiatedGradient) Init(s Setup) ([]float64, error) { return uniform(s.Nsim), nil }

func (e *ExponentiatedGradient) Update(w *Window) ([]float64, error) {
	f := expFactors(gradientLoss(w.Sample, w.Prev), e.Rate)
	weight := make([]float64, len(w.Prev))
	floats.MulTo(weight, w.Prev, f)
	if err := normalize(weight); err != nil {
		return nil, err
	}
	return weight, nil
}

// Prod keeps a confidence per member, multiplied at each step by
// (1 − η·loss).
type Prod struct {
	Rate       float64
	confidence []float64
}

func NewProd(rate float64) *Prod { return &Prod{Rate: rate} }

func (*Prod) Name() string { return "prod" }

func (p *Prod) Init(s Setup) ([]float64, error) {
	p.confidence = uniform(s.Dim)
	return uniform(s.Nsim), nil
}

func (p *Prod) Update(w *Window) ([]float64, error) {
	loss := gradientLoss(w.Sample, w.Prev)
	for i, l := range loss {
		p.confidence[i] *= 1 - p.Rate*l
		if p.confidence[i] < 0 {
			return nil, fmt.Errorf("%w: member %d", ErrNegativeConfidence, i)
		}
	}
	weight := append([]float64(nil), p.confidence...)
	if err := normalize(weight); err != nil {
		return nil, err
	}
	return weight, nil
}

// Confidence returns a copy of the current confidences.
func (p *Prod) Confidence() []float64 { return append([]float64(nil), p.confidence...) }

// GradientDescent takes an unconstrained gradient step.
type GradientDescent struct {
	Rate   float64
	Lambda float64
}

func NewGradientDescent(rate, lambda float64) *GradientDescent {
	return &GradientDescent{Rate: rate, Lambda: lambda}
}

func (*GradientDescent) Name() string { return "gd" }

func (g *GradientDescent) Init(s Setup) ([]float64, error) {
	w := uniform(s.Nsim)
	floats.Scale(g.Lambda, w)
	return w, nil
}

func (g *GradientDescent) Update(w *Window) ([]float64, error) {
	weight := append([]float64(nil), w.Prev...)
	floats.AddScaled(weight, -g.Rate, gradientLoss(w.Sample, w.Prev))
	return weight, nil
}

// Zink is Zinkevich's greedy projection: a gradient step projected back
// onto a feasible set.
type Zink struct {
	Rate       float64
	Projection Projection
}

func NewZink(rate float64, p Projection) *Zink {
	if p == nil {
		p = SimplexProjection{}
	}
	return &Zink{Rate: rate, Projection: p}
}

func (*Zink) Name() string { return "zink" }

func (*Zink) Init(s Setup) ([]float64, error) { return uniform(s.Nsim), nil }

func (z *Zink) Update(w *Window) ([]float64, error) {
	step := append([]float64(nil), w.Prev...)
	floats.AddScaled(step, -z.Rate, gradientLoss(w.Sample, w.Prev))
	return z.Projection.Project(step), nil
}
