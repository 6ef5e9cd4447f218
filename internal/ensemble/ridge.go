package ensemble

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Ridge is online ridge regression. It accumulates A = λI + Σ x xᵀ over
// every training sample seen so far and steps w ← w_prev − A⁻¹B, where B
// is the gradient of the current window.
//
// A grows with every sample. With Window > 0 only the contributions of the
// most recent Window steps are kept.
type Ridge struct {
	Penalization float64
	Window       int

	a       *mat.SymDense
	history []*mat.SymDense
}

func NewRidge(penalization float64, window int) *Ridge {
	return &Ridge{Penalization: penalization, Window: window}
}

func (*Ridge) Name() string { return "ridge" }

func (r *Ridge) Init(s Setup) ([]float64, error) {
	if r.Penalization <= 0 {
		return nil, fmt.Errorf("ridge penalization must be positive, got %v", r.Penalization)
	}
	r.a = mat.NewSymDense(s.Dim, nil)
	for i := 0; i < s.Dim; i++ {
		r.a.SetSym(i, i, r.Penalization)
	}
	r.history = nil
	return make([]float64, s.Nsim), nil
}

func (r *Ridge) Update(w *Window) ([]float64, error) {
	dim := len(w.Prev)
	step := mat.NewSymDense(dim, nil)
	b := make([]float64, dim)
	for i, o := range w.Sample.Obs {
		x := w.Sample.Column(i)
		step.SymRankOne(step, 1, mat.NewVecDense(dim, x))
		floats.AddScaled(b, floats.Dot(x, w.Prev)-o, x)
	}
	r.a.AddSym(r.a, step)
	if r.Window > 0 {
		r.history = append(r.history, step)
		if len(r.history) > r.Window {
			oldest := r.history[0]
			r.history = r.history[1:]
			var neg mat.SymDense
			neg.ScaleSym(-1, oldest)
			r.a.AddSym(r.a, &neg)
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(r.a) {
		return nil, fmt.Errorf("ridge accumulator: %w", ErrSingularMatrix)
	}
	var delta mat.VecDense
	if err := chol.SolveVecTo(&delta, mat.NewVecDense(dim, b)); err != nil {
		return nil, fmt.Errorf("ridge accumulator: %w: %v", ErrSingularMatrix, err)
	}
	weight := append([]float64(nil), w.Prev...)
	floats.Sub(weight, mat.Col(nil, 0, &delta))
	return weight, nil
}
