package ensemble

import (
	"gonum.org/v1/gonum/floats"
)

// EGWindow is the exponentiated gradient with a finite memory. The weight
// at a position of the daily cycle carries the update factors of that
// position over the last Nkeep days only: once the window is full, the
// oldest factor is divided back out.
type EGWindow struct {
	Rate  float64
	Nkeep int

	capacity int
	factors  [][]float64
}

func NewEGWindow(rate float64, nkeep int) *EGWindow {
	return &EGWindow{Rate: rate, Nkeep: nkeep}
}

func (*EGWindow) Name() string { return "eg-window" }

func (e *EGWindow) Init(s Setup) ([]float64, error) {
	e.capacity = e.Nkeep * s.Concentrations.Cycle()
	e.factors = nil
	return uniform(s.Nsim), nil
}

func (e *EGWindow) Update(w *Window) ([]float64, error) {
	f := expFactors(gradientLoss(w.Sample, w.Prev), e.Rate)
	weight := make([]float64, len(w.Prev))
	floats.MulTo(weight, w.Prev, f)

	full := len(e.factors) == e.capacity
	e.factors = append(e.factors, f)
	if full {
		// Factors are kept in step order, so the oldest one in an hourly
		// window was taken at the same hour as this step.
		floats.Div(weight, e.factors[0])
		e.factors = e.factors[1:]
	}
	if err := normalize(weight); err != nil {
		return nil, err
	}
	return weight, nil
}
