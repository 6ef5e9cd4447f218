package ensemble

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/lox/aqensemble/internal/collect"
	"github.com/lox/aqensemble/internal/models"
)

// ConstraintSimplex restricts least-squares weights to the probability
// simplex. The empty constraint leaves them free.
const ConstraintSimplex = "simplex"

func solveLeastSquares(constraint string, s *mat.Dense, o []float64) ([]float64, error) {
	switch constraint {
	case "", "none":
		return WLeastSquares(s, o)
	case ConstraintSimplex:
		return WLeastSquaresSimplex(s, o)
	}
	return nil, fmt.Errorf("%w: least-squares constraint %q", ErrUnsupportedOption, constraint)
}

// ELS fits one weight vector by least squares over the whole evaluation
// period and applies it at every date.
type ELS struct {
	Constraint string
}

func NewELS(constraint string) *ELS { return &ELS{Constraint: constraint} }

func (*ELS) Name() string { return "els" }

func (e *ELS) Combine(m *Method) error {
	if m.Options().Option != models.OptionGlobal {
		return fmt.Errorf("%w: els only supports the global option", ErrUnsupportedOption)
	}
	p := m.EvaluationPeriod()
	d := periodData(m, p)
	sample := collect.Collect(d, p, m.Options().Filter)
	w, err := solveLeastSquares(e.Constraint, sample.Matrix(), sample.Obs)
	if err != nil {
		return err
	}
	m.GlobalWeight = w
	m.Dates, m.Sim, m.Obs = d.Dates, CombineConstant(d.Sim, w), d.Obs
	return nil
}

// ELSd refits the least-squares weights at every step on that step's own
// samples. It sees the observations it is combining and serves as an upper
// bound for the learners.
type ELSd struct {
	Constraint string
}

func NewELSd(constraint string) *ELSd { return &ELSd{Constraint: constraint} }

func (*ELSd) Name() string { return "elsd" }

func (*ELSd) Init(s Setup) ([]float64, error) { return uniform(s.Nsim), nil }

func (*ELSd) PlanWindow(m *Method, step int) []time.Time {
	return []time.Time{m.Ensemble().AllDates[step]}
}

func (e *ELSd) Update(w *Window) ([]float64, error) {
	return refit(e.Constraint, w)
}

// refit solves the window's least-squares problem. An empty window keeps the
// previous weight. A singular system is returned as an error.
func refit(constraint string, w *Window) ([]float64, error) {
	if w.Sample.Len() == 0 {
		return w.Prev, nil
	}
	return solveLeastSquares(constraint, w.Sample.Matrix(), w.Sample.Obs)
}

// ELSdN refits the least-squares weights at every step over the most recent
// NlearningMax steps, or fewer at the start of the series.
type ELSdN struct {
	Constraint   string
	NlearningMax int
}

func NewELSdN(constraint string, nlearningMax int) *ELSdN {
	return &ELSdN{Constraint: constraint, NlearningMax: nlearningMax}
}

func (*ELSdN) Name() string { return "elsdn" }

func (*ELSdN) Init(s Setup) ([]float64, error) { return uniform(s.Nsim), nil }

func (e *ELSdN) PlanWindow(m *Method, step int) []time.Time {
	return m.LearningDates(step, min(step, e.NlearningMax))
}

func (e *ELSdN) Update(w *Window) ([]float64, error) {
	return refit(e.Constraint, w)
}
