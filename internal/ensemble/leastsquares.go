package ensemble

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// WLeastSquares returns the weights w minimizing ||Sᵀw − o||², where S is a
// members by samples matrix.
func WLeastSquares(s *mat.Dense, o []float64) ([]float64, error) {
	if s == nil {
		return nil, fmt.Errorf("least squares on empty sample: %w", ErrSingularMatrix)
	}
	r, c := s.Dims()
	if c != len(o) {
		return nil, fmt.Errorf("%w: %d samples, %d observations", ErrIncompatibleShapes, c, len(o))
	}
	gram := mat.NewSymDense(r, nil)
	gram.SymOuterK(1, s)
	var rhs mat.VecDense
	rhs.MulVec(s, mat.NewVecDense(len(o), o))

	var chol mat.Cholesky
	if !chol.Factorize(gram) {
		return nil, fmt.Errorf("least squares normal equations: %w", ErrSingularMatrix)
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &rhs); err != nil {
		return nil, fmt.Errorf("least squares normal equations: %w: %v", ErrSingularMatrix, err)
	}
	return mat.Col(nil, 0, &w), nil
}

// MLeastSquares returns the least-squares combination Sᵀw.
func MLeastSquares(s *mat.Dense, o []float64) ([]float64, error) {
	w, err := WLeastSquares(s, o)
	if err != nil {
		return nil, err
	}
	return combination(s, w, 0), nil
}

// centred returns S with each row recentred on its mean, o recentred, and
// the mean of o.
func centred(s *mat.Dense, o []float64) (*mat.Dense, []float64, float64) {
	r, c := s.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := mat.Row(nil, i, s)
		floats.AddConst(-stat.Mean(row, nil), row)
		out.SetRow(i, row)
	}
	om := stat.Mean(o, nil)
	oc := append([]float64(nil), o...)
	floats.AddConst(-om, oc)
	return out, oc, om
}

// WUnbiasedLeastSquares solves the least-squares problem on recentred
// members and observations. These are the superensemble coefficients.
func WUnbiasedLeastSquares(s *mat.Dense, o []float64) ([]float64, error) {
	if s == nil {
		return nil, fmt.Errorf("least squares on empty sample: %w", ErrSingularMatrix)
	}
	sc, oc, _ := centred(s, o)
	return WLeastSquares(sc, oc)
}

// MUnbiasedLeastSquares returns (S − ⟨S⟩)ᵀw + ⟨o⟩ for the unbiased weights.
func MUnbiasedLeastSquares(s *mat.Dense, o []float64) ([]float64, error) {
	if s == nil {
		return nil, fmt.Errorf("least squares on empty sample: %w", ErrSingularMatrix)
	}
	sc, oc, om := centred(s, o)
	w, err := WLeastSquares(sc, oc)
	if err != nil {
		return nil, err
	}
	return combination(sc, w, om), nil
}

func combination(s *mat.Dense, w []float64, offset float64) []float64 {
	var out mat.VecDense
	out.MulVec(s.T(), mat.NewVecDense(len(w), w))
	v := mat.Col(nil, 0, &out)
	floats.AddConst(offset, v)
	return v
}

const (
	simplexMaxIter = 50000
	simplexTol     = 1e-12
)

// WLeastSquaresSimplex minimizes ||Sᵀw − o||² over the probability simplex
// by projected gradient descent.
func WLeastSquaresSimplex(s *mat.Dense, o []float64) ([]float64, error) {
	if s == nil {
		return nil, fmt.Errorf("least squares on empty sample: %w", ErrSingularMatrix)
	}
	r, c := s.Dims()
	if c != len(o) {
		return nil, fmt.Errorf("%w: %d samples, %d observations", ErrIncompatibleShapes, c, len(o))
	}
	gram := mat.NewSymDense(r, nil)
	gram.SymOuterK(1, s)
	var rhs mat.VecDense
	rhs.MulVec(s, mat.NewVecDense(len(o), o))

	var eig mat.EigenSym
	if !eig.Factorize(gram, false) {
		return nil, fmt.Errorf("simplex least squares: eigen decomposition failed")
	}
	lipschitz := 2 * floats.Max(eig.Values(nil))

	w := uniform(r)
	if lipschitz <= 0 {
		return w, nil
	}
	wv := mat.NewVecDense(r, w)
	var grad mat.VecDense
	step := make([]float64, r)
	for iter := 0; iter < simplexMaxIter; iter++ {
		grad.MulVec(gram, wv)
		grad.SubVec(&grad, &rhs)
		for i := range step {
			step[i] = w[i] - 2*grad.AtVec(i)/lipschitz
		}
		next := ProjectSimplex(step)
		delta := floats.Distance(next, w, math.Inf(1))
		copy(w, next)
		if delta < simplexTol {
			break
		}
	}
	return w, nil
}

// Median returns the median of values, averaging the two middle values when
// their count is even.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	x := append([]float64(nil), values...)
	sort.Float64s(x)
	n := len(x)
	if n%2 == 1 {
		return x[n/2]
	}
	return (x[n/2-1] + x[n/2]) / 2
}
