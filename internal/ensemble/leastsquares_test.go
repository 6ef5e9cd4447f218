package ensemble

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestWLeastSquares(t *testing.T) {
	s := mat.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		1, 0, 1, 0,
	})
	o := []float64{5, 4, 9, 8} // 2*s0 + 3*s1

	w, err := WLeastSquares(s, o)
	if err != nil {
		t.Fatalf("WLeastSquares: %v", err)
	}
	if !floats.EqualApprox(w, []float64{2, 3}, 1e-9) {
		t.Errorf("w = %v, want [2 3]", w)
	}

	m, err := MLeastSquares(s, o)
	if err != nil {
		t.Fatalf("MLeastSquares: %v", err)
	}
	if !floats.EqualApprox(m, o, 1e-9) {
		t.Errorf("combination = %v, want %v", m, o)
	}
}

func TestUnbiasedLeastSquares(t *testing.T) {
	s := mat.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		1, 0, 1, 0,
	})
	o := []float64{12, 11, 16, 15} // 2*s0 + 3*s1 + 7

	w, err := WUnbiasedLeastSquares(s, o)
	if err != nil {
		t.Fatalf("WUnbiasedLeastSquares: %v", err)
	}
	if !floats.EqualApprox(w, []float64{2, 3}, 1e-9) {
		t.Errorf("w = %v, want [2 3]", w)
	}
	m, err := MUnbiasedLeastSquares(s, o)
	if err != nil {
		t.Fatalf("MUnbiasedLeastSquares: %v", err)
	}
	if !floats.EqualApprox(m, o, 1e-9) {
		t.Errorf("combination = %v, want %v", m, o)
	}
}

func TestWLeastSquaresSingular(t *testing.T) {
	s := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		2, 4, 6,
	})
	if _, err := WLeastSquares(s, []float64{1, 2, 3}); !errors.Is(err, ErrSingularMatrix) {
		t.Errorf("err = %v, want ErrSingularMatrix", err)
	}
	if _, err := WLeastSquares(nil, nil); !errors.Is(err, ErrSingularMatrix) {
		t.Errorf("empty sample err = %v, want ErrSingularMatrix", err)
	}
}

func TestWLeastSquaresSimplex(t *testing.T) {
	s := mat.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		1, 0, 1, 0,
	})
	tests := []struct {
		name string
		o    []float64
		want []float64
	}{
		{"interior solution", []float64{1, 0.6, 1.6, 1.2}, []float64{0.3, 0.7}},
		{"clamped to vertex", []float64{5, 4, 9, 8}, []float64{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := WLeastSquaresSimplex(s, tt.o)
			if err != nil {
				t.Fatalf("WLeastSquaresSimplex: %v", err)
			}
			if !floats.EqualApprox(w, tt.want, 1e-6) {
				t.Errorf("w = %v, want %v", w, tt.want)
			}
			if !approxEqual(floats.Sum(w), 1, 1e-9) {
				t.Errorf("sum(w) = %v, want 1", floats.Sum(w))
			}
		})
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"odd", []float64{3, 1, 2}, 2},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{7}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Median(tt.values); got != tt.want {
				t.Errorf("Median(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
	if got := Median(nil); !math.IsNaN(got) {
		t.Errorf("Median(nil) = %v, want NaN", got)
	}
}

func TestProjections(t *testing.T) {
	tests := []struct {
		name string
		p    Projection
		in   []float64
		want []float64
	}{
		{"simplex keeps feasible point", SimplexProjection{}, []float64{0.5, 0.5}, []float64{0.5, 0.5}},
		{"simplex scales down", SimplexProjection{}, []float64{2, 0}, []float64{1, 0}},
		{"simplex clips negatives", SimplexProjection{}, []float64{-1, 3}, []float64{0, 1}},
		{"simplex shifts", SimplexProjection{}, []float64{0.6, 0.6}, []float64{0.5, 0.5}},
		{"cube clamps", CubeProjection{Radius: 1}, []float64{2, -3, 0.5}, []float64{1, -1, 0.5}},
		{"ball scales", BallProjection{Radius: 1}, []float64{3, 4}, []float64{0.6, 0.8}},
		{"ball keeps inside point", BallProjection{Radius: 1}, []float64{0.3, 0.4}, []float64{0.3, 0.4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.p.Project(tt.in)
			if !floats.EqualApprox(got, tt.want, 1e-12) {
				t.Errorf("%s.Project(%v) = %v, want %v", tt.p, tt.in, got, tt.want)
			}
		})
	}
}

func TestParseProjection(t *testing.T) {
	p, err := ParseProjection("l2", 2)
	if err != nil {
		t.Fatalf("ParseProjection: %v", err)
	}
	if p.String() != "l2(2)" {
		t.Errorf("String() = %q, want l2(2)", p.String())
	}
	if _, err := ParseProjection("hexagon", 1); !errors.Is(err, ErrUnsupportedOption) {
		t.Errorf("err = %v, want ErrUnsupportedOption", err)
	}
}
