package ensemble

import "errors"

var (
	ErrInvalidLearning     = errors.New("learning window exceeds the number of skipped steps")
	ErrNoConfiguration     = errors.New("cannot compute statistics without configuration")
	ErrNotCombined         = errors.New("combination has not been computed")
	ErrIncompatibleShapes  = errors.New("incompatible data: shapes of simulated concentrations and observations do not match")
	ErrMissingCoefficients = errors.New("unable to find coefficients")
	ErrNegativeConfidence  = errors.New("too large learning rate: negative confidence")
	ErrDegenerateWeights   = errors.New("weights vanished")
	ErrSingularMatrix      = errors.New("singular matrix")
	ErrUnsupportedOption   = errors.New("unsupported option")
)
