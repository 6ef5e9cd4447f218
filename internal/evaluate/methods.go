package evaluate

import (
	"fmt"
	"sort"

	"github.com/lox/aqensemble/internal/config"
	"github.com/lox/aqensemble/internal/ensemble"
	"github.com/lox/aqensemble/internal/measure"
	"github.com/lox/aqensemble/internal/models"
)

// DefaultNlearningMax bounds the sliding window of elsdn when unset.
const DefaultNlearningMax = 10

type constructor func(mc config.Method, reg *measure.Registry) (ensemble.Algorithm, error)

func rate(mc config.Method, def float64) float64 {
	if mc.LearningRate != nil {
		return *mc.LearningRate
	}
	return def
}

func orFloat(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

var constructors = map[string]constructor{
	"ensemble-mean": func(config.Method, *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewEnsembleMean(), nil
	},
	"ensemble-median": func(config.Method, *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewEnsembleMedian(), nil
	},
	"best-model": func(mc config.Method, reg *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewBestModel(reg, mc.Measure), nil
	},
	"best-model-step": func(mc config.Method, reg *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewBestModelStep(reg, mc.Measure, orInt(mc.Nmodel, ensemble.DefaultNmodel), mc.BiasRemoval), nil
	},
	"best-model-step-station": func(config.Method, *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewBestModelStepStation(), nil
	},
	"els": func(mc config.Method, _ *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewELS(mc.Constraint), nil
	},
	"elsd": func(mc config.Method, _ *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewELSd(mc.Constraint), nil
	},
	"elsdn": func(mc config.Method, _ *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewELSdN(mc.Constraint, orInt(mc.NlearningMax, DefaultNlearningMax)), nil
	},
	"ewa": func(mc config.Method, _ *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewEWA(rate(mc, ensemble.DefaultEWARate)), nil
	},
	"eg": func(mc config.Method, _ *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewExponentiatedGradient(rate(mc, ensemble.DefaultEGRate)), nil
	},
	"prod": func(mc config.Method, _ *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewProd(rate(mc, ensemble.DefaultProdRate)), nil
	},
	"gd": func(mc config.Method, _ *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewGradientDescent(rate(mc, ensemble.DefaultGDRate), orFloat(mc.Lambda, ensemble.DefaultGDLambda)), nil
	},
	"zink": func(mc config.Method, _ *measure.Registry) (ensemble.Algorithm, error) {
		p, err := ensemble.ParseProjection(mc.Projection, orFloat(mc.Radius, ensemble.DefaultZinkRadius))
		if err != nil {
			return nil, err
		}
		return ensemble.NewZink(rate(mc, ensemble.DefaultZinkRate), p), nil
	},
	"ridge": func(mc config.Method, _ *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewRidge(orFloat(mc.Penalization, ensemble.DefaultPenalization), mc.Window), nil
	},
	"mixture": func(mc config.Method, _ *measure.Registry) (ensemble.Algorithm, error) {
		seed := mc.Seed
		if seed == 0 {
			seed = ensemble.DefaultMixtureSeed
		}
		return ensemble.NewMixture(rate(mc, ensemble.DefaultMixtureRate), orInt(mc.Napprox, ensemble.DefaultNapprox), seed), nil
	},
	"eg-window": func(mc config.Method, _ *measure.Registry) (ensemble.Algorithm, error) {
		return ensemble.NewEGWindow(rate(mc, ensemble.DefaultEGWindowRate), orInt(mc.Nkeep, ensemble.DefaultNkeep)), nil
	},
}

// Algorithms lists the names accepted by NewAlgorithm, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewAlgorithm builds the algorithm a [[method]] block names.
func NewAlgorithm(mc config.Method, reg *measure.Registry) (ensemble.Algorithm, error) {
	c, ok := constructors[mc.Name]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %q", mc.Name)
	}
	return c(mc, reg)
}

// MethodOptions resolves the engine options of a method. Unset Nskip covers
// the discarded days, and is raised to Nlearning when smaller.
func MethodOptions(cfg *config.Config, mc config.Method, algo ensemble.Algorithm, eval *ensemble.Evaluation) ensemble.Options {
	_, learner := algo.(ensemble.Learner)
	nlearning := 0
	if learner && mc.Name != "ensemble-mean" {
		nlearning = 1
	}
	if mc.Nlearning != nil {
		nlearning = *mc.Nlearning
	}
	nskip := cfg.Input.DiscardedDays * cfg.Concentrations().Cycle()
	if mc.Nskip != nil {
		nskip = *mc.Nskip
	} else if nskip < nlearning {
		nskip = nlearning
	}
	return ensemble.Options{
		Nskip:      nskip,
		Nlearning:  nlearning,
		Option:     models.Option(mc.Option),
		Extended:   mc.Extended,
		U:          mc.U,
		Unbiased:   mc.Unbiased,
		Statistics: true,
		Eval:       eval,
	}
}
