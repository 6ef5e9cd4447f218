// Package config loads the TOML configuration of an evaluation.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/temporal"
)

var validate = validator.New()

// Duration decodes TOML strings such as "1h" or "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Input   Input    `toml:"input"`
	Output  Output   `toml:"output"`
	Methods []Method `toml:"method" validate:"dive"`
}

// Input describes the simulated period and where the data lives.
type Input struct {
	Origin time.Time `toml:"origin" validate:"required"`
	DeltaT Duration  `toml:"delta_t"`
	Nt     int       `toml:"nt" validate:"gt=0"`
	// DiscardedDays are excluded from evaluation at the start of the period.
	DiscardedDays int    `toml:"discarded_days" validate:"gte=0"`
	Database      string `toml:"database"`
}

type Peak struct {
	FirstHour  int `toml:"first_hour" validate:"gte=0,lte=23"`
	LastHour   int `toml:"last_hour" validate:"gte=0,lte=23"`
	MinInRange int `toml:"min_in_range" validate:"gte=0"`
	MinInDay   int `toml:"min_in_day" validate:"gte=0"`
}

// Output describes what is evaluated and how.
type Output struct {
	TRange         []time.Time `toml:"t_range" validate:"len=2"`
	Concentrations string      `toml:"concentrations" validate:"required"`
	Measure        []string    `toml:"measure"`
	Cutoff         float64     `toml:"cutoff"`
	SelectStation  []string    `toml:"select_station"`
	Paired         bool        `toml:"paired"`
	Ratio          float64     `toml:"ratio" validate:"gte=0,lte=1"`
	Peak           Peak        `toml:"peak"`
}

// MethodNames lists the algorithms a [[method]] block may name.
var MethodNames = []string{
	"best-model", "best-model-step", "best-model-step-station",
	"eg", "eg-window", "els", "elsd", "elsdn",
	"ensemble-mean", "ensemble-median", "ewa", "gd",
	"mixture", "prod", "ridge", "zink",
}

// Method is one [[method]] block. Pointer fields distinguish an explicit
// zero from an unset value.
type Method struct {
	Name  string `toml:"name" validate:"required"`
	Label string `toml:"label"`

	LearningRate *float64 `toml:"learning_rate" validate:"omitempty,gt=0"`
	Nlearning    *int     `toml:"nlearning" validate:"omitempty,gte=0"`
	Nskip        *int     `toml:"nskip" validate:"omitempty,gte=0"`
	Option       string   `toml:"option" validate:"omitempty,oneof=global step station"`
	Extended     bool     `toml:"extended"`
	U            float64  `toml:"U"`
	Unbiased     bool     `toml:"unbiased"`

	Penalization *float64 `toml:"penalization" validate:"omitempty,gt=0"`
	Window       int      `toml:"window" validate:"gte=0"`
	Lambda       *float64 `toml:"lambda"`
	Projection   string   `toml:"projection" validate:"omitempty,oneof=simplex cube cubic l2 ball"`
	Radius       *float64 `toml:"radius" validate:"omitempty,gt=0"`
	Napprox      int      `toml:"napprox" validate:"gte=0"`
	Seed         uint64   `toml:"seed"`
	Nkeep        int      `toml:"nkeep" validate:"gte=0"`
	Nmodel       int      `toml:"nmodel" validate:"gte=0"`
	Measure      string   `toml:"measure"`
	BiasRemoval  bool     `toml:"bias_removal"`
	Constraint   string   `toml:"constraint" validate:"omitempty,oneof=none simplex"`
	NlearningMax int      `toml:"nlearning_max" validate:"gte=0"`
}

// ID names the method in outputs: its label, or its algorithm name.
func (m Method) ID() string {
	if m.Label != "" {
		return m.Label
	}
	return m.Name
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("decode %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes and validates a configuration held in memory.
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Input.DeltaT.Duration == 0 {
		c.Input.DeltaT.Duration = time.Hour
	}
	if c.Input.Database == "" {
		c.Input.Database = "data/aqensemble.db"
	}
	if c.Output.Peak == (Peak{}) {
		d := temporal.DefaultPeakOptions()
		c.Output.Peak = Peak{FirstHour: d.FirstHour, LastHour: d.LastHour, MinInRange: d.MinInRange, MinInDay: d.MinInDay}
	}
}

// Validate checks the configuration, reporting every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result = multierror.Append(result, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}

	conc, err := models.ParseConcentrations(c.Output.Concentrations)
	if err != nil && c.Output.Concentrations != "" {
		result = multierror.Append(result, err)
	}
	if c.Output.Paired && conc != models.Peak {
		result = multierror.Append(result, errors.New("paired peaks require peak concentrations"))
	}
	if c.Output.Peak.FirstHour > c.Output.Peak.LastHour {
		result = multierror.Append(result, fmt.Errorf("peak hour range [%d, %d] is empty", c.Output.Peak.FirstHour, c.Output.Peak.LastHour))
	}

	if len(c.Output.TRange) == 2 && c.Input.Nt > 0 {
		evaluated := c.EvaluatedPeriod()
		simulated := c.SimulatedPeriod()
		if evaluated.End.Before(evaluated.Start) {
			result = multierror.Append(result, fmt.Errorf("t_range ends before it starts: %s", evaluated))
		}
		if evaluated.Start.Before(simulated.Start) || evaluated.End.After(simulated.End) {
			result = multierror.Append(result, fmt.Errorf("t_range %s is not inside the simulated period %s", evaluated, simulated))
		}
	}

	known := make(map[string]bool, len(MethodNames))
	for _, n := range MethodNames {
		known[n] = true
	}
	seen := make(map[string]bool)
	for i, m := range c.Methods {
		if m.Name != "" && !known[m.Name] {
			result = multierror.Append(result, fmt.Errorf("method %d: unknown algorithm %q", i, m.Name))
		}
		if seen[m.ID()] {
			result = multierror.Append(result, fmt.Errorf("method %d: duplicate method %q, set a label", i, m.ID()))
		}
		seen[m.ID()] = true
		if m.Nskip != nil && m.Nlearning != nil && *m.Nskip < *m.Nlearning {
			result = multierror.Append(result, fmt.Errorf("method %s: nskip %d is smaller than nlearning %d", m.ID(), *m.Nskip, *m.Nlearning))
		}
	}
	return result.ErrorOrNil()
}

// SimulatedPeriod spans the Nt simulated dates from Origin.
func (c *Config) SimulatedPeriod() temporal.Period {
	return temporal.Period{
		Start: c.Input.Origin,
		End:   c.Input.Origin.Add(time.Duration(c.Input.Nt-1) * c.Input.DeltaT.Duration),
	}
}

// EvaluatedPeriod is the t_range period.
func (c *Config) EvaluatedPeriod() temporal.Period {
	if len(c.Output.TRange) != 2 {
		return temporal.Period{}
	}
	return temporal.Period{Start: c.Output.TRange[0], End: c.Output.TRange[1]}
}

func (c *Config) Concentrations() models.Concentrations {
	conc, _ := models.ParseConcentrations(c.Output.Concentrations)
	return conc
}

func (c *Config) PeakOptions() temporal.PeakOptions {
	p := c.Output.Peak
	return temporal.PeakOptions{FirstHour: p.FirstHour, LastHour: p.LastHour, MinInRange: p.MinInRange, MinInDay: p.MinInDay}
}

// Measures returns the requested measure names, sorted, or nil for all.
func (c *Config) Measures() []string {
	if len(c.Output.Measure) == 0 {
		return nil
	}
	names := append([]string(nil), c.Output.Measure...)
	sort.Strings(names)
	return names
}
