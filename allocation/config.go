package allocation

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIG - Tuning knobs for a fit
// =============================================================================

// Config carries the caller-supplied options recognized by Engine.Run.
// Zero values mean "use the default".
type Config struct {
	// MaxIterations bounds the outer rounds. Default 200.
	MaxIterations int

	// ConvergenceTolerance is relative to max(funding target, 1): a project
	// is converged when |residual| <= tolerance * max(target, 1).
	// Default 1e-4.
	ConvergenceTolerance float64

	// MinStepFraction is the smallest relative shrink of the aggregate
	// residual per round before a round counts as stagnant; three stagnant
	// rounds in a row terminate the run. Default 1e-3.
	MinStepFraction float64

	// IncludeZeroRateTopics controls whether eligible topics excluded from
	// cost-driven allocation (zero average rate) still appear, with zero
	// hours, in the per-project breakdown. Zero-rate topics never receive
	// cost-driven hours either way.
	IncludeZeroRateTopics bool
}

const (
	DefaultMaxIterations        = 200
	DefaultConvergenceTolerance = 1e-4
	DefaultMinStepFraction      = 1e-3

	// stagnantRoundLimit is how many consecutive non-improving rounds are
	// tolerated before the run is declared stagnated.
	stagnantRoundLimit = 3
)

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        DefaultMaxIterations,
		ConvergenceTolerance: DefaultConvergenceTolerance,
		MinStepFraction:      DefaultMinStepFraction,
	}
}

// withFallback fills zero-valued knobs from another Config. Boolean options
// are left alone: false is a meaningful setting, not an absence.
func (c Config) withFallback(d Config) Config {
	if c.MaxIterations == 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.ConvergenceTolerance == 0 {
		c.ConvergenceTolerance = d.ConvergenceTolerance
	}
	if c.MinStepFraction == 0 {
		c.MinStepFraction = d.MinStepFraction
	}
	return c
}

// normalized fills zero values with defaults and converts the float knobs
// into the decimals the solver computes with.
func (c Config) normalized() runConfig {
	rc := runConfig{
		maxIterations:         c.MaxIterations,
		includeZeroRateTopics: c.IncludeZeroRateTopics,
	}
	if rc.maxIterations <= 0 {
		rc.maxIterations = DefaultMaxIterations
	}
	tol := c.ConvergenceTolerance
	if tol <= 0 {
		tol = DefaultConvergenceTolerance
	}
	step := c.MinStepFraction
	if step <= 0 {
		step = DefaultMinStepFraction
	}
	rc.tolerance = decimal.NewFromFloat(tol)
	rc.minStep = decimal.NewFromFloat(step)
	return rc
}

// runConfig is the normalized, decimal form used inside a run.
type runConfig struct {
	maxIterations         int
	tolerance             decimal.Decimal
	minStep               decimal.Decimal
	includeZeroRateTopics bool
}
