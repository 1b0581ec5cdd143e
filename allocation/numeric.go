package allocation

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// NUMERIC TOLERANCES - Shared epsilon handling
// =============================================================================

var (
	// capacityEpsilon absorbs floating-point drift in capacity checks (1e-9).
	capacityEpsilon = decimal.New(1, -9)

	one = decimal.NewFromInt(1)
)

// withinEpsilon reports |a - b| <= capacityEpsilon.
func withinEpsilon(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(capacityEpsilon)
}

// exceedsByEpsilon reports a > b + capacityEpsilon.
func exceedsByEpsilon(a, b decimal.Decimal) bool {
	return a.GreaterThan(b.Add(capacityEpsilon))
}

// convergenceThreshold returns tolerance * max(target, 1): the absolute
// residual below which a project counts as converged. Relative to the funding
// target so large and small grants converge at comparable quality.
func convergenceThreshold(target Amount, tolerance decimal.Decimal) decimal.Decimal {
	scale := target.Value
	if scale.LessThan(one) {
		scale = one
	}
	return tolerance.Mul(scale)
}

// clampNonNegative floors tiny negative drift at zero.
func clampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
