/*
report.go - Allocation results and run-level diagnostics

PURPOSE:
  The output side of the engine. A Report aggregates one Result per project
  plus a global summary of ledger capacity usage. Everything here is plain
  data, fully materialized before Run returns, and read-only by convention:
  the caller owns it and the engine keeps no reference.

RESIDUAL SIGN CONVENTION:
  residual = funding target - resulting cost
  positive  -> under-funded (capacity or contention kept the project short)
  negative  -> over-allocated; the engine unwinds past-target commits, so a
               residual below -tolerance cannot occur by construction

SEE ALSO:
  - engine.go: Builds the report at the end of a run
*/
package allocation

// =============================================================================
// PER-PROJECT RESULT
// =============================================================================

// Result is the fit outcome for a single project.
type Result struct {
	ProjectID   ProjectID
	ProjectName string

	// AllocatedHours maps each topic that received hours to the amount.
	// Eligible zero-rate topics appear with zero hours only when
	// Config.IncludeZeroRateTopics is set.
	AllocatedHours map[TopicID]Amount

	TotalHours    Amount // Sum over AllocatedHours
	ResultingCost Amount // Rate-weighted cost of the allocated hours
	Residual      Amount // FundingTarget - ResultingCost

	// Feasible means the residual ended within tolerance.
	Feasible bool

	// Converged means the project hit tolerance during iteration (or at the
	// zero-target pre-check). A project can be feasible without having
	// formally converged only if the final residual happens to sit within
	// tolerance at termination.
	Converged bool

	// Stagnated is set when the run terminated because the aggregate
	// residual stopped shrinking, typically after capacity exhaustion.
	// A non-convergence note, not an error.
	Stagnated bool

	IterationsUsed int

	// WithinGrantBounds is set when the ProjectSpec carries grant min/max:
	// whether the resulting cost landed inside [GrantMin, GrantMax].
	WithinGrantBounds *bool
}

// =============================================================================
// REPORT - Aggregate output of one run
// =============================================================================

// Shortfall names an infeasible project and its unmet residual.
type Shortfall struct {
	ProjectID ProjectID
	Amount    Amount // UnitCost, positive = under-funded
}

// Report is the complete output of Engine.Run.
type Report struct {
	Results []Result // Sorted by ProjectID ascending

	// Ledger-level totals, in hours.
	TotalHoursAvailable Amount // Recorded capacity across the ledger
	TotalHoursCommitted Amount // Hours attributed to some project
	TotalHoursUnspent   Amount // Available - Committed

	// Infeasible lists every project whose residual ended outside
	// tolerance, with its shortfall.
	Infeasible []Shortfall

	// Rounds is the number of outer iteration rounds executed.
	Rounds int
}

// Result returns the result for a project, or nil if the project was not
// part of the run.
func (r *Report) Result(id ProjectID) *Result {
	for i := range r.Results {
		if r.Results[i].ProjectID == id {
			return &r.Results[i]
		}
	}
	return nil
}

// AllFeasible reports whether every project ended within tolerance.
func (r *Report) AllFeasible() bool {
	return len(r.Infeasible) == 0
}
