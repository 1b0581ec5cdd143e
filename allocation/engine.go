/*
engine.go - Iterative proportional-residual fitting

PURPOSE:
  Turns (ledger capacity, hourly rates, funding targets) into a feasible
  hour-to-project assignment. The algorithm is an explainable water-filling
  heuristic, not a global optimizer: research administrators must be able
  to audit why each project got the hours it did.

ALGORITHM (one run):
  1. Validate specs; order projects by ascending ProjectID. That order is a
     documented policy choice: simultaneous claims on shared topics make
     order-dependence real, so it must be reproducible.
  2. Pre-check each project against the maximum extractable cost of its
     eligible topics; projects that cannot reach target even at full
     commitment are marked infeasible up front instead of spinning to
     MaxIterations. Zero-target projects converge immediately.
  3. Iterate rounds. Per round, per project: residual = target - cost; for
     each eligible topic with a positive average rate, commit
     residual / averageRate hours, clipped to remaining capacity and to the
     project's residual-proportional share of the capacity contended this
     round. Over-allocation is unwound by releasing the project's own
     commitments back toward target, never below zero hours.
  4. Terminate when every project converged, MaxIterations is reached, or
     the aggregate residual fails to shrink by MinStepFraction for three
     consecutive rounds (stagnation, typically capacity exhaustion).

CONTENDED CAPACITY:
  When several projects claim the same topic in one round, each may take at
  most  available * (own residual / total residual demand)  of it. Without
  the proportional cap the first project by ID would drain a contended
  topic outright and the loss would land entirely on later IDs.

CANCELLATION:
  ctx is checked once per outer round. A canceled run returns ctx.Err()
  with no report; the engine holds no state beyond the caller's ledger, so
  rollback is simply discarding that ledger.

FAILURE SEMANTICS:
  CapacityExceededError from the ledger means the clipping above is buggy.
  The run aborts with the error (annotated with the iteration number) and
  returns no report.

SEE ALSO:
  - ledger.go: Commit/Release bookkeeping
  - report.go: Output structures
  - config.go: MaxIterations, ConvergenceTolerance, MinStepFraction
*/
package allocation

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs the iterative fit. Re-entrant: one Engine value may serve any
// number of sequential or concurrent runs, each with its own ledger.
type Engine struct {
	// Defaults backfills zero-valued fields of each run's Config before
	// the package defaults apply. Set once at construction time.
	Defaults Config
}

func NewEngine() *Engine { return &Engine{} }

// projectState is the engine's per-project working state for one run.
type projectState struct {
	spec      ProjectSpec
	topics    []TopicID // Eligible topics, sorted ascending
	threshold decimal.Decimal

	cost       decimal.Decimal
	converged  bool
	stagnated  bool
	iterations int

	// Set by the feasibility pre-check: the project cannot reach target
	// even at full commitment. Such projects allocate nothing and report
	// the shortfall at hypothetical full commitment.
	precheckInfeasible bool
	precheckResidual   decimal.Decimal
}

func (ps *projectState) residual() decimal.Decimal {
	return ps.spec.FundingTarget.Value.Sub(ps.cost)
}

// Run executes the iterative fit against the ledger and returns the report.
// The ledger is exclusively owned by this run for its duration.
func (e *Engine) Run(ctx context.Context, ledger *TimesheetLedger, projects []ProjectSpec, config Config) (*Report, error) {
	cfg := config.withFallback(e.Defaults).normalized()

	states, err := buildStates(ledger, projects, cfg)
	if err != nil {
		return nil, err
	}

	rounds := 0
	stagnantRounds := 0
	for round := 1; round <= cfg.maxIterations; round++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		active := activeStates(states)
		if len(active) == 0 {
			break
		}
		rounds = round

		// Round-start snapshot for the proportional share of contended
		// topics: how much residual demand is aimed at each topic, and how
		// much of it is available before anyone commits this round.
		startResidual := make(map[ProjectID]decimal.Decimal, len(active))
		topicDemand := make(map[TopicID]decimal.Decimal)
		topicAvail := make(map[TopicID]decimal.Decimal)
		aggBefore := decimal.Zero
		for _, ps := range active {
			res := ps.residual()
			startResidual[ps.spec.ProjectID] = res
			aggBefore = aggBefore.Add(res.Abs())
			if !res.IsPositive() {
				continue
			}
			for _, t := range ps.topics {
				topicDemand[t] = topicDemand[t].Add(res)
				if _, ok := topicAvail[t]; !ok {
					topicAvail[t] = ledger.AvailableHours(t).Value
				}
			}
		}

		for _, ps := range active {
			ps.iterations = round
			if err := e.fitProject(ledger, ps, round, startResidual[ps.spec.ProjectID], topicDemand, topicAvail); err != nil {
				return nil, err
			}
		}

		// Stagnation: the aggregate residual of this round's active set
		// must keep shrinking by at least the configured fraction.
		aggAfter := decimal.Zero
		for _, ps := range active {
			aggAfter = aggAfter.Add(ps.residual().Abs())
		}
		improvement := aggBefore.Sub(aggAfter)
		if aggBefore.IsPositive() && improvement.GreaterThanOrEqual(cfg.minStep.Mul(aggBefore)) {
			stagnantRounds = 0
		} else {
			stagnantRounds++
		}
		if stagnantRounds >= stagnantRoundLimit {
			for _, ps := range states {
				if !ps.converged && !ps.precheckInfeasible {
					ps.stagnated = true
				}
			}
			break
		}
	}

	return buildReport(ledger, states, cfg, rounds), nil
}

// fitProject runs one round's worth of adjustment for a single project.
func (e *Engine) fitProject(ledger *TimesheetLedger, ps *projectState, round int, startResidual decimal.Decimal, topicDemand, topicAvail map[TopicID]decimal.Decimal) error {
	residual := ps.residual()
	if residual.Abs().LessThanOrEqual(ps.threshold) {
		ps.converged = true
		return nil
	}

	if residual.IsPositive() {
		for _, topic := range ps.topics {
			residual = ps.residual()
			if residual.LessThanOrEqual(ps.threshold) {
				break
			}
			if !ledger.HasTopic(topic) {
				continue // Zero recorded hours contribute zero regardless of rate
			}
			rate := ledger.AverageRate(topic)
			if !rate.IsPositive() {
				continue // Zero-rate capacity is excluded from cost-driven deltas
			}

			delta := residual.Div(rate)
			if share, ok := fairShare(topic, startResidual, topicDemand, topicAvail); ok && share.LessThan(delta) {
				delta = share
			}
			if avail := ledger.AvailableHours(topic).Value; avail.LessThan(delta) {
				delta = avail
			}
			if delta.LessThanOrEqual(capacityEpsilon) {
				continue
			}

			cost, err := ledger.Commit(ps.spec.ProjectID, topic, Amount{Value: delta, Unit: UnitHours})
			if err != nil {
				var capErr *CapacityExceededError
				if errors.As(err, &capErr) {
					capErr.Iteration = round
				}
				return err
			}
			ps.cost = ps.cost.Add(cost.Value)
		}
	}

	// Unwind past-target commits: heterogeneous entry rates can make a
	// committed delta cost more than the average rate predicted.
	if excess := ps.cost.Sub(ps.spec.FundingTarget.Value); excess.GreaterThan(ps.threshold) {
		for i := len(ps.topics) - 1; i >= 0 && excess.IsPositive(); i-- {
			_, released, err := ledger.Release(ps.spec.ProjectID, ps.topics[i], Amount{Value: excess, Unit: UnitCost})
			if err != nil {
				return err
			}
			ps.cost = ps.cost.Sub(released.Value)
			excess = excess.Sub(released.Value)
		}
	}

	if ps.residual().Abs().LessThanOrEqual(ps.threshold) {
		ps.converged = true
	}
	return nil
}

// fairShare returns this project's residual-proportional slice of a topic's
// round-start capacity. ok is false when the topic was uncontended at round
// start, in which case no share cap applies.
func fairShare(topic TopicID, startResidual decimal.Decimal, topicDemand, topicAvail map[TopicID]decimal.Decimal) (decimal.Decimal, bool) {
	demand := topicDemand[topic]
	if !demand.IsPositive() || !startResidual.IsPositive() {
		return decimal.Zero, false
	}
	if startResidual.GreaterThanOrEqual(demand) {
		return decimal.Zero, false // Sole claimant
	}
	return topicAvail[topic].Mul(startResidual).Div(demand), true
}

// =============================================================================
// SETUP AND TEARDOWN
// =============================================================================

func buildStates(ledger *TimesheetLedger, projects []ProjectSpec, cfg runConfig) ([]*projectState, error) {
	seen := make(map[ProjectID]bool, len(projects))
	states := make([]*projectState, 0, len(projects))
	for _, spec := range projects {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if seen[spec.ProjectID] {
			return nil, &InvalidInputError{Kind: "project_spec", Field: "project_id", Reason: "duplicate", ProjectID: spec.ProjectID}
		}
		seen[spec.ProjectID] = true

		topics := make([]TopicID, len(spec.EligibleTopics))
		copy(topics, spec.EligibleTopics)
		sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })

		ps := &projectState{
			spec:      spec,
			topics:    topics,
			threshold: convergenceThreshold(spec.FundingTarget, cfg.tolerance),
			cost:      decimal.Zero,
		}

		// Feasibility pre-check: fail fast instead of iterating toward an
		// unreachable target. These projects allocate nothing; the reported
		// residual is the shortfall at hypothetical full commitment.
		maxExtract := decimal.Zero
		for _, t := range topics {
			maxExtract = maxExtract.Add(ledger.MaxExtractableCost(t).Value)
		}
		if shortfall := spec.FundingTarget.Value.Sub(maxExtract); shortfall.GreaterThan(ps.threshold) {
			ps.precheckInfeasible = true
			ps.precheckResidual = shortfall
		} else if spec.FundingTarget.Value.Abs().LessThanOrEqual(ps.threshold) {
			// Zero (or negligible) target: converged at zero hours, zero
			// iterations beyond this pre-check.
			ps.converged = true
		}
		states = append(states, ps)
	}

	// Deterministic processing order: ascending ProjectID.
	sort.Slice(states, func(i, j int) bool { return states[i].spec.ProjectID < states[j].spec.ProjectID })
	return states, nil
}

func activeStates(states []*projectState) []*projectState {
	var active []*projectState
	for _, ps := range states {
		if !ps.converged && !ps.precheckInfeasible {
			active = append(active, ps)
		}
	}
	return active
}

func buildReport(ledger *TimesheetLedger, states []*projectState, cfg runConfig, rounds int) *Report {
	report := &Report{
		Results:             make([]Result, 0, len(states)),
		TotalHoursAvailable: ledger.GrandTotalHours(),
		TotalHoursCommitted: ledger.GrandCommittedHours(),
		Rounds:              rounds,
	}
	report.TotalHoursUnspent = report.TotalHoursAvailable.Sub(report.TotalHoursCommitted)

	for _, ps := range states {
		res := Result{
			ProjectID:      ps.spec.ProjectID,
			ProjectName:    ps.spec.Name,
			AllocatedHours: make(map[TopicID]Amount),
			TotalHours:     Amount{Value: decimal.Zero, Unit: UnitHours},
			ResultingCost:  Amount{Value: ps.cost, Unit: UnitCost},
			Converged:      ps.converged,
			Stagnated:      ps.stagnated,
			IterationsUsed: ps.iterations,
		}

		if ps.precheckInfeasible {
			res.Residual = Amount{Value: ps.precheckResidual, Unit: UnitCost}
			res.Feasible = false
		} else {
			for _, t := range ps.topics {
				hours := ledger.AllocatedHours(ps.spec.ProjectID, t)
				if hours.IsPositive() {
					res.AllocatedHours[t] = hours
					res.TotalHours = res.TotalHours.Add(hours)
				} else if cfg.includeZeroRateTopics {
					res.AllocatedHours[t] = Amount{Value: decimal.Zero, Unit: UnitHours}
				}
			}
			res.Residual = Amount{Value: ps.residual(), Unit: UnitCost}
			res.Feasible = ps.converged || ps.residual().Abs().LessThanOrEqual(ps.threshold)
		}

		if ps.spec.GrantMin != nil || ps.spec.GrantMax != nil {
			within := true
			if ps.spec.GrantMin != nil && res.ResultingCost.LessThan(*ps.spec.GrantMin) {
				within = false
			}
			if ps.spec.GrantMax != nil && res.ResultingCost.GreaterThan(*ps.spec.GrantMax) {
				within = false
			}
			res.WithinGrantBounds = &within
		}

		if !res.Feasible {
			report.Infeasible = append(report.Infeasible, Shortfall{
				ProjectID: ps.spec.ProjectID,
				Amount:    res.Residual,
			})
		}
		report.Results = append(report.Results, res)
	}
	return report
}
