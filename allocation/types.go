/*
Package allocation provides the core expenditure allocation engine.

PURPOSE:
  This package contains the types and algorithm for fitting recorded
  timesheet hours onto project funding targets. Given how many hours each
  employee worked per topic per day, at what hourly rate, and how much money
  each project is contractually expected to spend, the engine decides how
  many of those hours to attribute to each project so that allocated cost
  lands as close to target as capacity allows.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (hours or cost)
  - TimesheetEntry: An immutable record of hours worked at a rate
  - ProjectSpec: A project's funding target and eligible topic set
  - Employee/Topic/Project IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Entries and specs are never modified after construction
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing topic/project IDs
  4. Statelessness: The engine holds no state between runs; the ledger is
     the only mutable structure and lives for a single run

USAGE:
  entry := allocation.TimesheetEntry{
      EmployeeID:  "emp-1",
      Date:        allocation.NewDate(2025, time.January, 6),
      TopicID:     "reasoning-planning",
      HoursWorked: allocation.NewHours(7.5),
      HourlyRate:  allocation.NewCost(42),
  }

SEE ALSO:
  - ledger.go: Capacity bookkeeping over entries
  - engine.go: The iterative fitting algorithm
  - report.go: Result and report structures
*/
package allocation

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit (hours worked or monetary cost)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitHours Unit = "hours"
	UnitCost  Unit = "cost"
)

func NewHours(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: UnitHours}
}

func NewCost(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: UnitCost}
}

func NewAmount(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Div(s decimal.Decimal) Amount { return Amount{Value: a.Value.Div(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) Abs() Amount                  { return Amount{Value: a.Value.Abs(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type TopicID string
type ProjectID string

// =============================================================================
// TIMESHEET ENTRY - Immutable record of hours worked
// =============================================================================

// TimesheetEntry records that an employee worked some hours on a topic on a
// given day, at a given hourly rate. Immutable once ingested; the ledger
// tracks how much of it has been committed, but never changes the entry.
type TimesheetEntry struct {
	EmployeeID  EmployeeID
	Date        TimePoint
	TopicID     TopicID
	HoursWorked Amount // UnitHours, >= 0
	HourlyRate  Amount // UnitCost per hour, >= 0
}

// MaxCost is the maximum extractable cost of this entry: hours * rate.
func (e TimesheetEntry) MaxCost() Amount {
	return Amount{Value: e.HoursWorked.Value.Mul(e.HourlyRate.Value), Unit: UnitCost}
}

// Validate checks the non-negativity invariants. Called by the ledger at
// construction time, before any iteration begins.
func (e TimesheetEntry) Validate() error {
	if e.TopicID == "" {
		return &InvalidInputError{Kind: "timesheet_entry", Field: "topic_id", Reason: "must not be empty"}
	}
	if e.EmployeeID == "" {
		return &InvalidInputError{Kind: "timesheet_entry", Field: "employee_id", Reason: "must not be empty"}
	}
	if e.HoursWorked.IsNegative() {
		return &InvalidInputError{Kind: "timesheet_entry", Field: "hours_worked", Reason: "must be non-negative"}
	}
	if e.HourlyRate.IsNegative() {
		return &InvalidInputError{Kind: "timesheet_entry", Field: "hourly_rate", Reason: "must be non-negative"}
	}
	return nil
}

// =============================================================================
// PROJECT SPEC - Funding target and eligible topics
// =============================================================================

// ProjectSpec describes a project the engine allocates hours toward.
// GrantMin/GrantMax are optional reporting bounds around the contractual
// target; they never influence the fit itself.
type ProjectSpec struct {
	ProjectID      ProjectID
	Name           string
	FundingTarget  Amount // UnitCost, >= 0
	EligibleTopics []TopicID

	// Optional metadata carried through to the report.
	FundingAgency string
	GrantMin      *Amount
	GrantMax      *Amount
	Currency      string
	FundingStart  TimePoint
	FundingEnd    TimePoint
}

// Validate reports whether the project spec is well formed: non-empty
// eligible topic set, non-negative target.
func (p ProjectSpec) Validate() error {
	if p.ProjectID == "" {
		return &InvalidInputError{Kind: "project_spec", Field: "project_id", Reason: "must not be empty"}
	}
	if len(p.EligibleTopics) == 0 {
		return &InvalidInputError{Kind: "project_spec", Field: "eligible_topics", Reason: "must not be empty", ProjectID: p.ProjectID}
	}
	if p.FundingTarget.IsNegative() {
		return &InvalidInputError{Kind: "project_spec", Field: "funding_target", Reason: "must be non-negative", ProjectID: p.ProjectID}
	}
	seen := make(map[TopicID]bool, len(p.EligibleTopics))
	for _, t := range p.EligibleTopics {
		if t == "" {
			return &InvalidInputError{Kind: "project_spec", Field: "eligible_topics", Reason: "contains empty topic id", ProjectID: p.ProjectID}
		}
		if seen[t] {
			return &InvalidInputError{Kind: "project_spec", Field: "eligible_topics", Reason: "contains duplicate topic " + string(t), ProjectID: p.ProjectID}
		}
		seen[t] = true
	}
	return nil
}
