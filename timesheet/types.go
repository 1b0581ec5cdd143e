// Package timesheet implements the research-expenditure domain on top of the
// allocation engine: employees, daily work records, salary rate schedules,
// and the plumbing that turns them into ledger entries for a fitting run.
package timesheet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/expenditure-engine/allocation"
)

// =============================================================================
// EMPLOYEES AND DAILY RECORDS
// =============================================================================

// Employee is a person whose recorded hours can be charged to projects.
type Employee struct {
	ID         allocation.EmployeeID
	Name       string
	Department string
}

func (e Employee) Validate() error {
	if e.ID == "" {
		return &allocation.InvalidInputError{Kind: "employee", Field: "id", Reason: "must be non-empty"}
	}
	return nil
}

// DailyRecord is one employee's recorded hours on one topic for one day, as
// imported from the timesheet system. Rates are attached later from the
// employee's salary schedule; records themselves carry none.
type DailyRecord struct {
	EmployeeID allocation.EmployeeID
	Date       allocation.TimePoint
	TopicID    allocation.TopicID
	Hours      allocation.Amount
}

func (r DailyRecord) Validate() error {
	switch {
	case r.EmployeeID == "":
		return &allocation.InvalidInputError{Kind: "daily_record", Field: "employee_id", Reason: "must be non-empty"}
	case r.TopicID == "":
		return &allocation.InvalidInputError{Kind: "daily_record", Field: "topic_id", Reason: "must be non-empty"}
	case r.Date.IsZero():
		return &allocation.InvalidInputError{Kind: "daily_record", Field: "date", Reason: "must be set"}
	case r.Hours.IsNegative():
		return &allocation.InvalidInputError{Kind: "daily_record", Field: "hours", Reason: "must be non-negative"}
	}
	return nil
}

// =============================================================================
// RUNS
// =============================================================================

// RunStatus tracks the lifecycle of a background fitting run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// RunParams are the inputs a run was started with, kept alongside the report
// so a saved run can be reproduced later.
type RunParams struct {
	PeriodStart allocation.TimePoint
	PeriodEnd   allocation.TimePoint
	ProjectIDs  []allocation.ProjectID // empty means all stored projects
	Config      allocation.Config

	// Optional surcharge applied to the finished report, see overhead.go.
	OverheadRatio decimal.Decimal
}

// Run is one fitting run, live or persisted.
type Run struct {
	ID         string
	CreatedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Params     RunParams
	Report     *allocation.Report
	Error      string
}
