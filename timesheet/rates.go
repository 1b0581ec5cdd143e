/*
rates.go - Salary rate schedules

PURPOSE:
  Each employee carries an hourly rate that changes over time (raises,
  contract changes, grant-specific salary lines). A RateSchedule holds those
  changes as non-overlapping day intervals; record builders look up the rate
  in force on the day the hours were worked, not the rate in force today.

SEMANTICS:
  SetRange overwrites: writing [Mar 1, Mar 31] over an existing interval
  that spans February through April trims the old interval around the new
  one. Days no interval covers have rate zero, so unpaid stretches need no
  explicit entry.
*/
package timesheet

import (
	"sort"

	"github.com/warp/expenditure-engine/allocation"
)

// RateInterval is one contiguous stretch of days with a single hourly rate.
// Both bounds are inclusive.
type RateInterval struct {
	From allocation.TimePoint
	To   allocation.TimePoint
	Rate allocation.Amount
}

func (ri RateInterval) contains(day allocation.TimePoint) bool {
	return ri.From.BeforeOrEqual(day) && day.BeforeOrEqual(ri.To)
}

// RateSchedule holds an employee's rate history as sorted, non-overlapping
// intervals. The zero value is usable and returns rate zero everywhere.
type RateSchedule struct {
	EmployeeID allocation.EmployeeID
	intervals  []RateInterval
}

func NewRateSchedule(employeeID allocation.EmployeeID) *RateSchedule {
	return &RateSchedule{EmployeeID: employeeID}
}

// SetRange assigns a rate to every day in [from, to], overwriting whatever
// intervals previously covered those days.
func (rs *RateSchedule) SetRange(from, to allocation.TimePoint, rate allocation.Amount) error {
	if to.Before(from) {
		return &allocation.InvalidInputError{Kind: "rate_interval", Field: "to", Reason: "must not precede from"}
	}
	if rate.IsNegative() {
		return &allocation.InvalidInputError{Kind: "rate_interval", Field: "rate", Reason: "must be non-negative"}
	}

	var kept []RateInterval
	for _, iv := range rs.intervals {
		switch {
		case iv.To.Before(from) || iv.From.After(to):
			kept = append(kept, iv)
		default:
			// Overlap: keep the pieces outside the new range, if any.
			if iv.From.Before(from) {
				kept = append(kept, RateInterval{From: iv.From, To: from.AddDays(-1), Rate: iv.Rate})
			}
			if iv.To.After(to) {
				kept = append(kept, RateInterval{From: to.AddDays(1), To: iv.To, Rate: iv.Rate})
			}
		}
	}
	kept = append(kept, RateInterval{From: from, To: to, Rate: rate})
	sort.Slice(kept, func(i, j int) bool { return kept[i].From.Before(kept[j].From) })
	rs.intervals = kept
	return nil
}

// RateOn returns the hourly rate in force on the given day. Days outside
// every interval are unpaid and return zero.
func (rs *RateSchedule) RateOn(day allocation.TimePoint) allocation.Amount {
	for _, iv := range rs.intervals {
		if iv.contains(day) {
			return iv.Rate
		}
		if iv.From.After(day) {
			break
		}
	}
	return allocation.NewCost(0)
}

// Intervals returns a copy of the schedule's intervals in chronological
// order, for display and persistence.
func (rs *RateSchedule) Intervals() []RateInterval {
	out := make([]RateInterval, len(rs.intervals))
	copy(out, rs.intervals)
	return out
}

// Restore replaces the schedule's contents with previously persisted
// intervals, normalizing order.
func (rs *RateSchedule) Restore(intervals []RateInterval) {
	rs.intervals = make([]RateInterval, len(intervals))
	copy(rs.intervals, intervals)
	sort.Slice(rs.intervals, func(i, j int) bool { return rs.intervals[i].From.Before(rs.intervals[j].From) })
}
