/*
overhead.go - Overhead surcharge

PURPOSE:
  Funding agencies commonly allow a fraction of direct hours to be billed
  as overhead (administration, facilities). The surcharge is bookkeeping on
  top of a finished report: it scales each project's reported hours and
  cost without touching ledger capacity, so the fit itself stays a
  direct-hours problem.
*/
package timesheet

import (
	"github.com/shopspring/decimal"

	"github.com/warp/expenditure-engine/allocation"
)

// MaxOverheadRatio caps the surcharge at 25% of direct hours.
var MaxOverheadRatio = decimal.NewFromFloat(0.25)

// OverheadSummary reports the surcharge applied to one project.
type OverheadSummary struct {
	ProjectID     allocation.ProjectID
	DirectHours   allocation.Amount
	OverheadHours allocation.Amount
	TotalCost     allocation.Amount
}

// ApplyOverhead computes the surcharge for every feasible project in a
// report. A zero ratio returns summaries with zero overhead; a ratio above
// the cap or below zero is rejected.
func ApplyOverhead(report *allocation.Report, ratio decimal.Decimal) ([]OverheadSummary, error) {
	if ratio.IsNegative() || ratio.GreaterThan(MaxOverheadRatio) {
		return nil, &allocation.InvalidInputError{Kind: "overhead", Field: "ratio", Reason: "must be within [0, 0.25]"}
	}

	summaries := make([]OverheadSummary, 0, len(report.Results))
	for _, res := range report.Results {
		s := OverheadSummary{
			ProjectID:     res.ProjectID,
			DirectHours:   res.TotalHours,
			OverheadHours: res.TotalHours.Mul(ratio),
			TotalCost:     res.ResultingCost.Add(res.ResultingCost.Mul(ratio)),
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
