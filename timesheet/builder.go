/*
builder.go - Dataset assembly

PURPOSE:
  Bridges stored domain data (daily records, rate schedules) into the entry
  stream the allocation engine consumes. The builder filters records to the
  reporting period, attaches the rate in force on each record's day, and
  hands back a fresh ledger per run.
*/
package timesheet

import (
	"sort"

	"github.com/warp/expenditure-engine/allocation"
)

// Dataset is one run's worth of input: the records to fit and the rate
// schedules to price them with.
type Dataset struct {
	Records []DailyRecord
	Rates   map[allocation.EmployeeID]*RateSchedule
}

// Entries converts the dataset's records inside the period into priced
// ledger entries. Records outside the period are dropped; records for an
// employee with no schedule get rate zero.
func (d *Dataset) Entries(period allocation.Period) ([]allocation.TimesheetEntry, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	var entries []allocation.TimesheetEntry
	for _, rec := range d.Records {
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		if !period.Contains(rec.Date) {
			continue
		}

		rate := allocation.NewCost(0)
		if rs := d.Rates[rec.EmployeeID]; rs != nil {
			rate = rs.RateOn(rec.Date)
		}
		entries = append(entries, allocation.TimesheetEntry{
			EmployeeID:  rec.EmployeeID,
			Date:        rec.Date,
			TopicID:     rec.TopicID,
			HoursWorked: rec.Hours,
			HourlyRate:  rate,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].EmployeeID != entries[j].EmployeeID {
			return entries[i].EmployeeID < entries[j].EmployeeID
		}
		return entries[i].Date.Before(entries[j].Date)
	})
	return entries, nil
}

// NewLedger builds a ledger for one run over the period.
func (d *Dataset) NewLedger(period allocation.Period) (*allocation.TimesheetLedger, error) {
	entries, err := d.Entries(period)
	if err != nil {
		return nil, err
	}
	return allocation.NewTimesheetLedger(entries)
}

// Topics lists the distinct topics appearing in the dataset's records,
// sorted ascending.
func (d *Dataset) Topics() []allocation.TopicID {
	seen := make(map[allocation.TopicID]bool)
	var topics []allocation.TopicID
	for _, rec := range d.Records {
		if !seen[rec.TopicID] {
			seen[rec.TopicID] = true
			topics = append(topics, rec.TopicID)
		}
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
	return topics
}
