/*
Package factory provides JSON to Go dataset conversion.

PURPOSE:
  Converts JSON dataset definitions into timesheet and allocation objects.
  This enables data loading without code changes: research administrators
  export employees, salary intervals, work records, and project specs from
  their grant system as JSON and the factory produces the proper Go structs.

JSON SCHEMA:
  {
    "period": {"start": "2025-03-01", "end": "2025-03-31"},
    "employees": [
      {"id": "emp-1", "name": "A. Researcher", "department": "Sensors"}
    ],
    "rates": [
      {"employee_id": "emp-1", "from": "2025-03-01", "to": "2025-03-31",
       "hourly_rate": "20"}
    ],
    "records": [
      {"employee_id": "emp-1", "date": "2025-03-06", "topic_id": "topic-a",
       "hours": "10"}
    ],
    "projects": [
      {"id": "proj-1", "name": "Sensor Array", "funding_target": "150",
       "eligible_topics": ["topic-a"], "funding_agency": "RANNIS",
       "currency": "ISK", "grant_min": "100", "grant_max": "200"}
    ]
  }

KEY FEATURES:
  - Validates JSON structure with go-playground/validator tags
  - Monetary and hour quantities are decimal strings, never floats
  - Dates are ISO days; the period bounds every record's date

SEE ALSO:
  - timesheet/builder.go: Dataset consumed by runs
  - allocation/types.go: ProjectSpec definition
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/expenditure-engine/allocation"
	"github.com/warp/expenditure-engine/timesheet"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type DatasetJSON struct {
	Period    PeriodJSON     `json:"period" validate:"required"`
	Employees []EmployeeJSON `json:"employees" validate:"dive"`
	Rates     []RateJSON     `json:"rates" validate:"dive"`
	Records   []RecordJSON   `json:"records" validate:"dive"`
	Projects  []ProjectJSON  `json:"projects" validate:"dive"`
}

type PeriodJSON struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

type EmployeeJSON struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
}

type RateJSON struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	From       string `json:"from" validate:"required,datetime=2006-01-02"`
	To         string `json:"to" validate:"required,datetime=2006-01-02"`
	HourlyRate string `json:"hourly_rate" validate:"required"`
}

type RecordJSON struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	TopicID    string `json:"topic_id" validate:"required"`
	Hours      string `json:"hours" validate:"required"`
}

type ProjectJSON struct {
	ID             string   `json:"id" validate:"required"`
	Name           string   `json:"name" validate:"required"`
	FundingTarget  string   `json:"funding_target" validate:"required"`
	EligibleTopics []string `json:"eligible_topics" validate:"min=1,dive,required"`
	FundingAgency  string   `json:"funding_agency,omitempty"`
	Currency       string   `json:"currency,omitempty" validate:"omitempty,len=3"`
	GrantMin       string   `json:"grant_min,omitempty"`
	GrantMax       string   `json:"grant_max,omitempty"`
	FundingStart   string   `json:"funding_start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	FundingEnd     string   `json:"funding_end,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// =============================================================================
// BUNDLE
// =============================================================================

// Bundle is the parsed form of a dataset file: everything one run needs.
type Bundle struct {
	Period    allocation.Period
	Employees []timesheet.Employee
	Dataset   *timesheet.Dataset
	Projects  []allocation.ProjectSpec
}

// =============================================================================
// FACTORY
// =============================================================================

type DatasetFactory struct {
	validate *validator.Validate
}

func NewDatasetFactory() *DatasetFactory {
	return &DatasetFactory{validate: validator.New()}
}

// Parse converts raw dataset JSON into a Bundle, validating structure and
// value formats along the way.
func (f *DatasetFactory) Parse(data []byte) (*Bundle, error) {
	var doc DatasetJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	if err := f.validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("validate dataset: %w", err)
	}

	period, err := parsePeriod(doc.Period)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{
		Period:  period,
		Dataset: &timesheet.Dataset{Rates: make(map[allocation.EmployeeID]*timesheet.RateSchedule)},
	}

	for _, ej := range doc.Employees {
		bundle.Employees = append(bundle.Employees, timesheet.Employee{
			ID:         allocation.EmployeeID(ej.ID),
			Name:       ej.Name,
			Department: ej.Department,
		})
	}

	for _, rj := range doc.Rates {
		if err := applyRate(bundle.Dataset, rj); err != nil {
			return nil, err
		}
	}

	for _, rj := range doc.Records {
		rec, err := parseRecord(rj)
		if err != nil {
			return nil, err
		}
		bundle.Dataset.Records = append(bundle.Dataset.Records, rec)
	}

	for _, pj := range doc.Projects {
		spec, err := f.ParseProject(pj)
		if err != nil {
			return nil, err
		}
		bundle.Projects = append(bundle.Projects, spec)
	}
	return bundle, nil
}

// ParseProject converts one project definition. Exposed separately because
// the API accepts single-project payloads with the same schema.
func (f *DatasetFactory) ParseProject(pj ProjectJSON) (allocation.ProjectSpec, error) {
	if err := f.validate.Struct(pj); err != nil {
		return allocation.ProjectSpec{}, fmt.Errorf("validate project %q: %w", pj.ID, err)
	}

	target, err := parseCost(pj.FundingTarget, "funding_target", pj.ID)
	if err != nil {
		return allocation.ProjectSpec{}, err
	}

	topics := make([]allocation.TopicID, len(pj.EligibleTopics))
	for i, t := range pj.EligibleTopics {
		topics[i] = allocation.TopicID(t)
	}

	spec := allocation.ProjectSpec{
		ProjectID:      allocation.ProjectID(pj.ID),
		Name:           pj.Name,
		FundingTarget:  target,
		EligibleTopics: topics,
		FundingAgency:  pj.FundingAgency,
		Currency:       pj.Currency,
	}

	if pj.GrantMin != "" {
		min, err := parseCost(pj.GrantMin, "grant_min", pj.ID)
		if err != nil {
			return allocation.ProjectSpec{}, err
		}
		spec.GrantMin = &min
	}
	if pj.GrantMax != "" {
		max, err := parseCost(pj.GrantMax, "grant_max", pj.ID)
		if err != nil {
			return allocation.ProjectSpec{}, err
		}
		spec.GrantMax = &max
	}
	if pj.FundingStart != "" {
		spec.FundingStart, _ = allocation.ParseDate(pj.FundingStart)
	}
	if pj.FundingEnd != "" {
		spec.FundingEnd, _ = allocation.ParseDate(pj.FundingEnd)
	}

	if err := spec.Validate(); err != nil {
		return allocation.ProjectSpec{}, err
	}
	return spec, nil
}

// =============================================================================
// PARSE HELPERS
// =============================================================================

func parsePeriod(pj PeriodJSON) (allocation.Period, error) {
	start, err := allocation.ParseDate(pj.Start)
	if err != nil {
		return allocation.Period{}, fmt.Errorf("period start: %w", err)
	}
	end, err := allocation.ParseDate(pj.End)
	if err != nil {
		return allocation.Period{}, fmt.Errorf("period end: %w", err)
	}
	return allocation.NewPeriod(start, end)
}

func applyRate(ds *timesheet.Dataset, rj RateJSON) error {
	from, err := allocation.ParseDate(rj.From)
	if err != nil {
		return fmt.Errorf("rate for %s: %w", rj.EmployeeID, err)
	}
	to, err := allocation.ParseDate(rj.To)
	if err != nil {
		return fmt.Errorf("rate for %s: %w", rj.EmployeeID, err)
	}
	rate, err := decimal.NewFromString(rj.HourlyRate)
	if err != nil {
		return fmt.Errorf("rate for %s: bad hourly_rate %q: %w", rj.EmployeeID, rj.HourlyRate, err)
	}

	id := allocation.EmployeeID(rj.EmployeeID)
	rs := ds.Rates[id]
	if rs == nil {
		rs = timesheet.NewRateSchedule(id)
		ds.Rates[id] = rs
	}
	return rs.SetRange(from, to, allocation.NewAmount(rate, allocation.UnitCost))
}

func parseRecord(rj RecordJSON) (timesheet.DailyRecord, error) {
	day, err := allocation.ParseDate(rj.Date)
	if err != nil {
		return timesheet.DailyRecord{}, fmt.Errorf("record for %s: %w", rj.EmployeeID, err)
	}
	hours, err := decimal.NewFromString(rj.Hours)
	if err != nil {
		return timesheet.DailyRecord{}, fmt.Errorf("record for %s: bad hours %q: %w", rj.EmployeeID, rj.Hours, err)
	}
	return timesheet.DailyRecord{
		EmployeeID: allocation.EmployeeID(rj.EmployeeID),
		Date:       day,
		TopicID:    allocation.TopicID(rj.TopicID),
		Hours:      allocation.NewAmount(hours, allocation.UnitHours),
	}, nil
}

func parseCost(s, field, projectID string) (allocation.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return allocation.Amount{}, fmt.Errorf("project %q: bad %s %q: %w", projectID, field, s, err)
	}
	return allocation.NewAmount(d, allocation.UnitCost), nil
}
