/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

QUANTITIES:
  Hours, rates, and monetary values travel as decimal strings. Clients
  that round-trip them through floats lose the exactness the engine
  guarantees, so the API never emits JSON numbers for money.

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  the validator before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/dataset.go: ProjectJSON and DatasetJSON schema
*/
package api

import (
	"time"

	"github.com/warp/expenditure-engine/allocation"
	"github.com/warp/expenditure-engine/timesheet"
)

// =============================================================================
// EMPLOYEES AND RATES
// =============================================================================

type EmployeeDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
}

type CreateEmployeeRequest struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

type SetRateRequest struct {
	From       string `json:"from" validate:"required,datetime=2006-01-02"`
	To         string `json:"to" validate:"required,datetime=2006-01-02"`
	HourlyRate string `json:"hourly_rate" validate:"required"`
}

type RateIntervalDTO struct {
	From       string `json:"from"`
	To         string `json:"to"`
	HourlyRate string `json:"hourly_rate"`
}

// =============================================================================
// RECORDS
// =============================================================================

type RecordDTO struct {
	EmployeeID string `json:"employee_id"`
	Date       string `json:"date"`
	TopicID    string `json:"topic_id"`
	Hours      string `json:"hours"`
}

type AddRecordsRequest struct {
	Records []RecordDTO `json:"records" validate:"min=1,dive"`
}

// =============================================================================
// PROJECTS
// =============================================================================

type ProjectDTO struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	FundingTarget  string   `json:"funding_target"`
	EligibleTopics []string `json:"eligible_topics"`
	FundingAgency  string   `json:"funding_agency,omitempty"`
	Currency       string   `json:"currency,omitempty"`
	GrantMin       string   `json:"grant_min,omitempty"`
	GrantMax       string   `json:"grant_max,omitempty"`
}

// =============================================================================
// RUNS AND REPORTS
// =============================================================================

// StartRunRequest starts a fitting run over the stored data.
type StartRunRequest struct {
	PeriodStart string   `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string   `json:"period_end" validate:"required,datetime=2006-01-02"`
	ProjectIDs  []string `json:"project_ids,omitempty"` // empty means all stored projects

	MaxIterations         int     `json:"max_iterations,omitempty" validate:"gte=0"`
	ConvergenceTolerance  float64 `json:"convergence_tolerance,omitempty" validate:"gte=0"`
	MinStepFraction       float64 `json:"min_step_fraction,omitempty" validate:"gte=0"`
	IncludeZeroRateTopics bool    `json:"include_zero_rate_topics,omitempty"`
	OverheadRatio         string  `json:"overhead_ratio,omitempty"`
}

type RunDTO struct {
	ID         string        `json:"id"`
	Status     string        `json:"status"`
	CreatedAt  string        `json:"created_at"`
	FinishedAt string        `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
	Report     *ReportDTO    `json:"report,omitempty"`
	Overhead   []OverheadDTO `json:"overhead,omitempty"`
}

type ReportDTO struct {
	Results             []ResultDTO    `json:"results"`
	Infeasible          []ShortfallDTO `json:"infeasible,omitempty"`
	TotalHoursAvailable string         `json:"total_hours_available"`
	TotalHoursCommitted string         `json:"total_hours_committed"`
	TotalHoursUnspent   string         `json:"total_hours_unspent"`
	Rounds              int            `json:"rounds"`
}

type ResultDTO struct {
	ProjectID         string            `json:"project_id"`
	ProjectName       string            `json:"project_name,omitempty"`
	AllocatedHours    map[string]string `json:"allocated_hours"`
	TotalHours        string            `json:"total_hours"`
	ResultingCost     string            `json:"resulting_cost"`
	Residual          string            `json:"residual"`
	Feasible          bool              `json:"feasible"`
	Converged         bool              `json:"converged"`
	Stagnated         bool              `json:"stagnated,omitempty"`
	IterationsUsed    int               `json:"iterations_used"`
	WithinGrantBounds *bool             `json:"within_grant_bounds,omitempty"`
}

type ShortfallDTO struct {
	ProjectID string `json:"project_id"`
	Amount    string `json:"amount"`
}

type OverheadDTO struct {
	ProjectID     string `json:"project_id"`
	DirectHours   string `json:"direct_hours"`
	OverheadHours string `json:"overhead_hours"`
	TotalCost     string `json:"total_cost"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEmployeeDTO(e timesheet.Employee) EmployeeDTO {
	return EmployeeDTO{ID: string(e.ID), Name: e.Name, Department: e.Department}
}

func toProjectDTO(spec allocation.ProjectSpec) ProjectDTO {
	dto := ProjectDTO{
		ID:            string(spec.ProjectID),
		Name:          spec.Name,
		FundingTarget: spec.FundingTarget.Value.String(),
		FundingAgency: spec.FundingAgency,
		Currency:      spec.Currency,
	}
	for _, t := range spec.EligibleTopics {
		dto.EligibleTopics = append(dto.EligibleTopics, string(t))
	}
	if spec.GrantMin != nil {
		dto.GrantMin = spec.GrantMin.Value.String()
	}
	if spec.GrantMax != nil {
		dto.GrantMax = spec.GrantMax.Value.String()
	}
	return dto
}

func toReportDTO(report *allocation.Report) *ReportDTO {
	if report == nil {
		return nil
	}
	dto := &ReportDTO{
		Results:             make([]ResultDTO, 0, len(report.Results)),
		TotalHoursAvailable: report.TotalHoursAvailable.Value.String(),
		TotalHoursCommitted: report.TotalHoursCommitted.Value.String(),
		TotalHoursUnspent:   report.TotalHoursUnspent.Value.String(),
		Rounds:              report.Rounds,
	}
	for _, res := range report.Results {
		r := ResultDTO{
			ProjectID:         string(res.ProjectID),
			ProjectName:       res.ProjectName,
			AllocatedHours:    make(map[string]string, len(res.AllocatedHours)),
			TotalHours:        res.TotalHours.Value.String(),
			ResultingCost:     res.ResultingCost.Value.String(),
			Residual:          res.Residual.Value.String(),
			Feasible:          res.Feasible,
			Converged:         res.Converged,
			Stagnated:         res.Stagnated,
			IterationsUsed:    res.IterationsUsed,
			WithinGrantBounds: res.WithinGrantBounds,
		}
		for topic, hours := range res.AllocatedHours {
			r.AllocatedHours[string(topic)] = hours.Value.String()
		}
		dto.Results = append(dto.Results, r)
	}
	for _, sf := range report.Infeasible {
		dto.Infeasible = append(dto.Infeasible, ShortfallDTO{
			ProjectID: string(sf.ProjectID),
			Amount:    sf.Amount.Value.String(),
		})
	}
	return dto
}

func toRunDTO(run timesheet.Run, overhead []timesheet.OverheadSummary) RunDTO {
	dto := RunDTO{
		ID:        run.ID,
		Status:    string(run.Status),
		CreatedAt: run.CreatedAt.UTC().Format(time.RFC3339),
		Error:     run.Error,
		Report:    toReportDTO(run.Report),
	}
	if !run.FinishedAt.IsZero() {
		dto.FinishedAt = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	for _, o := range overhead {
		dto.Overhead = append(dto.Overhead, OverheadDTO{
			ProjectID:     string(o.ProjectID),
			DirectHours:   o.DirectHours.Value.String(),
			OverheadHours: o.OverheadHours.Value.String(),
			TotalCost:     o.TotalCost.Value.String(),
		})
	}
	return dto
}
