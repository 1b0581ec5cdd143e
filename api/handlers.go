/*
handlers.go - HTTP API handlers for the expenditure engine

PURPOSE:
  Exposes the fitting engine and its domain data via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

ENDPOINTS:
  Employees:
    GET    /api/employees               List all employees
    POST   /api/employees               Create employee
    GET    /api/employees/{id}          Get employee details
    DELETE /api/employees/{id}          Delete employee
    GET    /api/employees/{id}/rates    Get rate schedule
    POST   /api/employees/{id}/rates    Set a rate interval

  Records:
    POST   /api/records                 Add daily work records
    GET    /api/records?from=&to=       List records in a period

  Projects:
    GET    /api/projects                List project specs
    POST   /api/projects                Create/update a project spec
    GET    /api/projects/{id}           Get a project spec
    DELETE /api/projects/{id}           Delete a project spec

  Datasets:
    POST   /api/datasets/import         Import a full dataset JSON

  Runs:
    POST   /api/runs                    Start a background fitting run
    GET    /api/runs                    List runs
    GET    /api/runs/{id}               Get a run with its report
    POST   /api/runs/{id}/cancel        Cancel an in-flight run

  Scenarios:
    GET    /api/scenarios               List demo scenarios
    POST   /api/scenarios/load          Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (run not cancelable)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - runs.go: Background run manager
  - scenarios.go: Demo scenario datasets
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/expenditure-engine/allocation"
	"github.com/warp/expenditure-engine/factory"
	"github.com/warp/expenditure-engine/timesheet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   timesheet.Store
	Runs    *RunManager
	Factory *factory.DatasetFactory

	validate *validator.Validate

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store timesheet.Store) *Handler {
	return &Handler{
		Store:    store,
		Runs:     NewRunManager(store),
		Factory:  factory.NewDatasetFactory(),
		validate: validator.New(),
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := allocation.EmployeeID(chi.URLParam(r, "id"))

	emp, err := h.Store.GetEmployee(r.Context(), id)
	if errors.Is(err, timesheet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee creates or updates an employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	emp := timesheet.Employee{
		ID:         allocation.EmployeeID(req.ID),
		Name:       req.Name,
		Department: req.Department,
	}
	if err := h.Store.PutEmployee(r.Context(), emp); err != nil {
		writeDomainError(w, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// DeleteEmployee removes an employee and their rate schedule.
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := allocation.EmployeeID(chi.URLParam(r, "id"))

	err := h.Store.DeleteEmployee(r.Context(), id)
	if errors.Is(err, timesheet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete employee", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RATE HANDLERS
// =============================================================================

// SetRate assigns an hourly rate to a day range for one employee.
func (h *Handler) SetRate(w http.ResponseWriter, r *http.Request) {
	id := allocation.EmployeeID(chi.URLParam(r, "id"))

	var req SetRateRequest
	if !h.decode(w, r, &req) {
		return
	}

	from, _ := allocation.ParseDate(req.From)
	to, _ := allocation.ParseDate(req.To)
	rate, err := decimal.NewFromString(req.HourlyRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hourly_rate", err)
		return
	}

	err = h.Store.SetRate(r.Context(), id, from, to, allocation.NewAmount(rate, allocation.UnitCost))
	if errors.Is(err, timesheet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	if err != nil {
		writeDomainError(w, "Failed to set rate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRateSchedule returns an employee's rate intervals.
func (h *Handler) GetRateSchedule(w http.ResponseWriter, r *http.Request) {
	id := allocation.EmployeeID(chi.URLParam(r, "id"))

	rs, err := h.Store.GetRateSchedule(r.Context(), id)
	if errors.Is(err, timesheet.ErrNotFound) {
		writeJSON(w, http.StatusOK, []RateIntervalDTO{})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get rate schedule", err)
		return
	}

	intervals := rs.Intervals()
	dtos := make([]RateIntervalDTO, len(intervals))
	for i, iv := range intervals {
		dtos[i] = RateIntervalDTO{
			From:       iv.From.String(),
			To:         iv.To.String(),
			HourlyRate: iv.Rate.Value.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// AddRecords stores a batch of daily work records.
func (h *Handler) AddRecords(w http.ResponseWriter, r *http.Request) {
	var req AddRecordsRequest
	if !h.decode(w, r, &req) {
		return
	}

	records := make([]timesheet.DailyRecord, 0, len(req.Records))
	for _, dto := range req.Records {
		day, err := allocation.ParseDate(dto.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid record date", err)
			return
		}
		hours, err := decimal.NewFromString(dto.Hours)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid record hours", err)
			return
		}
		records = append(records, timesheet.DailyRecord{
			EmployeeID: allocation.EmployeeID(dto.EmployeeID),
			Date:       day,
			TopicID:    allocation.TopicID(dto.TopicID),
			Hours:      allocation.NewAmount(hours, allocation.UnitHours),
		})
	}

	if err := h.Store.AddRecords(r.Context(), records); err != nil {
		writeDomainError(w, "Failed to add records", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"added": len(records)})
}

// ListRecords returns the records inside ?from=&to=.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriodQuery(w, r)
	if !ok {
		return
	}

	records, err := h.Store.ListRecords(r.Context(), period)
	if err != nil {
		writeDomainError(w, "Failed to list records", err)
		return
	}

	dtos := make([]RecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = RecordDTO{
			EmployeeID: string(rec.EmployeeID),
			Date:       rec.Date.String(),
			TopicID:    string(rec.TopicID),
			Hours:      rec.Hours.Value.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects returns all project specs.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects", err)
		return
	}

	dtos := make([]ProjectDTO, len(projects))
	for i, spec := range projects {
		dtos[i] = toProjectDTO(spec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProject returns one project spec.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id := allocation.ProjectID(chi.URLParam(r, "id"))

	spec, err := h.Store.GetProject(r.Context(), id)
	if errors.Is(err, timesheet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Project not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get project", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(spec))
}

// CreateProject creates or updates a project spec from the factory schema.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var pj factory.ProjectJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	spec, err := h.Factory.ParseProject(pj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid project", err)
		return
	}
	if err := h.Store.PutProject(r.Context(), spec); err != nil {
		writeDomainError(w, "Failed to save project", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectDTO(spec))
}

// DeleteProject removes a project spec.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id := allocation.ProjectID(chi.URLParam(r, "id"))

	err := h.Store.DeleteProject(r.Context(), id)
	if errors.Is(err, timesheet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Project not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DATASET IMPORT
// =============================================================================

// ImportDataset loads a full dataset JSON (employees, rates, records,
// projects) into the store in one request.
func (h *Handler) ImportDataset(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	bundle, err := h.Factory.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dataset", err)
		return
	}

	if err := h.importBundle(r.Context(), bundle); err != nil {
		writeDomainError(w, "Failed to import dataset", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"employees": len(bundle.Employees),
		"records":   len(bundle.Dataset.Records),
		"projects":  len(bundle.Projects),
		"period":    map[string]string{"start": bundle.Period.Start.String(), "end": bundle.Period.End.String()},
	})
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// StartRun launches a background fitting run.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, _ := allocation.ParseDate(req.PeriodStart)
	end, _ := allocation.ParseDate(req.PeriodEnd)
	if _, err := allocation.NewPeriod(start, end); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	params := timesheet.RunParams{
		PeriodStart: start,
		PeriodEnd:   end,
		Config: allocation.Config{
			MaxIterations:         req.MaxIterations,
			ConvergenceTolerance:  req.ConvergenceTolerance,
			MinStepFraction:       req.MinStepFraction,
			IncludeZeroRateTopics: req.IncludeZeroRateTopics,
		},
	}
	for _, id := range req.ProjectIDs {
		params.ProjectIDs = append(params.ProjectIDs, allocation.ProjectID(id))
	}
	if req.OverheadRatio != "" {
		ratio, err := decimal.NewFromString(req.OverheadRatio)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid overhead_ratio", err)
			return
		}
		if ratio.IsNegative() || ratio.GreaterThan(timesheet.MaxOverheadRatio) {
			writeError(w, http.StatusBadRequest, "overhead_ratio must be within [0, 0.25]", nil)
			return
		}
		params.OverheadRatio = ratio
	}

	id, err := h.Runs.Start(params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to start run", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

// GetRun returns a run's status and, once finished, its report.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.Store.GetRun(r.Context(), id)
	if errors.Is(err, timesheet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toRunResponse(run))
}

// ListRuns returns all runs, oldest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = h.toRunResponse(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CancelRun aborts an in-flight run.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Runs.Cancel(id); err != nil {
		if errors.Is(err, ErrRunNotActive) {
			writeError(w, http.StatusConflict, "Run is not active", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to cancel run", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceling"})
}

func (h *Handler) toRunResponse(run timesheet.Run) RunDTO {
	var overhead []timesheet.OverheadSummary
	if run.Report != nil && run.Params.OverheadRatio.IsPositive() {
		overhead, _ = timesheet.ApplyOverhead(run.Report, run.Params.OverheadRatio)
	}
	return toRunDTO(run, overhead)
}

// importBundle stores everything a parsed dataset bundle holds.
func (h *Handler) importBundle(ctx context.Context, bundle *factory.Bundle) error {
	for _, emp := range bundle.Employees {
		if err := h.Store.PutEmployee(ctx, emp); err != nil {
			return err
		}
	}
	for id, rs := range bundle.Dataset.Rates {
		for _, iv := range rs.Intervals() {
			if err := h.Store.SetRate(ctx, id, iv.From, iv.To, iv.Rate); err != nil {
				return err
			}
		}
	}
	if len(bundle.Dataset.Records) > 0 {
		if err := h.Store.AddRecords(ctx, bundle.Dataset.Records); err != nil {
			return err
		}
	}
	for _, spec := range bundle.Projects {
		if err := h.Store.PutProject(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// decode unmarshals and validates a request body, writing the error
// response itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func parsePeriodQuery(w http.ResponseWriter, r *http.Request) (allocation.Period, bool) {
	from, err := allocation.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return allocation.Period{}, false
	}
	to, err := allocation.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return allocation.Period{}, false
	}
	period, err := allocation.NewPeriod(from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return allocation.Period{}, false
	}
	return period, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain error classes onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case allocation.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, timesheet.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
