/*
handlers_test.go - HTTP-level tests for the API handlers

Tests for:
- Employee and rate endpoints
- Record and project endpoints
- Dataset import
- Scenario loading and reset
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/expenditure-engine/timesheet"
)

func newTestAPI(t *testing.T) (*Handler, *chiTestServer) {
	t.Helper()
	h := NewHandler(timesheet.NewMemory())
	return h, &chiTestServer{router: NewRouter(h)}
}

// chiTestServer drives the full router, middleware included.
type chiTestServer struct {
	router http.Handler
}

func (s *chiTestServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

// =============================================================================
// EMPLOYEES AND RATES
// =============================================================================

func TestEmployeeLifecycle(t *testing.T) {
	_, srv := newTestAPI(t)

	// GIVEN: An employee created over the API
	rec := srv.do(t, "POST", "/api/employees", CreateEmployeeRequest{
		ID: "emp-1", Name: "Ásta", Department: "Sensors",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: Listing and fetching
	rec = srv.do(t, "GET", "/api/employees", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []EmployeeDTO
	decodeInto(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Ásta", list[0].Name)

	rec = srv.do(t, "GET", "/api/employees/emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Delete removes it and a second fetch 404s
	rec = srv.do(t, "DELETE", "/api/employees/emp-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = srv.do(t, "GET", "/api/employees/emp-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateEmployee_MissingID(t *testing.T) {
	_, srv := newTestAPI(t)

	rec := srv.do(t, "POST", "/api/employees", CreateEmployeeRequest{Name: "No ID"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateEndpoints(t *testing.T) {
	_, srv := newTestAPI(t)

	srv.do(t, "POST", "/api/employees", CreateEmployeeRequest{ID: "emp-1", Name: "Ásta"})

	// GIVEN: A rate interval for March
	rec := srv.do(t, "POST", "/api/employees/emp-1/rates", SetRateRequest{
		From: "2025-03-01", To: "2025-03-31", HourlyRate: "20",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// WHEN: Fetching the schedule
	rec = srv.do(t, "GET", "/api/employees/emp-1/rates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var intervals []RateIntervalDTO
	decodeInto(t, rec, &intervals)

	// THEN: The stored interval comes back with its decimal rate intact
	require.Len(t, intervals, 1)
	assert.Equal(t, "2025-03-01", intervals[0].From)
	assert.Equal(t, "20", intervals[0].HourlyRate)
}

func TestSetRate_UnknownEmployee(t *testing.T) {
	_, srv := newTestAPI(t)

	rec := srv.do(t, "POST", "/api/employees/ghost/rates", SetRateRequest{
		From: "2025-03-01", To: "2025-03-31", HourlyRate: "20",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// RECORDS
// =============================================================================

func TestRecordEndpoints(t *testing.T) {
	_, srv := newTestAPI(t)

	// GIVEN: Records in March and April
	rec := srv.do(t, "POST", "/api/records", AddRecordsRequest{Records: []RecordDTO{
		{EmployeeID: "emp-1", Date: "2025-03-06", TopicID: "topic-a", Hours: "8"},
		{EmployeeID: "emp-1", Date: "2025-04-02", TopicID: "topic-a", Hours: "6"},
	}})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: Listing only March
	rec = srv.do(t, "GET", "/api/records?from=2025-03-01&to=2025-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []RecordDTO
	decodeInto(t, rec, &records)

	// THEN: The April record is filtered out
	require.Len(t, records, 1)
	assert.Equal(t, "2025-03-06", records[0].Date)
	assert.Equal(t, "8", records[0].Hours)
}

func TestAddRecords_NegativeHoursRejected(t *testing.T) {
	_, srv := newTestAPI(t)

	rec := srv.do(t, "POST", "/api/records", AddRecordsRequest{Records: []RecordDTO{
		{EmployeeID: "emp-1", Date: "2025-03-06", TopicID: "topic-a", Hours: "-2"},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRecords_BadPeriod(t *testing.T) {
	_, srv := newTestAPI(t)

	rec := srv.do(t, "GET", "/api/records?from=2025-03-31&to=2025-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PROJECTS
// =============================================================================

func TestProjectEndpoints(t *testing.T) {
	_, srv := newTestAPI(t)

	// GIVEN: A project with grant bounds
	rec := srv.do(t, "POST", "/api/projects", map[string]any{
		"id": "proj-1", "name": "Sensor Array", "funding_target": "150",
		"eligible_topics": []string{"topic-a"},
		"funding_agency":  "RANNIS", "currency": "ISK",
		"grant_min": "100", "grant_max": "200",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: Fetching it back
	rec = srv.do(t, "GET", "/api/projects/proj-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dto ProjectDTO
	decodeInto(t, rec, &dto)

	// THEN: Decimal fields survive as strings
	assert.Equal(t, "150", dto.FundingTarget)
	assert.Equal(t, "100", dto.GrantMin)
	assert.Equal(t, []string{"topic-a"}, dto.EligibleTopics)

	rec = srv.do(t, "DELETE", "/api/projects/proj-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = srv.do(t, "GET", "/api/projects/proj-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateProject_NegativeTargetRejected(t *testing.T) {
	_, srv := newTestAPI(t)

	rec := srv.do(t, "POST", "/api/projects", map[string]any{
		"id": "proj-bad", "name": "Bad", "funding_target": "-5",
		"eligible_topics": []string{"topic-a"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// DATASET IMPORT
// =============================================================================

func TestImportDataset(t *testing.T) {
	h, srv := newTestAPI(t)

	payload := map[string]any{
		"period": map[string]string{"start": "2025-03-01", "end": "2025-03-31"},
		"employees": []map[string]any{
			{"id": "emp-1", "name": "Ásta", "department": "Sensors"},
		},
		"rates": []map[string]any{
			{"employee_id": "emp-1", "from": "2025-03-01", "to": "2025-03-31", "hourly_rate": "20"},
		},
		"records": []map[string]any{
			{"employee_id": "emp-1", "date": "2025-03-06", "topic_id": "topic-a", "hours": "10"},
		},
		"projects": []map[string]any{
			{"id": "proj-1", "name": "Sensor Array", "funding_target": "150",
				"eligible_topics": []string{"topic-a"}},
		},
	}

	rec := srv.do(t, "POST", "/api/datasets/import", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Everything landed in the store
	employees, err := h.Store.ListEmployees(context.Background())
	require.NoError(t, err)
	assert.Len(t, employees, 1)
	projects, err := h.Store.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestImportDataset_BadPeriodRejected(t *testing.T) {
	_, srv := newTestAPI(t)

	rec := srv.do(t, "POST", "/api/datasets/import", map[string]any{
		"period": map[string]string{"start": "2025-03-31", "end": "2025-03-01"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestLoadScenario(t *testing.T) {
	h, srv := newTestAPI(t)

	// GIVEN: Pre-existing data that the scenario load should wipe
	srv.do(t, "POST", "/api/employees", CreateEmployeeRequest{ID: "emp-stale", Name: "Stale"})

	// WHEN: Loading the contended-topic scenario
	rec := srv.do(t, "POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "contended-topic"})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Only the scenario's data remains
	employees, err := h.Store.ListEmployees(context.Background())
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, "Ásta Jónsdóttir", employees[0].Name)

	projects, err := h.Store.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Len(t, projects, 2)

	// Current scenario reflects the load
	rec = srv.do(t, "GET", "/api/scenarios/current", nil)
	var current ScenarioDTO
	decodeInto(t, rec, &current)
	assert.Equal(t, "contended-topic", current.ID)
}

func TestLoadScenario_Unknown(t *testing.T) {
	_, srv := newTestAPI(t)

	rec := srv.do(t, "POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEveryScenarioParses(t *testing.T) {
	_, srv := newTestAPI(t)

	for _, s := range scenarios {
		rec := srv.do(t, "POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: s.ID})
		assert.Equal(t, http.StatusOK, rec.Code, "scenario %s", s.ID)
	}
}

func TestResetDatabase(t *testing.T) {
	h, srv := newTestAPI(t)

	srv.do(t, "POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "ample-capacity"})
	rec := srv.do(t, "POST", "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	employees, err := h.Store.ListEmployees(context.Background())
	require.NoError(t, err)
	assert.Empty(t, employees)
}
