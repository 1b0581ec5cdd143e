/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built datasets that populate the database with realistic
	data for testing and demos. Each scenario creates employees, rates,
	work records, and project specs that demonstrate specific engine
	behaviors.

AVAILABLE SCENARIOS:

	ample-capacity:  One project, plenty of recorded hours, exact fit
	contended-topic: Two projects competing for the same topic's hours
	underfunded-lab: A target larger than the recorded work can ever cover

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Parse the scenario's dataset JSON via the factory
 3. Store employees, rates, records, and projects

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "contended-topic"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add the dataset JSON to scenarioDatasets

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: writeJSON/writeError helpers, importBundle
  - factory/dataset.go: Dataset JSON schema
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "ample-capacity",
		Name:        "Ample Capacity",
		Description: "One project whose funding target fits comfortably inside the recorded hours",
		Category:    "basics",
	},
	{
		ID:          "contended-topic",
		Name:        "Contended Topic",
		Description: "Two projects competing for the same topic, split proportionally to their residuals",
		Category:    "contention",
	},
	{
		ID:          "underfunded-lab",
		Name:        "Underfunded Lab",
		Description: "A funding target the recorded work cannot reach, reported as an exact shortfall",
		Category:    "diagnostics",
	},
}

var scenarioDatasets = map[string]string{
	"ample-capacity": `{
		"period": {"start": "2025-03-01", "end": "2025-03-31"},
		"employees": [
			{"id": "emp-asta", "name": "Ásta Jónsdóttir", "department": "Sensors"},
			{"id": "emp-bjorn", "name": "Björn Karlsson", "department": "Sensors"}
		],
		"rates": [
			{"employee_id": "emp-asta", "from": "2025-03-01", "to": "2025-03-31", "hourly_rate": "20"},
			{"employee_id": "emp-bjorn", "from": "2025-03-01", "to": "2025-03-31", "hourly_rate": "30"}
		],
		"records": [
			{"employee_id": "emp-asta", "date": "2025-03-03", "topic_id": "field-measurements", "hours": "8"},
			{"employee_id": "emp-asta", "date": "2025-03-04", "topic_id": "field-measurements", "hours": "8"},
			{"employee_id": "emp-bjorn", "date": "2025-03-03", "topic_id": "field-measurements", "hours": "6"},
			{"employee_id": "emp-bjorn", "date": "2025-03-05", "topic_id": "data-analysis", "hours": "7"}
		],
		"projects": [
			{"id": "proj-array", "name": "Sensor Array Calibration", "funding_target": "300",
			 "eligible_topics": ["field-measurements", "data-analysis"],
			 "funding_agency": "RANNIS", "currency": "ISK"}
		]
	}`,
	"contended-topic": `{
		"period": {"start": "2025-03-01", "end": "2025-03-31"},
		"employees": [
			{"id": "emp-asta", "name": "Ásta Jónsdóttir", "department": "Sensors"}
		],
		"rates": [
			{"employee_id": "emp-asta", "from": "2025-03-01", "to": "2025-03-31", "hourly_rate": "20"}
		],
		"records": [
			{"employee_id": "emp-asta", "date": "2025-03-03", "topic_id": "field-measurements", "hours": "5"},
			{"employee_id": "emp-asta", "date": "2025-03-04", "topic_id": "field-measurements", "hours": "5"}
		],
		"projects": [
			{"id": "proj-north", "name": "North Station", "funding_target": "120",
			 "eligible_topics": ["field-measurements"], "funding_agency": "RANNIS", "currency": "ISK"},
			{"id": "proj-south", "name": "South Station", "funding_target": "120",
			 "eligible_topics": ["field-measurements"], "funding_agency": "RANNIS", "currency": "ISK"}
		]
	}`,
	"underfunded-lab": `{
		"period": {"start": "2025-03-01", "end": "2025-03-31"},
		"employees": [
			{"id": "emp-asta", "name": "Ásta Jónsdóttir", "department": "Sensors"},
			{"id": "emp-bjorn", "name": "Björn Karlsson", "department": "Analysis"}
		],
		"rates": [
			{"employee_id": "emp-asta", "from": "2025-03-01", "to": "2025-03-31", "hourly_rate": "20"},
			{"employee_id": "emp-bjorn", "from": "2025-03-01", "to": "2025-03-31", "hourly_rate": "30"}
		],
		"records": [
			{"employee_id": "emp-asta", "date": "2025-03-03", "topic_id": "lab-work", "hours": "4"},
			{"employee_id": "emp-bjorn", "date": "2025-03-03", "topic_id": "lab-work", "hours": "4"},
			{"employee_id": "emp-bjorn", "date": "2025-03-04", "topic_id": "data-analysis", "hours": "6"}
		],
		"projects": [
			{"id": "proj-lab", "name": "Lab Expansion", "funding_target": "1000",
			 "eligible_topics": ["lab-work"], "funding_agency": "RANNIS", "currency": "ISK",
			 "grant_min": "500", "grant_max": "1200"},
			{"id": "proj-analysis", "name": "Data Pipeline", "funding_target": "150",
			 "eligible_topics": ["data-analysis"], "funding_agency": "NordForsk", "currency": "EUR"}
		]
	}`,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario resets the database and loads a predefined dataset.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	dataset, ok := scenarioDatasets[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	bundle, err := h.Factory.Parse([]byte(dataset))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	if err := h.importBundle(ctx, bundle); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all stored data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
