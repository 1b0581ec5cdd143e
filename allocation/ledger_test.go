package allocation_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/expenditure-engine/allocation"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func entry(emp string, day int, topic string, hours, rate float64) allocation.TimesheetEntry {
	return allocation.TimesheetEntry{
		EmployeeID:  allocation.EmployeeID(emp),
		Date:        allocation.NewDate(2025, time.January, day),
		TopicID:     allocation.TopicID(topic),
		HoursWorked: allocation.NewHours(hours),
		HourlyRate:  allocation.NewCost(rate),
	}
}

func newLedger(t *testing.T, entries ...allocation.TimesheetEntry) *allocation.TimesheetLedger {
	t.Helper()
	ledger, err := allocation.NewTimesheetLedger(entries)
	if err != nil {
		t.Fatalf("unexpected error building ledger: %v", err)
	}
	return ledger
}

func hoursEqual(t *testing.T, got allocation.Amount, want float64, label string) {
	t.Helper()
	if !got.Value.Equal(allocation.NewHours(want).Value) {
		t.Errorf("%s: expected %v hours, got %v", label, want, got.Value)
	}
}

func costEqual(t *testing.T, got allocation.Amount, want float64, label string) {
	t.Helper()
	if !got.Value.Equal(allocation.NewCost(want).Value) {
		t.Errorf("%s: expected cost %v, got %v", label, want, got.Value)
	}
}

// =============================================================================
// CONSTRUCTION AND VALIDATION
// =============================================================================

func TestLedger_RejectsNegativeHours(t *testing.T) {
	// GIVEN: An entry with negative hours
	// WHEN: Building the ledger
	// THEN: InvalidInput is returned before any state exists

	_, err := allocation.NewTimesheetLedger([]allocation.TimesheetEntry{
		entry("emp-1", 6, "topic-a", -1, 20),
	})
	if !errors.Is(err, allocation.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLedger_RejectsNegativeRate(t *testing.T) {
	_, err := allocation.NewTimesheetLedger([]allocation.TimesheetEntry{
		entry("emp-1", 6, "topic-a", 4, -5),
	})
	if !errors.Is(err, allocation.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLedger_CapacityQueries(t *testing.T) {
	ledger := newLedger(t,
		entry("emp-1", 6, "topic-a", 4, 20),
		entry("emp-2", 6, "topic-a", 6, 30),
		entry("emp-1", 7, "topic-b", 8, 10),
	)

	hoursEqual(t, ledger.AvailableHours("topic-a"), 10, "topic-a available")
	hoursEqual(t, ledger.AvailableHours("topic-b"), 8, "topic-b available")
	hoursEqual(t, ledger.AvailableHours("missing"), 0, "missing topic available")
	costEqual(t, ledger.MaxExtractableCost("topic-a"), 260, "topic-a max cost") // 4*20 + 6*30
	hoursEqual(t, ledger.GrandTotalHours(), 18, "grand total")
}

func TestLedger_AverageRate_CapacityWeighted(t *testing.T) {
	// GIVEN: 4h at rate 20 and 6h at rate 30 on the same topic
	// THEN: Average rate is (4*20 + 6*30) / 10 = 26

	ledger := newLedger(t,
		entry("emp-1", 6, "topic-a", 4, 20),
		entry("emp-2", 6, "topic-a", 6, 30),
	)

	if got := ledger.AverageRate("topic-a"); !got.Equal(allocation.MustParseDecimal("26")) {
		t.Errorf("expected average rate 26, got %v", got)
	}
}

func TestLedger_AverageRate_ZeroForZeroRateCapacity(t *testing.T) {
	ledger := newLedger(t, entry("emp-1", 6, "topic-a", 5, 0))

	if got := ledger.AverageRate("topic-a"); !got.IsZero() {
		t.Errorf("expected zero average rate, got %v", got)
	}
}

// =============================================================================
// COMMIT
// =============================================================================

func TestLedger_Commit_ReducesAvailability(t *testing.T) {
	ledger := newLedger(t, entry("emp-1", 6, "topic-a", 10, 20))

	cost, err := ledger.Commit("proj-1", "topic-a", allocation.NewHours(4))
	if err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}

	costEqual(t, cost, 80, "commit cost")
	hoursEqual(t, ledger.AvailableHours("topic-a"), 6, "available after commit")
	hoursEqual(t, ledger.AllocatedHours("proj-1", "topic-a"), 4, "allocated")
}

func TestLedger_Commit_RateWeightedCostAcrossEntries(t *testing.T) {
	// GIVEN: emp-1 has 4h at 20, emp-2 has 6h at 30 (fill order: emp-1 first)
	// WHEN: Committing 6 hours
	// THEN: Cost = 4*20 + 2*30 = 140

	ledger := newLedger(t,
		entry("emp-1", 6, "topic-a", 4, 20),
		entry("emp-2", 6, "topic-a", 6, 30),
	)

	cost, err := ledger.Commit("proj-1", "topic-a", allocation.NewHours(6))
	if err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	costEqual(t, cost, 140, "heterogeneous commit cost")
}

func TestLedger_Commit_OverCapacity_Fails(t *testing.T) {
	// GIVEN: 10 hours capacity
	// WHEN: Committing 10.5 hours
	// THEN: CapacityExceededError with requested vs available

	ledger := newLedger(t, entry("emp-1", 6, "topic-a", 10, 20))

	_, err := ledger.Commit("proj-1", "topic-a", allocation.NewHours(10.5))
	var capErr *allocation.CapacityExceededError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityExceededError, got %v", err)
	}
	if capErr.ProjectID != "proj-1" || capErr.TopicID != "topic-a" {
		t.Errorf("error context wrong: %+v", capErr)
	}
	hoursEqual(t, ledger.AvailableHours("topic-a"), 10, "availability unchanged after failed commit")
}

func TestLedger_Commit_WithinTolerance_Clamped(t *testing.T) {
	// GIVEN: Exactly 10 hours remain
	// WHEN: Committing 10 + 1e-10 hours (floating drift territory)
	// THEN: The commit succeeds, clamped to 10

	ledger := newLedger(t, entry("emp-1", 6, "topic-a", 10, 20))

	drift := allocation.NewHours(10)
	drift.Value = drift.Value.Add(allocation.MustParseDecimal("0.0000000001"))
	cost, err := ledger.Commit("proj-1", "topic-a", drift)
	if err != nil {
		t.Fatalf("tolerance should absorb drift, got %v", err)
	}
	costEqual(t, cost, 200, "clamped commit cost")
	hoursEqual(t, ledger.AvailableHours("topic-a"), 0, "fully committed")
}

func TestLedger_Commit_UnknownTopic(t *testing.T) {
	ledger := newLedger(t, entry("emp-1", 6, "topic-a", 10, 20))

	_, err := ledger.Commit("proj-1", "missing", allocation.NewHours(1))
	if !errors.Is(err, allocation.ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
}

// =============================================================================
// RELEASE
// =============================================================================

func TestLedger_Release_UnwindsNewestFirst(t *testing.T) {
	// GIVEN: proj-1 committed 4h at rate 20 then 2h at rate 30
	// WHEN: Releasing up to cost 60
	// THEN: The 2h@30 commitment is released first (exactly 2h)

	ledger := newLedger(t,
		entry("emp-1", 6, "topic-a", 4, 20),
		entry("emp-2", 6, "topic-a", 6, 30),
	)
	if _, err := ledger.Commit("proj-1", "topic-a", allocation.NewHours(6)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	hours, cost, err := ledger.Release("proj-1", "topic-a", allocation.NewCost(60))
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	hoursEqual(t, hours, 2, "released hours")
	costEqual(t, cost, 60, "released cost")
	hoursEqual(t, ledger.AllocatedHours("proj-1", "topic-a"), 4, "remaining allocation")
	hoursEqual(t, ledger.AvailableHours("topic-a"), 6, "availability restored")
}

func TestLedger_Release_NeverBelowZero(t *testing.T) {
	// GIVEN: proj-1 committed 2h at rate 20 (cost 40)
	// WHEN: Releasing up to cost 1000
	// THEN: Only the committed 2h come back

	ledger := newLedger(t, entry("emp-1", 6, "topic-a", 10, 20))
	if _, err := ledger.Commit("proj-1", "topic-a", allocation.NewHours(2)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	hours, cost, err := ledger.Release("proj-1", "topic-a", allocation.NewCost(1000))
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	hoursEqual(t, hours, 2, "released hours")
	costEqual(t, cost, 40, "released cost")
	hoursEqual(t, ledger.AllocatedHours("proj-1", "topic-a"), 0, "allocation emptied")
}

func TestLedger_Release_DoesNotTouchOtherProjects(t *testing.T) {
	ledger := newLedger(t, entry("emp-1", 6, "topic-a", 10, 20))
	if _, err := ledger.Commit("proj-1", "topic-a", allocation.NewHours(3)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := ledger.Commit("proj-2", "topic-a", allocation.NewHours(4)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, _, err := ledger.Release("proj-1", "topic-a", allocation.NewCost(1000)); err != nil {
		t.Fatalf("release: %v", err)
	}

	hoursEqual(t, ledger.AllocatedHours("proj-2", "topic-a"), 4, "proj-2 untouched")
	hoursEqual(t, ledger.AvailableHours("topic-a"), 6, "availability after partial release")
}
