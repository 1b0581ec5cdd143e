package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/expenditure-engine/allocation"
	"github.com/warp/expenditure-engine/store/sqlite"
	"github.com/warp/expenditure-engine/timesheet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func date(day int) allocation.TimePoint {
	return allocation.NewDate(2025, time.March, day)
}

func marchPeriod(t *testing.T) allocation.Period {
	t.Helper()
	p, err := allocation.NewPeriod(date(1), date(31))
	require.NoError(t, err)
	return p
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestSQLite_EmployeeLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutEmployee(ctx, timesheet.Employee{
		ID: "emp-1", Name: "Asta", Department: "Sensors",
	}))

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Asta", emp.Name)
	assert.Equal(t, "Sensors", emp.Department)

	// Upsert keeps the same row
	require.NoError(t, store.PutEmployee(ctx, timesheet.Employee{ID: "emp-1", Name: "Ásta"}))
	emp, err = store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Ásta", emp.Name)

	employees, err := store.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, employees, 1)

	require.NoError(t, store.DeleteEmployee(ctx, "emp-1"))
	_, err = store.GetEmployee(ctx, "emp-1")
	assert.ErrorIs(t, err, timesheet.ErrNotFound)
	assert.ErrorIs(t, store.DeleteEmployee(ctx, "emp-1"), timesheet.ErrNotFound)
}

// =============================================================================
// RECORDS
// =============================================================================

func TestSQLite_Records_PeriodFiltering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddRecords(ctx, []timesheet.DailyRecord{
		{EmployeeID: "emp-1", Date: date(6), TopicID: "topic-a", Hours: allocation.NewHours(4)},
		{EmployeeID: "emp-1", Date: allocation.NewDate(2025, time.April, 2), TopicID: "topic-a", Hours: allocation.NewHours(8)},
	}))

	records, err := store.ListRecords(ctx, marchPeriod(t))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, allocation.TopicID("topic-a"), records[0].TopicID)
	assert.True(t, records[0].Hours.Value.Equal(decimal.NewFromInt(4)))
}

func TestSQLite_AddRecords_AtomicOnValidationFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.AddRecords(ctx, []timesheet.DailyRecord{
		{EmployeeID: "emp-1", Date: date(6), TopicID: "topic-a", Hours: allocation.NewHours(4)},
		{EmployeeID: "", Date: date(7), TopicID: "topic-a", Hours: allocation.NewHours(4)},
	})
	require.ErrorIs(t, err, allocation.ErrInvalidInput)

	records, err := store.ListRecords(ctx, marchPeriod(t))
	require.NoError(t, err)
	assert.Empty(t, records, "no record from a rejected batch may land")
}

// =============================================================================
// RATE SCHEDULES
// =============================================================================

func TestSQLite_RateSchedule_PersistsOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutEmployee(ctx, timesheet.Employee{ID: "emp-1"}))

	require.NoError(t, store.SetRate(ctx, "emp-1", date(1), date(31), allocation.NewCost(20)))
	require.NoError(t, store.SetRate(ctx, "emp-1", date(10), date(20), allocation.NewCost(30)))

	rs, err := store.GetRateSchedule(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, rs.RateOn(date(9)).Value.Equal(decimal.NewFromInt(20)))
	assert.True(t, rs.RateOn(date(15)).Value.Equal(decimal.NewFromInt(30)))
	assert.True(t, rs.RateOn(date(25)).Value.Equal(decimal.NewFromInt(20)))
}

func TestSQLite_SetRate_UnknownEmployee(t *testing.T) {
	store := newTestStore(t)
	err := store.SetRate(context.Background(), "ghost", date(1), date(31), allocation.NewCost(20))
	assert.ErrorIs(t, err, timesheet.ErrNotFound)
}

// =============================================================================
// PROJECTS
// =============================================================================

func TestSQLite_Project_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	min := allocation.NewCost(100)
	max := allocation.NewCost(200)
	spec := allocation.ProjectSpec{
		ProjectID:      "proj-1",
		Name:           "Sensor Array",
		FundingTarget:  allocation.NewCost(150),
		EligibleTopics: []allocation.TopicID{"topic-a", "topic-b"},
		FundingAgency:  "RANNIS",
		Currency:       "ISK",
		GrantMin:       &min,
		GrantMax:       &max,
		FundingStart:   date(1),
		FundingEnd:     date(31),
	}
	require.NoError(t, store.PutProject(ctx, spec))

	got, err := store.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, spec.Name, got.Name)
	assert.True(t, got.FundingTarget.Value.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, spec.EligibleTopics, got.EligibleTopics)
	assert.Equal(t, "RANNIS", got.FundingAgency)
	require.NotNil(t, got.GrantMin)
	assert.True(t, got.GrantMin.Value.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.FundingStart.Equal(date(1)))
}

func TestSQLite_Project_InvalidSpecRejected(t *testing.T) {
	store := newTestStore(t)
	err := store.PutProject(context.Background(), allocation.ProjectSpec{
		ProjectID:     "proj-1",
		FundingTarget: allocation.NewCost(100),
		// no eligible topics
	})
	assert.ErrorIs(t, err, allocation.ErrInvalidInput)
}

// =============================================================================
// RUNS
// =============================================================================

func TestSQLite_Run_RoundTripWithReport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	report := &allocation.Report{
		Results: []allocation.Result{{
			ProjectID:     "proj-1",
			AllocatedHours: map[allocation.TopicID]allocation.Amount{
				"topic-a": allocation.NewHours(7.5),
			},
			TotalHours:    allocation.NewHours(7.5),
			ResultingCost: allocation.NewCost(150),
			Residual:      allocation.NewCost(0),
			Feasible:      true,
			Converged:     true,
		}},
		Rounds: 1,
	}
	run := timesheet.Run{
		ID:        "run-1",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Status:    timesheet.RunStatusCompleted,
		Params: timesheet.RunParams{
			PeriodStart: date(1),
			PeriodEnd:   date(31),
			Config:      allocation.DefaultConfig(),
		},
		Report: report,
	}
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, timesheet.RunStatusCompleted, got.Status)
	require.NotNil(t, got.Report)
	require.Len(t, got.Report.Results, 1)
	assert.True(t, got.Report.Results[0].TotalHours.Value.Equal(decimal.NewFromFloat(7.5)))
	assert.True(t, got.Report.Results[0].Feasible)
	assert.Equal(t, allocation.DefaultMaxIterations, got.Params.Config.MaxIterations)
}

func TestSQLite_Run_StatusUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := timesheet.Run{
		ID:        "run-1",
		CreatedAt: time.Now().UTC(),
		Status:    timesheet.RunStatusRunning,
		Params:    timesheet.RunParams{PeriodStart: date(1), PeriodEnd: date(31)},
	}
	require.NoError(t, store.SaveRun(ctx, run))

	run.Status = timesheet.RunStatusFailed
	run.Error = "capacity bookkeeping out of sync"
	run.FinishedAt = time.Now().UTC()
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, timesheet.RunStatusFailed, got.Status)
	assert.Equal(t, "capacity bookkeeping out of sync", got.Error)
	assert.False(t, got.FinishedAt.IsZero())

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, timesheet.ErrNotFound)
}

// =============================================================================
// RESET
// =============================================================================

func TestSQLite_Reset_ClearsEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutEmployee(ctx, timesheet.Employee{ID: "emp-1"}))
	require.NoError(t, store.AddRecords(ctx, []timesheet.DailyRecord{
		{EmployeeID: "emp-1", Date: date(6), TopicID: "topic-a", Hours: allocation.NewHours(4)},
	}))
	require.NoError(t, store.Reset(ctx))

	employees, err := store.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, employees)
	records, err := store.ListRecords(ctx, marchPeriod(t))
	require.NoError(t, err)
	assert.Empty(t, records)
}
