package timesheet

import (
	"context"
	"errors"

	"github.com/warp/expenditure-engine/allocation"
)

// ErrNotFound is returned by store lookups for missing records.
var ErrNotFound = errors.New("timesheet: not found")

// Store persists the domain: employees, daily records, rate schedules,
// project specs, and completed runs. Implementations must be safe for
// concurrent use.
type Store interface {
	PutEmployee(ctx context.Context, emp Employee) error
	GetEmployee(ctx context.Context, id allocation.EmployeeID) (Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	DeleteEmployee(ctx context.Context, id allocation.EmployeeID) error

	AddRecords(ctx context.Context, records []DailyRecord) error
	ListRecords(ctx context.Context, period allocation.Period) ([]DailyRecord, error)

	SetRate(ctx context.Context, id allocation.EmployeeID, from, to allocation.TimePoint, rate allocation.Amount) error
	GetRateSchedule(ctx context.Context, id allocation.EmployeeID) (*RateSchedule, error)

	PutProject(ctx context.Context, spec allocation.ProjectSpec) error
	GetProject(ctx context.Context, id allocation.ProjectID) (allocation.ProjectSpec, error)
	ListProjects(ctx context.Context) ([]allocation.ProjectSpec, error)
	DeleteProject(ctx context.Context, id allocation.ProjectID) error

	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context) ([]Run, error)

	// Reset clears all stored data. Used by demo scenario loading.
	Reset(ctx context.Context) error
}

// LoadDataset assembles a run's input from the store: every record in the
// period plus the rate schedules of the employees that appear in them.
func LoadDataset(ctx context.Context, s Store, period allocation.Period) (*Dataset, error) {
	records, err := s.ListRecords(ctx, period)
	if err != nil {
		return nil, err
	}

	rates := make(map[allocation.EmployeeID]*RateSchedule)
	for _, rec := range records {
		if _, ok := rates[rec.EmployeeID]; ok {
			continue
		}
		rs, err := s.GetRateSchedule(ctx, rec.EmployeeID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // Unpaid: the builder prices these records at zero
			}
			return nil, err
		}
		rates[rec.EmployeeID] = rs
	}
	return &Dataset{Records: records, Rates: rates}, nil
}
