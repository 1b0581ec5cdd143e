package timesheet

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/expenditure-engine/allocation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	employees map[allocation.EmployeeID]Employee
	records   []DailyRecord
	rates     map[allocation.EmployeeID]*RateSchedule
	projects  map[allocation.ProjectID]allocation.ProjectSpec
	runs      map[string]Run
}

func NewMemory() *Memory {
	return &Memory{
		employees: make(map[allocation.EmployeeID]Employee),
		rates:     make(map[allocation.EmployeeID]*RateSchedule),
		projects:  make(map[allocation.ProjectID]allocation.ProjectSpec),
		runs:      make(map[string]Run),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) PutEmployee(_ context.Context, emp Employee) error {
	if err := emp.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = emp
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id allocation.EmployeeID) (Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emp, ok := m.employees[id]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return emp, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Employee, 0, len(m.employees))
	for _, emp := range m.employees {
		out = append(out, emp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteEmployee(_ context.Context, id allocation.EmployeeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.employees[id]; !ok {
		return ErrNotFound
	}
	delete(m.employees, id)
	delete(m.rates, id)
	return nil
}

// AddRecords appends records atomically: either every record validates and
// lands, or none do.
func (m *Memory) AddRecords(_ context.Context, records []DailyRecord) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

func (m *Memory) ListRecords(_ context.Context, period allocation.Period) ([]DailyRecord, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []DailyRecord
	for _, rec := range m.records {
		if period.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) SetRate(_ context.Context, id allocation.EmployeeID, from, to allocation.TimePoint, rate allocation.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.employees[id]; !ok {
		return ErrNotFound
	}
	rs, ok := m.rates[id]
	if !ok {
		rs = NewRateSchedule(id)
		m.rates[id] = rs
	}
	return rs.SetRange(from, to, rate)
}

// GetRateSchedule returns a copy: callers mutate their own schedule, not
// the stored one.
func (m *Memory) GetRateSchedule(_ context.Context, id allocation.EmployeeID) (*RateSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs, ok := m.rates[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := NewRateSchedule(id)
	out.Restore(rs.Intervals())
	return out, nil
}

func (m *Memory) PutProject(_ context.Context, spec allocation.ProjectSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[spec.ProjectID] = spec
	return nil
}

func (m *Memory) GetProject(_ context.Context, id allocation.ProjectID) (allocation.ProjectSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.projects[id]
	if !ok {
		return allocation.ProjectSpec{}, ErrNotFound
	}
	return spec, nil
}

func (m *Memory) ListProjects(_ context.Context) ([]allocation.ProjectSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]allocation.ProjectSpec, 0, len(m.projects))
	for _, spec := range m.projects {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

func (m *Memory) DeleteProject(_ context.Context, id allocation.ProjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	delete(m.projects, id)
	return nil
}

func (m *Memory) SaveRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

func (m *Memory) ListRuns(_ context.Context) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees = make(map[allocation.EmployeeID]Employee)
	m.records = nil
	m.rates = make(map[allocation.EmployeeID]*RateSchedule)
	m.projects = make(map[allocation.ProjectID]allocation.ProjectSpec)
	m.runs = make(map[string]Run)
	return nil
}
