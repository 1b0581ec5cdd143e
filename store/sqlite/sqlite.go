/*
Package sqlite provides a SQLite-backed implementation of timesheet.Store.

PURPOSE:
  Persists the expenditure domain (employees, daily work records, salary
  rate intervals, project specs, completed fitting runs) using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  employees:      People whose hours can be charged to projects
  rate_intervals: Per-employee salary history as inclusive day ranges
  records:        Daily hours per employee and topic
  projects:       Project specs; topics and grant bounds as JSON
  runs:           Completed fitting runs with their report as JSON

DECIMALS:
  Hours, rates, and monetary values are stored as TEXT and parsed with
  shopspring/decimal. REAL columns would reintroduce the float drift the
  engine exists to avoid.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/expenditure.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - timesheet/store.go: Interface definition
  - timesheet/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/expenditure-engine/allocation"
	"github.com/warp/expenditure-engine/timesheet"
)

// Store implements timesheet.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ timesheet.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Salary history: inclusive day ranges, non-overlapping per employee.
	-- Overlap resolution happens in the RateSchedule before writing.
	CREATE TABLE IF NOT EXISTS rate_intervals (
		employee_id TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		PRIMARY KEY (employee_id, from_date)
	);

	CREATE INDEX IF NOT EXISTS idx_rate_intervals_employee
		ON rate_intervals(employee_id);

	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		topic_id TEXT NOT NULL,
		hours TEXT NOT NULL
	);

	-- Hot path: every run loads one period's records
	CREATE INDEX IF NOT EXISTS idx_records_date
		ON records(date);
	CREATE INDEX IF NOT EXISTS idx_records_employee_date
		ON records(employee_id, date);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		funding_target TEXT NOT NULL,
		eligible_topics_json TEXT NOT NULL,
		funding_agency TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT '',
		grant_min TEXT,
		grant_max TEXT,
		funding_start TEXT,
		funding_end TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		params_json TEXT NOT NULL,
		report_json TEXT,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at
		ON runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) PutEmployee(ctx context.Context, emp timesheet.Employee) error {
	if err := emp.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, department, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			department = excluded.department
	`
	_, err := s.db.ExecContext(ctx, query,
		string(emp.ID), emp.Name, emp.Department,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetEmployee(ctx context.Context, id allocation.EmployeeID) (timesheet.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var emp timesheet.Employee
	var empID string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, department FROM employees WHERE id = ?",
		string(id),
	).Scan(&empID, &emp.Name, &emp.Department)

	if err == sql.ErrNoRows {
		return timesheet.Employee{}, timesheet.ErrNotFound
	}
	if err != nil {
		return timesheet.Employee{}, err
	}
	emp.ID = allocation.EmployeeID(empID)
	return emp, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]timesheet.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, department FROM employees ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []timesheet.Employee
	for rows.Next() {
		var emp timesheet.Employee
		var empID string
		if err := rows.Scan(&empID, &emp.Name, &emp.Department); err != nil {
			return nil, err
		}
		emp.ID = allocation.EmployeeID(empID)
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

func (s *Store) DeleteEmployee(ctx context.Context, id allocation.EmployeeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return timesheet.ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM rate_intervals WHERE employee_id = ?", string(id))
	return err
}

// =============================================================================
// DAILY RECORDS
// =============================================================================

// AddRecords appends records atomically within one SQL transaction.
func (s *Store) AddRecords(ctx context.Context, records []timesheet.DailyRecord) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO records (employee_id, date, topic_id, hours) VALUES (?, ?, ?, ?)",
			string(rec.EmployeeID),
			rec.Date.String(),
			string(rec.TopicID),
			rec.Hours.Value.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListRecords(ctx context.Context, period allocation.Period) ([]timesheet.DailyRecord, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT employee_id, date, topic_id, hours
		FROM records
		WHERE date >= ? AND date <= ?
		ORDER BY employee_id ASC, date ASC, topic_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, period.Start.String(), period.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []timesheet.DailyRecord
	for rows.Next() {
		var empID, dateStr, topicID, hoursStr string
		if err := rows.Scan(&empID, &dateStr, &topicID, &hoursStr); err != nil {
			return nil, err
		}
		day, err := allocation.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record date: %w", err)
		}
		records = append(records, timesheet.DailyRecord{
			EmployeeID: allocation.EmployeeID(empID),
			Date:       day,
			TopicID:    allocation.TopicID(topicID),
			Hours:      allocation.NewAmount(allocation.MustParseDecimal(hoursStr), allocation.UnitHours),
		})
	}
	return records, rows.Err()
}

// =============================================================================
// RATE SCHEDULES
// =============================================================================

// SetRate merges the new range into the employee's schedule and rewrites
// the whole schedule in one transaction. Schedules are small (a handful of
// salary changes per person), so the rewrite is cheaper than interval
// surgery in SQL.
func (s *Store) SetRate(ctx context.Context, id allocation.EmployeeID, from, to allocation.TimePoint, rate allocation.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM employees WHERE id = ?", string(id),
	).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return timesheet.ErrNotFound
	}

	rs, err := s.loadSchedule(ctx, id)
	if err != nil {
		return err
	}
	if err := rs.SetRange(from, to, rate); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM rate_intervals WHERE employee_id = ?", string(id),
	); err != nil {
		return err
	}
	for _, iv := range rs.Intervals() {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO rate_intervals (employee_id, from_date, to_date, hourly_rate) VALUES (?, ?, ?, ?)",
			string(id), iv.From.String(), iv.To.String(), iv.Rate.Value.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert rate interval: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetRateSchedule(ctx context.Context, id allocation.EmployeeID) (*timesheet.RateSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, err := s.loadSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(rs.Intervals()) == 0 {
		return nil, timesheet.ErrNotFound
	}
	return rs, nil
}

func (s *Store) loadSchedule(ctx context.Context, id allocation.EmployeeID) (*timesheet.RateSchedule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT from_date, to_date, hourly_rate FROM rate_intervals WHERE employee_id = ? ORDER BY from_date ASC",
		string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []timesheet.RateInterval
	for rows.Next() {
		var fromStr, toStr, rateStr string
		if err := rows.Scan(&fromStr, &toStr, &rateStr); err != nil {
			return nil, err
		}
		from, err := allocation.ParseDate(fromStr)
		if err != nil {
			return nil, err
		}
		to, err := allocation.ParseDate(toStr)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, timesheet.RateInterval{
			From: from,
			To:   to,
			Rate: allocation.NewAmount(allocation.MustParseDecimal(rateStr), allocation.UnitCost),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rs := timesheet.NewRateSchedule(id)
	rs.Restore(intervals)
	return rs, nil
}

// =============================================================================
// PROJECTS
// =============================================================================

func (s *Store) PutProject(ctx context.Context, spec allocation.ProjectSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	topicsJSON, err := json.Marshal(spec.EligibleTopics)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO projects
		(id, name, funding_target, eligible_topics_json, funding_agency, currency,
		 grant_min, grant_max, funding_start, funding_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			funding_target = excluded.funding_target,
			eligible_topics_json = excluded.eligible_topics_json,
			funding_agency = excluded.funding_agency,
			currency = excluded.currency,
			grant_min = excluded.grant_min,
			grant_max = excluded.grant_max,
			funding_start = excluded.funding_start,
			funding_end = excluded.funding_end,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, query,
		string(spec.ProjectID), spec.Name,
		spec.FundingTarget.Value.String(),
		string(topicsJSON),
		spec.FundingAgency, spec.Currency,
		amountPtrString(spec.GrantMin),
		amountPtrString(spec.GrantMax),
		datePtrString(spec.FundingStart),
		datePtrString(spec.FundingEnd),
		now, now,
	)
	return err
}

func (s *Store) GetProject(ctx context.Context, id allocation.ProjectID) (allocation.ProjectSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, funding_target, eligible_topics_json, funding_agency, currency,
		        grant_min, grant_max, funding_start, funding_end
		 FROM projects WHERE id = ?`,
		string(id),
	)
	spec, err := scanProject(row)
	if err == sql.ErrNoRows {
		return allocation.ProjectSpec{}, timesheet.ErrNotFound
	}
	return spec, err
}

func (s *Store) ListProjects(ctx context.Context) ([]allocation.ProjectSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, funding_target, eligible_topics_json, funding_agency, currency,
		        grant_min, grant_max, funding_start, funding_end
		 FROM projects ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []allocation.ProjectSpec
	for rows.Next() {
		spec, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, spec)
	}
	return projects, rows.Err()
}

func (s *Store) DeleteProject(ctx context.Context, id allocation.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return timesheet.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (allocation.ProjectSpec, error) {
	var (
		spec                     allocation.ProjectSpec
		id, name, target, topics string
		agency, currency         string
		grantMin, grantMax       sql.NullString
		fundStart, fundEnd       sql.NullString
	)

	err := row.Scan(&id, &name, &target, &topics, &agency, &currency,
		&grantMin, &grantMax, &fundStart, &fundEnd)
	if err != nil {
		return spec, err
	}

	spec.ProjectID = allocation.ProjectID(id)
	spec.Name = name
	spec.FundingTarget = allocation.NewAmount(allocation.MustParseDecimal(target), allocation.UnitCost)
	spec.FundingAgency = agency
	spec.Currency = currency

	if err := json.Unmarshal([]byte(topics), &spec.EligibleTopics); err != nil {
		return spec, fmt.Errorf("failed to decode eligible topics: %w", err)
	}
	if grantMin.Valid {
		a := allocation.NewAmount(allocation.MustParseDecimal(grantMin.String), allocation.UnitCost)
		spec.GrantMin = &a
	}
	if grantMax.Valid {
		a := allocation.NewAmount(allocation.MustParseDecimal(grantMax.String), allocation.UnitCost)
		spec.GrantMax = &a
	}
	if fundStart.Valid {
		spec.FundingStart, _ = allocation.ParseDate(fundStart.String)
	}
	if fundEnd.Valid {
		spec.FundingEnd, _ = allocation.ParseDate(fundEnd.String)
	}
	return spec, nil
}

// =============================================================================
// RUNS
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run timesheet.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return err
	}
	var reportJSON *string
	if run.Report != nil {
		b, err := json.Marshal(run.Report)
		if err != nil {
			return err
		}
		str := string(b)
		reportJSON = &str
	}
	var finishedAt *string
	if !run.FinishedAt.IsZero() {
		t := run.FinishedAt.UTC().Format(time.RFC3339)
		finishedAt = &t
	}

	query := `
		INSERT INTO runs (id, status, period_start, period_end, params_json,
			report_json, error, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			report_json = excluded.report_json,
			error = excluded.error,
			finished_at = excluded.finished_at
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID, string(run.Status),
		run.Params.PeriodStart.String(), run.Params.PeriodEnd.String(),
		string(paramsJSON), reportJSON, run.Error,
		run.CreatedAt.UTC().Format(time.RFC3339), finishedAt,
	)
	return err
}

func (s *Store) GetRun(ctx context.Context, id string) (timesheet.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, params_json, report_json, error, created_at, finished_at
		 FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return timesheet.Run{}, timesheet.ErrNotFound
	}
	return run, err
}

func (s *Store) ListRuns(ctx context.Context) ([]timesheet.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, params_json, report_json, error, created_at, finished_at
		 FROM runs ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []timesheet.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (timesheet.Run, error) {
	var (
		run                   timesheet.Run
		status, paramsJSON    string
		reportJSON            sql.NullString
		createdAt             string
		finishedAt            sql.NullString
	)

	err := row.Scan(&run.ID, &status, &paramsJSON, &reportJSON, &run.Error, &createdAt, &finishedAt)
	if err != nil {
		return run, err
	}

	run.Status = timesheet.RunStatus(status)
	if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
		return run, fmt.Errorf("failed to decode run params: %w", err)
	}
	if reportJSON.Valid && reportJSON.String != "" {
		run.Report = &allocation.Report{}
		if err := json.Unmarshal([]byte(reportJSON.String), run.Report); err != nil {
			return run, fmt.Errorf("failed to decode run report: %w", err)
		}
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if finishedAt.Valid {
		run.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt.String)
	}
	return run, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"runs", "projects", "records", "rate_intervals", "employees"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func amountPtrString(a *allocation.Amount) *string {
	if a == nil {
		return nil
	}
	s := a.Value.String()
	return &s
}

func datePtrString(tp allocation.TimePoint) *string {
	if tp.IsZero() {
		return nil
	}
	s := tp.String()
	return &s
}
