/*
runs.go - Background fitting runs

PURPOSE:
  Fitting runs over large timesheets can take a while, so the API starts
  them in the background and hands the client a run ID to poll. Each run
  gets its own cancelable context; a client cancel marks the run canceled
  and the engine notices at its next round boundary.

DESIGN:
  - One goroutine per run, tracked in a map by run ID
  - Run state is persisted through timesheet.Store on every transition,
    so finished runs survive a restart and stay queryable
  - Stop() cancels whatever is in flight and waits for the goroutines

SEE ALSO:
  - handlers.go: StartRun/GetRun/CancelRun endpoints
  - allocation/engine.go: Per-round cancellation check
*/
package api

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/expenditure-engine/allocation"
	"github.com/warp/expenditure-engine/timesheet"
)

// ErrRunNotActive is returned when canceling a run that is not in flight.
var ErrRunNotActive = errors.New("api: run is not active")

// RunManager starts, tracks, and cancels background fitting runs.
type RunManager struct {
	Store  timesheet.Store
	Engine *allocation.Engine

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunManager(store timesheet.Store) *RunManager {
	return &RunManager{
		Store:  store,
		Engine: allocation.NewEngine(),
		active: make(map[string]context.CancelFunc),
	}
}

// Start launches a run in the background and returns its ID immediately.
func (rm *RunManager) Start(params timesheet.RunParams) (string, error) {
	run := timesheet.Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Status:    timesheet.RunStatusRunning,
		Params:    params,
	}
	if err := rm.Store.SaveRun(context.Background(), run); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.mu.Lock()
	rm.active[run.ID] = cancel
	rm.mu.Unlock()

	rm.wg.Add(1)
	go rm.execute(ctx, run)

	log.Printf("[Runs] Started run %s for %s..%s", run.ID, params.PeriodStart, params.PeriodEnd)
	return run.ID, nil
}

// Cancel aborts an in-flight run. Finished runs cannot be canceled.
func (rm *RunManager) Cancel(id string) error {
	rm.mu.Lock()
	cancel, ok := rm.active[id]
	rm.mu.Unlock()
	if !ok {
		return ErrRunNotActive
	}
	cancel()
	return nil
}

// Stop cancels all in-flight runs and waits for them to wind down.
func (rm *RunManager) Stop() {
	rm.mu.Lock()
	for _, cancel := range rm.active {
		cancel()
	}
	rm.mu.Unlock()
	rm.wg.Wait()
	log.Println("[Runs] Stopped")
}

// Wait blocks until every in-flight run has finished. For tests.
func (rm *RunManager) Wait() {
	rm.wg.Wait()
}

func (rm *RunManager) execute(ctx context.Context, run timesheet.Run) {
	defer rm.wg.Done()
	defer func() {
		rm.mu.Lock()
		delete(rm.active, run.ID)
		rm.mu.Unlock()
	}()

	report, err := rm.runFit(ctx, run.Params)
	run.FinishedAt = time.Now().UTC()

	switch {
	case err == nil:
		run.Status = timesheet.RunStatusCompleted
		run.Report = report
	case errors.Is(err, context.Canceled):
		run.Status = timesheet.RunStatusCanceled
	default:
		run.Status = timesheet.RunStatusFailed
		run.Error = err.Error()
		log.Printf("[Runs] Run %s failed: %v", run.ID, err)
	}

	// Persist the terminal state with a fresh context: the run's own ctx
	// may already be canceled.
	if err := rm.Store.SaveRun(context.Background(), run); err != nil {
		log.Printf("[Runs] Failed to persist run %s: %v", run.ID, err)
	}
}

func (rm *RunManager) runFit(ctx context.Context, params timesheet.RunParams) (*allocation.Report, error) {
	period, err := allocation.NewPeriod(params.PeriodStart, params.PeriodEnd)
	if err != nil {
		return nil, err
	}

	dataset, err := timesheet.LoadDataset(ctx, rm.Store, period)
	if err != nil {
		return nil, err
	}
	ledger, err := dataset.NewLedger(period)
	if err != nil {
		return nil, err
	}

	projects, err := rm.selectProjects(ctx, params.ProjectIDs)
	if err != nil {
		return nil, err
	}

	return rm.Engine.Run(ctx, ledger, projects, params.Config)
}

func (rm *RunManager) selectProjects(ctx context.Context, ids []allocation.ProjectID) ([]allocation.ProjectSpec, error) {
	if len(ids) == 0 {
		return rm.Store.ListProjects(ctx)
	}
	projects := make([]allocation.ProjectSpec, 0, len(ids))
	for _, id := range ids {
		spec, err := rm.Store.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		projects = append(projects, spec)
	}
	return projects, nil
}
