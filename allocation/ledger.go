/*
ledger.go - Capacity bookkeeping over timesheet entries

PURPOSE:
  The TimesheetLedger is the single mutable structure the engine touches
  during a run. It holds validated, date-filtered entries grouped by topic
  and tracks, per entry, how many hours have already been committed to a
  project. An hour committed to one project can never be committed to
  another.

CRITICAL INVARIANTS:
  1. CAPACITY: committed hours per entry never exceed the recorded hours
     (checked with a 1e-9 tolerance to absorb decimal division drift)
  2. ATTRIBUTION: every committed hour is tagged with the (project, topic)
     that claimed it, so over-allocation can be unwound precisely
  3. ISOLATION: the ledger is owned by exactly one run and is never shared
     across runs; it has no internal locking

COST ATTRIBUTION:
  Entries carry heterogeneous hourly rates (different employees, different
  salary intervals). Committing N hours to a topic fills entries in a
  deterministic order (employee id, then date) and returns the exact
  rate-weighted cost of the hours taken, so the engine's resulting cost is
  always consistent with what a payroll export would compute.

FAILURE SEMANTICS:
  Commit returns CapacityExceededError when asked for more hours than
  remain. The engine's clipping must prevent this, so the error is treated
  as a defect and aborts the run with full diagnostic state.

SEE ALSO:
  - engine.go: The only caller of Commit/Release
  - errors.go: CapacityExceededError, ErrReleaseExceedsCommitment
*/
package allocation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIMESHEET LEDGER
// =============================================================================

// entrySlot pairs an immutable entry with its committed-hours counter.
type entrySlot struct {
	entry     TimesheetEntry
	committed decimal.Decimal
}

func (s *entrySlot) available() decimal.Decimal {
	return clampNonNegative(s.entry.HoursWorked.Value.Sub(s.committed))
}

type commitKey struct {
	Project ProjectID
	Topic   TopicID
}

// commitment records hours taken from one slot for one (project, topic).
type commitment struct {
	slot  *entrySlot
	hours decimal.Decimal
}

// TimesheetLedger answers capacity queries and enforces the
// non-double-allocation invariant during a fit.
type TimesheetLedger struct {
	topics      map[TopicID][]*entrySlot
	topicOrder  []TopicID
	commitments map[commitKey][]commitment
}

// NewTimesheetLedger builds a ledger from already date-filtered entries.
// Entries are validated here; malformed input is rejected before any
// iteration begins.
func NewTimesheetLedger(entries []TimesheetEntry) (*TimesheetLedger, error) {
	l := &TimesheetLedger{
		topics:      make(map[TopicID][]*entrySlot),
		commitments: make(map[commitKey][]commitment),
	}

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		l.topics[e.TopicID] = append(l.topics[e.TopicID], &entrySlot{entry: e})
	}

	// Deterministic fill order within each topic: runs on identical input
	// must commit against identical entries.
	for topic, slots := range l.topics {
		sort.SliceStable(slots, func(i, j int) bool {
			a, b := slots[i].entry, slots[j].entry
			if a.EmployeeID != b.EmployeeID {
				return a.EmployeeID < b.EmployeeID
			}
			return a.Date.Before(b.Date)
		})
		l.topicOrder = append(l.topicOrder, topic)
	}
	sort.Slice(l.topicOrder, func(i, j int) bool { return l.topicOrder[i] < l.topicOrder[j] })

	return l, nil
}

// Topics returns all topic ids with recorded entries, ascending.
func (l *TimesheetLedger) Topics() []TopicID {
	out := make([]TopicID, len(l.topicOrder))
	copy(out, l.topicOrder)
	return out
}

// HasTopic reports whether any entries were recorded for the topic.
func (l *TimesheetLedger) HasTopic(topic TopicID) bool {
	return len(l.topics[topic]) > 0
}

// =============================================================================
// CAPACITY QUERIES
// =============================================================================

// AvailableHours returns capacity not yet committed for the topic.
// A topic with no entries has zero available hours.
func (l *TimesheetLedger) AvailableHours(topic TopicID) Amount {
	total := decimal.Zero
	for _, s := range l.topics[topic] {
		total = total.Add(s.available())
	}
	return Amount{Value: total, Unit: UnitHours}
}

// TotalHours returns the recorded capacity for the topic, committed or not.
func (l *TimesheetLedger) TotalHours(topic TopicID) Amount {
	total := decimal.Zero
	for _, s := range l.topics[topic] {
		total = total.Add(s.entry.HoursWorked.Value)
	}
	return Amount{Value: total, Unit: UnitHours}
}

// MaxExtractableCost returns the cost of committing every remaining hour of
// the topic: sum of available * rate over contributing entries.
func (l *TimesheetLedger) MaxExtractableCost(topic TopicID) Amount {
	total := decimal.Zero
	for _, s := range l.topics[topic] {
		total = total.Add(s.available().Mul(s.entry.HourlyRate.Value))
	}
	return Amount{Value: total, Unit: UnitCost}
}

// AverageRate returns the capacity-weighted mean hourly rate over the
// topic's remaining hours. Zero when the topic is exhausted or only
// zero-rate hours remain; the engine excludes such topics from cost-driven
// deltas.
func (l *TimesheetLedger) AverageRate(topic TopicID) decimal.Decimal {
	hours := decimal.Zero
	cost := decimal.Zero
	for _, s := range l.topics[topic] {
		avail := s.available()
		hours = hours.Add(avail)
		cost = cost.Add(avail.Mul(s.entry.HourlyRate.Value))
	}
	if hours.IsZero() || cost.IsZero() {
		return decimal.Zero
	}
	return cost.Div(hours)
}

// GrandTotalHours returns recorded capacity across the whole ledger.
func (l *TimesheetLedger) GrandTotalHours() Amount {
	total := decimal.Zero
	for _, slots := range l.topics {
		for _, s := range slots {
			total = total.Add(s.entry.HoursWorked.Value)
		}
	}
	return Amount{Value: total, Unit: UnitHours}
}

// GrandCommittedHours returns hours committed across the whole ledger.
func (l *TimesheetLedger) GrandCommittedHours() Amount {
	total := decimal.Zero
	for _, slots := range l.topics {
		for _, s := range slots {
			total = total.Add(s.committed)
		}
	}
	return Amount{Value: total, Unit: UnitHours}
}

// AllocatedHours returns hours committed for a (project, topic) pair.
func (l *TimesheetLedger) AllocatedHours(project ProjectID, topic TopicID) Amount {
	total := decimal.Zero
	for _, c := range l.commitments[commitKey{Project: project, Topic: topic}] {
		total = total.Add(c.hours)
	}
	return Amount{Value: total, Unit: UnitHours}
}

// AllocatedCost returns the rate-weighted cost of hours committed for a
// (project, topic) pair.
func (l *TimesheetLedger) AllocatedCost(project ProjectID, topic TopicID) Amount {
	total := decimal.Zero
	for _, c := range l.commitments[commitKey{Project: project, Topic: topic}] {
		total = total.Add(c.hours.Mul(c.slot.entry.HourlyRate.Value))
	}
	return Amount{Value: total, Unit: UnitCost}
}

// =============================================================================
// COMMIT / RELEASE
// =============================================================================

// Commit claims hours of the topic for the project, filling entries in the
// deterministic order and returning the exact cost of the hours taken.
// Requests exceeding remaining capacity (beyond the 1e-9 tolerance) fail
// with CapacityExceededError; requests within the tolerance are clamped.
func (l *TimesheetLedger) Commit(project ProjectID, topic TopicID, hours Amount) (Amount, error) {
	cost := Amount{Value: decimal.Zero, Unit: UnitCost}
	if !hours.IsPositive() {
		return cost, nil
	}
	slots, ok := l.topics[topic]
	if !ok {
		return cost, ErrUnknownTopic
	}

	avail := l.AvailableHours(topic)
	if exceedsByEpsilon(hours.Value, avail.Value) {
		return cost, &CapacityExceededError{
			ProjectID: project,
			TopicID:   topic,
			Requested: hours,
			Available: avail,
		}
	}
	remaining := hours.Value
	if remaining.GreaterThan(avail.Value) {
		remaining = avail.Value // within tolerance: absorb the drift
	}

	key := commitKey{Project: project, Topic: topic}
	for _, s := range slots {
		if !remaining.IsPositive() {
			break
		}
		take := s.available()
		if take.GreaterThan(remaining) {
			take = remaining
		}
		if !take.IsPositive() {
			continue
		}
		s.committed = s.committed.Add(take)
		l.commitments[key] = append(l.commitments[key], commitment{slot: s, hours: take})
		cost.Value = cost.Value.Add(take.Mul(s.entry.HourlyRate.Value))
		remaining = remaining.Sub(take)
	}
	return cost, nil
}

// Release unwinds previously committed hours for the (project, topic) pair,
// newest commitment first, until the released cost reaches maxCost or
// nothing cost-bearing remains. Zero-rate commitments are skipped: releasing
// them would free capacity without reducing cost. Returns the hours and cost
// actually released.
func (l *TimesheetLedger) Release(project ProjectID, topic TopicID, maxCost Amount) (Amount, Amount, error) {
	hoursOut := Amount{Value: decimal.Zero, Unit: UnitHours}
	costOut := Amount{Value: decimal.Zero, Unit: UnitCost}
	if !maxCost.IsPositive() {
		return hoursOut, costOut, nil
	}

	key := commitKey{Project: project, Topic: topic}
	commits := l.commitments[key]
	remaining := maxCost.Value

	for i := len(commits) - 1; i >= 0 && remaining.IsPositive(); i-- {
		c := &commits[i]
		rate := c.slot.entry.HourlyRate.Value
		if !rate.IsPositive() || !c.hours.IsPositive() {
			continue
		}
		give := remaining.Div(rate)
		if give.GreaterThan(c.hours) {
			give = c.hours
		}
		if exceedsByEpsilon(give, c.slot.committed) {
			// Commitments and slot counters disagree: bookkeeping defect.
			return hoursOut, costOut, ErrReleaseExceedsCommitment
		}
		c.hours = c.hours.Sub(give)
		c.slot.committed = clampNonNegative(c.slot.committed.Sub(give))
		hoursOut.Value = hoursOut.Value.Add(give)
		released := give.Mul(rate)
		costOut.Value = costOut.Value.Add(released)
		remaining = remaining.Sub(released)
	}

	// Drop emptied commitments so release stays O(live commitments).
	live := commits[:0]
	for _, c := range commits {
		if c.hours.IsPositive() {
			live = append(live, c)
		}
	}
	l.commitments[key] = live

	return hoursOut, costOut, nil
}
