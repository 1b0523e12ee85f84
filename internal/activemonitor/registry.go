// Package activemonitor is the Active Monitor Registry (spec.md §4.5): an
// id-indexed map of monitor instances plus the transient scheduling state
// (pending tick, in-flight flag, pending-deletion flag) that the
// Persistence Gateway never stores. Grounded on the teacher's
// internal/poller.MonitorCache (RWMutex-guarded map[id]*struct, explicit
// load/get/size accessors) but extended with the mutators the Check
// Outcome Pipeline and Scheduler need to drive hysteresis and scheduling.
package activemonitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/irisett-go/irisett/internal/errs"
	"github.com/irisett-go/irisett/internal/store"
)

// Instance is one active monitor: its persisted row plus the in-memory
// scheduling fields the Scheduler and Pipeline mutate on every tick.
type Instance struct {
	mu sync.Mutex

	Row store.MonitorInstanceRow

	NextRunAt    time.Time
	Running      bool // single-in-flight-per-instance guarantee
	Deleted      bool // soft-marked, purged after its in-flight run completes
	PendingReset bool // a reset was requested while Running; consumed at the top of the next Run
	Interval     time.Duration
}

// Snapshot is a point-in-time, lock-free copy of an Instance's state,
// safe to read after the registry's lock has been released.
type Snapshot struct {
	Row       store.MonitorInstanceRow
	NextRunAt time.Time
	Running   bool
	Deleted   bool
	Interval  time.Duration
}

func (i *Instance) snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Snapshot{Row: i.Row, NextRunAt: i.NextRunAt, Running: i.Running, Deleted: i.Deleted, Interval: i.Interval}
}

// Registry is the process-wide, mutex-guarded map of active monitors.
type Registry struct {
	mu  sync.RWMutex
	byID map[int64]*Instance
	gw  store.Gateway
}

func New(gw store.Gateway) *Registry {
	return &Registry{byID: make(map[int64]*Instance), gw: gw}
}

// Load populates the registry from the database at startup.
func (r *Registry) Load(ctx context.Context, defaultInterval time.Duration) error {
	rows, err := r.gw.FetchAll(ctx, `SELECT id, definition_id, arguments, state, state_entered_at, last_message, open_alert_id, checks_enabled, alerts_enabled, consecutive_same, last_outcome, last_check_at FROM monitor_instances`)
	if err != nil {
		return err
	}

	instances := make(map[int64]*Instance, len(rows))
	for _, row := range rows {
		var args map[string]string
		if b := row["arguments"]; b != nil {
			_ = json.Unmarshal(rowBytes(b), &args)
		}
		if args == nil {
			args = map[string]string{}
		}

		var openAlertID *int64
		if v := row["open_alert_id"]; v != nil {
			id := v.(int64)
			openAlertID = &id
		}

		instances[row["id"].(int64)] = &Instance{
			Row: store.MonitorInstanceRow{
				ID:              row["id"].(int64),
				DefinitionID:    row["definition_id"].(int64),
				Arguments:       args,
				State:           store.MonitorState(rowString(row["state"])),
				LastMessage:     rowString(row["last_message"]),
				OpenAlertID:     openAlertID,
				ChecksEnabled:   rowBool(row["checks_enabled"]),
				AlertsEnabled:   rowBool(row["alerts_enabled"]),
				ConsecutiveSame: int(rowInt64(row["consecutive_same"])),
				LastOutcome:     store.MonitorState(rowString(row["last_outcome"])),
			},
			NextRunAt: time.Now(),
			Interval:  defaultInterval,
		}
	}

	r.mu.Lock()
	r.byID = instances
	r.mu.Unlock()
	return nil
}

// Get returns the instance for id, or nil if unknown.
func (r *Registry) Get(id int64) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Put inserts inst directly into the registry, bypassing persistence.
// Used by startup seeding and by tests that don't need a database.
func (r *Registry) Put(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[inst.Row.ID] = inst
}

// Snapshot returns a point-in-time copy of id's state, for callers (the
// scheduler's heap, API responses) that must not hold the instance lock.
func (r *Registry) Snapshot(id int64) (Snapshot, bool) {
	inst := r.Get(id)
	if inst == nil {
		return Snapshot{}, false
	}
	return inst.snapshot(), true
}

// All returns every instance currently registered.
func (r *Registry) All() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.byID))
	for _, inst := range r.byID {
		out = append(out, inst)
	}
	return out
}

// Create persists a new monitor instance and adds it to the registry,
// scheduled to run immediately.
func (r *Registry) Create(ctx context.Context, definitionID int64, args map[string]string, interval time.Duration) (int64, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return 0, errs.Wrap(errs.KindInvalidArguments, "failed to encode arguments", err)
	}

	id, err := r.gw.Execute(ctx,
		`INSERT INTO monitor_instances (definition_id, arguments, state, checks_enabled, alerts_enabled, last_outcome) VALUES (?, ?, 'UNKNOWN', true, true, 'UNKNOWN')`,
		definitionID, string(argsJSON))
	if err != nil {
		return 0, err
	}

	inst := &Instance{
		Row: store.MonitorInstanceRow{
			ID:            id,
			DefinitionID:  definitionID,
			Arguments:     args,
			State:         store.StateUnknown,
			ChecksEnabled: true,
			AlertsEnabled: true,
			LastOutcome:   store.StateUnknown,
		},
		NextRunAt: time.Now(),
		Interval:  interval,
	}

	r.mu.Lock()
	r.byID[id] = inst
	r.mu.Unlock()
	return id, nil
}

// InUseByDefinition reports whether any registered instance still
// references definitionID, the referential-integrity guard the
// definition registry's Delete requires before removing a definition.
func (r *Registry) InUseByDefinition(definitionID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.byID {
		if inst.Row.DefinitionID == definitionID {
			return true
		}
	}
	return false
}

// MarkDeleted soft-deletes id: the scheduler stops enqueuing new runs for
// it, and once its current in-flight run (if any) finishes, the caller
// purges it from both the registry and the database.
func (r *Registry) MarkDeleted(id int64) {
	inst := r.Get(id)
	if inst == nil {
		return
	}
	inst.mu.Lock()
	inst.Deleted = true
	inst.mu.Unlock()
}

// Delete marks id deleted and purges it immediately unless a check is
// currently in flight for it, in which case the purge is deferred until
// that run completes (spec.md §3: "if not running, purge is immediate").
// Deciding and marking atomically under the instance lock avoids a race
// against a concurrent TryAcquire.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	inst := r.Get(id)
	if inst == nil {
		return errs.New(errs.KindInvalidArguments, "unknown monitor instance id")
	}
	inst.mu.Lock()
	if inst.Deleted {
		inst.mu.Unlock()
		return nil
	}
	inst.Deleted = true
	running := inst.Running
	inst.mu.Unlock()
	if running {
		return nil
	}
	return r.Purge(ctx, id)
}

// Purge removes every row dependent on id that has no foreign-key
// cascade of its own (object_metadata/object_bin_data are keyed by the
// generic (object_type, object_id) pair, not a real FK) before deleting
// the instance row itself, so deletion leaves no orphaned rows in any
// dependent table per spec.md §8's round-trip invariant.
func (r *Registry) Purge(ctx context.Context, id int64) error {
	err := r.gw.Transact(ctx, func(ctx context.Context, c store.Cursor) error {
		if _, err := c.Execute(ctx, `DELETE FROM object_metadata WHERE object_type='active_monitor' AND object_id=?`, id); err != nil {
			return err
		}
		if _, err := c.Execute(ctx, `DELETE FROM object_bin_data WHERE object_type='active_monitor' AND object_id=?`, id); err != nil {
			return err
		}
		_, err := c.Execute(ctx, `DELETE FROM monitor_instances WHERE id=?`, id)
		return err
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
	return nil
}

// SetChecksEnabled toggles whether the scheduler should poll this instance.
// Disabling resets the hysteresis state back to UNKNOWN and closes any
// open alert, immediately if the instance is idle or deferred until its
// in-flight run completes otherwise.
func (r *Registry) SetChecksEnabled(ctx context.Context, id int64, enabled bool) error {
	inst := r.Get(id)
	if inst == nil {
		return errs.New(errs.KindInvalidArguments, "unknown monitor instance id")
	}
	inst.mu.Lock()
	if inst.Row.ChecksEnabled == enabled {
		inst.mu.Unlock()
		return nil
	}
	inst.Row.ChecksEnabled = enabled
	inst.mu.Unlock()

	if !enabled {
		if err := r.ResetMonitor(ctx, id); err != nil {
			return err
		}
	}

	_, err := r.gw.Execute(ctx, `UPDATE monitor_instances SET checks_enabled=? WHERE id=?`, enabled, id)
	return err
}

// ResetMonitor resets id's hysteresis state back to UNKNOWN and closes any
// open alert interval. If a check is currently in flight for id, the
// reset is deferred (via PendingReset) and applied by ConsumePendingReset
// at the top of the instance's next run rather than racing the in-flight
// check's own state write.
func (r *Registry) ResetMonitor(ctx context.Context, id int64) error {
	inst := r.Get(id)
	if inst == nil {
		return nil
	}
	inst.mu.Lock()
	if inst.Running {
		inst.PendingReset = true
		inst.mu.Unlock()
		return nil
	}
	inst.mu.Unlock()
	return r.doReset(ctx, inst)
}

// ConsumePendingReset applies a reset that was deferred because id was
// running when it was requested. It is a no-op if no reset is pending.
func (r *Registry) ConsumePendingReset(ctx context.Context, id int64) error {
	inst := r.Get(id)
	if inst == nil {
		return nil
	}
	inst.mu.Lock()
	pending := inst.PendingReset
	inst.mu.Unlock()
	if !pending {
		return nil
	}
	return r.doReset(ctx, inst)
}

func (r *Registry) doReset(ctx context.Context, inst *Instance) error {
	inst.mu.Lock()
	openAlertID := inst.Row.OpenAlertID
	inst.mu.Unlock()

	now := time.Now()
	err := r.gw.Transact(ctx, func(ctx context.Context, c store.Cursor) error {
		if openAlertID != nil {
			if _, err := c.Execute(ctx, `UPDATE alert_intervals SET end_at=? WHERE id=?`, now, *openAlertID); err != nil {
				return err
			}
		}
		_, err := c.Execute(ctx,
			`UPDATE monitor_instances SET state=?, state_entered_at=?, last_message=?, open_alert_id=NULL, consecutive_same=0 WHERE id=?`,
			string(store.StateUnknown), now, "", inst.Row.ID)
		return err
	})
	if err != nil {
		return err
	}

	inst.mu.Lock()
	inst.Row.State = store.StateUnknown
	inst.Row.StateEnteredAt = now
	inst.Row.LastMessage = ""
	inst.Row.ConsecutiveSame = 0
	inst.Row.OpenAlertID = nil
	inst.PendingReset = false
	inst.mu.Unlock()
	return nil
}

// UpdateArgs replaces id's arguments and persists them. Callers are
// responsible for validating args against the instance's definition
// beforehand and for flushing its template-cache entry afterward so the
// next run re-expands with the new values.
func (r *Registry) UpdateArgs(ctx context.Context, id int64, args map[string]string) error {
	inst := r.Get(id)
	if inst == nil {
		return errs.New(errs.KindInvalidArguments, "unknown monitor instance id")
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.KindInvalidArguments, "failed to encode arguments", err)
	}
	if _, err := r.gw.Execute(ctx, `UPDATE monitor_instances SET arguments=? WHERE id=?`, string(argsJSON), id); err != nil {
		return err
	}

	inst.mu.Lock()
	inst.Row.Arguments = args
	inst.mu.Unlock()
	return nil
}

// SetAlertsEnabled toggles whether state transitions open/close alert
// intervals and trigger notifications for this instance.
func (r *Registry) SetAlertsEnabled(ctx context.Context, id int64, enabled bool) error {
	inst := r.Get(id)
	if inst == nil {
		return errs.New(errs.KindInvalidArguments, "unknown monitor instance id")
	}
	inst.mu.Lock()
	inst.Row.AlertsEnabled = enabled
	inst.mu.Unlock()

	_, err := r.gw.Execute(ctx, `UPDATE monitor_instances SET alerts_enabled=? WHERE id=?`, enabled, id)
	return err
}

// ScheduleImmediately moves id to the front of the schedule, used by the
// "run now" operation and after argument changes.
func (r *Registry) ScheduleImmediately(id int64) {
	inst := r.Get(id)
	if inst == nil {
		return
	}
	inst.mu.Lock()
	inst.NextRunAt = time.Now()
	inst.mu.Unlock()
}

// Lock/Unlock let the Check Outcome Pipeline hold the instance's lock
// across a multi-field read-modify-write of Row (counter update plus
// last-outcome/message) without reaching into the unexported mutex.
func (i *Instance) Lock()   { i.mu.Lock() }
func (i *Instance) Unlock() { i.mu.Unlock() }

// IsDeleted reports whether the instance was marked for deletion while
// its current run was in flight.
func (i *Instance) IsDeleted() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.Deleted
}

// IsRunning reports whether a check is currently in flight for this
// instance.
func (i *Instance) IsRunning() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.Running
}

// SetState updates the stable state and state-entered timestamp after a
// transition has been durably committed.
func (i *Instance) SetState(state store.MonitorState, enteredAt time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Row.State = state
	i.Row.StateEnteredAt = enteredAt
}

// SetOpenAlert records (or clears, if nil) the currently open alert
// interval id for this instance.
func (i *Instance) SetOpenAlert(alertID *int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Row.OpenAlertID = alertID
}

// ChecksEnabled reports whether the scheduler should keep polling this
// instance.
func (i *Instance) ChecksEnabled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.Row.ChecksEnabled
}

// GetInterval returns the instance's current polling interval.
func (i *Instance) GetInterval() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.Interval
}

// SetInterval updates the instance's polling interval in memory.
func (i *Instance) SetInterval(d time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Interval = d
}

// TryAcquire sets Running=true and returns true, unless id is already
// running or marked deleted — the single-in-flight-per-instance guarantee.
func (i *Instance) TryAcquire() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Running || i.Deleted {
		return false
	}
	i.Running = true
	return true
}

// Release clears the in-flight flag and reports whether the instance was
// marked for deletion while it ran, so the caller can purge it.
func (i *Instance) Release() (deleted bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Running = false
	return i.Deleted
}

func rowBytes(v any) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		return nil
	}
}

func rowString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return ""
}

func rowBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	default:
		return false
	}
}

func rowInt64(v any) int64 {
	if v == nil {
		return 0
	}
	if n, ok := v.(int64); ok {
		return n
	}
	return 0
}
