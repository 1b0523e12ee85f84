package activemonitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irisett-go/irisett/internal/store"
	"github.com/irisett-go/irisett/internal/storetest"
)

func newTestRegistryWithDefinition(t *testing.T) (*Registry, int64, context.Context) {
	gw := storetest.NewGateway(t)
	ctx := context.Background()

	defID, err := gw.Execute(ctx,
		`INSERT INTO monitor_definitions (name, executable_path, argv_template) VALUES (?, ?, ?)`,
		"ping", "/bin/ping", "{{hostname}}")
	require.NoError(t, err)

	r := New(gw)
	require.NoError(t, r.Load(ctx, time.Minute))
	return r, defID, ctx
}

func TestInUseByDefinition(t *testing.T) {
	r, defID, ctx := newTestRegistryWithDefinition(t)

	assert.False(t, r.InUseByDefinition(defID))

	id, err := r.Create(ctx, defID, map[string]string{"hostname": "example.com"}, time.Minute)
	require.NoError(t, err)
	assert.True(t, r.InUseByDefinition(defID))
	assert.False(t, r.InUseByDefinition(defID+1))

	require.NoError(t, r.Purge(ctx, id))
	assert.False(t, r.InUseByDefinition(defID))
}

func TestPurge_CascadesDependentRows(t *testing.T) {
	r, defID, ctx := newTestRegistryWithDefinition(t)

	id, err := r.Create(ctx, defID, map[string]string{"hostname": "example.com"}, time.Minute)
	require.NoError(t, err)

	gw := r.gw
	_, err = gw.Execute(ctx,
		`INSERT INTO object_metadata (object_type, object_id, key, value) VALUES ('active_monitor', ?, 'note', 'v')`, id)
	require.NoError(t, err)
	_, err = gw.Execute(ctx,
		`INSERT INTO object_bin_data (object_type, object_id, key, value) VALUES ('active_monitor', ?, 'blob', ?)`, id, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, r.Purge(ctx, id))

	assert.Nil(t, r.Get(id))

	rows, err := gw.FetchAll(ctx, `SELECT key FROM object_metadata WHERE object_type='active_monitor' AND object_id=?`, id)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = gw.FetchAll(ctx, `SELECT key FROM object_bin_data WHERE object_type='active_monitor' AND object_id=?`, id)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = gw.FetchAll(ctx, `SELECT id FROM monitor_instances WHERE id=?`, id)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMarkDeletedAndRelease(t *testing.T) {
	r, defID, ctx := newTestRegistryWithDefinition(t)
	id, err := r.Create(ctx, defID, nil, time.Minute)
	require.NoError(t, err)

	inst := r.Get(id)
	require.NotNil(t, inst)
	require.True(t, inst.TryAcquire())

	r.MarkDeleted(id)
	assert.True(t, inst.IsDeleted())

	deleted := inst.Release()
	assert.True(t, deleted)
}

func TestDelete_IdlePurgesImmediately(t *testing.T) {
	r, defID, ctx := newTestRegistryWithDefinition(t)
	id, err := r.Create(ctx, defID, nil, time.Minute)
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, id))

	assert.Nil(t, r.Get(id))
	rows, err := r.gw.FetchAll(ctx, `SELECT id FROM monitor_instances WHERE id=?`, id)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDelete_RunningDefersPurge(t *testing.T) {
	r, defID, ctx := newTestRegistryWithDefinition(t)
	id, err := r.Create(ctx, defID, nil, time.Minute)
	require.NoError(t, err)

	inst := r.Get(id)
	require.True(t, inst.TryAcquire())

	require.NoError(t, r.Delete(ctx, id))

	// Still present: purge is deferred until the in-flight run releases it.
	assert.NotNil(t, r.Get(id))
	assert.True(t, inst.IsDeleted())

	deleted := inst.Release()
	assert.True(t, deleted)
	require.NoError(t, r.Purge(ctx, id))
	assert.Nil(t, r.Get(id))
}

func TestResetMonitor_IdleResetsImmediatelyAndClosesAlert(t *testing.T) {
	r, defID, ctx := newTestRegistryWithDefinition(t)
	id, err := r.Create(ctx, defID, nil, time.Minute)
	require.NoError(t, err)

	alertID, err := r.gw.Execute(ctx, `INSERT INTO alert_intervals (monitor_id, start_at, message) VALUES (?, ?, ?)`,
		id, time.Now(), "down")
	require.NoError(t, err)
	inst := r.Get(id)
	inst.SetState(store.StateDown, time.Now())
	inst.SetOpenAlert(&alertID)

	require.NoError(t, r.ResetMonitor(ctx, id))

	assert.Equal(t, store.StateUnknown, inst.Row.State)
	assert.False(t, inst.PendingReset)
	assert.Nil(t, inst.Row.OpenAlertID)

	rows, err := r.gw.FetchAll(ctx, `SELECT end_at FROM alert_intervals WHERE id=?`, alertID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotNil(t, rows[0]["end_at"])
}

func TestResetMonitor_DefersWhileRunningThenConsumed(t *testing.T) {
	r, defID, ctx := newTestRegistryWithDefinition(t)
	id, err := r.Create(ctx, defID, nil, time.Minute)
	require.NoError(t, err)

	inst := r.Get(id)
	inst.SetState(store.StateDown, time.Now())
	require.True(t, inst.TryAcquire())

	require.NoError(t, r.ResetMonitor(ctx, id))
	assert.True(t, inst.PendingReset)
	assert.Equal(t, store.StateDown, inst.Row.State) // not applied yet

	inst.Release()
	require.NoError(t, r.ConsumePendingReset(ctx, id))
	assert.False(t, inst.PendingReset)
	assert.Equal(t, store.StateUnknown, inst.Row.State)
}

func TestUpdateArgs_PersistsAndUpdatesMemory(t *testing.T) {
	r, defID, ctx := newTestRegistryWithDefinition(t)
	id, err := r.Create(ctx, defID, map[string]string{"hostname": "old.example.com"}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, r.UpdateArgs(ctx, id, map[string]string{"hostname": "new.example.com"}))

	inst := r.Get(id)
	assert.Equal(t, "new.example.com", inst.Row.Arguments["hostname"])

	rows, err := r.gw.FetchAll(ctx, `SELECT arguments FROM monitor_instances WHERE id=?`, id)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Contains(t, string(rowBytes(rows[0]["arguments"])), "new.example.com")
}
