package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irisett-go/irisett/internal/storetest"
)

// seedMonitor creates a minimal definition + instance to resolve
// recipients against, optionally attached to a monitor group.
func seedMonitor(t *testing.T, gw interface {
	Execute(ctx context.Context, query string, args ...any) (int64, error)
}, groupID *int64) int64 {
	t.Helper()
	ctx := context.Background()
	defID, err := gw.Execute(ctx, `INSERT INTO monitor_definitions (name, executable_path, argv_template) VALUES (?, ?, ?)`, "ping", "/bin/ping", "x")
	require.NoError(t, err)
	instID, err := gw.Execute(ctx, `INSERT INTO monitor_instances (definition_id, group_id) VALUES (?, ?)`, defID, groupID)
	require.NoError(t, err)
	return instID
}

func TestRecipientResolver_DirectContact(t *testing.T) {
	gw := storetest.NewGateway(t)
	ctx := context.Background()
	instID := seedMonitor(t, gw, nil)

	contactID, err := gw.Execute(ctx, `INSERT INTO contacts (name, email, active) VALUES (?, ?, ?)`, "alice", "alice@example.com", true)
	require.NoError(t, err)
	_, err = gw.Execute(ctx, `INSERT INTO monitor_instance_contacts (monitor_id, contact_id) VALUES (?, ?)`, instID, contactID)
	require.NoError(t, err)

	rec, err := NewRecipientResolver(gw).Resolve(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com"}, rec.Emails)
}

func TestRecipientResolver_ContactGroupOnMonitor(t *testing.T) {
	gw := storetest.NewGateway(t)
	ctx := context.Background()
	instID := seedMonitor(t, gw, nil)

	contactID, err := gw.Execute(ctx, `INSERT INTO contacts (name, email, active) VALUES (?, ?, ?)`, "bob", "bob@example.com", true)
	require.NoError(t, err)
	cgID, err := gw.Execute(ctx, `INSERT INTO contact_groups (name, active) VALUES (?, ?)`, "oncall", true)
	require.NoError(t, err)
	_, err = gw.Execute(ctx, `INSERT INTO contact_group_members (contact_group_id, contact_id) VALUES (?, ?)`, cgID, contactID)
	require.NoError(t, err)
	_, err = gw.Execute(ctx, `INSERT INTO monitor_instance_contact_groups (monitor_id, contact_group_id) VALUES (?, ?)`, instID, cgID)
	require.NoError(t, err)

	rec, err := NewRecipientResolver(gw).Resolve(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@example.com"}, rec.Emails)
}

func TestRecipientResolver_ViaMonitorGroup(t *testing.T) {
	gw := storetest.NewGateway(t)
	ctx := context.Background()

	groupID, err := gw.Execute(ctx, `INSERT INTO monitor_groups (name) VALUES (?)`, "site-a")
	require.NoError(t, err)
	instID := seedMonitor(t, gw, &groupID)

	directContact, err := gw.Execute(ctx, `INSERT INTO contacts (name, email, active) VALUES (?, ?, ?)`, "carol", "carol@example.com", true)
	require.NoError(t, err)
	_, err = gw.Execute(ctx, `INSERT INTO monitor_group_contacts (monitor_group_id, contact_id) VALUES (?, ?)`, groupID, directContact)
	require.NoError(t, err)

	cgContact, err := gw.Execute(ctx, `INSERT INTO contacts (name, email, active) VALUES (?, ?, ?)`, "dave", "dave@example.com", true)
	require.NoError(t, err)
	cgID, err := gw.Execute(ctx, `INSERT INTO contact_groups (name, active) VALUES (?, ?)`, "escalation", true)
	require.NoError(t, err)
	_, err = gw.Execute(ctx, `INSERT INTO contact_group_members (contact_group_id, contact_id) VALUES (?, ?)`, cgID, cgContact)
	require.NoError(t, err)
	_, err = gw.Execute(ctx, `INSERT INTO monitor_group_contact_groups (monitor_group_id, contact_group_id) VALUES (?, ?)`, groupID, cgID)
	require.NoError(t, err)

	rec, err := NewRecipientResolver(gw).Resolve(ctx, instID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"carol@example.com", "dave@example.com"}, rec.Emails)
}

func TestRecipientResolver_InactiveContactsAndGroupsExcluded(t *testing.T) {
	gw := storetest.NewGateway(t)
	ctx := context.Background()
	instID := seedMonitor(t, gw, nil)

	inactiveContact, err := gw.Execute(ctx, `INSERT INTO contacts (name, email, active) VALUES (?, ?, ?)`, "inactive", "inactive@example.com", false)
	require.NoError(t, err)
	_, err = gw.Execute(ctx, `INSERT INTO monitor_instance_contacts (monitor_id, contact_id) VALUES (?, ?)`, instID, inactiveContact)
	require.NoError(t, err)

	groupMember, err := gw.Execute(ctx, `INSERT INTO contacts (name, email, active) VALUES (?, ?, ?)`, "via-inactive-group", "viagroup@example.com", true)
	require.NoError(t, err)
	inactiveCG, err := gw.Execute(ctx, `INSERT INTO contact_groups (name, active) VALUES (?, ?)`, "disabled", false)
	require.NoError(t, err)
	_, err = gw.Execute(ctx, `INSERT INTO contact_group_members (contact_group_id, contact_id) VALUES (?, ?)`, inactiveCG, groupMember)
	require.NoError(t, err)
	_, err = gw.Execute(ctx, `INSERT INTO monitor_instance_contact_groups (monitor_id, contact_group_id) VALUES (?, ?)`, instID, inactiveCG)
	require.NoError(t, err)

	rec, err := NewRecipientResolver(gw).Resolve(ctx, instID)
	require.NoError(t, err)
	assert.Empty(t, rec.Emails)
}

func TestRecipientResolver_Metadata(t *testing.T) {
	gw := storetest.NewGateway(t)
	ctx := context.Background()
	instID := seedMonitor(t, gw, nil)

	_, err := gw.Execute(ctx, `INSERT INTO object_metadata (object_type, object_id, key, value) VALUES ('active_monitor', ?, 'region', 'eu')`, instID)
	require.NoError(t, err)

	meta, err := NewRecipientResolver(gw).Metadata(ctx, "active_monitor", instID)
	require.NoError(t, err)
	assert.Equal(t, "eu", meta["meta_region"])
}
