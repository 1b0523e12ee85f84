package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irisett-go/irisett/internal/store"
	"github.com/irisett-go/irisett/internal/storetest"
)

func TestContactStore_CreateGetListUpdateDelete(t *testing.T) {
	gw := storetest.NewGateway(t)
	ctx := context.Background()
	s := NewContactStore(gw)

	id, err := s.CreateContact(ctx, store.Contact{Name: "alice", Email: "alice@example.com", Active: true})
	require.NoError(t, err)

	c, err := s.GetContact(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", c.Name)
	assert.True(t, c.Active)

	require.NoError(t, s.UpdateContact(ctx, id, store.Contact{Name: "alice", Email: "alice2@example.com", Active: false}))
	c, err = s.GetContact(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice2@example.com", c.Email)
	assert.False(t, c.Active)

	all, err := s.ListContacts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteContact(ctx, id))
	all, err = s.ListContacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestContactStore_CreateContact_RequiresName(t *testing.T) {
	gw := storetest.NewGateway(t)
	s := NewContactStore(gw)
	_, err := s.CreateContact(context.Background(), store.Contact{})
	assert.Error(t, err)
}

func TestContactStore_ContactGroupMembership(t *testing.T) {
	gw := storetest.NewGateway(t)
	ctx := context.Background()
	s := NewContactStore(gw)

	contactID, err := s.CreateContact(ctx, store.Contact{Name: "bob", Active: true})
	require.NoError(t, err)
	groupID, err := s.CreateContactGroup(ctx, "oncall", true)
	require.NoError(t, err)

	require.NoError(t, s.AddMember(ctx, groupID, contactID))

	members, err := gw.FetchAll(ctx, `SELECT contact_id FROM contact_group_members WHERE contact_group_id=?`, groupID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	require.NoError(t, s.RemoveMember(ctx, groupID, contactID))
	members, err = gw.FetchAll(ctx, `SELECT contact_id FROM contact_group_members WHERE contact_group_id=?`, groupID)
	require.NoError(t, err)
	assert.Empty(t, members)

	require.NoError(t, s.DeleteContactGroup(ctx, groupID))
	groups, err := gw.FetchAll(ctx, `SELECT id FROM contact_groups`)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestContactStore_DeleteContact_RemovesMemberships(t *testing.T) {
	gw := storetest.NewGateway(t)
	ctx := context.Background()
	s := NewContactStore(gw)

	contactID, err := s.CreateContact(ctx, store.Contact{Name: "carol", Active: true})
	require.NoError(t, err)
	groupID, err := s.CreateContactGroup(ctx, "team", true)
	require.NoError(t, err)
	require.NoError(t, s.AddMember(ctx, groupID, contactID))

	require.NoError(t, s.DeleteContact(ctx, contactID))

	members, err := gw.FetchAll(ctx, `SELECT contact_id FROM contact_group_members WHERE contact_group_id=?`, groupID)
	require.NoError(t, err)
	assert.Empty(t, members)
}
