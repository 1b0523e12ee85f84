package notify

import (
	"context"

	"github.com/irisett-go/irisett/internal/errs"
	"github.com/irisett-go/irisett/internal/store"
)

// GroupStore is the addressing-hierarchy tree and its contact/contact-
// group attachments (SPEC_FULL.md §4, supplemented from
// original_source/irisett/monitor_group.py). Unlike the definition and
// instance registries this is not cached in memory: monitor groups are
// read rarely (group CRUD, recipient resolution) so every call goes
// straight to the Persistence Gateway, matching the original's
// database-only access pattern.
type GroupStore struct {
	gw store.Gateway
}

func NewGroupStore(gw store.Gateway) *GroupStore {
	return &GroupStore{gw: gw}
}

// Create adds a monitor group, optionally nested under parentID.
func (s *GroupStore) Create(ctx context.Context, parentID *int64, name string) (int64, error) {
	if name == "" {
		return 0, errs.New(errs.KindInvalidArguments, "missing monitor group name")
	}
	if parentID != nil {
		exists, err := s.exists(ctx, *parentID)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, errs.New(errs.KindInvalidArguments, "parent monitor group does not exist")
		}
	}
	return s.gw.Execute(ctx, `INSERT INTO monitor_groups (parent_id, name) VALUES (?, ?)`, parentID, name)
}

// Update changes a monitor group's parent and/or name. A group may not
// be its own parent.
func (s *GroupStore) Update(ctx context.Context, id int64, parentID *int64, name string) error {
	if parentID != nil {
		if *parentID == id {
			return errs.New(errs.KindInvalidArguments, "monitor group can't be its own parent")
		}
		exists, err := s.exists(ctx, *parentID)
		if err != nil {
			return err
		}
		if !exists {
			return errs.New(errs.KindInvalidArguments, "parent monitor group does not exist")
		}
	}
	_, err := s.gw.Execute(ctx, `UPDATE monitor_groups SET parent_id=?, name=? WHERE id=?`, parentID, name, id)
	return err
}

// Delete removes a monitor group and its dependent attachment rows
// (spec.md §8's leave-no-orphans invariant).
func (s *GroupStore) Delete(ctx context.Context, id int64) error {
	return s.gw.Transact(ctx, func(ctx context.Context, c store.Cursor) error {
		stmts := []string{
			`UPDATE monitor_instances SET group_id=NULL WHERE group_id=?`,
			`DELETE FROM monitor_group_contacts WHERE monitor_group_id=?`,
			`DELETE FROM monitor_group_contact_groups WHERE monitor_group_id=?`,
			`DELETE FROM object_metadata WHERE object_type='monitor_group' AND object_id=?`,
			`DELETE FROM object_bin_data WHERE object_type='monitor_group' AND object_id=?`,
			`DELETE FROM monitor_groups WHERE id=?`,
		}
		for _, q := range stmts {
			if _, err := c.Execute(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get fetches one monitor group by id.
func (s *GroupStore) Get(ctx context.Context, id int64) (*store.MonitorGroup, error) {
	row, err := s.gw.FetchRow(ctx, `SELECT id, parent_id, name FROM monitor_groups WHERE id=?`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return rowToGroup(row), nil
}

// List returns every monitor group.
func (s *GroupStore) List(ctx context.Context) ([]*store.MonitorGroup, error) {
	rows, err := s.gw.FetchAll(ctx, `SELECT id, parent_id, name FROM monitor_groups`)
	if err != nil {
		return nil, err
	}
	out := make([]*store.MonitorGroup, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToGroup(row))
	}
	return out, nil
}

// AddContact attaches a contact directly to a monitor group.
func (s *GroupStore) AddContact(ctx context.Context, groupID, contactID int64) error {
	_, err := s.gw.Execute(ctx, `INSERT INTO monitor_group_contacts (monitor_group_id, contact_id) VALUES (?, ?)`, groupID, contactID)
	return err
}

// RemoveContact detaches a contact from a monitor group.
func (s *GroupStore) RemoveContact(ctx context.Context, groupID, contactID int64) error {
	_, err := s.gw.Execute(ctx, `DELETE FROM monitor_group_contacts WHERE monitor_group_id=? AND contact_id=?`, groupID, contactID)
	return err
}

// AddContactGroup attaches a contact group to a monitor group.
func (s *GroupStore) AddContactGroup(ctx context.Context, groupID, contactGroupID int64) error {
	_, err := s.gw.Execute(ctx, `INSERT INTO monitor_group_contact_groups (monitor_group_id, contact_group_id) VALUES (?, ?)`, groupID, contactGroupID)
	return err
}

// RemoveContactGroup detaches a contact group from a monitor group.
func (s *GroupStore) RemoveContactGroup(ctx context.Context, groupID, contactGroupID int64) error {
	_, err := s.gw.Execute(ctx, `DELETE FROM monitor_group_contact_groups WHERE monitor_group_id=? AND contact_group_id=?`, groupID, contactGroupID)
	return err
}

func (s *GroupStore) exists(ctx context.Context, id int64) (bool, error) {
	v, err := s.gw.FetchScalar(ctx, `SELECT id FROM monitor_groups WHERE id=?`, id)
	return v != nil, err
}

func rowToGroup(row store.Row) *store.MonitorGroup {
	g := &store.MonitorGroup{ID: row["id"].(int64), Name: asString(row["name"])}
	if pid := row["parent_id"]; pid != nil {
		id := pid.(int64)
		g.ParentID = &id
	}
	return g
}
