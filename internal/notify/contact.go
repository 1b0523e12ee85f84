package notify

import (
	"context"

	"github.com/irisett-go/irisett/internal/errs"
	"github.com/irisett-go/irisett/internal/store"
)

// ContactStore is CRUD for contacts and contact groups (SPEC_FULL.md §4,
// supplemented from original_source/irisett/contact.py). Like GroupStore
// this reads straight through to the Persistence Gateway rather than
// caching, matching the original's "contacts are only stored in the
// database ... loaded each time an alert is sent" comment.
type ContactStore struct {
	gw store.Gateway
}

func NewContactStore(gw store.Gateway) *ContactStore {
	return &ContactStore{gw: gw}
}

// CreateContact adds a contact to the database.
func (s *ContactStore) CreateContact(ctx context.Context, c store.Contact) (int64, error) {
	if c.Name == "" {
		return 0, errs.New(errs.KindInvalidArguments, "missing contact name")
	}
	return s.gw.Execute(ctx, `INSERT INTO contacts (name, email, phone, active) VALUES (?, ?, ?, ?)`,
		c.Name, c.Email, c.Phone, c.Active)
}

// UpdateContact overwrites a contact's fields.
func (s *ContactStore) UpdateContact(ctx context.Context, id int64, c store.Contact) error {
	_, err := s.gw.Execute(ctx, `UPDATE contacts SET name=?, email=?, phone=?, active=? WHERE id=?`,
		c.Name, c.Email, c.Phone, c.Active, id)
	return err
}

// DeleteContact removes a contact and every group membership referencing it.
func (s *ContactStore) DeleteContact(ctx context.Context, id int64) error {
	return s.gw.Transact(ctx, func(ctx context.Context, c store.Cursor) error {
		stmts := []string{
			`DELETE FROM contact_group_members WHERE contact_id=?`,
			`DELETE FROM monitor_instance_contacts WHERE contact_id=?`,
			`DELETE FROM monitor_group_contacts WHERE contact_id=?`,
			`DELETE FROM contacts WHERE id=?`,
		}
		for _, q := range stmts {
			if _, err := c.Execute(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetContact fetches one contact by id.
func (s *ContactStore) GetContact(ctx context.Context, id int64) (*store.Contact, error) {
	row, err := s.gw.FetchRow(ctx, `SELECT id, name, email, phone, active FROM contacts WHERE id=?`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return rowToContact(row), nil
}

// ListContacts returns every contact.
func (s *ContactStore) ListContacts(ctx context.Context) ([]*store.Contact, error) {
	rows, err := s.gw.FetchAll(ctx, `SELECT id, name, email, phone, active FROM contacts`)
	if err != nil {
		return nil, err
	}
	out := make([]*store.Contact, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToContact(row))
	}
	return out, nil
}

// CreateContactGroup adds a named group of contacts.
func (s *ContactStore) CreateContactGroup(ctx context.Context, name string, active bool) (int64, error) {
	if name == "" {
		return 0, errs.New(errs.KindInvalidArguments, "missing contact group name")
	}
	return s.gw.Execute(ctx, `INSERT INTO contact_groups (name, active) VALUES (?, ?)`, name, active)
}

// DeleteContactGroup removes a contact group and its memberships/attachments.
func (s *ContactStore) DeleteContactGroup(ctx context.Context, id int64) error {
	return s.gw.Transact(ctx, func(ctx context.Context, c store.Cursor) error {
		stmts := []string{
			`DELETE FROM contact_group_members WHERE contact_group_id=?`,
			`DELETE FROM monitor_instance_contact_groups WHERE contact_group_id=?`,
			`DELETE FROM monitor_group_contact_groups WHERE contact_group_id=?`,
			`DELETE FROM contact_groups WHERE id=?`,
		}
		for _, q := range stmts {
			if _, err := c.Execute(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddMember attaches a contact to a contact group.
func (s *ContactStore) AddMember(ctx context.Context, groupID, contactID int64) error {
	_, err := s.gw.Execute(ctx, `INSERT INTO contact_group_members (contact_group_id, contact_id) VALUES (?, ?)`, groupID, contactID)
	return err
}

// RemoveMember detaches a contact from a contact group.
func (s *ContactStore) RemoveMember(ctx context.Context, groupID, contactID int64) error {
	_, err := s.gw.Execute(ctx, `DELETE FROM contact_group_members WHERE contact_group_id=? AND contact_id=?`, groupID, contactID)
	return err
}

// AddToMonitor connects a contact directly to a monitor instance.
func (s *ContactStore) AddToMonitor(ctx context.Context, contactID, monitorID int64) error {
	_, err := s.gw.Execute(ctx, `INSERT INTO monitor_instance_contacts (monitor_id, contact_id) VALUES (?, ?)`, monitorID, contactID)
	return err
}

// RemoveFromMonitor disconnects a contact from a monitor instance.
func (s *ContactStore) RemoveFromMonitor(ctx context.Context, contactID, monitorID int64) error {
	_, err := s.gw.Execute(ctx, `DELETE FROM monitor_instance_contacts WHERE monitor_id=? AND contact_id=?`, monitorID, contactID)
	return err
}

func rowToContact(row store.Row) *store.Contact {
	return &store.Contact{
		ID:     row["id"].(int64),
		Name:   asString(row["name"]),
		Email:  asString(row["email"]),
		Phone:  asString(row["phone"]),
		Active: asBool(row["active"]),
	}
}
