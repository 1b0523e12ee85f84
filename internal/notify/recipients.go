// Package notify is the Notification Fan-out (spec.md §4.9): recipient
// aggregation across contacts, contact groups, and monitor groups, plus
// a best-effort, independently-failing dispatch across pluggable
// backends. Grounded on irisett's own original_source/irisett/notify
// package (manager.py fans out to email/sms/http/slack independently,
// swallowing a backend's own failure rather than aborting the others)
// and on contact.py/monitor_group.py for the recipient-aggregation shape
// that spec.md's distillation left implicit.
package notify

import (
	"context"

	"github.com/irisett-go/irisett/internal/store"
)

// Recipients is the resolved set of notification targets for one monitor
// instance's state change.
type Recipients struct {
	Emails []string
	Phones []string
}

// RecipientResolver aggregates direct contacts, contact groups attached to
// the monitor, the monitor's group's direct contacts, and the contact
// groups attached to that group — the four sources spec.md §4.9 names —
// filtering out inactive contacts/groups.
type RecipientResolver struct {
	gw store.Gateway
}

func NewRecipientResolver(gw store.Gateway) *RecipientResolver {
	return &RecipientResolver{gw: gw}
}

// Resolve computes the recipient set for instanceID.
func (r *RecipientResolver) Resolve(ctx context.Context, instanceID int64) (Recipients, error) {
	contactIDs := map[int64]bool{}
	contactGroupIDs := map[int64]bool{}

	// Source 1: direct contacts on the monitor.
	direct, err := r.gw.FetchAll(ctx, `SELECT contact_id FROM monitor_instance_contacts WHERE monitor_id=?`, instanceID)
	if err != nil {
		return Recipients{}, err
	}
	for _, row := range direct {
		contactIDs[asInt64(row["contact_id"])] = true
	}

	// Source 2: contact groups attached directly to the monitor.
	directGroups, err := r.gw.FetchAll(ctx, `SELECT contact_group_id FROM monitor_instance_contact_groups WHERE monitor_id=?`, instanceID)
	if err == nil {
		for _, row := range directGroups {
			contactGroupIDs[asInt64(row["contact_group_id"])] = true
		}
	}

	// Sources 3 & 4 both hang off the monitor's own monitor_group, if any.
	groupRow, err := r.gw.FetchRow(ctx, `SELECT group_id FROM monitor_instances WHERE id=?`, instanceID)
	if err == nil && groupRow != nil && groupRow["group_id"] != nil {
		groupID := asInt64(groupRow["group_id"])

		// Source 3: contacts attached directly to the monitor group.
		viaGroup, err := r.gw.FetchAll(ctx, `SELECT contact_id FROM monitor_group_contacts WHERE monitor_group_id=?`, groupID)
		if err == nil {
			for _, row := range viaGroup {
				contactIDs[asInt64(row["contact_id"])] = true
			}
		}

		// Source 4: contact groups attached to the monitor group.
		viaGroupCG, err := r.gw.FetchAll(ctx, `SELECT contact_group_id FROM monitor_group_contact_groups WHERE monitor_group_id=?`, groupID)
		if err == nil {
			for _, row := range viaGroupCG {
				contactGroupIDs[asInt64(row["contact_group_id"])] = true
			}
		}
	}

	for cgID := range contactGroupIDs {
		active, err := r.gw.FetchScalar(ctx, `SELECT active FROM contact_groups WHERE id=?`, cgID)
		if err != nil || active == nil || !asBool(active) {
			continue
		}
		members, err := r.gw.FetchAll(ctx, `SELECT contact_id FROM contact_group_members WHERE contact_group_id=?`, cgID)
		if err != nil {
			continue
		}
		for _, row := range members {
			contactIDs[asInt64(row["contact_id"])] = true
		}
	}

	if len(contactIDs) == 0 {
		return Recipients{}, nil
	}

	var rec Recipients
	for id := range contactIDs {
		row, err := r.gw.FetchRow(ctx, `SELECT email, phone, active FROM contacts WHERE id=?`, id)
		if err != nil || row == nil {
			continue
		}
		if !asBool(row["active"]) {
			continue
		}
		if email, _ := row["email"].(string); email != "" {
			rec.Emails = append(rec.Emails, email)
		}
		if phone, _ := row["phone"].(string); phone != "" {
			rec.Phones = append(rec.Phones, phone)
		}
	}
	return rec, nil
}

// Metadata fetches every object_metadata row owned by (object_type, id),
// keyed meta_<key> per spec.md §4.9's template data bag contract.
func (r *RecipientResolver) Metadata(ctx context.Context, objectType string, id int64) (map[string]string, error) {
	rows, err := r.gw.FetchAll(ctx, `SELECT key, value FROM object_metadata WHERE object_type=? AND object_id=?`, objectType, id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		key, _ := row["key"].(string)
		val, _ := row["value"].(string)
		out["meta_"+key] = val
	}
	return out, nil
}

func asString(v any) string {
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

func asInt64(v any) int64 {
	if n, ok := v.(int64); ok {
		return n
	}
	return 0
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	default:
		return false
	}
}
