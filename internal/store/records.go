// Package store is the Persistence Gateway (spec.md §4.1): typed access
// to the relational store, translating rows into domain records and
// exposing single-statement and transactional batch execution.
package store

import "time"

// ParamSpec describes one named parameter of a MonitorDefinition.
type ParamSpec struct {
	ID              int64
	DefinitionID    int64
	Name            string
	DisplayName     string
	Description     string
	Required        bool
	DefaultValue    string
}

// MonitorDefinition is a reusable check template: executable + argv
// template + parameter schema + description template (spec.md §3).
type MonitorDefinition struct {
	ID               int64
	Name             string
	Description      string
	Active           bool
	ExecutablePath   string
	ArgvTemplate     string
	DescriptionTmpl  string
	Params           []ParamSpec
}

// MonitorState is the stable, post-hysteresis state of a monitor instance.
type MonitorState string

const (
	StateUp      MonitorState = "UP"
	StateDown    MonitorState = "DOWN"
	StateUnknown MonitorState = "UNKNOWN"
)

// MonitorInstanceRow is the persisted shape of a MonitorInstance — the
// transient scheduling fields (pending tick, running, deleted, pending
// reset) live only in activemonitor.Instance, never here.
type MonitorInstanceRow struct {
	ID              int64
	DefinitionID    int64
	Arguments       map[string]string
	State           MonitorState
	StateEnteredAt  time.Time
	LastMessage     string
	OpenAlertID     *int64
	ChecksEnabled   bool
	AlertsEnabled   bool
	ConsecutiveSame int
	LastOutcome     MonitorState
	LastCheckAt     time.Time
}

// AlertInterval is a persisted DOWN episode. EndAt is nil while open.
type AlertInterval struct {
	ID        int64
	MonitorID int64
	StartAt   time.Time
	EndAt     *time.Time
	Message   string
}

// IsOpen reports whether the interval has not yet been closed.
func (a AlertInterval) IsOpen() bool { return a.EndAt == nil }

// ObjectMetadata is a (type, id, key) -> string lookup, owned by
// whichever object created it and purged when that object is deleted.
type ObjectMetadata struct {
	ObjectType string
	ObjectID   int64
	Key        string
	Value      string
}

// ObjectBinData is the byte-valued counterpart to ObjectMetadata.
type ObjectBinData struct {
	ObjectType string
	ObjectID   int64
	Key        string
	Value      []byte
}

// MonitorGroup is a node in the addressing-hierarchy tree used by the
// Notification Fan-out to resolve recipients (supplemented from
// original_source/irisett/monitor_group.py; see SPEC_FULL.md §4).
type MonitorGroup struct {
	ID       int64
	ParentID *int64
	Name     string
}

// Contact is a single notification recipient.
type Contact struct {
	ID     int64
	Name   string
	Email  string
	Phone  string
	Active bool
}

// ContactGroup is a named collection of contacts.
type ContactGroup struct {
	ID     int64
	Name   string
	Active bool
}
