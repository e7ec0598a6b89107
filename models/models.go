package models

import (
	"context"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
)

// ColumnKind is the closed set of semantic column types every downstream
// component dispatches on. Native storage types resolve to exactly one kind.
type ColumnKind string

const (
	KindInteger  ColumnKind = "integer"
	KindNumber   ColumnKind = "number"
	KindBoolean  ColumnKind = "boolean"
	KindString   ColumnKind = "string"
	KindText     ColumnKind = "text"
	KindDate     ColumnKind = "date"
	KindDatetime ColumnKind = "datetime"
	KindJSON     ColumnKind = "json"
	KindArray    ColumnKind = "array"
	KindGeometry ColumnKind = "geometry"
	KindEnum     ColumnKind = "enum"
)

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

type ColumnDescriptor struct {
	Name             string     `json:"name"`
	Kind             ColumnKind `json:"type"`
	NativeType       string     `json:"native_type"`
	Nullable         bool       `json:"nullable"`
	HasDefault       bool       `json:"has_default"`
	PrimaryKey       bool       `json:"primary_key"`
	IsAutoPK         bool       `json:"is_auto_pk"`
	IsForeignKey     bool       `json:"is_foreign_key"`
	ForeignKeyTarget string     `json:"foreign_key_target,omitempty"`
	EnumValues       []string   `json:"enum_values,omitempty"`
	MaxLength        int        `json:"max_length,omitempty"`
	Comment          string     `json:"comment,omitempty"`
}

// Searchable reports whether global search should match this column.
func (c *ColumnDescriptor) Searchable() bool {
	switch c.Kind {
	case KindString, KindText, KindEnum:
		return true
	}
	return false
}

// Required reports whether create payloads must carry a value for this
// column: not nullable, no default, not part of the primary key.
func (c *ColumnDescriptor) Required() bool {
	return !c.Nullable && !c.HasDefault && !c.PrimaryKey
}

// ActionFn is the contract for host-registered actions: the selected rows
// as plain maps plus the live transaction the dispatcher opened. The
// returned string becomes the user-visible result message.
type ActionFn func(ctx context.Context, records []map[string]any, tx pgx.Tx) (string, error)

type ActionDescriptor struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Icon    string   `json:"icon"`
	Confirm string   `json:"confirm,omitempty"` // may contain the {count} placeholder
	Role    string   `json:"role"`
	Fn      ActionFn `json:"-"`
}

// VisibleTo reports whether the role may see and run this action.
// Viewer sees only viewer actions, admin sees everything.
func (a *ActionDescriptor) VisibleTo(role string) bool {
	if role == RoleAdmin {
		return true
	}
	return a.Role == RoleViewer
}

// ModelDescriptor is the runtime metadata for one exposed table. Built
// once at startup and owned by the registry; only the cached row count
// changes afterwards.
type ModelDescriptor struct {
	TableName   string
	DisplayName string
	Columns     []ColumnDescriptor
	PKColumns   []string
	Actions     []*ActionDescriptor

	rowCount atomic.Int64
}

func (m *ModelDescriptor) Column(name string) (*ColumnDescriptor, bool) {
	for i := range m.Columns {
		if m.Columns[i].Name == name {
			return &m.Columns[i], true
		}
	}
	return nil, false
}

func (m *ModelDescriptor) Action(name string) (*ActionDescriptor, bool) {
	for _, a := range m.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// ActionsFor returns the actions the role may see, in registration order.
func (m *ModelDescriptor) ActionsFor(role string) []*ActionDescriptor {
	visible := []*ActionDescriptor{}
	for _, a := range m.Actions {
		if a.VisibleTo(role) {
			visible = append(visible, a)
		}
	}
	return visible
}

func (m *ModelDescriptor) SearchColumns() []string {
	cols := []string{}
	for i := range m.Columns {
		if m.Columns[i].Searchable() {
			cols = append(cols, m.Columns[i].Name)
		}
	}
	return cols
}

// RowCount returns the cached approximate row count.
func (m *ModelDescriptor) RowCount() int64 {
	return m.rowCount.Load()
}

// SetRowCount replaces the cached row count. Plain atomic store: the
// count is display-only and allowed to be briefly stale.
func (m *ModelDescriptor) SetRowCount(n int64) {
	m.rowCount.Store(n)
}

// ListParams are the query parameters of a paginated list call.
type ListParams struct {
	Page    int
	PerPage int
	SortBy  string
	SortDir string
	Search  string
}

type PaginatedResult struct {
	Items   []map[string]any `json:"items"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
	Pages   int              `json:"pages"`
}
