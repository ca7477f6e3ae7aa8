package model

import (
	"strings"
)

// FieldType is the semantic type of a column.
type FieldType string

const (
	FieldTypeInt     FieldType = "int"
	FieldTypeFloat   FieldType = "float"
	FieldTypeString  FieldType = "string"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
)

// String returns the string representation of the field type.
func (t FieldType) String() string {
	return string(t)
}

// IsValid checks whether the field type is a known value.
func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeInt, FieldTypeFloat, FieldTypeString, FieldTypeBoolean, FieldTypeDate:
		return true
	}
	return false
}

// ParseFieldType maps the type names used by the query service (and a few
// common aliases) onto a FieldType. Unknown names are treated as strings.
func ParseFieldType(s string) FieldType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "long":
		return FieldTypeInt
	case "float", "double", "number":
		return FieldTypeFloat
	case "boolean", "bool":
		return FieldTypeBoolean
	case "date", "datetime", "timestamp":
		return FieldTypeDate
	default:
		return FieldTypeString
	}
}

// LookupKey identifies a shared lookup store. Two fields whose lookups
// resolve to the same key share one store.
type LookupKey struct {
	Schema        string
	Query         string
	KeyColumn     string
	DisplayColumn string
}

// String joins the key parts the way the query service names lookup stores.
func (k LookupKey) String() string {
	return strings.Join([]string{k.Schema, k.Query, k.KeyColumn, k.DisplayColumn}, "||")
}

// Lookup describes the foreign table a column points at.
type Lookup struct {
	Schema        string `json:"schemaName"`
	Query         string `json:"queryName"`
	KeyColumn     string `json:"keyColumn"`
	DisplayColumn string `json:"displayColumn"`
	Container     string `json:"containerPath,omitempty"`
	ViewName      string `json:"viewName,omitempty"`
}

// Key returns the registry key for this lookup.
func (l *Lookup) Key() LookupKey {
	return LookupKey{
		Schema:        l.Schema,
		Query:         l.Query,
		KeyColumn:     l.KeyColumn,
		DisplayColumn: l.DisplayColumn,
	}
}

// FieldMeta is the static description of one column.
type FieldMeta struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Hidden   bool      `json:"hidden,omitempty"`
	Caption  string    `json:"caption,omitempty"`
	Lookup   *Lookup   `json:"lookup,omitempty"`
}

// IsLookup reports whether the field references a lookup table.
func (f *FieldMeta) IsLookup() bool {
	return f.Lookup != nil && f.Lookup.Query != ""
}

// Fields is an ordered, name-indexed FieldMeta table. It is built once and
// treated as read-only afterwards.
type Fields struct {
	list   []FieldMeta
	byName map[string]int
}

// NewFields builds a table from the given metadata. Later duplicates of a
// name are dropped so each name maps to exactly one FieldMeta.
func NewFields(metas []FieldMeta) *Fields {
	f := &Fields{byName: make(map[string]int, len(metas))}
	for _, m := range metas {
		if m.Name == "" {
			continue
		}
		if _, dup := f.byName[m.Name]; dup {
			continue
		}
		if !m.Type.IsValid() {
			m.Type = ParseFieldType(string(m.Type))
		}
		f.byName[m.Name] = len(f.list)
		f.list = append(f.list, m)
	}
	return f
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.list)
}

// Get returns the metadata for name, or nil.
func (f *Fields) Get(name string) *FieldMeta {
	if f == nil {
		return nil
	}
	i, ok := f.byName[name]
	if !ok {
		return nil
	}
	return &f.list[i]
}

// Names returns the field names in table order.
func (f *Fields) Names() []string {
	if f == nil {
		return nil
	}
	names := make([]string, len(f.list))
	for i := range f.list {
		names[i] = f.list[i].Name
	}
	return names
}

// All returns a copy of the table's metadata in order.
func (f *Fields) All() []FieldMeta {
	if f == nil {
		return nil
	}
	out := make([]FieldMeta, len(f.list))
	copy(out, f.list)
	return out
}

// Canonical returns the table's spelling of name, matching case-insensitively
// when there is no exact match. It returns "" if no field matches.
func (f *Fields) Canonical(name string) string {
	if f == nil {
		return ""
	}
	if _, ok := f.byName[name]; ok {
		return name
	}
	for i := range f.list {
		if strings.EqualFold(f.list[i].Name, name) {
			return f.list[i].Name
		}
	}
	return ""
}

// Equal reports whether two tables describe the same fields in the same order.
func (f *Fields) Equal(o *Fields) bool {
	if f.Len() != o.Len() {
		return false
	}
	if f.Len() == 0 {
		return true
	}
	for i := range f.list {
		a, b := f.list[i], o.list[i]
		if a.Name != b.Name || a.Type != b.Type || a.Required != b.Required {
			return false
		}
		if a.IsLookup() != b.IsLookup() {
			return false
		}
		if a.IsLookup() && a.Lookup.Key() != b.Lookup.Key() {
			return false
		}
	}
	return true
}

// ColumnModel is the per-column display and edit information returned
// alongside the rows of a load response.
type ColumnModel struct {
	DataIndex string `json:"dataIndex"`
	Header    string `json:"header,omitempty"`
	Hidden    bool   `json:"hidden,omitempty"`
	Required  bool   `json:"required,omitempty"`
	Editable  bool   `json:"editable,omitempty"`
}
