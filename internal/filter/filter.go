// Package filter turns filter predicates into the URL parameters understood
// by the query service: <region>.<column>~<type>=<value>.
package filter

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultRegion is the data region name used when none is given.
const DefaultRegion = "query"

// Type is a filter operator, named by its URL suffix.
type Type string

const (
	Equal              Type = "eq"
	NotEqual           Type = "neq"
	NotEqualOrNull     Type = "neqornull"
	GreaterThan        Type = "gt"
	GreaterThanOrEqual Type = "gte"
	LessThan           Type = "lt"
	LessThanOrEqual    Type = "lte"
	In                 Type = "in"
	NotIn              Type = "notin"
	Contains           Type = "contains"
	DoesNotContain     Type = "doesnotcontain"
	StartsWith         Type = "startswith"
	IsBlank            Type = "isblank"
	IsNotBlank         Type = "isnonblank"
)

// String returns the URL suffix of the filter type.
func (t Type) String() string {
	return string(t)
}

// HasValue reports whether the operator takes a value.
func (t Type) HasValue() bool {
	switch t {
	case IsBlank, IsNotBlank:
		return false
	}
	return true
}

// IsValid checks whether the filter type is a known value.
func (t Type) IsValid() bool {
	switch t {
	case Equal, NotEqual, NotEqualOrNull, GreaterThan, GreaterThanOrEqual,
		LessThan, LessThanOrEqual, In, NotIn, Contains, DoesNotContain,
		StartsWith, IsBlank, IsNotBlank:
		return true
	}
	return false
}

// Filter is one predicate on a column.
type Filter struct {
	Column string `json:"column"`
	Type   Type   `json:"type"`
	Value  any    `json:"value,omitempty"`
}

// New returns a filter on column.
func New(column string, t Type, value any) Filter {
	return Filter{Column: column, Type: t, Value: value}
}

// ParamName returns the URL parameter name for f in the given region.
func (f Filter) ParamName(region string) string {
	if region == "" {
		region = DefaultRegion
	}
	return region + "." + f.Column + "~" + string(f.Type)
}

// ParamValue returns the URL parameter value for f. Multi-valued operators
// join slice values with ';'.
func (f Filter) ParamValue() string {
	if !f.Type.HasValue() || f.Value == nil {
		return ""
	}
	switch v := f.Value.(type) {
	case []string:
		return strings.Join(v, ";")
	case []any:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ";")
	default:
		return fmt.Sprint(v)
	}
}

// AppendParams adds one parameter per filter to params. Repeated filters on
// the same column are all kept.
func AppendParams(params url.Values, region string, filters []Filter) {
	for _, f := range filters {
		if f.Column == "" {
			continue
		}
		params.Add(f.ParamName(region), f.ParamValue())
	}
}

// Parse reads a filter written as column~type=value (the CLI form).
// A missing ~type means equality.
func Parse(s string) (Filter, error) {
	name, value, hasValue := strings.Cut(s, "=")
	column, op, hasOp := strings.Cut(name, "~")
	column = strings.TrimSpace(column)
	if column == "" {
		return Filter{}, fmt.Errorf("filter %q: missing column", s)
	}
	t := Equal
	if hasOp {
		t = Type(strings.ToLower(strings.TrimSpace(op)))
		if !t.IsValid() {
			return Filter{}, fmt.Errorf("filter %q: unknown type %q", s, op)
		}
	}
	if t.HasValue() && !hasValue {
		return Filter{}, fmt.Errorf("filter %q: missing value", s)
	}
	f := Filter{Column: column, Type: t}
	if t.HasValue() {
		f.Value = value
	}
	return f, nil
}

// reservedQueryParams are query.* parameters that configure the request
// rather than filter it.
var reservedQueryParams = map[string]bool{
	"columns":             true,
	"containerFilterName": true,
	"ignoreFilter":        true,
	"maxRows":             true,
	"offset":              true,
	"param":               true,
	"queryName":           true,
	"showRows":            true,
	"sort":                true,
	"viewName":            true,
}

// IsFilterParam reports whether a parameter name (e.g. "query.Age~gt") is a
// filter rather than one of the reserved query.* settings.
func IsFilterParam(name string) bool {
	rest, ok := strings.CutPrefix(name, DefaultRegion+".")
	if !ok {
		return false
	}
	prefix, _, _ := strings.Cut(rest, ".")
	prefix, _, _ = strings.Cut(prefix, "~")
	return !reservedQueryParams[prefix]
}

// SortParam renders a sort on field; descending sorts get a "-" prefix.
func SortParam(field string, desc bool) string {
	if desc {
		return "-" + field
	}
	return field
}
