package store

import (
	"maps"
	"sync"
	"time"

	"github.com/alfredjeanlab/rowstore/internal/model"
)

// internalIDKey is the oldKeys entry that lets the server echo back which
// phantom row a result belongs to.
const internalIDKey = "_internalId"

// Record is one cached row. Field values are read through the accessor
// methods; changes go through the owning Store so that state and index stay
// consistent.
type Record struct {
	mu sync.RWMutex

	owner      *Store
	id         any
	internalID string

	values   map[string]any    // keyed by FieldMeta name
	extended map[string]any    // joined or unknown columns, never validated or sent
	display  map[string]string // server display values, dropped when a field changes
	original map[string]any    // last committed snapshot

	state   model.RecordState
	phantom bool

	// Set while Pending: the row payload that was sent, and fields edited
	// locally after it was sent.
	sent               map[string]any
	editedWhilePending map[string]bool

	serverErrors map[string][]string
}

// ID returns the primary-key value. It is nil for a phantom record.
func (r *Record) ID() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

// InternalID returns the client-side id that identifies the record until
// (and after) the server assigns a key.
func (r *Record) InternalID() string {
	return r.internalID
}

// Get returns the value of a field, falling back to the extended values for
// columns that are not part of the field table.
func (r *Record) Get(name string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.values[name]; ok {
		return v
	}
	return r.extended[name]
}

// Extended returns the value of a joined or unknown column.
func (r *Record) Extended(name string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.extended[name]
}

// Values returns a copy of the field values.
func (r *Record) Values() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.values)
}

// DisplayValue returns the server's display value for a field, or the
// formatted raw value when there is none.
func (r *Record) DisplayValue(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.display[name]; ok {
		return d
	}
	if v, ok := r.values[name]; ok {
		return model.FormatValue(v)
	}
	return model.FormatValue(r.extended[name])
}

// State returns the record's mutation state.
func (r *Record) State() model.RecordState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// IsNew reports whether the record has never been inserted on the server.
func (r *Record) IsNew() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phantom
}

// IsDirty reports whether the record has changes the server has not
// acknowledged yet. Pending records are dirty.
func (r *Record) IsDirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state != model.StateClean
}

// SaveInProgress reports whether the record is part of an in-flight commit.
func (r *Record) SaveInProgress() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state == model.StatePending
}

// Changes returns the fields whose value differs from the last committed
// snapshot. For a phantom record that is every non-nil field.
func (r *Record) Changes() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any)
	for k, v := range r.values {
		if r.phantom {
			if v != nil {
				out[k] = v
			}
			continue
		}
		if !sameValue(v, r.original[k]) {
			out[k] = v
		}
	}
	return out
}

// ServerErrors returns the field errors the server reported for this record
// on the last failed commit.
func (r *Record) ServerErrors() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.serverErrors))
	for k, v := range r.serverErrors {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// The helpers below expect r.mu to be held.

// rowData is the payload sent for the record: every field value, with empty
// strings sent as null.
func (r *Record) rowData() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		if s, ok := v.(string); ok && s == "" {
			v = nil
		}
		out[k] = v
	}
	return out
}

// matchesOriginal reports whether every field equals the committed snapshot.
func (r *Record) matchesOriginal() bool {
	for k, v := range r.values {
		if !sameValue(v, r.original[k]) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if _, ok := b.(time.Time); ok {
		return false
	}
	switch a.(type) {
	case nil, string, bool, int64, float64:
		return a == b
	}
	return model.KeyString(a) == model.KeyString(b)
}
