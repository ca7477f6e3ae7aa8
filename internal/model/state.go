package model

// RecordState is the mutation state of a cached row.
type RecordState int

const (
	// StateClean means the row matches the last committed snapshot.
	StateClean RecordState = iota
	// StateDirty means the row has local changes not yet sent.
	StateDirty
	// StatePending means the row is part of an in-flight commit.
	StatePending
)

// String returns the string representation of the state.
func (s RecordState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StatePending:
		return "pending"
	}
	return "unknown"
}
