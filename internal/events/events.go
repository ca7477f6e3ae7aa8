// Package events carries record store notifications to other processes.
package events

import (
	"context"
)

// Event topic constants
const (
	TopicLoaded = "rowstore.load"

	// Commit lifecycle, in the order a store emits them.
	TopicCommitBefore    = "rowstore.commit.before"
	TopicCommitComplete  = "rowstore.commit.complete"
	TopicCommitException = "rowstore.commit.exception"

	TopicRowsDeleted = "rowstore.rows.deleted"

	// TopicAll matches every store topic.
	TopicAll = "rowstore.>"
)

// Event types

// Source names the query a store event came from.
type Source struct {
	Container string `json:"container,omitempty"`
	Schema    string `json:"schema"`
	Query     string `json:"query"`
}

type Loaded struct {
	Source
	RowCount int    `json:"row_count"`
	Error    string `json:"error,omitempty"`
}

type CommitBefore struct {
	Source
	Inserts int   `json:"inserts"`
	Updates int   `json:"updates"`
	Keys    []any `json:"keys,omitempty"` // keys of updated rows
}

type CommitComplete struct {
	Source
	Inserted int   `json:"inserted"`
	Updated  int   `json:"updated"`
	Keys     []any `json:"keys,omitempty"` // keys after reconciliation
}

type CommitException struct {
	Source
	Message string `json:"message"`
	Records int    `json:"records"`
}

type RowsDeleted struct {
	Source
	Keys []any `json:"keys"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
