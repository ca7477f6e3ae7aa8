package store

import (
	"context"
	"slices"
	"sync"

	"github.com/alfredjeanlab/rowstore/internal/client"
	"github.com/alfredjeanlab/rowstore/internal/events"
)

// BeforeCommitEvent is delivered to before-commit listeners with the records
// about to be sent and the row payloads that will carry them.
type BeforeCommitEvent struct {
	Records  []*Record
	Commands []client.Command
}

// listeners holds the store's notification callbacks. They are always called
// without the store lock held, so they may call back into the store.
type listeners struct {
	mu              sync.Mutex
	beforeCommit    []func(*BeforeCommitEvent) bool
	commitComplete  []func(*CommitResult)
	commitException []func(*CommitError) bool
	load            []func(error)
}

// OnBeforeCommit registers fn to run before a batch is sent. Returning false
// vetoes the commit.
func (s *Store) OnBeforeCommit(fn func(*BeforeCommitEvent) bool) {
	s.listeners.mu.Lock()
	defer s.listeners.mu.Unlock()
	s.listeners.beforeCommit = append(s.listeners.beforeCommit, fn)
}

// OnCommitComplete registers fn to run after a commit or delete succeeds.
func (s *Store) OnCommitComplete(fn func(*CommitResult)) {
	s.listeners.mu.Lock()
	defer s.listeners.mu.Unlock()
	s.listeners.commitComplete = append(s.listeners.commitComplete, fn)
}

// OnCommitException registers fn to run when a commit fails. Returning true
// marks the error as handled and suppresses the store's own error log.
func (s *Store) OnCommitException(fn func(*CommitError) bool) {
	s.listeners.mu.Lock()
	defer s.listeners.mu.Unlock()
	s.listeners.commitException = append(s.listeners.commitException, fn)
}

// OnLoad registers fn to run after every load with its error, if any.
func (s *Store) OnLoad(fn func(error)) {
	s.listeners.mu.Lock()
	defer s.listeners.mu.Unlock()
	s.listeners.load = append(s.listeners.load, fn)
}

func (s *Store) fireBeforeCommit(ctx context.Context, batch *CommitBatch) bool {
	s.listeners.mu.Lock()
	fns := slices.Clone(s.listeners.beforeCommit)
	s.listeners.mu.Unlock()

	ev := &BeforeCommitEvent{Records: batch.Records, Commands: batch.Commands}
	for _, fn := range fns {
		if !fn(ev) {
			return false
		}
	}

	s.publish(ctx, events.TopicCommitBefore, events.CommitBefore{
		Source:  s.Source(),
		Inserts: batch.Inserts(),
		Updates: batch.Updates(),
		Keys:    batch.updateKeys(),
	})
	return true
}

func (s *Store) fireCommitComplete(ctx context.Context, res *CommitResult) {
	s.listeners.mu.Lock()
	fns := slices.Clone(s.listeners.commitComplete)
	s.listeners.mu.Unlock()

	for _, fn := range fns {
		fn(res)
	}
	if res.Deleted != nil {
		return
	}
	s.publish(ctx, events.TopicCommitComplete, events.CommitComplete{
		Source:   s.Source(),
		Inserted: res.Inserted,
		Updated:  res.Updated,
		Keys:     res.keys(),
	})
}

func (s *Store) fireCommitException(ctx context.Context, cerr *CommitError) {
	s.listeners.mu.Lock()
	fns := slices.Clone(s.listeners.commitException)
	s.listeners.mu.Unlock()

	handled := false
	for _, fn := range fns {
		if fn(cerr) {
			handled = true
		}
	}
	if !handled {
		s.logger.Error("commit failed", "records", len(cerr.Records), "error", cerr.Message)
	}
	s.publish(ctx, events.TopicCommitException, events.CommitException{
		Source:  s.Source(),
		Message: cerr.Message,
		Records: len(cerr.Records),
	})
}

func (s *Store) fireLoad(ctx context.Context, rowCount int, err error) {
	s.listeners.mu.Lock()
	fns := slices.Clone(s.listeners.load)
	s.listeners.mu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
	ev := events.Loaded{Source: s.Source(), RowCount: rowCount}
	if err != nil {
		ev.Error = err.Error()
	}
	s.publish(ctx, events.TopicLoaded, ev)
}

// publish sends a store event to the configured publisher. Failures are
// logged and otherwise ignored.
func (s *Store) publish(ctx context.Context, topic string, event any) {
	subject := events.Subject(topic, s.Source())
	if err := s.publisher.Publish(context.WithoutCancel(ctx), subject, event); err != nil {
		s.logger.Warn("publishing event", "subject", subject, "error", err)
	}
}
