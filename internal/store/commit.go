package store

import (
	"context"
	"errors"
	"maps"

	"github.com/alfredjeanlab/rowstore/internal/client"
	"github.com/alfredjeanlab/rowstore/internal/idgen"
	"github.com/alfredjeanlab/rowstore/internal/model"
)

// CommitResult describes a successful commit or delete.
type CommitResult struct {
	// Records are the reconciled records, inserts first.
	Records  []*Record
	Inserted int
	Updated  int
	// Deleted holds the keys removed by DeleteRecords.
	Deleted []any
}

func (r *CommitResult) keys() []any {
	keys := make([]any, 0, len(r.Records))
	for _, rec := range r.Records {
		keys = append(keys, rec.ID())
	}
	return keys
}

// CommitError is returned when the server rejects a batch. The batch's
// records are dirty again and can be committed once more.
type CommitError struct {
	Message string
	Records []*Record
	// RowErrors are the server's per-row field errors, if it sent any.
	RowErrors []client.RowError
	Err       error
}

func (e *CommitError) Error() string {
	return "commit failed: " + e.Message
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// CommitChanges plans and commits every dirty record.
func (s *Store) CommitChanges(ctx context.Context) (*CommitResult, error) {
	batch, err := s.getChanges(ctx, nil)
	if err != nil {
		return nil, err
	}
	return s.Commit(ctx, batch)
}

// Commit sends batch as one saveRows request and reconciles the result.
// An empty batch is a no-op. On failure every record of the batch is
// released back to dirty and a *CommitError is returned after the
// commit-exception listeners have run.
func (s *Store) Commit(ctx context.Context, batch *CommitBatch) (*CommitResult, error) {
	if batch.Empty() {
		return &CommitResult{}, nil
	}

	resp, err := s.client.SaveRows(ctx, &client.SaveRowsRequest{
		ContainerPath: s.cfg.ContainerPath,
		Commands:      batch.Commands,
		Timeout:       s.cfg.Timeout,
	})
	if err != nil {
		cerr := &CommitError{Message: err.Error(), Records: batch.Records, Err: err}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			cerr.Message = apiErr.Message
			cerr.RowErrors = apiErr.Errors
		}
		s.release(batch.Records)
		s.applyRowErrors(batch.Records, cerr.RowErrors)
		s.fireCommitException(ctx, cerr)
		return nil, cerr
	}

	res := s.reconcile(batch, resp)
	s.logger.Info("committed", "inserted", res.Inserted, "updated", res.Updated)
	s.fireCommitComplete(ctx, res)
	return res, nil
}

// reconcile applies the server's result rows to the batch's records.
// Result rows are matched by their old key, or by internal id for inserted
// rows; rows that match no record of the batch are skipped.
func (s *Store) reconcile(batch *CommitBatch, resp *client.SaveRowsResponse) *CommitResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	inBatch := make(map[*Record]bool, len(batch.Records))
	for _, r := range batch.Records {
		inBatch[r] = true
	}

	res := &CommitResult{}
	done := make(map[*Record]bool, len(batch.Records))
	for _, cr := range resp.Result {
		for _, row := range cr.Rows {
			r := s.match(row.OldKeys)
			if r == nil || !inBatch[r] || done[r] || !s.owns(r) {
				s.logger.Debug("result row matches no pending record", "old_keys", row.OldKeys)
				continue
			}
			s.applyResult(r, row.Values)
			done[r] = true
		}
	}

	// The server accepted the whole batch, so updates it did not echo are
	// committed as sent. A new record needs its key back to be committed;
	// without one it stays new and dirty. Records a reload dropped from the
	// cache are only released.
	inserts := batch.Inserts()
	for i, r := range batch.Records {
		switch {
		case done[r]:
		case !s.owns(r):
			detach(r)
		case i < inserts && s.needsKey(r):
			s.logger.Warn("inserted row not returned by the server", "internal_id", r.internalID)
			s.release([]*Record{r})
		default:
			s.applyResult(r, nil)
		}
		if i < inserts {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	res.Records = batch.Records
	return res
}

// match finds the record a result row belongs to. Callers hold s.mu.
func (s *Store) match(oldKeys map[string]any) *Record {
	if s.idName != "" {
		if v := oldKeys[s.idName]; !model.IsBlank(v) {
			if r := s.byKey[model.KeyString(v)]; r != nil {
				return r
			}
		}
	}
	if id, ok := oldKeys[internalIDKey].(string); ok && idgen.IsInternalID(id) {
		return s.byInternal[id]
	}
	return nil
}

// needsKey reports whether r has no key yet and would need the server to
// assign one. Callers hold s.mu.
func (s *Store) needsKey(r *Record) bool {
	if s.idName == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phantom && model.IsBlank(r.values[s.idName])
}

// detach clears the commit state of a record that is no longer cached.
func detach(r *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == model.StatePending {
		r.state = model.StateClean
	}
	r.sent = nil
	r.editedWhilePending = nil
}

// applyResult overwrites the fields the server returned, moves the record to
// its new key if that changed, and marks it committed. Fields edited while
// the commit was in flight keep their local value and leave the record dirty.
// Callers hold s.mu.
func (s *Store) applyResult(r *Record, returned map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	committed := r.sent
	if committed == nil {
		committed = maps.Clone(r.values)
	}
	for k, v := range returned {
		name := s.fields.Canonical(k)
		if name == "" {
			if r.extended == nil {
				r.extended = make(map[string]any)
			}
			r.extended[k] = v
			continue
		}
		if cv, err := s.fields.Get(name).Convert(v); err == nil {
			v = cv
		}
		committed[name] = v
		if r.editedWhilePending[name] {
			continue
		}
		r.values[name] = v
		delete(r.display, name)
	}

	for k, v := range committed {
		r.original[k] = v
	}

	if s.idName != "" {
		newID := r.values[s.idName]
		if r.editedWhilePending[s.idName] {
			newID = committed[s.idName]
		}
		if !model.IsBlank(newID) && (r.phantom || model.KeyString(newID) != model.KeyString(r.id)) {
			if r.id != nil && s.byKey[model.KeyString(r.id)] == r {
				delete(s.byKey, model.KeyString(r.id))
			}
			r.id = newID
			s.byKey[model.KeyString(newID)] = r
		}
	}
	r.phantom = false

	r.serverErrors = nil
	r.sent = nil
	if len(r.editedWhilePending) > 0 && !r.matchesOriginal() {
		r.state = model.StateDirty
	} else {
		r.state = model.StateClean
	}
	r.editedWhilePending = nil
}

// applyRowErrors attaches the server's per-row errors to the records they
// refer to. Row numbers are 1-based positions in the batch.
func (s *Store) applyRowErrors(records []*Record, rowErrors []client.RowError) {
	for _, re := range rowErrors {
		i := re.RowNumber - 1
		if i < 0 || i >= len(records) {
			continue
		}
		r := records[i]
		r.mu.Lock()
		if r.serverErrors == nil {
			r.serverErrors = make(map[string][]string)
		}
		for _, issue := range re.Errors {
			r.serverErrors[issue.Field] = append(r.serverErrors[issue.Field], issue.Message)
		}
		r.mu.Unlock()
	}
}
