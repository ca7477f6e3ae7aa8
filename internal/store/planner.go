package store

import (
	"context"
	"errors"
	"maps"

	"github.com/alfredjeanlab/rowstore/internal/client"
	"github.com/alfredjeanlab/rowstore/internal/model"
)

// CommitBatch is the result of one planning pass: at most one insert
// command followed by at most one update command, sent as one request.
type CommitBatch struct {
	Commands []client.Command
	// Records are the batch's records in command row order, inserts first.
	Records []*Record
	// Invalid lists dirty records left out because required fields are missing.
	Invalid []InvalidRecord
}

// InvalidRecord is a dirty record that was not sent, and why.
type InvalidRecord struct {
	Record *Record
	Err    *model.ValidationError
}

// Empty reports whether the batch has nothing to send.
func (b *CommitBatch) Empty() bool {
	return b == nil || len(b.Commands) == 0
}

// Inserts returns the number of rows in the insert command.
func (b *CommitBatch) Inserts() int {
	return b.count(client.CommandInsert)
}

// Updates returns the number of rows in the update command.
func (b *CommitBatch) Updates() int {
	return b.count(client.CommandUpdate)
}

func (b *CommitBatch) count(cmd client.CommandType) int {
	if b == nil {
		return 0
	}
	n := 0
	for _, c := range b.Commands {
		if c.Command == cmd {
			n += len(c.Rows)
		}
	}
	return n
}

func (b *CommitBatch) updateKeys() []any {
	var keys []any
	for _, c := range b.Commands {
		if c.Command != client.CommandUpdate {
			continue
		}
		for _, row := range c.Rows {
			for k, v := range row.OldKeys {
				if k != internalIDKey {
					keys = append(keys, v)
				}
			}
		}
	}
	return keys
}

// GetChanges plans the next commit. It considers the given records, or every
// dirty record when none are given, and skips records already part of an
// in-flight commit. Records missing a required field are left out and listed
// in the batch's Invalid. Every planned record is marked pending before
// GetChanges returns, so a second planning pass cannot pick it up again.
//
// Before-commit listeners run once the batch is built; if one vetoes,
// the records are released and ErrCommitVetoed is returned.
func (s *Store) GetChanges(records ...*Record) (*CommitBatch, error) {
	return s.getChanges(context.Background(), records)
}

func (s *Store) getChanges(ctx context.Context, records []*Record) (*CommitBatch, error) {
	if s.cfg.ReadOnly {
		return nil, ErrNotUpdatable
	}

	batch := s.plan(records)
	for _, inv := range batch.Invalid {
		s.logger.Debug("record left out of commit",
			"internal_id", inv.Record.internalID, "error", inv.Err)
	}
	if batch.Empty() {
		return batch, nil
	}

	if !s.fireBeforeCommit(ctx, batch) {
		s.release(batch.Records)
		return nil, ErrCommitVetoed
	}
	return batch, nil
}

func (s *Store) plan(candidates []*Record) *CommitBatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(candidates) == 0 {
		candidates = s.records
	}

	var (
		batch   = &CommitBatch{}
		inserts []client.CommandRow
		updates []client.CommandRow
		insRecs []*Record
		updRecs []*Record
	)
	for _, r := range candidates {
		if !s.owns(r) {
			continue
		}
		r.mu.Lock()
		if r.state != model.StateDirty {
			r.mu.Unlock()
			continue
		}
		if !s.cfg.NoValidationCheck {
			err := model.ValidateRequired(r.values, s.fields, s.columns, s.idName)
			var ve *model.ValidationError
			if errors.As(err, &ve) {
				r.mu.Unlock()
				batch.Invalid = append(batch.Invalid, InvalidRecord{Record: r, Err: ve})
				continue
			}
		}

		values := r.rowData()
		r.sent = maps.Clone(values)
		r.editedWhilePending = nil
		r.state = model.StatePending

		if r.phantom {
			if s.idName != "" && model.IsBlank(values[s.idName]) {
				delete(values, s.idName)
			}
			oldKeys := map[string]any{internalIDKey: r.internalID}
			if s.idName != "" {
				oldKeys[s.idName] = nil
			}
			inserts = append(inserts, client.CommandRow{Values: values, OldKeys: oldKeys})
			insRecs = append(insRecs, r)
		} else {
			updates = append(updates, client.CommandRow{
				Values:  values,
				OldKeys: map[string]any{s.idName: r.id},
			})
			updRecs = append(updRecs, r)
		}
		r.mu.Unlock()
	}

	if len(inserts) > 0 {
		batch.Commands = append(batch.Commands, s.command(client.CommandInsert, inserts))
	}
	if len(updates) > 0 {
		batch.Commands = append(batch.Commands, s.command(client.CommandUpdate, updates))
	}
	batch.Records = append(insRecs, updRecs...)
	return batch
}

func (s *Store) command(cmd client.CommandType, rows []client.CommandRow) client.Command {
	return client.Command{
		SchemaName: s.cfg.SchemaName,
		QueryName:  s.cfg.QueryName,
		Command:    cmd,
		Rows:       rows,
	}
}

// release returns pending records to the dirty state without applying
// anything.
func (s *Store) release(records []*Record) {
	for _, r := range records {
		r.mu.Lock()
		if r.state == model.StatePending {
			r.state = model.StateDirty
		}
		r.sent = nil
		r.editedWhilePending = nil
		r.mu.Unlock()
	}
}
