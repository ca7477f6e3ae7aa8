package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/rowstore/internal/model"
	"github.com/alfredjeanlab/rowstore/internal/store"
	"github.com/alfredjeanlab/rowstore/internal/ui"
)

var insertCmd = &cobra.Command{
	Use:     "insert",
	Short:   "Insert a row",
	GroupID: "rows",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sets, _ := cmd.Flags().GetStringArray("set")
		values, err := parseAssignments(sets)
		if err != nil {
			return err
		}

		s, err := newStore(store.Config{MaxRows: 1})
		if err != nil {
			return err
		}
		// One row is enough to learn the fields and key column.
		if err := s.Load(cmd.Context()); err != nil {
			return err
		}
		r, err := s.AddRecord(values, -1)
		if err != nil {
			return err
		}
		if err := commit(cmd, s); err != nil {
			return err
		}
		return printRecord(cmd.OutOrStdout(), s, r)
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <key>",
	Short:   "Update a row by primary key",
	GroupID: "rows",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sets, _ := cmd.Flags().GetStringArray("set")
		if len(sets) == 0 {
			return fmt.Errorf("nothing to update; pass --set name=value")
		}
		values, err := parseAssignments(sets)
		if err != nil {
			return err
		}

		s, r, err := loadByKey(cmd, args[0])
		if err != nil {
			return err
		}
		if err := s.SetValues(r, values); err != nil {
			return err
		}
		if !r.IsDirty() {
			fmt.Fprintln(cmd.ErrOrStderr(), "no changes")
			return printRecord(cmd.OutOrStdout(), s, r)
		}
		if err := commit(cmd, s); err != nil {
			return err
		}
		return printRecord(cmd.OutOrStdout(), s, r)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <key>...",
	Short:   "Delete rows by primary key",
	GroupID: "rows",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStore(store.Config{ShowAll: true})
		if err != nil {
			return err
		}
		if err := s.Load(cmd.Context()); err != nil {
			return err
		}
		var records []*store.Record
		for _, key := range args {
			r := s.GetByID(key)
			if r == nil {
				return fmt.Errorf("no row with %s %s", s.IDName(), key)
			}
			records = append(records, r)
		}
		if err := s.DeleteRecords(cmd.Context(), records); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows\n", len(records))
		return nil
	},
}

// loadByKey loads the store filtered to one primary key and returns the row.
func loadByKey(cmd *cobra.Command, key string) (*store.Store, *store.Record, error) {
	s, err := newStore(store.Config{ShowAll: true})
	if err != nil {
		return nil, nil, err
	}
	if err := s.Load(cmd.Context()); err != nil {
		return nil, nil, err
	}
	r := s.GetByID(key)
	if r == nil {
		return nil, nil, fmt.Errorf("no row with %s %s", s.IDName(), key)
	}
	return s, r, nil
}

// commit sends the store's changes and reports validation and server
// errors per field.
func commit(cmd *cobra.Command, s *store.Store) error {
	batch, err := s.GetChanges()
	if err != nil {
		return err
	}
	if len(batch.Invalid) > 0 {
		for _, inv := range batch.Invalid {
			printFieldErrors(cmd, inv.Err)
		}
		return fmt.Errorf("row is not valid")
	}
	_, err = s.Commit(cmd.Context(), batch)
	var cerr *store.CommitError
	if errors.As(err, &cerr) {
		for _, r := range cerr.Records {
			for field, msgs := range r.ServerErrors() {
				for _, m := range msgs {
					printFieldError(cmd, field, m)
				}
			}
		}
	}
	return err
}

func printFieldErrors(cmd *cobra.Command, ve *model.ValidationError) {
	for _, fe := range ve.Errors {
		printFieldError(cmd, fe.Field, fe.Message)
	}
}

func printFieldError(cmd *cobra.Command, field, msg string) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "  %s: %s\n", ui.Error.Render(field, ui.ShouldUseColor(out)), msg)
}

func init() {
	insertCmd.Flags().StringArray("set", nil, "field value as name=value (repeatable)")
	updateCmd.Flags().StringArray("set", nil, "field value as name=value (repeatable)")
}
