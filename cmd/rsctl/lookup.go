package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/rowstore/internal/model"
	"github.com/alfredjeanlab/rowstore/internal/store"
)

var lookupCmd = &cobra.Command{
	Use:     "lookup <field>",
	Short:   "List the options of a lookup column",
	GroupID: "data",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		includeNull, _ := cmd.Flags().GetBool("include-null")

		s, err := newStore(store.Config{MaxRows: 1})
		if err != nil {
			return err
		}
		if err := s.Load(cmd.Context()); err != nil {
			return err
		}
		l := s.GetLookupStore(args[0], includeNull)
		if l == nil {
			return fmt.Errorf("%s is not a lookup column of %s.%s", args[0], schemaName, queryName)
		}
		if err := l.Load(cmd.Context()); err != nil {
			return err
		}
		return printLookup(cmd, l)
	},
}

func printLookup(cmd *cobra.Command, l *store.Lookup) error {
	key := l.Key()
	display := key.DisplayColumn
	if display == "" {
		display = key.KeyColumn
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		type option struct {
			Key     any    `json:"key"`
			Display string `json:"display"`
		}
		opts := []option{}
		for _, r := range l.Records() {
			opts = append(opts, option{Key: r.Get(key.KeyColumn), Display: model.FormatValue(r.Get(display))})
		}
		data, err := json.MarshalIndent(opts, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tDISPLAY")
	for _, r := range l.Records() {
		fmt.Fprintf(w, "%s\t%s\n", model.FormatValue(r.Get(key.KeyColumn)), model.FormatValue(r.Get(display)))
	}
	return w.Flush()
}

func init() {
	lookupCmd.Flags().Bool("include-null", false, "list the empty option first")
}
