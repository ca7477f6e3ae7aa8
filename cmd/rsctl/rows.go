package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/rowstore/internal/filter"
	"github.com/alfredjeanlab/rowstore/internal/store"
)

var rowsCmd = &cobra.Command{
	Use:     "rows",
	Short:   "List rows of a query",
	GroupID: "rows",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := queryConfig(cmd)
		if err != nil {
			return err
		}
		sql, _ := cmd.Flags().GetString("sql")
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		cfg.SQL = sql
		cfg.ShowAll = all
		cfg.MaxRows = limit
		cfg.Offset = offset

		s, err := newStore(cfg)
		if err != nil {
			return err
		}
		if err := s.Load(cmd.Context()); err != nil {
			return err
		}
		return printRecords(cmd.OutOrStdout(), s, s.Records())
	},
}

// queryConfig reads the filter, sort and parameter flags shared by the
// commands that select rows.
func queryConfig(cmd *cobra.Command) (store.Config, error) {
	var cfg store.Config
	raw, _ := cmd.Flags().GetStringArray("filter")
	for _, r := range raw {
		f, err := filter.Parse(r)
		if err != nil {
			return cfg, err
		}
		cfg.Filters = append(cfg.Filters, f)
	}

	sort, _ := cmd.Flags().GetString("sort")
	cfg.Sort = sort

	params, _ := cmd.Flags().GetStringArray("param")
	for _, p := range params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return cfg, fmt.Errorf("invalid parameter %q, want name=value", p)
		}
		if cfg.Parameters == nil {
			cfg.Parameters = make(map[string]string)
		}
		cfg.Parameters[name] = value
	}

	cfg.ContainerFilter, _ = cmd.Flags().GetString("container-filter")
	cfg.IgnoreFilter, _ = cmd.Flags().GetBool("ignore-filter")
	return cfg, nil
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("filter", "f", nil, "filter as column~type=value (repeatable)")
	cmd.Flags().String("sort", "", "sort columns, comma separated; prefix - for descending")
	cmd.Flags().StringArray("param", nil, "query parameter as name=value (repeatable)")
	cmd.Flags().String("container-filter", "", "container filter name")
	cmd.Flags().Bool("ignore-filter", false, "ignore the saved view's filters")
}

// loadStore builds and loads a store with the query flags of cmd.
func loadStore(ctx context.Context, cmd *cobra.Command) (*store.Store, error) {
	cfg, err := queryConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg.ShowAll = true
	s, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func init() {
	addQueryFlags(rowsCmd)
	rowsCmd.Flags().String("sql", "", "run a SQL select instead of --query (read-only)")
	rowsCmd.Flags().Bool("all", false, "return every row")
	rowsCmd.Flags().Int("limit", 100, "maximum number of rows to return")
	rowsCmd.Flags().Int("offset", 0, "offset for pagination")
}
