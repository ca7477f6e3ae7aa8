package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/rowstore/internal/ui"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named connection profiles",
	GroupID: "system",
	// Profiles live in a local file; no connection is needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	PersistentPostRun: func(cmd *cobra.Command, args []string) {},
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or replace a profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		r := Remote{URL: strings.TrimRight(args[1], "/")}
		f := cmd.Flags()
		r.Token, _ = f.GetString("token")
		r.Container, _ = f.GetString("container")
		r.Schema, _ = f.GetString("schema")
		r.Timeout, _ = f.GetString("timeout")
		r.NATSURL, _ = f.GetString("nats")
		r.Description, _ = f.GetString("description")
		if r.Timeout != "" {
			if _, err := r.timeout(); err != nil {
				return err
			}
		}

		err := updateRemotes(func(cfg *RemotesConfig) error {
			cfg.Remotes[name] = r
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q saved (%s)\n", name, r.URL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if _, _, err := cfg.Lookup(name); err != nil {
				return err
			}
			delete(cfg.Remotes, name)
			if cfg.Active == name {
				cfg.Active = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", name)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles; the active one is marked with *",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotes()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(cfg.Remotes) == 0 {
			fmt.Fprintln(out, "no remotes configured")
			return nil
		}

		color := ui.ShouldUseColor(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tURL\tCONTAINER\tSCHEMA\tTIMEOUT\tDESCRIPTION")
		for _, name := range cfg.Names() {
			r := cfg.Remotes[name]
			marker := "  "
			if name == cfg.Active {
				marker = ui.Accent.Render("*", color) + " "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\t%s\n", marker, name, r.URL, r.Container, r.Schema, r.Timeout, r.Description)
		}
		return w.Flush()
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Set the active profile (no args clears it)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if name != "" {
				if _, _, err := cfg.Lookup(name); err != nil {
					return err
				}
			}
			cfg.Active = name
			return nil
		})
		if err != nil {
			return err
		}
		if name == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "active remote cleared")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "active remote set to %q\n", name)
		}
		return nil
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a profile (defaults to the active one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotes()
		if err != nil {
			return err
		}
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		name, r, err := cfg.Lookup(name)
		if err != nil {
			return err
		}
		if name == cfg.Active {
			name += " (active)"
		}
		return printRemote(cmd.OutOrStdout(), name, r)
	},
}

// printRemote writes the profile's non-empty settings as "key: value"
// lines. The token is masked after its first characters.
func printRemote(out io.Writer, name string, r Remote) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, kv := range [][2]string{
		{"name", name},
		{"description", r.Description},
		{"url", r.URL},
		{"container", r.Container},
		{"schema", r.Schema},
		{"timeout", r.Timeout},
		{"token", maskToken(r.Token)},
		{"nats_url", r.NATSURL},
	} {
		if kv[1] != "" {
			fmt.Fprintf(w, "%s:\t%s\n", kv[0], kv[1])
		}
	}
	return w.Flush()
}

func maskToken(tok string) string {
	const visible = 4
	if len(tok) <= visible {
		return strings.Repeat("*", len(tok))
	}
	return tok[:visible] + strings.Repeat("*", len(tok)-visible)
}

func init() {
	f := remoteAddCmd.Flags()
	f.String("token", "", "bearer token")
	f.String("container", "", "default container path")
	f.String("schema", "", "default schema")
	f.String("timeout", "", "default per-request timeout, e.g. 30s")
	f.String("nats", "", "NATS URL for store events")
	f.String("description", "", "free-form description")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
