package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/rowstore/internal/client"
	"github.com/alfredjeanlab/rowstore/internal/config"
	"github.com/alfredjeanlab/rowstore/internal/events"
	"github.com/alfredjeanlab/rowstore/internal/store"
)

var (
	queryName  string
	viewName   string
	jsonOutput bool
	verbose    bool

	// Resolved by connect.
	conn       settings
	schemaName string

	envConfig   *config.Config
	queryClient client.QueryClient
	publisher   events.Publisher
	logger      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "rsctl <command>",
	Short:         "Read and edit query service tables from the command line",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return connect(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		disconnect()
	},
}

// connect resolves settings from flags, the environment and the active
// remote, and opens the query client.
func connect(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	envConfig = cfg

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := resolveSettings(cmd.Flags(), cfg, loadActiveRemote())
	if err != nil {
		return err
	}
	conn = st
	schemaName = st.Schema
	logger.Debug("connecting", "url", st.URL, "container", st.Container, "timeout", st.Timeout)
	queryClient = client.NewHTTPClient(st.URL, st.Token)

	publisher = &events.NoopPublisher{}
	if st.NATSURL != "" {
		p, err := events.NewNATSPublisher(st.NATSURL)
		if err != nil {
			logger.Warn("events disabled", "nats_url", st.NATSURL, "error", err)
		} else {
			publisher = p
		}
	}
	return nil
}

func disconnect() {
	if publisher != nil {
		publisher.Close()
	}
	if queryClient != nil {
		queryClient.Close()
	}
}

// newStore builds a store for the --schema/--query flags.
func newStore(cfg store.Config) (*store.Store, error) {
	if schemaName == "" || (queryName == "" && cfg.SQL == "") {
		return nil, fmt.Errorf("--schema and --query are required")
	}
	cfg.SchemaName = schemaName
	if cfg.SQL == "" {
		cfg.QueryName = queryName
	}
	cfg.ViewName = viewName
	cfg.ContainerPath = conn.Container
	cfg.Timeout = conn.Timeout
	cfg.Publisher = publisher
	cfg.Logger = logger
	return store.New(queryClient, cfg), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	pf := rootCmd.PersistentFlags()
	addConnectionFlags(pf)
	pf.StringVarP(&queryName, "query", "q", "", "query or table name")
	pf.StringVar(&viewName, "view", "", "saved view name")
	pf.BoolVar(&jsonOutput, "json", false, "output as JSON")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log requests and store activity to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "rows", Title: "Rows:"},
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Rows
	rootCmd.AddCommand(rowsCmd)
	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)

	// Data
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(watchCmd)

	// System
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
