package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/alfredjeanlab/rowstore/internal/config"
)

// settings are the connection and store defaults a command runs with.
type settings struct {
	URL       string
	Token     string
	Container string
	Schema    string
	NATSURL   string
	Timeout   time.Duration
}

// addConnectionFlags registers the flags resolveSettings reads.
func addConnectionFlags(fs *pflag.FlagSet) {
	fs.String("url", "", "query service base URL (default $ROWSTORE_URL or the active remote)")
	fs.String("token", "", "bearer token (default $ROWSTORE_TOKEN or the active remote)")
	fs.StringP("container", "c", "/", "container path (default $ROWSTORE_CONTAINER or the active remote)")
	fs.StringP("schema", "s", "", "schema name (default the active remote's)")
	fs.Duration("timeout", 30*time.Second, "per-request timeout (default $ROWSTORE_TIMEOUT or the active remote)")
	fs.String("nats", "", "NATS URL for store events (default $ROWSTORE_NATS_URL or the active remote)")
}

// resolveSettings merges, per setting, a flag the user set, then the
// environment, then the remote profile, then the flag default.
func resolveSettings(fs *pflag.FlagSet, env *config.Config, remote Remote) (settings, error) {
	flag := func(name string) string {
		if !fs.Changed(name) {
			return ""
		}
		v, _ := fs.GetString(name)
		return v
	}
	envSet := func(key string) bool { return os.Getenv(key) != "" }

	st := settings{
		URL:     firstNonEmpty(flag("url"), env.URL, remote.URL),
		Token:   firstNonEmpty(flag("token"), env.Token, remote.Token),
		NATSURL: firstNonEmpty(flag("nats"), env.NATSURL, remote.NATSURL),
		Schema:  firstNonEmpty(flag("schema"), remote.Schema),
	}

	envContainer := ""
	if envSet("ROWSTORE_CONTAINER") {
		envContainer = env.Container
	}
	defContainer, _ := fs.GetString("container")
	st.Container = firstNonEmpty(flag("container"), envContainer, remote.Container, defContainer)

	switch {
	case fs.Changed("timeout"):
		st.Timeout, _ = fs.GetDuration("timeout")
	case envSet("ROWSTORE_TIMEOUT"):
		st.Timeout = env.Timeout
	case remote.Timeout != "":
		d, err := remote.timeout()
		if err != nil {
			return st, err
		}
		st.Timeout = d
	default:
		st.Timeout, _ = fs.GetDuration("timeout")
	}

	if st.URL == "" {
		return st, fmt.Errorf("no server URL; set --url, ROWSTORE_URL or run 'rsctl remote use <name>'")
	}
	return st, nil
}
