package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/rowstore/internal/events"
	"github.com/alfredjeanlab/rowstore/internal/store"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Print store events, or re-list rows whenever they change",
	GroupID: "data",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		showRows, _ := cmd.Flags().GetBool("rows")
		debounce, _ := cmd.Flags().GetDuration("debounce")

		url := conn.NATSURL
		if url == "" {
			return fmt.Errorf("no NATS URL; set --nats, ROWSTORE_NATS_URL or add one to the remote")
		}

		var s *store.Store
		if showRows {
			var err error
			if s, err = loadStore(cmd.Context(), cmd); err != nil {
				return err
			}
			if err := printRecords(cmd.OutOrStdout(), s, s.Records()); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		reconnectCh := make(chan struct{}, 1)
		sub, err := events.NewNATSSubscriber(url,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats reconnected")
				select {
				case reconnectCh <- struct{}{}:
				default:
				}
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(events.TopicAll)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		defer cancel()

		return watchLoop(ctx, cmd.OutOrStdout(), ch, reconnectCh, s, debounce)
	},
}

// watchLoop prints matching events. With a store, it reloads and re-lists
// the rows once events stop arriving for the debounce interval, and
// immediately after a reconnect.
func watchLoop(ctx context.Context, out io.Writer, ch <-chan events.Message, reconnectCh <-chan struct{}, s *store.Store, debounce time.Duration) error {
	src := events.Source{Schema: schemaName, Query: queryName}
	filtered := src.Schema != "" || src.Query != ""

	timer := time.NewTimer(0)
	timer.Stop()
	select {
	case <-timer.C:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if filtered && !events.ForSource(msg.Subject, src) {
				continue
			}
			if s == nil {
				fmt.Fprintf(out, "%s %s %s\n", time.Now().Format(time.TimeOnly), msg.Subject, msg.Data)
				continue
			}
			// Skip load events, including the ones our reloads publish.
			if strings.HasPrefix(msg.Subject, events.TopicLoaded) {
				continue
			}
			timer.Reset(debounce)
		case <-reconnectCh:
			if s != nil {
				timer.Reset(0)
			}
		case <-timer.C:
			if err := s.Load(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if err := printRecords(out, s, s.Records()); err != nil {
				return err
			}
		}
	}
}

func init() {
	addQueryFlags(watchCmd)
	watchCmd.Flags().Bool("rows", false, "reload and print the rows after changes")
	watchCmd.Flags().Duration("debounce", 200*time.Millisecond, "quiet period before reloading")
}
