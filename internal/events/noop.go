package events

import "context"

// NoopPublisher discards events. Stores fall back to it when no publisher is
// configured, and the CLI uses it when no NATS URL is set.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

// Publish drops the event.
func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

// Close is a no-op.
func (*NoopPublisher) Close() error { return nil }
