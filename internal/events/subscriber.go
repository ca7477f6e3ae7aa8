package events

// Subscriber receives store events from the event bus.
type Subscriber interface {
	// Subscribe delivers events whose subject matches subject.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(subject string) (<-chan Message, func(), error)
	Close() error
}
