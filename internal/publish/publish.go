// Package publish defines the run-notification contract.
package publish

import "context"

// Publisher announces settled scrape runs to downstream consumers.
type Publisher interface {
	// Publish sends the payload to the named topic and returns a message ID.
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Noop discards every publish.
type Noop struct{}

// Publish implements Publisher and does nothing.
func (Noop) Publish(context.Context, string, any) (string, error) { return "", nil }
