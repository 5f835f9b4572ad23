// Package publisher backs the dialer's live event feed (§4.7): a
// thin, best-effort sink for call-lifecycle transitions. It knows
// nothing about calls or channels — Feed (in feed.go) builds the
// topic and payload shapes and is the only thing the correlator talks
// to.
package publisher

import "context"

// Publisher defines the interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
