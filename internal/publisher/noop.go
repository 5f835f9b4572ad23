package publisher

import "context"

// NoopPublisher discards every publish. It backs the live event feed
// when MQTT_BROKER is unset, so the rest of the system is unaffected
// by the feed being disabled.
type NoopPublisher struct{}

// NewNoopPublisher creates a NoopPublisher.
func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (NoopPublisher) Publish(_ context.Context, _ string, _ []byte) error { return nil }

func (NoopPublisher) Close() error { return nil }
