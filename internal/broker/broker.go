// Package broker carries sync triggers and change notifications between the
// station processes. A queued mutation is never carried here; the broker only
// nudges workers, the database stays the source of truth.
package broker

import "context"

type MessageBroker interface {
	Publish(queue string, message []byte) error
	Consume(ctx context.Context, queue string) (<-chan []byte, error)
	Close() error
}
