// Package connector provides the hand-off primitives used for connecting
// the stages of a pipeline.
package connector

import (
	"context"
	"errors"
)

// ErrClosed is returned when the connector is closed.
var ErrClosed = errors.New("connector: connector is closed")

// Connector represents the interface for a generic connector between a
// producer stage and a consumer stage.
type Connector[T any] interface {
	// Write publishes an item. Producer-only.
	Write(item T) error
	// Read returns the next item, blocking until one is available,
	// the context is done, or the connector is closed. Consumer-only.
	Read(ctx context.Context) (T, error)
	// TryRead returns the next item without blocking. Consumer-only.
	TryRead() (T, bool)
	// Peek returns the last item Read/TryRead returned without consuming
	// anything. Consumer-only.
	Peek() T
	// Close closes (forever) the connector.
	Close()
}
