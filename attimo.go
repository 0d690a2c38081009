// Package attimo provides the main entrypoint for the attimo library,
// a latest-value telemetry conduit: ingress stages sample or receive
// values, latest-wins connectors hand the freshest one over, and egress
// stages deliver it wherever it has to go.
package attimo

import (
	"time"

	"github.com/FerroO2000/attimo/connector"
)

// Connector represents the interface for a generic connector
// to be used for connecting the stages.
type Connector[T any] = connector.Connector[T]

// NewLatestConnector returns a new latest-wins connector for readings of T.
func NewLatestConnector[T any]() *connector.Latest[Reading[T]] {
	return connector.NewLatest[Reading[T]]()
}

// Reading is the envelope carried between stages: a sampled value plus
// the time it was taken and a per-source sequence number. Sequence
// numbers increase monotonically, so a consumer can tell how many
// readings were skipped since the last one it saw.
type Reading[T any] struct {
	// Value is the sampled value.
	Value T

	// Timestamp is the time the value was taken.
	Timestamp time.Time

	// Seq is the per-source sequence number of the reading.
	Seq uint64
}

// NewReading returns a reading of the given value taken now.
func NewReading[T any](value T, seq uint64) Reading[T] {
	return Reading[T]{
		Value:     value,
		Timestamp: time.Now(),
		Seq:       seq,
	}
}
