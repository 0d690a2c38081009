package processor

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/connector"
	"github.com/FerroO2000/attimo/internal"
	"go.opentelemetry.io/otel/attribute"
)

// TeeStage is a processor stage that clones the input reading to
// multiple output connectors. Readings are plain values, so the clone
// is a copy; each output connector still sees only the freshest one.
type TeeStage[T any] struct {
	tel *internal.Telemetry

	inputConnector   conn[T]
	outputConnectors []conn[T]

	cloneCount int

	// Metrics
	clonedReadings atomic.Int64
}

// NewTeeStage returns a new tee processor stage.
func NewTeeStage[T any](inputConnector conn[T], outputConnectors ...conn[T]) *TeeStage[T] {
	return &TeeStage[T]{
		tel: internal.NewTelemetry("processor", "tee"),

		inputConnector:   inputConnector,
		outputConnectors: outputConnectors,
	}
}

// Init initializes the stage.
func (ts *TeeStage[T]) Init(_ context.Context) error {
	ts.tel.LogInfo("initializing")

	cloneCount := len(ts.outputConnectors)
	if cloneCount == 0 {
		return errors.New("no output connector specified")
	}
	ts.cloneCount = cloneCount

	ts.initMetrics()

	return nil
}

func (ts *TeeStage[T]) initMetrics() {
	ts.tel.NewCounter("cloned_readings", func() int64 { return ts.clonedReadings.Load() })
}

// Run runs the stage.
func (ts *TeeStage[T]) Run(ctx context.Context) {
	ts.tel.LogInfo("running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		reading, err := ts.inputConnector.Read(ctx)
		if err != nil {
			if errors.Is(err, connector.ErrClosed) {
				ts.tel.LogInfo("input connector is closed, stopping")
				return
			}

			continue
		}

		ts.clone(ctx, reading)
	}
}

func (ts *TeeStage[T]) clone(ctx context.Context, reading attimo.Reading[T]) {
	_, span := ts.tel.NewTrace(ctx, "clone reading")
	defer span.End()

	span.SetAttributes(attribute.Int("clone_count", ts.cloneCount))

	for _, outConn := range ts.outputConnectors {
		if err := outConn.Write(reading); err != nil {
			ts.tel.LogError("failed to write into output connector", err)
		}
	}

	// Update metrics
	ts.clonedReadings.Add(1)
}

// Close closes the stage.
func (ts *TeeStage[T]) Close() {
	ts.tel.LogInfo("closing")

	for _, outConn := range ts.outputConnectors {
		outConn.Close()
	}
}
