package egress

import (
	"context"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/internal/config"
)

//////////////
//  CONFIG  //
//////////////

type discardConfig struct{}

func (c *discardConfig) Validate(_ *config.AnomalyCollector) {}

////////////
//  SINK  //
////////////

type discardSink[T any] struct {
	baseSink

	onDeliver func(reading attimo.Reading[T])
}

func (ds *discardSink[T]) init(_ context.Context) error {
	return nil
}

func (ds *discardSink[T]) deliver(_ context.Context, reading attimo.Reading[T]) error {
	if ds.onDeliver != nil {
		ds.onDeliver(reading)
	}

	return nil
}

func (ds *discardSink[T]) close(_ context.Context) error {
	return nil
}

/////////////
//  STAGE  //
/////////////

// SinkStage is an egress stage that simply discards all incoming readings.
// It is intended for testing purposes; the optional callback observes
// every delivered reading.
type SinkStage[T any] struct {
	*stage[T, *discardConfig]
}

// NewSinkStage returns a new sink egress stage.
func NewSinkStage[T any](inputConnector conn[T], onDeliver func(reading attimo.Reading[T])) *SinkStage[T] {
	return &SinkStage[T]{
		stage: newStage("sink", inputConnector, &discardSink[T]{onDeliver: onDeliver}, &discardConfig{}),
	}
}
