package processor

import (
	"context"
	"sync/atomic"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/internal/config"
)

//////////////
//  CONFIG  //
//////////////

// FilterConfig structs contains the configuration for the Filter stage.
type FilterConfig struct {
	// Name is the name of the stage.
	// It is used to identify the stage in the telemetry.
	//
	// Default: "filter"
	Name string
}

// NewFilterConfig returns the default configuration for the Filter stage.
func NewFilterConfig() *FilterConfig {
	return &FilterConfig{
		Name: "filter",
	}
}

// Validate checks the configuration.
func (c *FilterConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Name", &c.Name, "filter")
}

// FilterFunc reports whether a reading passes the filter.
type FilterFunc[T any] func(reading attimo.Reading[T]) bool

///////////////
//  HANDLER  //
///////////////

type filterHandler[T any] struct {
	baseHandler

	filter FilterFunc[T]

	// Metrics
	passedReadings  atomic.Int64
	droppedReadings atomic.Int64
}

func newFilterHandler[T any](filter FilterFunc[T]) *filterHandler[T] {
	return &filterHandler[T]{
		filter: filter,
	}
}

func (fh *filterHandler[T]) init(_ context.Context) error {
	fh.tel.NewCounter("passed_readings", func() int64 { return fh.passedReadings.Load() })
	fh.tel.NewCounter("dropped_readings", func() int64 { return fh.droppedReadings.Load() })

	return nil
}

func (fh *filterHandler[T]) process(
	_ context.Context, reading attimo.Reading[T],
) (attimo.Reading[T], bool, error) {

	if !fh.filter(reading) {
		fh.droppedReadings.Add(1)

		var zero attimo.Reading[T]
		return zero, false, nil
	}

	fh.passedReadings.Add(1)

	return reading, true, nil
}

/////////////
//  STAGE  //
/////////////

// FilterStage is a processor stage that drops the readings that do not
// pass a user-provided predicate.
type FilterStage[T any] struct {
	*stage[T, T, *FilterConfig]
}

// NewFilterStage returns a new Filter stage.
func NewFilterStage[T any](filter FilterFunc[T], inConn conn[T], outConn conn[T], cfg *FilterConfig) *FilterStage[T] {
	return &FilterStage[T]{
		stage: newStage(cfg.Name, inConn, outConn, newFilterHandler(filter), cfg),
	}
}
