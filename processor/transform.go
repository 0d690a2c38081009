package processor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/internal/config"
)

//////////////
//  CONFIG  //
//////////////

// TransformConfig structs contains the configuration for the Transform stage.
type TransformConfig struct {
	// Name is the name of the stage.
	// It is used to identify the stage in the telemetry.
	//
	// Default: "transform"
	Name string
}

// NewTransformConfig returns the default configuration for the Transform stage.
func NewTransformConfig() *TransformConfig {
	return &TransformConfig{
		Name: "transform",
	}
}

// Validate checks the configuration.
func (c *TransformConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Name", &c.Name, "transform")
}

// TransformFunc converts a value into the output type.
type TransformFunc[In, Out any] func(ctx context.Context, value In) (Out, error)

///////////////
//  HANDLER  //
///////////////

type transformHandler[In, Out any] struct {
	baseHandler

	transform TransformFunc[In, Out]

	traceString string

	// Metrics
	processedReadings atomic.Int64
	transformErrors   atomic.Int64
}

func newTransformHandler[In, Out any](name string, transform TransformFunc[In, Out]) *transformHandler[In, Out] {
	return &transformHandler[In, Out]{
		transform: transform,

		traceString: fmt.Sprintf("transform %s reading", name),
	}
}

func (th *transformHandler[In, Out]) init(_ context.Context) error {
	th.tel.NewCounter("processed_readings", func() int64 { return th.processedReadings.Load() })
	th.tel.NewCounter("transform_errors", func() int64 { return th.transformErrors.Load() })

	return nil
}

func (th *transformHandler[In, Out]) process(
	ctx context.Context, reading attimo.Reading[In],
) (attimo.Reading[Out], bool, error) {

	ctx, span := th.tel.NewTrace(ctx, th.traceString)
	defer span.End()

	var zero attimo.Reading[Out]

	value, err := th.transform(ctx, reading.Value)
	if err != nil {
		th.transformErrors.Add(1)
		return zero, false, err
	}

	// Update metrics
	th.processedReadings.Add(1)

	// The output reading keeps the sequence number and timestamp of
	// the input one, so freshness accounting survives the transform.
	return attimo.Reading[Out]{
		Value:     value,
		Timestamp: reading.Timestamp,
		Seq:       reading.Seq,
	}, true, nil
}

/////////////
//  STAGE  //
/////////////

// TransformStage is a processor stage that converts each reading
// through a user-provided function.
type TransformStage[In, Out any] struct {
	*stage[In, Out, *TransformConfig]
}

// NewTransformStage returns a new Transform stage.
func NewTransformStage[In, Out any](
	transform TransformFunc[In, Out], inConn conn[In], outConn conn[Out], cfg *TransformConfig,
) *TransformStage[In, Out] {

	return &TransformStage[In, Out]{
		stage: newStage(cfg.Name, inConn, outConn, newTransformHandler(cfg.Name, transform), cfg),
	}
}
