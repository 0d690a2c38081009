package ingress

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/internal"
	"github.com/FerroO2000/attimo/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the Sampler stage configuration.
const (
	DefaultSamplerConfigInterval = 100 * time.Millisecond
)

// SamplerConfig structs contains the configuration for the Sampler stage.
type SamplerConfig struct {
	// Interval is the duration between samples.
	Interval time.Duration
}

// NewSamplerConfig returns the default configuration for the Sampler stage.
func NewSamplerConfig() *SamplerConfig {
	return &SamplerConfig{
		Interval: DefaultSamplerConfigInterval,
	}
}

// Validate checks the configuration.
func (c *SamplerConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotNegative(ac, "Interval", &c.Interval, DefaultSamplerConfigInterval)
	config.CheckNotZero(ac, "Interval", &c.Interval, DefaultSamplerConfigInterval)
}

// SampleFunc takes one sample of the monitored quantity.
type SampleFunc[T any] func(ctx context.Context) (T, error)

//////////////
//  SOURCE  //
//////////////

var _ source[int] = (*samplerSource[int])(nil)

type samplerSource[T any] struct {
	tel *internal.Telemetry

	sample SampleFunc[T]

	ticker *time.Ticker

	seq uint64

	// Metrics
	sampledValues atomic.Int64
	sampleErrors  atomic.Int64
}

func newSamplerSource[T any](sample SampleFunc[T]) *samplerSource[T] {
	return &samplerSource[T]{
		sample: sample,
	}
}

func (ss *samplerSource[T]) setTelemetry(tel *internal.Telemetry) {
	ss.tel = tel
}

func (ss *samplerSource[T]) init(interval time.Duration) {
	ss.ticker = time.NewTicker(interval)

	ss.initMetrics()
}

func (ss *samplerSource[T]) initMetrics() {
	ss.tel.NewCounter("sampled_values", func() int64 { return ss.sampledValues.Load() })
	ss.tel.NewCounter("sample_errors", func() int64 { return ss.sampleErrors.Load() })
}

func (ss *samplerSource[T]) run(ctx context.Context, outConnector conn[T]) {
	defer ss.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ss.ticker.C:
			reading, ok := ss.handleTick(ctx)
			if !ok {
				continue
			}

			if err := outConnector.Write(reading); err != nil {
				ss.tel.LogError("failed to write reading to output connector", err)
			}
		}
	}
}

func (ss *samplerSource[T]) handleTick(ctx context.Context) (attimo.Reading[T], bool) {
	ctx, span := ss.tel.NewTrace(ctx, "take sample")
	defer span.End()

	value, err := ss.sample(ctx)
	if err != nil {
		ss.tel.LogError("failed to take sample", err)
		ss.sampleErrors.Add(1)

		var zero attimo.Reading[T]
		return zero, false
	}

	ss.seq++
	reading := attimo.NewReading(value, ss.seq)

	span.SetAttributes(attribute.Int64("seq", int64(reading.Seq)))

	// Update metrics
	ss.sampledValues.Add(1)

	return reading, true
}

/////////////
//  STAGE  //
/////////////

// SamplerStage is an ingress stage that periodically takes a sample
// through the user-provided function and publishes it as a reading.
type SamplerStage[T any] struct {
	*stage[T, *SamplerConfig]

	source *samplerSource[T]
}

// NewSamplerStage returns a new Sampler stage.
func NewSamplerStage[T any](sample SampleFunc[T], outConnector conn[T], cfg *SamplerConfig) *SamplerStage[T] {
	source := newSamplerSource(sample)

	return &SamplerStage[T]{
		stage: newStage("sampler", source, outConnector, cfg),

		source: source,
	}
}

// Init initializes the stage.
func (s *SamplerStage[T]) Init(ctx context.Context) error {
	if err := s.stage.Init(ctx); err != nil {
		return err
	}

	s.source.init(s.cfg.Interval)

	return nil
}
