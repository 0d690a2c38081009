// Package egress provides the stages that consume readings and deliver
// them to their destination: files, Kafka topics, QuestDB tables.
//
// Every egress stage runs a single delivery goroutine. The connectors
// feeding these stages are single-consumer by contract, so there is no
// pooled running mode.
package egress

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/connector"
	"github.com/FerroO2000/attimo/internal"
	"github.com/FerroO2000/attimo/internal/config"
	"go.opentelemetry.io/otel/metric"
)

// conn is the input connector of an egress stage, carrying readings of T.
type conn[T any] = connector.Connector[attimo.Reading[T]]

////////////
//  SINK  //
////////////

// sink is the per-stage delivery implementation.
type sink[T any] interface {
	setTelemetry(tel *internal.Telemetry)
	init(ctx context.Context) error
	deliver(ctx context.Context, reading attimo.Reading[T]) error
	close(ctx context.Context) error
}

// baseSink is the base struct for a sink that can be embedded.
type baseSink struct {
	tel *internal.Telemetry
}

func (s *baseSink) setTelemetry(tel *internal.Telemetry) {
	s.tel = tel
}

///////////////
//  METRICS  //
///////////////

type deliveryMetrics struct {
	tel *internal.Telemetry

	deliveredReadings atomic.Int64
	deliveryErrors    atomic.Int64

	deliveryLag *internal.Histogram
}

func newDeliveryMetrics(tel *internal.Telemetry) *deliveryMetrics {
	return &deliveryMetrics{
		tel: tel,
	}
}

func (dm *deliveryMetrics) init() {
	dm.tel.NewCounter("delivered_readings", func() int64 { return dm.deliveredReadings.Load() })
	dm.tel.NewCounter("delivery_errors", func() int64 { return dm.deliveryErrors.Load() })

	dm.deliveryLag = dm.tel.NewHistogram("delivery_lag", metric.WithUnit("ms"))
}

func (dm *deliveryMetrics) incrementDeliveredReadings() {
	dm.deliveredReadings.Add(1)
}

func (dm *deliveryMetrics) incrementDeliveryErrors() {
	dm.deliveryErrors.Add(1)
}

func (dm *deliveryMetrics) recordDeliveryLag(ctx context.Context, sampleTime time.Time) {
	dm.deliveryLag.Record(ctx, time.Since(sampleTime).Milliseconds())
}

/////////////
//  STAGE  //
/////////////

type stage[T any, Cfg config.Config] struct {
	tel *internal.Telemetry

	cfg Cfg

	inputConnector conn[T]

	sink sink[T]

	metrics *deliveryMetrics
}

func newStage[T any, Cfg config.Config](name string, inConn conn[T], sink sink[T], cfg Cfg) *stage[T, Cfg] {
	tel := internal.NewTelemetry("egress", name)
	sink.setTelemetry(tel)

	return &stage[T, Cfg]{
		tel: tel,

		cfg: cfg,

		inputConnector: inConn,

		sink: sink,

		metrics: newDeliveryMetrics(tel),
	}
}

func (s *stage[T, Cfg]) Init(ctx context.Context) error {
	s.tel.LogInfo("initializing")

	configValidator := config.NewValidator(s.tel)
	configValidator.Validate(s.cfg)

	s.metrics.init()

	return s.sink.init(ctx)
}

func (s *stage[T, Cfg]) Run(ctx context.Context) {
	s.tel.LogInfo("running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		reading, err := s.inputConnector.Read(ctx)
		if err != nil {
			// Check if the input connector is closed, if so stop
			if errors.Is(err, connector.ErrClosed) {
				s.tel.LogInfo("input connector is closed, stopping")
				return
			}

			continue
		}

		s.deliver(ctx, reading)
	}
}

func (s *stage[T, Cfg]) deliver(ctx context.Context, reading attimo.Reading[T]) {
	if err := s.sink.deliver(ctx, reading); err != nil {
		s.tel.LogError("failed to deliver reading", err, "seq", reading.Seq)
		s.metrics.incrementDeliveryErrors()

		return
	}

	// Update metrics
	s.metrics.incrementDeliveredReadings()
	s.metrics.recordDeliveryLag(ctx, reading.Timestamp)
}

func (s *stage[T, Cfg]) Close() {
	s.tel.LogInfo("closing")
	defer s.tel.LogInfo("closed")

	if err := s.sink.close(context.Background()); err != nil {
		s.tel.LogError("failed to close sink", err)
	}
}
