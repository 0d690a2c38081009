// Package processor provides the stages that sit between ingress and
// egress: transforming, filtering, and duplicating readings.
package processor

import (
	"context"
	"errors"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/connector"
	"github.com/FerroO2000/attimo/internal"
	"github.com/FerroO2000/attimo/internal/config"
)

// conn is a connector carrying readings of T.
type conn[T any] = connector.Connector[attimo.Reading[T]]

// handler is the per-stage processing implementation.
type handler[In, Out any] interface {
	setTelemetry(tel *internal.Telemetry)
	init(ctx context.Context) error
	process(ctx context.Context, reading attimo.Reading[In]) (attimo.Reading[Out], bool, error)
	close()
}

// baseHandler is the base struct for a handler that can be embedded.
type baseHandler struct {
	tel *internal.Telemetry
}

func (h *baseHandler) setTelemetry(tel *internal.Telemetry) {
	h.tel = tel
}

func (h *baseHandler) init(_ context.Context) error { return nil }

func (h *baseHandler) close() {}

/////////////
//  STAGE  //
/////////////

type stage[In, Out any, Cfg config.Config] struct {
	tel *internal.Telemetry

	cfg Cfg

	inputConnector  conn[In]
	outputConnector conn[Out]

	handler handler[In, Out]
}

func newStage[In, Out any, Cfg config.Config](
	name string, inConn conn[In], outConn conn[Out], handler handler[In, Out], cfg Cfg,
) *stage[In, Out, Cfg] {

	tel := internal.NewTelemetry("processor", name)
	handler.setTelemetry(tel)

	return &stage[In, Out, Cfg]{
		tel: tel,

		cfg: cfg,

		inputConnector:  inConn,
		outputConnector: outConn,

		handler: handler,
	}
}

func (s *stage[In, Out, Cfg]) Init(ctx context.Context) error {
	s.tel.LogInfo("initializing")

	configValidator := config.NewValidator(s.tel)
	configValidator.Validate(s.cfg)

	return s.handler.init(ctx)
}

func (s *stage[In, Out, Cfg]) Run(ctx context.Context) {
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

		out, ok, err := s.handler.process(ctx, reading)
		if err != nil {
			s.tel.LogError("failed to process reading", err, "seq", reading.Seq)
			continue
		}

		if !ok {
			continue
		}

		if err := s.outputConnector.Write(out); err != nil {
			s.tel.LogError("failed to write reading to output connector", err)
		}
	}
}

func (s *stage[In, Out, Cfg]) Close() {
	s.tel.LogInfo("closing")

	s.handler.close()

	// Close the output connector
	s.outputConnector.Close()
}
