// Package ingress provides the stages that produce readings:
// periodic samplers, UDP feeds, and watched value files.
package ingress

import (
	"context"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/connector"
	"github.com/FerroO2000/attimo/internal"
	"github.com/FerroO2000/attimo/internal/config"
)

// conn is the output connector of an ingress stage, carrying readings of T.
type conn[T any] = connector.Connector[attimo.Reading[T]]

type source[T any] interface {
	setTelemetry(tel *internal.Telemetry)
	run(ctx context.Context, outConnector conn[T])
}

type stage[T any, Cfg config.Config] struct {
	tel *internal.Telemetry

	cfg Cfg

	source source[T]

	outputConnector conn[T]
}

func newStage[T any, Cfg config.Config](name string, source source[T], outConn conn[T], cfg Cfg) *stage[T, Cfg] {
	tel := internal.NewTelemetry("ingress", name)
	source.setTelemetry(tel)

	return &stage[T, Cfg]{
		tel: tel,

		cfg: cfg,

		source: source,

		outputConnector: outConn,
	}
}

func (s *stage[T, Cfg]) Init(_ context.Context) error {
	s.tel.LogInfo("initializing")

	configValidator := config.NewValidator(s.tel)
	configValidator.Validate(s.cfg)

	return nil
}

func (s *stage[T, Cfg]) Run(ctx context.Context) {
	s.source.run(ctx, s.outputConnector)
}

func (s *stage[T, Cfg]) Close() {
	s.tel.LogInfo("closing")

	// Close the output connector
	s.outputConnector.Close()
}
