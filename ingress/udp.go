package ingress

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/internal"
	"github.com/FerroO2000/attimo/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

const (
	udpPayloadSize = 1474
)

//////////////
//  CONFIG  //
//////////////

// Default values for the UDP stage configuration.
const (
	DefaultUDPConfigIPAddr = "0.0.0.0"
	DefaultUDPConfigPort   = 20_000
)

// UDPConfig structs contains the configuration for the UDP stage.
type UDPConfig struct {
	// IPAddr is the IP address to listen on.
	IPAddr string

	// Port is the port to listen on.
	Port uint16
}

// NewUDPConfig returns the default configuration for the UDP stage.
func NewUDPConfig() *UDPConfig {
	return &UDPConfig{
		IPAddr: DefaultUDPConfigIPAddr,
		Port:   DefaultUDPConfigPort,
	}
}

// Validate checks the configuration.
func (c *UDPConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "IPAddr", &c.IPAddr, DefaultUDPConfigIPAddr)
	config.CheckNotZero(ac, "Port", &c.Port, DefaultUDPConfigPort)
}

// DecodeFunc decodes a received datagram payload into a value.
type DecodeFunc[T any] func(payload []byte) (T, error)

//////////////
//  SOURCE  //
//////////////

var _ source[int] = (*udpSource[int])(nil)

type udpSource[T any] struct {
	tel *internal.Telemetry

	decode DecodeFunc[T]

	conn *net.UDPConn

	seq uint64

	// Metrics
	receivedMessages atomic.Int64
	receivedBytes    atomic.Int64
	decodeErrors     atomic.Int64
}

func newUDPSource[T any](decode DecodeFunc[T]) *udpSource[T] {
	return &udpSource[T]{
		decode: decode,
	}
}

func (us *udpSource[T]) setTelemetry(tel *internal.Telemetry) {
	us.tel = tel
}

func (us *udpSource[T]) init(ipAddr string, port uint16) error {
	parsedAddr, err := netip.ParseAddr(ipAddr)
	if err != nil {
		return err
	}

	addr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(parsedAddr, port))
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	us.conn = conn

	us.initMetrics()

	return nil
}

func (us *udpSource[T]) initMetrics() {
	us.tel.NewCounter("received_messages", func() int64 { return us.receivedMessages.Load() })
	us.tel.NewCounter("received_bytes", func() int64 { return us.receivedBytes.Load() })
	us.tel.NewCounter("decode_errors", func() int64 { return us.decodeErrors.Load() })
}

func (us *udpSource[T]) run(ctx context.Context, outConnector conn[T]) {
	// Hacky method to close the connection when the context is done
	go func() {
		<-ctx.Done()
		us.conn.Close()
	}()

	buf := make([]byte, udpPayloadSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// read the UDP payload
		n, err := us.conn.Read(buf)
		if err != nil {
			// Check if the connection is closed
			if errors.Is(err, net.ErrClosed) {
				select {
				case <-ctx.Done():
					return
				default:
				}
			}

			us.tel.LogError("failed to read connection", err)
			return
		}

		// Handle the payload and publish the reading
		reading, ok := us.handlePayload(ctx, buf[:n])
		if !ok {
			continue
		}

		if err := outConnector.Write(reading); err != nil {
			us.tel.LogError("failed to write reading to output connector", err)
		}
	}
}

func (us *udpSource[T]) handlePayload(ctx context.Context, payload []byte) (attimo.Reading[T], bool) {
	// Create the trace for the incoming datagram
	_, span := us.tel.NewTrace(ctx, "receive UDP datagram")
	defer span.End()

	payloadSize := len(payload)
	span.SetAttributes(attribute.Int("payload_size", payloadSize))

	// Update metrics
	us.receivedBytes.Add(int64(payloadSize))
	us.receivedMessages.Add(1)

	value, err := us.decode(payload)
	if err != nil {
		us.tel.LogError("failed to decode payload", err)
		us.decodeErrors.Add(1)

		var zero attimo.Reading[T]
		return zero, false
	}

	us.seq++

	return attimo.NewReading(value, us.seq), true
}

/////////////
//  STAGE  //
/////////////

// UDPStage is an ingress stage that decodes UDP datagrams into readings.
type UDPStage[T any] struct {
	*stage[T, *UDPConfig]

	source *udpSource[T]
}

// NewUDPStage returns a new UDP stage.
func NewUDPStage[T any](decode DecodeFunc[T], outConnector conn[T], cfg *UDPConfig) *UDPStage[T] {
	source := newUDPSource(decode)

	return &UDPStage[T]{
		stage: newStage("udp", source, outConnector, cfg),

		source: source,
	}
}

// Init initializes the stage.
func (us *UDPStage[T]) Init(ctx context.Context) error {
	if err := us.stage.Init(ctx); err != nil {
		return err
	}

	return us.source.init(us.cfg.IPAddr, us.cfg.Port)
}
