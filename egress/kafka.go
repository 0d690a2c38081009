package egress

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/internal"
	"github.com/FerroO2000/attimo/internal/config"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// KafkaConfig structs contains the configuration for the Kafka egress stage.
type KafkaConfig struct {
	// A list of Kafka brokers to connect to.
	//
	// Default: localhost:9092
	Brokers []string

	// Topic is the Kafka topic messages are produced to.
	Topic string

	// The balancer used to distribute messages across partitions.
	//
	// Default: RoundRobin.
	Balancer kafka.Balancer

	// Limit on how many attempts will be made to deliver a message.
	//
	// Default: 10.
	MaxAttempts int

	// WriteBackoffMin optionally sets the smallest amount of time the writer waits before
	// it attempts to write a batch of messages
	//
	// Default: 100ms
	WriteBackoffMin time.Duration

	// WriteBackoffMax optionally sets the maximum amount of time the writer waits before
	// it attempts to write a batch of messages
	//
	// Default: 1s
	WriteBackoffMax time.Duration

	// Limit on how many messages will be buffered before being sent to a
	// partition.
	//
	// The default is to use a target batch size of 100 messages.
	BatchSize int

	// Limit the maximum size of a request in bytes before being sent to
	// a partition.
	//
	// The default is to use a kafka default value of 1048576.
	BatchBytes int64

	// Time limit on how often incomplete message batches will be flushed to
	// kafka.
	//
	// The default is to flush at least every second.
	BatchTimeout time.Duration

	// Timeout for read operations performed by the Writer.
	//
	// Defaults to 10 seconds.
	ReadTimeout time.Duration

	// Timeout for write operation performed by the Writer.
	//
	// Defaults to 10 seconds.
	WriteTimeout time.Duration

	// Number of acknowledges from partition replicas required before receiving
	// a response to a produce request, the following values are supported:
	//
	//  RequireNone (0)  fire-and-forget, do not wait for acknowledgements from the
	//  RequireOne  (1)  wait for the leader to acknowledge the writes
	//  RequireAll  (-1) wait for the full ISR to acknowledge the writes
	//
	// Defaults to RequireNone.
	RequiredAcks kafka.RequiredAcks

	// Setting this flag to true causes the WriteMessages method to never block.
	// It also means that errors are ignored since the caller will not receive
	// the returned value. Use this only if you don't care about guarantees of
	// whether the messages were written to kafka.
	//
	// Defaults to true.
	Async bool

	// Compression set the compression codec to be used to compress messages.
	Compression kafka.Compression

	// A transport used to send messages to kafka clusters.
	//
	// If nil, DefaultTransport is used.
	Transport kafka.RoundTripper

	// AllowAutoTopicCreation notifies writer to create topic if missing.
	AllowAutoTopicCreation bool
}

// NewKafkaConfig returns a default Kafka egress config.
func NewKafkaConfig(topic string) *KafkaConfig {
	return &KafkaConfig{
		Brokers:                []string{"localhost:9092"},
		Topic:                  topic,
		Balancer:               &kafka.RoundRobin{},
		MaxAttempts:            10,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        1 * time.Second,
		BatchSize:              100,
		BatchBytes:             1048576,
		BatchTimeout:           time.Second,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireNone,
		Async:                  true,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
}

// Validate checks the configuration.
func (c *KafkaConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckLen(ac, "Brokers", &c.Brokers, []string{"localhost:9092"})
	config.CheckNotEmpty(ac, "Topic", &c.Topic, "attimo")
	config.CheckNotZero(ac, "MaxAttempts", &c.MaxAttempts, 10)
	config.CheckNotZero(ac, "BatchTimeout", &c.BatchTimeout, time.Second)
	config.CheckNotZero(ac, "ReadTimeout", &c.ReadTimeout, 10*time.Second)
	config.CheckNotZero(ac, "WriteTimeout", &c.WriteTimeout, 10*time.Second)
}

// EncodeFunc encodes a reading into the key and value of a Kafka message.
type EncodeFunc[T any] func(reading attimo.Reading[T]) (key, value []byte, err error)

////////////
//  SINK  //
////////////

type kafkaSink[T any] struct {
	baseSink

	encode EncodeFunc[T]

	cfg *KafkaConfig

	writer *kafka.Writer

	// Metrics
	producedMessages atomic.Int64
	encodeErrors     atomic.Int64
}

func newKafkaSink[T any](encode EncodeFunc[T], cfg *KafkaConfig) *kafkaSink[T] {
	return &kafkaSink[T]{
		encode: encode,

		cfg: cfg,
	}
}

func (ks *kafkaSink[T]) init(_ context.Context) error {
	ks.writer = &kafka.Writer{
		Addr:                   kafka.TCP(ks.cfg.Brokers...),
		Topic:                  ks.cfg.Topic,
		Balancer:               ks.cfg.Balancer,
		MaxAttempts:            ks.cfg.MaxAttempts,
		WriteBackoffMin:        ks.cfg.WriteBackoffMin,
		WriteBackoffMax:        ks.cfg.WriteBackoffMax,
		BatchSize:              ks.cfg.BatchSize,
		BatchBytes:             ks.cfg.BatchBytes,
		BatchTimeout:           ks.cfg.BatchTimeout,
		ReadTimeout:            ks.cfg.ReadTimeout,
		WriteTimeout:           ks.cfg.WriteTimeout,
		RequiredAcks:           ks.cfg.RequiredAcks,
		Async:                  ks.cfg.Async,
		Compression:            ks.cfg.Compression,
		Transport:              ks.cfg.Transport,
		AllowAutoTopicCreation: ks.cfg.AllowAutoTopicCreation,
	}

	ks.initMetrics()

	return nil
}

func (ks *kafkaSink[T]) initMetrics() {
	ks.tel.NewCounter("produced_messages", func() int64 { return ks.producedMessages.Load() })
	ks.tel.NewCounter("encode_errors", func() int64 { return ks.encodeErrors.Load() })
}

func (ks *kafkaSink[T]) deliver(ctx context.Context, reading attimo.Reading[T]) error {
	ctx, span := ks.tel.NewTrace(ctx, "deliver kafka message")
	defer span.End()

	key, value, err := ks.encode(reading)
	if err != nil {
		ks.encodeErrors.Add(1)
		return err
	}

	span.SetAttributes(attribute.Int("value_size", len(value)))

	// Create the header that carries the trace
	headerCarrier := internal.NewKafkaHeaderCarrier(nil)

	// Inject the trace
	ks.tel.InjectTrace(ctx, headerCarrier)

	// Create the message to be written
	kafkaMsg := kafka.Message{
		Key:   key,
		Value: value,
		Time:  reading.Timestamp,

		Headers: headerCarrier.Headers(),
	}

	// Write the message to kafka
	if err := ks.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		return err
	}

	// Update metrics
	ks.producedMessages.Add(1)

	return nil
}

func (ks *kafkaSink[T]) close(_ context.Context) error {
	return ks.writer.Close()
}

/////////////
//  STAGE  //
/////////////

// KafkaStage is an egress stage that produces readings to a Kafka topic.
type KafkaStage[T any] struct {
	*stage[T, *KafkaConfig]
}

// NewKafkaStage returns a new Kafka egress stage.
func NewKafkaStage[T any](encode EncodeFunc[T], inputConnector conn[T], cfg *KafkaConfig) *KafkaStage[T] {
	return &KafkaStage[T]{
		stage: newStage("kafka", inputConnector, newKafkaSink(encode, cfg), cfg),
	}
}
