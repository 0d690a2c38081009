package internal

import "github.com/segmentio/kafka-go"

// KafkaHeaderCarrier adapts Kafka message headers to the OpenTelemetry
// text map carrier interface, so traces can ride along published records.
type KafkaHeaderCarrier struct {
	headers []kafka.Header
}

// NewKafkaHeaderCarrier returns a carrier seeded with the given headers.
func NewKafkaHeaderCarrier(headers []kafka.Header) *KafkaHeaderCarrier {
	return &KafkaHeaderCarrier{
		headers: headers,
	}
}

// Get returns the value of the first header with the given key.
func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}

	return ""
}

// Set sets the value of the header with the given key, replacing any
// previous one.
func (c *KafkaHeaderCarrier) Set(key, value string) {
	for idx, h := range c.headers {
		if h.Key == key {
			c.headers[idx].Value = []byte(value)
			return
		}
	}

	c.headers = append(c.headers, kafka.Header{
		Key:   key,
		Value: []byte(value),
	})
}

// Keys lists the keys of all the headers.
func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}

	return keys
}

// Headers returns the underlying Kafka headers.
func (c *KafkaHeaderCarrier) Headers() []kafka.Header {
	return c.headers
}
