package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/product-console/pkg/logger"
)

// Publisher emits push events the way the catalog backend does. The console
// itself only listens; publishers drive the simulator and local setups.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// KafkaPublisher wraps a Kafka producer
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher creates a new Kafka publisher
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Retry.Max = 3
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Logger.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Msg("Kafka publisher initialized")

	return newKafkaPublisher(producer, topic), nil
}

func newKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = TopicProductEvents
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish sends one event with its kind and the trace context in headers
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	ctx, span := startPublishSpan(ctx, "kafka", p.topic, event)
	defer span.End()

	msg, err := p.message(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to marshal event")
		return err
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to send message")
		logger.Error(ctx).
			Err(err).
			Str("topic", p.topic).
			Str("event_type", event.Kind).
			Msg("Failed to publish event")
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	span.SetAttributes(
		attribute.Int("messaging.kafka.partition", int(partition)),
		attribute.Int64("messaging.kafka.offset", offset),
	)
	logger.Debug(ctx).
		Str("event_type", event.Kind).
		Str("topic", p.topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Event published")
	return nil
}

func (p *KafkaPublisher) message(ctx context.Context, event Event) (*sarama.ProducerMessage, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []sarama.RecordHeader{
		{Key: []byte("event_type"), Value: []byte(event.Kind)},
	}
	for key, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(v)})
	}

	// one partition per product keeps its events in order
	key := event.SKU
	if key == "" {
		key = "index_" + strconv.Itoa(event.ProductIndex)
	}

	return &sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(event.FarmID + "/" + key),
		Value:   sarama.ByteEncoder(value),
		Headers: headers,
	}, nil
}

// Close closes the Kafka producer
func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// RedisPublisher publishes enveloped events on a pub/sub channel
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher wires a publisher to an existing client
func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = ChannelProductEvents
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Publish sends one event
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	ctx, span := startPublishSpan(ctx, "redis", p.channel, event)
	defer span.End()

	payload, err := encodeEnvelope(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to marshal event")
		return err
	}

	receivers, err := p.rdb.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to publish")
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}

	logger.Debug(ctx).
		Str("event_type", event.Kind).
		Str("channel", p.channel).
		Int64("receivers", receivers).
		Msg("Event published")
	return nil
}

// Close is a no-op; the client belongs to the caller
func (p *RedisPublisher) Close() error {
	return nil
}

func encodeEnvelope(ctx context.Context, event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return json.Marshal(envelope{Event: event.Kind, Data: data, Trace: carrier})
}

func startPublishSpan(ctx context.Context, system, destination string, event Event) (context.Context, trace.Span) {
	return otel.Tracer("notify").Start(ctx, system+".publish."+event.Kind,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", system),
			attribute.String("messaging.destination", destination),
			attribute.String("event.type", event.Kind),
			attribute.String("product.sku", event.SKU),
			attribute.Int("product.index", event.ProductIndex),
		),
	)
}
