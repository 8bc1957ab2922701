package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/product-console/pkg/logger"
)

// KafkaConfig selects brokers, consumer group and topics
type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
}

// KafkaListener consumes push events from a Kafka consumer group. The event
// kind travels in the event_type header and the JSON payload in the value.
type KafkaListener struct {
	consumer sarama.ConsumerGroup
	cfg      KafkaConfig
	handler  *groupHandler
}

// NewKafkaListener creates a consumer group; call Start to begin consuming
func NewKafkaListener(cfg KafkaConfig, handler Handler) (*KafkaListener, error) {
	if len(cfg.Topics) == 0 {
		cfg.Topics = []string{TopicProductEvents}
	}

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	// progress from before the console started is of no use to any page
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("group_id", cfg.GroupID).
		Strs("topics", cfg.Topics).
		Msg("Kafka listener initialized")

	return &KafkaListener{
		consumer: consumer,
		cfg:      cfg,
		handler:  &groupHandler{handler: handler},
	}, nil
}

// Name identifies the transport
func (l *KafkaListener) Name() string { return "kafka" }

// Start consumes in the background until ctx is cancelled
func (l *KafkaListener) Start(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Logger.Info().Msg("Kafka listener context cancelled, stopping...")
				return
			default:
				err := l.consumer.Consume(ctx, l.cfg.Topics, l.handler)
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				if err != nil {
					logger.Logger.Error().
						Err(err).
						Msg("Error from consumer")
				}
			}
		}
	}()

	go func() {
		for err := range l.consumer.Errors() {
			logger.Logger.Error().
				Err(err).
				Msg("Consumer error")
		}
	}()

	logger.Logger.Info().
		Strs("topics", l.cfg.Topics).
		Str("group_id", l.cfg.GroupID).
		Msg("Kafka listener started")

	return nil
}

// Close closes the consumer group
func (l *KafkaListener) Close() error {
	if l.consumer != nil {
		return l.consumer.Close()
	}
	return nil
}

// groupHandler implements sarama.ConsumerGroupHandler
type groupHandler struct {
	handler Handler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		h.handleMessage(session.Context(), message)
		session.MarkMessage(message, "")
	}
	return nil
}

func (h *groupHandler) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	carrier := propagation.MapCarrier{}
	kind := ""
	for _, header := range message.Headers {
		key := string(header.Key)
		switch key {
		case "traceparent", "tracestate":
			carrier[key] = string(header.Value)
		case "event_type":
			kind = string(header.Value)
		}
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	ctx, span := otel.Tracer("notify").Start(ctx, "kafka.consume."+kind,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.source", message.Topic),
			attribute.String("messaging.source_kind", "topic"),
			attribute.Int("messaging.kafka.partition", int(message.Partition)),
			attribute.Int64("messaging.kafka.offset", message.Offset),
		),
	)
	defer span.End()

	if kind == "" {
		span.SetStatus(codes.Error, "Message without event_type header")
		logger.Warn(ctx).
			Str("topic", message.Topic).
			Int64("offset", message.Offset).
			Msg("Message without event_type header")
		return
	}

	dispatch(ctx, span, h.handler, kind, message.Value)
}

// dispatch decodes and hands one event to handler, recording the outcome on span
func dispatch(ctx context.Context, span trace.Span, handler Handler, kind string, data []byte) {
	event, err := Decode(kind, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode event")
		logger.Warn(ctx).
			Err(err).
			Str("event_type", kind).
			Msg("Dropping undecodable event")
		return
	}

	span.SetAttributes(
		attribute.String("event.type", kind),
		attribute.Int("product.index", event.ProductIndex),
		attribute.String("product.sku", event.SKU),
		attribute.String("field.type", string(event.Field)),
	)

	if err := handler.HandleEvent(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to handle event")
		logger.Error(ctx).
			Err(err).
			Str("event_type", kind).
			Msg("Failed to handle event")
		return
	}

	span.SetStatus(codes.Ok, "Event handled")
	logger.Debug(ctx).
		Str("event_type", kind).
		Int("product_index", event.ProductIndex).
		Str("sku", event.SKU).
		Msg("Event handled")
}
