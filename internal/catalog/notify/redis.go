package notify

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/product-console/pkg/logger"
)

// envelope is the Redis message body
type envelope struct {
	Event string            `json:"event"`
	Data  json.RawMessage   `json:"data"`
	Trace map[string]string `json:"trace,omitempty"`
}

// RedisListener subscribes to push events on a Redis pub/sub channel. The
// subscription is retried with backoff until it succeeds or the listener stops.
type RedisListener struct {
	rdb     *redis.Client
	channel string
	handler Handler

	retryMin time.Duration
	retryMax time.Duration
	attempts atomic.Int64

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisListener wires a listener to an existing client
func NewRedisListener(rdb *redis.Client, channel string, handler Handler) *RedisListener {
	if channel == "" {
		channel = ChannelProductEvents
	}
	return &RedisListener{
		rdb:      rdb,
		channel:  channel,
		handler:  handler,
		retryMin: 500 * time.Millisecond,
		retryMax: 30 * time.Second,
	}
}

// Name identifies the transport
func (l *RedisListener) Name() string { return "redis" }

// Start subscribes and handles messages in the background until ctx is
// cancelled or Close is called. It does not wait for redis to be reachable.
func (l *RedisListener) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	go func() {
		defer close(done)
		pubsub, err := l.subscribe(ctx)
		if err != nil {
			return
		}
		l.consume(ctx, pubsub.Channel())
	}()
	return nil
}

// Subscribed reports whether the channel subscription is established
func (l *RedisListener) Subscribed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pubsub != nil
}

func (l *RedisListener) subscribe(ctx context.Context) (*redis.PubSub, error) {
	backoff := l.retryMin
	for {
		attempt := l.attempts.Add(1)
		pubsub := l.rdb.Subscribe(ctx, l.channel)
		_, err := pubsub.Receive(ctx)
		if err == nil {
			l.mu.Lock()
			l.pubsub = pubsub
			l.mu.Unlock()
			logger.Logger.Info().
				Str("channel", l.channel).
				Int64("attempt", attempt).
				Msg("Redis listener subscribed")
			return pubsub, nil
		}
		_ = pubsub.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		logger.Logger.Warn().
			Err(err).
			Str("channel", l.channel).
			Int64("attempt", attempt).
			Dur("retry_in", backoff).
			Msg("Failed to subscribe to push channel")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > l.retryMax {
			backoff = l.retryMax
		}
	}
}

func (l *RedisListener) consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			logger.Logger.Info().Msg("Redis listener context cancelled, stopping...")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			l.handlePayload(ctx, msg.Payload)
		}
	}
}

// Close stops retrying, ends the subscription and waits for the loop to exit
func (l *RedisListener) Close() error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pubsub == nil {
		return nil
	}
	err := l.pubsub.Close()
	l.pubsub = nil
	return err
}

func (l *RedisListener) handlePayload(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logger.Warn(ctx).Err(err).Msg("Dropping malformed push message")
		return
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(env.Trace))
	ctx, span := otel.Tracer("notify").Start(ctx, "redis.receive."+env.Event,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "redis"),
			attribute.String("messaging.source", l.channel),
		),
	)
	defer span.End()

	if env.Event == "" {
		span.SetStatus(codes.Error, "Message without event name")
		logger.Warn(ctx).Msg("Push message without event name")
		return
	}

	dispatch(ctx, span, l.handler, env.Event, env.Data)
}
