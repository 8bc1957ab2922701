// Command pushsim plays the catalog backend's side of the push channel: it
// emits progress, content and error events for one product so a running
// console can be exercised without the generation service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/internal/catalog/notify"
	"github.com/tair/product-console/internal/console/config"
	"github.com/tair/product-console/pkg/logger"
)

func main() {
	farmID := flag.String("farm", "", "farm id the events belong to")
	sku := flag.String("sku", "", "product sku; correlates by position when empty")
	index := flag.Int("index", 0, "product position on the page")
	field := flag.String("type", string(domain.FieldAll), "short, long, images or all")
	steps := flag.Int("steps", 5, "progress updates per field")
	interval := flag.Duration("interval", 400*time.Millisecond, "delay between events")
	failWith := flag.String("fail", "", "finish with an error event carrying this message")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Init("pushsim", true)
		logger.Logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init("pushsim", true)
	logger.SetLevel(cfg.LogLevel)

	publisher, err := newPublisher(cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to create publisher")
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := simulation{
		publisher: publisher,
		base: notify.Event{
			FarmID:       *farmID,
			SKU:          *sku,
			ProductIndex: *index,
		},
		steps:    *steps,
		interval: *interval,
	}
	if err := sim.run(ctx, domain.FieldType(*field), *failWith); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Simulation failed")
	}
	logger.Logger.Info().Msg("Simulation finished")
}

func newPublisher(cfg *config.ConsoleConfig) (notify.Publisher, error) {
	switch cfg.Push.Transport {
	case config.TransportKafka:
		publisher, err := notify.NewKafkaPublisher(cfg.Push.Brokers, cfg.Push.Topic)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case config.TransportRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return notify.NewRedisPublisher(rdb, cfg.Push.Channel), nil
	default:
		return nil, fmt.Errorf("PUSH_TRANSPORT must be kafka or redis, got %q", cfg.Push.Transport)
	}
}

type simulation struct {
	publisher notify.Publisher
	base      notify.Event
	steps     int
	interval  time.Duration
}

func (s simulation) run(ctx context.Context, field domain.FieldType, failWith string) error {
	fields := field.Expand()
	for _, f := range fields {
		if !f.Valid() || f == domain.FieldConfirm {
			return fmt.Errorf("cannot simulate field %q", f)
		}
		for step := 1; step < s.steps; step++ {
			event := s.base
			event.Kind = notify.EventProgress
			event.Field = f
			event.Progress = step * 100 / s.steps
			event.Status = domain.PhaseGenerating
			if err := s.emit(ctx, event); err != nil {
				return err
			}
		}
	}

	if failWith != "" {
		event := s.base
		event.Kind = notify.EventError
		event.Field = field
		event.Message = failWith
		return s.emit(ctx, event)
	}

	for _, f := range fields {
		event := s.base
		event.Kind = notify.EventContent
		event.Field = f
		event.Content = content(f, s.base)
		if err := s.emit(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (s simulation) emit(ctx context.Context, event notify.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.interval):
	}

	logger.Logger.Info().
		Str("event_type", event.Kind).
		Str("field", string(event.Field)).
		Int("progress", event.Progress).
		Msg("Publishing")
	return s.publisher.Publish(ctx, event)
}

func content(field domain.FieldType, target notify.Event) string {
	name := target.SKU
	if name == "" {
		name = fmt.Sprintf("product %d", target.ProductIndex)
	}
	switch field {
	case domain.FieldShort:
		return "Simulated short description for " + name
	case domain.FieldLong:
		return "Simulated long description for " + name + ", written while the console was listening."
	default:
		return fmt.Sprintf("/static/images/%s/%s/simulated.png", target.FarmID, name)
	}
}
