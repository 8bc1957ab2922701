package controller

import (
	"context"

	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/internal/catalog/notify"
	"github.com/tair/product-console/pkg/logger"
)

// Push event outcomes recorded in metrics
const (
	outcomeApplied   = "applied"
	outcomeStale     = "stale"
	outcomeOtherFarm = "other_farm"
	outcomeUnknown   = "unknown_target"
)

// HandleEvent applies one push event. Events are matched to a row by SKU
// when they carry one and by position otherwise; events that no longer
// match anything are dropped, never treated as errors.
func (c *Controller) HandleEvent(ctx context.Context, event notify.Event) error {
	ctx = logger.ContextWithSession(ctx, c.sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := c.applyEvent(ctx, event)
	c.metrics.observeEvent(event.Kind, outcome)
	if outcome != outcomeApplied {
		logger.Debug(ctx).
			Str("event_type", event.Kind).
			Str("outcome", outcome).
			Int("product_index", event.ProductIndex).
			Str("sku", event.SKU).
			Str("field", string(event.Field)).
			Msg("Push event not applied")
	}
	return nil
}

func (c *Controller) applyEvent(ctx context.Context, event notify.Event) string {
	if c.store.FarmID() == "" || (event.FarmID != "" && event.FarmID != c.store.FarmID()) {
		return outcomeOtherFarm
	}

	index, ok := c.resolve(event)
	if !ok {
		return outcomeUnknown
	}

	switch event.Kind {
	case notify.EventProgress:
		return c.applyProgress(ctx, index, event)
	case notify.EventContent:
		return c.applyContent(ctx, index, event)
	case notify.EventError:
		return c.applyError(ctx, index, event)
	}
	return outcomeUnknown
}

// resolve finds the current row of an event. Caller holds mu.
func (c *Controller) resolve(event notify.Event) (int, bool) {
	if event.SKU != "" {
		return c.store.IndexOf(event.SKU)
	}
	if event.ProductIndex < 0 || event.ProductIndex >= c.store.Len() {
		return 0, false
	}
	return event.ProductIndex, true
}

func (c *Controller) applyProgress(ctx context.Context, index int, event notify.Event) string {
	if !event.Field.Valid() {
		return outcomeUnknown
	}
	key := domain.Key(index, event.Field)
	if !c.tracker.Report(key, event.Seq, event.Progress, event.Status) {
		return outcomeStale
	}
	c.syncBar(key)
	c.renderRow(ctx, index)
	return outcomeApplied
}

func (c *Controller) applyContent(ctx context.Context, index int, event notify.Event) string {
	switch event.Field {
	case domain.FieldShort, domain.FieldLong, domain.FieldImages:
	default:
		return outcomeUnknown
	}

	p, _ := c.store.Get(index)
	if p.IsConfirmed {
		return outcomeStale
	}
	key := domain.Key(index, event.Field)
	seq := event.Seq
	// identical content is a redelivery; anything else is a new result
	if p.Description(event.Field) != event.Content {
		seq = c.tracker.Reopen(key, seq)
	}
	if !c.tracker.Accepts(key, seq) {
		return outcomeStale
	}

	_ = c.store.SetField(index, event.Field, event.Content)
	c.tracker.Complete(key, seq, domain.LabelDone)
	c.syncBar(key)

	if event.Field == domain.FieldImages {
		row, _ := c.page.Row(index)
		p, _ := c.store.Get(index)
		row.Sync(p)
		row.BustImage(event.Content, c.now())
	}
	c.renderRow(ctx, index)
	return outcomeApplied
}

func (c *Controller) applyError(ctx context.Context, index int, event notify.Event) string {
	var failed []domain.FieldKey
	for _, field := range event.Field.Expand() {
		if !field.Valid() {
			continue
		}
		key := domain.Key(index, field)
		if c.tracker.Fail(key, event.Seq, domain.LabelError) {
			c.syncBar(key)
			failed = append(failed, key)
		}
	}
	if len(failed) == 0 {
		return outcomeStale
	}

	msg := event.Message
	if msg == "" {
		msg = "Generation failed"
	}
	c.alert(ctx, domain.ServerError(0, msg), msg)
	c.renderRow(ctx, index)
	return outcomeApplied
}
