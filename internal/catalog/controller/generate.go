package controller

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tair/product-console/internal/catalog/domain"
)

// Generate writes both descriptions of the product at index. The confirm
// button stays disabled until the call ends, whichever way it ends.
func (c *Controller) Generate(ctx context.Context, index int) (desc domain.Descriptions, err error) {
	ctx, span := c.startSpan(ctx, "controller.Generate", attribute.Int("product.index", index))
	defer span.End()
	start := time.Now()
	defer func() { c.finish(ctx, span, "generate", start, err) }()

	c.mu.Lock()
	product, err := c.editable(index)
	if err != nil {
		err = c.reject(ctx, err)
		c.mu.Unlock()
		return domain.Descriptions{}, err
	}
	farmID := c.store.FarmID()
	epoch := c.store.Epoch()
	release := c.hold(ctx, index, domain.LabelGenerating)
	short := c.begin(domain.Key(index, domain.FieldShort), domain.LabelGenerating)
	long := c.begin(domain.Key(index, domain.FieldLong), domain.LabelGenerating)
	c.renderRow(ctx, index)
	c.mu.Unlock()

	span.SetAttributes(attribute.String("product.sku", product.SKU))
	desc, err = c.backend.GenerateContent(ctx, farmID, product.SKU)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer release()

	if c.superseded(ctx, "generate", epoch) {
		return domain.Descriptions{}, err
	}
	if err != nil {
		c.fail(ctx, err, "Content generation failed", short, long)
		return domain.Descriptions{}, err
	}
	if c.confirmedSince(ctx, "generate", index, short, long) {
		return domain.Descriptions{}, c.reject(ctx, errConfirmedInFlight)
	}

	// a newer cycle or a pushed result may already own either field
	if c.tracker.Accepts(short.key, short.seq) {
		_ = c.store.SetField(index, domain.FieldShort, desc.Short)
		c.complete(short, domain.LabelDone)
	}
	if c.tracker.Accepts(long.key, long.seq) {
		_ = c.store.SetField(index, domain.FieldLong, desc.Long)
		c.complete(long, domain.LabelDone)
	}
	return desc, nil
}

// Regenerate rewrites one description field of the product at index
func (c *Controller) Regenerate(ctx context.Context, index int, field domain.FieldType) (text string, err error) {
	ctx, span := c.startSpan(ctx, "controller.Regenerate",
		attribute.Int("product.index", index),
		attribute.String("field.type", string(field)),
	)
	defer span.End()
	start := time.Now()
	defer func() { c.finish(ctx, span, "regenerate", start, err) }()

	c.mu.Lock()
	if !field.IsDescription() {
		err = c.reject(ctx, domain.Validation("Only short or long descriptions can be regenerated"))
		c.mu.Unlock()
		return "", err
	}
	product, err := c.editable(index)
	if err != nil {
		err = c.reject(ctx, err)
		c.mu.Unlock()
		return "", err
	}
	farmID := c.store.FarmID()
	epoch := c.store.Epoch()
	cy := c.begin(domain.Key(index, field), domain.LabelGenerating)
	c.renderRow(ctx, index)
	c.mu.Unlock()

	text, err = c.backend.RegenerateContent(ctx, farmID, product.SKU, field)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.superseded(ctx, "regenerate", epoch) {
		return "", err
	}
	if err != nil {
		c.fail(ctx, err, "Regenerate failed", cy)
		return "", err
	}
	if c.confirmedSince(ctx, "regenerate", index, cy) {
		return "", c.reject(ctx, errConfirmedInFlight)
	}

	if c.tracker.Accepts(cy.key, cy.seq) {
		_ = c.store.SetField(index, field, text)
		c.complete(cy, domain.LabelDone)
	}
	c.renderRow(ctx, index)
	return text, nil
}
