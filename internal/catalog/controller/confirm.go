package controller

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/pkg/logger"
)

// Confirm saves what the operator currently sees for the product at index
// and locks the row.
func (c *Controller) Confirm(ctx context.Context, index int) (err error) {
	ctx, span := c.startSpan(ctx, "controller.Confirm", attribute.Int("product.index", index))
	defer span.End()
	start := time.Now()
	defer func() { c.finish(ctx, span, "confirm", start, err) }()

	c.mu.Lock()
	product, err := c.store.Get(index)
	if err == nil {
		if row, ok := c.page.Row(index); ok && row.Busy() {
			err = domain.Validation("Product " + product.SKU + " is still being updated; confirm it once that finishes")
		}
	}
	if err != nil {
		err = c.reject(ctx, err)
		c.mu.Unlock()
		return err
	}
	confirmation := domain.Confirmation{
		FarmID:           c.store.FarmID(),
		SKU:              product.SKU,
		ShortDescription: product.ShortDescription,
		LongDescription:  product.LongDescription,
		ImagePath:        product.ImagePath,
	}
	epoch := c.store.Epoch()
	release := c.hold(ctx, index, domain.LabelConfirming)
	cy := c.begin(domain.Key(index, domain.FieldConfirm), domain.LabelConfirming)
	c.renderRow(ctx, index)
	c.mu.Unlock()

	err = c.backend.ConfirmProduct(ctx, confirmation)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer release()

	if c.superseded(ctx, "confirm", epoch) {
		return err
	}
	if err != nil {
		c.fail(ctx, err, "Confirmation failed", cy)
		return err
	}

	if c.complete(cy, domain.LabelConfirmed) {
		_ = c.store.SetConfirmed(index, true)
		c.metrics.observeConfirmation(true)
		c.renderSummary(ctx)
	}
	return nil
}

// EnableEdit reopens a confirmed product for editing. Only the local state
// changes; the backend keeps its confirmed copy until the next Confirm.
func (c *Controller) EnableEdit(ctx context.Context, index int) (err error) {
	ctx, span := c.startSpan(ctx, "controller.EnableEdit", attribute.Int("product.index", index))
	defer span.End()
	start := time.Now()
	defer func() { c.finish(ctx, span, "enable_edit", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	product, err := c.store.Get(index)
	if err != nil {
		return c.reject(ctx, err)
	}
	if !product.IsConfirmed {
		return nil
	}

	_ = c.store.SetConfirmed(index, false)
	c.metrics.observeConfirmation(false)
	c.renderRow(ctx, index)
	c.renderSummary(ctx)

	logger.Info(ctx).
		Str("sku", product.SKU).
		Msg("Product reopened for editing")
	return nil
}

// EditDescription replaces a description with operator-typed text. The
// change is local until the product is confirmed.
func (c *Controller) EditDescription(ctx context.Context, index int, field domain.FieldType, content string) (err error) {
	ctx, span := c.startSpan(ctx, "controller.EditDescription",
		attribute.Int("product.index", index),
		attribute.String("field.type", string(field)),
	)
	defer span.End()
	start := time.Now()
	defer func() { c.finish(ctx, span, "edit_description", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !field.IsDescription() {
		return c.reject(ctx, domain.Validation("Only short or long descriptions can be edited"))
	}
	if _, err := c.editable(index); err != nil {
		return c.reject(ctx, err)
	}

	_ = c.store.SetField(index, field, content)
	c.renderRow(ctx, index)
	return nil
}
