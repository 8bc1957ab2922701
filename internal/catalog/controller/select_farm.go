package controller

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/internal/catalog/progress"
	"github.com/tair/product-console/internal/catalog/view"
	"github.com/tair/product-console/pkg/logger"
)

// SelectFarm switches the page to farmID. An empty id clears the page;
// otherwise the farm's products are loaded.
func (c *Controller) SelectFarm(ctx context.Context, farmID string) ([]domain.Product, error) {
	if farmID == "" {
		ctx, span := c.startSpan(ctx, "controller.ClearFarm")
		defer span.End()

		c.mu.Lock()
		defer c.mu.Unlock()
		c.loads++
		c.store.Clear()
		c.commit(ctx)
		logger.Info(ctx).Msg("Farm deselected")
		return nil, nil
	}
	return c.Load(ctx, farmID)
}

// Load fetches the products of farmID and replaces the store wholesale.
// On failure the previous list stays in place.
func (c *Controller) Load(ctx context.Context, farmID string) (products []domain.Product, err error) {
	ctx, span := c.startSpan(ctx, "controller.Load", attribute.String("farm.id", farmID))
	defer span.End()
	start := time.Now()
	defer func() { c.finish(ctx, span, "load", start, err) }()

	c.mu.Lock()
	c.loads++
	token := c.loads
	c.mu.Unlock()

	products, err = c.backend.ListProducts(ctx, farmID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.loads {
		logger.Info(ctx).
			Str("farm_id", farmID).
			Msg("Newer farm selection in progress, load discarded")
		return products, nil
	}
	if err != nil {
		c.alert(ctx, err, "Failed to load products")
		return nil, err
	}

	c.store.Replace(farmID, products)
	c.commit(ctx)

	logger.Info(ctx).
		Str("farm_id", farmID).
		Int("products", len(products)).
		Msg("Products loaded")
	return c.store.Products(), nil
}

// commit rebuilds tracker and page from the store. Fields that already hold
// content start out completed. Caller holds mu.
func (c *Controller) commit(ctx context.Context) {
	c.tracker.Reset()
	products := c.store.Products()
	c.page.Render(c.store.FarmID(), products)

	for i := range products {
		p := &products[i]
		for _, field := range []domain.FieldType{domain.FieldShort, domain.FieldLong, domain.FieldImages} {
			if p.HasContent(field) {
				c.tracker.Settle(domain.Key(i, field), domain.LabelDone)
				c.syncBar(domain.Key(i, field))
			}
		}
		if p.IsConfirmed {
			c.tracker.Settle(domain.Key(i, domain.FieldConfirm), domain.LabelConfirmed)
			c.syncBar(domain.Key(i, domain.FieldConfirm))
		}
		if row, ok := c.page.Row(i); ok {
			row.Sync(*p)
		}
	}

	confirmed, total := c.store.Counts()
	c.page.SetSummary(progress.Overall(confirmed, total))
	c.renderer.Render(ctx, view.PageMessage(c.page.Snapshot()))
}
