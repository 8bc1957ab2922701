package controller

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tair/product-console/internal/catalog/domain"
)

// UploadImage stores a new product image and returns the cache-busted preview src
func (c *Controller) UploadImage(ctx context.Context, index int, image domain.ImageFile) (src string, err error) {
	ctx, span := c.startSpan(ctx, "controller.UploadImage",
		attribute.Int("product.index", index),
		attribute.Int("image.size", len(image.Data)),
	)
	defer span.End()
	start := time.Now()
	defer func() { c.finish(ctx, span, "upload_image", start, err) }()

	c.mu.Lock()
	image, err = c.checkImage(image)
	if err == nil {
		_, err = c.editable(index)
	}
	if err != nil {
		err = c.reject(ctx, err)
		c.mu.Unlock()
		return "", err
	}
	product, _ := c.store.Get(index)
	farmID := c.store.FarmID()
	epoch := c.store.Epoch()
	release := c.hold(ctx, index, domain.LabelUploading)
	cy := c.begin(domain.Key(index, domain.FieldImages), domain.LabelUploading)
	c.renderRow(ctx, index)
	c.mu.Unlock()

	path, err := c.backend.UploadImage(ctx, farmID, product.SKU, image)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer release()

	if c.superseded(ctx, "upload_image", epoch) {
		return "", err
	}
	if err != nil {
		c.fail(ctx, err, "Image upload failed", cy)
		return "", err
	}
	if c.confirmedSince(ctx, "upload_image", index, cy) {
		return "", c.reject(ctx, errConfirmedInFlight)
	}

	if !c.tracker.Accepts(cy.key, cy.seq) {
		return path, nil
	}
	_ = c.store.SetField(index, domain.FieldImages, path)
	c.complete(cy, domain.LabelDone)

	row, _ := c.page.Row(index)
	p, _ := c.store.Get(index)
	row.Sync(p)
	row.BustImage(path, c.now())
	return row.ImageSrc, nil
}

// checkImage applies the basic file checks. A missing or generic content
// type is replaced by the sniffed one.
func (c *Controller) checkImage(image domain.ImageFile) (domain.ImageFile, error) {
	if len(image.Data) == 0 {
		return image, domain.Validation("Select an image file first")
	}

	contentType := strings.ToLower(strings.TrimSpace(image.ContentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(image.Data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return image, domain.Validation(fmt.Sprintf("%s is not an image (%s)", image.Filename, contentType))
	}
	if int64(len(image.Data)) > c.cfg.MaxImageBytes {
		return image, domain.Validation(fmt.Sprintf("Image is larger than %d MB", c.cfg.MaxImageBytes>>20))
	}

	image.ContentType = contentType
	return image, nil
}
