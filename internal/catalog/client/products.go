package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/tair/product-console/internal/catalog/domain"
)

// ListFarms returns the farms available to the console
func (c *BackendClient) ListFarms(ctx context.Context) ([]domain.Farm, error) {
	resp, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/products/api/farms",
		timeout:  c.cfg.Timeout,
		fallback: "Failed to load farms",
	})
	if err != nil {
		return nil, err
	}

	var farms []domain.Farm
	if err := c.decode(ctx, resp.body, &farms, "Failed to load farms"); err != nil {
		return nil, err
	}
	return farms, nil
}

// ListProducts returns the products of one farm in display order
func (c *BackendClient) ListProducts(ctx context.Context, farmID string) ([]domain.Product, error) {
	resp, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/products/api/farms/" + url.PathEscape(farmID) + "/products",
		timeout:  c.cfg.Timeout,
		fallback: "Failed to load products",
	})
	if err != nil {
		return nil, err
	}

	var products []domain.Product
	if err := c.decode(ctx, resp.body, &products, "Failed to load products"); err != nil {
		return nil, err
	}
	return products, nil
}

// GenerateContent asks the backend to write both descriptions for a product
func (c *BackendClient) GenerateContent(ctx context.Context, farmID, sku string) (domain.Descriptions, error) {
	const fallback = "Content generation failed"

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Descriptions{}, domain.NetworkFailure("generation throttled", err)
	}

	body, err := c.jsonBody(map[string]string{"farm_id": farmID, "sku": sku})
	if err != nil {
		return domain.Descriptions{}, err
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/products/generate_product_content",
		body:        body,
		contentType: "application/json",
		timeout:     c.cfg.GenerateTimeout,
		fallback:    fallback,
	})
	if err != nil {
		return domain.Descriptions{}, err
	}
	if msg, ok := envelopeError(resp.body); ok {
		return domain.Descriptions{}, domain.ServerError(resp.status, orFallback(msg, fallback))
	}

	var out domain.Descriptions
	if err := c.decode(ctx, resp.body, &out, fallback); err != nil {
		return domain.Descriptions{}, err
	}
	return out, nil
}

// RegenerateContent rewrites a single description field
func (c *BackendClient) RegenerateContent(ctx context.Context, farmID, sku string, field domain.FieldType) (string, error) {
	const fallback = "Regenerate failed"

	if err := c.limiter.Wait(ctx); err != nil {
		return "", domain.NetworkFailure("generation throttled", err)
	}

	body, err := c.jsonBody(map[string]string{"farm_id": farmID, "type": string(field)})
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/products/api/products/" + url.PathEscape(sku) + "/regenerate",
		body:        body,
		contentType: "application/json",
		timeout:     c.cfg.GenerateTimeout,
		fallback:    fallback,
	})
	if err != nil {
		return "", err
	}
	if msg, ok := envelopeError(resp.body); ok {
		return "", domain.ServerError(resp.status, orFallback(msg, fallback))
	}

	var out map[string]interface{}
	if err := c.decode(ctx, resp.body, &out, fallback); err != nil {
		return "", err
	}
	text, ok := out[string(field)+"_description"].(string)
	if !ok {
		return "", domain.ServerError(resp.status, fallback)
	}
	return text, nil
}

// UploadImage sends the image as multipart form data and returns the stored path
func (c *BackendClient) UploadImage(ctx context.Context, farmID, sku string, image domain.ImageFile) (string, error) {
	const fallback = "Image upload failed"

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="image"; filename=%q`, image.Filename))
	header.Set("Content-Type", image.ContentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return "", fmt.Errorf("failed to write image part: %w", err)
	}
	if err := form.WriteField("farm_id", farmID); err != nil {
		return "", fmt.Errorf("failed to write farm_id: %w", err)
	}
	if err := form.WriteField("sku", sku); err != nil {
		return "", fmt.Errorf("failed to write sku: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart form: %w", err)
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/products/api/upload_image",
		body:        &buf,
		contentType: form.FormDataContentType(),
		timeout:     c.cfg.UploadTimeout,
		fallback:    fallback,
	})
	if err != nil {
		return "", err
	}
	if msg, ok := envelopeError(resp.body); ok {
		return "", domain.ServerError(resp.status, orFallback(msg, fallback))
	}

	var out struct {
		ImagePath string `json:"image_path"`
	}
	if err := c.decode(ctx, resp.body, &out, fallback); err != nil {
		return "", err
	}
	if out.ImagePath == "" {
		return "", domain.ServerError(resp.status, fallback)
	}
	return out.ImagePath, nil
}

// ConfirmProduct saves the confirmed content. A 2xx answer that still
// carries an error field counts as a failure.
func (c *BackendClient) ConfirmProduct(ctx context.Context, confirmation domain.Confirmation) error {
	const fallback = "Confirmation failed"

	body, err := c.jsonBody(confirmation)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/products/api/products/confirm",
		body:        body,
		contentType: "application/json",
		timeout:     c.cfg.Timeout,
		fallback:    fallback,
	})
	if err != nil {
		return err
	}
	if msg, ok := envelopeError(resp.body); ok {
		return domain.ServerError(resp.status, orFallback(msg, fallback))
	}
	return nil
}

// Export downloads the confirmed products of a farm as a file
func (c *BackendClient) Export(ctx context.Context, farmID string, format domain.ExportFormat) (domain.Download, error) {
	resp, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/products/api/farms/" + url.PathEscape(farmID) + "/export?format=" + url.QueryEscape(string(format)),
		timeout:  c.cfg.UploadTimeout,
		fallback: "Export failed",
	})
	if err != nil {
		return domain.Download{}, err
	}

	contentType := resp.header.Get("Content-Type")
	if contentType == "" {
		contentType = format.ContentType()
	}
	return domain.Download{
		Filename:    domain.ExportFilename(farmID, format),
		ContentType: contentType,
		Data:        resp.body,
	}, nil
}

// Ping checks backend liveness
func (c *BackendClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/health",
		timeout:  c.cfg.Timeout,
		fallback: "Backend unhealthy",
	})
	return err
}

func orFallback(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
