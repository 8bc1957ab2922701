package controller

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/pkg/logger"
)

// Export downloads the confirmed products of the selected farm. Nothing on
// the page changes, whether it succeeds or not.
func (c *Controller) Export(ctx context.Context, format string) (dl domain.Download, err error) {
	ctx, span := c.startSpan(ctx, "controller.Export", attribute.String("export.format", format))
	defer span.End()
	start := time.Now()
	defer func() { c.finish(ctx, span, "export", start, err) }()

	c.mu.Lock()
	exportFormat, err := domain.ParseExportFormat(format)
	if err == nil && c.store.FarmID() == "" {
		err = domain.Validation("Select a farm first")
	}
	if err != nil {
		err = c.reject(ctx, err)
		c.mu.Unlock()
		return domain.Download{}, err
	}
	farmID := c.store.FarmID()
	c.mu.Unlock()

	dl, err = c.backend.Export(ctx, farmID, exportFormat)
	if err != nil {
		c.mu.Lock()
		c.alert(ctx, err, "Export failed")
		c.mu.Unlock()
		return domain.Download{}, err
	}

	rows, countErr := countRows(exportFormat, dl.Data)
	if countErr != nil {
		logger.Warn(ctx).
			Err(countErr).
			Str("filename", dl.Filename).
			Msg("Could not count export rows")
	}
	dl.Rows = rows
	c.metrics.observeExport(rows)
	span.SetAttributes(attribute.Int("export.rows", rows))
	return dl, nil
}

// countRows counts data rows below the header line
func countRows(format domain.ExportFormat, data []byte) (int, error) {
	var records int

	switch format {
	case domain.ExportExcel:
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return 0, fmt.Errorf("failed to open workbook: %w", err)
		}
		defer f.Close()

		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return 0, nil
		}
		rows, err := f.GetRows(sheets[0])
		if err != nil {
			return 0, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
		}
		records = len(rows)

	default:
		r := csv.NewReader(bytes.NewReader(data))
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		all, err := r.ReadAll()
		if err != nil {
			return 0, fmt.Errorf("failed to parse csv: %w", err)
		}
		records = len(all)
	}

	if records == 0 {
		return 0, nil
	}
	return records - 1, nil
}

// ListFarms returns the farms for the selector
func (c *Controller) ListFarms(ctx context.Context) (farms []domain.Farm, err error) {
	ctx, span := c.startSpan(ctx, "controller.ListFarms")
	defer span.End()
	start := time.Now()
	defer func() { c.finish(ctx, span, "list_farms", start, err) }()

	farms, err = c.backend.ListFarms(ctx)
	if err != nil {
		c.mu.Lock()
		c.alert(ctx, err, "Failed to load farms")
		c.mu.Unlock()
		return nil, err
	}
	return farms, nil
}
