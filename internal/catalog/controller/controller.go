// Package controller coordinates one page session of the product console:
// the product store, the progress tracker, the render model and the backend.
//
// Every state change happens under the controller mutex. Backend calls run
// with the mutex released; their results are folded back in a new locked
// turn and discarded when the product list was reloaded meanwhile or a newer
// cycle took over the field.
package controller

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/internal/catalog/progress"
	"github.com/tair/product-console/internal/catalog/store"
	"github.com/tair/product-console/internal/catalog/view"
	"github.com/tair/product-console/pkg/logger"
)

// Backend is the catalog API the controller drives
type Backend interface {
	ListFarms(ctx context.Context) ([]domain.Farm, error)
	ListProducts(ctx context.Context, farmID string) ([]domain.Product, error)
	GenerateContent(ctx context.Context, farmID, sku string) (domain.Descriptions, error)
	RegenerateContent(ctx context.Context, farmID, sku string, field domain.FieldType) (string, error)
	UploadImage(ctx context.Context, farmID, sku string, image domain.ImageFile) (string, error)
	ConfirmProduct(ctx context.Context, confirmation domain.Confirmation) error
	Export(ctx context.Context, farmID string, format domain.ExportFormat) (domain.Download, error)
}

// Config holds per-controller limits
type Config struct {
	MaxImageBytes int64
}

// DefaultMaxImageBytes matches the backend upload limit
const DefaultMaxImageBytes = 16 << 20

// Controller is the lifecycle controller of one page session
type Controller struct {
	sessionID string
	backend   Backend
	renderer  view.Renderer
	metrics   *Metrics
	tracer    trace.Tracer
	cfg       Config
	now       func() time.Time

	mu      sync.Mutex
	store   *store.Store
	tracker *progress.Tracker
	page    *view.Page
	loads   uint64
}

// New creates a controller with no farm selected
func New(sessionID string, backend Backend, renderer view.Renderer, metrics *Metrics, cfg Config) *Controller {
	if renderer == nil {
		renderer = view.Discard
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	return &Controller{
		sessionID: sessionID,
		backend:   backend,
		renderer:  renderer,
		metrics:   metrics,
		tracer:    otel.Tracer("product-console"),
		cfg:       cfg,
		now:       time.Now,
		store:     store.New(),
		tracker:   progress.NewTracker(),
		page:      view.NewPage(),
	}
}

// SessionID returns the page session this controller belongs to
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Snapshot returns a copy of the current render model
func (c *Controller) Snapshot() view.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page.Snapshot()
}

// Products returns a copy of the product list
func (c *Controller) Products() []domain.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Products()
}

// Progress returns the progress state of one field key
func (c *Controller) Progress(key domain.FieldKey) domain.ProgressState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.State(key)
}

// Overall returns the page-wide confirmation summary
func (c *Controller) Overall() progress.Overview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page.Summary()
}

// cycle names one started progress cycle
type cycle struct {
	key domain.FieldKey
	seq uint64
}

func (c *Controller) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx = logger.ContextWithSession(ctx, c.sessionID)
	attrs = append(attrs, attribute.String("session.id", c.sessionID))
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish closes out an action: span status, metrics and a log line
func (c *Controller) finish(ctx context.Context, span trace.Span, action string, start time.Time, err error) {
	c.metrics.observeAction(action, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
		logger.Warn(ctx).
			Err(err).
			Str("action", action).
			Dur("duration", time.Since(start)).
			Msg("Action failed")
		return
	}
	span.SetStatus(codes.Ok, "")
	logger.Info(ctx).
		Str("action", action).
		Dur("duration", time.Since(start)).
		Msg("Action completed")
}

// begin starts a cycle for key and mirrors it onto the bar. Caller holds mu.
func (c *Controller) begin(key domain.FieldKey, label string) cycle {
	seq := c.tracker.Begin(key, label)
	c.syncBar(key)
	return cycle{key: key, seq: seq}
}

// complete ends cy successfully if it is still current. Caller holds mu.
func (c *Controller) complete(cy cycle, label string) bool {
	if !c.tracker.Complete(cy.key, cy.seq, label) {
		return false
	}
	c.syncBar(cy.key)
	return true
}

// syncBar copies tracker state into the bar handle. Caller holds mu.
func (c *Controller) syncBar(key domain.FieldKey) {
	if bar, ok := c.page.Bar(key); ok {
		bar.Set(c.tracker.State(key))
	}
}

// fail is the single failure routine: it surfaces err as an alert and moves
// every cycle that is still current to error. Caller holds mu.
func (c *Controller) fail(ctx context.Context, err error, fallback string, cycles ...cycle) {
	c.alert(ctx, err, fallback)

	rows := make(map[int]struct{})
	for _, cy := range cycles {
		if c.tracker.Fail(cy.key, cy.seq, domain.LabelError) {
			c.syncBar(cy.key)
			rows[cy.key.Index] = struct{}{}
		}
	}
	for index := range rows {
		c.renderRow(ctx, index)
	}
}

// reject surfaces a failure that happened before anything was started. Caller holds mu.
func (c *Controller) reject(ctx context.Context, err error) error {
	c.alert(ctx, err, "Action rejected")
	return err
}

func (c *Controller) alert(ctx context.Context, err error, fallback string) {
	a := view.NewAlert(domain.KindOf(err), domain.MessageOf(err, fallback))
	c.renderer.Render(ctx, view.AlertMessage(a))
}

// renderRow syncs the row with the store and re-renders it. Caller holds mu.
func (c *Controller) renderRow(ctx context.Context, index int) {
	row, ok := c.page.Row(index)
	if !ok {
		return
	}
	if p, err := c.store.Get(index); err == nil {
		row.Sync(p)
	}
	c.renderer.Render(ctx, view.RowMessage(row))
}

// renderSummary recomputes overall progress. Caller holds mu.
func (c *Controller) renderSummary(ctx context.Context) {
	confirmed, total := c.store.Counts()
	c.page.SetSummary(progress.Overall(confirmed, total))
	c.renderer.Render(ctx, view.SummaryMessage(c.page.Summary()))
}

// editable checks the preconditions shared by generate, regenerate and upload. Caller holds mu.
func (c *Controller) editable(index int) (domain.Product, error) {
	if c.store.FarmID() == "" {
		return domain.Product{}, domain.Validation("Select a farm first")
	}
	p, err := c.store.Get(index)
	if err != nil {
		return domain.Product{}, err
	}
	if p.IsConfirmed {
		return domain.Product{}, domain.Validation("Product " + p.SKU + " is confirmed; enable editing first")
	}
	return p, nil
}

// hold marks the row busy for label until the returned release is called.
// release must run with mu held and only touches the row when the list was
// not reloaded in between.
func (c *Controller) hold(ctx context.Context, index int, label string) func() {
	row, ok := c.page.Row(index)
	if !ok {
		return func() {}
	}
	epoch := c.store.Epoch()
	row.Acquire(label)
	return func() {
		if c.store.Epoch() != epoch {
			return
		}
		row.Release(label)
		c.renderRow(ctx, index)
	}
}

// superseded reports whether a reload happened since epoch, logging the discard. Caller holds mu.
func (c *Controller) superseded(ctx context.Context, action string, epoch uint64) bool {
	if c.store.Epoch() == epoch {
		return false
	}
	logger.Info(ctx).
		Str("action", action).
		Msg("Product list reloaded while request was in flight, result discarded")
	return true
}

var errConfirmedInFlight = domain.Validation("Product was confirmed before the result arrived; enable editing to apply new content")

// confirmedSince reports whether the product at index got confirmed while a
// request for it was in flight. The late result is dropped and cycles that
// are still current end as completed on the confirmed content. Caller holds mu.
func (c *Controller) confirmedSince(ctx context.Context, action string, index int, cycles ...cycle) bool {
	p, err := c.store.Get(index)
	if err != nil || !p.IsConfirmed {
		return false
	}
	for _, cy := range cycles {
		c.complete(cy, domain.LabelDone)
	}
	c.renderRow(ctx, index)
	logger.Info(ctx).
		Str("action", action).
		Str("product.sku", p.SKU).
		Msg("Product confirmed while request was in flight, result discarded")
	return true
}
