// Package view holds the render model of the product page.
//
// Rows and their progress bars are built once per load; afterwards every
// (index, field) key resolves to its bar through an explicit handle map
// instead of being looked up by name.
package view

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/internal/catalog/progress"
)

// Bar is the handle of one progress bar
type Bar struct {
	domain.ProgressState
}

// Set replaces what the bar shows
func (b *Bar) Set(state domain.ProgressState) {
	b.ProgressState = state
}

// Button is the visible state of a row control
type Button struct {
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
	Hidden   bool   `json:"hidden"`
	Busy     bool   `json:"busy"`
}

// Row is one rendered product
type Row struct {
	Index    int            `json:"index"`
	Product  domain.Product `json:"product"`
	ImageSrc string         `json:"image_src"`

	Short   Bar `json:"short"`
	Long    Bar `json:"long"`
	Images  Bar `json:"images"`
	Confirm Bar `json:"confirm"`

	Generate        Button `json:"generate"`
	RegenerateShort Button `json:"regenerate_short"`
	RegenerateLong  Button `json:"regenerate_long"`
	Upload          Button `json:"upload"`
	ConfirmButton   Button `json:"confirm_button"`

	// labels of operations currently holding the confirm button
	holds []string
}

func (r *Row) bar(field domain.FieldType) *Bar {
	switch field {
	case domain.FieldShort:
		return &r.Short
	case domain.FieldLong:
		return &r.Long
	case domain.FieldImages:
		return &r.Images
	case domain.FieldConfirm:
		return &r.Confirm
	}
	return nil
}

// Sync copies product state into the row and recomputes its controls
func (r *Row) Sync(p domain.Product) {
	if p.ImagePath != r.Product.ImagePath || r.ImageSrc == "" {
		r.ImageSrc = p.ImagePath
	}
	r.Product = p
	r.refresh()
}

// Acquire marks the confirm button busy for an operation; pair with Release
func (r *Row) Acquire(label string) {
	r.holds = append(r.holds, label)
	r.refresh()
}

// Release ends one Acquire with the same label
func (r *Row) Release(label string) {
	for i := len(r.holds) - 1; i >= 0; i-- {
		if r.holds[i] == label {
			r.holds = append(r.holds[:i], r.holds[i+1:]...)
			break
		}
	}
	r.refresh()
}

// Busy reports whether any operation holds the row
func (r *Row) Busy() bool {
	return len(r.holds) > 0
}

// BustImage points the preview at path with a timestamp query so the browser refetches it
func (r *Row) BustImage(path string, at time.Time) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	r.ImageSrc = path + sep + "t=" + strconv.FormatInt(at.UnixMilli(), 10)
}

func (r *Row) holding(label string) bool {
	for _, h := range r.holds {
		if h == label {
			return true
		}
	}
	return false
}

func (r *Row) refresh() {
	p := &r.Product
	if p.IsConfirmed {
		hidden := Button{Hidden: true}
		r.Generate = hidden
		r.RegenerateShort = hidden
		r.RegenerateLong = hidden
		r.Upload = hidden
		r.ConfirmButton = Button{Label: domain.LabelConfirmed, Disabled: true}
		return
	}

	generating := r.holding(domain.LabelGenerating)
	r.Generate = Button{Label: "Generate", Disabled: generating, Busy: generating}
	r.RegenerateShort = Button{
		Label:    "Regenerate",
		Disabled: !p.HasContent(domain.FieldShort) || r.Short.Phase == domain.PhaseGenerating,
	}
	r.RegenerateLong = Button{
		Label:    "Regenerate",
		Disabled: !p.HasContent(domain.FieldLong) || r.Long.Phase == domain.PhaseGenerating,
	}
	uploading := r.holding(domain.LabelUploading)
	r.Upload = Button{Label: "Upload", Disabled: uploading, Busy: uploading}

	confirm := Button{Label: domain.LabelConfirm}
	if n := len(r.holds); n > 0 {
		confirm.Disabled = true
		if last := r.holds[n-1]; last != domain.LabelGenerating {
			confirm.Label = last
		}
	}
	r.ConfirmButton = confirm
}

// Alert is a dismissible operator-facing error message
type Alert struct {
	ID      string           `json:"id"`
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}

// NewAlert stamps a message with a fresh id
func NewAlert(kind domain.ErrorKind, message string) Alert {
	return Alert{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: message,
		At:      time.Now(),
	}
}

// Page is the render model of one page session
type Page struct {
	farmID  string
	rows    []*Row
	bars    map[domain.FieldKey]*Bar
	summary progress.Overview
}

// NewPage creates an empty page
func NewPage() *Page {
	return &Page{
		bars:    make(map[domain.FieldKey]*Bar),
		summary: progress.Overall(0, 0),
	}
}

// Render rebuilds every row and the handle map from a freshly loaded list
func (p *Page) Render(farmID string, products []domain.Product) {
	p.farmID = farmID
	p.rows = make([]*Row, len(products))
	p.bars = make(map[domain.FieldKey]*Bar, len(products)*len(domain.Fields))

	for i, product := range products {
		row := &Row{Index: i}
		for _, field := range domain.Fields {
			bar := row.bar(field)
			bar.Set(domain.IdleState())
			p.bars[domain.Key(i, field)] = bar
		}
		row.Sync(product)
		p.rows[i] = row
	}
}

// Bar resolves a field key to its handle
func (p *Page) Bar(key domain.FieldKey) (*Bar, bool) {
	b, ok := p.bars[key]
	return b, ok
}

// Row returns the row at index
func (p *Page) Row(index int) (*Row, bool) {
	if index < 0 || index >= len(p.rows) {
		return nil, false
	}
	return p.rows[index], true
}

// SetSummary replaces the overall progress section
func (p *Page) SetSummary(o progress.Overview) {
	p.summary = o
}

// Summary returns the overall progress section
func (p *Page) Summary() progress.Overview {
	return p.summary
}

// Snapshot is a copy of the page safe to hand to other goroutines
type Snapshot struct {
	FarmID  string            `json:"farm_id"`
	Rows    []Row             `json:"rows"`
	Summary progress.Overview `json:"summary"`
}

// Snapshot copies the page
func (p *Page) Snapshot() Snapshot {
	rows := make([]Row, len(p.rows))
	for i, r := range p.rows {
		rows[i] = r.copy()
	}
	return Snapshot{FarmID: p.farmID, Rows: rows, Summary: p.summary}
}

func (r *Row) copy() Row {
	c := *r
	c.holds = append([]string(nil), r.holds...)
	return c
}
