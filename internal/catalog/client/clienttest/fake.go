// Package clienttest provides an in-process catalog backend for tests.
package clienttest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/mux"

	"github.com/tair/product-console/internal/catalog/domain"
)

// Route names used by SetFailure and Calls
const (
	RouteFarms      = "farms"
	RouteProducts   = "products"
	RouteGenerate   = "generate"
	RouteRegenerate = "regenerate"
	RouteUpload     = "upload"
	RouteConfirm    = "confirm"
	RouteExport     = "export"
	RouteHealth     = "health"
)

type failure struct {
	status  int
	message string
}

// Upload records one received multipart upload
type Upload struct {
	FarmID      string
	SKU         string
	Filename    string
	ContentType string
	Size        int
}

// Backend is a fake catalog backend served by httptest
type Backend struct {
	server *httptest.Server

	mu            sync.Mutex
	farms         []domain.Farm
	products      map[string][]domain.Product
	generated     domain.Descriptions
	exports       map[string][]byte
	failures      map[string]failure
	confirmErrors map[string]string
	calls         map[string]int
	confirmed     []domain.Confirmation
	uploads       []Upload
	authHeaders   []string
}

// New starts a fake backend; call Close when done
func New() *Backend {
	b := &Backend{
		products:      make(map[string][]domain.Product),
		exports:       make(map[string][]byte),
		failures:      make(map[string]failure),
		confirmErrors: make(map[string]string),
		calls:         make(map[string]int),
		generated:     domain.Descriptions{Short: "short text", Long: "long text"},
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", b.wrap(RouteHealth, b.health)).Methods(http.MethodGet)
	r.HandleFunc("/products/api/farms", b.wrap(RouteFarms, b.listFarms)).Methods(http.MethodGet)
	r.HandleFunc("/products/api/farms/{farmID}/products", b.wrap(RouteProducts, b.listProducts)).Methods(http.MethodGet)
	r.HandleFunc("/products/api/farms/{farmID}/export", b.wrap(RouteExport, b.export)).Methods(http.MethodGet)
	r.HandleFunc("/products/generate_product_content", b.wrap(RouteGenerate, b.generate)).Methods(http.MethodPost)
	r.HandleFunc("/products/api/products/confirm", b.wrap(RouteConfirm, b.confirm)).Methods(http.MethodPost)
	r.HandleFunc("/products/api/products/{sku}/regenerate", b.wrap(RouteRegenerate, b.regenerate)).Methods(http.MethodPost)
	r.HandleFunc("/products/api/upload_image", b.wrap(RouteUpload, b.upload)).Methods(http.MethodPost)

	b.server = httptest.NewServer(r)
	return b
}

// URL is the base URL to configure the client with
func (b *Backend) URL() string { return b.server.URL }

// Close stops the server
func (b *Backend) Close() { b.server.Close() }

// SetFarms sets the farm list
func (b *Backend) SetFarms(farms ...domain.Farm) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.farms = farms
}

// SetProducts sets the products returned for a farm
func (b *Backend) SetProducts(farmID string, products ...domain.Product) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.products[farmID] = products
}

// SetGenerated sets the descriptions returned by generate and regenerate
func (b *Backend) SetGenerated(d domain.Descriptions) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generated = d
}

// SetExport sets the payload returned for an export format
func (b *Backend) SetExport(format domain.ExportFormat, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exports[string(format)] = data
}

// SetFailure makes a route answer with status and an error envelope.
// An empty message answers with an empty body.
func (b *Backend) SetFailure(route string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = failure{status: status, message: message}
}

// ClearFailure restores normal answers on a route
func (b *Backend) ClearFailure(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, route)
}

// SetConfirmError makes confirm answer 200 with an error field for sku
func (b *Backend) SetConfirmError(sku, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmErrors[sku] = message
}

// Calls returns how many requests reached route
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// TotalCalls returns the number of requests across all routes
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, n := range b.calls {
		total += n
	}
	return total
}

// Confirmed returns the confirmations received so far
func (b *Backend) Confirmed() []domain.Confirmation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Confirmation(nil), b.confirmed...)
}

// Uploads returns the uploads received so far
func (b *Backend) Uploads() []Upload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Upload(nil), b.uploads...)
}

// AuthHeaders returns every Authorization header seen
func (b *Backend) AuthHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders...)
}

func (b *Backend) wrap(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[route]++
		if h := r.Header.Get("Authorization"); h != "" {
			b.authHeaders = append(b.authHeaders, h)
		}
		f, failing := b.failures[route]
		b.mu.Unlock()

		if failing {
			if f.message == "" {
				w.WriteHeader(f.status)
				return
			}
			writeJSON(w, f.status, map[string]string{"error": f.message})
			return
		}
		next(w, r)
	}
}

func (b *Backend) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (b *Backend) listFarms(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	farms := b.farms
	if farms == nil {
		farms = []domain.Farm{}
	}
	writeJSON(w, http.StatusOK, farms)
}

func (b *Backend) listProducts(w http.ResponseWriter, r *http.Request) {
	farmID := mux.Vars(r)["farmID"]

	b.mu.Lock()
	defer b.mu.Unlock()
	products, ok := b.products[farmID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "farm not found"})
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (b *Backend) generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FarmID string `json:"farm_id"`
		SKU    string `json:"sku"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FarmID == "" || req.SKU == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "farm_id and sku are required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.generated)
}

func (b *Backend) regenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FarmID string `json:"farm_id"`
		Type   string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FarmID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "farm_id is required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch req.Type {
	case "short":
		writeJSON(w, http.StatusOK, map[string]string{"short_description": b.generated.Short})
	case "long":
		writeJSON(w, http.StatusOK, map[string]string{"long_description": b.generated.Long})
	default:
		writeJSON(w, http.StatusOK, b.generated)
	}
}

func (b *Backend) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form"})
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image is required"})
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	up := Upload{
		FarmID:      r.FormValue("farm_id"),
		SKU:         r.FormValue("sku"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        len(data),
	}

	b.mu.Lock()
	b.uploads = append(b.uploads, up)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"image_path": fmt.Sprintf("/static/images/%s/%s/%s", up.FarmID, up.SKU, up.Filename),
	})
}

func (b *Backend) confirm(w http.ResponseWriter, r *http.Request) {
	var req domain.Confirmation
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if msg, ok := b.confirmErrors[req.SKU]; ok {
		writeJSON(w, http.StatusOK, map[string]string{"error": msg})
		return
	}
	b.confirmed = append(b.confirmed, req)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (b *Backend) export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	b.mu.Lock()
	data, ok := b.exports[format]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no confirmed products to export"})
		return
	}

	w.Header().Set("Content-Type", domain.ExportFormat(format).ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
