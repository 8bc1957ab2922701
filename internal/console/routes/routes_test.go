package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/product-console/internal/catalog/client"
	"github.com/tair/product-console/internal/catalog/client/clienttest"
	"github.com/tair/product-console/internal/catalog/controller"
	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/internal/catalog/view"
	"github.com/tair/product-console/internal/console/health"
	"github.com/tair/product-console/internal/console/session"
)

type consoleTest struct {
	t       *testing.T
	app     *fiber.App
	backend *clienttest.Backend
	cookie  *http.Cookie
}

func newConsoleTest(t *testing.T) *consoleTest {
	t.Helper()

	backend := clienttest.New()
	t.Cleanup(backend.Close)
	backend.SetFarms(domain.Farm{ID: 1, FarmID: "F1", Name: "Green Acres"})
	backend.SetProducts("F1",
		domain.Product{SKU: "A", Name: "Apple jam"},
		domain.Product{SKU: "B", Name: "Goat cheese"},
	)
	backend.SetGenerated(domain.Descriptions{Short: "Sweet jam", Long: "Slow cooked apple jam"})

	bc := client.New(client.Config{BaseURL: backend.URL()})
	reg := prometheus.NewRegistry()
	metrics, err := controller.NewMetrics(reg)
	require.NoError(t, err)

	hub := view.NewHub()
	sessions := session.NewRegistry(func(id string) *controller.Controller {
		return controller.New(id, bc, hub.Session(id), metrics, controller.Config{})
	}, time.Hour)

	checker := health.NewChecker("product-console", time.Second)
	checker.Register("backend", bc.Ping)

	app := NewApp(AppConfig{
		ServiceName: "product-console",
		SessionTTL:  time.Hour,
	}, Deps{
		Sessions: sessions,
		Hub:      hub,
		Health:   checker,
		Gatherer: reg,
	})

	return &consoleTest{t: t, app: app, backend: backend}
}

// do sends req within the test session, starting one on first use
func (ct *consoleTest) do(req *http.Request) *http.Response {
	ct.t.Helper()
	if ct.cookie != nil {
		req.AddCookie(ct.cookie)
	}
	resp, err := ct.app.Test(req, -1)
	require.NoError(ct.t, err)

	for _, c := range resp.Cookies() {
		if c.Name == session.CookieName {
			ct.cookie = c
		}
	}
	return resp
}

func (ct *consoleTest) json(method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	ct.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ct.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	resp := ct.do(req)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(ct.t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(ct.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func (ct *consoleTest) selectFarm(farmID string) {
	ct.t.Helper()
	resp, _ := ct.json(http.MethodPut, "/api/session/farm", map[string]string{"farm_id": farmID})
	require.Equal(ct.t, http.StatusOK, resp.StatusCode)
}

func errorKind(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	kind, _ := e["kind"].(string)
	return kind
}

func TestHealthEndpoints(t *testing.T) {
	ct := newConsoleTest(t)

	resp, body := ct.json(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, health.StatusHealthy, body["status"])

	resp, body = ct.json(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, health.StatusHealthy, body["status"])

	ct.backend.SetFailure(clienttest.RouteHealth, http.StatusInternalServerError, "down")
	resp, body = ct.json(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, health.StatusUnhealthy, body["status"])
}

func TestSessionCookie(t *testing.T) {
	ct := newConsoleTest(t)

	_, first := ct.json(http.MethodGet, "/api/session", nil)
	require.NotNil(t, ct.cookie)
	assert.True(t, session.ValidID(ct.cookie.Value))
	assert.Equal(t, ct.cookie.Value, first["session_id"])

	resp, second := ct.json(http.MethodGet, "/api/session", nil)
	assert.Empty(t, resp.Cookies(), "known session keeps its cookie")
	assert.Equal(t, first["session_id"], second["session_id"])
}

func TestListFarms(t *testing.T) {
	ct := newConsoleTest(t)

	resp, body := ct.json(http.MethodGet, "/api/farms", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	farms, _ := body["farms"].([]interface{})
	require.Len(t, farms, 1)
	assert.Equal(t, "Green Acres", farms[0].(map[string]interface{})["name"])
}

func TestSelectFarmAndGenerate(t *testing.T) {
	ct := newConsoleTest(t)

	resp, body := ct.json(http.MethodPut, "/api/session/farm", map[string]string{"farm_id": "F1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["products"], 2)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, "0/2 products confirmed", summary["counter"])
	assert.Equal(t, false, summary["export_visible"])

	resp, body = ct.json(http.MethodPost, "/api/session/products/0/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Sweet jam", body["short_description"])

	_, body = ct.json(http.MethodGet, "/api/session", nil)
	rows := body["page"].(map[string]interface{})["rows"].([]interface{})
	row := rows[0].(map[string]interface{})
	assert.Equal(t, "completed", row["short"].(map[string]interface{})["phase"])
	assert.Equal(t, false, row["confirm_button"].(map[string]interface{})["disabled"])
}

func TestUnknownFarmMapsToBadGateway(t *testing.T) {
	ct := newConsoleTest(t)

	resp, body := ct.json(http.MethodPut, "/api/session/farm", map[string]string{"farm_id": "F9"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, string(domain.KindServer), errorKind(body))
	assert.Equal(t, "farm not found", body["error"].(map[string]interface{})["message"])
}

func TestActionErrors(t *testing.T) {
	ct := newConsoleTest(t)
	ct.selectFarm("F1")

	tests := []struct {
		name   string
		method string
		path   string
		status int
		kind   domain.ErrorKind
	}{
		{"non numeric index", http.MethodPost, "/api/session/products/x/generate", http.StatusBadRequest, domain.KindValidation},
		{"index out of range", http.MethodPost, "/api/session/products/9/confirm", http.StatusNotFound, domain.KindIndexOutOfRange},
		{"regenerate images", http.MethodPost, "/api/session/products/0/regenerate/images", http.StatusBadRequest, domain.KindValidation},
		{"unknown export format", http.MethodGet, "/api/session/export?format=pdf", http.StatusBadRequest, domain.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ct.json(tt.method, tt.path, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, string(tt.kind), errorKind(body))
		})
	}
	assert.Zero(t, ct.backend.Calls(clienttest.RouteConfirm))
}

func imageRequest(t *testing.T, path, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUploadImage(t *testing.T) {
	ct := newConsoleTest(t)
	ct.selectFarm("F1")

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	resp := ct.do(imageRequest(t, "/api/session/products/1/image", "cheese.png", "image/png", png))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, strings.HasPrefix(body["image_src"], "/static/images/F1/B/cheese.png?t="), body["image_src"])

	uploads := ct.backend.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "image/png", uploads[0].ContentType)
}

func TestUploadRejectsNonImage(t *testing.T) {
	ct := newConsoleTest(t)
	ct.selectFarm("F1")

	resp := ct.do(imageRequest(t, "/api/session/products/0/image", "notes.txt", "text/plain", []byte("hello")))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ct.do(httptest.NewRequest(http.MethodPost, "/api/session/products/0/image", nil))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing file")

	assert.Empty(t, ct.backend.Uploads())
}

func TestConfirmEditAndExport(t *testing.T) {
	ct := newConsoleTest(t)
	ct.selectFarm("F1")
	ct.backend.SetExport(domain.ExportCSV, []byte("sku,name\nA,Apple jam\n"))

	resp, _ := ct.json(http.MethodPut, "/api/session/products/0/descriptions/short", map[string]string{"content": "Hand written"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := ct.json(http.MethodPost, "/api/session/products/0/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1/2 products confirmed", body["summary"].(map[string]interface{})["counter"])

	confirmed := ct.backend.Confirmed()
	require.Len(t, confirmed, 1)
	assert.Equal(t, "Hand written", confirmed[0].ShortDescription)

	resp = ct.do(httptest.NewRequest(http.MethodGet, "/api/session/export?format=csv", nil))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "farm_F1_export.csv")
	assert.Equal(t, "1", resp.Header.Get("X-Export-Rows"))

	resp, body = ct.json(http.MethodPost, "/api/session/products/0/edit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0/2 products confirmed", body["summary"].(map[string]interface{})["counter"])
}

func TestViewStreamRequiresUpgrade(t *testing.T) {
	ct := newConsoleTest(t)

	resp, _ := ct.json(http.MethodGet, "/ws/view", nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ct := newConsoleTest(t)
	ct.selectFarm("F1")

	resp := ct.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "product_console_actions_total")
}
