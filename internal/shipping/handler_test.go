package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradeops-backend/internal/codes"
	"tradeops-backend/internal/events"
	"tradeops-backend/internal/models"
	"tradeops-backend/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(s store.Store) *fiber.App {
	svc := NewService(s, &events.Recorder{}, codes.NewShipmentNumbers())

	app := fiber.New()
	app.Post("/proforma-invoices", CreateProformaHandler(s))
	app.Get("/proforma-invoices/:id", GetProformaHandler(s))
	app.Post("/shipments", CreateShipmentHandler(svc))
	app.Get("/shipments/:id", GetShipmentHandler(s))
	app.Post("/shipments/:id/status", UpdateShipmentStatusHandler(svc))
	app.Post("/shipments/:id/containers", CreateContainerHandler(svc))
	app.Get("/shipments/:id/containers", ListContainersHandler(s))
	app.Get("/containers/:id", GetContainerHandler(svc))
	app.Post("/containers/:id/check-fit", CheckFitHandler(svc))
	app.Post("/containers/:id/items", AssignItemHandler(svc))
	app.Delete("/containers/:id/items/:itemId", RemoveItemHandler(svc))
	app.Post("/containers/:id/seal", SealHandler(svc))
	app.Post("/containers/:id/unseal", UnsealHandler(svc))
	app.Get("/containers/:id/suggestions", SuggestionsHandler(svc))
	return app
}

func call(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, string(raw)
}

func TestHandlers_PackingFlow(t *testing.T) {
	s := store.NewMemoryStore()
	p := &models.Product{
		Name: "Press", SKU: "PR-1",
		ProductLength: f64(10), ProductWidth: f64(10), ProductHeight: f64(10),
		WeightGrams: f64(1000000),
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	app := newTestApp(s)

	code, pi, _ := call(t, app, http.MethodPost, "/proforma-invoices",
		fmt.Sprintf(`{"proforma_number":"PI-9","client_name":"Acme","items":[{"product_id":%d,"quantity":50,"unit_price":100}]}`, p.ID))
	require.Equal(t, http.StatusCreated, code)
	lines := pi["items"].([]any)
	lineID := uint(lines[0].(map[string]any)["id"].(float64))
	assert.Equal(t, float64(50), lines[0].(map[string]any)["quantity_remaining"])

	code, sh, _ := call(t, app, http.MethodPost, "/shipments", `{}`)
	require.Equal(t, http.StatusCreated, code)
	shipID := uint(sh["id"].(float64))
	assert.True(t, strings.HasPrefix(sh["shipment_number"].(string), "SHP-"))

	code, ctr, _ := call(t, app, http.MethodPost, fmt.Sprintf("/shipments/%d/containers", shipID),
		`{"container_number":"CN-1","container_type":"pallet"}`)
	require.Equal(t, http.StatusCreated, code)
	ctrID := uint(ctr["id"].(float64))

	// pallet holds 1000 kg; the container is still empty
	code, _, body := call(t, app, http.MethodPost, fmt.Sprintf("/containers/%d/seal", ctrID), `{"seal_number":"S-1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body, "pack at least one item")

	code, fit, _ := call(t, app, http.MethodPost, fmt.Sprintf("/containers/%d/check-fit", ctrID), `{"weight":1200,"volume":"0.5"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, fit["can_fit"])

	code, _, body = call(t, app, http.MethodPost, fmt.Sprintf("/containers/%d/items", ctrID),
		fmt.Sprintf(`{"proforma_invoice_item_id":%d,"quantity":2}`, lineID))
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body, "weight limit exceeded by 1000 kg")

	code, item, _ := call(t, app, http.MethodPost, fmt.Sprintf("/containers/%d/items", ctrID),
		fmt.Sprintf(`{"proforma_invoice_item_id":%d,"quantity":1}`, lineID))
	require.Equal(t, http.StatusCreated, code)
	itemID := uint(item["id"].(float64))

	code, _, body = call(t, app, http.MethodPost, fmt.Sprintf("/containers/%d/items", ctrID),
		fmt.Sprintf(`{"proforma_invoice_item_id":%d,"quantity":60}`, lineID))
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body, "remaining 49, requested 60")

	code, sum, _ := call(t, app, http.MethodPost, fmt.Sprintf("/containers/%d/seal", ctrID), `{"seal_number":"S-1"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sealed", sum["status"])
	assert.Equal(t, float64(100), sum["weight"].(map[string]any)["utilization"])

	code, _, _ = call(t, app, http.MethodDelete, fmt.Sprintf("/containers/%d/items/%d", ctrID, itemID), "")
	assert.Equal(t, http.StatusConflict, code)

	code, _, _ = call(t, app, http.MethodPost, fmt.Sprintf("/containers/%d/unseal", ctrID), `{"reason":"wrong pallet"}`)
	require.Equal(t, http.StatusOK, code)

	code, _, _ = call(t, app, http.MethodDelete, fmt.Sprintf("/containers/%d/items/%d", ctrID, itemID), "")
	assert.Equal(t, http.StatusNoContent, code)

	code, adv, _ := call(t, app, http.MethodGet, fmt.Sprintf("/containers/%d/suggestions", ctrID), "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, adv["suggestions"])

	code, _, _ = call(t, app, http.MethodPost, fmt.Sprintf("/shipments/%d/status", shipID), `{"status":"delivered"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _, _ = call(t, app, http.MethodGet, "/containers/999", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _, _ = call(t, app, http.MethodGet, "/containers/abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
}
