package costing

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"tradeops-backend/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCostingApp(s store.Store) *fiber.App {
	engine := NewEngine(s)
	app := fiber.New()
	app.Post("/products", CreateProductHandler(s, engine))
	app.Get("/products/:id", GetProductHandler(s))
	app.Put("/products/:id", UpdateProductHandler(engine))
	app.Post("/products/:id/recalculate", RecalculateHandler(engine))
	app.Get("/products/:id/cost-history", CostHistoryHandler(s))
	app.Get("/products/:id/bom-items", ListBomItemsHandler(s))
	app.Post("/products/:id/bom-items", CreateBomItemHandler(engine))
	app.Delete("/products/:id/bom-items/:itemId", DeleteBomItemHandler(engine))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func costsOf(t *testing.T, raw string) CostView {
	t.Helper()
	var out struct {
		Costs CostView `json:"costs"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out.Costs
}

func TestProductHandlers_BomFlow(t *testing.T) {
	app := newCostingApp(store.NewMemoryStore())

	code, body := do(t, app, http.MethodPost, "/products",
		`{"name":"Chair","sku":"CH-1","price":100,"direct_labor_cost":1000,"direct_overhead_cost":500,"markup_percentage":"20"}`)
	require.Equal(t, http.StatusCreated, code, body)
	costs := costsOf(t, body)
	assert.Equal(t, int64(1500), costs.TotalManufacturingCost)
	assert.Equal(t, int64(1800), costs.CalculatedSellingPrice)
	assert.Equal(t, int64(100), costs.Price)
	assert.Equal(t, "20.00", costs.MarkupPercentage)

	code, body = do(t, app, http.MethodPost, "/products", `{"name":"Chair again","sku":"CH-1"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body, "sku is already in use")

	code, body = do(t, app, http.MethodPost, "/products/1/bom-items", `{"quantity":"2","unit_cost":2500}`)
	require.Equal(t, http.StatusCreated, code, body)
	costs = costsOf(t, body)
	assert.Equal(t, int64(5000), costs.BomMaterialCost)
	assert.Equal(t, int64(6500), costs.TotalManufacturingCost)
	assert.Equal(t, int64(7800), costs.Price)
	assert.Equal(t, 78.0, costs.PriceMajor)

	code, body = do(t, app, http.MethodGet, "/products/1/bom-items", "")
	require.Equal(t, http.StatusOK, code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &items))
	require.Len(t, items, 1)
	itemID := int(items[0]["id"].(float64))

	code, body = do(t, app, http.MethodPost, "/products/1/bom-items", `{"quantity":"0","unit_cost":10}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body, ErrInvalidBomQuantity.Error())

	code, body = do(t, app, http.MethodDelete, "/products/1/bom-items/"+strconv.Itoa(itemID), "")
	require.Equal(t, http.StatusOK, code, body)
	costs = costsOf(t, body)
	assert.Zero(t, costs.BomItemCount)
	assert.Equal(t, int64(1500), costs.TotalManufacturingCost)

	code, body = do(t, app, http.MethodGet, "/products/1/cost-history", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "total_manufacturing_cost")
}

func TestProductHandlers_Errors(t *testing.T) {
	app := newCostingApp(store.NewMemoryStore())

	code, _ := do(t, app, http.MethodPost, "/products", `{"name":"Desk","sku":"DK-1","direct_labor_cost":-1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = do(t, app, http.MethodPost, "/products", `{"name":"Desk"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, app, http.MethodGet, "/products/99", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "product not found")

	code, _ = do(t, app, http.MethodPost, "/products/abc/recalculate", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, app, http.MethodPost, "/products/99/recalculate", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUpdateProductHandler(t *testing.T) {
	app := newCostingApp(store.NewMemoryStore())

	code, body := do(t, app, http.MethodPost, "/products", `{"name":"Table","sku":"TB-1","price":4000,"direct_labor_cost":1000}`)
	require.Equal(t, http.StatusCreated, code, body)

	code, body = do(t, app, http.MethodPut, "/products/1", `{"price":4500}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, int64(4500), costsOf(t, body).Price)

	code, body = do(t, app, http.MethodPost, "/products/1/bom-items", `{"quantity":"1","unit_cost":5000}`)
	require.Equal(t, http.StatusCreated, code, body)

	code, body = do(t, app, http.MethodPut, "/products/1", `{"name":"Table XL","price":1}`)
	require.Equal(t, http.StatusOK, code, body)
	costs := costsOf(t, body)
	assert.Equal(t, int64(5000), costs.BomMaterialCost)
	assert.Equal(t, int64(6000), costs.TotalManufacturingCost)
	assert.Equal(t, costs.CalculatedSellingPrice, costs.Price)

	code, body = do(t, app, http.MethodGet, "/products/1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Table XL")
	costs = costsOf(t, body)
	assert.Equal(t, int64(5000), costs.BomMaterialCost)
	assert.Equal(t, costs.CalculatedSellingPrice, costs.Price)

	code, body = do(t, app, http.MethodPut, "/products/1", `{"markup_percentage":"50"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, int64(9000), costsOf(t, body).Price)

	code, body = do(t, app, http.MethodPut, "/products/1", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, code, body)
	assert.Contains(t, body, "name and sku cannot be empty")

	code, _ = do(t, app, http.MethodPut, "/products/99", `{"name":"Ghost"}`)
	assert.Equal(t, http.StatusNotFound, code)
}
