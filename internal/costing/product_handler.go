package costing

import (
	"errors"
	"log"
	"strings"

	"tradeops-backend/internal/auth"
	"tradeops-backend/internal/measure"
	"tradeops-backend/internal/models"
	"tradeops-backend/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type ProductResponse struct {
	models.Product
	CostView          CostView `json:"costs"`
	ProductCbm        *float64 `json:"product_cbm"`
	InnerBoxCbm       *float64 `json:"inner_box_cbm"`
	EstimatedCartonKg *float64 `json:"estimated_carton_weight"`
	PackagingWarnings []string `json:"packaging_warnings"`
}

func newProductResponse(p *models.Product) ProductResponse {
	var unitKg *float64
	if w, ok := measure.UnitWeightKg(p); ok {
		f := w.InexactFloat64()
		unitKg = &f
	}
	return ProductResponse{
		Product:           *p,
		CostView:          NewCostView(p),
		ProductCbm:        measure.ProductCbm(p),
		InnerBoxCbm:       measure.InnerBoxCbm(p),
		EstimatedCartonKg: measure.EstimateCartonWeight(unitKg, p.PcsPerCarton),
		PackagingWarnings: measure.ValidatePackaging(p),
	}
}

// ProductRequest: nil fields are left untouched on update.
type ProductRequest struct {
	Name               *string          `json:"name"`
	SKU                *string          `json:"sku"`
	Description        *string          `json:"description"`
	Price              *int64           `json:"price"`
	DirectLaborCost    *int64           `json:"direct_labor_cost"`
	DirectOverheadCost *int64           `json:"direct_overhead_cost"`
	MarkupPercentage   *decimal.Decimal `json:"markup_percentage"`

	ProductLength *float64 `json:"product_length"`
	ProductWidth  *float64 `json:"product_width"`
	ProductHeight *float64 `json:"product_height"`
	WeightGrams   *float64 `json:"weight_grams"`

	PcsPerInnerBox      *int     `json:"pcs_per_inner_box"`
	InnerBoxLength      *float64 `json:"inner_box_length"`
	InnerBoxWidth       *float64 `json:"inner_box_width"`
	InnerBoxHeight      *float64 `json:"inner_box_height"`
	InnerBoxesPerCarton *int     `json:"inner_boxes_per_carton"`

	PcsPerCarton *int     `json:"pcs_per_carton"`
	CartonLength *float64 `json:"carton_length"`
	CartonWidth  *float64 `json:"carton_width"`
	CartonHeight *float64 `json:"carton_height"`
	CartonWeight *float64 `json:"carton_weight"`
}

func (r *ProductRequest) validate() error {
	for _, v := range []*int64{r.Price, r.DirectLaborCost, r.DirectOverheadCost} {
		if v != nil && *v < 0 {
			return fiber.NewError(fiber.StatusUnprocessableEntity, ErrNegativeCost.Error())
		}
	}
	for _, v := range []*float64{
		r.ProductLength, r.ProductWidth, r.ProductHeight, r.WeightGrams,
		r.InnerBoxLength, r.InnerBoxWidth, r.InnerBoxHeight,
		r.CartonLength, r.CartonWidth, r.CartonHeight, r.CartonWeight,
	} {
		if v != nil && *v < 0 {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "dimensions and weights cannot be negative")
		}
	}
	return nil
}

// apply copies the request onto p and reports whether a cost input changed.
func (r *ProductRequest) apply(p *models.Product) (costInputsChanged bool) {
	if r.Name != nil {
		p.Name = strings.TrimSpace(*r.Name)
	}
	if r.SKU != nil {
		p.SKU = strings.TrimSpace(*r.SKU)
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	// price follows the roll-up once the product has BOM lines
	if r.Price != nil && len(p.BomItems) == 0 {
		p.Price = *r.Price
	}
	if r.DirectLaborCost != nil && valueOrZero(p.DirectLaborCost) != *r.DirectLaborCost {
		p.DirectLaborCost = r.DirectLaborCost
		costInputsChanged = true
	}
	if r.DirectOverheadCost != nil && valueOrZero(p.DirectOverheadCost) != *r.DirectOverheadCost {
		p.DirectOverheadCost = r.DirectOverheadCost
		costInputsChanged = true
	}
	if r.MarkupPercentage != nil && !p.MarkupPercentage.Equal(*r.MarkupPercentage) {
		p.MarkupPercentage = *r.MarkupPercentage
		costInputsChanged = true
	}

	setF := func(dst **float64, v *float64) {
		if v != nil {
			*dst = v
		}
	}
	setI := func(dst **int, v *int) {
		if v != nil {
			*dst = v
		}
	}
	setF(&p.ProductLength, r.ProductLength)
	setF(&p.ProductWidth, r.ProductWidth)
	setF(&p.ProductHeight, r.ProductHeight)
	setF(&p.WeightGrams, r.WeightGrams)
	setI(&p.PcsPerInnerBox, r.PcsPerInnerBox)
	setF(&p.InnerBoxLength, r.InnerBoxLength)
	setF(&p.InnerBoxWidth, r.InnerBoxWidth)
	setF(&p.InnerBoxHeight, r.InnerBoxHeight)
	setI(&p.InnerBoxesPerCarton, r.InnerBoxesPerCarton)
	setI(&p.PcsPerCarton, r.PcsPerCarton)
	setF(&p.CartonLength, r.CartonLength)
	setF(&p.CartonWidth, r.CartonWidth)
	setF(&p.CartonHeight, r.CartonHeight)
	setF(&p.CartonWeight, r.CartonWeight)

	measure.Refresh(p)
	return costInputsChanged
}

// POST /api/products
func CreateProductHandler(s store.Store, engine *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := body.validate(); err != nil {
			return err
		}

		var p models.Product
		body.apply(&p)
		if p.Name == "" || p.SKU == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name and sku are required")
		}

		if err := s.CreateProduct(c.UserContext(), &p); err != nil {
			return httpError(err)
		}

		// derived fields start consistent even without a BOM
		out, err := engine.RecalculateManufacturingCost(c.UserContext(), p.ID, auth.ActorFrom(c), "product created")
		if err != nil {
			return httpError(err)
		}

		return c.Status(fiber.StatusCreated).JSON(newProductResponse(out))
	}
}

// GET /api/products/:id
func GetProductHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
		}
		p, err := s.GetProduct(c.UserContext(), uint(id))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(newProductResponse(p))
	}
}

// PUT /api/products/:id
func UpdateProductHandler(engine *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
		}

		var body ProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := body.validate(); err != nil {
			return err
		}

		p, err := engine.UpdateProduct(c.UserContext(), uint(id), func(p *models.Product) (bool, error) {
			changed := body.apply(p)
			if p.Name == "" || p.SKU == "" {
				return false, fiber.NewError(fiber.StatusBadRequest, "name and sku cannot be empty")
			}
			return changed, nil
		}, auth.ActorFrom(c))
		if err != nil {
			return httpError(err)
		}

		return c.JSON(newProductResponse(p))
	}
}

// POST /api/products/:id/recalculate
func RecalculateHandler(engine *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
		}
		p, err := engine.RecalculateManufacturingCost(c.UserContext(), uint(id), auth.ActorFrom(c), "manual recalculation")
		if err != nil {
			return httpError(err)
		}
		return c.JSON(NewCostView(p))
	}
}

// GET /api/products/:id/cost-history
func CostHistoryHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
		}
		if _, err := s.GetProduct(c.UserContext(), uint(id)); err != nil {
			return httpError(err)
		}
		rows, err := s.ListCostHistory(c.UserContext(), uint(id))
		if err != nil {
			return httpError(err)
		}
		if rows == nil {
			rows = []models.CostHistory{}
		}
		return c.JSON(rows)
	}
}

func httpError(err error) error {
	var vErr *ValidationError
	var fErr *fiber.Error
	switch {
	case errors.As(err, &fErr):
		return fErr
	case errors.As(err, &vErr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, vErr.Error())
	case errors.Is(err, ErrBomItemNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "product not found")
	case errors.Is(err, store.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, "sku is already in use")
	case errors.Is(err, store.ErrStaleWrite):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	log.Printf("costing: %v", err)
	return fiber.NewError(fiber.StatusInternalServerError, "unexpected error")
}
