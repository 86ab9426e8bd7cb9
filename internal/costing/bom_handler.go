package costing

import (
	"tradeops-backend/internal/auth"
	"tradeops-backend/internal/models"
	"tradeops-backend/internal/store"

	"github.com/gofiber/fiber/v2"
)

type BomItemResponse struct {
	Item  *models.BomItem `json:"item,omitempty"`
	Costs CostView        `json:"costs"`
}

func productAndItemIDs(c *fiber.Ctx, withItem bool) (uint, uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}
	if !withItem {
		return uint(id), 0, nil
	}
	itemID, err := c.ParamsInt("itemId")
	if err != nil || itemID <= 0 {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, "invalid bom item id")
	}
	return uint(id), uint(itemID), nil
}

// GET /api/products/:id/bom-items
func ListBomItemsHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		productID, _, err := productAndItemIDs(c, false)
		if err != nil {
			return err
		}
		items, err := s.ListBomItems(c.UserContext(), productID)
		if err != nil {
			return httpError(err)
		}
		if items == nil {
			items = []models.BomItem{}
		}
		return c.JSON(items)
	}
}

// POST /api/products/:id/bom-items
func CreateBomItemHandler(engine *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		productID, _, err := productAndItemIDs(c, false)
		if err != nil {
			return err
		}
		var body BomLineInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		item, p, err := engine.AddBomItem(c.UserContext(), productID, body, auth.ActorFrom(c))
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(BomItemResponse{Item: item, Costs: NewCostView(p)})
	}
}

// PUT /api/products/:id/bom-items/:itemId
func UpdateBomItemHandler(engine *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		productID, itemID, err := productAndItemIDs(c, true)
		if err != nil {
			return err
		}
		var body BomLineInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		item, p, err := engine.UpdateBomItem(c.UserContext(), productID, itemID, body, auth.ActorFrom(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(BomItemResponse{Item: item, Costs: NewCostView(p)})
	}
}

// DELETE /api/products/:id/bom-items/:itemId
func DeleteBomItemHandler(engine *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		productID, itemID, err := productAndItemIDs(c, true)
		if err != nil {
			return err
		}
		p, err := engine.DeleteBomItem(c.UserContext(), productID, itemID, auth.ActorFrom(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(BomItemResponse{Costs: NewCostView(p)})
	}
}
