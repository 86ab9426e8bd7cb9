package shipping

import (
	"errors"
	"log"

	"tradeops-backend/internal/auth"
	"tradeops-backend/internal/models"
	"tradeops-backend/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

func idParam(c *fiber.Ctx, name, label string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+label+" id")
	}
	return uint(id), nil
}

// POST /api/shipments
func CreateShipmentHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateShipmentInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		sh, err := svc.CreateShipment(c.UserContext(), body)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(sh)
	}
}

// GET /api/shipments/:id
func GetShipmentHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "shipment")
		if err != nil {
			return err
		}
		sh, err := s.GetShipment(c.UserContext(), id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(sh)
	}
}

type shipmentStatusRequest struct {
	Status models.ShipmentStatus `json:"status"`
}

// POST /api/shipments/:id/status
func UpdateShipmentStatusHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "shipment")
		if err != nil {
			return err
		}
		var body shipmentStatusRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		sh, err := svc.UpdateShipmentStatus(c.UserContext(), id, body.Status, auth.ActorFrom(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(sh)
	}
}

// POST /api/shipments/:id/containers
func CreateContainerHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "shipment")
		if err != nil {
			return err
		}
		var body CreateContainerInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		ctr, err := svc.CreateContainer(c.UserContext(), id, body)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(ctr)
	}
}

// GET /api/shipments/:id/containers
func ListContainersHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "shipment")
		if err != nil {
			return err
		}
		list, err := s.ListContainers(c.UserContext(), id)
		if err != nil {
			return httpError(err)
		}
		out := make([]Summary, 0, len(list))
		for i := range list {
			out = append(out, ContainerSummary(&list[i]))
		}
		return c.JSON(out)
	}
}

// GET /api/containers/:id
func GetContainerHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "container")
		if err != nil {
			return err
		}
		sum, err := svc.Summary(c.UserContext(), id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(sum)
	}
}

type checkFitRequest struct {
	Weight decimal.Decimal `json:"weight"`
	Volume decimal.Decimal `json:"volume"`
}

// POST /api/containers/:id/check-fit
func CheckFitHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "container")
		if err != nil {
			return err
		}
		var body checkFitRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.Weight.IsNegative() || body.Volume.IsNegative() {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "weight and volume cannot be negative")
		}
		report, err := svc.CheckFit(c.UserContext(), id, body.Weight, body.Volume)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(report)
	}
}

// POST /api/containers/:id/items
func AssignItemHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "container")
		if err != nil {
			return err
		}
		var body AssignInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.ProformaItemID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "proforma_invoice_item_id is required")
		}
		item, err := svc.AssignItem(c.UserContext(), id, body, auth.ActorFrom(c))
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(item)
	}
}

// DELETE /api/containers/:id/items/:itemId
func RemoveItemHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "container")
		if err != nil {
			return err
		}
		itemID, err := idParam(c, "itemId", "item")
		if err != nil {
			return err
		}
		if err := svc.RemoveItem(c.UserContext(), id, itemID, auth.ActorFrom(c)); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type sealRequest struct {
	SealNumber string `json:"seal_number"`
}

// POST /api/containers/:id/seal
func SealHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "container")
		if err != nil {
			return err
		}
		var body sealRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		ctr, err := svc.Seal(c.UserContext(), id, body.SealNumber, auth.ActorFrom(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(ContainerSummary(ctr))
	}
}

type unsealRequest struct {
	Reason string `json:"reason"`
}

// POST /api/containers/:id/unseal (admin)
func UnsealHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "container")
		if err != nil {
			return err
		}
		var body unsealRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		ctr, err := svc.Unseal(c.UserContext(), id, body.Reason, auth.ActorFrom(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(ContainerSummary(ctr))
	}
}

// POST /api/containers/:id/dispatch
func DispatchHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "container")
		if err != nil {
			return err
		}
		ctr, err := svc.Dispatch(c.UserContext(), id, auth.ActorFrom(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(ContainerSummary(ctr))
	}
}

// POST /api/containers/:id/deliver
func DeliverHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "container")
		if err != nil {
			return err
		}
		ctr, err := svc.Deliver(c.UserContext(), id, auth.ActorFrom(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(ContainerSummary(ctr))
	}
}

// GET /api/containers/:id/suggestions
func SuggestionsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "container")
		if err != nil {
			return err
		}
		advice, err := svc.Advice(c.UserContext(), id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(advice)
	}
}

func httpError(err error) error {
	var (
		capErr   *CapacityExceededError
		allocErr *AllocationExceededError
		vErr     *ValidationError
	)
	switch {
	case errors.As(err, &capErr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, capErr.Error())
	case errors.As(err, &allocErr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, allocErr.Error())
	case errors.As(err, &vErr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, vErr.Error())
	case errors.Is(err, ErrEmptyContainer):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrItemNotFound), errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrContainerSealed), errors.Is(err, ErrNotSealed),
		errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrShipmentLocked),
		errors.Is(err, ErrSealNumberInUse), errors.Is(err, store.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, store.ErrStaleWrite):
		return fiber.NewError(fiber.StatusConflict, "container was modified concurrently, retry")
	}
	log.Printf("shipping: %v", err)
	return fiber.NewError(fiber.StatusInternalServerError, "unexpected error")
}
