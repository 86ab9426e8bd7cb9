package shipping

import (
	"errors"
	"strconv"
	"strings"

	"tradeops-backend/internal/models"
	"tradeops-backend/internal/store"

	"github.com/gofiber/fiber/v2"
)

type ProformaLineRequest struct {
	ProductID uint  `json:"product_id"`
	Quantity  int64 `json:"quantity"`
	UnitPrice int64 `json:"unit_price"` // cents
}

type ProformaRequest struct {
	ProformaNumber string                `json:"proforma_number"`
	ClientName     string                `json:"client_name"`
	Items          []ProformaLineRequest `json:"items"`
}

type ProformaLineResponse struct {
	models.ProformaInvoiceItem
	QuantityRemaining int64 `json:"quantity_remaining"`
}

type ProformaResponse struct {
	ID             uint                   `json:"id"`
	ProformaNumber string                 `json:"proforma_number"`
	ClientName     string                 `json:"client_name"`
	Items          []ProformaLineResponse `json:"items"`
}

func newProformaResponse(pi *models.ProformaInvoice) ProformaResponse {
	out := ProformaResponse{
		ID:             pi.ID,
		ProformaNumber: pi.ProformaNumber,
		ClientName:     pi.ClientName,
		Items:          make([]ProformaLineResponse, 0, len(pi.Items)),
	}
	for _, it := range pi.Items {
		out.Items = append(out.Items, ProformaLineResponse{ProformaInvoiceItem: it, QuantityRemaining: it.QuantityRemaining()})
	}
	return out
}

// POST /api/proforma-invoices
func CreateProformaHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ProformaRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		number := strings.TrimSpace(body.ProformaNumber)
		if number == "" {
			return fiber.NewError(fiber.StatusBadRequest, "proforma_number is required")
		}
		if len(body.Items) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "at least one item is required")
		}

		pi := models.ProformaInvoice{ProformaNumber: number, ClientName: strings.TrimSpace(body.ClientName)}
		for i, line := range body.Items {
			if line.Quantity <= 0 || line.UnitPrice < 0 {
				return fiber.NewError(fiber.StatusUnprocessableEntity, "item quantities must be positive and prices non-negative")
			}
			p, err := s.GetProduct(c.UserContext(), line.ProductID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fiber.NewError(fiber.StatusUnprocessableEntity, "unknown product on item "+strconv.Itoa(i+1))
				}
				return httpError(err)
			}
			pi.Items = append(pi.Items, models.ProformaInvoiceItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
			})
		}

		if err := s.CreateProformaInvoice(c.UserContext(), &pi); err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(newProformaResponse(&pi))
	}
}

// GET /api/proforma-invoices/:id
func GetProformaHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id", "proforma invoice")
		if err != nil {
			return err
		}
		pi, err := s.GetProformaInvoice(c.UserContext(), id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(newProformaResponse(pi))
	}
}
