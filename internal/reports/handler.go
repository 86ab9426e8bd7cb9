package reports

import (
	"context"
	"errors"
	"log"
	"time"

	"tradeops-backend/internal/models"
	"tradeops-backend/internal/shipping"
	"tradeops-backend/internal/store"

	"github.com/gofiber/fiber/v2"
)

type ShipmentHeader struct {
	ID             uint                  `json:"id"`
	ShipmentNumber string                `json:"shipment_number"`
	Status         models.ShipmentStatus `json:"status"`
	ShipmentType   models.ShipmentType   `json:"shipment_type"`
	CreatedAt      time.Time             `json:"created_at"`
}

type Full struct {
	Shipment         ShipmentHeader         `json:"shipment"`
	Summary          Totals                 `json:"summary"`
	Containers       []shipping.Summary     `json:"containers"`
	ProformaInvoices []ProformaDistribution `json:"proforma_invoices"`
	Utilization      UtilizationSummary     `json:"utilization"`
}

// ShipmentReport combines totals, container details, the proforma summary and
// fleet utilization.
func ShipmentReport(sh *models.Shipment, invoices []models.ProformaInvoice) Full {
	containers := make([]shipping.Summary, 0, len(sh.Containers))
	for i := range sh.Containers {
		containers = append(containers, shipping.ContainerSummary(&sh.Containers[i]))
	}
	return Full{
		Shipment: ShipmentHeader{
			ID:             sh.ID,
			ShipmentNumber: sh.ShipmentNumber,
			Status:         sh.Status,
			ShipmentType:   sh.ShipmentType,
			CreatedAt:      sh.CreatedAt,
		},
		Summary:          ShipmentTotals(sh),
		Containers:       containers,
		ProformaInvoices: DistributionByProformaInvoice(sh, invoices).ProformaInvoices,
		Utilization:      UtilizationReport(sh).Summary,
	}
}

// load reads the shipment with containers and items, and the proforma invoices it touches.
func load(ctx context.Context, s store.Store, id uint) (*models.Shipment, []models.ProformaInvoice, error) {
	sh, err := s.GetShipment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ids := ProformaIDs(sh)
	if len(ids) == 0 {
		return sh, nil, nil
	}
	invoices, err := s.ProformaInvoicesByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return sh, invoices, nil
}

type builder func(sh *models.Shipment, invoices []models.ProformaInvoice) any

func handler(s store.Store, build builder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid shipment id")
		}
		sh, invoices, err := load(c.UserContext(), s, uint(id))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "shipment not found")
			}
			log.Printf("reports: shipment %d: %v", id, err)
			return fiber.NewError(fiber.StatusInternalServerError, "unexpected error")
		}
		return c.JSON(build(sh, invoices))
	}
}

// GET /api/shipments/:id/reports/summary
func SummaryHandler(s store.Store) fiber.Handler {
	return handler(s, func(sh *models.Shipment, invoices []models.ProformaInvoice) any {
		return ShipmentReport(sh, invoices)
	})
}

// GET /api/shipments/:id/reports/totals
func TotalsHandler(s store.Store) fiber.Handler {
	return handler(s, func(sh *models.Shipment, _ []models.ProformaInvoice) any {
		return ShipmentTotals(sh)
	})
}

// GET /api/shipments/:id/reports/utilization
func UtilizationHandler(s store.Store) fiber.Handler {
	return handler(s, func(sh *models.Shipment, _ []models.ProformaInvoice) any {
		return UtilizationReport(sh)
	})
}

// GET /api/shipments/:id/reports/optimization
func OptimizationHandler(s store.Store) fiber.Handler {
	return handler(s, func(sh *models.Shipment, _ []models.ProformaInvoice) any {
		return OptimizationReport(sh)
	})
}

// GET /api/shipments/:id/reports/cost
func CostHandler(s store.Store) fiber.Handler {
	return handler(s, func(sh *models.Shipment, _ []models.ProformaInvoice) any {
		return CostReport(sh)
	})
}

// GET /api/shipments/:id/reports/distribution
func DistributionHandler(s store.Store) fiber.Handler {
	return handler(s, func(sh *models.Shipment, invoices []models.ProformaInvoice) any {
		return DistributionByProformaInvoice(sh, invoices)
	})
}

// GET /api/shipments/:id/reports/history
func HistoryHandler(s store.Store) fiber.Handler {
	return handler(s, func(sh *models.Shipment, _ []models.ProformaInvoice) any {
		return HistoryReport(sh)
	})
}
