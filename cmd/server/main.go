package main

import (
	"context"
	"errors"
	"log"
	"strings"

	"tradeops-backend/internal/audit"
	"tradeops-backend/internal/auth"
	"tradeops-backend/internal/codes"
	"tradeops-backend/internal/config"
	"tradeops-backend/internal/costing"
	"tradeops-backend/internal/database"
	"tradeops-backend/internal/events"
	"tradeops-backend/internal/models"
	"tradeops-backend/internal/reports"
	"tradeops-backend/internal/shipping"
	"tradeops-backend/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func openStore(cfg *config.Config) store.Store {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Println("[WARN] STORE_DRIVER=memory, data is lost on restart.")
		return store.NewMemoryStore()
	}
	database.Init(cfg)
	return store.NewGormStore(database.DB)
}

func openPublisher(cfg *config.Config) events.Publisher {
	if cfg.KafkaBroker == "" {
		return events.NopPublisher{}
	}
	return events.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic)
}

func main() {
	cfg := config.Load()
	s := openStore(cfg)

	numbers := codes.NewShipmentNumbers()
	existing, err := s.ShipmentNumbers(context.Background())
	if err != nil {
		log.Fatalf("shipment numbers could not be loaded: %v", err)
	}
	numbers.Seed(existing...)

	publisher := openPublisher(cfg)
	defer publisher.Close()

	svc := shipping.NewService(s, publisher, numbers)
	engine := costing.NewEngine(s)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *fiber.Error
			if errors.As(err, &e) {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Println("Unexpected error:", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "unexpected server error",
			})
		},
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/bootstrap-admin", auth.BootstrapAdminHandler(s))
	api.Post("/auth/login", auth.LoginHandler(cfg, s))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler(s))

	adminOnly := auth.RequireRole(models.RoleAdmin)
	protected.Post("/auth/users", adminOnly, auth.CreateOperatorHandler(s))

	// Products and costing
	protected.Post("/products", costing.CreateProductHandler(s, engine))
	protected.Get("/products/:id", costing.GetProductHandler(s))
	protected.Put("/products/:id", costing.UpdateProductHandler(engine))
	protected.Post("/products/:id/recalculate", costing.RecalculateHandler(engine))
	protected.Get("/products/:id/cost-history", costing.CostHistoryHandler(s))
	protected.Get("/products/:id/bom-items", costing.ListBomItemsHandler(s))
	protected.Post("/products/:id/bom-items", costing.CreateBomItemHandler(engine))
	protected.Put("/products/:id/bom-items/:itemId", costing.UpdateBomItemHandler(engine))
	protected.Delete("/products/:id/bom-items/:itemId", costing.DeleteBomItemHandler(engine))

	// Proforma invoices
	protected.Post("/proforma-invoices", shipping.CreateProformaHandler(s))
	protected.Get("/proforma-invoices/:id", shipping.GetProformaHandler(s))

	// Shipments
	protected.Post("/shipments", shipping.CreateShipmentHandler(svc))
	protected.Get("/shipments/:id", shipping.GetShipmentHandler(s))
	protected.Post("/shipments/:id/status", shipping.UpdateShipmentStatusHandler(svc))
	protected.Post("/shipments/:id/containers", shipping.CreateContainerHandler(svc))
	protected.Get("/shipments/:id/containers", shipping.ListContainersHandler(s))

	// Containers
	protected.Get("/containers/:id", shipping.GetContainerHandler(svc))
	protected.Post("/containers/:id/check-fit", shipping.CheckFitHandler(svc))
	protected.Post("/containers/:id/items", shipping.AssignItemHandler(svc))
	protected.Delete("/containers/:id/items/:itemId", shipping.RemoveItemHandler(svc))
	protected.Post("/containers/:id/seal", shipping.SealHandler(svc))
	protected.Post("/containers/:id/unseal", adminOnly, shipping.UnsealHandler(svc))
	protected.Post("/containers/:id/dispatch", shipping.DispatchHandler(svc))
	protected.Post("/containers/:id/deliver", shipping.DeliverHandler(svc))
	protected.Get("/containers/:id/suggestions", shipping.SuggestionsHandler(svc))

	// Reports
	rep := protected.Group("/shipments/:id/reports")
	rep.Get("/summary", reports.SummaryHandler(s))
	rep.Get("/totals", reports.TotalsHandler(s))
	rep.Get("/utilization", reports.UtilizationHandler(s))
	rep.Get("/optimization", reports.OptimizationHandler(s))
	rep.Get("/cost", reports.CostHandler(s))
	rep.Get("/distribution", reports.DistributionHandler(s))
	rep.Get("/history", reports.HistoryHandler(s))

	// Audit logs
	protected.Get("/audit-logs", audit.ListAuditLogsHandler(s))

	log.Println("Server listening on port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
