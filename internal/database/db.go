package database

import (
	"log"

	"tradeops-backend/internal/config"
	"tradeops-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Seal numbers are unique only among sealed containers; unsealing clears the column.
const sealNumberIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_shipment_containers_seal_number
	ON shipment_containers (seal_number) WHERE seal_number IS NOT NULL`

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("could not connect to database: %v", err)
	}

	err = DB.AutoMigrate(
		&models.User{},
		&models.AuditLog{},
		&models.Product{},
		&models.BomItem{},
		&models.CostHistory{},
		&models.ProformaInvoice{},
		&models.ProformaInvoiceItem{},
		&models.Shipment{},
		&models.ShipmentContainer{},
		&models.ShipmentContainerItem{},
	)
	if err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	if err := DB.Exec(sealNumberIndex).Error; err != nil {
		log.Fatalf("seal number index could not be created: %v", err)
	}

	log.Println("Database connected. Migration complete.")
}
