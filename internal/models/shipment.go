package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shipment: one outbound or inbound movement of goods. Weight/volume totals are
// always derived from its containers, never stored here.
type Shipment struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ShipmentNumber string         `gorm:"size:30;uniqueIndex;not null" json:"shipment_number"`
	Status         ShipmentStatus `gorm:"size:30;not null;default:'pending'" json:"status"`
	ShipmentType   ShipmentType   `gorm:"size:20;not null;default:'outbound'" json:"shipment_type"`
	Notes          string         `gorm:"size:255" json:"notes"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	Containers []ShipmentContainer `gorm:"foreignKey:ShipmentID;constraint:OnDelete:CASCADE" json:"containers,omitempty"`
}

// ShipmentContainer: a physical container (or pallet/box) loaded for a shipment.
// CurrentWeight (kg) and CurrentVolume (m3) are the sums over Items.
type ShipmentContainer struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	ShipmentID      uint            `gorm:"index;not null" json:"shipment_id"`
	ContainerNumber string          `gorm:"size:30;uniqueIndex;not null" json:"container_number"`
	ContainerType   ContainerType   `gorm:"size:10;not null" json:"container_type"`
	Status          ContainerStatus `gorm:"size:20;not null;default:'draft'" json:"status"`
	MaxWeight       decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"max_weight"`
	MaxVolume       decimal.Decimal `gorm:"type:decimal(14,6);not null" json:"max_volume"`
	CurrentWeight   decimal.Decimal `gorm:"type:decimal(14,3);not null;default:0" json:"current_weight"`
	CurrentVolume   decimal.Decimal `gorm:"type:decimal(14,6);not null;default:0" json:"current_volume"`
	SealNumber      *string         `gorm:"size:50" json:"seal_number"` // partial unique index, see database.Init
	SealedAt        *time.Time      `json:"sealed_at"`
	SealedBy        *uint           `json:"sealed_by"`
	Notes           string          `gorm:"size:255" json:"notes"`
	Version         int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	Items []ShipmentContainerItem `gorm:"foreignKey:ShipmentContainerID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// ShipmentContainerItem: a quantity of one proforma invoice line packed into a container
type ShipmentContainerItem struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	ShipmentContainerID   uint            `gorm:"index;not null" json:"shipment_container_id"`
	ProductID             uint            `gorm:"index;not null" json:"product_id"`
	ProductName           string          `gorm:"size:255" json:"product_name"` // denormalized
	ProformaInvoiceItemID uint            `gorm:"index;not null" json:"proforma_invoice_item_id"`
	ProformaInvoiceID     uint            `gorm:"index;not null" json:"proforma_invoice_id"`
	Quantity              int64           `gorm:"not null" json:"quantity"`
	UnitWeight            decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"unit_weight"`
	TotalWeight           decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"total_weight"`
	UnitVolume            decimal.Decimal `gorm:"type:decimal(14,6);not null" json:"unit_volume"`
	TotalVolume           decimal.Decimal `gorm:"type:decimal(14,6);not null" json:"total_volume"`
	Cartons               int64           `gorm:"not null;default:0" json:"cartons"`
	UnitPrice             int64           `gorm:"not null;default:0" json:"unit_price"`
	CustomsValue          int64           `gorm:"not null;default:0" json:"customs_value"` // Quantity * UnitPrice
	Status                ItemStatus      `gorm:"size:20;not null;default:'packed'" json:"status"`
	ShipmentSequence      int             `gorm:"not null;default:1" json:"shipment_sequence"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// RemainingWeight: capacity left on the weight axis (may be negative for misconfigured rows)
func (c *ShipmentContainer) RemainingWeight() decimal.Decimal {
	return c.MaxWeight.Sub(c.CurrentWeight)
}

func (c *ShipmentContainer) RemainingVolume() decimal.Decimal {
	return c.MaxVolume.Sub(c.CurrentVolume)
}

// ItemTotals sums TotalWeight/TotalVolume over Items.
func (c *ShipmentContainer) ItemTotals() (weight, volume decimal.Decimal) {
	weight, volume = decimal.Zero, decimal.Zero
	for _, it := range c.Items {
		weight = weight.Add(it.TotalWeight)
		volume = volume.Add(it.TotalVolume)
	}
	return weight, volume
}
