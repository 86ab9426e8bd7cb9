package models

import "time"

// ProformaInvoice: agreed goods and quantities that container items are allocated against
type ProformaInvoice struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ProformaNumber string    `gorm:"size:50;uniqueIndex;not null" json:"proforma_number"`
	ClientName     string    `gorm:"size:255" json:"client_name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Items []ProformaInvoiceItem `gorm:"foreignKey:ProformaInvoiceID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// ProformaInvoiceItem: QuantityShipped is the sum over every container item that
// references this line, across all shipments.
type ProformaInvoiceItem struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ProformaInvoiceID uint      `gorm:"index;not null" json:"proforma_invoice_id"`
	ProductID         uint      `gorm:"index;not null" json:"product_id"`
	ProductName       string    `gorm:"size:255" json:"product_name"`
	Quantity          int64     `gorm:"not null" json:"quantity"`
	UnitPrice         int64     `gorm:"not null;default:0" json:"unit_price"`
	QuantityShipped   int64     `gorm:"not null;default:0" json:"quantity_shipped"`
	ShipmentCount     int       `gorm:"not null;default:0" json:"shipment_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (i *ProformaInvoiceItem) QuantityRemaining() int64 {
	return i.Quantity - i.QuantityShipped
}

func (i *ProformaInvoiceItem) CanShip(quantity int64) bool {
	return quantity <= i.QuantityRemaining()
}
