// Package store is the persistence layer. Services depend on Store; every
// mutating domain operation runs inside Store.InTx and talks to a Tx.
package store

import (
	"context"
	"errors"

	"tradeops-backend/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrConflict: a unique constraint (container number, seal number, SKU, ...) was violated.
	ErrConflict = errors.New("record conflicts with an existing one")

	// ErrStaleWrite: the optimistic version check on a container failed.
	ErrStaleWrite = errors.New("record was modified concurrently")
)

// Tx is a unit of work. Lock* methods hold an exclusive lock on the row until the
// transaction ends. Writes become visible to other readers only on commit; reads
// inside the same Tx do not observe its own staged writes.
type Tx interface {
	LockContainer(id uint) (*models.ShipmentContainer, error) // Items preloaded
	LockProformaItem(id uint) (*models.ProformaInvoiceItem, error)
	LockProduct(id uint) (*models.Product, error) // BomItems preloaded

	Product(id uint) (*models.Product, error)
	Shipment(id uint) (*models.Shipment, error)

	// ShipmentSequence: the sequence already used for a proforma line inside a shipment, 0 if none.
	ShipmentSequence(proformaItemID, shipmentID uint) (int, error)
	SealNumberInUse(sealNumber string, exceptContainerID uint) (bool, error)

	CreateContainerItem(item *models.ShipmentContainerItem) error
	DeleteContainerItem(id uint) error
	SetContainerItemsStatus(containerID uint, status models.ItemStatus) error
	// SaveContainer compares c.Version with the stored one and increments it.
	SaveContainer(c *models.ShipmentContainer) error
	SaveProformaItem(item *models.ProformaInvoiceItem) error
	SaveShipmentStatus(id uint, status models.ShipmentStatus) error

	CreateBomItem(item *models.BomItem) error
	SaveBomItem(item *models.BomItem) error
	DeleteBomItem(id uint) error
	// SaveProduct writes the editable columns. The derived cost columns are only
	// written by SaveProductCosts.
	SaveProduct(p *models.Product) error
	// SaveProductCosts writes only the derived cost columns, bypassing hooks.
	SaveProductCosts(p *models.Product) error
	CreateCostHistory(h *models.CostHistory) error

	CreateAuditLog(l *models.AuditLog) error
}

// AuditFilter: zero values mean no filter.
type AuditFilter struct {
	EntityType string
	EntityID   uint
	Limit      int
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id uint) (*models.Product, error) // BomItems preloaded
	ListBomItems(ctx context.Context, productID uint) ([]models.BomItem, error)
	ListCostHistory(ctx context.Context, productID uint) ([]models.CostHistory, error)

	CreateProformaInvoice(ctx context.Context, pi *models.ProformaInvoice) error
	GetProformaInvoice(ctx context.Context, id uint) (*models.ProformaInvoice, error)
	// ProformaInvoicesByIDs returns invoices with their items, ordered by id.
	ProformaInvoicesByIDs(ctx context.Context, ids []uint) ([]models.ProformaInvoice, error)

	CreateShipment(ctx context.Context, s *models.Shipment) error
	GetShipment(ctx context.Context, id uint) (*models.Shipment, error) // Containers.Items preloaded
	ShipmentNumbers(ctx context.Context) ([]string, error)

	CreateContainer(ctx context.Context, c *models.ShipmentContainer) error
	GetContainer(ctx context.Context, id uint) (*models.ShipmentContainer, error) // Items preloaded
	ListContainers(ctx context.Context, shipmentID uint) ([]models.ShipmentContainer, error)

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	CountUsersByRole(ctx context.Context, role models.UserRole) (int64, error)

	ListAuditLogs(ctx context.Context, f AuditFilter) ([]models.AuditLog, error)
}
