package store

import (
	"context"
	"errors"
	"fmt"

	"tradeops-backend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pgErrUniqueViolation = "23505"

// GormStore is the postgres-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// classify maps driver errors onto the store sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrConflict)
	}
	return err
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	db := s.db.WithContext(ctx).Begin()
	if db.Error != nil {
		return db.Error
	}
	defer func() {
		if r := recover(); r != nil {
			db.Rollback()
			panic(r)
		}
	}()

	if err := fn(&gormTx{db: db}); err != nil {
		db.Rollback()
		return err
	}
	return classify(db.Commit().Error)
}

func (s *GormStore) CreateProduct(ctx context.Context, p *models.Product) error {
	return classify(s.db.WithContext(ctx).Omit("BomItems").Create(p).Error)
}

func (s *GormStore) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).
		Preload("BomItems", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order, id") }).
		First(&p, id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

func (s *GormStore) ListBomItems(ctx context.Context, productID uint) ([]models.BomItem, error) {
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	var items []models.BomItem
	err := s.db.WithContext(ctx).Where("product_id = ?", productID).Order("sort_order, id").Find(&items).Error
	return items, classify(err)
}

func (s *GormStore) ListCostHistory(ctx context.Context, productID uint) ([]models.CostHistory, error) {
	var rows []models.CostHistory
	err := s.db.WithContext(ctx).Where("product_id = ?", productID).Order("id DESC").Find(&rows).Error
	return rows, classify(err)
}

func (s *GormStore) CreateProformaInvoice(ctx context.Context, pi *models.ProformaInvoice) error {
	return classify(s.db.WithContext(ctx).Create(pi).Error)
}

func (s *GormStore) GetProformaInvoice(ctx context.Context, id uint) (*models.ProformaInvoice, error) {
	var pi models.ProformaInvoice
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&pi, id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &pi, nil
}

func (s *GormStore) ProformaInvoicesByIDs(ctx context.Context, ids []uint) ([]models.ProformaInvoice, error) {
	var out []models.ProformaInvoice
	if len(ids) == 0 {
		return out, nil
	}
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("id IN ?", ids).Order("id").Find(&out).Error
	return out, classify(err)
}

func (s *GormStore) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	return classify(s.db.WithContext(ctx).Omit("Containers").Create(sh).Error)
}

func (s *GormStore) GetShipment(ctx context.Context, id uint) (*models.Shipment, error) {
	var sh models.Shipment
	err := s.db.WithContext(ctx).
		Preload("Containers", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Containers.Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&sh, id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &sh, nil
}

func (s *GormStore) ShipmentNumbers(ctx context.Context) ([]string, error) {
	var numbers []string
	err := s.db.WithContext(ctx).Model(&models.Shipment{}).Order("shipment_number").Pluck("shipment_number", &numbers).Error
	return numbers, classify(err)
}

func (s *GormStore) CreateContainer(ctx context.Context, c *models.ShipmentContainer) error {
	return classify(s.db.WithContext(ctx).Omit("Items").Create(c).Error)
}

func (s *GormStore) GetContainer(ctx context.Context, id uint) (*models.ShipmentContainer, error) {
	return loadContainer(s.db.WithContext(ctx), id)
}

func loadContainer(db *gorm.DB, id uint) (*models.ShipmentContainer, error) {
	var c models.ShipmentContainer
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).First(&c, id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &c, nil
}

func (s *GormStore) ListContainers(ctx context.Context, shipmentID uint) ([]models.ShipmentContainer, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Shipment{}).Where("id = ?", shipmentID).Count(&count).Error; err != nil {
		return nil, classify(err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	var out []models.ShipmentContainer
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("shipment_id = ?", shipmentID).Order("id").Find(&out).Error
	return out, classify(err)
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return classify(s.db.WithContext(ctx).Create(u).Error)
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

func (s *GormStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

func (s *GormStore) CountUsersByRole(ctx context.Context, role models.UserRole) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", role).Count(&n).Error
	return n, classify(err)
}

func (s *GormStore) ListAuditLogs(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var logs []models.AuditLog
	err := q.Order("id DESC").Find(&logs).Error
	return logs, classify(err)
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) LockContainer(id uint) (*models.ShipmentContainer, error) {
	var c models.ShipmentContainer
	if err := t.forUpdate().First(&c, id).Error; err != nil {
		return nil, classify(err)
	}
	if err := t.db.Where("shipment_container_id = ?", id).Order("id").Find(&c.Items).Error; err != nil {
		return nil, classify(err)
	}
	return &c, nil
}

func (t *gormTx) LockProformaItem(id uint) (*models.ProformaInvoiceItem, error) {
	var it models.ProformaInvoiceItem
	if err := t.forUpdate().First(&it, id).Error; err != nil {
		return nil, classify(err)
	}
	return &it, nil
}

func (t *gormTx) LockProduct(id uint) (*models.Product, error) {
	var p models.Product
	if err := t.forUpdate().First(&p, id).Error; err != nil {
		return nil, classify(err)
	}
	if err := t.db.Where("product_id = ?", id).Order("sort_order, id").Find(&p.BomItems).Error; err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

func (t *gormTx) Product(id uint) (*models.Product, error) {
	var p models.Product
	if err := t.db.First(&p, id).Error; err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

func (t *gormTx) Shipment(id uint) (*models.Shipment, error) {
	var sh models.Shipment
	if err := t.db.First(&sh, id).Error; err != nil {
		return nil, classify(err)
	}
	return &sh, nil
}

func (t *gormTx) ShipmentSequence(proformaItemID, shipmentID uint) (int, error) {
	var seq []int
	err := t.db.Model(&models.ShipmentContainerItem{}).
		Joins("JOIN shipment_containers ON shipment_containers.id = shipment_container_items.shipment_container_id").
		Where("shipment_container_items.proforma_invoice_item_id = ? AND shipment_containers.shipment_id = ?", proformaItemID, shipmentID).
		Limit(1).
		Pluck("shipment_container_items.shipment_sequence", &seq).Error
	if err != nil {
		return 0, classify(err)
	}
	if len(seq) == 0 {
		return 0, nil
	}
	return seq[0], nil
}

func (t *gormTx) SealNumberInUse(sealNumber string, exceptContainerID uint) (bool, error) {
	var n int64
	err := t.db.Model(&models.ShipmentContainer{}).
		Where("seal_number = ? AND id <> ?", sealNumber, exceptContainerID).
		Count(&n).Error
	return n > 0, classify(err)
}

func (t *gormTx) CreateContainerItem(item *models.ShipmentContainerItem) error {
	return classify(t.db.Create(item).Error)
}

func (t *gormTx) DeleteContainerItem(id uint) error {
	res := t.db.Delete(&models.ShipmentContainerItem{}, id)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) SetContainerItemsStatus(containerID uint, status models.ItemStatus) error {
	err := t.db.Model(&models.ShipmentContainerItem{}).
		Where("shipment_container_id = ?", containerID).
		Update("status", status).Error
	return classify(err)
}

func (t *gormTx) SaveContainer(c *models.ShipmentContainer) error {
	expected := c.Version
	res := t.db.Model(&models.ShipmentContainer{}).
		Where("id = ? AND version = ?", c.ID, expected).
		Updates(map[string]any{
			"status":         c.Status,
			"max_weight":     c.MaxWeight,
			"max_volume":     c.MaxVolume,
			"current_weight": c.CurrentWeight,
			"current_volume": c.CurrentVolume,
			"seal_number":    c.SealNumber,
			"sealed_at":      c.SealedAt,
			"sealed_by":      c.SealedBy,
			"notes":          c.Notes,
			"version":        expected + 1,
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("container %d: %w", c.ID, ErrStaleWrite)
	}
	c.Version = expected + 1
	return nil
}

func (t *gormTx) SaveProformaItem(item *models.ProformaInvoiceItem) error {
	err := t.db.Model(item).Updates(map[string]any{
		"quantity_shipped": item.QuantityShipped,
		"shipment_count":   item.ShipmentCount,
	}).Error
	return classify(err)
}

func (t *gormTx) SaveShipmentStatus(id uint, status models.ShipmentStatus) error {
	res := t.db.Model(&models.Shipment{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) CreateBomItem(item *models.BomItem) error {
	return classify(t.db.Omit("Component").Create(item).Error)
}

func (t *gormTx) SaveBomItem(item *models.BomItem) error {
	return classify(t.db.Omit("Component", "CreatedAt").Save(item).Error)
}

func (t *gormTx) DeleteBomItem(id uint) error {
	res := t.db.Delete(&models.BomItem{}, id)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// productColumns are the columns SaveProduct may touch.
var productColumns = []string{
	"name", "sku", "description", "price",
	"direct_labor_cost", "direct_overhead_cost", "markup_percentage",
	"product_length", "product_width", "product_height", "weight_grams",
	"pcs_per_inner_box", "inner_box_length", "inner_box_width", "inner_box_height", "inner_boxes_per_carton",
	"pcs_per_carton", "carton_length", "carton_width", "carton_height", "carton_weight", "carton_cbm",
	"updated_at",
}

func (t *gormTx) SaveProduct(p *models.Product) error {
	res := t.db.Model(&models.Product{}).Where("id = ?", p.ID).Select(productColumns).Updates(p)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) SaveProductCosts(p *models.Product) error {
	err := t.db.Model(&models.Product{}).Where("id = ?", p.ID).UpdateColumns(map[string]any{
		"bom_material_cost":        p.BomMaterialCost,
		"total_manufacturing_cost": p.TotalManufacturingCost,
		"calculated_selling_price": p.CalculatedSellingPrice,
		"price":                    p.Price,
	}).Error
	return classify(err)
}

func (t *gormTx) CreateCostHistory(h *models.CostHistory) error {
	return classify(t.db.Create(h).Error)
}

func (t *gormTx) CreateAuditLog(l *models.AuditLog) error {
	return classify(t.db.Create(l).Error)
}

var _ Store = (*GormStore)(nil)
var _ Tx = (*gormTx)(nil)
