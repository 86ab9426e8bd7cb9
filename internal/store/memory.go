package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tradeops-backend/internal/models"
)

// MemoryStore keeps everything in process memory. Row locks are keyed mutexes, so
// concurrent transactions on the same container serialize exactly like
// SELECT ... FOR UPDATE does on postgres.
type MemoryStore struct {
	mu sync.RWMutex

	seq map[string]uint

	products    map[uint]models.Product
	bomItems    map[uint]models.BomItem
	costHistory []models.CostHistory
	proformas   map[uint]models.ProformaInvoice
	piItems     map[uint]models.ProformaInvoiceItem
	shipments   map[uint]models.Shipment
	containers  map[uint]models.ShipmentContainer
	items       map[uint]models.ShipmentContainerItem
	users       map[uint]models.User
	auditLogs   []models.AuditLog

	lockMu   sync.Mutex
	rowLocks map[string]*sync.Mutex

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seq:        make(map[string]uint),
		products:   make(map[uint]models.Product),
		bomItems:   make(map[uint]models.BomItem),
		proformas:  make(map[uint]models.ProformaInvoice),
		piItems:    make(map[uint]models.ProformaInvoiceItem),
		shipments:  make(map[uint]models.Shipment),
		containers: make(map[uint]models.ShipmentContainer),
		items:      make(map[uint]models.ShipmentContainerItem),
		users:      make(map[uint]models.User),
		rowLocks:   make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

// nextID must be called with s.mu held.
func (s *MemoryStore) nextID(table string) uint {
	s.seq[table]++
	return s.seq[table]
}

func (s *MemoryStore) rowLock(key string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	m, ok := s.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.rowLocks[key] = m
	}
	return m
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	tx := &memTx{s: s, held: make(map[string]*sync.Mutex)}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := checkCtx(ctx); err != nil {
		return err
	}
	return tx.commit()
}

// ---- products ----

func (s *MemoryStore) CreateProduct(ctx context.Context, p *models.Product) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if strings.EqualFold(existing.SKU, p.SKU) {
			return fmt.Errorf("sku %s: %w", p.SKU, ErrConflict)
		}
	}
	p.ID = s.nextID("products")
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	row := *p
	row.BomItems = nil
	s.products[p.ID] = row
	return nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.productLocked(id)
}

func (s *MemoryStore) productLocked(id uint) (*models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.BomItems = s.bomItemsLocked(id)
	return &p, nil
}

func (s *MemoryStore) bomItemsLocked(productID uint) []models.BomItem {
	var out []models.BomItem
	for _, it := range s.bomItems {
		if it.ProductID == productID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) ListBomItems(ctx context.Context, productID uint) ([]models.BomItem, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.products[productID]; !ok {
		return nil, ErrNotFound
	}
	return s.bomItemsLocked(productID), nil
}

func (s *MemoryStore) ListCostHistory(ctx context.Context, productID uint) ([]models.CostHistory, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CostHistory
	for i := len(s.costHistory) - 1; i >= 0; i-- {
		if s.costHistory[i].ProductID == productID {
			out = append(out, s.costHistory[i])
		}
	}
	return out, nil
}

// ---- proforma invoices ----

func (s *MemoryStore) CreateProformaInvoice(ctx context.Context, pi *models.ProformaInvoice) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.proformas {
		if existing.ProformaNumber == pi.ProformaNumber {
			return fmt.Errorf("proforma %s: %w", pi.ProformaNumber, ErrConflict)
		}
	}
	now := s.now()
	pi.ID = s.nextID("proforma_invoices")
	pi.CreatedAt, pi.UpdatedAt = now, now
	for i := range pi.Items {
		pi.Items[i].ID = s.nextID("proforma_invoice_items")
		pi.Items[i].ProformaInvoiceID = pi.ID
		pi.Items[i].CreatedAt, pi.Items[i].UpdatedAt = now, now
		s.piItems[pi.Items[i].ID] = pi.Items[i]
	}
	row := *pi
	row.Items = nil
	s.proformas[pi.ID] = row
	return nil
}

func (s *MemoryStore) GetProformaInvoice(ctx context.Context, id uint) (*models.ProformaInvoice, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	pi, ok := s.proformas[id]
	if !ok {
		return nil, ErrNotFound
	}
	pi.Items = s.piItemsLocked(id)
	return &pi, nil
}

func (s *MemoryStore) piItemsLocked(proformaID uint) []models.ProformaInvoiceItem {
	var out []models.ProformaInvoiceItem
	for _, it := range s.piItems {
		if it.ProformaInvoiceID == proformaID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) ProformaInvoicesByIDs(ctx context.Context, ids []uint) ([]models.ProformaInvoice, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ProformaInvoice, 0, len(ids))
	for _, id := range ids {
		pi, ok := s.proformas[id]
		if !ok {
			continue
		}
		pi.Items = s.piItemsLocked(id)
		out = append(out, pi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- shipments & containers ----

func (s *MemoryStore) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.shipments {
		if existing.ShipmentNumber == sh.ShipmentNumber {
			return fmt.Errorf("shipment %s: %w", sh.ShipmentNumber, ErrConflict)
		}
	}
	sh.ID = s.nextID("shipments")
	sh.CreatedAt = s.now()
	sh.UpdatedAt = sh.CreatedAt
	row := *sh
	row.Containers = nil
	s.shipments[sh.ID] = row
	return nil
}

func (s *MemoryStore) GetShipment(ctx context.Context, id uint) (*models.Shipment, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shipments[id]
	if !ok {
		return nil, ErrNotFound
	}
	sh.Containers = s.containersLocked(id)
	return &sh, nil
}

func (s *MemoryStore) ShipmentNumbers(ctx context.Context) ([]string, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.shipments))
	for _, sh := range s.shipments {
		out = append(out, sh.ShipmentNumber)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) containersLocked(shipmentID uint) []models.ShipmentContainer {
	var out []models.ShipmentContainer
	for _, c := range s.containers {
		if c.ShipmentID == shipmentID {
			c.Items = s.itemsLocked(c.ID)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) itemsLocked(containerID uint) []models.ShipmentContainerItem {
	var out []models.ShipmentContainerItem
	for _, it := range s.items {
		if it.ShipmentContainerID == containerID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) CreateContainer(ctx context.Context, c *models.ShipmentContainer) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shipments[c.ShipmentID]; !ok {
		return fmt.Errorf("shipment %d: %w", c.ShipmentID, ErrNotFound)
	}
	for _, existing := range s.containers {
		if existing.ContainerNumber == c.ContainerNumber {
			return fmt.Errorf("container %s: %w", c.ContainerNumber, ErrConflict)
		}
	}
	c.ID = s.nextID("shipment_containers")
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	row := *c
	row.Items = nil
	s.containers[c.ID] = row
	return nil
}

func (s *MemoryStore) GetContainer(ctx context.Context, id uint) (*models.ShipmentContainer, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.containerLocked(id)
}

func (s *MemoryStore) containerLocked(id uint) (*models.ShipmentContainer, error) {
	c, ok := s.containers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Items = s.itemsLocked(id)
	return &c, nil
}

func (s *MemoryStore) ListContainers(ctx context.Context, shipmentID uint) ([]models.ShipmentContainer, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.shipments[shipmentID]; !ok {
		return nil, ErrNotFound
	}
	return s.containersLocked(shipmentID), nil
}

// ---- users & audit ----

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
		}
	}
	u.ID = s.nextID("users")
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CountUsersByRole(ctx context.Context, role models.UserRole) (int64, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, u := range s.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListAuditLogs(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditLog
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		l := s.auditLogs[i]
		if f.EntityType != "" && l.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != 0 && l.EntityID != f.EntityID {
			continue
		}
		out = append(out, l)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// ---- transaction ----

type stagedOp struct {
	check func() error // runs under s.mu before any apply
	apply func()
}

type memTx struct {
	s    *MemoryStore
	held map[string]*sync.Mutex
	ops  []stagedOp
}

func (t *memTx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	m := t.s.rowLock(key)
	m.Lock()
	t.held[key] = m
}

func (t *memTx) release() {
	for k, m := range t.held {
		m.Unlock()
		delete(t.held, k)
	}
}

func (t *memTx) stage(check func() error, apply func()) {
	t.ops = append(t.ops, stagedOp{check: check, apply: apply})
}

func (t *memTx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, op := range t.ops {
		if op.check == nil {
			continue
		}
		if err := op.check(); err != nil {
			return err
		}
	}
	for _, op := range t.ops {
		op.apply()
	}
	t.ops = nil
	return nil
}

func (t *memTx) LockContainer(id uint) (*models.ShipmentContainer, error) {
	t.lock(fmt.Sprintf("container:%d", id))
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.containerLocked(id)
}

func (t *memTx) LockProformaItem(id uint) (*models.ProformaInvoiceItem, error) {
	t.lock(fmt.Sprintf("proforma_item:%d", id))
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	it, ok := t.s.piItems[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &it, nil
}

func (t *memTx) LockProduct(id uint) (*models.Product, error) {
	t.lock(fmt.Sprintf("product:%d", id))
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.productLocked(id)
}

func (t *memTx) Product(id uint) (*models.Product, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.productLocked(id)
}

func (t *memTx) Shipment(id uint) (*models.Shipment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	sh, ok := t.s.shipments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sh, nil
}

func (t *memTx) ShipmentSequence(proformaItemID, shipmentID uint) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, it := range t.s.items {
		if it.ProformaInvoiceItemID != proformaItemID {
			continue
		}
		if c, ok := t.s.containers[it.ShipmentContainerID]; ok && c.ShipmentID == shipmentID {
			return it.ShipmentSequence, nil
		}
	}
	return 0, nil
}

func (t *memTx) SealNumberInUse(sealNumber string, exceptContainerID uint) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.sealInUseLocked(sealNumber, exceptContainerID), nil
}

func (s *MemoryStore) sealInUseLocked(sealNumber string, exceptContainerID uint) bool {
	for id, c := range s.containers {
		if id != exceptContainerID && c.SealNumber != nil && *c.SealNumber == sealNumber {
			return true
		}
	}
	return false
}

func (t *memTx) CreateContainerItem(item *models.ShipmentContainerItem) error {
	t.s.mu.Lock()
	item.ID = t.s.nextID("shipment_container_items")
	t.s.mu.Unlock()
	item.CreatedAt = t.s.now()
	item.UpdatedAt = item.CreatedAt
	row := *item
	t.stage(func() error {
		if _, ok := t.s.containers[row.ShipmentContainerID]; !ok {
			return fmt.Errorf("container %d: %w", row.ShipmentContainerID, ErrNotFound)
		}
		return nil
	}, func() {
		t.s.items[row.ID] = row
	})
	return nil
}

func (t *memTx) DeleteContainerItem(id uint) error {
	t.stage(func() error {
		if _, ok := t.s.items[id]; !ok {
			return ErrNotFound
		}
		return nil
	}, func() {
		delete(t.s.items, id)
	})
	return nil
}

func (t *memTx) SetContainerItemsStatus(containerID uint, status models.ItemStatus) error {
	now := t.s.now()
	t.stage(nil, func() {
		for id, it := range t.s.items {
			if it.ShipmentContainerID == containerID {
				it.Status = status
				it.UpdatedAt = now
				t.s.items[id] = it
			}
		}
	})
	return nil
}

func (t *memTx) SaveContainer(c *models.ShipmentContainer) error {
	expected := c.Version
	c.Version++
	c.UpdatedAt = t.s.now()
	row := *c
	row.Items = nil
	t.stage(func() error {
		stored, ok := t.s.containers[row.ID]
		if !ok {
			return ErrNotFound
		}
		if stored.Version != expected {
			return fmt.Errorf("container %d: %w", row.ID, ErrStaleWrite)
		}
		if row.SealNumber != nil && t.s.sealInUseLocked(*row.SealNumber, row.ID) {
			return fmt.Errorf("seal %s: %w", *row.SealNumber, ErrConflict)
		}
		return nil
	}, func() {
		t.s.containers[row.ID] = row
	})
	return nil
}

func (t *memTx) SaveProformaItem(item *models.ProformaInvoiceItem) error {
	item.UpdatedAt = t.s.now()
	row := *item
	t.stage(func() error {
		if _, ok := t.s.piItems[row.ID]; !ok {
			return ErrNotFound
		}
		return nil
	}, func() {
		t.s.piItems[row.ID] = row
	})
	return nil
}

func (t *memTx) SaveShipmentStatus(id uint, status models.ShipmentStatus) error {
	now := t.s.now()
	t.stage(func() error {
		if _, ok := t.s.shipments[id]; !ok {
			return ErrNotFound
		}
		return nil
	}, func() {
		sh := t.s.shipments[id]
		sh.Status = status
		sh.UpdatedAt = now
		t.s.shipments[id] = sh
	})
	return nil
}

func (t *memTx) CreateBomItem(item *models.BomItem) error {
	t.s.mu.Lock()
	item.ID = t.s.nextID("bom_items")
	t.s.mu.Unlock()
	item.CreatedAt = t.s.now()
	item.UpdatedAt = item.CreatedAt
	row := *item
	row.Component = nil
	t.stage(func() error {
		if _, ok := t.s.products[row.ProductID]; !ok {
			return fmt.Errorf("product %d: %w", row.ProductID, ErrNotFound)
		}
		return nil
	}, func() {
		t.s.bomItems[row.ID] = row
	})
	return nil
}

func (t *memTx) SaveBomItem(item *models.BomItem) error {
	item.UpdatedAt = t.s.now()
	row := *item
	row.Component = nil
	t.stage(func() error {
		if _, ok := t.s.bomItems[row.ID]; !ok {
			return ErrNotFound
		}
		return nil
	}, func() {
		t.s.bomItems[row.ID] = row
	})
	return nil
}

func (t *memTx) DeleteBomItem(id uint) error {
	t.stage(func() error {
		if _, ok := t.s.bomItems[id]; !ok {
			return ErrNotFound
		}
		return nil
	}, func() {
		delete(t.s.bomItems, id)
	})
	return nil
}

func (t *memTx) SaveProduct(p *models.Product) error {
	p.UpdatedAt = t.s.now()
	cp := *p
	cp.BomItems = nil
	t.stage(func() error {
		if _, ok := t.s.products[cp.ID]; !ok {
			return ErrNotFound
		}
		for id, existing := range t.s.products {
			if id != cp.ID && strings.EqualFold(existing.SKU, cp.SKU) {
				return fmt.Errorf("sku %s: %w", cp.SKU, ErrConflict)
			}
		}
		return nil
	}, func() {
		row := t.s.products[cp.ID]
		cp.CreatedAt = row.CreatedAt
		cp.BomMaterialCost = row.BomMaterialCost
		cp.TotalManufacturingCost = row.TotalManufacturingCost
		cp.CalculatedSellingPrice = row.CalculatedSellingPrice
		t.s.products[cp.ID] = cp
	})
	return nil
}

func (t *memTx) SaveProductCosts(p *models.Product) error {
	cp := *p
	t.stage(func() error {
		if _, ok := t.s.products[cp.ID]; !ok {
			return ErrNotFound
		}
		return nil
	}, func() {
		row := t.s.products[cp.ID]
		row.BomMaterialCost = cp.BomMaterialCost
		row.TotalManufacturingCost = cp.TotalManufacturingCost
		row.CalculatedSellingPrice = cp.CalculatedSellingPrice
		row.Price = cp.Price
		t.s.products[cp.ID] = row
	})
	return nil
}

func (t *memTx) CreateCostHistory(h *models.CostHistory) error {
	t.s.mu.Lock()
	h.ID = t.s.nextID("cost_history")
	t.s.mu.Unlock()
	h.CreatedAt = t.s.now()
	row := *h
	t.stage(nil, func() {
		t.s.costHistory = append(t.s.costHistory, row)
	})
	return nil
}

func (t *memTx) CreateAuditLog(l *models.AuditLog) error {
	t.s.mu.Lock()
	l.ID = t.s.nextID("audit_logs")
	t.s.mu.Unlock()
	l.CreatedAt = t.s.now()
	row := *l
	t.stage(nil, func() {
		t.s.auditLogs = append(t.s.auditLogs, row)
	})
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ Tx = (*memTx)(nil)
