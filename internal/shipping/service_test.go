package shipping

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradeops-backend/internal/audit"
	"tradeops-backend/internal/codes"
	"tradeops-backend/internal/events"
	"tradeops-backend/internal/models"
	"tradeops-backend/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var packer = audit.Actor{UserID: 3, UserName: "packer"}

type fixture struct {
	ctx      context.Context
	store    *store.MemoryStore
	svc      *Service
	rec      *events.Recorder
	shipment *models.Shipment
	product  *models.Product
	line     models.ProformaInvoiceItem
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

// newFixture: one pending shipment, a 1000 kg / 0.001 m3 product and a proforma
// line over lineQty units.
func newFixture(t *testing.T, lineQty int64) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	rec := &events.Recorder{}
	svc := NewService(s, rec, codes.NewShipmentNumbers())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	p := &models.Product{
		Name: "Press", SKU: "PR-1",
		ProductLength: f64(10), ProductWidth: f64(10), ProductHeight: f64(10),
		WeightGrams:  f64(1000000),
		PcsPerCarton: intp(4),
	}
	require.NoError(t, s.CreateProduct(ctx, p))

	pi := &models.ProformaInvoice{
		ProformaNumber: "PI-1",
		ClientName:     "Acme",
		Items: []models.ProformaInvoiceItem{
			{ProductID: p.ID, ProductName: p.Name, Quantity: lineQty, UnitPrice: 250},
		},
	}
	require.NoError(t, s.CreateProformaInvoice(ctx, pi))

	sh, err := svc.CreateShipment(ctx, CreateShipmentInput{})
	require.NoError(t, err)

	return &fixture{ctx: ctx, store: s, svc: svc, rec: rec, shipment: sh, product: p, line: pi.Items[0]}
}

func (f *fixture) container(t *testing.T, number string) *models.ShipmentContainer {
	t.Helper()
	maxW, maxV := decimal.NewFromInt(25000), decimal.RequireFromString("33.2")
	c, err := f.svc.CreateContainer(f.ctx, f.shipment.ID, CreateContainerInput{
		ContainerNumber: number,
		ContainerType:   models.Container20ft,
		MaxWeight:       &maxW,
		MaxVolume:       &maxV,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) assign(containerID uint, qty int64) (*models.ShipmentContainerItem, error) {
	return f.svc.AssignItem(f.ctx, containerID, AssignInput{ProformaItemID: f.line.ID, Quantity: qty}, packer)
}

// assignRaw packs one unit with an explicit unit weight.
func (f *fixture) assignRaw(containerID uint, weightKg int64) (*models.ShipmentContainerItem, error) {
	w := decimal.NewFromInt(weightKg)
	v := decimal.RequireFromString("0.01")
	return f.svc.AssignItem(f.ctx, containerID, AssignInput{ProformaItemID: f.line.ID, Quantity: 1, UnitWeight: &w, UnitVolume: &v}, packer)
}

func (f *fixture) reload(t *testing.T, id uint) *models.ShipmentContainer {
	t.Helper()
	c, err := f.store.GetContainer(f.ctx, id)
	require.NoError(t, err)
	w, v := c.ItemTotals()
	assert.True(t, c.CurrentWeight.Equal(w), "current_weight %s != items %s", c.CurrentWeight, w)
	assert.True(t, c.CurrentVolume.Equal(v), "current_volume %s != items %s", c.CurrentVolume, v)
	return c
}

func (f *fixture) lineNow(t *testing.T) models.ProformaInvoiceItem {
	t.Helper()
	pi, err := f.store.GetProformaInvoice(f.ctx, f.line.ProformaInvoiceID)
	require.NoError(t, err)
	require.Len(t, pi.Items, 1)
	return pi.Items[0]
}

func TestAssignItem_RejectsOverflow(t *testing.T) {
	f := newFixture(t, 100)
	c := f.container(t, "C-1")

	_, err := f.assign(c.ID, 24)
	require.NoError(t, err)

	_, err = f.assignRaw(c.ID, 1500)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	var capErr *CapacityExceededError
	require.True(t, errors.As(err, &capErr))
	require.Len(t, capErr.Violations, 1)
	assert.True(t, capErr.Violations[0].Excess.Equal(decimal.NewFromInt(500)))

	got := f.reload(t, c.ID)
	assert.True(t, got.CurrentWeight.Equal(decimal.NewFromInt(24000)))
	assert.Len(t, got.Items, 1)
	assert.Equal(t, int64(24), f.lineNow(t).QuantityShipped)
}

func TestAssignItem_UpdatesTotals(t *testing.T) {
	f := newFixture(t, 100)
	c := f.container(t, "C-1")

	item, err := f.assign(c.ID, 20)
	require.NoError(t, err)
	assert.True(t, item.UnitWeight.Equal(decimal.NewFromInt(1000)))
	assert.True(t, item.TotalVolume.Equal(decimal.RequireFromString("0.02")))
	assert.Equal(t, int64(5), item.Cartons)
	assert.Equal(t, int64(5000), item.CustomsValue)
	assert.Equal(t, 1, item.ShipmentSequence)

	_, err = f.assignRaw(c.ID, 1500)
	require.NoError(t, err)

	got := f.reload(t, c.ID)
	assert.Equal(t, models.ContainerPacked, got.Status)
	assert.True(t, got.CurrentWeight.Equal(decimal.NewFromInt(21500)))
	assert.Equal(t, float64(86), UtilizationPercent(got).WeightPct)
	assert.Equal(t, int64(21), f.lineNow(t).QuantityShipped)

	evs := f.rec.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, events.ContainerItemAssigned, evs[0].Type)
	assert.Equal(t, events.ContainerStatusChange, evs[1].Type)
	assert.Equal(t, events.ContainerItemAssigned, evs[2].Type)
	assert.Equal(t, uint(3), evs[0].ActorID)
}

func TestAssignItem_CapacityNeverExceededConcurrently(t *testing.T) {
	f := newFixture(t, 100)
	c := f.container(t, "C-1")

	const workers = 40
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.assign(c.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, ok)
	assert.Equal(t, workers-25, rejected)
	got := f.reload(t, c.ID)
	assert.True(t, got.CurrentWeight.Equal(got.MaxWeight))
	assert.Len(t, got.Items, 25)
	assert.Equal(t, int64(25), f.lineNow(t).QuantityShipped)
}

func TestAssignItem_Validation(t *testing.T) {
	f := newFixture(t, 10)
	c := f.container(t, "C-1")

	_, err := f.assign(c.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.AssignItem(f.ctx, c.ID, AssignInput{ProformaItemID: f.line.ID, ProductID: f.product.ID + 100, Quantity: 1}, packer)
	assert.ErrorIs(t, err, ErrProductMismatch)

	_, err = f.svc.AssignItem(f.ctx, c.ID, AssignInput{ProformaItemID: 999, Quantity: 1}, packer)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.assign(999, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	bare := &models.Product{Name: "Loose", SKU: "LS-1"}
	require.NoError(t, f.store.CreateProduct(f.ctx, bare))
	pi := &models.ProformaInvoice{ProformaNumber: "PI-2", Items: []models.ProformaInvoiceItem{{ProductID: bare.ID, ProductName: bare.Name, Quantity: 5}}}
	require.NoError(t, f.store.CreateProformaInvoice(f.ctx, pi))
	_, err = f.svc.AssignItem(f.ctx, c.ID, AssignInput{ProformaItemID: pi.Items[0].ID, Quantity: 1}, packer)
	assert.ErrorIs(t, err, ErrMissingMeasures)
	assert.ErrorContains(t, err, "weight, volume")

	assert.Empty(t, f.reload(t, c.ID).Items)
}

func TestAssignItem_AllocationAcrossContainers(t *testing.T) {
	f := newFixture(t, 10)
	c1 := f.container(t, "C-1")
	c2 := f.container(t, "C-2")

	_, err := f.assign(c1.ID, 6)
	require.NoError(t, err)

	_, err = f.assign(c2.ID, 5)
	require.Error(t, err)
	var allocErr *AllocationExceededError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, int64(4), allocErr.Remaining)
	assert.Equal(t, int64(5), allocErr.Requested)
	assert.ErrorIs(t, err, ErrAllocationExceeded)

	_, err = f.assign(c2.ID, 4)
	require.NoError(t, err)
	line := f.lineNow(t)
	assert.Equal(t, int64(0), line.QuantityRemaining())
}

func TestAssignItem_ShipmentSequence(t *testing.T) {
	f := newFixture(t, 10)
	c1 := f.container(t, "C-1")
	c2 := f.container(t, "C-2")

	a, err := f.assign(c1.ID, 2)
	require.NoError(t, err)
	b, err := f.assign(c2.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, a.ShipmentSequence)
	assert.Equal(t, 1, b.ShipmentSequence)
	assert.Equal(t, 1, f.lineNow(t).ShipmentCount)

	second, err := f.svc.CreateShipment(f.ctx, CreateShipmentInput{})
	require.NoError(t, err)
	maxW, maxV := decimal.NewFromInt(25000), decimal.RequireFromString("33.2")
	c3, err := f.svc.CreateContainer(f.ctx, second.ID, CreateContainerInput{ContainerNumber: "C-3", ContainerType: models.Container20ft, MaxWeight: &maxW, MaxVolume: &maxV})
	require.NoError(t, err)

	c, err := f.assign(c3.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, c.ShipmentSequence)

	line := f.lineNow(t)
	assert.Equal(t, 2, line.ShipmentCount)
	assert.Equal(t, int64(7), line.QuantityShipped)
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(t, 10)
	c := f.container(t, "C-1")

	item, err := f.assign(c.ID, 4)
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveItem(f.ctx, c.ID, item.ID, packer))

	got := f.reload(t, c.ID)
	assert.Empty(t, got.Items)
	assert.True(t, got.CurrentWeight.IsZero())
	assert.Equal(t, models.ContainerDraft, got.Status)
	assert.Equal(t, int64(0), f.lineNow(t).QuantityShipped)

	assert.ErrorIs(t, f.svc.RemoveItem(f.ctx, c.ID, item.ID, packer), ErrItemNotFound)

	var types []events.Type
	for _, e := range f.rec.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []events.Type{
		events.ContainerItemAssigned, events.ContainerStatusChange,
		events.ContainerItemRemoved, events.ContainerStatusChange,
	}, types)
}

func TestSeal_EmptyContainer(t *testing.T) {
	f := newFixture(t, 10)
	c := f.container(t, "C-1")

	_, err := f.svc.Seal(f.ctx, c.ID, "SEAL123", packer)
	assert.ErrorIs(t, err, ErrEmptyContainer)

	got := f.reload(t, c.ID)
	assert.Equal(t, models.ContainerDraft, got.Status)
	assert.Nil(t, got.SealNumber)
}

func TestSeal_GateAndAuditedUnseal(t *testing.T) {
	f := newFixture(t, 10)
	c := f.container(t, "C-1")
	item, err := f.assign(c.ID, 2)
	require.NoError(t, err)

	_, err = f.svc.Seal(f.ctx, c.ID, "  ", packer)
	assert.ErrorIs(t, err, ErrSealNumberRequired)

	sealed, err := f.svc.Seal(f.ctx, c.ID, "SEAL123", packer)
	require.NoError(t, err)
	assert.Equal(t, models.ContainerSealed, sealed.Status)
	require.NotNil(t, sealed.SealedAt)
	require.NotNil(t, sealed.SealedBy)
	assert.Equal(t, uint(3), *sealed.SealedBy)

	got := f.reload(t, c.ID)
	require.NotNil(t, got.SealNumber)
	assert.Equal(t, "SEAL123", *got.SealNumber)
	assert.Equal(t, models.ItemSealed, got.Items[0].Status)

	_, err = f.assign(c.ID, 1)
	assert.ErrorIs(t, err, ErrContainerSealed)
	assert.ErrorIs(t, f.svc.RemoveItem(f.ctx, c.ID, item.ID, packer), ErrContainerSealed)
	_, err = f.svc.Seal(f.ctx, c.ID, "SEAL999", packer)
	assert.ErrorIs(t, err, ErrContainerSealed)

	_, err = f.svc.Unseal(f.ctx, c.ID, "", packer)
	assert.ErrorIs(t, err, ErrUnsealReasonRequired)

	opened, err := f.svc.Unseal(f.ctx, c.ID, "customs inspection", packer)
	require.NoError(t, err)
	assert.Equal(t, models.ContainerPacked, opened.Status)
	assert.Nil(t, opened.SealNumber)
	assert.Nil(t, opened.SealedAt)

	got = f.reload(t, c.ID)
	assert.Equal(t, models.ItemPacked, got.Items[0].Status)

	logs, err := f.store.ListAuditLogs(f.ctx, store.AuditFilter{EntityType: entityContainer, EntityID: c.ID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditActionUnseal, logs[0].Action)
	assert.Contains(t, logs[0].Description, "customs inspection")
	assert.Contains(t, logs[0].BeforeData, "SEAL123")
	assert.Equal(t, models.AuditActionSeal, logs[1].Action)

	_, err = f.assign(c.ID, 1)
	assert.NoError(t, err)

	_, err = f.svc.Unseal(f.ctx, c.ID, "again", packer)
	assert.ErrorIs(t, err, ErrNotSealed)
}

func TestSeal_NumberMustBeUnique(t *testing.T) {
	f := newFixture(t, 10)
	c1 := f.container(t, "C-1")
	c2 := f.container(t, "C-2")
	_, err := f.assign(c1.ID, 1)
	require.NoError(t, err)
	_, err = f.assign(c2.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.Seal(f.ctx, c1.ID, "S-1", packer)
	require.NoError(t, err)
	_, err = f.svc.Seal(f.ctx, c2.ID, "S-1", packer)
	assert.ErrorIs(t, err, ErrSealNumberInUse)
	assert.Equal(t, models.ContainerPacked, f.reload(t, c2.ID).Status)
}

func TestContainerLifecycle(t *testing.T) {
	f := newFixture(t, 10)
	c := f.container(t, "C-1")
	_, err := f.assign(c.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.Dispatch(f.ctx, c.ID, packer)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Deliver(f.ctx, c.ID, packer)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Seal(f.ctx, c.ID, "S-1", packer)
	require.NoError(t, err)

	moved, err := f.svc.Dispatch(f.ctx, c.ID, packer)
	require.NoError(t, err)
	assert.Equal(t, models.ContainerInTransit, moved.Status)
	assert.Equal(t, models.ItemShipped, f.reload(t, c.ID).Items[0].Status)

	_, err = f.svc.Unseal(f.ctx, c.ID, "too late", packer)
	assert.ErrorIs(t, err, ErrNotSealed)
	_, err = f.assign(c.ID, 1)
	assert.ErrorIs(t, err, ErrContainerSealed)

	done, err := f.svc.Deliver(f.ctx, c.ID, packer)
	require.NoError(t, err)
	assert.Equal(t, models.ContainerDelivered, done.Status)
	assert.Equal(t, models.ItemDelivered, f.reload(t, c.ID).Items[0].Status)
}

func TestUpdateShipmentStatus(t *testing.T) {
	f := newFixture(t, 10)
	c := f.container(t, "C-1")
	_, err := f.assign(c.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.Seal(f.ctx, c.ID, "S-1", packer)
	require.NoError(t, err)

	_, err = f.svc.UpdateShipmentStatus(f.ctx, f.shipment.ID, models.ShipmentReadyToShip, packer)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.UpdateShipmentStatus(f.ctx, f.shipment.ID, "lost", packer)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	sh, err := f.svc.UpdateShipmentStatus(f.ctx, f.shipment.ID, models.ShipmentPreparing, packer)
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentPreparing, sh.Status)
	_, err = f.svc.UpdateShipmentStatus(f.ctx, f.shipment.ID, models.ShipmentReadyToShip, packer)
	require.NoError(t, err)

	_, err = f.svc.Unseal(f.ctx, c.ID, "recount", packer)
	assert.ErrorIs(t, err, ErrShipmentLocked)

	_, err = f.svc.CreateContainer(f.ctx, f.shipment.ID, CreateContainerInput{ContainerNumber: "C-9", ContainerType: models.ContainerBox})
	assert.ErrorIs(t, err, ErrShipmentLocked)

	logs, err := f.store.ListAuditLogs(f.ctx, store.AuditFilter{EntityType: "shipment"})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestCreateShipment_Numbers(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := NewService(s, nil, codes.NewShipmentNumbers())
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	// present in the database but unknown to the allocator
	require.NoError(t, s.CreateShipment(ctx, &models.Shipment{ShipmentNumber: "SHP-2025-00001", Status: models.ShipmentPending, ShipmentType: models.ShipmentOutbound}))

	sh, err := svc.CreateShipment(ctx, CreateShipmentInput{})
	require.NoError(t, err)
	assert.Equal(t, "SHP-2025-00002", sh.ShipmentNumber)
	assert.Equal(t, models.ShipmentPending, sh.Status)
	assert.Equal(t, models.ShipmentOutbound, sh.ShipmentType)

	manual, err := svc.CreateShipment(ctx, CreateShipmentInput{ShipmentNumber: "IMP-7", ShipmentType: models.ShipmentInbound})
	require.NoError(t, err)
	assert.Equal(t, "IMP-7", manual.ShipmentNumber)

	_, err = svc.CreateShipment(ctx, CreateShipmentInput{ShipmentNumber: "IMP-7"})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = svc.CreateShipment(ctx, CreateShipmentInput{ShipmentType: "sideways"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCreateContainer_Defaults(t *testing.T) {
	f := newFixture(t, 1)

	c, err := f.svc.CreateContainer(f.ctx, f.shipment.ID, CreateContainerInput{ContainerNumber: "HC-1", ContainerType: models.Container40hc})
	require.NoError(t, err)
	assert.Equal(t, models.ContainerDraft, c.Status)
	assert.True(t, c.MaxWeight.Equal(decimal.NewFromInt(26500)))
	assert.True(t, c.MaxVolume.Equal(decimal.RequireFromString("76.3")))

	_, err = f.svc.CreateContainer(f.ctx, f.shipment.ID, CreateContainerInput{ContainerNumber: "HC-1", ContainerType: models.Container40hc})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = f.svc.CreateContainer(f.ctx, f.shipment.ID, CreateContainerInput{ContainerNumber: "X-1", ContainerType: "53ft"})
	assert.ErrorIs(t, err, ErrInvalidContainer)

	_, err = f.svc.CreateContainer(f.ctx, f.shipment.ID, CreateContainerInput{ContainerType: models.ContainerBox})
	assert.ErrorIs(t, err, ErrInvalidContainer)

	_, err = f.svc.CreateContainer(f.ctx, 999, CreateContainerInput{ContainerNumber: "X-2", ContainerType: models.ContainerBox})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAssignItem_SmallGoodsKeepFullVolume(t *testing.T) {
	f := newFixture(t, 1)
	bead := &models.Product{
		Name: "Bead", SKU: "BD-1",
		ProductLength: f64(5), ProductWidth: f64(5), ProductHeight: f64(5),
		WeightGrams: f64(1),
	}
	require.NoError(t, f.store.CreateProduct(f.ctx, bead))
	pi := &models.ProformaInvoice{
		ProformaNumber: "PI-2",
		Items:          []models.ProformaInvoiceItem{{ProductID: bead.ID, ProductName: bead.Name, Quantity: 200000}},
	}
	require.NoError(t, f.store.CreateProformaInvoice(f.ctx, pi))

	maxW, maxV := decimal.NewFromInt(25000), decimal.NewFromInt(11)
	c, err := f.svc.CreateContainer(f.ctx, f.shipment.ID, CreateContainerInput{
		ContainerNumber: "CN-BEADS",
		ContainerType:   models.Container20ft,
		MaxWeight:       &maxW,
		MaxVolume:       &maxV,
	})
	require.NoError(t, err)

	// 100000 x 0.000125 m3 = 12.5 m3
	_, err = f.svc.AssignItem(f.ctx, c.ID, AssignInput{ProformaItemID: pi.Items[0].ID, Quantity: 100000}, packer)
	var capErr *CapacityExceededError
	require.True(t, errors.As(err, &capErr), "got %v", err)
	assert.Equal(t, "volume", capErr.Violations[0].Axis)
	assert.True(t, f.reload(t, c.ID).CurrentVolume.IsZero())

	item, err := f.svc.AssignItem(f.ctx, c.ID, AssignInput{ProformaItemID: pi.Items[0].ID, Quantity: 80000}, packer)
	require.NoError(t, err)
	assert.Equal(t, "0.000125", item.UnitVolume.String())
	assert.True(t, item.TotalVolume.Equal(decimal.NewFromInt(10)), "total_volume %s", item.TotalVolume)
	assert.True(t, f.reload(t, c.ID).CurrentVolume.Equal(decimal.NewFromInt(10)))
}
