package shipping

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tradeops-backend/internal/audit"
	"tradeops-backend/internal/codes"
	"tradeops-backend/internal/events"
	"tradeops-backend/internal/measure"
	"tradeops-backend/internal/models"
	"tradeops-backend/internal/store"

	"github.com/shopspring/decimal"
)

const entityContainer = "shipment_container"

// Service runs every container mutation as check-then-write inside one store
// transaction holding the container row lock. Events go out after commit.
type Service struct {
	store   store.Store
	events  events.Publisher
	numbers *codes.Allocator
	now     func() time.Time
}

func NewService(s store.Store, p events.Publisher, numbers *codes.Allocator) *Service {
	if p == nil {
		p = events.NopPublisher{}
	}
	if numbers == nil {
		numbers = codes.NewShipmentNumbers()
	}
	return &Service{store: s, events: p, numbers: numbers, now: time.Now}
}

type CreateShipmentInput struct {
	ShipmentNumber string              `json:"shipment_number"` // optional, allocated when empty
	ShipmentType   models.ShipmentType `json:"shipment_type"`
	Notes          string              `json:"notes"`
}

const shipmentNumberAttempts = 3

func (s *Service) CreateShipment(ctx context.Context, in CreateShipmentInput) (*models.Shipment, error) {
	if in.ShipmentType == "" {
		in.ShipmentType = models.ShipmentOutbound
	}
	if !in.ShipmentType.Valid() {
		return nil, &ValidationError{Err: ErrInvalidStatus, Details: fmt.Sprintf("shipment type %q", in.ShipmentType)}
	}

	manual := strings.TrimSpace(in.ShipmentNumber)
	if manual != "" {
		if err := s.numbers.Reserve(manual); err != nil {
			return nil, fmt.Errorf("shipment number %s: %w", manual, store.ErrConflict)
		}
		sh := &models.Shipment{ShipmentNumber: manual, ShipmentType: in.ShipmentType, Status: models.ShipmentPending, Notes: in.Notes}
		if err := s.store.CreateShipment(ctx, sh); err != nil {
			s.numbers.Release(manual)
			return nil, err
		}
		return sh, nil
	}

	var err error
	for attempt := 0; attempt < shipmentNumberAttempts; attempt++ {
		number := s.numbers.Next(s.now().Year())
		sh := &models.Shipment{ShipmentNumber: number, ShipmentType: in.ShipmentType, Status: models.ShipmentPending, Notes: in.Notes}
		err = s.store.CreateShipment(ctx, sh)
		if err == nil {
			return sh, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			s.numbers.Release(number)
			return nil, err
		}
		// number exists in the database but not in the allocator; keep it marked as issued
	}
	return nil, err
}

type CreateContainerInput struct {
	ContainerNumber string               `json:"container_number"`
	ContainerType   models.ContainerType `json:"container_type"`
	MaxWeight       *decimal.Decimal     `json:"max_weight"`
	MaxVolume       *decimal.Decimal     `json:"max_volume"`
	Notes           string               `json:"notes"`
}

func (s *Service) CreateContainer(ctx context.Context, shipmentID uint, in CreateContainerInput) (*models.ShipmentContainer, error) {
	number := strings.TrimSpace(in.ContainerNumber)
	if number == "" {
		return nil, &ValidationError{Err: ErrInvalidContainer, Details: "container_number is required"}
	}
	maxWeight, maxVolume, ok := in.ContainerType.NominalCapacity()
	if !ok {
		return nil, &ValidationError{Err: ErrInvalidContainer, Details: fmt.Sprintf("unknown container type %q", in.ContainerType)}
	}
	if in.MaxWeight != nil {
		maxWeight = *in.MaxWeight
	}
	if in.MaxVolume != nil {
		maxVolume = *in.MaxVolume
	}
	if maxWeight.IsNegative() || maxVolume.IsNegative() {
		return nil, &ValidationError{Err: ErrInvalidContainer, Details: "capacity cannot be negative"}
	}

	sh, err := s.store.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if !sh.Status.AcceptsPacking() {
		return nil, fmt.Errorf("shipment %s is %s: %w", sh.ShipmentNumber, sh.Status, ErrShipmentLocked)
	}

	c := &models.ShipmentContainer{
		ShipmentID:      shipmentID,
		ContainerNumber: number,
		ContainerType:   in.ContainerType,
		Status:          models.ContainerDraft,
		MaxWeight:       maxWeight,
		MaxVolume:       maxVolume,
		CurrentWeight:   decimal.Zero,
		CurrentVolume:   decimal.Zero,
		Notes:           in.Notes,
	}
	if err := s.store.CreateContainer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AssignInput: ProductID is optional and only cross-checked against the line.
// UnitWeight (kg) and UnitVolume (m3) override the product measures.
type AssignInput struct {
	ProformaItemID uint             `json:"proforma_invoice_item_id"`
	ProductID      uint             `json:"product_id"`
	Quantity       int64            `json:"quantity"`
	UnitWeight     *decimal.Decimal `json:"unit_weight"`
	UnitVolume     *decimal.Decimal `json:"unit_volume"`
}

// AssignItem packs quantity units of a proforma line into the container. Any
// failure leaves the container, the line and the item table unchanged.
func (s *Service) AssignItem(ctx context.Context, containerID uint, in AssignInput, actor audit.Actor) (*models.ShipmentContainerItem, error) {
	if in.Quantity <= 0 {
		return nil, &ValidationError{Err: ErrInvalidQuantity, Details: fmt.Sprintf("got %d", in.Quantity)}
	}

	var (
		item    models.ShipmentContainerItem
		shipID  uint
		firstIn bool
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockContainer(containerID)
		if err != nil {
			return err
		}
		sh, err := s.checkPackable(tx, c)
		if err != nil {
			return err
		}
		shipID = sh.ID

		line, err := tx.LockProformaItem(in.ProformaItemID)
		if err != nil {
			return fmt.Errorf("proforma invoice item %d: %w", in.ProformaItemID, err)
		}
		if in.ProductID != 0 && in.ProductID != line.ProductID {
			return &ValidationError{Err: ErrProductMismatch, Details: fmt.Sprintf("line %d is product %d, got %d", line.ID, line.ProductID, in.ProductID)}
		}
		if !line.CanShip(in.Quantity) {
			return &AllocationExceededError{
				ProformaItemID: line.ID,
				ProductName:    line.ProductName,
				Remaining:      line.QuantityRemaining(),
				Requested:      in.Quantity,
			}
		}

		product, err := tx.Product(line.ProductID)
		if err != nil {
			return fmt.Errorf("product %d: %w", line.ProductID, err)
		}
		unitWeight, unitVolume, err := unitMeasures(product, in)
		if err != nil {
			return err
		}
		qty := decimal.NewFromInt(in.Quantity)
		totalWeight := unitWeight.Mul(qty).Round(3)
		totalVolume := unitVolume.Mul(qty).Round(6)

		// totals are re-derived from the items so a drifted aggregate cannot hide an overflow
		c.CurrentWeight, c.CurrentVolume = c.ItemTotals()
		if fit := CheckFit(c, totalWeight, totalVolume); !fit.CanFit {
			return &CapacityExceededError{ContainerNumber: c.ContainerNumber, Violations: fit.Violations()}
		}

		seq, err := tx.ShipmentSequence(line.ID, sh.ID)
		if err != nil {
			return err
		}
		if seq == 0 {
			seq = line.ShipmentCount + 1
			line.ShipmentCount = seq
		}

		item = models.ShipmentContainerItem{
			ShipmentContainerID:   c.ID,
			ProductID:             product.ID,
			ProductName:           product.Name,
			ProformaInvoiceItemID: line.ID,
			ProformaInvoiceID:     line.ProformaInvoiceID,
			Quantity:              in.Quantity,
			UnitWeight:            unitWeight,
			TotalWeight:           totalWeight,
			UnitVolume:            unitVolume,
			TotalVolume:           totalVolume,
			Cartons:               cartons(in.Quantity, product.PcsPerCarton),
			UnitPrice:             line.UnitPrice,
			CustomsValue:          line.UnitPrice * in.Quantity,
			Status:                models.ItemPacked,
			ShipmentSequence:      seq,
		}
		if err := tx.CreateContainerItem(&item); err != nil {
			return err
		}

		c.Items = append(c.Items, item)
		c.CurrentWeight, c.CurrentVolume = c.ItemTotals()
		if c.Status == models.ContainerDraft {
			c.Status = models.ContainerPacked
			firstIn = true
		}
		if err := tx.SaveContainer(c); err != nil {
			return err
		}

		line.QuantityShipped += in.Quantity
		return tx.SaveProformaItem(line)
	})
	if err != nil {
		return nil, err
	}

	evs := []events.Event{s.event(events.ContainerItemAssigned, shipID, containerID, actor, map[string]any{
		"item_id":                  item.ID,
		"proforma_invoice_item_id": item.ProformaInvoiceItemID,
		"quantity":                 item.Quantity,
		"total_weight":             item.TotalWeight,
		"total_volume":             item.TotalVolume,
		"shipment_sequence":        item.ShipmentSequence,
	})}
	if firstIn {
		evs = append(evs, s.statusEvent(shipID, containerID, actor, models.ContainerDraft, models.ContainerPacked))
	}
	events.PublishAfterCommit(ctx, s.events, evs...)
	return &item, nil
}

// RemoveItem takes the item out of the container and gives its quantity back
// to the proforma line.
func (s *Service) RemoveItem(ctx context.Context, containerID, itemID uint, actor audit.Actor) error {
	var (
		removed models.ShipmentContainerItem
		shipID  uint
		emptied bool
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockContainer(containerID)
		if err != nil {
			return err
		}
		sh, err := s.checkPackable(tx, c)
		if err != nil {
			return err
		}
		shipID = sh.ID

		idx := -1
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrItemNotFound
		}
		removed = c.Items[idx]

		line, err := tx.LockProformaItem(removed.ProformaInvoiceItemID)
		if err != nil {
			return fmt.Errorf("proforma invoice item %d: %w", removed.ProformaInvoiceItemID, err)
		}
		line.QuantityShipped -= removed.Quantity
		if line.QuantityShipped < 0 {
			line.QuantityShipped = 0
		}
		if err := tx.SaveProformaItem(line); err != nil {
			return err
		}

		if err := tx.DeleteContainerItem(removed.ID); err != nil {
			return err
		}
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		c.CurrentWeight, c.CurrentVolume = c.ItemTotals()
		if len(c.Items) == 0 && c.Status == models.ContainerPacked {
			c.Status = models.ContainerDraft
			emptied = true
		}
		return tx.SaveContainer(c)
	})
	if err != nil {
		return err
	}

	evs := []events.Event{s.event(events.ContainerItemRemoved, shipID, containerID, actor, map[string]any{
		"item_id":                  removed.ID,
		"proforma_invoice_item_id": removed.ProformaInvoiceItemID,
		"quantity":                 removed.Quantity,
	})}
	if emptied {
		evs = append(evs, s.statusEvent(shipID, containerID, actor, models.ContainerPacked, models.ContainerDraft))
	}
	events.PublishAfterCommit(ctx, s.events, evs...)
	return nil
}

// Seal closes the container. Status, seal number and sealed_at are written together.
func (s *Service) Seal(ctx context.Context, containerID uint, sealNumber string, actor audit.Actor) (*models.ShipmentContainer, error) {
	sealNumber = strings.TrimSpace(sealNumber)

	var out *models.ShipmentContainer
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockContainer(containerID)
		if err != nil {
			return err
		}
		if c.Status.IsSealed() {
			return fmt.Errorf("container %s is %s: %w", c.ContainerNumber, c.Status, ErrContainerSealed)
		}
		if len(c.Items) == 0 {
			return fmt.Errorf("container %s: %w", c.ContainerNumber, ErrEmptyContainer)
		}
		if sealNumber == "" {
			return &ValidationError{Err: ErrSealNumberRequired}
		}
		for _, it := range c.Items {
			if it.Status != models.ItemPacked {
				return &ValidationError{Err: ErrInvalidTransition, Details: fmt.Sprintf("item %d is %s, all items must be packed", it.ID, it.Status)}
			}
		}
		inUse, err := tx.SealNumberInUse(sealNumber, c.ID)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("seal number %s: %w", sealNumber, ErrSealNumberInUse)
		}

		before := *c
		before.Items = nil
		now := s.now()
		c.Status = models.ContainerSealed
		c.SealNumber = &sealNumber
		c.SealedAt = &now
		c.SealedBy = actor.IDPtr()
		if err := tx.SaveContainer(c); err != nil {
			return err
		}
		if err := tx.SetContainerItemsStatus(c.ID, models.ItemSealed); err != nil {
			return err
		}

		after := *c
		after.Items = nil
		entry := audit.NewEntry(audit.LogOptions{
			Actor:       actor,
			EntityType:  entityContainer,
			EntityID:    c.ID,
			Action:      models.AuditActionSeal,
			Description: fmt.Sprintf("container %s sealed with %s", c.ContainerNumber, sealNumber),
			Before:      before,
			After:       after,
		})
		if err := tx.CreateAuditLog(&entry); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, sealConflict(err)
	}

	events.PublishAfterCommit(ctx, s.events,
		s.event(events.ContainerSealed, out.ShipmentID, out.ID, actor, map[string]any{"seal_number": sealNumber}),
		s.statusEvent(out.ShipmentID, out.ID, actor, models.ContainerPacked, models.ContainerSealed),
	)
	return out, nil
}

// sealConflict maps a unique violation raised at commit (two seals racing for the
// same number) to ErrSealNumberInUse.
func sealConflict(err error) error {
	if errors.Is(err, store.ErrConflict) && strings.Contains(err.Error(), "seal") {
		return fmt.Errorf("%v: %w", err, ErrSealNumberInUse)
	}
	return err
}

// Unseal reopens a sealed container. It is the only way back from sealed and is
// always audited with the reason.
func (s *Service) Unseal(ctx context.Context, containerID uint, reason string, actor audit.Actor) (*models.ShipmentContainer, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Err: ErrUnsealReasonRequired}
	}

	var (
		out      *models.ShipmentContainer
		prevSeal string
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockContainer(containerID)
		if err != nil {
			return err
		}
		if c.Status != models.ContainerSealed {
			return fmt.Errorf("container %s is %s: %w", c.ContainerNumber, c.Status, ErrNotSealed)
		}
		sh, err := tx.Shipment(c.ShipmentID)
		if err != nil {
			return err
		}
		if !sh.Status.AcceptsPacking() {
			return fmt.Errorf("shipment %s is %s: %w", sh.ShipmentNumber, sh.Status, ErrShipmentLocked)
		}

		before := *c
		before.Items = nil
		if c.SealNumber != nil {
			prevSeal = *c.SealNumber
		}
		c.Status = models.ContainerPacked
		c.SealNumber = nil
		c.SealedAt = nil
		c.SealedBy = nil
		if err := tx.SaveContainer(c); err != nil {
			return err
		}
		if err := tx.SetContainerItemsStatus(c.ID, models.ItemPacked); err != nil {
			return err
		}

		after := *c
		after.Items = nil
		entry := audit.NewEntry(audit.LogOptions{
			Actor:       actor,
			EntityType:  entityContainer,
			EntityID:    c.ID,
			Action:      models.AuditActionUnseal,
			Description: fmt.Sprintf("container %s unsealed (seal %s): %s", c.ContainerNumber, prevSeal, reason),
			Before:      before,
			After:       after,
		})
		if err := tx.CreateAuditLog(&entry); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("container %s unsealed by user %d (%s), previous seal %s", out.ContainerNumber, actor.UserID, reason, prevSeal)
	events.PublishAfterCommit(ctx, s.events,
		s.event(events.ContainerUnsealed, out.ShipmentID, out.ID, actor, map[string]any{"previous_seal": prevSeal, "reason": reason}),
		s.statusEvent(out.ShipmentID, out.ID, actor, models.ContainerSealed, models.ContainerPacked),
	)
	return out, nil
}

// Dispatch moves a sealed container to in_transit.
func (s *Service) Dispatch(ctx context.Context, containerID uint, actor audit.Actor) (*models.ShipmentContainer, error) {
	return s.advance(ctx, containerID, models.ContainerInTransit, actor)
}

// Deliver moves an in-transit container to delivered.
func (s *Service) Deliver(ctx context.Context, containerID uint, actor audit.Actor) (*models.ShipmentContainer, error) {
	return s.advance(ctx, containerID, models.ContainerDelivered, actor)
}

func (s *Service) advance(ctx context.Context, containerID uint, next models.ContainerStatus, actor audit.Actor) (*models.ShipmentContainer, error) {
	var (
		out  *models.ShipmentContainer
		prev models.ContainerStatus
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockContainer(containerID)
		if err != nil {
			return err
		}
		prev = c.Status
		if !c.Status.CanTransitionTo(next) {
			return fmt.Errorf("container %s %s -> %s: %w", c.ContainerNumber, c.Status, next, ErrInvalidTransition)
		}
		c.Status = next
		if err := tx.SaveContainer(c); err != nil {
			return err
		}
		if err := tx.SetContainerItemsStatus(c.ID, models.ItemStatusFor(next)); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	events.PublishAfterCommit(ctx, s.events, s.statusEvent(out.ShipmentID, out.ID, actor, prev, next))
	return out, nil
}

// UpdateShipmentStatus applies one step of the shipment status table and logs it.
func (s *Service) UpdateShipmentStatus(ctx context.Context, shipmentID uint, next models.ShipmentStatus, actor audit.Actor) (*models.Shipment, error) {
	if !next.Valid() {
		return nil, &ValidationError{Err: ErrInvalidStatus, Details: fmt.Sprintf("shipment status %q", next)}
	}

	var out *models.Shipment
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		sh, err := tx.Shipment(shipmentID)
		if err != nil {
			return err
		}
		if !sh.Status.CanTransitionTo(next) {
			return fmt.Errorf("shipment %s %s -> %s: %w", sh.ShipmentNumber, sh.Status, next, ErrInvalidTransition)
		}
		prev := sh.Status
		if err := tx.SaveShipmentStatus(sh.ID, next); err != nil {
			return err
		}
		entry := audit.NewEntry(audit.LogOptions{
			Actor:       actor,
			EntityType:  "shipment",
			EntityID:    sh.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("shipment %s status %s -> %s", sh.ShipmentNumber, prev, next),
			Before:      map[string]any{"status": prev},
			After:       map[string]any{"status": next},
		})
		if err := tx.CreateAuditLog(&entry); err != nil {
			return err
		}
		sh.Status = next
		out = sh
		return nil
	})
	return out, err
}

// CheckFit is the dry run of AssignItem's capacity check for raw totals.
func (s *Service) CheckFit(ctx context.Context, containerID uint, weight, volume decimal.Decimal) (FitReport, error) {
	c, err := s.store.GetContainer(ctx, containerID)
	if err != nil {
		return FitReport{}, err
	}
	return CheckFit(c, weight, volume), nil
}

func (s *Service) Summary(ctx context.Context, containerID uint) (Summary, error) {
	c, err := s.store.GetContainer(ctx, containerID)
	if err != nil {
		return Summary{}, err
	}
	return ContainerSummary(c), nil
}

type Advice struct {
	Utilization Utilization   `json:"utilization"`
	Balance     BalanceReport `json:"balance"`
	Suggestions []Suggestion  `json:"suggestions"`
}

func (s *Service) Advice(ctx context.Context, containerID uint) (Advice, error) {
	c, err := s.store.GetContainer(ctx, containerID)
	if err != nil {
		return Advice{}, err
	}
	return Advice{
		Utilization: UtilizationPercent(c),
		Balance:     BalanceCheck(c),
		Suggestions: Suggestions(c),
	}, nil
}

// checkPackable: items of c may change only while c is open and its shipment is being prepared.
func (s *Service) checkPackable(tx store.Tx, c *models.ShipmentContainer) (*models.Shipment, error) {
	switch c.Status {
	case models.ContainerDraft, models.ContainerPacked:
	case models.ContainerSealed, models.ContainerInTransit, models.ContainerDelivered:
		return nil, fmt.Errorf("container %s is %s: %w", c.ContainerNumber, c.Status, ErrContainerSealed)
	default:
		return nil, fmt.Errorf("container %s has status %q: %w", c.ContainerNumber, c.Status, ErrInvalidStatus)
	}
	sh, err := tx.Shipment(c.ShipmentID)
	if err != nil {
		return nil, err
	}
	if !sh.Status.AcceptsPacking() {
		return nil, fmt.Errorf("shipment %s is %s: %w", sh.ShipmentNumber, sh.Status, ErrShipmentLocked)
	}
	return sh, nil
}

func unitMeasures(p *models.Product, in AssignInput) (weight, volume decimal.Decimal, err error) {
	var okW, okV bool
	if in.UnitWeight != nil {
		weight, okW = *in.UnitWeight, true
	} else {
		weight, okW = measure.UnitWeightKg(p)
	}
	if in.UnitVolume != nil {
		volume, okV = *in.UnitVolume, true
	} else {
		volume, okV = measure.UnitVolumeM3(p)
	}

	var missing []string
	if !okW {
		missing = append(missing, "weight")
	}
	if !okV {
		missing = append(missing, "volume")
	}
	if len(missing) > 0 {
		return weight, volume, &ValidationError{Err: ErrMissingMeasures, Details: fmt.Sprintf("%s: %s", p.Name, strings.Join(missing, ", "))}
	}
	if weight.IsNegative() || volume.IsNegative() {
		return weight, volume, &ValidationError{Err: ErrMissingMeasures, Details: "unit weight and volume cannot be negative"}
	}
	return weight, volume, nil
}

// cartons rounds up to whole cartons; 0 when the packing unit is unknown.
func cartons(quantity int64, pcsPerCarton *int) int64 {
	if pcsPerCarton == nil || *pcsPerCarton <= 0 {
		return 0
	}
	per := int64(*pcsPerCarton)
	return (quantity + per - 1) / per
}

func (s *Service) event(t events.Type, shipmentID, containerID uint, actor audit.Actor, data map[string]any) events.Event {
	e := events.New(t, shipmentID, containerID, data)
	e.ActorID = actor.UserID
	return e
}

func (s *Service) statusEvent(shipmentID, containerID uint, actor audit.Actor, from, to models.ContainerStatus) events.Event {
	return s.event(events.ContainerStatusChange, shipmentID, containerID, actor, map[string]any{"from": from, "to": to})
}
