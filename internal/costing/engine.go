package costing

import (
	"context"
	"errors"
	"fmt"

	"tradeops-backend/internal/audit"
	"tradeops-backend/internal/models"
	"tradeops-backend/internal/store"

	"github.com/shopspring/decimal"
)

// Engine runs the roll-up against the store. Recalculation is never triggered
// implicitly: each method that changes an input calls recalculate itself.
type Engine struct {
	store store.Store
}

func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// RecalculateManufacturingCost reloads the product under lock, derives the cost
// fields and persists them together with one history row per changed field.
func (e *Engine) RecalculateManufacturingCost(ctx context.Context, productID uint, actor audit.Actor, reason string) (*models.Product, error) {
	var out *models.Product
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockProduct(productID)
		if err != nil {
			return err
		}
		if err := recalculate(tx, p, actor, reason); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// UpdateProduct runs edit on the locked product, saves the editable columns and
// rolls the costs up again in the same transaction. edit reports whether a cost
// input changed.
func (e *Engine) UpdateProduct(ctx context.Context, productID uint, edit func(p *models.Product) (bool, error), actor audit.Actor) (*models.Product, error) {
	var out *models.Product
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockProduct(productID)
		if err != nil {
			return err
		}
		before := *p
		costInputsChanged, err := edit(p)
		if err != nil {
			return err
		}
		if err := tx.SaveProduct(p); err != nil {
			return err
		}
		entry := audit.NewEntry(audit.LogOptions{
			Actor:       actor,
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("product %s updated", p.SKU),
			Before:      before,
			After:       p,
		})
		if err := tx.CreateAuditLog(&entry); err != nil {
			return err
		}

		reason := "product updated"
		if costInputsChanged {
			reason = "cost inputs changed"
		}
		if err := recalculate(tx, p, actor, reason); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (e *Engine) AddBomItem(ctx context.Context, productID uint, in BomLineInput, actor audit.Actor) (*models.BomItem, *models.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}

	var item models.BomItem
	var out *models.Product
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockProduct(productID)
		if err != nil {
			return err
		}
		component, err := resolveComponent(tx, productID, in.ComponentID)
		if err != nil {
			return err
		}

		item = models.BomItem{ProductID: productID}
		applyInput(&item, in, component)
		if err := tx.CreateBomItem(&item); err != nil {
			return err
		}
		entry := audit.NewEntry(audit.LogOptions{
			Actor:       actor,
			EntityType:  "bom_item",
			EntityID:    item.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("bom line added to product %d", productID),
			After:       item,
		})
		if err := tx.CreateAuditLog(&entry); err != nil {
			return err
		}

		p.BomItems = append(p.BomItems, item)
		if err := recalculate(tx, p, actor, "bom item added"); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &item, out, nil
}

func (e *Engine) UpdateBomItem(ctx context.Context, productID, itemID uint, in BomLineInput, actor audit.Actor) (*models.BomItem, *models.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}

	var item models.BomItem
	var out *models.Product
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockProduct(productID)
		if err != nil {
			return err
		}
		idx := bomIndex(p, itemID)
		if idx < 0 {
			return ErrBomItemNotFound
		}
		component, err := resolveComponent(tx, productID, in.ComponentID)
		if err != nil {
			return err
		}

		before := p.BomItems[idx]
		item = before
		applyInput(&item, in, component)
		if err := tx.SaveBomItem(&item); err != nil {
			return err
		}
		entry := audit.NewEntry(audit.LogOptions{
			Actor:       actor,
			EntityType:  "bom_item",
			EntityID:    item.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("bom line updated on product %d", productID),
			Before:      before,
			After:       item,
		})
		if err := tx.CreateAuditLog(&entry); err != nil {
			return err
		}

		p.BomItems[idx] = item
		if err := recalculate(tx, p, actor, "bom item updated"); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &item, out, nil
}

func (e *Engine) DeleteBomItem(ctx context.Context, productID, itemID uint, actor audit.Actor) (*models.Product, error) {
	var out *models.Product
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockProduct(productID)
		if err != nil {
			return err
		}
		idx := bomIndex(p, itemID)
		if idx < 0 {
			return ErrBomItemNotFound
		}
		removed := p.BomItems[idx]
		if err := tx.DeleteBomItem(itemID); err != nil {
			return err
		}
		entry := audit.NewEntry(audit.LogOptions{
			Actor:       actor,
			EntityType:  "bom_item",
			EntityID:    itemID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("bom line removed from product %d", productID),
			Before:      removed,
		})
		if err := tx.CreateAuditLog(&entry); err != nil {
			return err
		}

		p.BomItems = append(p.BomItems[:idx], p.BomItems[idx+1:]...)
		if err := recalculate(tx, p, actor, "bom item removed"); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func bomIndex(p *models.Product, itemID uint) int {
	for i := range p.BomItems {
		if p.BomItems[i].ID == itemID {
			return i
		}
	}
	return -1
}

func resolveComponent(tx store.Tx, productID uint, componentID *uint) (*models.Product, error) {
	if componentID == nil {
		return nil, nil
	}
	if *componentID == productID {
		return nil, &ValidationError{Err: ErrSelfReference, Details: fmt.Sprintf("product %d", productID)}
	}
	component, err := tx.Product(*componentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &ValidationError{Err: ErrComponentNotFound, Details: fmt.Sprintf("component %d", *componentID)}
	}
	return component, err
}

// recalculate derives the cost fields of p (BomItems must be current) and stages
// the write plus history rows on tx.
func recalculate(tx store.Tx, p *models.Product, actor audit.Actor, reason string) error {
	before := *p
	Recalculate(p)

	changes := []struct {
		field    string
		old, new int64
	}{
		{"bom_material_cost", before.BomMaterialCost, p.BomMaterialCost},
		{"total_manufacturing_cost", before.TotalManufacturingCost, p.TotalManufacturingCost},
		{"calculated_selling_price", before.CalculatedSellingPrice, p.CalculatedSellingPrice},
		{"price", before.Price, p.Price},
	}
	for _, ch := range changes {
		if ch.old == ch.new {
			continue
		}
		h := NewHistory(p.ID, ch.field, ch.old, ch.new, reason)
		h.ChangedBy = actor.IDPtr()
		if err := tx.CreateCostHistory(&h); err != nil {
			return err
		}
	}

	return tx.SaveProductCosts(p)
}

// NewHistory: percentage change is relative to the old value, 0 when the old value was 0.
func NewHistory(productID uint, field string, oldValue, newValue int64, reason string) models.CostHistory {
	diff := newValue - oldValue
	pct := decimal.Zero
	if oldValue > 0 {
		pct = decimal.NewFromInt(diff).Div(decimal.NewFromInt(oldValue)).Mul(hundred).Round(2)
	}
	return models.CostHistory{
		ProductID:        productID,
		CostField:        field,
		OldValue:         oldValue,
		NewValue:         newValue,
		Difference:       diff,
		PercentageChange: pct,
		ChangeReason:     reason,
	}
}
