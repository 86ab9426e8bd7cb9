package costing

import (
	"fmt"

	"tradeops-backend/internal/models"

	"github.com/shopspring/decimal"
)

// BomLineInput is the editable part of a BOM line. A nil UnitCost means "take it
// from the component product".
type BomLineInput struct {
	ComponentID   *uint           `json:"component_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitOfMeasure string          `json:"unit_of_measure"`
	WasteFactor   decimal.Decimal `json:"waste_factor"`
	UnitCost      *int64          `json:"unit_cost"`
	SortOrder     int             `json:"sort_order"`
	IsOptional    bool            `json:"is_optional"`
	Notes         string          `json:"notes"`
}

func (in BomLineInput) Validate() error {
	if !in.Quantity.IsPositive() {
		return &ValidationError{Err: ErrInvalidBomQuantity, Details: fmt.Sprintf("got %s", in.Quantity.String())}
	}
	if in.WasteFactor.IsNegative() {
		return &ValidationError{Err: ErrInvalidWasteFactor, Details: fmt.Sprintf("got %s%%", in.WasteFactor.String())}
	}
	if in.UnitCost != nil && *in.UnitCost < 0 {
		return &ValidationError{Err: ErrNegativeCost, Details: fmt.Sprintf("unit_cost %d", *in.UnitCost)}
	}
	return nil
}

// ComponentUnitCost is the per unit cost a component contributes: its
// manufacturing cost, or its price when it has none.
func ComponentUnitCost(component *models.Product) int64 {
	if component == nil {
		return 0
	}
	if component.TotalManufacturingCost > 0 {
		return component.TotalManufacturingCost
	}
	return component.Price
}

// CalculateBomLine sets actual_quantity = quantity * (1 + waste/100) and
// total_cost = round(actual_quantity * unit_cost).
func CalculateBomLine(item *models.BomItem) {
	waste := decimal.NewFromInt(1).Add(item.WasteFactor.Div(hundred))
	item.ActualQuantity = item.Quantity.Mul(waste).Round(4)
	item.TotalCost = item.Quantity.Mul(waste).Mul(decimal.NewFromInt(item.UnitCost)).Round(0).IntPart()
}

// applyInput copies the input onto item and resolves the unit cost.
func applyInput(item *models.BomItem, in BomLineInput, component *models.Product) {
	item.ComponentID = in.ComponentID
	item.Quantity = in.Quantity
	item.UnitOfMeasure = in.UnitOfMeasure
	item.WasteFactor = in.WasteFactor
	item.SortOrder = in.SortOrder
	item.IsOptional = in.IsOptional
	item.Notes = in.Notes
	if in.UnitCost != nil {
		item.UnitCost = *in.UnitCost
	} else {
		item.UnitCost = ComponentUnitCost(component)
	}
	CalculateBomLine(item)
}
