// Package costing rolls a product's bill of materials up into its manufacturing
// cost and selling price. Every figure is an integer amount of minor currency
// units; the *Major views exist for display only.
package costing

import (
	"tradeops-backend/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeBomMaterialCost sums the persisted total_cost of the product's BOM lines.
func ComputeBomMaterialCost(p *models.Product) int64 {
	var sum int64
	for _, it := range p.BomItems {
		sum += it.TotalCost
	}
	return sum
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// ComputeSellingPrice applies the markup to total_manufacturing_cost, rounding half up.
// A markup of zero or below leaves the cost unchanged.
func ComputeSellingPrice(p *models.Product) int64 {
	if !p.MarkupPercentage.IsPositive() {
		return p.TotalManufacturingCost
	}
	multiplier := decimal.NewFromInt(1).Add(p.MarkupPercentage.Div(hundred))
	return decimal.NewFromInt(p.TotalManufacturingCost).Mul(multiplier).Round(0).IntPart()
}

// Recalculate derives the cost fields in place from the loaded BomItems.
// price follows calculated_selling_price only for BOM-driven products.
func Recalculate(p *models.Product) {
	p.BomMaterialCost = ComputeBomMaterialCost(p)
	p.TotalManufacturingCost = p.BomMaterialCost + valueOrZero(p.DirectLaborCost) + valueOrZero(p.DirectOverheadCost)
	p.CalculatedSellingPrice = ComputeSellingPrice(p)
	if len(p.BomItems) > 0 {
		p.Price = p.CalculatedSellingPrice
	}
}

// MinorToMajor converts cents to currency units.
func MinorToMajor(v int64) float64 {
	return decimal.NewFromInt(v).Div(hundred).InexactFloat64()
}

type CostView struct {
	Price                   int64   `json:"price"`
	PriceMajor              float64 `json:"price_major"`
	BomMaterialCost         int64   `json:"bom_material_cost"`
	BomMaterialCostMajor    float64 `json:"bom_material_cost_major"`
	DirectLaborCost         int64   `json:"direct_labor_cost"`
	DirectLaborCostMajor    float64 `json:"direct_labor_cost_major"`
	DirectOverheadCost      int64   `json:"direct_overhead_cost"`
	DirectOverheadMajor     float64 `json:"direct_overhead_cost_major"`
	TotalManufacturingCost  int64   `json:"total_manufacturing_cost"`
	TotalManufacturingMajor float64 `json:"total_manufacturing_cost_major"`
	MarkupPercentage        string  `json:"markup_percentage"`
	CalculatedSellingPrice  int64   `json:"calculated_selling_price"`
	CalculatedSellingMajor  float64 `json:"calculated_selling_price_major"`
	BomItemCount            int     `json:"bom_item_count"`
}

func NewCostView(p *models.Product) CostView {
	labor := valueOrZero(p.DirectLaborCost)
	overhead := valueOrZero(p.DirectOverheadCost)
	return CostView{
		Price:                   p.Price,
		PriceMajor:              MinorToMajor(p.Price),
		BomMaterialCost:         p.BomMaterialCost,
		BomMaterialCostMajor:    MinorToMajor(p.BomMaterialCost),
		DirectLaborCost:         labor,
		DirectLaborCostMajor:    MinorToMajor(labor),
		DirectOverheadCost:      overhead,
		DirectOverheadMajor:     MinorToMajor(overhead),
		TotalManufacturingCost:  p.TotalManufacturingCost,
		TotalManufacturingMajor: MinorToMajor(p.TotalManufacturingCost),
		MarkupPercentage:        p.MarkupPercentage.StringFixed(2),
		CalculatedSellingPrice:  p.CalculatedSellingPrice,
		CalculatedSellingMajor:  MinorToMajor(p.CalculatedSellingPrice),
		BomItemCount:            len(p.BomItems),
	}
}
