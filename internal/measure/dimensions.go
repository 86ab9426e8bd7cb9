// Package measure derives volumes and packaging figures from product dimensions.
// Linear inputs are centimeters, CBM results are cubic meters. A nil result means
// "unknown", which callers must not treat as zero.
package measure

import (
	"fmt"

	"tradeops-backend/internal/models"

	"github.com/shopspring/decimal"
)

var cmPerM3 = decimal.NewFromInt(1_000_000)

// volumeM3 is (l*w*h)/1e6, unrounded and clamped at zero.
func volumeM3(length, width, height *float64) (decimal.Decimal, bool) {
	if length == nil || width == nil || height == nil {
		return decimal.Zero, false
	}
	v := decimal.NewFromFloat(*length).
		Mul(decimal.NewFromFloat(*width)).
		Mul(decimal.NewFromFloat(*height)).
		Div(cmPerM3)
	if v.IsNegative() {
		v = decimal.Zero
	}
	return v, true
}

// ComputeCbm returns (l*w*h)/1e6 rounded to 4 places, nil if any side is nil.
func ComputeCbm(length, width, height *float64) *float64 {
	v, ok := volumeM3(length, width, height)
	if !ok {
		return nil
	}
	f := v.Round(4).InexactFloat64()
	return &f
}

func ProductCbm(p *models.Product) *float64 {
	return ComputeCbm(p.ProductLength, p.ProductWidth, p.ProductHeight)
}

func InnerBoxCbm(p *models.Product) *float64 {
	return ComputeCbm(p.InnerBoxLength, p.InnerBoxWidth, p.InnerBoxHeight)
}

func CartonCbm(p *models.Product) *float64 {
	return ComputeCbm(p.CartonLength, p.CartonWidth, p.CartonHeight)
}

// PcsPerCarton: pieces per inner box times inner boxes per carton.
func PcsPerCarton(pcsPerInnerBox, innerBoxesPerCarton *int) *int {
	if pcsPerInnerBox == nil || innerBoxesPerCarton == nil || *pcsPerInnerBox <= 0 || *innerBoxesPerCarton <= 0 {
		return nil
	}
	n := *pcsPerInnerBox * *innerBoxesPerCarton
	return &n
}

// packagingAllowance is the estimated share of carton weight taken by packaging.
var packagingAllowance = decimal.RequireFromString("1.10")

// EstimateCartonWeight: unit gross weight (kg) times pieces, plus 10% packaging, 3 decimals.
func EstimateCartonWeight(unitWeightKg *float64, pcsPerCarton *int) *float64 {
	if unitWeightKg == nil || pcsPerCarton == nil || *unitWeightKg <= 0 || *pcsPerCarton <= 0 {
		return nil
	}
	v := decimal.NewFromFloat(*unitWeightKg).
		Mul(decimal.NewFromInt(int64(*pcsPerCarton))).
		Mul(packagingAllowance).
		Round(3)
	f := v.InexactFloat64()
	return &f
}

// UnitWeightKg converts the stored gram weight to kilograms (3 places).
func UnitWeightKg(p *models.Product) (decimal.Decimal, bool) {
	if p.WeightGrams == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(*p.WeightGrams).Div(decimal.NewFromInt(1000)).Round(3), true
}

// UnitVolumeM3 is the product volume at the 6 places of the unit_volume column.
// ProductCbm is rounded to 4 places and must not be used for packing.
func UnitVolumeM3(p *models.Product) (decimal.Decimal, bool) {
	v, ok := volumeM3(p.ProductLength, p.ProductWidth, p.ProductHeight)
	if !ok {
		return decimal.Zero, false
	}
	return v.Round(6), true
}

// Refresh recomputes the derived packaging fields. Existing values are kept when
// the inputs are incomplete.
func Refresh(p *models.Product) {
	if cbm := CartonCbm(p); cbm != nil {
		p.CartonCbm = cbm
	}
	if pcs := PcsPerCarton(p.PcsPerInnerBox, p.InnerBoxesPerCarton); pcs != nil {
		p.PcsPerCarton = pcs
	}
}

// ValidatePackaging returns human readable consistency warnings, empty when fine.
func ValidatePackaging(p *models.Product) []string {
	warnings := []string{}

	hasPcsPerInner := p.PcsPerInnerBox != nil && *p.PcsPerInnerBox > 0
	hasInnerPerCarton := p.InnerBoxesPerCarton != nil && *p.InnerBoxesPerCarton > 0

	if hasPcsPerInner && !hasInnerPerCarton {
		warnings = append(warnings, "You have Pieces per Inner Box but no Inner Boxes per Carton")
	}
	if hasInnerPerCarton && !hasPcsPerInner {
		warnings = append(warnings, "You have Inner Boxes per Carton but no Pieces per Inner Box")
	}

	unit, ok := UnitWeightKg(p)
	if ok && unit.IsPositive() && p.PcsPerCarton != nil && *p.PcsPerCarton > 0 && p.CartonWeight != nil && *p.CartonWeight > 0 {
		minWeight := unit.Mul(decimal.NewFromInt(int64(*p.PcsPerCarton)))
		if decimal.NewFromFloat(*p.CartonWeight).LessThan(minWeight) {
			warnings = append(warnings, fmt.Sprintf(
				"Carton Gross Weight (%.3f kg) is less than Unit Weight × Pieces (%.3f kg)",
				*p.CartonWeight, minWeight.InexactFloat64(),
			))
		}
	}

	return warnings
}
