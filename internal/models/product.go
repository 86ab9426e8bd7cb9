package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product: all cost fields are minor currency units (cents).
// Linear dimensions are centimeters, WeightGrams is the gross unit weight.
type Product struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	SKU         string `gorm:"size:100;uniqueIndex;not null" json:"sku"`
	Description string `gorm:"type:text" json:"description"`

	Price                  int64           `gorm:"not null;default:0" json:"price"`
	BomMaterialCost        int64           `gorm:"not null;default:0" json:"bom_material_cost"`
	DirectLaborCost        *int64          `json:"direct_labor_cost"`
	DirectOverheadCost     *int64          `json:"direct_overhead_cost"`
	TotalManufacturingCost int64           `gorm:"not null;default:0" json:"total_manufacturing_cost"`
	MarkupPercentage       decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"markup_percentage"`
	CalculatedSellingPrice int64           `gorm:"not null;default:0" json:"calculated_selling_price"`

	ProductLength *float64 `json:"product_length"`
	ProductWidth  *float64 `json:"product_width"`
	ProductHeight *float64 `json:"product_height"`
	WeightGrams   *float64 `json:"weight_grams"`

	PcsPerInnerBox      *int     `json:"pcs_per_inner_box"`
	InnerBoxLength      *float64 `json:"inner_box_length"`
	InnerBoxWidth       *float64 `json:"inner_box_width"`
	InnerBoxHeight      *float64 `json:"inner_box_height"`
	InnerBoxesPerCarton *int     `json:"inner_boxes_per_carton"`

	PcsPerCarton *int     `json:"pcs_per_carton"`
	CartonLength *float64 `json:"carton_length"`
	CartonWidth  *float64 `json:"carton_width"`
	CartonHeight *float64 `json:"carton_height"`
	CartonWeight *float64 `json:"carton_weight"` // kg
	CartonCbm    *float64 `json:"carton_cbm"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BomItems []BomItem `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"bom_items,omitempty"`
}

// BomItem: one component line of a product's bill of materials
type BomItem struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	ProductID      uint            `gorm:"index;not null" json:"product_id"`
	ComponentID    *uint           `gorm:"index" json:"component_id"`
	Component      *Product        `gorm:"foreignKey:ComponentID" json:"-"`
	Quantity       decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"quantity"`
	UnitOfMeasure  string          `gorm:"size:20" json:"unit_of_measure"`
	WasteFactor    decimal.Decimal `gorm:"type:decimal(6,2);not null;default:0" json:"waste_factor"` // percent
	ActualQuantity decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"actual_quantity"`
	UnitCost       int64           `gorm:"not null;default:0" json:"unit_cost"`
	TotalCost      int64           `gorm:"not null;default:0" json:"total_cost"`
	SortOrder      int             `gorm:"not null;default:0" json:"sort_order"`
	IsOptional     bool            `gorm:"not null;default:false" json:"is_optional"`
	Notes          string          `gorm:"size:255" json:"notes"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CostHistory: one changed cost field of a product
type CostHistory struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	ProductID        uint            `gorm:"index;not null" json:"product_id"`
	ChangedBy        *uint           `json:"changed_by"`
	CostField        string          `gorm:"size:50;not null" json:"cost_field"`
	OldValue         int64           `json:"old_value"`
	NewValue         int64           `json:"new_value"`
	Difference       int64           `json:"difference"`
	PercentageChange decimal.Decimal `gorm:"type:decimal(10,2)" json:"percentage_change"`
	ChangeReason     string          `gorm:"size:255" json:"change_reason"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TableName: history rows live in a singular table.
func (CostHistory) TableName() string {
	return "cost_history"
}
