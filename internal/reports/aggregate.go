// Package reports rolls container state up to shipment level. Every function
// is a pure read over a shipment loaded with its containers and items.
package reports

import (
	"sort"
	"time"

	"tradeops-backend/internal/models"
	"tradeops-backend/internal/shipping"

	"github.com/shopspring/decimal"
)

type Totals struct {
	TotalWeight      decimal.Decimal `json:"total_weight"`
	TotalVolume      decimal.Decimal `json:"total_volume"`
	TotalItems       int             `json:"total_items"`
	TotalQuantity    int64           `json:"total_quantity"`
	TotalCartons     int64           `json:"total_cartons"`
	TotalContainers  int             `json:"total_containers"`
	SealedContainers int             `json:"sealed_containers"`
	ProformaInvoices int             `json:"total_proforma_invoices"`
}

// ShipmentTotals sums over the containers; no containers gives all zeros.
func ShipmentTotals(sh *models.Shipment) Totals {
	t := Totals{TotalWeight: decimal.Zero, TotalVolume: decimal.Zero, TotalContainers: len(sh.Containers)}
	invoices := map[uint]struct{}{}
	for _, c := range sh.Containers {
		t.TotalWeight = t.TotalWeight.Add(c.CurrentWeight)
		t.TotalVolume = t.TotalVolume.Add(c.CurrentVolume)
		t.TotalItems += len(c.Items)
		if c.Status.IsSealed() {
			t.SealedContainers++
		}
		for _, it := range c.Items {
			t.TotalQuantity += it.Quantity
			t.TotalCartons += it.Cartons
			invoices[it.ProformaInvoiceID] = struct{}{}
		}
	}
	t.ProformaInvoices = len(invoices)
	return t
}

type Classification string

// Overutilized is the 50-70% band. The label is kept as reported by the
// existing admin screens.
const (
	Optimized     Classification = "optimized"
	Underutilized Classification = "underutilized"
	Overutilized  Classification = "overutilized"
)

var (
	optimizedFrom      = decimal.NewFromInt(70)
	underutilizedBelow = decimal.NewFromInt(50)
	two                = decimal.NewFromInt(2)
	hundred            = decimal.NewFromInt(100)
)

func pct(cur, max decimal.Decimal) decimal.Decimal {
	if !max.IsPositive() {
		return decimal.Zero
	}
	return cur.Div(max).Mul(hundred)
}

func averageUtilization(c *models.ShipmentContainer) decimal.Decimal {
	return pct(c.CurrentWeight, c.MaxWeight).Add(pct(c.CurrentVolume, c.MaxVolume)).Div(two)
}

// OptimizationClassification buckets by the mean of weight% and volume%.
func OptimizationClassification(c *models.ShipmentContainer) Classification {
	avg := averageUtilization(c)
	switch {
	case avg.GreaterThanOrEqual(optimizedFrom):
		return Optimized
	case avg.LessThan(underutilizedBelow):
		return Underutilized
	default:
		return Overutilized
	}
}

var (
	defaultBaseCost = decimal.NewFromInt(1000)
	baseCosts       = map[models.ContainerType]decimal.Decimal{
		models.Container20ft:   decimal.NewFromInt(1000),
		models.Container40ft:   decimal.NewFromInt(1500),
		models.Container40hc:   decimal.NewFromInt(1700),
		models.ContainerPallet: decimal.NewFromInt(100),
		models.ContainerBox:    decimal.NewFromInt(50),
	}
	surchargePerTon = decimal.NewFromInt(10)
	kgPerTon        = decimal.NewFromInt(1000)
)

// EstimatedContainerCost: base cost by type plus 10 per metric ton loaded,
// in major currency units.
func EstimatedContainerCost(c *models.ShipmentContainer) decimal.Decimal {
	base, ok := baseCosts[c.ContainerType]
	if !ok {
		base = defaultBaseCost
	}
	return base.Add(c.CurrentWeight.Div(kgPerTon).Mul(surchargePerTon))
}

type ContainerUtilization struct {
	ContainerNumber string                 `json:"container_number"`
	ContainerType   models.ContainerType   `json:"container_type"`
	Status          models.ContainerStatus `json:"status"`
	CurrentWeight   decimal.Decimal        `json:"current_weight"`
	MaxWeight       decimal.Decimal        `json:"max_weight"`
	WeightPct       float64                `json:"weight_utilization"`
	CurrentVolume   decimal.Decimal        `json:"current_volume"`
	MaxVolume       decimal.Decimal        `json:"max_volume"`
	VolumePct       float64                `json:"volume_utilization"`
	ItemsCount      int                    `json:"items_count"`
	SealedAt        *time.Time             `json:"sealed_at"`
}

type UtilizationSummary struct {
	TotalWeight      decimal.Decimal `json:"total_weight"`
	TotalMaxWeight   decimal.Decimal `json:"total_max_weight"`
	WeightPct        float64         `json:"weight_utilization"`
	TotalVolume      decimal.Decimal `json:"total_volume"`
	TotalMaxVolume   decimal.Decimal `json:"total_max_volume"`
	VolumePct        float64         `json:"volume_utilization"`
	AverageWeightPct float64         `json:"average_weight_utilization"`
	AverageVolumePct float64         `json:"average_volume_utilization"`
	AverageFleetPct  float64         `json:"average_container_utilization"`
}

type Utilization struct {
	ShipmentNumber  string                 `json:"shipment_number"`
	TotalContainers int                    `json:"total_containers"`
	Containers      []ContainerUtilization `json:"containers"`
	Summary         UtilizationSummary     `json:"summary"`
}

func round2(v decimal.Decimal) float64 { return v.Round(2).InexactFloat64() }

// UtilizationReport lists per container utilization and fleet-wide figures.
func UtilizationReport(sh *models.Shipment) Utilization {
	r := Utilization{
		ShipmentNumber:  sh.ShipmentNumber,
		TotalContainers: len(sh.Containers),
		Containers:      make([]ContainerUtilization, 0, len(sh.Containers)),
	}
	sum := UtilizationSummary{
		TotalWeight: decimal.Zero, TotalMaxWeight: decimal.Zero,
		TotalVolume: decimal.Zero, TotalMaxVolume: decimal.Zero,
	}
	weightPcts, volumePcts := decimal.Zero, decimal.Zero

	for i := range sh.Containers {
		c := &sh.Containers[i]
		u := shipping.UtilizationPercent(c)
		r.Containers = append(r.Containers, ContainerUtilization{
			ContainerNumber: c.ContainerNumber,
			ContainerType:   c.ContainerType,
			Status:          c.Status,
			CurrentWeight:   c.CurrentWeight,
			MaxWeight:       c.MaxWeight,
			WeightPct:       u.WeightPct,
			CurrentVolume:   c.CurrentVolume,
			MaxVolume:       c.MaxVolume,
			VolumePct:       u.VolumePct,
			ItemsCount:      len(c.Items),
			SealedAt:        c.SealedAt,
		})
		sum.TotalWeight = sum.TotalWeight.Add(c.CurrentWeight)
		sum.TotalMaxWeight = sum.TotalMaxWeight.Add(c.MaxWeight)
		sum.TotalVolume = sum.TotalVolume.Add(c.CurrentVolume)
		sum.TotalMaxVolume = sum.TotalMaxVolume.Add(c.MaxVolume)
		weightPcts = weightPcts.Add(pct(c.CurrentWeight, c.MaxWeight))
		volumePcts = volumePcts.Add(pct(c.CurrentVolume, c.MaxVolume))
	}

	w := pct(sum.TotalWeight, sum.TotalMaxWeight)
	v := pct(sum.TotalVolume, sum.TotalMaxVolume)
	sum.WeightPct = round2(w)
	sum.VolumePct = round2(v)
	sum.AverageFleetPct = round2(w.Add(v).Div(two))
	if n := len(sh.Containers); n > 0 {
		count := decimal.NewFromInt(int64(n))
		sum.AverageWeightPct = round2(weightPcts.Div(count))
		sum.AverageVolumePct = round2(volumePcts.Div(count))
	}
	r.Summary = sum
	return r
}

type ContainerScore struct {
	ContainerNumber string  `json:"container_number"`
	WeightPct       float64 `json:"weight_utilization"`
	VolumePct       float64 `json:"volume_utilization"`
	AveragePct      float64 `json:"average_utilization"`
}

type Bucket struct {
	Count      int              `json:"count"`
	Percentage float64          `json:"percentage"`
	Containers []ContainerScore `json:"containers"`
}

type Optimization struct {
	ShipmentNumber string `json:"shipment_number"`
	Optimized      Bucket `json:"optimized_containers"`
	Underutilized  Bucket `json:"underutilized_containers"`
	Overutilized   Bucket `json:"overutilized_containers"`
}

// OptimizationReport groups containers by OptimizationClassification. Percentages
// are 0 for a shipment without containers.
func OptimizationReport(sh *models.Shipment) Optimization {
	r := Optimization{
		ShipmentNumber: sh.ShipmentNumber,
		Optimized:      Bucket{Containers: []ContainerScore{}},
		Underutilized:  Bucket{Containers: []ContainerScore{}},
		Overutilized:   Bucket{Containers: []ContainerScore{}},
	}
	for i := range sh.Containers {
		c := &sh.Containers[i]
		score := ContainerScore{
			ContainerNumber: c.ContainerNumber,
			WeightPct:       round2(pct(c.CurrentWeight, c.MaxWeight)),
			VolumePct:       round2(pct(c.CurrentVolume, c.MaxVolume)),
			AveragePct:      round2(averageUtilization(c)),
		}
		switch OptimizationClassification(c) {
		case Optimized:
			r.Optimized.Containers = append(r.Optimized.Containers, score)
		case Underutilized:
			r.Underutilized.Containers = append(r.Underutilized.Containers, score)
		case Overutilized:
			r.Overutilized.Containers = append(r.Overutilized.Containers, score)
		}
	}

	total := decimal.NewFromInt(int64(len(sh.Containers)))
	for _, b := range []*Bucket{&r.Optimized, &r.Underutilized, &r.Overutilized} {
		b.Count = len(b.Containers)
		b.Percentage = round2(pct(decimal.NewFromInt(int64(b.Count)), total))
	}
	return r
}

type ContainerCost struct {
	ContainerNumber string               `json:"container_number"`
	ContainerType   models.ContainerType `json:"container_type"`
	EstimatedCost   decimal.Decimal      `json:"estimated_cost"`
	CargoValue      decimal.Decimal      `json:"cargo_value"`
	CostPct         *float64             `json:"cost_percentage"` // nil when the cargo has no value
	ItemsCount      int                  `json:"items_count"`
}

type CostSummary struct {
	TotalContainers    int             `json:"total_containers"`
	TotalEstimatedCost decimal.Decimal `json:"total_estimated_cost"`
	TotalCargoValue    decimal.Decimal `json:"total_cargo_value"`
	CostPct            *float64        `json:"cost_percentage"`
}

type Cost struct {
	ShipmentNumber string          `json:"shipment_number"`
	Containers     []ContainerCost `json:"containers"`
	Summary        CostSummary     `json:"summary"`
}

func costPct(cost, value decimal.Decimal) *float64 {
	if !value.IsPositive() {
		return nil
	}
	f := round2(cost.Div(value).Mul(hundred))
	return &f
}

// CostReport compares the estimated freight cost with the customs value of the
// cargo. Customs values are stored in cents and reported in major units.
func CostReport(sh *models.Shipment) Cost {
	r := Cost{ShipmentNumber: sh.ShipmentNumber, Containers: make([]ContainerCost, 0, len(sh.Containers))}
	totalCost, totalValue := decimal.Zero, decimal.Zero
	for i := range sh.Containers {
		c := &sh.Containers[i]
		cost := EstimatedContainerCost(c)
		var cents int64
		for _, it := range c.Items {
			cents += it.CustomsValue
		}
		value := decimal.New(cents, -2)
		r.Containers = append(r.Containers, ContainerCost{
			ContainerNumber: c.ContainerNumber,
			ContainerType:   c.ContainerType,
			EstimatedCost:   cost,
			CargoValue:      value,
			CostPct:         costPct(cost, value),
			ItemsCount:      len(c.Items),
		})
		totalCost = totalCost.Add(cost)
		totalValue = totalValue.Add(value)
	}
	r.Summary = CostSummary{
		TotalContainers:    len(sh.Containers),
		TotalEstimatedCost: totalCost,
		TotalCargoValue:    totalValue,
		CostPct:            costPct(totalCost, totalValue),
	}
	return r
}

type TimelineEntry struct {
	ContainerNumber string                 `json:"container_number"`
	CreatedAt       time.Time              `json:"created_at"`
	SealedAt        *time.Time             `json:"sealed_at"`
	Status          models.ContainerStatus `json:"status"`
	ItemsCount      int                    `json:"items_count"`
	TotalWeight     decimal.Decimal        `json:"total_weight"`
	TotalVolume     decimal.Decimal        `json:"total_volume"`
}

type History struct {
	ShipmentNumber string                `json:"shipment_number"`
	CreatedAt      time.Time             `json:"created_at"`
	Status         models.ShipmentStatus `json:"status"`
	Timeline       []TimelineEntry       `json:"timeline"`
}

// HistoryReport orders containers by creation time.
func HistoryReport(sh *models.Shipment) History {
	containers := append([]models.ShipmentContainer(nil), sh.Containers...)
	sort.SliceStable(containers, func(i, j int) bool {
		if containers[i].CreatedAt.Equal(containers[j].CreatedAt) {
			return containers[i].ID < containers[j].ID
		}
		return containers[i].CreatedAt.Before(containers[j].CreatedAt)
	})

	r := History{
		ShipmentNumber: sh.ShipmentNumber,
		CreatedAt:      sh.CreatedAt,
		Status:         sh.Status,
		Timeline:       make([]TimelineEntry, 0, len(containers)),
	}
	for _, c := range containers {
		r.Timeline = append(r.Timeline, TimelineEntry{
			ContainerNumber: c.ContainerNumber,
			CreatedAt:       c.CreatedAt,
			SealedAt:        c.SealedAt,
			Status:          c.Status,
			ItemsCount:      len(c.Items),
			TotalWeight:     c.CurrentWeight,
			TotalVolume:     c.CurrentVolume,
		})
	}
	return r
}
