// Package shipping keeps the packing state of shipment containers: item
// assignment against declared capacity, the seal gate and the container
// lifecycle. Weights are kilograms, volumes cubic meters.
package shipping

import (
	"fmt"
	"sort"

	"tradeops-backend/internal/models"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	warnHighPct     = decimal.NewFromInt(90)
	warnCriticalPct = decimal.NewFromInt(95)
)

type Utilization struct {
	WeightPct float64 `json:"weight_pct"`
	VolumePct float64 `json:"volume_pct"`
}

// percent is cur/max*100, zero when max is not positive.
func percent(cur, max decimal.Decimal) decimal.Decimal {
	if !max.IsPositive() {
		return decimal.Zero
	}
	return cur.Div(max).Mul(hundred)
}

// UtilizationPercent rounds each axis to 2 places. A zero maximum yields 0.
func UtilizationPercent(c *models.ShipmentContainer) Utilization {
	return Utilization{
		WeightPct: percent(c.CurrentWeight, c.MaxWeight).Round(2).InexactFloat64(),
		VolumePct: percent(c.CurrentVolume, c.MaxVolume).Round(2).InexactFloat64(),
	}
}

type FitIssue struct {
	Type    string `json:"type"` // weight_exceeded, volume_exceeded
	Message string `json:"message"`
	CapacityViolation
}

type FitWarning struct {
	Type        string  `json:"type"` // weight_high, weight_critical, volume_high, volume_critical
	Message     string  `json:"message"`
	Utilization float64 `json:"utilization"`
}

type AxisMetrics struct {
	Current     decimal.Decimal `json:"current"`
	Additional  decimal.Decimal `json:"additional"`
	NewTotal    decimal.Decimal `json:"new_total"`
	Limit       decimal.Decimal `json:"limit"`
	Utilization float64         `json:"utilization"`
	Remaining   decimal.Decimal `json:"remaining"`
}

type FitReport struct {
	CanFit   bool         `json:"can_fit"`
	Issues   []FitIssue   `json:"issues"`
	Warnings []FitWarning `json:"warnings"`
	Weight   AxisMetrics  `json:"weight"`
	Volume   AxisMetrics  `json:"volume"`
}

// Violations returns the issues as capacity violations.
func (r FitReport) Violations() []CapacityViolation {
	out := make([]CapacityViolation, 0, len(r.Issues))
	for _, is := range r.Issues {
		out = append(out, is.CapacityViolation)
	}
	return out
}

// CheckFit projects adding weight kg and volume m3 to c. It never mutates c.
func CheckFit(c *models.ShipmentContainer, weight, volume decimal.Decimal) FitReport {
	r := FitReport{
		CanFit:   true,
		Issues:   []FitIssue{},
		Warnings: []FitWarning{},
	}
	r.Weight = checkAxis(&r, "weight", c.CurrentWeight, weight, c.MaxWeight)
	r.Volume = checkAxis(&r, "volume", c.CurrentVolume, volume, c.MaxVolume)
	return r
}

func checkAxis(r *FitReport, axis string, current, additional, limit decimal.Decimal) AxisMetrics {
	newTotal := current.Add(additional)
	util := percent(newTotal, limit)

	if newTotal.GreaterThan(limit) {
		v := CapacityViolation{
			Axis:       axis,
			Current:    current,
			Additional: additional,
			Limit:      limit,
			Excess:     newTotal.Sub(limit),
		}
		r.CanFit = false
		r.Issues = append(r.Issues, FitIssue{
			Type:              axis + "_exceeded",
			Message:           fmt.Sprintf("%s limit exceeded by %s %s", axis, v.Excess.String(), v.unit()),
			CapacityViolation: v,
		})
	} else if limit.IsPositive() {
		switch {
		case util.GreaterThanOrEqual(warnCriticalPct):
			r.Warnings = append(r.Warnings, FitWarning{
				Type:        axis + "_critical",
				Message:     fmt.Sprintf("%s utilization would reach %s%%, container is almost full", axis, util.StringFixed(1)),
				Utilization: util.Round(2).InexactFloat64(),
			})
		case util.GreaterThanOrEqual(warnHighPct):
			r.Warnings = append(r.Warnings, FitWarning{
				Type:        axis + "_high",
				Message:     fmt.Sprintf("%s utilization would reach %s%%", axis, util.StringFixed(1)),
				Utilization: util.Round(2).InexactFloat64(),
			})
		}
	}

	return AxisMetrics{
		Current:     current,
		Additional:  additional,
		NewTotal:    newTotal,
		Limit:       limit,
		Utilization: util.Round(2).InexactFloat64(),
		Remaining:   limit.Sub(newTotal),
	}
}

type BalanceWarning struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	ItemIDs        []uint `json:"item_ids,omitempty"`
	Recommendation string `json:"recommendation"`
}

type BalanceReport struct {
	IsBalanced       bool             `json:"is_balanced"`
	Warnings         []BalanceWarning `json:"warnings"`
	AverageWeight    decimal.Decimal  `json:"average_item_weight"`
	TopConcentration float64          `json:"top_concentration_pct"`
}

var (
	heavyFactor          = decimal.NewFromInt(2)
	concentrationLimit   = decimal.NewFromInt(70)
	concentrationTopSize = 3
)

// BalanceCheck flags items heavier than twice the average and containers where
// the three heaviest items carry more than 70% of the weight. The concentration
// rule only applies with more than three items.
func BalanceCheck(c *models.ShipmentContainer) BalanceReport {
	r := BalanceReport{IsBalanced: true, Warnings: []BalanceWarning{}, AverageWeight: decimal.Zero}
	if len(c.Items) == 0 {
		return r
	}

	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.TotalWeight)
	}
	avg := total.Div(decimal.NewFromInt(int64(len(c.Items))))
	r.AverageWeight = avg.Round(3)

	var heavy []uint
	threshold := avg.Mul(heavyFactor)
	for _, it := range c.Items {
		if it.TotalWeight.GreaterThan(threshold) {
			heavy = append(heavy, it.ID)
		}
	}
	if len(heavy) > 0 {
		r.Warnings = append(r.Warnings, BalanceWarning{
			Type:           "unbalanced_weight",
			Message:        fmt.Sprintf("%d item(s) weigh more than twice the average", len(heavy)),
			ItemIDs:        heavy,
			Recommendation: "spread heavy items evenly across the floor",
		})
	}

	weights := make([]decimal.Decimal, len(c.Items))
	for i, it := range c.Items {
		weights[i] = it.TotalWeight
	}
	sort.Slice(weights, func(i, j int) bool { return weights[i].GreaterThan(weights[j]) })
	top := decimal.Zero
	for i := 0; i < len(weights) && i < concentrationTopSize; i++ {
		top = top.Add(weights[i])
	}
	concentration := percent(top, total)
	r.TopConcentration = concentration.Round(2).InexactFloat64()

	if len(c.Items) > concentrationTopSize && concentration.GreaterThan(concentrationLimit) {
		r.IsBalanced = false
		r.Warnings = append(r.Warnings, BalanceWarning{
			Type:           "weight_concentration",
			Message:        fmt.Sprintf("the %d heaviest items carry %s%% of the weight", concentrationTopSize, concentration.StringFixed(1)),
			Recommendation: "distribute the weight more evenly",
		})
	}
	return r
}

type Suggestion struct {
	Type     string         `json:"type"`
	Priority string         `json:"priority"` // high, medium
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

var (
	lowUtilPct       = decimal.NewFromInt(50)
	downsizeUtilPct  = decimal.NewFromInt(40)
	splitUtilPct     = decimal.NewFromInt(98)
	downsizeFromType = map[models.ContainerType]models.ContainerType{
		models.Container40ft: models.Container20ft,
		models.Container40hc: models.Container40ft,
	}
)

// Suggestions returns packing advice for the current container state.
func Suggestions(c *models.ShipmentContainer) []Suggestion {
	out := []Suggestion{}
	weightPct := percent(c.CurrentWeight, c.MaxWeight)
	volumePct := percent(c.CurrentVolume, c.MaxVolume)

	if len(c.Items) > 0 && weightPct.LessThan(lowUtilPct) && volumePct.LessThan(lowUtilPct) {
		out = append(out, Suggestion{
			Type:     "add_more_items",
			Priority: "high",
			Message:  "container is less than half full, consider consolidating more items",
			Details: map[string]any{
				"remaining_weight": c.RemainingWeight(),
				"remaining_volume": c.RemainingVolume(),
			},
		})
	}

	if smaller, ok := downsizeFromType[c.ContainerType]; ok && len(c.Items) > 0 &&
		weightPct.LessThan(downsizeUtilPct) && volumePct.LessThan(downsizeUtilPct) {
		sw, sv, _ := smaller.NominalCapacity()
		if c.CurrentWeight.LessThanOrEqual(sw) && c.CurrentVolume.LessThanOrEqual(sv) {
			out = append(out, Suggestion{
				Type:     "downsize_container",
				Priority: "medium",
				Message:  fmt.Sprintf("the cargo fits into a %s container", smaller),
				Details:  map[string]any{"suggested_type": smaller},
			})
		}
	}

	if weightPct.GreaterThanOrEqual(splitUtilPct) || volumePct.GreaterThanOrEqual(splitUtilPct) {
		out = append(out, Suggestion{
			Type:     "split_container",
			Priority: "high",
			Message:  "container is at its limit, move further items to another container",
			Details: map[string]any{
				"weight_utilization": weightPct.Round(2).InexactFloat64(),
				"volume_utilization": volumePct.Round(2).InexactFloat64(),
			},
		})
	}

	if b := BalanceCheck(c); !b.IsBalanced {
		out = append(out, Suggestion{
			Type:     "rebalance",
			Priority: "medium",
			Message:  "weight distribution is uneven",
			Details:  map[string]any{"warnings": b.Warnings},
		})
	}
	return out
}

type AxisSummary struct {
	Current     decimal.Decimal `json:"current"`
	Max         decimal.Decimal `json:"max"`
	Remaining   decimal.Decimal `json:"remaining"`
	Utilization float64         `json:"utilization"`
}

type ProformaShare struct {
	ProformaInvoiceID uint  `json:"proforma_invoice_id"`
	ItemsCount        int   `json:"items_count"`
	TotalQuantity     int64 `json:"total_quantity"`
}

type Summary struct {
	ID               uint                           `json:"id"`
	ContainerNumber  string                         `json:"container_number"`
	ContainerType    models.ContainerType           `json:"container_type"`
	Status           models.ContainerStatus         `json:"status"`
	SealNumber       *string                        `json:"seal_number"`
	ItemsCount       int                            `json:"items_count"`
	TotalQuantity    int64                          `json:"total_quantity"`
	TotalCartons     int64                          `json:"total_cartons"`
	Weight           AxisSummary                    `json:"weight"`
	Volume           AxisSummary                    `json:"volume"`
	ProformaInvoices []ProformaShare                `json:"proforma_invoices"`
	Items            []models.ShipmentContainerItem `json:"items"`
}

func ContainerSummary(c *models.ShipmentContainer) Summary {
	u := UtilizationPercent(c)
	s := Summary{
		ID:              c.ID,
		ContainerNumber: c.ContainerNumber,
		ContainerType:   c.ContainerType,
		Status:          c.Status,
		SealNumber:      c.SealNumber,
		ItemsCount:      len(c.Items),
		Weight: AxisSummary{
			Current:     c.CurrentWeight,
			Max:         c.MaxWeight,
			Remaining:   c.RemainingWeight(),
			Utilization: u.WeightPct,
		},
		Volume: AxisSummary{
			Current:     c.CurrentVolume,
			Max:         c.MaxVolume,
			Remaining:   c.RemainingVolume(),
			Utilization: u.VolumePct,
		},
		ProformaInvoices: []ProformaShare{},
		Items:            c.Items,
	}
	if s.Items == nil {
		s.Items = []models.ShipmentContainerItem{}
	}

	idx := map[uint]int{}
	for _, it := range c.Items {
		s.TotalQuantity += it.Quantity
		s.TotalCartons += it.Cartons
		i, ok := idx[it.ProformaInvoiceID]
		if !ok {
			i = len(s.ProformaInvoices)
			idx[it.ProformaInvoiceID] = i
			s.ProformaInvoices = append(s.ProformaInvoices, ProformaShare{ProformaInvoiceID: it.ProformaInvoiceID})
		}
		s.ProformaInvoices[i].ItemsCount++
		s.ProformaInvoices[i].TotalQuantity += it.Quantity
	}
	return s
}
