package reports

import (
	"sort"

	"tradeops-backend/internal/models"
)

// LineDistribution: AllocatedHere counts this shipment only, ShippedTotal every
// shipment of the line.
type LineDistribution struct {
	ProformaItemID    uint   `json:"proforma_invoice_item_id"`
	ProductID         uint   `json:"product_id"`
	ProductName       string `json:"product_name"`
	Quantity          int64  `json:"quantity"`
	AllocatedHere     int64  `json:"allocated_quantity"`
	ShippedTotal      int64  `json:"shipped_quantity"`
	RemainingQuantity int64  `json:"remaining_quantity"`
	ShipmentSequences []int  `json:"shipment_sequences"`
}

type ProformaDistribution struct {
	ProformaInvoiceID uint               `json:"proforma_invoice_id"`
	ProformaNumber    string             `json:"proforma_number"`
	ClientName        string             `json:"client_name"`
	TotalItems        int                `json:"total_items"`
	AllocatedItems    int                `json:"allocated_items"`
	TotalQuantity     int64              `json:"total_quantity"`
	AllocatedQuantity int64              `json:"allocated_quantity"`
	ShippedQuantity   int64              `json:"shipped_quantity"`
	Containers        []string           `json:"containers"`
	ShipmentSequences []int              `json:"shipment_sequences"`
	Lines             []LineDistribution `json:"lines"`
}

type Distribution struct {
	ShipmentNumber   string                 `json:"shipment_number"`
	ProformaInvoices []ProformaDistribution `json:"proforma_invoices"`
}

// ProformaIDs lists the proforma invoices touched by the shipment, ascending.
func ProformaIDs(sh *models.Shipment) []uint {
	seen := map[uint]struct{}{}
	var ids []uint
	for _, c := range sh.Containers {
		for _, it := range c.Items {
			if _, ok := seen[it.ProformaInvoiceID]; ok {
				continue
			}
			seen[it.ProformaInvoiceID] = struct{}{}
			ids = append(ids, it.ProformaInvoiceID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DistributionByProformaInvoice reports, per invoice and per line, what this
// shipment carries against the ordered and the already shipped quantity, so a
// partial fulfilment plan can be checked back against the order.
func DistributionByProformaInvoice(sh *models.Shipment, invoices []models.ProformaInvoice) Distribution {
	type lineAcc struct {
		qty  int64
		seqs map[int]struct{}
	}
	byLine := map[uint]*lineAcc{}
	containersByInvoice := map[uint][]string{}
	for _, c := range sh.Containers {
		for _, it := range c.Items {
			acc, ok := byLine[it.ProformaInvoiceItemID]
			if !ok {
				acc = &lineAcc{seqs: map[int]struct{}{}}
				byLine[it.ProformaInvoiceItemID] = acc
			}
			acc.qty += it.Quantity
			acc.seqs[it.ShipmentSequence] = struct{}{}

			containersByInvoice[it.ProformaInvoiceID] = appendUnique(containersByInvoice[it.ProformaInvoiceID], c.ContainerNumber)
		}
	}

	out := Distribution{ShipmentNumber: sh.ShipmentNumber, ProformaInvoices: make([]ProformaDistribution, 0, len(invoices))}
	for _, pi := range invoices {
		d := ProformaDistribution{
			ProformaInvoiceID: pi.ID,
			ProformaNumber:    pi.ProformaNumber,
			ClientName:        pi.ClientName,
			TotalItems:        len(pi.Items),
			Containers:        containersByInvoice[pi.ID],
			Lines:             make([]LineDistribution, 0, len(pi.Items)),
		}
		if d.Containers == nil {
			d.Containers = []string{}
		}
		invoiceSeqs := map[int]struct{}{}
		for _, line := range pi.Items {
			l := LineDistribution{
				ProformaItemID:    line.ID,
				ProductID:         line.ProductID,
				ProductName:       line.ProductName,
				Quantity:          line.Quantity,
				ShippedTotal:      line.QuantityShipped,
				RemainingQuantity: line.QuantityRemaining(),
				ShipmentSequences: []int{},
			}
			if acc, ok := byLine[line.ID]; ok {
				l.AllocatedHere = acc.qty
				l.ShipmentSequences = sortedKeys(acc.seqs)
				for s := range acc.seqs {
					invoiceSeqs[s] = struct{}{}
				}
				d.AllocatedItems++
			}
			d.TotalQuantity += line.Quantity
			d.AllocatedQuantity += l.AllocatedHere
			d.ShippedQuantity += line.QuantityShipped
			d.Lines = append(d.Lines, l)
		}
		d.ShipmentSequences = sortedKeys(invoiceSeqs)
		out.ProformaInvoices = append(out.ProformaInvoices, d)
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
