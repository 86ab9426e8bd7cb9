package shipping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrCapacityExceeded     = errors.New("container capacity exceeded")
	ErrAllocationExceeded   = errors.New("quantity exceeds what remains on the proforma invoice line")
	ErrContainerSealed      = errors.New("container is sealed, unseal it before changing its items")
	ErrEmptyContainer       = errors.New("container has no items, pack at least one item before sealing")
	ErrSealNumberRequired   = errors.New("seal number is required")
	ErrSealNumberInUse      = errors.New("seal number is already used by another container")
	ErrNotSealed            = errors.New("container is not sealed")
	ErrUnsealReasonRequired = errors.New("a reason is required to unseal a container")
	ErrInvalidTransition    = errors.New("status transition is not allowed")
	ErrShipmentLocked       = errors.New("shipment no longer accepts packing changes")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrProductMismatch      = errors.New("product does not match the proforma invoice line")
	ErrMissingMeasures      = errors.New("product weight or volume is unknown")
	ErrItemNotFound         = errors.New("container item not found")
	ErrInvalidContainer     = errors.New("invalid container definition")
	ErrInvalidStatus        = errors.New("unknown status")
)

// CapacityViolation describes one axis that would overflow.
type CapacityViolation struct {
	Axis       string          `json:"axis"` // "weight" (kg) or "volume" (m3)
	Current    decimal.Decimal `json:"current"`
	Additional decimal.Decimal `json:"additional"`
	Limit      decimal.Decimal `json:"limit"`
	Excess     decimal.Decimal `json:"excess"`
}

func (v CapacityViolation) unit() string {
	if v.Axis == "weight" {
		return "kg"
	}
	return "m³"
}

type CapacityExceededError struct {
	ContainerNumber string
	Violations      []CapacityViolation
}

func (e *CapacityExceededError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s limit exceeded by %s %s (%s > %s)",
			v.Axis, v.Excess.String(), v.unit(), v.Current.Add(v.Additional).String(), v.Limit.String()))
	}
	return fmt.Sprintf("container %s: %s", e.ContainerNumber, strings.Join(parts, "; "))
}

func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

type AllocationExceededError struct {
	ProformaItemID uint
	ProductName    string
	Remaining      int64
	Requested      int64
}

func (e *AllocationExceededError) Error() string {
	return fmt.Sprintf("insufficient quantity for %s: remaining %d, requested %d", e.ProductName, e.Remaining, e.Requested)
}

func (e *AllocationExceededError) Is(target error) bool {
	return target == ErrAllocationExceeded
}

type ValidationError struct {
	Err     error
	Details string
}

func (e *ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Details)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
