package costing

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBomQuantity = errors.New("bom quantity must be greater than zero")
	ErrInvalidWasteFactor = errors.New("waste factor cannot be negative")
	ErrNegativeCost       = errors.New("cost values cannot be negative")
	ErrComponentNotFound  = errors.New("component product not found")
	ErrSelfReference      = errors.New("a product cannot be a component of itself")
	ErrBomItemNotFound    = errors.New("bom item not found")
)

// ValidationError wraps one of the sentinels above with request specific details.
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
