package models

import "github.com/shopspring/decimal"

type ShipmentStatus string

const (
	ShipmentPending          ShipmentStatus = "pending"
	ShipmentPreparing        ShipmentStatus = "preparing"
	ShipmentReadyToShip      ShipmentStatus = "ready_to_ship"
	ShipmentPickedUp         ShipmentStatus = "picked_up"
	ShipmentInTransit        ShipmentStatus = "in_transit"
	ShipmentCustomsClearance ShipmentStatus = "customs_clearance"
	ShipmentOutForDelivery   ShipmentStatus = "out_for_delivery"
	ShipmentDelivered        ShipmentStatus = "delivered"
	ShipmentCancelled        ShipmentStatus = "cancelled"
	ShipmentReturned         ShipmentStatus = "returned"
)

func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentPending, ShipmentPreparing, ShipmentReadyToShip, ShipmentPickedUp,
		ShipmentInTransit, ShipmentCustomsClearance, ShipmentOutForDelivery,
		ShipmentDelivered, ShipmentCancelled, ShipmentReturned:
		return true
	}
	return false
}

// CanTransitionTo: the forward chain pending -> ... -> delivered. Cancellation is
// possible until pickup, a return once the goods have left.
func (s ShipmentStatus) CanTransitionTo(next ShipmentStatus) bool {
	switch s {
	case ShipmentPending:
		return next == ShipmentPreparing || next == ShipmentCancelled
	case ShipmentPreparing:
		return next == ShipmentReadyToShip || next == ShipmentCancelled
	case ShipmentReadyToShip:
		return next == ShipmentPickedUp || next == ShipmentPreparing || next == ShipmentCancelled
	case ShipmentPickedUp:
		return next == ShipmentInTransit || next == ShipmentReturned
	case ShipmentInTransit:
		return next == ShipmentCustomsClearance || next == ShipmentOutForDelivery || next == ShipmentReturned
	case ShipmentCustomsClearance:
		return next == ShipmentOutForDelivery || next == ShipmentReturned
	case ShipmentOutForDelivery:
		return next == ShipmentDelivered || next == ShipmentReturned
	case ShipmentDelivered:
		return next == ShipmentReturned
	case ShipmentCancelled, ShipmentReturned:
		return false
	}
	return false
}

// AcceptsPacking: container contents may only change while the shipment is being prepared.
func (s ShipmentStatus) AcceptsPacking() bool {
	switch s {
	case ShipmentPending, ShipmentPreparing:
		return true
	case ShipmentReadyToShip, ShipmentPickedUp, ShipmentInTransit, ShipmentCustomsClearance,
		ShipmentOutForDelivery, ShipmentDelivered, ShipmentCancelled, ShipmentReturned:
		return false
	}
	return false
}

type ShipmentType string

const (
	ShipmentOutbound ShipmentType = "outbound"
	ShipmentInbound  ShipmentType = "inbound"
)

func (t ShipmentType) Valid() bool {
	return t == ShipmentOutbound || t == ShipmentInbound
}

type ContainerStatus string

const (
	ContainerDraft     ContainerStatus = "draft"
	ContainerPacked    ContainerStatus = "packed"
	ContainerSealed    ContainerStatus = "sealed"
	ContainerInTransit ContainerStatus = "in_transit"
	ContainerDelivered ContainerStatus = "delivered"
)

func (s ContainerStatus) Valid() bool {
	switch s {
	case ContainerDraft, ContainerPacked, ContainerSealed, ContainerInTransit, ContainerDelivered:
		return true
	}
	return false
}

// CanTransitionTo lists the normal flow. sealed -> packed is the unseal step and is
// only reachable through the audited unseal operation.
func (s ContainerStatus) CanTransitionTo(next ContainerStatus) bool {
	switch s {
	case ContainerDraft:
		return next == ContainerPacked || next == ContainerSealed
	case ContainerPacked:
		return next == ContainerDraft || next == ContainerSealed
	case ContainerSealed:
		return next == ContainerInTransit
	case ContainerInTransit:
		return next == ContainerDelivered
	case ContainerDelivered:
		return false
	}
	return false
}

// IsSealed reports sealed or any later state.
func (s ContainerStatus) IsSealed() bool {
	switch s {
	case ContainerSealed, ContainerInTransit, ContainerDelivered:
		return true
	case ContainerDraft, ContainerPacked:
		return false
	}
	return false
}

type ContainerType string

const (
	Container20ft   ContainerType = "20ft"
	Container40ft   ContainerType = "40ft"
	Container40hc   ContainerType = "40hc"
	ContainerPallet ContainerType = "pallet"
	ContainerBox    ContainerType = "box"
)

func (t ContainerType) Valid() bool {
	switch t {
	case Container20ft, Container40ft, Container40hc, ContainerPallet, ContainerBox:
		return true
	}
	return false
}

// NominalCapacity: payload kg and internal volume m3 used when a container is
// created without explicit limits.
func (t ContainerType) NominalCapacity() (weight, volume decimal.Decimal, ok bool) {
	switch t {
	case Container20ft:
		return decimal.NewFromInt(28000), decimal.RequireFromString("33.2"), true
	case Container40ft:
		return decimal.NewFromInt(26700), decimal.RequireFromString("67.7"), true
	case Container40hc:
		return decimal.NewFromInt(26500), decimal.RequireFromString("76.3"), true
	case ContainerPallet:
		return decimal.NewFromInt(1000), decimal.RequireFromString("1.5"), true
	case ContainerBox:
		return decimal.NewFromInt(30), decimal.RequireFromString("0.1"), true
	}
	return decimal.Zero, decimal.Zero, false
}

type ItemStatus string

const (
	ItemPacked    ItemStatus = "packed"
	ItemSealed    ItemStatus = "sealed"
	ItemShipped   ItemStatus = "shipped"
	ItemDelivered ItemStatus = "delivered"
)

// ItemStatusFor mirrors the container state onto its items.
func ItemStatusFor(s ContainerStatus) ItemStatus {
	switch s {
	case ContainerDraft, ContainerPacked:
		return ItemPacked
	case ContainerSealed:
		return ItemSealed
	case ContainerInTransit:
		return ItemShipped
	case ContainerDelivered:
		return ItemDelivered
	}
	return ItemPacked
}
