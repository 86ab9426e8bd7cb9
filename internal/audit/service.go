package audit

import (
	"encoding/json"

	"tradeops-backend/internal/models"
)

// Actor identifies who performed an audited change.
type Actor struct {
	UserID   uint
	UserName string
}

// IDPtr returns nil for the zero actor (system changes).
func (a Actor) IDPtr() *uint {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}

type LogOptions struct {
	Actor       Actor
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// NewEntry builds the row; the caller writes it inside its own transaction so the
// log commits or rolls back with the change it describes.
func NewEntry(opts LogOptions) models.AuditLog {
	// jsonb columns need a JSON literal, not an empty string
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	return models.AuditLog{
		UserID:      opts.Actor.UserID,
		UserName:    opts.Actor.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}
}
