package audit

import (
	"tradeops-backend/internal/models"
	"tradeops-backend/internal/store"

	"github.com/gofiber/fiber/v2"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	BeforeData  string             `json:"before_data"`
	AfterData   string             `json:"after_data"`
}

const defaultListLimit = 200

// GET /api/audit-logs?entity_type=shipment_container&entity_id=1&limit=50
func ListAuditLogsHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filter := store.AuditFilter{
			EntityType: c.Query("entity_type"),
			Limit:      c.QueryInt("limit", defaultListLimit),
		}
		if eid := c.QueryInt("entity_id", 0); eid > 0 {
			filter.EntityID = uint(eid)
		}
		if filter.Limit <= 0 || filter.Limit > defaultListLimit {
			filter.Limit = defaultListLimit
		}

		logs, err := s.ListAuditLogs(c.UserContext(), filter)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list audit logs")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, AuditLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
				UserID:      l.UserID,
				UserName:    l.UserName,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
				BeforeData:  l.BeforeData,
				AfterData:   l.AfterData,
			})
		}

		return c.JSON(resp)
	}
}
