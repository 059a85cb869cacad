package handlers

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ybaranov/adpanel/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditHandler struct {
	db *gorm.DB
}

func NewAuditHandler(db *gorm.DB) *AuditHandler {
	return &AuditHandler{db: db}
}

// ListAuditLogs returns paginated audit logs, filterable by actor,
// action and server.
func (h *AuditHandler) ListAuditLogs(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	actor := c.Query("actor", "")
	action := c.Query("action", "")
	serverID := c.Query("server_id", "")

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	query := h.db.Model(&models.AuditLog{})
	if actor != "" {
		query = query.Where("actor = ?", actor)
	}
	if action != "" {
		query = query.Where("action = ?", action)
	}
	if serverID != "" {
		id, err := uuid.Parse(serverID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   true,
				"message": "Invalid server_id filter",
			})
		}
		query = query.Where("server_id = ?", id)
	}

	var total int64
	query.Count(&total)

	var logs []models.AuditLog
	if err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&logs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list audit logs",
		})
	}

	return c.JSON(fiber.Map{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// newAuditEntry assembles one trail entry; kept separate from the
// database write so the shape is verifiable on its own.
func newAuditEntry(actor, action string, serverID *uuid.UUID, details map[string]interface{}) (models.AuditLog, error) {
	if actor == "" || action == "" {
		return models.AuditLog{}, errors.New("audit entry needs an actor and an action")
	}

	var detailsJSON datatypes.JSON
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return models.AuditLog{}, err
		}
		detailsJSON = datatypes.JSON(b)
	}

	return models.AuditLog{
		Actor:    actor,
		Action:   action,
		ServerID: serverID,
		Details:  detailsJSON,
	}, nil
}

// CreateAuditLog is an internal helper to record audit entries.
func CreateAuditLog(db *gorm.DB, actor, action string, serverID *uuid.UUID, details map[string]interface{}) error {
	entry, err := newAuditEntry(actor, action, serverID, details)
	if err != nil {
		return err
	}
	return db.Create(&entry).Error
}
