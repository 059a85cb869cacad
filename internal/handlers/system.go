package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ybaranov/adpanel/internal/models"
	"gorm.io/gorm"
)

const Version = "1.2.0"

type SystemHandler struct {
	db      *gorm.DB
	started time.Time
}

func NewSystemHandler(db *gorm.DB) *SystemHandler {
	return &SystemHandler{db: db, started: time.Now()}
}

func (h *SystemHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": Version,
		"uptime":  int(time.Since(h.started).Seconds()),
	})
}

// DashboardOverview aggregates the counters shown on the landing page.
func (h *SystemHandler) DashboardOverview(c *fiber.Ctx) error {
	var serverCount, commandCount, executingCount int64
	h.db.Model(&models.Server{}).Count(&serverCount)
	h.db.Model(&models.Command{}).Count(&commandCount)
	h.db.Model(&models.Command{}).
		Where("status = ?", models.CommandStatusExecuting).
		Count(&executingCount)

	var recent []models.Command
	h.db.Order("created_at DESC").Limit(10).Find(&recent)

	return c.JSON(fiber.Map{
		"servers":            serverCount,
		"commands":           commandCount,
		"commands_executing": executingCount,
		"recent_commands":    recent,
	})
}
