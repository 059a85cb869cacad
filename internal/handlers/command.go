package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ybaranov/adpanel/internal/models"
	"github.com/ybaranov/adpanel/internal/services"
	"github.com/ybaranov/adpanel/internal/store"
	"gorm.io/gorm"
)

type CommandHandler struct {
	engine   *services.Executor
	commands *store.CommandStore
	db       *gorm.DB
}

func NewCommandHandler(engine *services.Executor, commands *store.CommandStore, db *gorm.DB) *CommandHandler {
	return &CommandHandler{engine: engine, commands: commands, db: db}
}

// ExecCommand runs one shell command on the target host and returns the
// captured output once both remote streams have closed.
func (h *CommandHandler) ExecCommand(c *fiber.Ctx) error {
	serverID := c.Params("id")

	var req struct {
		Command string `json:"command"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	outcome, err := h.engine.Execute(c.Context(), serverID, req.Command)
	if err != nil {
		return h.writeExecError(c, err)
	}

	if actor, ok := c.Locals("username").(string); ok && actor != "" {
		var sid *uuid.UUID
		if id, err := uuid.Parse(serverID); err == nil {
			sid = &id
		}
		CreateAuditLog(h.db, actor, models.AuditActionExecute, sid, map[string]interface{}{
			"command":    req.Command,
			"command_id": outcome.CommandID,
			"status":     outcome.Status,
			"exit_code":  outcome.ExitCode,
		})
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"output":      outcome.Output,
		"command_id":  outcome.CommandID,
		"status":      outcome.Status,
		"exit_code":   outcome.ExitCode,
		"duration_ms": outcome.DurationMs,
	})
}

func (h *CommandHandler) writeExecError(c *fiber.Ctx, err error) error {
	var execError *services.ExecError
	if !errors.As(err, &execError) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Command execution failed",
		})
	}

	status := fiber.StatusInternalServerError
	switch execError.Kind {
	case services.KindValidation:
		status = fiber.StatusBadRequest
	case services.KindNotFound:
		status = fiber.StatusNotFound
	case services.KindHandshake, services.KindAuth:
		status = fiber.StatusBadGateway
	case services.KindTimeout:
		status = fiber.StatusGatewayTimeout
	}

	return c.Status(status).JSON(fiber.Map{
		"error":   true,
		"kind":    string(execError.Kind),
		"message": execError.Error(),
	})
}

// GetHistory returns the ledger for one server, newest first.
func (h *CommandHandler) GetHistory(c *fiber.Ctx) error {
	serverID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid server ID",
		})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	history, total, err := h.commands.ListByServer(c.Context(), serverID, (page-1)*perPage, perPage)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list command history",
		})
	}

	return c.JSON(fiber.Map{
		"history":  history,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}
