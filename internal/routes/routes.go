package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ybaranov/adpanel/internal/config"
	"github.com/ybaranov/adpanel/internal/handlers"
	"github.com/ybaranov/adpanel/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	serverHandler *handlers.ServerHandler,
	terminalHandler *handlers.TerminalHandler,
	commandHandler *handlers.CommandHandler,
	yandexHandler *handlers.YandexHandler,
	auditHandler *handlers.AuditHandler,
	systemHandler *handlers.SystemHandler,
) {
	// ─── Public ──────────────────────────────────────────────────────────
	app.Get("/api/health", systemHandler.Health)

	// ─── Auth ────────────────────────────────────────────────────────────
	app.Post("/api/auth/login", authHandler.Login)
	app.Post("/api/auth/refresh", authHandler.Refresh)

	// ─── Protected routes ────────────────────────────────────────────────
	api := app.Group("/api", middleware.JWTProtected(cfg.JWTSecret))

	// Auth (protected)
	api.Get("/auth/me", authHandler.Me)

	// Dashboard
	api.Get("/dashboard/overview", systemHandler.DashboardOverview)

	// Servers
	api.Get("/servers", serverHandler.ListServers)
	api.Post("/servers", serverHandler.CreateServer)
	api.Get("/servers/:id", serverHandler.GetServer)
	api.Put("/servers/:id", serverHandler.UpdateServer)
	api.Delete("/servers/:id", serverHandler.DeleteServer)
	api.Post("/servers/:id/test", serverHandler.TestConnection)

	// Terminal (WebSocket)
	api.Use("/servers/:id/terminal", terminalHandler.UpgradeCheck())
	api.Get("/servers/:id/terminal", terminalHandler.HandleTerminal())

	// Commands
	api.Post("/servers/:id/exec", commandHandler.ExecCommand)
	api.Get("/servers/:id/history", commandHandler.GetHistory)

	// Yandex.Direct
	yandex := api.Group("/yandex")
	yandex.Post("/stats", yandexHandler.GetStats)
	yandex.Get("/accounts", yandexHandler.GetAccounts)
	yandex.Get("/status", yandexHandler.GetStatus)

	// Audit
	api.Get("/audit", auditHandler.ListAuditLogs)
}
