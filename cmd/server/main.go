package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/ybaranov/adpanel/internal/config"
	"github.com/ybaranov/adpanel/internal/crypto"
	"github.com/ybaranov/adpanel/internal/database"
	"github.com/ybaranov/adpanel/internal/handlers"
	"github.com/ybaranov/adpanel/internal/routes"
	"github.com/ybaranov/adpanel/internal/services"
	"github.com/ybaranov/adpanel/internal/sshx"
	"github.com/ybaranov/adpanel/internal/store"
	"github.com/ybaranov/adpanel/internal/yandex"
)

func main() {
	// JSON structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting adpanel", "version", handlers.Version)

	// ─── Config ──────────────────────────────────────────────────────────
	cfg := config.Load()

	// ─── Database ────────────────────────────────────────────────────────
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("Database connection failed", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	// ─── Encryption ─────────────────────────────────────────────────────
	var encryptor *crypto.Encryptor
	if cfg.SSHEncryptionKey != "" {
		encryptor, err = crypto.NewEncryptor(cfg.SSHEncryptionKey)
		if err != nil {
			slog.Error("Failed to create encryptor", "error", err)
			os.Exit(1)
		}
		slog.Info("SSH credential encryption initialized")
	} else {
		slog.Warn("SSH_ENCRYPTION_KEY not set, using development key")
		encryptor, _ = crypto.NewEncryptor("0000000000000000000000000000000000000000000000000000000000000000")
	}

	// ─── SSH Dialer ─────────────────────────────────────────────────────
	dialer := sshx.NewDialer(sshx.Config{
		ConnectTimeout:      cfg.SSHConnectTimeout,
		KeyExchanges:        cfg.SSHKeyExchanges,
		Ciphers:             cfg.SSHCiphers,
		MACs:                cfg.SSHMACs,
		HostKeyAlgorithms:   cfg.SSHHostKeyAlgorithms,
		KnownHostsFile:      cfg.SSHKnownHostsFile,
		InsecureSkipHostKey: cfg.SSHInsecureSkipHostKey,
	})

	// ─── Stores and services ────────────────────────────────────────────
	servers := store.NewServerStore(db)
	commands := store.NewCommandStore(db)
	engine := services.NewExecutor(servers, commands, dialer, encryptor, cfg.SSHExecTimeout)
	yandexClient := yandex.NewClient(cfg.YandexAPIURL)

	// ─── Handlers ───────────────────────────────────────────────────────
	authHandler := handlers.NewAuthHandler(cfg)
	serverHandler := handlers.NewServerHandler(servers, encryptor, dialer)
	terminalHandler := handlers.NewTerminalHandler(servers, encryptor, dialer, db)
	commandHandler := handlers.NewCommandHandler(engine, commands, db)
	yandexHandler := handlers.NewYandexHandler(yandexClient)
	auditHandler := handlers.NewAuditHandler(db)
	systemHandler := handlers.NewSystemHandler(db)

	// ─── Fiber App ──────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      "adpanel v" + handlers.Version,
		ServerHeader: "adpanel",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal server error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": message,
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, PATCH, OPTIONS",
	}))

	app.Use(recover.New(recover.Config{
		EnableStackTrace: false,
	}))

	// Security headers
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Request logger
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if c.Path() == "/api/health" {
			return err
		}
		slog.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)
		return err
	})

	// ─── Routes ─────────────────────────────────────────────────────────
	routes.Setup(app, cfg, authHandler, serverHandler, terminalHandler,
		commandHandler, yandexHandler, auditHandler, systemHandler)

	// ─── Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down adpanel...")

		if err := app.Shutdown(); err != nil {
			slog.Error("Fiber shutdown error", "error", err)
		}

		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	// ─── Start ──────────────────────────────────────────────────────────
	listenAddr := ":" + cfg.Port
	slog.Info("adpanel listening", "addr", listenAddr)

	if err := app.Listen(listenAddr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
