package handlers

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ybaranov/adpanel/internal/crypto"
	"github.com/ybaranov/adpanel/internal/models"
	"github.com/ybaranov/adpanel/internal/sshx"
	"github.com/ybaranov/adpanel/internal/store"
)

type ServerHandler struct {
	servers   *store.ServerStore
	encryptor *crypto.Encryptor
	dialer    *sshx.NetDialer
	validate  *validator.Validate
}

func NewServerHandler(servers *store.ServerStore, encryptor *crypto.Encryptor, dialer *sshx.NetDialer) *ServerHandler {
	return &ServerHandler{
		servers:   servers,
		encryptor: encryptor,
		dialer:    dialer,
		validate:  validator.New(),
	}
}

func (h *ServerHandler) ListServers(c *fiber.Ctx) error {
	servers, err := h.servers.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list servers",
		})
	}
	return c.JSON(fiber.Map{"servers": servers})
}

type createServerRequest struct {
	Name          string `json:"name" validate:"required"`
	Host          string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port          int    `json:"port" validate:"omitempty,min=1,max=65535"`
	SSHUsername   string `json:"ssh_username"`
	SSHPrivateKey string `json:"ssh_private_key"`
	SSHPublicKey  string `json:"ssh_public_key"`
}

func (h *ServerHandler) CreateServer(c *fiber.Ctx) error {
	var req createServerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Name and host are required",
			"details": err.Error(),
		})
	}

	if req.Port == 0 {
		req.Port = 22
	}
	if req.SSHUsername == "" {
		req.SSHUsername = "root"
	}

	server := models.Server{
		Name:         req.Name,
		Host:         req.Host,
		Port:         req.Port,
		SSHUsername:  req.SSHUsername,
		SSHPublicKey: req.SSHPublicKey,
	}

	if req.SSHPrivateKey != "" {
		// Reject unusable key material before it is stored.
		if _, err := sshx.ParseKey(req.SSHPrivateKey); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   true,
				"message": "Private key is not parseable: " + err.Error(),
			})
		}
		encrypted, err := h.encryptor.Encrypt(req.SSHPrivateKey)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   true,
				"message": "Failed to encrypt private key",
			})
		}
		server.EncryptedPrivateKey = encrypted
	}

	if err := h.servers.Create(c.Context(), &server); err != nil {
		slog.Error("Failed to create server", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to create server",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(server)
}

func (h *ServerHandler) GetServer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid server ID",
		})
	}

	server, err := h.servers.Lookup(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Server not found",
		})
	}
	return c.JSON(server)
}

func (h *ServerHandler) UpdateServer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid server ID",
		})
	}

	server, err := h.servers.Lookup(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Server not found",
		})
	}

	var req struct {
		Name          *string `json:"name"`
		Host          *string `json:"host"`
		Port          *int    `json:"port"`
		SSHUsername   *string `json:"ssh_username"`
		SSHPrivateKey *string `json:"ssh_private_key"`
		SSHPublicKey  *string `json:"ssh_public_key"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	if req.Name != nil {
		server.Name = *req.Name
	}
	if req.Host != nil {
		server.Host = *req.Host
	}
	if req.Port != nil {
		server.Port = *req.Port
	}
	if req.SSHUsername != nil {
		server.SSHUsername = *req.SSHUsername
	}
	if req.SSHPublicKey != nil {
		server.SSHPublicKey = *req.SSHPublicKey
	}
	if req.SSHPrivateKey != nil && *req.SSHPrivateKey != "" {
		if _, err := sshx.ParseKey(*req.SSHPrivateKey); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   true,
				"message": "Private key is not parseable: " + err.Error(),
			})
		}
		encrypted, err := h.encryptor.Encrypt(*req.SSHPrivateKey)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   true,
				"message": "Failed to encrypt private key",
			})
		}
		server.EncryptedPrivateKey = encrypted
	}

	if err := h.servers.Save(c.Context(), server); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to update server",
		})
	}
	return c.JSON(server)
}

func (h *ServerHandler) DeleteServer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid server ID",
		})
	}

	if err := h.servers.Delete(c.Context(), id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to delete server",
		})
	}
	return c.JSON(fiber.Map{"message": "Server deleted"})
}

func (h *ServerHandler) TestConnection(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid server ID",
		})
	}

	server, err := h.servers.Lookup(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Server not found",
		})
	}
	if !server.HasPrivateKey() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Server has no private key configured",
		})
	}

	key, err := h.encryptor.Decrypt(server.EncryptedPrivateKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to decrypt credentials",
		})
	}

	fingerprint, err := h.dialer.Probe(c.Context(), sshx.Target{
		Host:       server.Host,
		Port:       server.Port,
		Username:   server.SSHUsername,
		PrivateKey: key,
	})
	if err != nil {
		h.servers.MarkStatus(c.Context(), id, map[string]interface{}{"status": "offline"})
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":       true,
			"message":     "Connection failed: " + err.Error(),
			"fingerprint": fingerprint,
		})
	}

	now := time.Now()
	h.servers.MarkStatus(c.Context(), id, map[string]interface{}{
		"status":            "online",
		"fingerprint":       fingerprint,
		"last_connected_at": now,
	})

	return c.JSON(fiber.Map{
		"message":     "Connection successful",
		"fingerprint": fingerprint,
	})
}
