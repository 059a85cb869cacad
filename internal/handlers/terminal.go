package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ybaranov/adpanel/internal/crypto"
	"github.com/ybaranov/adpanel/internal/models"
	"github.com/ybaranov/adpanel/internal/sshx"
	"github.com/ybaranov/adpanel/internal/store"
	"golang.org/x/crypto/ssh"
	"gorm.io/gorm"
)

type TerminalHandler struct {
	servers   *store.ServerStore
	encryptor *crypto.Encryptor
	dialer    *sshx.NetDialer
	db        *gorm.DB
}

func NewTerminalHandler(servers *store.ServerStore, encryptor *crypto.Encryptor, dialer *sshx.NetDialer, db *gorm.DB) *TerminalHandler {
	return &TerminalHandler{servers: servers, encryptor: encryptor, dialer: dialer, db: db}
}

// UpgradeCheck is middleware that checks if the request is a websocket upgrade
func (h *TerminalHandler) UpgradeCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// HandleTerminal bridges a browser websocket to an interactive shell.
func (h *TerminalHandler) HandleTerminal() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		writeErr := func(msg string) {
			c.WriteMessage(websocket.TextMessage, []byte("Error: "+msg))
		}

		serverID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			writeErr("Invalid server ID")
			return
		}

		ctx := context.Background()

		server, err := h.servers.Lookup(ctx, serverID)
		if err != nil {
			writeErr("Server not found")
			return
		}
		if !server.HasPrivateKey() {
			writeErr("Server has no private key configured")
			return
		}

		key, err := h.encryptor.Decrypt(server.EncryptedPrivateKey)
		if err != nil {
			writeErr("Failed to decrypt credentials")
			return
		}

		client, err := h.dialer.DialClient(ctx, sshx.Target{
			Host:       server.Host,
			Port:       server.Port,
			Username:   server.SSHUsername,
			PrivateKey: key,
		})
		if err != nil {
			writeErr("SSH connection failed: " + err.Error())
			return
		}
		defer client.Close()

		session, err := client.NewSession()
		if err != nil {
			writeErr("Failed to create SSH session")
			return
		}
		defer session.Close()

		record := models.TerminalSession{
			ServerID:  serverID,
			StartedAt: time.Now(),
		}
		h.db.Create(&record)

		modes := ssh.TerminalModes{
			ssh.ECHO:          1,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := session.RequestPty("xterm-256color", 24, 80, modes); err != nil {
			writeErr("Failed to request PTY")
			return
		}

		stdin, err := session.StdinPipe()
		if err != nil {
			writeErr("Failed to get stdin pipe")
			return
		}
		stdout, err := session.StdoutPipe()
		if err != nil {
			writeErr("Failed to get stdout pipe")
			return
		}
		stderr, err := session.StderrPipe()
		if err != nil {
			writeErr("Failed to get stderr pipe")
			return
		}

		if err := session.Shell(); err != nil {
			writeErr("Failed to start shell")
			return
		}

		slog.Info("Terminal session started", "server", server.Name, "host", server.Host)

		// One cancel ends the whole bridge: whichever side finishes
		// first tears down the session, which unblocks the rest.
		bridgeCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var bytesTransferred atomic.Int64
		writeWS := func(p []byte) error {
			return c.WriteMessage(websocket.TextMessage, p)
		}

		go pumpStream(stdout, writeWS, &bytesTransferred, cancel)
		go pumpStream(stderr, writeWS, &bytesTransferred, cancel)

		// WebSocket → stdin
		go func() {
			defer cancel()
			for {
				msgType, msg, err := c.ReadMessage()
				if err != nil {
					return
				}
				switch msgType {
				case websocket.TextMessage:
					var ctrl struct {
						Type string `json:"type"`
						Cols int    `json:"cols"`
						Rows int    `json:"rows"`
					}
					if json.Unmarshal(msg, &ctrl) == nil && ctrl.Type == "resize" {
						session.WindowChange(ctrl.Rows, ctrl.Cols)
						continue
					}
					stdin.Write(msg)
				case websocket.BinaryMessage:
					stdin.Write(msg)
					bytesTransferred.Add(int64(len(msg)))
				}
			}
		}()

		go func() {
			<-bridgeCtx.Done()
			session.Close()
		}()

		<-bridgeCtx.Done()

		now := time.Now()
		duration := int(now.Sub(record.StartedAt).Seconds())
		h.db.Model(&record).Updates(map[string]interface{}{
			"ended_at":          now,
			"duration_seconds":  duration,
			"bytes_transferred": bytesTransferred.Load(),
		})
		h.servers.MarkStatus(ctx, serverID, map[string]interface{}{"last_connected_at": now})

		slog.Info("Terminal session ended", "server", server.Name, "duration", duration)
	})
}

// pumpStream copies one remote stream to the websocket until the stream
// closes or the write fails, then cancels the whole bridge.
func pumpStream(r io.Reader, write func([]byte) error, transferred *atomic.Int64, cancel context.CancelFunc) {
	defer cancel()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			transferred.Add(int64(n))
			if write(buf[:n]) != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
