package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audited actions. Every entry that touches a managed host carries the
// server id so the trail can be joined against the command ledger.
const (
	AuditActionLogin        = "login"
	AuditActionExecute      = "execute"
	AuditActionTerminal     = "terminal"
	AuditActionServerCreate = "server_create"
	AuditActionServerUpdate = "server_update"
	AuditActionServerDelete = "server_delete"
)

type AuditLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Actor     string         `gorm:"not null;index" json:"actor"`
	Action    string         `gorm:"not null;index" json:"action"`
	ServerID  *uuid.UUID     `gorm:"type:uuid;index" json:"server_id,omitempty"`
	Details   datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}
