package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Server struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name                string         `gorm:"not null" json:"name"`
	Host                string         `gorm:"not null" json:"host"`
	Port                int            `gorm:"default:22" json:"port"`
	SSHUsername         string         `gorm:"not null;default:'root'" json:"ssh_username"`
	EncryptedPrivateKey string         `gorm:"type:text" json:"-"`
	SSHPublicKey        string         `gorm:"type:text" json:"ssh_public_key"`
	Fingerprint         string         `json:"fingerprint"`
	Status              string         `gorm:"default:'unknown'" json:"status"` // online, offline, unknown
	LastConnectedAt     *time.Time     `json:"last_connected_at"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasPrivateKey reports whether the record is usable for command execution.
func (s *Server) HasPrivateKey() bool {
	return s.EncryptedPrivateKey != ""
}
