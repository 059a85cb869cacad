package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CommandStatusExecuting = "executing"
	CommandStatusCompleted = "completed"
	CommandStatusError     = "error"
)

// Command is one row of the execution ledger. Output keeps the combined
// result shown in the history view; Stdout, Stderr and ExitCode are stored
// separately so the success policy can be audited after the fact.
type Command struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ServerID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"server_id"`
	Server     Server     `gorm:"foreignKey:ServerID" json:"-"`
	Command    string     `gorm:"not null" json:"command"`
	Status     string     `gorm:"not null;default:'executing'" json:"status"`
	Output     string     `gorm:"type:text" json:"output"`
	Stdout     string     `gorm:"type:text" json:"stdout"`
	Stderr     string     `gorm:"type:text" json:"stderr"`
	ExitCode   int        `json:"exit_code"`
	ExecutedAt *time.Time `json:"executed_at"`
	DurationMs int        `json:"duration_ms"`
	CreatedAt  time.Time  `json:"created_at"`
}
