package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ybaranov/adpanel/internal/models"
	"gorm.io/gorm"
)

type CommandStore struct {
	db *gorm.DB
}

func NewCommandStore(db *gorm.DB) *CommandStore {
	return &CommandStore{db: db}
}

// CommandResult is the terminal state written back to a ledger row.
type CommandResult struct {
	Status     string
	Output     string
	Stdout     string
	Stderr     string
	ExitCode   int
	ExecutedAt time.Time
	DurationMs int
}

// Create inserts the ledger row that must exist before any SSH attempt.
func (s *CommandStore) Create(ctx context.Context, serverID uuid.UUID, command string) (*models.Command, error) {
	cmd := models.Command{
		ServerID: serverID,
		Command:  command,
		Status:   models.CommandStatusExecuting,
	}
	if err := s.db.WithContext(ctx).Create(&cmd).Error; err != nil {
		return nil, err
	}
	return &cmd, nil
}

// Finish applies the single status transition out of "executing".
// The engine guarantees it is called exactly once per submission.
func (s *CommandStore) Finish(ctx context.Context, id uuid.UUID, res CommandResult) error {
	return s.db.WithContext(ctx).Model(&models.Command{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      res.Status,
		"output":      res.Output,
		"stdout":      res.Stdout,
		"stderr":      res.Stderr,
		"exit_code":   res.ExitCode,
		"executed_at": res.ExecutedAt,
		"duration_ms": res.DurationMs,
	}).Error
}

// ListByServer returns history newest-first for the UI.
func (s *CommandStore) ListByServer(ctx context.Context, serverID uuid.UUID, offset, limit int) ([]models.Command, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Command{}).
		Where("server_id = ?", serverID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var commands []models.Command
	err := s.db.WithContext(ctx).
		Where("server_id = ?", serverID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&commands).Error
	return commands, total, err
}

func (s *CommandStore) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Command{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
