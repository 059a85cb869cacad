package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ybaranov/adpanel/internal/models"
	"gorm.io/gorm"
)

// ErrServerNotFound distinguishes a missing record from other storage failures.
var ErrServerNotFound = errors.New("server not found")

type ServerStore struct {
	db *gorm.DB
}

func NewServerStore(db *gorm.DB) *ServerStore {
	return &ServerStore{db: db}
}

// Lookup resolves a credential record by exact id. Credentials are read
// fresh on every call; key material may rotate between invocations.
func (s *ServerStore) Lookup(ctx context.Context, id uuid.UUID) (*models.Server, error) {
	var server models.Server
	err := s.db.WithContext(ctx).First(&server, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &server, nil
}

func (s *ServerStore) List(ctx context.Context) ([]models.Server, error) {
	var servers []models.Server
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&servers).Error
	return servers, err
}

func (s *ServerStore) Create(ctx context.Context, server *models.Server) error {
	return s.db.WithContext(ctx).Create(server).Error
}

func (s *ServerStore) Save(ctx context.Context, server *models.Server) error {
	return s.db.WithContext(ctx).Save(server).Error
}

func (s *ServerStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Delete(&models.Server{}, "id = ?", id).Error
}

// MarkStatus records the reachability outcome of a connection attempt.
func (s *ServerStore) MarkStatus(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.Server{}).Where("id = ?", id).Updates(updates).Error
}
