// internal/services/directory_service.go
package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/contract-engine/internal/models"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uuid.UUID
	Staff  bool
}

func (a Actor) ref() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// OrderLookup resolves the order a contract is drawn up from.
type OrderLookup interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// ServiceCatalog resolves add-on service definitions.
type ServiceCatalog interface {
	GetService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error)
}

// UserDirectory resolves party contact details.
type UserDirectory interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// DirectoryService reads the marketplace tables the engine does not own.
// Every call is a fresh query; nothing is cached.
type DirectoryService struct {
	db *gorm.DB
}

func NewDirectoryService(db *gorm.DB) *DirectoryService {
	return &DirectoryService{db: db}
}

func (s *DirectoryService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		return nil, notFound(err, "order")
	}
	return &order, nil
}

func (s *DirectoryService) GetService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error) {
	var service models.Service
	if err := s.db.WithContext(ctx).First(&service, "id = ?", serviceID).Error; err != nil {
		return nil, notFound(err, "service")
	}
	return &service, nil
}

func (s *DirectoryService) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}
