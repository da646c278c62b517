// internal/services/audit_service.go
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/javajoker/contract-engine/internal/models"
)

type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// ListEvents returns a contract's audit trail, oldest first.
func (s *AuditService) ListEvents(ctx context.Context, contractID uuid.UUID) ([]models.ContractEvent, error) {
	var events []models.ContractEvent
	if err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch contract events: %w", err)
	}
	return events, nil
}

// recordEvent must be called with the transaction performing the change.
func recordEvent(tx *gorm.DB, contractID uuid.UUID, actor Actor, action string, from, to models.ContractStatus, metadata map[string]interface{}) error {
	event := &models.ContractEvent{
		ContractID: contractID,
		ActorID:    actor.ref(),
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
	}
	if len(metadata) > 0 {
		event.Metadata = datatypes.JSONMap(metadata)
	}
	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("failed to record %s event: %w", action, err)
	}
	return nil
}
