// internal/models/addon.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is an add-on catalog entry. The catalog is maintained elsewhere;
// the engine reads it at attach time only.
type Service struct {
	BaseModel
	Name        string          `json:"name" gorm:"size:255;not null"`
	Description string          `json:"description" gorm:"type:text"`
	Fee         decimal.Decimal `json:"fee" gorm:"type:decimal(14,2);not null"`
	Status      ServiceStatus   `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
}

// AddonAttachment is a paid service attached to a contract. Name and fee are
// copied from the catalog when attached and never change afterwards.
type AddonAttachment struct {
	BaseModel
	ContractID           uuid.UUID       `json:"contract_id" gorm:"type:uuid;not null;index"`
	ServiceID            uuid.UUID       `json:"service_id" gorm:"type:uuid;not null;index"`
	ServiceName          string          `json:"service_name" gorm:"size:255;not null"`
	Fee                  decimal.Decimal `json:"fee" gorm:"type:decimal(14,2);not null"`
	ChargedTo            PartyRole       `json:"charged_to" gorm:"type:varchar(10);not null;index"`
	PaymentStatus        PaymentStatus   `json:"payment_status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty" gorm:"size:255"`
	PaidAt               *time.Time      `json:"paid_at"`
	AttachedBy           *uuid.UUID      `json:"attached_by" gorm:"type:uuid"`
}
