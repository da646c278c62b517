// internal/models/payment.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SigningOtp is a single-use code authorizing one party's signature. Issuing a
// new code for the same contract and role removes earlier unconsumed codes.
type SigningOtp struct {
	BaseModel
	ContractID uuid.UUID  `json:"contract_id" gorm:"type:uuid;not null;index:idx_signing_otps_pair"`
	Role       PartyRole  `json:"role" gorm:"type:varchar(10);not null;index:idx_signing_otps_pair"`
	CodeHash   string     `json:"-" gorm:"size:255;not null"`
	IssuedAt   time.Time  `json:"issued_at" gorm:"not null"`
	ExpiresAt  time.Time  `json:"expires_at" gorm:"not null"`
	Consumed   bool       `json:"consumed" gorm:"not null;default:false"`
	ConsumedAt *time.Time `json:"consumed_at"`
}

// PaymentIntent batches the unpaid addons of one payer role into a single
// gateway payment.
type PaymentIntent struct {
	BaseModel
	ContractID           uuid.UUID       `json:"contract_id" gorm:"type:uuid;not null;index"`
	ChargedTo            PartyRole       `json:"charged_to" gorm:"type:varchar(10);not null;index"`
	Amount               decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	Currency             string          `json:"currency" gorm:"size:10;not null"`
	GatewayTransactionID *string         `json:"gateway_transaction_id" gorm:"size:255;uniqueIndex"`
	Status               IntentStatus    `json:"status" gorm:"type:varchar(20);not null;default:'CREATED';index"`
	RedirectURL          string          `json:"redirect_url" gorm:"type:text"`
	FailureReason        string          `json:"failure_reason,omitempty" gorm:"type:text"`
	SucceededAt          *time.Time      `json:"succeeded_at"`
	FailedAt             *time.Time      `json:"failed_at"`
	CreatedBy            *uuid.UUID      `json:"created_by" gorm:"type:uuid"`

	// Relationships
	Addons []PaymentIntentAddon `json:"addons,omitempty" gorm:"foreignKey:PaymentIntentID"`
}

// PaymentIntentAddon records which addon an intent covers, so a success
// callback marks exactly that set paid.
type PaymentIntentAddon struct {
	PaymentIntentID   uuid.UUID `json:"payment_intent_id" gorm:"type:uuid;primaryKey"`
	AddonAttachmentID uuid.UUID `json:"addon_attachment_id" gorm:"type:uuid;primaryKey;index"`
}

// AddonIDs lists the covered addon ids.
func (p *PaymentIntent) AddonIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Addons))
	for _, a := range p.Addons {
		ids = append(ids, a.AddonAttachmentID)
	}
	return ids
}
