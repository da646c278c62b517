// internal/models/contract.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Contract struct {
	BaseModel
	OrderID        uuid.UUID      `json:"order_id" gorm:"type:uuid;not null;index"`
	Status         ContractStatus `json:"status" gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	BuyerSigned    bool           `json:"buyer_signed" gorm:"not null;default:false"`
	SellerSigned   bool           `json:"seller_signed" gorm:"not null;default:false"`
	BuyerSignedAt  *time.Time     `json:"buyer_signed_at"`
	SellerSignedAt *time.Time     `json:"seller_signed_at"`
	SignedAt       *time.Time     `json:"signed_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	CancelledAt    *time.Time     `json:"cancelled_at"`
	CancelReason   string         `json:"cancel_reason,omitempty" gorm:"type:text"`

	// Relationships
	Addons []AddonAttachment `json:"addons,omitempty" gorm:"foreignKey:ContractID"`
}

// FullySigned reports whether both parties have signed.
func (c *Contract) FullySigned() bool {
	return c.BuyerSigned && c.SellerSigned
}

// SignedBy reports whether role has already signed.
func (c *Contract) SignedBy(role PartyRole) bool {
	switch role {
	case PartyRoleBuyer:
		return c.BuyerSigned
	case PartyRoleSeller:
		return c.SellerSigned
	default:
		return false
	}
}

// ContractEvent is the audit trail of a contract. Rows are written in the same
// transaction as the transition they describe.
type ContractEvent struct {
	ID         uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	ContractID uuid.UUID         `json:"contract_id" gorm:"type:uuid;not null;index"`
	ActorID    *uuid.UUID        `json:"actor_id" gorm:"type:uuid;index"`
	Action     string            `json:"action" gorm:"size:50;not null;index"`
	FromStatus ContractStatus    `json:"from_status,omitempty" gorm:"type:varchar(20)"`
	ToStatus   ContractStatus    `json:"to_status,omitempty" gorm:"type:varchar(20)"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at" gorm:"index"`
}

const (
	EventContractCreated   = "contract.created"
	EventContractSigned    = "contract.party_signed"
	EventContractFullySign = "contract.signed"
	EventContractCompleted = "contract.completed"
	EventContractCancelled = "contract.cancelled"
	EventAddonAttached     = "addon.attached"
	EventAddonsPaid        = "addon.paid"
	EventIntentCreated     = "payment.intent_created"
	EventIntentFailed      = "payment.intent_failed"
	EventOtpIssued         = "otp.issued"
)

func (e *ContractEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
