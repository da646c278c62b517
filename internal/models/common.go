// internal/models/common.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns the primary key client side so the same models work
// on every dialect the engine is tested against.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Enums
type UserType string

const (
	UserTypeMember UserType = "member"
	UserTypeStaff  UserType = "staff"
	UserTypeAdmin  UserType = "admin"
)

// IsStaff reports whether the user type may run back-office operations.
func (t UserType) IsStaff() bool {
	return t == UserTypeStaff || t == UserTypeAdmin
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// PartyRole is the side of an order a user stands on. It also names who an
// addon is charged to.
type PartyRole string

const (
	PartyRoleNone   PartyRole = ""
	PartyRoleBuyer  PartyRole = "BUYER"
	PartyRoleSeller PartyRole = "SELLER"
)

func (r PartyRole) Valid() bool {
	return r == PartyRoleBuyer || r == PartyRoleSeller
}

type ContractStatus string

const (
	ContractStatusDraft     ContractStatus = "DRAFT"
	ContractStatusSigned    ContractStatus = "SIGNED"
	ContractStatusCompleted ContractStatus = "COMPLETED"
	ContractStatusCancelled ContractStatus = "CANCELLED"
)

// Terminal reports whether no transition may leave the status.
func (s ContractStatus) Terminal() bool {
	return s == ContractStatusCompleted || s == ContractStatusCancelled
}

type ServiceStatus string

const (
	ServiceStatusActive   ServiceStatus = "ACTIVE"
	ServiceStatusInactive ServiceStatus = "INACTIVE"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

type IntentStatus string

const (
	IntentStatusCreated    IntentStatus = "CREATED"
	IntentStatusRedirected IntentStatus = "REDIRECTED"
	IntentStatusSucceeded  IntentStatus = "SUCCEEDED"
	IntentStatusFailed     IntentStatus = "FAILED"
)

// Open reports whether the intent may still be paid at the gateway.
func (s IntentStatus) Open() bool {
	return s == IntentStatusCreated || s == IntentStatusRedirected
}
