// internal/models/user.go
package models

import "github.com/google/uuid"

// User is the marketplace account record. Accounts are owned by the identity
// service; the engine only reads the email used for OTP delivery.
type User struct {
	BaseModel
	Username string     `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email    string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	UserType UserType   `json:"user_type" gorm:"type:varchar(20);not null;default:'member'"`
	Status   UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
}

// Order is the accepted marketplace order a contract is drawn up from. It is
// immutable once a contract references it.
type Order struct {
	BaseModel
	BuyerID   uuid.UUID `json:"buyer_id" gorm:"type:uuid;not null;index"`
	SellerID  uuid.UUID `json:"seller_id" gorm:"type:uuid;not null;index"`
	ListingID uuid.UUID `json:"listing_id" gorm:"type:uuid;not null;index"`
}

// RoleOf derives which side of the order userID is on.
func (o *Order) RoleOf(userID uuid.UUID) PartyRole {
	switch {
	case userID == uuid.Nil:
		return PartyRoleNone
	case userID == o.BuyerID:
		return PartyRoleBuyer
	case userID == o.SellerID:
		return PartyRoleSeller
	default:
		return PartyRoleNone
	}
}

// PartyID returns the user id holding role on the order.
func (o *Order) PartyID(role PartyRole) uuid.UUID {
	switch role {
	case PartyRoleBuyer:
		return o.BuyerID
	case PartyRoleSeller:
		return o.SellerID
	default:
		return uuid.Nil
	}
}
