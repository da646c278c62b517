// internal/services/otp_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/javajoker/contract-engine/internal/config"
	"github.com/javajoker/contract-engine/internal/database"
	"github.com/javajoker/contract-engine/internal/models"
	"github.com/javajoker/contract-engine/internal/utils"
)

// OtpMessage is what the delivery channel needs to reach a signing party.
type OtpMessage struct {
	To         string
	Username   string
	ContractID uuid.UUID
	Role       models.PartyRole
	Code       string
	ExpiresAt  time.Time
}

// OtpSender delivers signing codes out of band.
type OtpSender interface {
	SendSigningOtp(ctx context.Context, msg OtpMessage) error
}

type OtpService struct {
	db              *gorm.DB
	orders          OrderLookup
	users           UserDirectory
	sender          OtpSender
	cfg             config.OTPConfig
	deliveryTimeout time.Duration
	now             func() time.Time
}

type IssueOtpRequest struct {
	Role models.PartyRole `json:"role" validate:"required,party_role"`
}

type OtpIssueResult struct {
	DeliveryID uuid.UUID        `json:"delivery_id"`
	Role       models.PartyRole `json:"role"`
	Channel    string           `json:"channel"`
	ExpiresAt  time.Time        `json:"expires_at"`
}

func NewOtpService(db *gorm.DB, orders OrderLookup, users UserDirectory, sender OtpSender, cfg *config.Config) *OtpService {
	return &OtpService{
		db:              db,
		orders:          orders,
		users:           users,
		sender:          sender,
		cfg:             cfg.OTP,
		deliveryTimeout: cfg.Email.DeliveryTimeout,
		now:             time.Now,
	}
}

// IssueOtp generates a code for the actor's role on a draft contract, replaces
// any earlier unconsumed code for the pair and emails it.
func (s *OtpService) IssueOtp(ctx context.Context, contractID uuid.UUID, actor Actor, role models.PartyRole) (*OtpIssueResult, error) {
	if !role.Valid() {
		return nil, errorf(ErrUnauthorized, "unknown party role")
	}

	var contract models.Contract
	if err := s.db.WithContext(ctx).First(&contract, "id = ?", contractID).Error; err != nil {
		return nil, notFound(err, "contract")
	}
	if contract.Status != models.ContractStatusDraft {
		return nil, errorf(ErrInvalidTransition, fmt.Sprintf("contract is %s, signing codes are only issued for drafts", contract.Status))
	}
	if contract.SignedBy(role) {
		return nil, errorf(ErrInvalidTransition, fmt.Sprintf("%s has already signed", role))
	}

	order, err := s.orders.GetOrder(ctx, contract.OrderID)
	if err != nil {
		return nil, err
	}
	if order.RoleOf(actor.UserID) != role {
		return nil, ErrUnauthorized
	}

	user, err := s.users.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	code, err := utils.GenerateNumericCode(s.cfg.Length)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost())
	if err != nil {
		return nil, fmt.Errorf("failed to hash signing code: %w", err)
	}

	now := s.now()
	otp := &models.SigningOtp{
		ContractID: contractID,
		Role:       role,
		CodeHash:   string(hash),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.TTL),
	}

	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := lockContract(tx, contractID); err != nil {
			return err
		}

		var last models.SigningOtp
		err := tx.Where("contract_id = ? AND role = ?", contractID, role).
			Order("issued_at DESC").
			Take(&last).Error
		switch {
		case err == nil:
			if s.cfg.ResendCooldown > 0 && now.Sub(last.IssuedAt) < s.cfg.ResendCooldown {
				return ErrOtpRateLimited
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to load previous signing code: %w", err)
		}

		if err := tx.Where("contract_id = ? AND role = ? AND consumed = ?", contractID, role, false).
			Delete(&models.SigningOtp{}).Error; err != nil {
			return fmt.Errorf("failed to invalidate previous signing codes: %w", err)
		}

		if err := tx.Create(otp).Error; err != nil {
			return fmt.Errorf("failed to store signing code: %w", err)
		}

		return recordEvent(tx, contractID, actor, models.EventOtpIssued, "", "", map[string]interface{}{
			"role":       role,
			"expires_at": otp.ExpiresAt,
		})
	})
	if err != nil {
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()

	msg := OtpMessage{
		To:         user.Email,
		Username:   user.Username,
		ContractID: contractID,
		Role:       role,
		Code:       code,
		ExpiresAt:  otp.ExpiresAt,
	}
	if err := s.sender.SendSigningOtp(sendCtx, msg); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"contract_id": contractID,
			"role":        role,
		}).Warn("Signing code delivery failed")

		// An undelivered code must not hold the resend cooldown.
		if delErr := s.db.WithContext(context.WithoutCancel(ctx)).
			Where("id = ? AND consumed = ?", otp.ID, false).
			Delete(&models.SigningOtp{}).Error; delErr != nil {
			logrus.WithError(delErr).WithField("otp_id", otp.ID).Error("Failed to discard undelivered signing code")
		}
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	logrus.WithFields(logrus.Fields{
		"contract_id": contractID,
		"role":        role,
		"otp_id":      otp.ID,
	}).Info("Signing code issued")

	return &OtpIssueResult{
		DeliveryID: otp.ID,
		Role:       role,
		Channel:    "email",
		ExpiresAt:  otp.ExpiresAt,
	}, nil
}

// VerifyAndConsume checks code against the latest code issued for the pair and
// marks it consumed.
func (s *OtpService) VerifyAndConsume(ctx context.Context, contractID uuid.UUID, role models.PartyRole, code string) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		return s.verifyAndConsume(tx, contractID, role, code)
	})
}

func (s *OtpService) verifyAndConsume(tx *gorm.DB, contractID uuid.UUID, role models.PartyRole, code string) error {
	var otp models.SigningOtp
	err := tx.Where("contract_id = ? AND role = ?", contractID, role).
		Order("issued_at DESC").
		Take(&otp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOtpInvalid
	}
	if err != nil {
		return fmt.Errorf("failed to load signing code: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(code)) != nil {
		return ErrOtpInvalid
	}
	if otp.Consumed {
		return ErrOtpAlreadyConsumed
	}
	now := s.now()
	if !now.Before(otp.ExpiresAt) {
		return ErrOtpExpired
	}

	// Compare-and-set: a concurrent verifier that read the same row loses here.
	res := tx.Model(&models.SigningOtp{}).
		Where("id = ? AND consumed = ?", otp.ID, false).
		Updates(map[string]interface{}{"consumed": true, "consumed_at": now})
	if res.Error != nil {
		return fmt.Errorf("failed to consume signing code: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOtpAlreadyConsumed
	}
	return nil
}

func (s *OtpService) hashCost() int {
	if s.cfg.HashCost < bcrypt.MinCost {
		return bcrypt.DefaultCost
	}
	return s.cfg.HashCost
}
