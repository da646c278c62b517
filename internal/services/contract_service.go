// internal/services/contract_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/contract-engine/internal/database"
	"github.com/javajoker/contract-engine/internal/models"
	"github.com/javajoker/contract-engine/internal/utils"
)

// ContractNotifier tells the parties a contract changed state.
type ContractNotifier interface {
	SendContractSigned(ctx context.Context, contract *models.Contract, recipients []models.User) error
}

type ContractService struct {
	db          *gorm.DB
	orders      OrderLookup
	users       UserDirectory
	otp         *OtpService
	archiver    ContractArchiver
	notifier    ContractNotifier
	hookTimeout time.Duration
	now         func() time.Time
}

type CreateContractRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

type SignContractRequest struct {
	Role models.PartyRole `json:"role" validate:"required,party_role"`
	Code string           `json:"code" validate:"required,numeric,min=4,max=10"`
}

type CancelContractRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type ContractSearchParams struct {
	utils.PaginationParams
	Status  *models.ContractStatus
	OrderID *uuid.UUID
}

// NewContractService wires the lifecycle manager. archiver and notifier are
// optional.
func NewContractService(db *gorm.DB, orders OrderLookup, users UserDirectory, otp *OtpService, archiver ContractArchiver, notifier ContractNotifier) *ContractService {
	return &ContractService{
		db:          db,
		orders:      orders,
		users:       users,
		otp:         otp,
		archiver:    archiver,
		notifier:    notifier,
		hookTimeout: 30 * time.Second,
		now:         time.Now,
	}
}

// CreateContract drafts the contract for an order. Only one live contract may
// exist per order; the database enforces it, so concurrent callers race on the
// insert and all but one get ErrConflict.
func (s *ContractService) CreateContract(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Contract, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Staff && order.RoleOf(actor.UserID) == models.PartyRoleNone {
		return nil, ErrUnauthorized
	}

	contract := &models.Contract{
		OrderID: orderID,
		Status:  models.ContractStatusDraft,
	}

	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(contract).Error; err != nil {
			if isUniqueViolation(err) {
				return errorf(ErrConflict, "a contract already exists for this order")
			}
			return fmt.Errorf("failed to create contract: %w", err)
		}
		return recordEvent(tx, contract.ID, actor, models.EventContractCreated, "", models.ContractStatusDraft, map[string]interface{}{
			"order_id": orderID,
		})
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"order_id":    orderID,
	}).Info("Contract created")

	return contract, nil
}

// Sign records the role's signature after consuming its OTP. Signing again
// with a role that already signed returns the contract unchanged unless the
// contract has since been completed or cancelled.
func (s *ContractService) Sign(ctx context.Context, contractID uuid.UUID, actor Actor, role models.PartyRole, code string) (*models.Contract, error) {
	if !role.Valid() {
		return nil, errorf(ErrUnauthorized, "unknown party role")
	}

	current, err := s.findContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.GetOrder(ctx, current.OrderID)
	if err != nil {
		return nil, err
	}
	if order.RoleOf(actor.UserID) != role {
		return nil, ErrUnauthorized
	}

	var contract *models.Contract
	becameSigned := false

	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		c, err := lockContract(tx, contractID)
		if err != nil {
			return err
		}
		contract = c

		if c.Status.Terminal() {
			return errorf(ErrInvalidTransition, fmt.Sprintf("cannot sign a %s contract", c.Status))
		}
		if c.SignedBy(role) {
			return nil
		}
		if c.Status != models.ContractStatusDraft {
			return errorf(ErrInvalidTransition, fmt.Sprintf("cannot sign a %s contract", c.Status))
		}

		if err := s.otp.verifyAndConsume(tx, contractID, role, code); err != nil {
			return err
		}

		now := s.now()
		switch role {
		case models.PartyRoleBuyer:
			c.BuyerSigned = true
			c.BuyerSignedAt = &now
		case models.PartyRoleSeller:
			c.SellerSigned = true
			c.SellerSignedAt = &now
		}

		// Whoever lands the second signature flips the status, under the row lock.
		if c.FullySigned() {
			c.Status = models.ContractStatusSigned
			c.SignedAt = &now
			becameSigned = true
		}

		if err := tx.Omit(clause.Associations).Save(c).Error; err != nil {
			return fmt.Errorf("failed to save signature: %w", err)
		}

		if err := recordEvent(tx, c.ID, actor, models.EventContractSigned, models.ContractStatusDraft, c.Status, map[string]interface{}{
			"role": role,
		}); err != nil {
			return err
		}
		if becameSigned {
			return recordEvent(tx, c.ID, actor, models.EventContractFullySign, models.ContractStatusDraft, models.ContractStatusSigned, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"role":        role,
		"status":      contract.Status,
	}).Info("Contract signature recorded")

	if becameSigned {
		s.afterTransition(contract)
	}

	return contract, nil
}

// Complete moves a signed contract to COMPLETED once the completion guard
// passes. Completing a completed contract is a no-op.
func (s *ContractService) Complete(ctx context.Context, contractID uuid.UUID, actor Actor) (*models.Contract, error) {
	if !actor.Staff {
		return nil, ErrUnauthorized
	}

	var contract *models.Contract
	completed := false

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		c, err := lockContract(tx, contractID)
		if err != nil {
			return err
		}
		contract = c

		switch c.Status {
		case models.ContractStatusCompleted:
			return nil
		case models.ContractStatusCancelled:
			return errorf(ErrInvalidTransition, "cannot complete a cancelled contract")
		}

		var addons []models.AddonAttachment
		if err := tx.Where("contract_id = ?", contractID).Find(&addons).Error; err != nil {
			return fmt.Errorf("failed to load addons: %w", err)
		}

		if ok, reason := CanComplete(c, addons); !ok {
			return &GuardViolationError{Reason: reason}
		}
		if c.Status != models.ContractStatusSigned {
			return errorf(ErrInvalidTransition, fmt.Sprintf("cannot complete a %s contract", c.Status))
		}

		now := s.now()
		c.Status = models.ContractStatusCompleted
		c.CompletedAt = &now
		if err := tx.Omit(clause.Associations).Save(c).Error; err != nil {
			return fmt.Errorf("failed to complete contract: %w", err)
		}
		completed = true

		return recordEvent(tx, c.ID, actor, models.EventContractCompleted, models.ContractStatusSigned, models.ContractStatusCompleted, map[string]interface{}{
			"addons": len(addons),
		})
	})
	if err != nil {
		return nil, err
	}

	if completed {
		logrus.WithField("contract_id", contract.ID).Info("Contract completed")
		s.afterTransition(contract)
	}

	return contract, nil
}

// Cancel ends a draft or signed contract. Cancelling twice is a no-op.
func (s *ContractService) Cancel(ctx context.Context, contractID uuid.UUID, actor Actor, reason string) (*models.Contract, error) {
	if !actor.Staff {
		return nil, ErrUnauthorized
	}

	var contract *models.Contract

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		c, err := lockContract(tx, contractID)
		if err != nil {
			return err
		}
		contract = c

		switch c.Status {
		case models.ContractStatusCancelled:
			return nil
		case models.ContractStatusCompleted:
			return errorf(ErrInvalidTransition, "cannot cancel a completed contract")
		}

		from := c.Status
		now := s.now()
		c.Status = models.ContractStatusCancelled
		c.CancelledAt = &now
		c.CancelReason = reason
		if err := tx.Omit(clause.Associations).Save(c).Error; err != nil {
			return fmt.Errorf("failed to cancel contract: %w", err)
		}

		return recordEvent(tx, c.ID, actor, models.EventContractCancelled, from, models.ContractStatusCancelled, map[string]interface{}{
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"reason":      reason,
	}).Info("Contract cancelled")

	return contract, nil
}

// GetContract loads a contract with its addons for a party or staff member.
func (s *ContractService) GetContract(ctx context.Context, contractID uuid.UUID, actor Actor) (*models.Contract, error) {
	var contract models.Contract
	if err := s.db.WithContext(ctx).
		Preload("Addons", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&contract, "id = ?", contractID).Error; err != nil {
		return nil, notFound(err, "contract")
	}

	if _, err := s.authorize(ctx, &contract, actor); err != nil {
		return nil, err
	}
	return &contract, nil
}

// RoleOf derives the user's side of the contract from its order.
func (s *ContractService) RoleOf(ctx context.Context, contractID, userID uuid.UUID) (models.PartyRole, error) {
	contract, err := s.findContract(ctx, contractID)
	if err != nil {
		return models.PartyRoleNone, err
	}
	order, err := s.orders.GetOrder(ctx, contract.OrderID)
	if err != nil {
		return models.PartyRoleNone, err
	}
	return order.RoleOf(userID), nil
}

func (s *ContractService) ListContracts(ctx context.Context, params ContractSearchParams) ([]models.Contract, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Contract{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.OrderID != nil {
		query = query.Where("order_id = ?", *params.OrderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "signed_at", "status"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var contracts []models.Contract
	if err := query.Find(&contracts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch contracts: %w", err)
	}

	return contracts, total, nil
}

// authorize returns the actor's role on the contract. Staff pass with
// PartyRoleNone.
func (s *ContractService) authorize(ctx context.Context, contract *models.Contract, actor Actor) (models.PartyRole, error) {
	order, err := s.orders.GetOrder(ctx, contract.OrderID)
	if err != nil {
		return models.PartyRoleNone, err
	}
	role := order.RoleOf(actor.UserID)
	if role == models.PartyRoleNone && !actor.Staff {
		return models.PartyRoleNone, ErrUnauthorized
	}
	return role, nil
}

func (s *ContractService) findContract(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := s.db.WithContext(ctx).First(&contract, "id = ?", contractID).Error; err != nil {
		return nil, notFound(err, "contract")
	}
	return &contract, nil
}

// afterTransition archives the contract and notifies the parties outside any
// transaction. Failures are logged and never surface to the caller.
func (s *ContractService) afterTransition(contract *models.Contract) {
	if s.archiver == nil && s.notifier == nil {
		return
	}

	snapshot := *contract
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.hookTimeout)
		defer cancel()
		s.runTransitionHooks(ctx, &snapshot)
	}()
}

func (s *ContractService) runTransitionHooks(ctx context.Context, contract *models.Contract) {
	log := logrus.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"status":      contract.Status,
	})

	order, err := s.orders.GetOrder(ctx, contract.OrderID)
	if err != nil {
		log.WithError(err).Error("Failed to load order for transition hooks")
		return
	}

	if s.archiver != nil {
		var addons []models.AddonAttachment
		if err := s.db.WithContext(ctx).
			Where("contract_id = ?", contract.ID).
			Order("created_at ASC, id ASC").
			Find(&addons).Error; err != nil {
			log.WithError(err).Error("Failed to load addons for archive")
		} else if err := s.archiver.ArchiveContract(ctx, &ContractSnapshot{
			Contract:   *contract,
			Order:      *order,
			Addons:     addons,
			ArchivedAt: s.now(),
		}); err != nil {
			log.WithError(err).Error("Failed to archive contract")
		}
	}

	if s.notifier != nil && contract.Status == models.ContractStatusSigned {
		var recipients []models.User
		for _, id := range []uuid.UUID{order.BuyerID, order.SellerID} {
			user, err := s.users.GetUser(ctx, id)
			if err != nil {
				log.WithError(err).WithField("user_id", id).Warn("Skipping notification recipient")
				continue
			}
			recipients = append(recipients, *user)
		}
		if err := s.notifier.SendContractSigned(ctx, contract, recipients); err != nil {
			log.WithError(err).Warn("Failed to notify parties")
		}
	}
}

// lockContract loads a contract row under SELECT ... FOR UPDATE. Every
// mutation of a contract, its addons or its intents goes through it.
func lockContract(tx *gorm.DB, contractID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&contract, "id = ?", contractID).Error; err != nil {
		return nil, notFound(err, "contract")
	}
	return &contract, nil
}
