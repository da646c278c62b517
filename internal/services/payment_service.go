// internal/services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/contract-engine/internal/config"
	"github.com/javajoker/contract-engine/internal/database"
	"github.com/javajoker/contract-engine/internal/models"
)

// CallbackOutcome is the gateway's verdict on a payment.
type CallbackOutcome string

const (
	CallbackSucceeded CallbackOutcome = "success"
	CallbackFailed    CallbackOutcome = "failure"
)

// GatewayCallback is a verified, gateway-neutral payment notification.
type GatewayCallback struct {
	TransactionID string
	// IntentID is the intent the gateway echoed back, if any. It resolves a
	// session whose id was never recorded.
	IntentID uuid.UUID
	Outcome  CallbackOutcome
	Reason   string
}

type CheckoutItem struct {
	AddonID uuid.UUID
	Name    string
	Amount  decimal.Decimal
}

type CheckoutRequest struct {
	IntentID   uuid.UUID
	ContractID uuid.UUID
	ChargedTo  models.PartyRole
	Currency   string
	Amount     decimal.Decimal
	Items      []CheckoutItem
}

type CheckoutResult struct {
	TransactionID string
	RedirectURL   string
}

// PaymentGateway starts a hosted payment for an intent.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error)
}

type PaymentService struct {
	db             *gorm.DB
	orders         OrderLookup
	gateway        PaymentGateway
	currency       string
	gatewayTimeout time.Duration
	now            func() time.Time
}

type CreateIntentRequest struct {
	ChargedTo models.PartyRole `json:"charged_to" validate:"required,party_role"`
}

var openIntentStatuses = []models.IntentStatus{models.IntentStatusCreated, models.IntentStatusRedirected}

func NewPaymentService(db *gorm.DB, orders OrderLookup, gateway PaymentGateway, cfg *config.Config) *PaymentService {
	return &PaymentService{
		db:             db,
		orders:         orders,
		gateway:        gateway,
		currency:       cfg.Payment.Currency,
		gatewayTimeout: cfg.Payment.GatewayTimeout,
		now:            time.Now,
	}
}

// CreateIntent batches the payer's unpaid addons into one gateway payment.
// Addons already reserved by an open intent are not charged twice; when all of
// them are reserved the newest open intent is returned instead.
func (s *PaymentService) CreateIntent(ctx context.Context, contractID uuid.UUID, actor Actor, chargedTo models.PartyRole) (*models.PaymentIntent, error) {
	if !chargedTo.Valid() {
		return nil, errorf(ErrUnauthorized, "unknown party role")
	}

	var contract models.Contract
	if err := s.db.WithContext(ctx).First(&contract, "id = ?", contractID).Error; err != nil {
		return nil, notFound(err, "contract")
	}
	if !actor.Staff {
		order, err := s.orders.GetOrder(ctx, contract.OrderID)
		if err != nil {
			return nil, err
		}
		if order.RoleOf(actor.UserID) != chargedTo {
			return nil, ErrUnauthorized
		}
	}

	var (
		intent *models.PaymentIntent
		items  []CheckoutItem
		reused bool
	)

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		c, err := lockContract(tx, contractID)
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			return errorf(ErrInvalidTransition, fmt.Sprintf("cannot collect payment on a %s contract", c.Status))
		}
		if err := s.abandonStaleIntents(tx, contractID, chargedTo, actor); err != nil {
			return err
		}

		var covered []uuid.UUID
		if err := tx.Model(&models.PaymentIntentAddon{}).
			Joins("JOIN payment_intents ON payment_intents.id = payment_intent_addons.payment_intent_id").
			Where("payment_intents.contract_id = ? AND payment_intents.status IN ?", contractID, openIntentStatuses).
			Pluck("payment_intent_addons.addon_attachment_id", &covered).Error; err != nil {
			return fmt.Errorf("failed to load reserved addons: %w", err)
		}
		reserved := make(map[uuid.UUID]bool, len(covered))
		for _, id := range covered {
			reserved[id] = true
		}

		var pending []models.AddonAttachment
		if err := tx.Where("contract_id = ? AND charged_to = ? AND payment_status = ?", contractID, chargedTo, models.PaymentStatusPending).
			Order("created_at ASC, id ASC").
			Find(&pending).Error; err != nil {
			return fmt.Errorf("failed to load pending addons: %w", err)
		}

		amount := decimal.Zero
		var links []models.PaymentIntentAddon
		for _, addon := range pending {
			if reserved[addon.ID] {
				continue
			}
			amount = amount.Add(addon.Fee)
			items = append(items, CheckoutItem{AddonID: addon.ID, Name: addon.ServiceName, Amount: addon.Fee})
			links = append(links, models.PaymentIntentAddon{AddonAttachmentID: addon.ID})
		}

		if len(links) == 0 {
			var open models.PaymentIntent
			err := tx.Where("contract_id = ? AND charged_to = ? AND status IN ?", contractID, chargedTo, openIntentStatuses).
				Order("created_at DESC").
				Take(&open).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNothingToPay
			}
			if err != nil {
				return fmt.Errorf("failed to load open intent: %w", err)
			}
			if err := loadIntentAddons(tx, &open); err != nil {
				return err
			}
			intent = &open
			reused = true
			return nil
		}

		intent = &models.PaymentIntent{
			ContractID: contractID,
			ChargedTo:  chargedTo,
			Amount:     amount,
			Currency:   s.currency,
			Status:     models.IntentStatusCreated,
			CreatedBy:  actor.ref(),
			Addons:     links,
		}
		intent.CreatedAt = s.now()
		if err := tx.Create(intent).Error; err != nil {
			return fmt.Errorf("failed to create payment intent: %w", err)
		}

		return recordEvent(tx, contractID, actor, models.EventIntentCreated, c.Status, c.Status, map[string]interface{}{
			"intent_id":  intent.ID,
			"charged_to": chargedTo,
			"amount":     amount.String(),
			"addons":     len(links),
		})
	})
	if err != nil {
		return nil, err
	}

	if reused {
		logrus.WithFields(logrus.Fields{
			"contract_id": contractID,
			"intent_id":   intent.ID,
		}).Info("Returning open payment intent")
		return intent, nil
	}

	result, err := s.checkout(ctx, intent, items)
	if err != nil {
		if failErr := s.failIntent(ctx, intent, actor, err.Error()); failErr != nil {
			logrus.WithError(failErr).WithField("intent_id", intent.ID).Error("Failed to release payment intent")
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	// The session exists at the gateway now, so record it even if the caller has gone.
	err = database.WithTransaction(context.WithoutCancel(ctx), s.db, func(tx *gorm.DB) error {
		txID := result.TransactionID
		res := tx.Model(&models.PaymentIntent{}).
			Where("id = ? AND status = ?", intent.ID, models.IntentStatusCreated).
			Updates(map[string]interface{}{
				"gateway_transaction_id": txID,
				"redirect_url":           result.RedirectURL,
				"status":                 models.IntentStatusRedirected,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to record gateway transaction: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errorf(ErrConflict, "payment intent changed while contacting the gateway")
		}
		intent.GatewayTransactionID = &txID
		intent.RedirectURL = result.RedirectURL
		intent.Status = models.IntentStatusRedirected
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"contract_id":    contractID,
		"intent_id":      intent.ID,
		"amount":         intent.Amount.String(),
		"transaction_id": result.TransactionID,
	}).Info("Payment intent created")

	return intent, nil
}

// ApplyCallback reconciles a gateway notification. Redelivered callbacks
// leave the ledger unchanged.
func (s *PaymentService) ApplyCallback(ctx context.Context, cb *GatewayCallback) (*models.PaymentIntent, error) {
	found, err := s.findCallbackIntent(ctx, cb)
	if err != nil {
		return nil, err
	}

	var intent models.PaymentIntent
	marked := int64(0)

	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		// Contract before intent, the same order CreateIntent takes them in.
		contract, err := lockContract(tx, found.ContractID)
		if err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&intent, "id = ?", found.ID).Error; err != nil {
			return notFound(err, "payment intent")
		}
		if err := loadIntentAddons(tx, &intent); err != nil {
			return err
		}

		if intent.Status == models.IntentStatusSucceeded {
			return nil
		}
		if intent.GatewayTransactionID == nil {
			txID := cb.TransactionID
			intent.GatewayTransactionID = &txID
		}

		now := s.now()
		switch cb.Outcome {
		case CallbackSucceeded:
			marked, err = markAddonsPaid(tx, intent.AddonIDs(), cb.TransactionID, now)
			if err != nil {
				return err
			}
			intent.Status = models.IntentStatusSucceeded
			intent.SucceededAt = &now
			if err := tx.Omit(clause.Associations).Save(&intent).Error; err != nil {
				return fmt.Errorf("failed to update payment intent: %w", err)
			}
			return recordEvent(tx, intent.ContractID, Actor{}, models.EventAddonsPaid, contract.Status, contract.Status, map[string]interface{}{
				"intent_id":      intent.ID,
				"transaction_id": cb.TransactionID,
				"addons":         marked,
			})

		case CallbackFailed:
			if intent.Status == models.IntentStatusFailed {
				return nil
			}
			intent.Status = models.IntentStatusFailed
			intent.FailedAt = &now
			intent.FailureReason = cb.Reason
			if err := tx.Omit(clause.Associations).Save(&intent).Error; err != nil {
				return fmt.Errorf("failed to update payment intent: %w", err)
			}
			return recordEvent(tx, intent.ContractID, Actor{}, models.EventIntentFailed, contract.Status, contract.Status, map[string]interface{}{
				"intent_id":      intent.ID,
				"transaction_id": cb.TransactionID,
				"reason":         cb.Reason,
			})

		default:
			return fmt.Errorf("unknown callback outcome %q", cb.Outcome)
		}
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"intent_id":      intent.ID,
		"transaction_id": cb.TransactionID,
		"outcome":        cb.Outcome,
		"addons_paid":    marked,
	}).Info("Payment callback applied")

	return &intent, nil
}

// findCallbackIntent resolves the intent a callback refers to, by session id
// first and then by the echoed intent id for intents with no recorded session.
func (s *PaymentService) findCallbackIntent(ctx context.Context, cb *GatewayCallback) (*models.PaymentIntent, error) {
	var found models.PaymentIntent
	err := s.db.WithContext(ctx).
		Select("id", "contract_id").
		Where("gateway_transaction_id = ?", cb.TransactionID).
		Take(&found).Error
	if err == nil {
		return &found, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) || cb.IntentID == uuid.Nil {
		return nil, notFound(err, "payment intent")
	}

	if err := s.db.WithContext(ctx).
		Select("id", "contract_id").
		Where("id = ? AND gateway_transaction_id IS NULL", cb.IntentID).
		Take(&found).Error; err != nil {
		return nil, notFound(err, "payment intent")
	}
	logrus.WithFields(logrus.Fields{
		"intent_id":      found.ID,
		"transaction_id": cb.TransactionID,
	}).Warn("Resolved payment callback by intent id")
	return &found, nil
}

// abandonStaleIntents fails CREATED intents whose gateway call should long
// have finished without a session being recorded, releasing their addons.
func (s *PaymentService) abandonStaleIntents(tx *gorm.DB, contractID uuid.UUID, chargedTo models.PartyRole, actor Actor) error {
	now := s.now()
	cutoff := now.Add(-2 * s.gatewayTimeout)

	var stale []models.PaymentIntent
	if err := tx.Select("id").
		Where("contract_id = ? AND charged_to = ? AND status = ? AND gateway_transaction_id IS NULL AND created_at < ?",
			contractID, chargedTo, models.IntentStatusCreated, cutoff).
		Find(&stale).Error; err != nil {
		return fmt.Errorf("failed to load stale payment intents: %w", err)
	}

	const reason = "abandoned before the gateway session was recorded"
	for _, intent := range stale {
		if err := tx.Model(&models.PaymentIntent{}).
			Where("id = ? AND status = ?", intent.ID, models.IntentStatusCreated).
			Updates(map[string]interface{}{
				"status":         models.IntentStatusFailed,
				"failed_at":      now,
				"failure_reason": reason,
			}).Error; err != nil {
			return fmt.Errorf("failed to abandon payment intent: %w", err)
		}
		if err := recordEvent(tx, contractID, actor, models.EventIntentFailed, "", "", map[string]interface{}{
			"intent_id": intent.ID,
			"reason":    reason,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ListIntents returns a contract's payment intents, newest first.
func (s *PaymentService) ListIntents(ctx context.Context, contractID uuid.UUID) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	if err := s.db.WithContext(ctx).
		Preload("Addons").
		Where("contract_id = ?", contractID).
		Order("created_at DESC").
		Find(&intents).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch payment intents: %w", err)
	}
	return intents, nil
}

func (s *PaymentService) checkout(ctx context.Context, intent *models.PaymentIntent, items []CheckoutItem) (*CheckoutResult, error) {
	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	result, err := s.gateway.CreateCheckout(gwCtx, &CheckoutRequest{
		IntentID:   intent.ID,
		ContractID: intent.ContractID,
		ChargedTo:  intent.ChargedTo,
		Currency:   intent.Currency,
		Amount:     intent.Amount,
		Items:      items,
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.TransactionID == "" {
		return nil, errors.New("gateway returned no transaction id")
	}
	return result, nil
}

// failIntent releases the intent's addons after the gateway refused it.
func (s *PaymentService) failIntent(ctx context.Context, intent *models.PaymentIntent, actor Actor, reason string) error {
	now := s.now()
	return database.WithTransaction(context.WithoutCancel(ctx), s.db, func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentIntent{}).
			Where("id = ? AND status = ?", intent.ID, models.IntentStatusCreated).
			Updates(map[string]interface{}{
				"status":         models.IntentStatusFailed,
				"failed_at":      now,
				"failure_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		intent.Status = models.IntentStatusFailed
		intent.FailedAt = &now
		intent.FailureReason = reason
		return recordEvent(tx, intent.ContractID, actor, models.EventIntentFailed, "", "", map[string]interface{}{
			"intent_id": intent.ID,
			"reason":    reason,
		})
	})
}

func loadIntentAddons(tx *gorm.DB, intent *models.PaymentIntent) error {
	var links []models.PaymentIntentAddon
	if err := tx.Where("payment_intent_id = ?", intent.ID).Find(&links).Error; err != nil {
		return fmt.Errorf("failed to load intent addons: %w", err)
	}
	intent.Addons = links
	return nil
}
