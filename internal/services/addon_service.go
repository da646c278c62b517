// internal/services/addon_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/contract-engine/internal/config"
	"github.com/javajoker/contract-engine/internal/database"
	"github.com/javajoker/contract-engine/internal/models"
)

type AddonService struct {
	db              *gorm.DB
	orders          OrderLookup
	catalog         ServiceCatalog
	duplicatePolicy string
	now             func() time.Time
}

type AttachAddonRequest struct {
	ServiceID uuid.UUID        `json:"service_id" validate:"required"`
	ChargedTo models.PartyRole `json:"charged_to" validate:"required,party_role"`
}

func NewAddonService(db *gorm.DB, orders OrderLookup, catalog ServiceCatalog, cfg *config.Config) *AddonService {
	return &AddonService{
		db:              db,
		orders:          orders,
		catalog:         catalog,
		duplicatePolicy: cfg.Addon.DuplicatePolicy,
		now:             time.Now,
	}
}

// Attach snapshots the catalog entry onto the contract as a pending charge.
func (s *AddonService) Attach(ctx context.Context, contractID uuid.UUID, actor Actor, req *AttachAddonRequest) (*models.AddonAttachment, error) {
	if !req.ChargedTo.Valid() {
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
		if order.RoleOf(actor.UserID) == models.PartyRoleNone {
			return nil, ErrUnauthorized
		}
	}

	service, err := s.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if service.Status != models.ServiceStatusActive {
		return nil, errorf(ErrServiceInactive, fmt.Sprintf("service %s is not active", service.Name))
	}

	addon := &models.AddonAttachment{
		ContractID:    contractID,
		ServiceID:     service.ID,
		ServiceName:   service.Name,
		Fee:           service.Fee,
		ChargedTo:     req.ChargedTo,
		PaymentStatus: models.PaymentStatusPending,
		AttachedBy:    actor.ref(),
	}

	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		c, err := lockContract(tx, contractID)
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			return errorf(ErrInvalidTransition, fmt.Sprintf("cannot attach addons to a %s contract", c.Status))
		}

		if s.duplicatePolicy == config.AddonDuplicatesReject {
			var existing int64
			if err := tx.Model(&models.AddonAttachment{}).
				Where("contract_id = ? AND service_id = ? AND payment_status <> ?", contractID, service.ID, models.PaymentStatusFailed).
				Count(&existing).Error; err != nil {
				return fmt.Errorf("failed to check existing addons: %w", err)
			}
			if existing > 0 {
				return errorf(ErrConflict, fmt.Sprintf("service %s is already attached", service.Name))
			}
		}

		if err := tx.Create(addon).Error; err != nil {
			return fmt.Errorf("failed to attach addon: %w", err)
		}

		return recordEvent(tx, contractID, actor, models.EventAddonAttached, c.Status, c.Status, map[string]interface{}{
			"addon_id":   addon.ID,
			"service_id": service.ID,
			"fee":        addon.Fee.String(),
			"charged_to": addon.ChargedTo,
		})
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"contract_id": contractID,
		"addon_id":    addon.ID,
		"service_id":  service.ID,
	}).Info("Addon attached")

	return addon, nil
}

// ListByContract returns the contract's addons in attach order.
func (s *AddonService) ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.AddonAttachment, error) {
	var contract models.Contract
	if err := s.db.WithContext(ctx).Select("id").First(&contract, "id = ?", contractID).Error; err != nil {
		return nil, notFound(err, "contract")
	}
	return listAddons(s.db.WithContext(ctx), contractID)
}

// MarkPaid flips the given addons to PAID and returns how many changed.
// Addons that are already paid keep their original transaction id and time.
func (s *AddonService) MarkPaid(ctx context.Context, addonIDs []uuid.UUID, gatewayTxID string) (int64, error) {
	var n int64
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		n, err = markAddonsPaid(tx, addonIDs, gatewayTxID, s.now())
		return err
	})
	return n, err
}

func markAddonsPaid(tx *gorm.DB, addonIDs []uuid.UUID, gatewayTxID string, at time.Time) (int64, error) {
	if len(addonIDs) == 0 {
		return 0, nil
	}
	res := tx.Model(&models.AddonAttachment{}).
		Where("id IN ? AND payment_status <> ?", addonIDs, models.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"payment_status":         models.PaymentStatusPaid,
			"gateway_transaction_id": gatewayTxID,
			"paid_at":                at,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark addons paid: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func listAddons(db *gorm.DB, contractID uuid.UUID) ([]models.AddonAttachment, error) {
	var addons []models.AddonAttachment
	if err := db.Where("contract_id = ?", contractID).
		Order("created_at ASC, id ASC").
		Find(&addons).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch addons: %w", err)
	}
	return addons, nil
}
