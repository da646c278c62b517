// internal/services/addon_service_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/contract-engine/internal/config"
	"github.com/javajoker/contract-engine/internal/models"
)

type AddonServiceTestSuite struct {
	engineSuite
}

func TestAddonServiceSuite(t *testing.T) {
	suite.Run(t, new(AddonServiceTestSuite))
}

func (suite *AddonServiceTestSuite) attach(contractID uuid.UUID, service models.Service, chargedTo models.PartyRole) (*models.AddonAttachment, error) {
	return suite.addons.Attach(suite.ctx, contractID, suite.actor(suite.staff), &AttachAddonRequest{
		ServiceID: service.ID,
		ChargedTo: chargedTo,
	})
}

func (suite *AddonServiceTestSuite) TestAttachSnapshotsCatalogEntry() {
	contract := suite.draftContract()
	service := suite.createService("Translation", 200000, models.ServiceStatusActive)

	addon, err := suite.attach(contract.ID, service, models.PartyRoleSeller)
	suite.Require().NoError(err)

	assert.Equal(suite.T(), "Translation", addon.ServiceName)
	assert.True(suite.T(), decimal.NewFromInt(200000).Equal(addon.Fee))
	assert.Equal(suite.T(), models.PartyRoleSeller, addon.ChargedTo)
	assert.Equal(suite.T(), models.PaymentStatusPending, addon.PaymentStatus)
	assert.Len(suite.T(), suite.events(contract.ID, models.EventAddonAttached), 1)
}

func (suite *AddonServiceTestSuite) TestCatalogChangesDoNotRewriteAttachments() {
	contract := suite.draftContract()
	service := suite.createService("Translation", 200000, models.ServiceStatusActive)
	addon, err := suite.attach(contract.ID, service, models.PartyRoleBuyer)
	suite.Require().NoError(err)

	suite.Require().NoError(suite.db.Model(&service).Updates(map[string]interface{}{
		"name": "Translation (premium)",
		"fee":  decimal.NewFromInt(350000),
	}).Error)

	addons, err := suite.addons.ListByContract(suite.ctx, contract.ID)
	suite.Require().NoError(err)
	suite.Require().Len(addons, 1)
	assert.Equal(suite.T(), addon.ID, addons[0].ID)
	assert.Equal(suite.T(), "Translation", addons[0].ServiceName)
	assert.True(suite.T(), decimal.NewFromInt(200000).Equal(addons[0].Fee))
}

func (suite *AddonServiceTestSuite) TestAttachInactiveService() {
	contract := suite.draftContract()
	service := suite.createService("Retired", 1000, models.ServiceStatusInactive)

	_, err := suite.attach(contract.ID, service, models.PartyRoleBuyer)
	assert.ErrorIs(suite.T(), err, ErrServiceInactive)
}

func (suite *AddonServiceTestSuite) TestAttachUnknownServiceOrContract() {
	contract := suite.draftContract()

	_, err := suite.attach(contract.ID, models.Service{BaseModel: models.BaseModel{ID: uuid.New()}}, models.PartyRoleBuyer)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	service := suite.createService("Notary", 1000, models.ServiceStatusActive)
	_, err = suite.attach(uuid.New(), service, models.PartyRoleBuyer)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *AddonServiceTestSuite) TestAttachRejectedOnTerminalContract() {
	contract := suite.draftContract()
	service := suite.createService("Notary", 1000, models.ServiceStatusActive)
	_, err := suite.contracts.Cancel(suite.ctx, contract.ID, suite.actor(suite.staff), "")
	suite.Require().NoError(err)

	_, err = suite.attach(contract.ID, service, models.PartyRoleBuyer)
	assert.ErrorIs(suite.T(), err, ErrInvalidTransition)
}

func (suite *AddonServiceTestSuite) TestAttachRequiresParticipant() {
	contract := suite.draftContract()
	service := suite.createService("Notary", 1000, models.ServiceStatusActive)
	outsider := suite.createUser("outsider", models.UserTypeMember)

	_, err := suite.addons.Attach(suite.ctx, contract.ID, suite.actor(outsider), &AttachAddonRequest{
		ServiceID: service.ID,
		ChargedTo: models.PartyRoleBuyer,
	})
	assert.ErrorIs(suite.T(), err, ErrUnauthorized)

	_, err = suite.addons.Attach(suite.ctx, contract.ID, suite.actor(suite.buyer), &AttachAddonRequest{
		ServiceID: service.ID,
		ChargedTo: models.PartyRoleBuyer,
	})
	assert.NoError(suite.T(), err)
}

func (suite *AddonServiceTestSuite) TestDuplicatePolicy() {
	contract := suite.draftContract()
	service := suite.createService("Notary", 1000, models.ServiceStatusActive)

	_, err := suite.attach(contract.ID, service, models.PartyRoleBuyer)
	suite.Require().NoError(err)
	_, err = suite.attach(contract.ID, service, models.PartyRoleSeller)
	suite.Require().NoError(err)

	suite.addons.duplicatePolicy = config.AddonDuplicatesReject
	_, err = suite.attach(contract.ID, service, models.PartyRoleBuyer)
	assert.ErrorIs(suite.T(), err, ErrConflict)

	addons, err := suite.addons.ListByContract(suite.ctx, contract.ID)
	suite.Require().NoError(err)
	assert.Len(suite.T(), addons, 2)
}

func (suite *AddonServiceTestSuite) TestListByContractKeepsAttachOrder() {
	contract := suite.draftContract()
	var want []uuid.UUID
	for _, name := range []string{"A", "B", "C"} {
		addon, err := suite.attach(contract.ID, suite.createService(name, 100, models.ServiceStatusActive), models.PartyRoleBuyer)
		suite.Require().NoError(err)
		want = append(want, addon.ID)
	}

	addons, err := suite.addons.ListByContract(suite.ctx, contract.ID)
	suite.Require().NoError(err)

	var got []uuid.UUID
	for _, a := range addons {
		got = append(got, a.ID)
	}
	assert.Equal(suite.T(), want, got)

	_, err = suite.addons.ListByContract(suite.ctx, uuid.New())
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *AddonServiceTestSuite) TestMarkPaidIsIdempotent() {
	contract := suite.draftContract()
	service := suite.createService("Notary", 1000, models.ServiceStatusActive)
	first, err := suite.attach(contract.ID, service, models.PartyRoleBuyer)
	suite.Require().NoError(err)
	second, err := suite.attach(contract.ID, service, models.PartyRoleBuyer)
	suite.Require().NoError(err)

	n, err := suite.addons.MarkPaid(suite.ctx, []uuid.UUID{first.ID}, "cs_first")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(1), n)

	n, err = suite.addons.MarkPaid(suite.ctx, []uuid.UUID{first.ID, second.ID}, "cs_second")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(1), n)

	var stored models.AddonAttachment
	suite.Require().NoError(suite.db.First(&stored, "id = ?", first.ID).Error)
	assert.Equal(suite.T(), models.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(suite.T(), "cs_first", stored.GatewayTransactionID)

	n, err = suite.addons.MarkPaid(suite.ctx, nil, "cs_none")
	suite.Require().NoError(err)
	assert.Zero(suite.T(), n)
}
