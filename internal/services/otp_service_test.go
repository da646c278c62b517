// internal/services/otp_service_test.go
package services

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/javajoker/contract-engine/internal/models"
)

type OtpServiceTestSuite struct {
	engineSuite
}

func TestOtpServiceSuite(t *testing.T) {
	suite.Run(t, new(OtpServiceTestSuite))
}

func (suite *OtpServiceTestSuite) TestIssueOtpDeliversCode() {
	contract := suite.draftContract()

	result, err := suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.buyer), models.PartyRoleBuyer)
	suite.Require().NoError(err)

	assert.Equal(suite.T(), models.PartyRoleBuyer, result.Role)
	assert.Equal(suite.T(), "email", result.Channel)
	assert.Regexp(suite.T(), regexp.MustCompile(`^\d{6}$`), suite.sender.lastCode(models.PartyRoleBuyer))
	suite.sender.AssertCalled(suite.T(), "SendSigningOtp", models.PartyRoleBuyer)

	var stored models.SigningOtp
	suite.Require().NoError(suite.db.First(&stored, "id = ?", result.DeliveryID).Error)
	assert.NotEqual(suite.T(), suite.sender.lastCode(models.PartyRoleBuyer), stored.CodeHash)
	assert.True(suite.T(), stored.IssuedAt.Add(5*time.Minute).Equal(stored.ExpiresAt))
	assert.False(suite.T(), stored.Consumed)
}

func (suite *OtpServiceTestSuite) TestIssueOtpRequiresRoleHolder() {
	contract := suite.draftContract()

	_, err := suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.buyer), models.PartyRoleSeller)
	assert.ErrorIs(suite.T(), err, ErrUnauthorized)

	_, err = suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.staff), models.PartyRoleBuyer)
	assert.ErrorIs(suite.T(), err, ErrUnauthorized)
}

func (suite *OtpServiceTestSuite) TestIssueOtpOnlyForUnsignedDraft() {
	contract := suite.draftContract()
	suite.sign(contract.ID, suite.buyer, models.PartyRoleBuyer)

	_, err := suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.buyer), models.PartyRoleBuyer)
	assert.ErrorIs(suite.T(), err, ErrInvalidTransition)

	suite.sign(contract.ID, suite.seller, models.PartyRoleSeller)
	_, err = suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.seller), models.PartyRoleSeller)
	assert.ErrorIs(suite.T(), err, ErrInvalidTransition)
}

func (suite *OtpServiceTestSuite) TestDeliveryFailureSurfaces() {
	suite.sender.ExpectedCalls = nil
	suite.sender.On("SendSigningOtp", mock.Anything).Return(errors.New("smtp down"))
	contract := suite.draftContract()

	_, err := suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.buyer), models.PartyRoleBuyer)
	assert.ErrorIs(suite.T(), err, ErrDeliveryFailed)
}

func (suite *OtpServiceTestSuite) TestRetryAfterDeliveryFailureSkipsCooldown() {
	suite.otp.cfg.ResendCooldown = time.Minute
	suite.sender.ExpectedCalls = nil
	suite.sender.On("SendSigningOtp", mock.Anything).Return(errors.New("smtp down")).Once()
	suite.sender.On("SendSigningOtp", mock.Anything).Return(nil)
	contract := suite.draftContract()

	_, err := suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.buyer), models.PartyRoleBuyer)
	suite.Require().ErrorIs(err, ErrDeliveryFailed)

	var stored int64
	suite.Require().NoError(suite.db.Model(&models.SigningOtp{}).Where("contract_id = ?", contract.ID).Count(&stored).Error)
	assert.Zero(suite.T(), stored)

	result, err := suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.buyer), models.PartyRoleBuyer)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.PartyRoleBuyer, result.Role)

	code := suite.sender.lastCode(models.PartyRoleBuyer)
	suite.Require().NotEmpty(code)
	assert.NoError(suite.T(), suite.otp.VerifyAndConsume(suite.ctx, contract.ID, models.PartyRoleBuyer, code))

	// The delivered code does hold the cooldown.
	_, err = suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.buyer), models.PartyRoleBuyer)
	assert.ErrorIs(suite.T(), err, ErrOtpRateLimited)
}

func (suite *OtpServiceTestSuite) TestCodeIsSingleUse() {
	contract := suite.draftContract()
	code := suite.issueCode(contract.ID, suite.buyer, models.PartyRoleBuyer)

	suite.Require().NoError(suite.otp.VerifyAndConsume(suite.ctx, contract.ID, models.PartyRoleBuyer, code))

	err := suite.otp.VerifyAndConsume(suite.ctx, contract.ID, models.PartyRoleBuyer, code)
	assert.ErrorIs(suite.T(), err, ErrOtpAlreadyConsumed)
}

func (suite *OtpServiceTestSuite) TestWrongCodeAndWrongRole() {
	contract := suite.draftContract()
	code := suite.issueCode(contract.ID, suite.buyer, models.PartyRoleBuyer)

	wrong := "123456"
	if code == wrong {
		wrong = "654321"
	}
	assert.ErrorIs(suite.T(), suite.otp.VerifyAndConsume(suite.ctx, contract.ID, models.PartyRoleBuyer, wrong), ErrOtpInvalid)
	assert.ErrorIs(suite.T(), suite.otp.VerifyAndConsume(suite.ctx, contract.ID, models.PartyRoleSeller, code), ErrOtpInvalid)
}

func (suite *OtpServiceTestSuite) TestCodeExpiresAtTTL() {
	contract := suite.draftContract()
	result, err := suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.buyer), models.PartyRoleBuyer)
	suite.Require().NoError(err)
	code := suite.sender.lastCode(models.PartyRoleBuyer)

	suite.clock.Set(result.ExpiresAt)
	err = suite.otp.VerifyAndConsume(suite.ctx, contract.ID, models.PartyRoleBuyer, code)
	assert.ErrorIs(suite.T(), err, ErrOtpExpired)
}

func (suite *OtpServiceTestSuite) TestCodeValidJustBeforeExpiry() {
	contract := suite.draftContract()
	result, err := suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.buyer), models.PartyRoleBuyer)
	suite.Require().NoError(err)
	code := suite.sender.lastCode(models.PartyRoleBuyer)

	suite.clock.Set(result.ExpiresAt.Add(-time.Second))
	assert.NoError(suite.T(), suite.otp.VerifyAndConsume(suite.ctx, contract.ID, models.PartyRoleBuyer, code))
}

func (suite *OtpServiceTestSuite) TestReissueInvalidatesPreviousCode() {
	contract := suite.draftContract()
	first := suite.issueCode(contract.ID, suite.buyer, models.PartyRoleBuyer)
	suite.clock.Advance(time.Second)
	second := suite.issueCode(contract.ID, suite.buyer, models.PartyRoleBuyer)

	if first != second {
		assert.ErrorIs(suite.T(), suite.otp.VerifyAndConsume(suite.ctx, contract.ID, models.PartyRoleBuyer, first), ErrOtpInvalid)
	}
	assert.NoError(suite.T(), suite.otp.VerifyAndConsume(suite.ctx, contract.ID, models.PartyRoleBuyer, second))

	var unconsumed int64
	suite.db.Model(&models.SigningOtp{}).
		Where("contract_id = ? AND role = ? AND consumed = ?", contract.ID, models.PartyRoleBuyer, false).
		Count(&unconsumed)
	assert.Equal(suite.T(), int64(0), unconsumed)
}

func (suite *OtpServiceTestSuite) TestResendCooldown() {
	suite.otp.cfg.ResendCooldown = time.Minute
	contract := suite.draftContract()
	suite.issueCode(contract.ID, suite.buyer, models.PartyRoleBuyer)

	_, err := suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.buyer), models.PartyRoleBuyer)
	assert.ErrorIs(suite.T(), err, ErrOtpRateLimited)

	// The other party is not affected.
	suite.issueCode(contract.ID, suite.seller, models.PartyRoleSeller)

	suite.clock.Advance(61 * time.Second)
	_, err = suite.otp.IssueOtp(suite.ctx, contract.ID, suite.actor(suite.buyer), models.PartyRoleBuyer)
	assert.NoError(suite.T(), err)
}

func (suite *OtpServiceTestSuite) TestConcurrentVerifyConsumesOnce() {
	contract := suite.draftContract()
	code := suite.issueCode(contract.ID, suite.buyer, models.PartyRoleBuyer)

	const attempts = 6
	results := make([]error, attempts)
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		i := i
		g.Go(func() error {
			results[i] = suite.otp.VerifyAndConsume(suite.ctx, contract.ID, models.PartyRoleBuyer, code)
			return nil
		})
	}
	suite.Require().NoError(g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(suite.T(), err, ErrOtpAlreadyConsumed)
	}
	assert.Equal(suite.T(), 1, succeeded)
}

func (suite *OtpServiceTestSuite) TestVerifyWithoutIssuedCode() {
	contract := suite.draftContract()
	err := suite.otp.VerifyAndConsume(suite.ctx, contract.ID, models.PartyRoleSeller, "123456")
	assert.ErrorIs(suite.T(), err, ErrOtpInvalid)
}
