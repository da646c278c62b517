// internal/services/helpers_test.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/contract-engine/internal/config"
	"github.com/javajoker/contract-engine/internal/database"
	"github.com/javajoker/contract-engine/internal/models"
)

type mockOtpSender struct {
	mock.Mock
	mu    sync.Mutex
	codes map[models.PartyRole]string
}

func newMockOtpSender() *mockOtpSender {
	return &mockOtpSender{codes: make(map[models.PartyRole]string)}
}

func (m *mockOtpSender) SendSigningOtp(ctx context.Context, msg OtpMessage) error {
	args := m.Called(msg.Role)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.codes[msg.Role] = msg.Code
	m.mu.Unlock()
	return nil
}

func (m *mockOtpSender) lastCode(role models.PartyRole) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[role]
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	ret := m.Called(req)

	var result *CheckoutResult
	if fn, ok := ret.Get(0).(func(*CheckoutRequest) *CheckoutResult); ok {
		result = fn(req)
	} else if ret.Get(0) != nil {
		result = ret.Get(0).(*CheckoutResult)
	}
	return result, ret.Error(1)
}

// checkoutFor answers every checkout with a session named after the intent.
func checkoutFor(req *CheckoutRequest) *CheckoutResult {
	return &CheckoutResult{
		TransactionID: "cs_test_" + req.IntentID.String(),
		RedirectURL:   "https://checkout.stripe.test/" + req.IntentID.String(),
	}
}

type mockArchiver struct {
	mock.Mock
	archived chan ContractSnapshot
}

func (m *mockArchiver) ArchiveContract(ctx context.Context, snapshot *ContractSnapshot) error {
	args := m.Called(snapshot.Contract.Status)
	m.archived <- *snapshot
	return args.Error(0)
}

type mockNotifier struct {
	mock.Mock
	signed chan []models.User
}

func (m *mockNotifier) SendContractSigned(ctx context.Context, contract *models.Contract, recipients []models.User) error {
	args := m.Called(contract.ID)
	m.signed <- recipients
	return args.Error(0)
}

// testClock hands out strictly increasing times so rows ordered by a
// client-side timestamp never tie.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Millisecond)
	return t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// In-memory databases live per connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Payment: config.PaymentConfig{
			Currency:       "vnd",
			GatewayTimeout: 2 * time.Second,
		},
		Email: config.EmailConfig{
			DeliveryTimeout: 2 * time.Second,
		},
		OTP: config.OTPConfig{
			TTL:      5 * time.Minute,
			Length:   6,
			HashCost: bcrypt.MinCost,
		},
		Addon: config.AddonConfig{
			DuplicatePolicy: config.AddonDuplicatesAllow,
		},
	}
}

// engineSuite wires every service against a fresh database per test.
type engineSuite struct {
	suite.Suite
	ctx   context.Context
	db    *gorm.DB
	cfg   *config.Config
	clock *testClock

	sender  *mockOtpSender
	gateway *mockGateway

	directory *DirectoryService
	audit     *AuditService
	otp       *OtpService
	contracts *ContractService
	addons    *AddonService
	payments  *PaymentService

	buyer  models.User
	seller models.User
	staff  models.User
	order  models.Order
}

func (suite *engineSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.cfg = testConfig()
	suite.clock = newTestClock()

	db, err := newTestDB()
	suite.Require().NoError(err)
	suite.db = db

	suite.sender = newMockOtpSender()
	suite.sender.On("SendSigningOtp", mock.Anything).Return(nil)
	suite.gateway = &mockGateway{}

	suite.buildServices()

	suite.buyer = suite.createUser("buyer", models.UserTypeMember)
	suite.seller = suite.createUser("seller", models.UserTypeMember)
	suite.staff = suite.createUser("staff", models.UserTypeStaff)
	suite.order = suite.createOrder(suite.buyer, suite.seller)
}

func (suite *engineSuite) TearDownTest() {
	database.Close(suite.db)
}

func (suite *engineSuite) buildServices() {
	suite.directory = NewDirectoryService(suite.db)
	suite.audit = NewAuditService(suite.db)
	suite.otp = NewOtpService(suite.db, suite.directory, suite.directory, suite.sender, suite.cfg)
	suite.contracts = NewContractService(suite.db, suite.directory, suite.directory, suite.otp, nil, nil)
	suite.addons = NewAddonService(suite.db, suite.directory, suite.directory, suite.cfg)
	suite.payments = NewPaymentService(suite.db, suite.directory, suite.gateway, suite.cfg)

	suite.otp.now = suite.clock.Now
	suite.contracts.now = suite.clock.Now
	suite.addons.now = suite.clock.Now
	suite.payments.now = suite.clock.Now
}

func (suite *engineSuite) createUser(name string, userType models.UserType) models.User {
	user := models.User{
		Username: name + "_" + uuid.NewString()[:8],
		Email:    name + "_" + uuid.NewString()[:8] + "@example.com",
		UserType: userType,
		Status:   models.UserStatusActive,
	}
	suite.Require().NoError(suite.db.Create(&user).Error)
	return user
}

func (suite *engineSuite) createOrder(buyer, seller models.User) models.Order {
	order := models.Order{
		BuyerID:   buyer.ID,
		SellerID:  seller.ID,
		ListingID: uuid.New(),
	}
	suite.Require().NoError(suite.db.Create(&order).Error)
	return order
}

func (suite *engineSuite) createService(name string, fee int64, status models.ServiceStatus) models.Service {
	service := models.Service{
		Name:   name,
		Fee:    decimal.NewFromInt(fee),
		Status: status,
	}
	suite.Require().NoError(suite.db.Create(&service).Error)
	return service
}

func (suite *engineSuite) actor(user models.User) Actor {
	return Actor{UserID: user.ID, Staff: user.UserType.IsStaff()}
}

func (suite *engineSuite) draftContract() *models.Contract {
	contract, err := suite.contracts.CreateContract(suite.ctx, suite.actor(suite.staff), suite.order.ID)
	suite.Require().NoError(err)
	return contract
}

// issueCode requests a code for role and returns what the sender delivered.
func (suite *engineSuite) issueCode(contractID uuid.UUID, user models.User, role models.PartyRole) string {
	_, err := suite.otp.IssueOtp(suite.ctx, contractID, suite.actor(user), role)
	suite.Require().NoError(err)
	code := suite.sender.lastCode(role)
	suite.Require().NotEmpty(code)
	return code
}

func (suite *engineSuite) sign(contractID uuid.UUID, user models.User, role models.PartyRole) *models.Contract {
	code := suite.issueCode(contractID, user, role)
	contract, err := suite.contracts.Sign(suite.ctx, contractID, suite.actor(user), role, code)
	suite.Require().NoError(err)
	return contract
}

func (suite *engineSuite) signedContract() *models.Contract {
	contract := suite.draftContract()
	suite.sign(contract.ID, suite.buyer, models.PartyRoleBuyer)
	return suite.sign(contract.ID, suite.seller, models.PartyRoleSeller)
}

func (suite *engineSuite) reload(contractID uuid.UUID) models.Contract {
	var contract models.Contract
	suite.Require().NoError(suite.db.First(&contract, "id = ?", contractID).Error)
	return contract
}

func (suite *engineSuite) events(contractID uuid.UUID, action string) []models.ContractEvent {
	events, err := suite.audit.ListEvents(suite.ctx, contractID)
	suite.Require().NoError(err)

	var out []models.ContractEvent
	for _, e := range events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
