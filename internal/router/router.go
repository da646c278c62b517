// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/javajoker/contract-engine/internal/config"
	"github.com/javajoker/contract-engine/internal/handlers"
	"github.com/javajoker/contract-engine/internal/middleware"
	"github.com/javajoker/contract-engine/internal/services"
	"github.com/javajoker/contract-engine/internal/utils"
)

// Dependencies are the collaborators the router wires into services. Nil
// fields get their production implementation.
type Dependencies struct {
	OtpSender services.OtpSender
	Gateway   services.PaymentGateway
	Parser    handlers.CallbackParser
	Archiver  services.ContractArchiver
	Notifier  services.ContractNotifier
	// RateLimit enables the in-process request limiters.
	RateLimit bool
}

func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, error) {
	archiver, err := services.NewArchiveService(cfg)
	if err != nil {
		return nil, err
	}
	notifier := services.NewNotificationService(cfg)
	stripeGateway := services.NewStripeGateway(cfg)

	return New(db, cfg, Dependencies{
		OtpSender: notifier,
		Gateway:   stripeGateway,
		Parser:    stripeGateway,
		Archiver:  archiver,
		Notifier:  notifier,
		RateLimit: true,
	}), nil
}

func New(db *gorm.DB, cfg *config.Config, deps Dependencies) *gin.Engine {
	// Initialize services
	directory := services.NewDirectoryService(db)
	auditService := services.NewAuditService(db)
	otpService := services.NewOtpService(db, directory, directory, deps.OtpSender, cfg)
	contractService := services.NewContractService(db, directory, directory, otpService, deps.Archiver, deps.Notifier)
	addonService := services.NewAddonService(db, directory, directory, cfg)
	paymentService := services.NewPaymentService(db, directory, deps.Gateway, cfg)

	// Initialize handlers
	contractHandler := handlers.NewContractHandler(contractService, otpService, auditService)
	addonHandler := handlers.NewAddonHandler(contractService, addonService)
	paymentHandler := handlers.NewPaymentHandler(contractService, paymentService, deps.Parser)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))
	if deps.RateLimit {
		r.Use(middleware.GeneralRateLimit())
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		contracts := v1.Group("/contracts")
		contracts.Use(middleware.AuthRequired())
		{
			contracts.POST("", contractHandler.CreateContract)
			contracts.GET("", middleware.StaffRequired(), contractHandler.ListContracts)
			contracts.GET("/:id", contractHandler.GetContract)

			signing := contracts.Group("/:id")
			if deps.RateLimit {
				signing.Use(middleware.OtpRateLimit())
			}
			{
				signing.POST("/otp", contractHandler.IssueOtp)
				signing.POST("/sign", contractHandler.SignContract)
			}

			contracts.POST("/:id/complete", middleware.StaffRequired(), contractHandler.CompleteContract)
			contracts.POST("/:id/cancel", middleware.StaffRequired(), contractHandler.CancelContract)
			contracts.GET("/:id/events", middleware.StaffRequired(), contractHandler.GetContractEvents)

			contracts.GET("/:id/addons", addonHandler.ListAddons)
			contracts.POST("/:id/addons", addonHandler.AttachAddon)

			contracts.GET("/:id/payments", paymentHandler.ListPaymentIntents)
			contracts.POST("/:id/payments", paymentHandler.CreatePaymentIntent)
		}

		// Gateway callbacks authenticate by signature, not JWT
		payments := v1.Group("/payments")
		if deps.RateLimit {
			payments.Use(middleware.WebhookRateLimit())
		}
		{
			payments.POST("/webhook/stripe", paymentHandler.StripeWebhook)
		}
	}

	return r
}
