// internal/handlers/payment.go
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/contract-engine/internal/i18n"
	"github.com/javajoker/contract-engine/internal/services"
	"github.com/javajoker/contract-engine/internal/utils"
)

const maxWebhookBodyBytes = 64 << 10

// CallbackParser verifies and decodes a gateway webhook. A nil callback with
// a nil error means the event carries no payment outcome.
type CallbackParser interface {
	ParseCallback(payload []byte, signature string) (*services.GatewayCallback, error)
}

type PaymentHandler struct {
	contractService *services.ContractService
	paymentService  *services.PaymentService
	parser          CallbackParser
}

func NewPaymentHandler(contractService *services.ContractService, paymentService *services.PaymentService, parser CallbackParser) *PaymentHandler {
	return &PaymentHandler{
		contractService: contractService,
		paymentService:  paymentService,
		parser:          parser,
	}
}

// POST /contracts/:id/payments
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	contractID, ok := contractIDParam(c)
	if !ok {
		return
	}

	var req services.CreateIntentRequest
	if !bindJSON(c, &req) {
		return
	}

	intent, err := h.paymentService.CreateIntent(c.Request.Context(), contractID, actor, req.ChargedTo)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponseWithMeta(c, gin.H{
		"intent_id":              intent.ID,
		"status":                 intent.Status,
		"amount":                 intent.Amount,
		"currency":               intent.Currency,
		"gateway_transaction_id": intent.GatewayTransactionID,
		"redirect_url":           intent.RedirectURL,
		"addon_ids":              intent.AddonIDs(),
	}, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyPaymentIntentCreated),
	})
}

// GET /contracts/:id/payments
func (h *PaymentHandler) ListPaymentIntents(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	contractID, ok := contractIDParam(c)
	if !ok {
		return
	}

	if _, err := h.contractService.GetContract(c.Request.Context(), contractID, actor); err != nil {
		respondError(c, err)
		return
	}

	intents, err := h.paymentService.ListIntents(c.Request.Context(), contractID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, intents)
}

// POST /payments/webhook/stripe
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "payload"), nil)
		return
	}

	log := logrus.WithField("payload_sha256", utils.HashString(string(payload)))

	cb, err := h.parser.ParseCallback(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		log.WithError(err).Warn("Rejected payment webhook")
		if errors.Is(err, services.ErrInvalidSignature) {
			respondError(c, err)
			return
		}
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "payload"), nil)
		return
	}

	accepted := gin.H{"received": true}
	if cb == nil {
		log.Debug("Ignoring payment webhook without outcome")
		utils.SuccessResponse(c, accepted)
		return
	}

	if _, err := h.paymentService.ApplyCallback(c.Request.Context(), cb); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			// Sessions created outside this engine; retrying will not help.
			log.WithField("transaction_id", cb.TransactionID).Warn("Payment webhook for unknown transaction")
			utils.SuccessResponse(c, accepted)
			return
		}
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, accepted, gin.H{
		"message": i18n.T(lang, i18n.KeyWebhookAccepted),
	})
}
