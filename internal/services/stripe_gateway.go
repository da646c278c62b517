// internal/services/stripe_gateway.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	checkoutsession "github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/javajoker/contract-engine/internal/config"
)

// Checkout Session events the reconciler reacts to.
const (
	stripeEventSessionCompleted      = "checkout.session.completed"
	stripeEventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	stripeEventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	stripeEventSessionExpired        = "checkout.session.expired"
	stripeCheckoutPaymentStatusPaid  = "paid"
)

// Currencies Stripe charges in whole units.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

type StripeGateway struct {
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripeGateway(cfg *config.Config) *StripeGateway {
	// Initialize Stripe
	stripe.Key = cfg.Payment.StripeSecretKey

	if !cfg.Payment.StripeEnabled() {
		logrus.Warn("STRIPE_SECRET_KEY is not set, payment intents will fail at the gateway")
	}

	base := strings.TrimRight(cfg.Frontend.BaseURL, "/")
	return &StripeGateway{
		webhookSecret: cfg.Payment.StripeWebhookSecret,
		successURL:    base + cfg.Payment.SuccessPath,
		cancelURL:     base + cfg.Payment.CancelPath,
	}
}

// CreateCheckout opens a Checkout Session with one line item per addon.
func (g *StripeGateway) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(fmt.Sprintf(g.successURL, req.ContractID)),
		CancelURL:         stripe.String(fmt.Sprintf(g.cancelURL, req.ContractID)),
		ClientReferenceID: stripe.String(req.IntentID.String()),
	}

	for _, item := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(ToMinorUnits(item.Amount, req.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}

	params.AddMetadata("intent_id", req.IntentID.String())
	params.AddMetadata("contract_id", req.ContractID.String())
	params.AddMetadata("charged_to", string(req.ChargedTo))
	params.SetIdempotencyKey("intent-" + req.IntentID.String())
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutResult{
		TransactionID: sess.ID,
		RedirectURL:   sess.URL,
	}, nil
}

// ParseCallback verifies a Stripe webhook and translates it. It returns nil
// for events that carry no payment outcome.
func (g *StripeGateway) ParseCallback(payload []byte, signature string) (*GatewayCallback, error) {
	if err := webhook.ValidatePayload(payload, signature, g.webhookSecret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook event: %w", err)
	}

	eventType := string(event.Type)
	switch eventType {
	case stripeEventSessionCompleted, stripeEventAsyncPaymentSucceeded,
		stripeEventAsyncPaymentFailed, stripeEventSessionExpired:
	default:
		return nil, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("webhook event %s has no data", event.ID)
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session: %w", err)
	}
	if sess.ID == "" {
		return nil, fmt.Errorf("webhook event %s has no checkout session id", event.ID)
	}

	cb := &GatewayCallback{TransactionID: sess.ID, IntentID: sessionIntentID(&sess)}
	switch eventType {
	case stripeEventSessionCompleted:
		// Delayed payment methods complete unpaid and report later.
		if string(sess.PaymentStatus) != stripeCheckoutPaymentStatusPaid {
			return nil, nil
		}
		cb.Outcome = CallbackSucceeded
	case stripeEventAsyncPaymentSucceeded:
		cb.Outcome = CallbackSucceeded
	case stripeEventAsyncPaymentFailed:
		cb.Outcome = CallbackFailed
		cb.Reason = "payment failed"
	case stripeEventSessionExpired:
		cb.Outcome = CallbackFailed
		cb.Reason = "checkout session expired"
	}

	return cb, nil
}

// sessionIntentID reads the intent id CreateCheckout attached to the session.
func sessionIntentID(sess *stripe.CheckoutSession) uuid.UUID {
	for _, raw := range []string{sess.ClientReferenceID, sess.Metadata["intent_id"]} {
		if id, err := uuid.Parse(raw); err == nil {
			return id
		}
	}
	return uuid.Nil
}

// ToMinorUnits converts an amount to the integer unit Stripe expects.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	exp := int32(2)
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		exp = 0
	}
	return amount.Shift(exp).Round(0).IntPart()
}
