// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeyRateLimited = "rate_limited"

	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAccessDenied     = "auth.access_denied"
	KeyStaffRequired    = "auth.staff_required"

	// Contracts
	KeyContractCreated   = "contract.created"
	KeyContractSigned    = "contract.signed"
	KeyContractCompleted = "contract.completed"
	KeyContractCancelled = "contract.cancelled"

	// Signing codes
	KeyOtpSent = "otp.sent"

	// Addons
	KeyAddonAttached = "addon.attached"

	// Payments
	KeyPaymentIntentCreated = "payment.intent_created"
	KeyWebhookAccepted      = "payment.webhook_accepted"

	// Validation
	KeyValidationInvalid = "validation.invalid"
)
