// internal/services/errors.go
package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("not authorized for this contract")
	ErrOtpInvalid         = errors.New("invalid signing code")
	ErrOtpExpired         = errors.New("signing code has expired")
	ErrOtpAlreadyConsumed = errors.New("signing code has already been used")
	ErrOtpRateLimited     = errors.New("a signing code was issued recently, please wait before requesting another")
	ErrServiceInactive    = errors.New("service is not active")
	ErrNothingToPay       = errors.New("no pending addons to pay")
	ErrGuardViolation     = errors.New("completion preconditions not met")
	ErrInvalidTransition  = errors.New("invalid contract transition")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrDeliveryFailed     = errors.New("signing code delivery failed")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
)

// GuardViolationError carries the unmet completion condition.
type GuardViolationError struct {
	Reason string
}

func (e *GuardViolationError) Error() string {
	return "cannot complete contract: " + e.Reason
}

func (e *GuardViolationError) Is(target error) bool {
	return target == ErrGuardViolation
}

// notFound converts gorm's missing-row error into ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &wrapped{kind: ErrNotFound, msg: what + " not found"}
	}
	return err
}

// isUniqueViolation recognises unique constraint failures from the postgres
// and sqlite drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// wrapped gives a sentinel kind a more specific message.
type wrapped struct {
	kind error
	msg  string
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.kind }

func errorf(kind error, msg string) error {
	return &wrapped{kind: kind, msg: msg}
}
