// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/contract-engine/internal/i18n"
	"github.com/javajoker/contract-engine/internal/models"
	"github.com/javajoker/contract-engine/internal/services"
	"github.com/javajoker/contract-engine/internal/utils"
)

// respondError maps service errors onto the response envelope.
func respondError(c *gin.Context, err error) {
	var guard *services.GuardViolationError

	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, services.ErrConflict):
		utils.ConflictResponse(c, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		utils.ForbiddenResponse(c, err.Error())
	case errors.As(err, &guard):
		utils.UnprocessableResponse(c, "GUARD_VIOLATION", err.Error(), gin.H{"reason": guard.Reason})
	case errors.Is(err, services.ErrOtpInvalid):
		utils.UnprocessableResponse(c, "OTP_INVALID", err.Error(), nil)
	case errors.Is(err, services.ErrOtpExpired):
		utils.UnprocessableResponse(c, "OTP_EXPIRED", err.Error(), nil)
	case errors.Is(err, services.ErrOtpAlreadyConsumed):
		utils.UnprocessableResponse(c, "OTP_ALREADY_CONSUMED", err.Error(), nil)
	case errors.Is(err, services.ErrServiceInactive):
		utils.UnprocessableResponse(c, "SERVICE_INACTIVE", err.Error(), nil)
	case errors.Is(err, services.ErrNothingToPay):
		utils.UnprocessableResponse(c, "NOTHING_TO_PAY", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidTransition):
		utils.UnprocessableResponse(c, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, services.ErrOtpRateLimited):
		utils.TooManyRequestsResponse(c, err.Error())
	case errors.Is(err, services.ErrGatewayUnavailable):
		utils.ServiceUnavailableResponse(c, "GATEWAY_UNAVAILABLE", services.ErrGatewayUnavailable.Error())
	case errors.Is(err, services.ErrDeliveryFailed):
		utils.ServiceUnavailableResponse(c, "DELIVERY_FAILED", services.ErrDeliveryFailed.Error())
	case errors.Is(err, services.ErrInvalidSignature):
		utils.BadRequestResponse(c, services.ErrInvalidSignature.Error(), nil)
	default:
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Unhandled service error")
		utils.InternalErrorResponse(c, "")
	}

	c.Error(err)
}

// currentActor builds the service actor from the JWT claims.
func currentActor(c *gin.Context) (services.Actor, bool) {
	userID, ok := utils.GetUserUUIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return services.Actor{}, false
	}
	userType, _ := utils.GetUserTypeFromContext(c)
	return services.Actor{
		UserID: userID,
		Staff:  models.UserType(userType).IsStaff(),
	}, true
}

func contractIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "contract id"), nil)
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes and validates the body, writing the error response itself.
func bindJSON(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)

	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}

	// Validate request
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}
