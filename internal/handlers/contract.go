// internal/handlers/contract.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/contract-engine/internal/i18n"
	"github.com/javajoker/contract-engine/internal/models"
	"github.com/javajoker/contract-engine/internal/services"
	"github.com/javajoker/contract-engine/internal/utils"
)

type ContractHandler struct {
	contractService *services.ContractService
	otpService      *services.OtpService
	auditService    *services.AuditService
}

func NewContractHandler(contractService *services.ContractService, otpService *services.OtpService, auditService *services.AuditService) *ContractHandler {
	return &ContractHandler{
		contractService: contractService,
		otpService:      otpService,
		auditService:    auditService,
	}
}

// POST /contracts
func (h *ContractHandler) CreateContract(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req services.CreateContractRequest
	if !bindJSON(c, &req) {
		return
	}

	contract, err := h.contractService.CreateContract(c.Request.Context(), actor, req.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponseWithMeta(c, contract, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyContractCreated),
	})
}

// GET /contracts
func (h *ContractHandler) ListContracts(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	params := services.ContractSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
	}
	if status := c.Query("status"); status != "" {
		s := models.ContractStatus(status)
		switch s {
		case models.ContractStatusDraft, models.ContractStatusSigned, models.ContractStatusCompleted, models.ContractStatusCancelled:
			params.Status = &s
		default:
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "status"), nil)
			return
		}
	}
	if orderID := c.Query("order_id"); orderID != "" {
		id, err := uuid.Parse(orderID)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "order_id"), nil)
			return
		}
		params.OrderID = &id
	}

	contracts, total, err := h.contractService.ListContracts(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(contracts, total, params.PaginationParams))
}

// GET /contracts/:id
func (h *ContractHandler) GetContract(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	contractID, ok := contractIDParam(c)
	if !ok {
		return
	}

	contract, err := h.contractService.GetContract(c.Request.Context(), contractID, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, contract)
}

// POST /contracts/:id/otp
func (h *ContractHandler) IssueOtp(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	contractID, ok := contractIDParam(c)
	if !ok {
		return
	}

	var req services.IssueOtpRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.otpService.IssueOtp(c.Request.Context(), contractID, actor, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, result, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyOtpSent),
	})
}

// POST /contracts/:id/sign
func (h *ContractHandler) SignContract(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	contractID, ok := contractIDParam(c)
	if !ok {
		return
	}

	var req services.SignContractRequest
	if !bindJSON(c, &req) {
		return
	}

	contract, err := h.contractService.Sign(c.Request.Context(), contractID, actor, req.Role, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, contract, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyContractSigned),
	})
}

// POST /contracts/:id/complete
func (h *ContractHandler) CompleteContract(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	contractID, ok := contractIDParam(c)
	if !ok {
		return
	}

	contract, err := h.contractService.Complete(c.Request.Context(), contractID, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, contract, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyContractCompleted),
	})
}

// POST /contracts/:id/cancel
func (h *ContractHandler) CancelContract(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	contractID, ok := contractIDParam(c)
	if !ok {
		return
	}

	// The body is optional
	var req services.CancelContractRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	contract, err := h.contractService.Cancel(c.Request.Context(), contractID, actor, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, contract, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyContractCancelled),
	})
}

// GET /contracts/:id/events
func (h *ContractHandler) GetContractEvents(c *gin.Context) {
	contractID, ok := contractIDParam(c)
	if !ok {
		return
	}

	events, err := h.auditService.ListEvents(c.Request.Context(), contractID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, events)
}
