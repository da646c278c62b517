// internal/handlers/addon.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/contract-engine/internal/i18n"
	"github.com/javajoker/contract-engine/internal/services"
	"github.com/javajoker/contract-engine/internal/utils"
)

type AddonHandler struct {
	contractService *services.ContractService
	addonService    *services.AddonService
}

func NewAddonHandler(contractService *services.ContractService, addonService *services.AddonService) *AddonHandler {
	return &AddonHandler{
		contractService: contractService,
		addonService:    addonService,
	}
}

// GET /contracts/:id/addons
func (h *AddonHandler) ListAddons(c *gin.Context) {
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

	addons, err := h.addonService.ListByContract(c.Request.Context(), contractID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, addons)
}

// POST /contracts/:id/addons
func (h *AddonHandler) AttachAddon(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	contractID, ok := contractIDParam(c)
	if !ok {
		return
	}

	var req services.AttachAddonRequest
	if !bindJSON(c, &req) {
		return
	}

	addon, err := h.addonService.Attach(c.Request.Context(), contractID, actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponseWithMeta(c, addon, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyAddonAttached),
	})
}
