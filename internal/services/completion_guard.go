// internal/services/completion_guard.go
package services

import (
	"fmt"

	"github.com/javajoker/contract-engine/internal/models"
)

// CanComplete reports whether a contract may move to COMPLETED: both parties
// signed and every attached addon paid. The reason names the first unmet
// condition.
func CanComplete(contract *models.Contract, addons []models.AddonAttachment) (bool, string) {
	if contract == nil || !contract.FullySigned() {
		return false, "not fully signed"
	}

	unpaid := 0
	for _, addon := range addons {
		if addon.PaymentStatus != models.PaymentStatusPaid {
			unpaid++
		}
	}
	if unpaid > 0 {
		return false, fmt.Sprintf("%d unpaid addon(s)", unpaid)
	}

	return true, ""
}
