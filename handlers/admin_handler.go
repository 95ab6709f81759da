package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"moodboardAPI/services"
)

// AdminHandler exposes the repair jobs. Routes mount behind the admin-secret
// middleware; the handlers themselves only run the batches.
type AdminHandler struct {
	repairService *services.RepairService
}

func NewAdminHandler(repairService *services.RepairService) *AdminHandler {
	return &AdminHandler{
		repairService: repairService,
	}
}

// FixCorruptedSubscriptions rewrites subscription_id values that were stored
// as serialized objects instead of opaque tokens.
func (h *AdminHandler) FixCorruptedSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	result, err := h.repairService.FixCorruptedIDs(ctx)
	if err != nil {
		log.Printf("FixCorruptedSubscriptions failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Repair job failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Corrupted subscription id repair complete",
		"results": result,
	})
}

// FixSubscriptionStatus re-derives status from Stripe for records stuck on
// inactive despite holding a subscription identifier.
func (h *AdminHandler) FixSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	result, err := h.repairService.FixStaleStatuses(ctx)
	if err != nil {
		log.Printf("FixSubscriptionStatus failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Repair job failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Stale status repair complete",
		"results": result,
	})
}
