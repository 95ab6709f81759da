package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"moodboardAPI/internal/types/usage"
	"moodboardAPI/services"
)

type UsageHandler struct {
	usageService *services.UsageService
}

func NewUsageHandler(usageService *services.UsageService) *UsageHandler {
	return &UsageHandler{
		usageService: usageService,
	}
}

// HandleImageUsage serves both the read-only check and the mutating
// increment, switched on the action field. Check is safe to poll; increment
// must be called at most once per intended generation.
func (h *UsageHandler) HandleImageUsage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req usage.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID, code, msg := resolveUserID(ctx, req.UserID)
	if code != 0 {
		respondWithError(w, code, msg)
		return
	}

	switch req.Action {
	case "check", "":
		snapshot, err := h.usageService.Check(ctx, userID)
		if err != nil {
			log.Printf("Usage check failed for user %s: %v", userID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to check usage")
			return
		}
		respondWithJSON(w, http.StatusOK, snapshot)

	case "increment":
		resp, err := h.usageService.Increment(ctx, userID)
		if err != nil {
			respondUsageError(w, userID, err)
			return
		}
		respondWithJSON(w, http.StatusOK, resp)

	default:
		respondWithError(w, http.StatusBadRequest, "action must be 'check' or 'increment'")
	}
}

// respondUsageError maps the usage counter's business-rule rejections onto
// their 403 payloads and everything else onto a 500.
func respondUsageError(w http.ResponseWriter, userID string, err error) {
	var limitErr *services.LimitReachedError
	switch {
	case errors.Is(err, services.ErrSubscriptionRequired):
		respondWithJSON(w, http.StatusForbidden, map[string]interface{}{
			"error": "Subscription required",
		})
	case errors.As(err, &limitErr):
		respondWithJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":           "Image limit reached",
			"imagesUsed":      limitErr.ImagesUsed,
			"imagesLimit":     limitErr.ImagesLimit,
			"remainingImages": 0,
		})
	default:
		log.Printf("Usage increment failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update usage")
	}
}
