package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"moodboardAPI/internal/types/moodboard"
	"moodboardAPI/middleware"
	"moodboardAPI/services"
)

type MoodboardHandler struct {
	moodboardService    *services.MoodboardService
	generationService   *services.GenerationService
	usageService        *services.UsageService
	subscriptionService *services.SubscriptionService
}

func NewMoodboardHandler(
	moodboardService *services.MoodboardService,
	generationService *services.GenerationService,
	usageService *services.UsageService,
	subscriptionService *services.SubscriptionService,
) *MoodboardHandler {
	return &MoodboardHandler{
		moodboardService:    moodboardService,
		generationService:   generationService,
		usageService:        usageService,
		subscriptionService: subscriptionService,
	}
}

// GenerateMoodboard consumes one quota unit, then calls the text and image
// providers and persists the board. The quota is spent before the provider
// calls; a provider failure after that point surfaces as a 502 with the unit
// already consumed.
func (h *MoodboardHandler) GenerateMoodboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req moodboard.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RoomType == "" || req.Style == "" {
		respondWithError(w, http.StatusBadRequest, "roomType and style are required")
		return
	}

	inc, err := h.usageService.Increment(ctx, userID)
	if err != nil {
		respondUsageError(w, userID, err)
		return
	}

	description, err := h.generationService.GenerateDescription(ctx, &req)
	if err != nil {
		log.Printf("Description generation failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusBadGateway, "Generation provider unavailable")
		return
	}

	imageURL, err := h.generationService.GenerateImage(ctx, &req)
	if err != nil {
		log.Printf("Image generation failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusBadGateway, "Generation provider unavailable")
		return
	}

	board, err := h.moodboardService.Create(ctx, userID, &req, description, imageURL)
	if err != nil {
		log.Printf("Failed to save moodboard for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save moodboard")
		return
	}

	respondWithJSON(w, http.StatusOK, moodboard.GenerateResponse{
		Moodboard:       board,
		ImagesUsed:      inc.ImagesUsed,
		RemainingImages: inc.RemainingImages,
	})
}

func (h *MoodboardHandler) ListMoodboards(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	boards, err := h.moodboardService.ListForUser(ctx, userID)
	if err != nil {
		log.Printf("Failed to list moodboards for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list moodboards")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"moodboards": boards})
}

func (h *MoodboardHandler) DeleteMoodboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	boardID := mux.Vars(r)["boardID"]
	if boardID == "" {
		respondWithError(w, http.StatusBadRequest, "boardID is required")
		return
	}

	if err := h.moodboardService.Delete(ctx, userID, boardID); err != nil {
		if errors.Is(err, services.ErrMoodboardNotFound) {
			respondWithError(w, http.StatusNotFound, "Moodboard not found")
			return
		}
		log.Printf("Failed to delete moodboard %s for user %s: %v", boardID, userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete moodboard")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Moodboard deleted"})
}

// DeleteAccount cascades: boards first, then the subscription row.
func (h *MoodboardHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	if err := h.moodboardService.DeleteAllForUser(ctx, userID); err != nil {
		log.Printf("Account deletion: moodboard cleanup failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete account data")
		return
	}
	if err := h.subscriptionService.DeleteForUser(ctx, userID); err != nil {
		log.Printf("Account deletion: subscription cleanup failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete account data")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Account deleted successfully"})
}
