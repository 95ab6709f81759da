package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/stripe/stripe-go/v76"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"

	"moodboardAPI/internal/types/subscription"
	"moodboardAPI/middleware"
	"moodboardAPI/services"
)

type SubscriptionHandler struct {
	subscriptionService *services.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// resolveUserID returns the authenticated user, rejecting bodies that claim
// someone else. Identity comes from the verified token, never the body alone.
func resolveUserID(ctx context.Context, bodyUserID string) (string, int, string) {
	authUserID, ok := middleware.GetClerkID(ctx)
	if !ok {
		return "", http.StatusUnauthorized, "User not authenticated"
	}
	if bodyUserID != "" && bodyUserID != authUserID {
		return "", http.StatusForbidden, "userId does not match authenticated user"
	}
	return authUserID, 0, ""
}

// CheckSubscription runs the reconciler for the caller.
func (h *SubscriptionHandler) CheckSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req subscription.CheckRequest
	if r.Body != nil {
		// Body is optional here; the identity comes from the token.
		json.NewDecoder(r.Body).Decode(&req)
	}

	userID, code, msg := resolveUserID(ctx, req.UserID)
	if code != 0 {
		respondWithError(w, code, msg)
		return
	}

	resp, err := h.subscriptionService.CheckSubscription(ctx, userID)
	if err != nil {
		log.Printf("CheckSubscription failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to check subscription")
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// CancelSubscription cancels at Stripe and marks the local record cancelled.
func (h *SubscriptionHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	var req subscription.CancelRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	userID, code, msg := resolveUserID(ctx, req.UserID)
	if code != 0 {
		respondWithError(w, code, msg)
		return
	}

	resp, err := h.subscriptionService.CancelForUser(ctx, userID)
	if err != nil {
		log.Printf("CancelSubscription failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to cancel subscription")
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// CreateCheckout creates a Stripe Checkout Session carrying the user id in
// metadata, which is what the webhook later keys on. The response includes a
// QR code so a desktop session can be finished on a phone.
func (h *SubscriptionHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if os.Getenv("STRIPE_SECRET_KEY") == "" {
		log.Println("STRIPE_SECRET_KEY is not set")
		respondWithError(w, http.StatusInternalServerError, "Configuration error")
		return
	}

	var req subscription.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PriceID == "" {
		respondWithError(w, http.StatusBadRequest, "priceId is required")
		return
	}

	userID, code, msg := resolveUserID(ctx, req.UserID)
	if code != 0 {
		respondWithError(w, code, msg)
		return
	}

	appURL := os.Getenv("APP_BASE_URL")
	if appURL == "" {
		appURL = "http://localhost:3000"
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(appURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(appURL + "/checkout/cancelled"),
		ClientReferenceID: stripe.String(userID),
	}
	params.AddMetadata("user_id", userID)

	sess, err := checkoutsession.New(params)
	if err != nil {
		log.Printf("CreateCheckout failed for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}

	qrPNG := ""
	if png, err := qrcode.Encode(sess.URL, qrcode.Medium, 256); err != nil {
		log.Printf("QR generation failed for session %s: %v", sess.ID, err)
	} else {
		qrPNG = base64.StdEncoding.EncodeToString(png)
	}

	respondWithJSON(w, http.StatusOK, subscription.CheckoutResponse{
		SessionID:   sess.ID,
		CheckoutURL: sess.URL,
		QRCodePNG:   qrPNG,
	})
}
