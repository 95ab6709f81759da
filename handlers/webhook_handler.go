package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"moodboardAPI/internal/billing"
	"moodboardAPI/middleware"
	"moodboardAPI/services"
)

type WebhookHandler struct {
	subscriptionService *services.SubscriptionService
}

func NewWebhookHandler(subscriptionService *services.SubscriptionService) *WebhookHandler {
	return &WebhookHandler{
		subscriptionService: subscriptionService,
	}
}

// HandleStripeWebhook processes events pushed by Stripe. Once the signature
// checks out the response is always 200: Stripe retries on non-2xx, and a
// retry storm against a broken datastore helps nobody. Failed writes are
// logged and counted; the reconciler closes the gap on the next poll.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	const MaxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading webhook body: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	endpointSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if endpointSecret == "" {
		log.Println("STRIPE_WEBHOOK_SECRET is not set")
		respondWithError(w, http.StatusInternalServerError, "Configuration error")
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), endpointSecret)
	if err != nil {
		log.Printf("Webhook signature verification failed: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			log.Printf("Error parsing checkout.session.completed: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.handleCheckoutCompleted(ctx, &session)

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("Error parsing subscription event: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, err := h.subscriptionService.UpdateFromStripeSubscription(ctx, &sub); err != nil {
			h.recordFailure("customer.subscription.updated", err)
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("Error parsing subscription event: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, err := h.subscriptionService.ForceStatusBySubscriptionID(ctx, sub.ID, billing.StatusCancelled); err != nil {
			h.recordFailure("customer.subscription.deleted", err)
		}

	case "invoice.payment_failed":
		if subID := invoiceSubscriptionID(event.Data.Raw); subID != "" {
			if _, err := h.subscriptionService.ForceStatusBySubscriptionID(ctx, subID, billing.StatusCancelled); err != nil {
				h.recordFailure("invoice.payment_failed", err)
			}
		}

	case "invoice.payment_succeeded":
		if subID := invoiceSubscriptionID(event.Data.Raw); subID != "" {
			if _, err := h.subscriptionService.ForceStatusBySubscriptionID(ctx, subID, billing.StatusActive); err != nil {
				h.recordFailure("invoice.payment_succeeded", err)
			}
		}

	default:
		log.Printf("Unhandled Stripe event type: %s", event.Type)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received": true}`))
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) {
	userID := session.Metadata["user_id"]
	if userID == "" {
		// Checkout sessions we did not create carry no user mapping. Nothing
		// to do; the event is acknowledged regardless.
		log.Printf("checkout.session.completed %s has no user_id metadata, skipping", session.ID)
		return
	}

	subID := session.ID
	if session.Subscription != nil && session.Subscription.ID != "" {
		subID = session.Subscription.ID
	}

	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}

	if err := h.subscriptionService.HandleCheckoutCompleted(ctx, userID, subID, customerID); err != nil {
		h.recordFailure("checkout.session.completed", err)
	} else {
		log.Printf("Activated subscription %s for user %s", subID, userID)
	}
}

func (h *WebhookHandler) recordFailure(eventType string, err error) {
	log.Printf("Error handling %s: %v", eventType, err)
	middleware.CountWebhookFailure(eventType)
}

// invoiceSubscriptionID pulls the subscription reference off an invoice
// payload without depending on the rest of the invoice shape.
func invoiceSubscriptionID(raw json.RawMessage) string {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		log.Printf("Error parsing invoice event: %v", err)
		return ""
	}
	if invoice.Subscription == nil {
		return ""
	}
	return invoice.Subscription.ID
}
