package usage

import "moodboardAPI/internal/billing"

// Request is the body of the image-usage endpoint. Action is either "check"
// or "increment".
type Request struct {
	UserID string `json:"userId"`
	Action string `json:"action"`
}

// Snapshot is the read-only view returned by a check call.
type Snapshot struct {
	Tier            billing.Tier   `json:"subscriptionTier"`
	Status          billing.Status `json:"subscriptionStatus"`
	ImagesUsed      int            `json:"imagesUsed"`
	ImagesLimit     int            `json:"imagesLimit"`
	RemainingImages int            `json:"remainingImages"`
	CanGenerate     bool           `json:"canGenerate"`
	WasReset        bool           `json:"wasReset"`
}

// IncrementResponse is returned after a successful increment.
type IncrementResponse struct {
	Success         bool   `json:"success"`
	ImagesUsed      int    `json:"imagesUsed"`
	ImagesLimit     int    `json:"imagesLimit"`
	RemainingImages int    `json:"remainingImages"`
	Message         string `json:"message"`
}
