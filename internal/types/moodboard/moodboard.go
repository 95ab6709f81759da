package moodboard

import "time"

// Moodboard is one generated design board.
type Moodboard struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"userId" db:"user_id"`
	RoomType    string    `json:"roomType" db:"room_type"`
	Style       string    `json:"style" db:"style"`
	Palette     string    `json:"palette" db:"palette"`
	Description string    `json:"description" db:"description"`
	ImageURL    string    `json:"imageUrl" db:"image_url"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// GenerateRequest is the questionnaire the SPA submits.
type GenerateRequest struct {
	RoomType string `json:"roomType"`
	Style    string `json:"style"`
	Palette  string `json:"palette"`
	Budget   string `json:"budget"`
	Notes    string `json:"notes"`
}

// GenerateResponse returns the new board plus the usage counters after the
// quota was consumed, so the UI can update its gauge without a second call.
type GenerateResponse struct {
	Moodboard       *Moodboard `json:"moodboard"`
	ImagesUsed      int        `json:"imagesUsed"`
	RemainingImages int        `json:"remainingImages"`
}
