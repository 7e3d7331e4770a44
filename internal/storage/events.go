package storage

import "time"

const (
	ListingEventsTopic = "listing_events"
	ClaimEventsTopic   = "claim_events"
)

type ListingCreatedEvent struct {
	ListingID    string       `json:"listing_id"`
	DonorID      string       `json:"donor_id"`
	FoodCategory FoodCategory `json:"food_category"`
	Servings     int          `json:"servings"`
	ExpiresAt    time.Time    `json:"expires_at"`
	CreatedAt    time.Time    `json:"created_at"`
}

type ListingClaimedEvent struct {
	ListingID  string    `json:"listing_id"`
	DonorID    string    `json:"donor_id"`
	ClaimantID string    `json:"claimant_id"`
	ClaimedAt  time.Time `json:"claimed_at"`
}
