package storage

import "time"

type State string

const (
	StateOpen      State = "open"
	StateClaimed   State = "claimed"
	StateExpired   State = "expired"
	StateWithdrawn State = "withdrawn"
)

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == StateClaimed || s == StateExpired || s == StateWithdrawn
}

type FoodCategory string

const (
	CategoryVegetarian    FoodCategory = "vegetarian"
	CategoryNonVegetarian FoodCategory = "non-vegetarian"
	CategoryMixed         FoodCategory = "mixed"
	CategoryDessert       FoodCategory = "dessert"
)

func (c FoodCategory) Valid() bool {
	switch c {
	case CategoryVegetarian, CategoryNonVegetarian, CategoryMixed, CategoryDessert:
		return true
	}
	return false
}

type Role string

const (
	RoleDonor    Role = "donor"
	RoleReceiver Role = "receiver"
	RoleAdmin    Role = "admin"
)

// Actor is the identity the surrounding session collaborator resolved for a
// request. The core trusts it and performs no authentication of its own.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Listing struct {
	ID              string       `json:"id"`
	DonorID         string       `json:"donor_id"`
	DishDescription string       `json:"dish_description"`
	FoodCategory    FoodCategory `json:"food_category"`
	Servings        int          `json:"servings"`
	PreparedAt      *time.Time   `json:"prepared_at,omitempty"`
	ReadyAt         time.Time    `json:"ready_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
	Address         string       `json:"address"`
	Location        Coordinate   `json:"location"`
	State           State        `json:"state"`
	ClaimedBy       *string      `json:"claimed_by,omitempty"`
	ClaimedAt       *time.Time   `json:"claimed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type HistoryEntry struct {
	ListingID string    `json:"listing_id"`
	State     State     `json:"state"`
	ActorID   string    `json:"actor_id,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// ViewerQuery is the ephemeral input of a discovery call. It is never
// persisted; results are recomputed per query.
type ViewerQuery struct {
	Viewer     Actor
	Location   Coordinate
	Category   FoodCategory // empty means all categories
	UrgentOnly bool
}
