package repository

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("not found")

type Listing struct {
	ID              string     `db:"id"`
	DonorID         string     `db:"donor_id"`
	DishDescription string     `db:"dish_description"`
	FoodCategory    string     `db:"food_category"`
	Servings        int        `db:"servings"`
	PreparedAt      *time.Time `db:"prepared_at"`
	ReadyAt         time.Time  `db:"ready_at"`
	ExpiresAt       time.Time  `db:"expires_at"`
	Address         string     `db:"address"`
	Latitude        float64    `db:"latitude"`
	Longitude       float64    `db:"longitude"`
	State           string     `db:"state"`
	ClaimedBy       *string    `db:"claimed_by"`
	ClaimedAt       *time.Time `db:"claimed_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

type HistoryEntry struct {
	ID        int64     `db:"id"`
	ListingID string    `db:"listing_id"`
	State     string    `db:"state"`
	ActorID   string    `db:"actor_id"`
	ChangedAt time.Time `db:"changed_at"`
}

type User struct {
	Username  string    `db:"username"`
	Password  string    `db:"password"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
}

type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusFailed     TaskStatus = "FAILED"
)

type OutboxTask struct {
	ID          uuid.UUID       `db:"id"`
	Status      TaskStatus      `db:"status"`
	Payload     json.RawMessage `db:"payload"`
	Topic       string          `db:"topic"`
	Attempts    int             `db:"attempts"`
	LastError   *string         `db:"last_error"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at"`
}
