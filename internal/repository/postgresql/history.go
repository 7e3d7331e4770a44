package postgresql

import (
	"context"

	"github.com/mealbridge/mealbridge/internal/db"
	"github.com/mealbridge/mealbridge/internal/repository"
	"github.com/mealbridge/mealbridge/internal/storage"
)

type HistoryRepo struct {
	db db.DB
}

func NewHistoryRepo(db db.DB) storage.HistoryRepository {
	return &HistoryRepo{db: db}
}

func (r *HistoryRepo) Create(ctx context.Context, entry *repository.HistoryEntry) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO listing_history (listing_id, state, actor_id, changed_at)
        VALUES ($1, $2, $3, $4)
    `, entry.ListingID, entry.State, entry.ActorID, entry.ChangedAt)
	return err
}

func (r *HistoryRepo) GetByListingID(ctx context.Context, listingID string) ([]*repository.HistoryEntry, error) {
	var entries []*repository.HistoryEntry
	err := r.db.Select(ctx, &entries, `
        SELECT * FROM listing_history
        WHERE listing_id = $1
        ORDER BY changed_at ASC
    `, listingID)
	return entries, err
}
