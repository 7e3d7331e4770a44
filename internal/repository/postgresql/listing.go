package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/mealbridge/mealbridge/internal/db"
	"github.com/mealbridge/mealbridge/internal/repository"
	"github.com/mealbridge/mealbridge/internal/storage"
)

type ListingRepo struct {
	db db.DB
}

func NewListingRepo(db db.DB) storage.ListingRepository {
	return &ListingRepo{db: db}
}

func (r *ListingRepo) Create(ctx context.Context, listing *repository.Listing) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO listings (
            id, donor_id, dish_description, food_category, servings,
            prepared_at, ready_at, expires_at, address, latitude, longitude,
            state, claimed_by, claimed_at, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `, listing.ID, listing.DonorID, listing.DishDescription, listing.FoodCategory, listing.Servings,
		listing.PreparedAt, listing.ReadyAt, listing.ExpiresAt, listing.Address, listing.Latitude, listing.Longitude,
		listing.State, listing.ClaimedBy, listing.ClaimedAt, listing.CreatedAt, listing.UpdatedAt)
	return err
}

func (r *ListingRepo) GetByID(ctx context.Context, id string) (*repository.Listing, error) {
	var listing repository.Listing
	err := r.db.Get(ctx, &listing, "SELECT * FROM listings WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &listing, nil
}

func (r *ListingRepo) GetAll(ctx context.Context) ([]*repository.Listing, error) {
	var listings []*repository.Listing
	err := r.db.Select(ctx, &listings, "SELECT * FROM listings ORDER BY created_at DESC")
	return listings, err
}

func (r *ListingRepo) GetByDonorID(ctx context.Context, donorID string) ([]*repository.Listing, error) {
	var listings []*repository.Listing
	err := r.db.Select(ctx, &listings,
		"SELECT * FROM listings WHERE donor_id = $1 ORDER BY created_at DESC", donorID)
	return listings, err
}

func (r *ListingRepo) GetOpen(ctx context.Context) ([]*repository.Listing, error) {
	var listings []*repository.Listing
	err := r.db.Select(ctx, &listings,
		"SELECT * FROM listings WHERE state = 'open' ORDER BY expires_at ASC")
	return listings, err
}

// ClaimOpen is the atomic check-and-set behind the at-most-one-winner
// guarantee: the state predicate and the write are a single statement, so two
// concurrent claims can never both see RowsAffected = 1.
func (r *ListingRepo) ClaimOpen(ctx context.Context, id, claimantID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE listings
        SET state = 'claimed', claimed_by = $2, claimed_at = $3, updated_at = $3
        WHERE id = $1 AND state = 'open'
    `, id, claimantID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ListingRepo) MarkExpired(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE listings
        SET state = 'expired', updated_at = $2
        WHERE id = $1 AND state = 'open'
    `, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ListingRepo) WithdrawOpen(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE listings
        SET state = 'withdrawn', updated_at = $2
        WHERE id = $1 AND state = 'open'
    `, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
