package inmemory_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealbridge/mealbridge/internal/repository"
	"github.com/mealbridge/mealbridge/internal/repository/inmemory"
)

func openListing(id string, now time.Time) *repository.Listing {
	return &repository.Listing{
		ID:              id,
		DonorID:         "donor-1",
		DishDescription: "vegetable biryani",
		FoodCategory:    "vegetarian",
		Servings:        4,
		ReadyAt:         now,
		ExpiresAt:       now.Add(8 * time.Hour),
		Address:         "12 Main St",
		Latitude:        55.7558,
		Longitude:       37.6173,
		State:           "open",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestListingRepo_CRUD(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := inmemory.NewStore("")
	repo := store.ListingRepo()

	require.NoError(t, repo.Create(ctx, openListing("listing-1", now)))

	t.Run("duplicate id rejected", func(t *testing.T) {
		assert.Error(t, repo.Create(ctx, openListing("listing-1", now)))
	})

	t.Run("get by id returns a copy", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "listing-1")
		require.NoError(t, err)

		got.State = "withdrawn"
		again, err := repo.GetByID(ctx, "listing-1")
		require.NoError(t, err)
		assert.Equal(t, "open", again.State)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "no-such-listing")
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	})

	t.Run("get open sorts by expiry", func(t *testing.T) {
		later := openListing("listing-2", now.Add(time.Minute))
		later.ExpiresAt = now.Add(12 * time.Hour)
		require.NoError(t, repo.Create(ctx, later))

		open, err := repo.GetOpen(ctx)
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, "listing-1", open[0].ID)
		assert.Equal(t, "listing-2", open[1].ID)
	})
}

func TestListingRepo_ConditionalTransitions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("claim only succeeds once", func(t *testing.T) {
		store := inmemory.NewStore("")
		repo := store.ListingRepo()
		require.NoError(t, repo.Create(ctx, openListing("listing-1", now)))

		won, err := repo.ClaimOpen(ctx, "listing-1", "receiver-1", now)
		require.NoError(t, err)
		assert.True(t, won)

		won, err = repo.ClaimOpen(ctx, "listing-1", "receiver-2", now)
		require.NoError(t, err)
		assert.False(t, won)

		got, err := repo.GetByID(ctx, "listing-1")
		require.NoError(t, err)
		assert.Equal(t, "claimed", got.State)
		require.NotNil(t, got.ClaimedBy)
		assert.Equal(t, "receiver-1", *got.ClaimedBy)
	})

	t.Run("expire only flips open listings", func(t *testing.T) {
		store := inmemory.NewStore("")
		repo := store.ListingRepo()
		require.NoError(t, repo.Create(ctx, openListing("listing-1", now)))

		won, err := repo.ClaimOpen(ctx, "listing-1", "receiver-1", now)
		require.NoError(t, err)
		require.True(t, won)

		ok, err := repo.MarkExpired(ctx, "listing-1", now)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("withdraw unknown listing", func(t *testing.T) {
		store := inmemory.NewStore("")
		ok, err := store.ListingRepo().WithdrawOpen(ctx, "no-such-listing", now)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "snapshot.json")

	store := inmemory.NewStore(path)
	repo := store.ListingRepo()
	require.NoError(t, repo.Create(ctx, openListing("listing-1", now)))
	require.NoError(t, store.HistoryRepo().Create(ctx, &repository.HistoryEntry{
		ListingID: "listing-1",
		State:     "open",
		ActorID:   "donor-1",
		ChangedAt: now,
	}))
	require.NoError(t, store.Save())

	restored := inmemory.NewStore(path)
	require.NoError(t, restored.Load())

	got, err := restored.ListingRepo().GetByID(ctx, "listing-1")
	require.NoError(t, err)
	assert.Equal(t, "open", got.State)
	assert.Equal(t, "donor-1", got.DonorID)

	history, err := restored.HistoryRepo().GetByListingID(ctx, "listing-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "open", history[0].State)
}

func TestLoadMissingSnapshotIsNotAnError(t *testing.T) {
	store := inmemory.NewStore(filepath.Join(t.TempDir(), "absent.json"))
	assert.NoError(t, store.Load())
}
