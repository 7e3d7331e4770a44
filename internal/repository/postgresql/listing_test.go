package postgresql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_database "github.com/mealbridge/mealbridge/internal/db/mocks"
	"github.com/mealbridge/mealbridge/internal/repository"
	"github.com/mealbridge/mealbridge/internal/repository/postgresql"
)

func testListing(now time.Time) *repository.Listing {
	return &repository.Listing{
		ID:              "listing-123",
		DonorID:         "donor-456",
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

func TestListingRepo_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewListingRepo(mockDB)

		listing := testListing(now)
		mockDB.EXPECT().Exec(
			gomock.Any(),
			gomock.Any(),
			gomock.Eq(listing.ID),
			gomock.Eq(listing.DonorID),
			gomock.Eq(listing.DishDescription),
			gomock.Eq(listing.FoodCategory),
			gomock.Eq(listing.Servings),
			gomock.Eq(listing.PreparedAt),
			gomock.Eq(listing.ReadyAt),
			gomock.Eq(listing.ExpiresAt),
			gomock.Eq(listing.Address),
			gomock.Eq(listing.Latitude),
			gomock.Eq(listing.Longitude),
			gomock.Eq(listing.State),
			gomock.Eq(listing.ClaimedBy),
			gomock.Eq(listing.ClaimedAt),
			gomock.Eq(listing.CreatedAt),
			gomock.Eq(listing.UpdatedAt),
		).Return(nil, nil)

		err := repo.Create(ctx, listing)
		assert.NoError(t, err)
	})

	t.Run("database error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewListingRepo(mockDB)

		expectedErr := errors.New("database error")
		mockDB.EXPECT().Exec(
			gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
		).Return(nil, expectedErr)

		err := repo.Create(ctx, testListing(now))
		assert.Equal(t, expectedErr, err)
	})
}

func TestListingRepo_GetByID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("listing found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewListingRepo(mockDB)

		expected := testListing(now)
		mockDB.EXPECT().
			Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("listing-123")).
			DoAndReturn(func(_ context.Context, dest interface{}, _ string, _ ...interface{}) error {
				*dest.(*repository.Listing) = *expected
				return nil
			})

		listing, err := repo.GetByID(ctx, "listing-123")
		require.NoError(t, err)
		assert.Equal(t, expected, listing)
	})

	t.Run("listing not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewListingRepo(mockDB)

		mockDB.EXPECT().
			Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("missing")).
			Return(pgx.ErrNoRows)

		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	})
}

func TestListingRepo_ClaimOpen(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("claim wins", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewListingRepo(mockDB)

		mockDB.EXPECT().
			Exec(gomock.Any(), gomock.Any(), gomock.Eq("listing-123"), gomock.Eq("receiver-1"), gomock.Eq(now)).
			Return(pgconn.CommandTag("UPDATE 1"), nil)

		won, err := repo.ClaimOpen(ctx, "listing-123", "receiver-1", now)
		require.NoError(t, err)
		assert.True(t, won)
	})

	t.Run("claim loses when listing is no longer open", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewListingRepo(mockDB)

		mockDB.EXPECT().
			Exec(gomock.Any(), gomock.Any(), gomock.Eq("listing-123"), gomock.Eq("receiver-2"), gomock.Eq(now)).
			Return(pgconn.CommandTag("UPDATE 0"), nil)

		won, err := repo.ClaimOpen(ctx, "listing-123", "receiver-2", now)
		require.NoError(t, err)
		assert.False(t, won)
	})

	t.Run("database error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewListingRepo(mockDB)

		expectedErr := errors.New("database error")
		mockDB.EXPECT().
			Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, expectedErr)

		_, err := repo.ClaimOpen(ctx, "listing-123", "receiver-1", now)
		assert.ErrorIs(t, err, expectedErr)
	})
}

func TestListingRepo_MarkExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgresql.NewListingRepo(mockDB)

	mockDB.EXPECT().
		Exec(gomock.Any(), gomock.Any(), gomock.Eq("listing-123"), gomock.Eq(now)).
		Return(pgconn.CommandTag("UPDATE 1"), nil)

	ok, err := repo.MarkExpired(ctx, "listing-123", now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListingRepo_WithdrawOpen(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgresql.NewListingRepo(mockDB)

	mockDB.EXPECT().
		Exec(gomock.Any(), gomock.Any(), gomock.Eq("listing-123"), gomock.Eq(now)).
		Return(pgconn.CommandTag("UPDATE 0"), nil)

	ok, err := repo.WithdrawOpen(ctx, "listing-123", now)
	require.NoError(t, err)
	assert.False(t, ok)
}
