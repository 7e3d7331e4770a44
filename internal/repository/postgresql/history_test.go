package postgresql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_database "github.com/mealbridge/mealbridge/internal/db/mocks"
	"github.com/mealbridge/mealbridge/internal/repository"
	"github.com/mealbridge/mealbridge/internal/repository/postgresql"
)

func TestHistoryRepo_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewHistoryRepo(mockDB)

		entry := &repository.HistoryEntry{
			ListingID: "listing-123",
			State:     "open",
			ActorID:   "donor-456",
			ChangedAt: now,
		}

		mockDB.EXPECT().Exec(
			gomock.Any(),
			gomock.Any(),
			gomock.Eq(entry.ListingID),
			gomock.Eq(entry.State),
			gomock.Eq(entry.ActorID),
			gomock.Eq(entry.ChangedAt),
		).Return(nil, nil)

		err := repo.Create(ctx, entry)
		assert.NoError(t, err)
	})

	t.Run("database error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewHistoryRepo(mockDB)

		expectedErr := errors.New("database error")
		mockDB.EXPECT().
			Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, expectedErr)

		err := repo.Create(ctx, &repository.HistoryEntry{ListingID: "listing-123"})
		assert.Equal(t, expectedErr, err)
	})
}

func TestHistoryRepo_GetByListingID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgresql.NewHistoryRepo(mockDB)

	expected := []*repository.HistoryEntry{
		{ID: 1, ListingID: "listing-123", State: "open", ActorID: "donor-456", ChangedAt: now},
		{ID: 2, ListingID: "listing-123", State: "claimed", ActorID: "receiver-1", ChangedAt: now.Add(time.Hour)},
	}

	mockDB.EXPECT().
		Select(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("listing-123")).
		DoAndReturn(func(_ context.Context, dest interface{}, _ string, _ ...interface{}) error {
			*dest.(*[]*repository.HistoryEntry) = expected
			return nil
		})

	entries, err := repo.GetByListingID(ctx, "listing-123")
	require.NoError(t, err)
	assert.Equal(t, expected, entries)
}
