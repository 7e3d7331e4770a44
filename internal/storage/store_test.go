package storage_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mealbridge/mealbridge/internal/repository/inmemory"
	"github.com/mealbridge/mealbridge/internal/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, clock *testClock) (*storage.Store, *inmemory.Store) {
	t.Helper()
	mem := inmemory.NewStore("")
	s := storage.NewStore(mem.ListingRepo(), mem.HistoryRepo(), mem.OutboxRepo(), nil, zap.NewNop(),
		storage.WithNowFunc(clock.Now))
	return s, mem
}

func validDraft(clock *testClock) storage.Listing {
	now := clock.Now()
	return storage.Listing{
		DonorID:         "donor-1",
		DishDescription: "vegetable biryani",
		FoodCategory:    storage.CategoryVegetarian,
		Servings:        4,
		ReadyAt:         now,
		ExpiresAt:       now.Add(8 * time.Hour),
		Address:         "12 Main St",
		Location:        storage.Coordinate{Lat: 55.7558, Lon: 37.6173},
	}
}

func TestAddListing(t *testing.T) {
	ctx := context.Background()

	t.Run("success opens the listing", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		listing, err := store.AddListing(ctx, validDraft(clock))
		require.NoError(t, err)

		assert.NotEmpty(t, listing.ID)
		assert.Equal(t, storage.StateOpen, listing.State)
		assert.Nil(t, listing.ClaimedBy)
		assert.Equal(t, clock.Now(), listing.CreatedAt)

		got, err := store.GetListing(ctx, listing.ID)
		require.NoError(t, err)
		assert.Equal(t, storage.StateOpen, got.State)
	})

	t.Run("missing expiry is rejected, not defaulted", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		draft := validDraft(clock)
		draft.ExpiresAt = time.Time{}

		_, err := store.AddListing(ctx, draft)
		var verr *storage.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Len(t, verr.Fields, 1)
		assert.Equal(t, "expires_at", verr.Fields[0].Field)
	})

	t.Run("expiry before ready time is rejected", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		draft := validDraft(clock)
		draft.ExpiresAt = draft.ReadyAt.Add(-time.Minute)

		_, err := store.AddListing(ctx, draft)
		var verr *storage.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "expires_at", verr.Fields[0].Field)
	})

	t.Run("all violations reported at once", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		_, err := store.AddListing(ctx, storage.Listing{Location: storage.Coordinate{Lat: 200}})
		var verr *storage.ValidationError
		require.ErrorAs(t, err, &verr)

		fields := make(map[string]bool)
		for _, f := range verr.Fields {
			fields[f.Field] = true
		}
		for _, want := range []string{"donor_id", "dish_description", "food_category", "servings", "ready_at", "expires_at", "address", "location"} {
			assert.True(t, fields[want], "expected violation on %s", want)
		}
	})

	t.Run("unknown category rejected", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		draft := validDraft(clock)
		draft.FoodCategory = "frozen"

		_, err := store.AddListing(ctx, draft)
		var verr *storage.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "food_category", verr.Fields[0].Field)
	})
}

func TestPassiveExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store, _ := newTestStore(t, clock)

	listing, err := store.AddListing(ctx, validDraft(clock))
	require.NoError(t, err)

	// Still comfortably before expiry.
	clock.Advance(7*time.Hour + 30*time.Minute)
	got, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StateOpen, got.State)

	// Past expiry: the read itself flips the state.
	clock.Advance(31 * time.Minute)
	got, err = store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StateExpired, got.State)

	// The transition was written back, not just projected.
	history, err := store.ListingHistory(ctx, listing.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, storage.StateOpen, history[0].State)
	assert.Equal(t, storage.StateExpired, history[1].State)

	// A claim after expiry reports what actually happened.
	_, err = store.ClaimListing(ctx, listing.ID, "receiver-1")
	var unavailable *storage.AlreadyUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, storage.StateExpired, unavailable.State)
}

func TestClaimListing(t *testing.T) {
	ctx := context.Background()

	t.Run("success records claimant and time", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		listing, err := store.AddListing(ctx, validDraft(clock))
		require.NoError(t, err)

		clock.Advance(time.Hour)
		claimed, err := store.ClaimListing(ctx, listing.ID, "receiver-1")
		require.NoError(t, err)

		assert.Equal(t, storage.StateClaimed, claimed.State)
		require.NotNil(t, claimed.ClaimedBy)
		assert.Equal(t, "receiver-1", *claimed.ClaimedBy)
		require.NotNil(t, claimed.ClaimedAt)
		assert.Equal(t, clock.Now(), *claimed.ClaimedAt)
	})

	t.Run("unknown listing", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		_, err := store.ClaimListing(ctx, "no-such-listing", "receiver-1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("second claim loses with the observed state", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		listing, err := store.AddListing(ctx, validDraft(clock))
		require.NoError(t, err)

		_, err = store.ClaimListing(ctx, listing.ID, "receiver-1")
		require.NoError(t, err)

		_, err = store.ClaimListing(ctx, listing.ID, "receiver-2")
		var unavailable *storage.AlreadyUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, storage.StateClaimed, unavailable.State)
	})

	t.Run("concurrent claims have exactly one winner", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		listing, err := store.AddListing(ctx, validDraft(clock))
		require.NoError(t, err)

		const attempts = 32
		var wg sync.WaitGroup
		errs := make([]error, attempts)

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = store.ClaimListing(ctx, listing.ID, "receiver-"+string(rune('a'+i%26)))
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
				continue
			}
			var unavailable *storage.AlreadyUnavailableError
			require.ErrorAs(t, err, &unavailable)
			assert.Equal(t, storage.StateClaimed, unavailable.State)
		}
		assert.Equal(t, 1, winners)

		got, err := store.GetListing(ctx, listing.ID)
		require.NoError(t, err)
		assert.Equal(t, storage.StateClaimed, got.State)
		assert.NotNil(t, got.ClaimedBy)
	})
}

func TestWithdrawListing(t *testing.T) {
	ctx := context.Background()

	t.Run("owning donor withdraws", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		listing, err := store.AddListing(ctx, validDraft(clock))
		require.NoError(t, err)

		withdrawn, err := store.WithdrawListing(ctx, listing.ID, storage.Actor{ID: "donor-1", Role: storage.RoleDonor})
		require.NoError(t, err)
		assert.Equal(t, storage.StateWithdrawn, withdrawn.State)
	})

	t.Run("admin may withdraw any listing", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		listing, err := store.AddListing(ctx, validDraft(clock))
		require.NoError(t, err)

		_, err = store.WithdrawListing(ctx, listing.ID, storage.Actor{ID: "ops", Role: storage.RoleAdmin})
		assert.NoError(t, err)
	})

	t.Run("non-owner is refused", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		listing, err := store.AddListing(ctx, validDraft(clock))
		require.NoError(t, err)

		_, err = store.WithdrawListing(ctx, listing.ID, storage.Actor{ID: "donor-2", Role: storage.RoleDonor})
		require.Error(t, err)

		got, err := store.GetListing(ctx, listing.ID)
		require.NoError(t, err)
		assert.Equal(t, storage.StateOpen, got.State)
	})

	t.Run("terminal state cannot be withdrawn", func(t *testing.T) {
		clock := newTestClock()
		store, _ := newTestStore(t, clock)

		listing, err := store.AddListing(ctx, validDraft(clock))
		require.NoError(t, err)

		_, err = store.ClaimListing(ctx, listing.ID, "receiver-1")
		require.NoError(t, err)

		_, err = store.WithdrawListing(ctx, listing.ID, storage.Actor{ID: "donor-1", Role: storage.RoleDonor})
		var transition *storage.InvalidTransitionError
		require.ErrorAs(t, err, &transition)
		assert.Equal(t, storage.StateClaimed, transition.From)
		assert.Equal(t, storage.StateWithdrawn, transition.To)
	})
}

func TestListingHistory(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store, _ := newTestStore(t, clock)

	listing, err := store.AddListing(ctx, validDraft(clock))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = store.ClaimListing(ctx, listing.ID, "receiver-1")
	require.NoError(t, err)

	history, err := store.ListingHistory(ctx, listing.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, storage.StateOpen, history[0].State)
	assert.Equal(t, "donor-1", history[0].ActorID)
	assert.Equal(t, storage.StateClaimed, history[1].State)
	assert.Equal(t, "receiver-1", history[1].ActorID)
	assert.True(t, history[0].ChangedAt.Before(history[1].ChangedAt))
}

func TestEventsReachTheOutbox(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store, mem := newTestStore(t, clock)

	listing, err := store.AddListing(ctx, validDraft(clock))
	require.NoError(t, err)
	_, err = store.ClaimListing(ctx, listing.ID, "receiver-1")
	require.NoError(t, err)

	tasks := mem.OutboxRepo().Tasks()
	require.Len(t, tasks, 2)

	assert.Equal(t, storage.ListingEventsTopic, tasks[0].Topic)
	var created storage.ListingCreatedEvent
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &created))
	assert.Equal(t, listing.ID, created.ListingID)
	assert.Equal(t, "donor-1", created.DonorID)

	assert.Equal(t, storage.ClaimEventsTopic, tasks[1].Topic)
	var claimedEvent storage.ListingClaimedEvent
	require.NoError(t, json.Unmarshal(tasks[1].Payload, &claimedEvent))
	assert.Equal(t, listing.ID, claimedEvent.ListingID)
	assert.Equal(t, "receiver-1", claimedEvent.ClaimantID)
}
