package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mealbridge/mealbridge/internal/metrics"
	"github.com/mealbridge/mealbridge/internal/repository"
)

type ListingRepository interface {
	Create(ctx context.Context, listing *repository.Listing) error
	GetByID(ctx context.Context, id string) (*repository.Listing, error)
	GetAll(ctx context.Context) ([]*repository.Listing, error)
	GetByDonorID(ctx context.Context, donorID string) ([]*repository.Listing, error)
	GetOpen(ctx context.Context) ([]*repository.Listing, error)

	// Conditional single-record transitions. Each returns false when the
	// listing was no longer open at the moment of the write, which is the
	// compare-and-set discipline the claim guarantee rests on.
	ClaimOpen(ctx context.Context, id, claimantID string, at time.Time) (bool, error)
	MarkExpired(ctx context.Context, id string, at time.Time) (bool, error)
	WithdrawOpen(ctx context.Context, id string, at time.Time) (bool, error)
}

type HistoryRepository interface {
	Create(ctx context.Context, entry *repository.HistoryEntry) error
	GetByListingID(ctx context.Context, listingID string) ([]*repository.HistoryEntry, error)
}

type OutboxTaskRepository interface {
	Create(ctx context.Context, task *repository.OutboxTask) error
}

type ListingCache interface {
	Set(listing *repository.Listing)
	Delete(id string)
}

// Store is the single owner of the canonical listing set. Every state
// mutation funnels through it.
type Store struct {
	listingRepo ListingRepository
	historyRepo HistoryRepository
	outboxRepo  OutboxTaskRepository
	cache       ListingCache
	logger      *zap.Logger
	now         func() time.Time
}

type Option func(*Store)

// WithNowFunc replaces the store clock, primarily for time-travel in tests.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(
	listingRepo ListingRepository,
	historyRepo HistoryRepository,
	outboxRepo OutboxTaskRepository,
	cache ListingCache,
	logger *zap.Logger,
	opts ...Option,
) *Store {
	s := &Store{
		listingRepo: listingRepo,
		historyRepo: historyRepo,
		outboxRepo:  outboxRepo,
		cache:       cache,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) validateDraft(l *Listing) error {
	verr := &ValidationError{}

	if l.DonorID == "" {
		verr.add("donor_id", "required")
	}
	if l.DishDescription == "" {
		verr.add("dish_description", "required")
	}
	if !l.FoodCategory.Valid() {
		verr.add("food_category", fmt.Sprintf("unknown category %q", l.FoodCategory))
	}
	if l.Servings < 1 {
		verr.add("servings", "must be at least 1")
	}
	if l.ReadyAt.IsZero() {
		verr.add("ready_at", "required")
	}
	if l.ExpiresAt.IsZero() {
		// No silent defaulting: a missing expiry could mask an unsafe-food
		// assumption, so the donor must either supply one or ask the
		// predictor explicitly.
		verr.add("expires_at", "required; request a suggestion if unsure")
	} else if !l.ExpiresAt.After(l.ReadyAt) {
		verr.add("expires_at", "must be after ready_at")
	}
	if l.Address == "" {
		verr.add("address", "required")
	}
	if err := ValidateCoordinate(l.Location); err != nil {
		verr.add("location", err.Error())
	}

	return verr.orNil()
}

func (s *Store) AddListing(ctx context.Context, draft Listing) (*Listing, error) {
	if err := s.validateDraft(&draft); err != nil {
		return nil, err
	}

	now := s.now()
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	draft.State = StateOpen
	draft.ClaimedBy = nil
	draft.ClaimedAt = nil
	draft.CreatedAt = now
	draft.UpdatedAt = now

	repoListing := toRepoListing(&draft)
	if err := s.listingRepo.Create(ctx, repoListing); err != nil {
		return nil, fmt.Errorf("failed to add listing: %w", err)
	}

	s.recordHistory(ctx, draft.ID, StateOpen, draft.DonorID, now)
	s.emitEvent(ctx, ListingEventsTopic, ListingCreatedEvent{
		ListingID:    draft.ID,
		DonorID:      draft.DonorID,
		FoodCategory: draft.FoodCategory,
		Servings:     draft.Servings,
		ExpiresAt:    draft.ExpiresAt,
		CreatedAt:    now,
	})
	if s.cache != nil {
		s.cache.Set(repoListing)
	}
	metrics.ListingsCreatedTotal.Inc()

	return &draft, nil
}

func (s *Store) GetListing(ctx context.Context, id string) (*Listing, error) {
	repoListing, err := s.listingRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	s.applyPassiveExpiry(ctx, repoListing)
	return fromRepoListing(repoListing), nil
}

func (s *Store) ListListings(ctx context.Context) ([]Listing, error) {
	repoListings, err := s.listingRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}

	listings := make([]Listing, len(repoListings))
	for i, rl := range repoListings {
		s.applyPassiveExpiry(ctx, rl)
		listings[i] = *fromRepoListing(rl)
	}
	return listings, nil
}

func (s *Store) DonorListings(ctx context.Context, donorID string) ([]Listing, error) {
	repoListings, err := s.listingRepo.GetByDonorID(ctx, donorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get donor listings: %w", err)
	}

	listings := make([]Listing, len(repoListings))
	for i, rl := range repoListings {
		s.applyPassiveExpiry(ctx, rl)
		listings[i] = *fromRepoListing(rl)
	}
	return listings, nil
}

// ClaimListing executes the open -> claimed transition as an atomic
// check-and-set. Under concurrent attempts exactly one caller wins; every
// other caller gets AlreadyUnavailableError carrying the state it lost to.
func (s *Store) ClaimListing(ctx context.Context, id, claimantID string) (*Listing, error) {
	repoListing, err := s.listingRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	s.applyPassiveExpiry(ctx, repoListing)
	if State(repoListing.State) != StateOpen {
		return nil, &AlreadyUnavailableError{State: State(repoListing.State)}
	}

	now := s.now()
	won, err := s.listingRepo.ClaimOpen(ctx, id, claimantID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim listing: %w", err)
	}
	if !won {
		// Lost the race between our read and the write. Re-read so the
		// caller learns the actual terminal state.
		current, rerr := s.listingRepo.GetByID(ctx, id)
		if rerr != nil {
			return nil, &AlreadyUnavailableError{State: StateClaimed}
		}
		return nil, &AlreadyUnavailableError{State: State(current.State)}
	}

	repoListing.State = string(StateClaimed)
	repoListing.ClaimedBy = &claimantID
	repoListing.ClaimedAt = &now
	repoListing.UpdatedAt = now

	s.recordHistory(ctx, id, StateClaimed, claimantID, now)
	s.emitEvent(ctx, ClaimEventsTopic, ListingClaimedEvent{
		ListingID:  id,
		DonorID:    repoListing.DonorID,
		ClaimantID: claimantID,
		ClaimedAt:  now,
	})
	if s.cache != nil {
		s.cache.Delete(id)
	}
	metrics.ListingsClaimedTotal.Inc()

	return fromRepoListing(repoListing), nil
}

// WithdrawListing cancels an open listing. Only the owning donor or an admin
// may withdraw.
func (s *Store) WithdrawListing(ctx context.Context, id string, actor Actor) (*Listing, error) {
	repoListing, err := s.listingRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	if actor.Role != RoleAdmin && repoListing.DonorID != actor.ID {
		return nil, fmt.Errorf("actor %s does not own listing %s", actor.ID, id)
	}

	s.applyPassiveExpiry(ctx, repoListing)
	if state := State(repoListing.State); state != StateOpen {
		return nil, &InvalidTransitionError{From: state, To: StateWithdrawn}
	}

	now := s.now()
	ok, err := s.listingRepo.WithdrawOpen(ctx, id, now)
	if err != nil {
		return nil, fmt.Errorf("failed to withdraw listing: %w", err)
	}
	if !ok {
		current, rerr := s.listingRepo.GetByID(ctx, id)
		if rerr != nil {
			return nil, &InvalidTransitionError{From: StateClaimed, To: StateWithdrawn}
		}
		return nil, &InvalidTransitionError{From: State(current.State), To: StateWithdrawn}
	}

	repoListing.State = string(StateWithdrawn)
	repoListing.UpdatedAt = now

	s.recordHistory(ctx, id, StateWithdrawn, actor.ID, now)
	if s.cache != nil {
		s.cache.Delete(id)
	}
	metrics.ListingsWithdrawnTotal.Inc()

	return fromRepoListing(repoListing), nil
}

func (s *Store) ListingHistory(ctx context.Context, id string) ([]HistoryEntry, error) {
	repoEntries, err := s.historyRepo.GetByListingID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing history: %w", err)
	}

	entries := make([]HistoryEntry, len(repoEntries))
	for i, re := range repoEntries {
		entries[i] = HistoryEntry{
			ListingID: re.ListingID,
			State:     State(re.State),
			ActorID:   re.ActorID,
			ChangedAt: re.ChangedAt,
		}
	}
	return entries, nil
}

// applyPassiveExpiry transitions an open listing past its expiry to expired
// as a side effect of the read. The write-back is best effort: an open
// listing past expiry that nobody has read yet is a valid, if stale, state.
func (s *Store) applyPassiveExpiry(ctx context.Context, l *repository.Listing) {
	if State(l.State) != StateOpen {
		return
	}
	now := s.now()
	if !now.After(l.ExpiresAt) {
		return
	}

	ok, err := s.listingRepo.MarkExpired(ctx, l.ID, now)
	if err != nil {
		s.logger.Warn("passive expiry write-back failed",
			zap.String("listing_id", l.ID), zap.Error(err))
	} else if ok {
		s.recordHistory(ctx, l.ID, StateExpired, "", now)
		metrics.ListingsExpiredTotal.Inc()
	}

	// Whatever happened to the write-back, the read must not surface an
	// open listing past its expiry.
	l.State = string(StateExpired)
	l.UpdatedAt = now
	if s.cache != nil {
		s.cache.Delete(l.ID)
	}
}

func (s *Store) recordHistory(ctx context.Context, listingID string, state State, actorID string, at time.Time) {
	entry := &repository.HistoryEntry{
		ListingID: listingID,
		State:     string(state),
		ActorID:   actorID,
		ChangedAt: at,
	}
	if err := s.historyRepo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record history entry",
			zap.String("listing_id", listingID), zap.String("state", string(state)), zap.Error(err))
	}
}

func (s *Store) emitEvent(ctx context.Context, topic string, event interface{}) {
	if s.outboxRepo == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal event", zap.String("topic", topic), zap.Error(err))
		return
	}
	task := &repository.OutboxTask{
		ID:      uuid.New(),
		Status:  repository.TaskStatusCreated,
		Payload: payload,
		Topic:   topic,
	}
	if err := s.outboxRepo.Create(ctx, task); err != nil {
		// The state transition is already durable; event delivery must not
		// roll it back.
		s.logger.Error("failed to enqueue outbox task", zap.String("topic", topic), zap.Error(err))
	}
}

func toRepoListing(l *Listing) *repository.Listing {
	return &repository.Listing{
		ID:              l.ID,
		DonorID:         l.DonorID,
		DishDescription: l.DishDescription,
		FoodCategory:    string(l.FoodCategory),
		Servings:        l.Servings,
		PreparedAt:      l.PreparedAt,
		ReadyAt:         l.ReadyAt,
		ExpiresAt:       l.ExpiresAt,
		Address:         l.Address,
		Latitude:        l.Location.Lat,
		Longitude:       l.Location.Lon,
		State:           string(l.State),
		ClaimedBy:       l.ClaimedBy,
		ClaimedAt:       l.ClaimedAt,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func fromRepoListing(rl *repository.Listing) *Listing {
	return &Listing{
		ID:              rl.ID,
		DonorID:         rl.DonorID,
		DishDescription: rl.DishDescription,
		FoodCategory:    FoodCategory(rl.FoodCategory),
		Servings:        rl.Servings,
		PreparedAt:      rl.PreparedAt,
		ReadyAt:         rl.ReadyAt,
		ExpiresAt:       rl.ExpiresAt,
		Address:         rl.Address,
		Location:        Coordinate{Lat: rl.Latitude, Lon: rl.Longitude},
		State:           State(rl.State),
		ClaimedBy:       rl.ClaimedBy,
		ClaimedAt:       rl.ClaimedAt,
		CreatedAt:       rl.CreatedAt,
		UpdatedAt:       rl.UpdatedAt,
	}
}
