package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mealbridge/mealbridge/internal/repository"
)

// Store keeps the full data set behind one mutex. It backs the service when
// no database is configured and doubles as the deterministic fixture for
// concurrency tests: the conditional transitions below give the same
// check-and-set semantics as the SQL repos' conditional UPDATEs.
type Store struct {
	mu       sync.RWMutex
	listings map[string]*repository.Listing
	history  []*repository.HistoryEntry
	tasks    []*repository.OutboxTask
	path     string
}

type snapshot struct {
	Listings []*repository.Listing      `json:"listings"`
	History  []*repository.HistoryEntry `json:"history"`
}

func NewStore(snapshotPath string) *Store {
	return &Store{
		listings: make(map[string]*repository.Listing),
		path:     snapshotPath,
	}
}

// Load restores a previously saved snapshot. A missing file is not an error;
// the store simply starts empty.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = make(map[string]*repository.Listing, len(snap.Listings))
	for _, l := range snap.Listings {
		s.listings[l.ID] = l
	}
	s.history = snap.History
	return nil
}

func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	snap := snapshot{
		Listings: make([]*repository.Listing, 0, len(s.listings)),
		History:  s.history,
	}
	for _, l := range s.listings {
		cp := *l
		snap.Listings = append(snap.Listings, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(snap.Listings, func(i, j int) bool {
		return snap.Listings[i].CreatedAt.Before(snap.Listings[j].CreatedAt)
	})

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (s *Store) ListingRepo() *ListingRepo { return &ListingRepo{s: s} }
func (s *Store) HistoryRepo() *HistoryRepo { return &HistoryRepo{s: s} }
func (s *Store) OutboxRepo() *OutboxRepo   { return &OutboxRepo{s: s} }

type ListingRepo struct {
	s *Store
}

func (r *ListingRepo) Create(_ context.Context, listing *repository.Listing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.listings[listing.ID]; exists {
		return fmt.Errorf("listing %s already exists", listing.ID)
	}
	cp := *listing
	r.s.listings[listing.ID] = &cp
	return nil
}

func (r *ListingRepo) GetByID(_ context.Context, id string) (*repository.Listing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	listing, found := r.s.listings[id]
	if !found {
		return nil, repository.ErrObjectNotFound
	}
	cp := *listing
	return &cp, nil
}

func (r *ListingRepo) GetAll(_ context.Context) ([]*repository.Listing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*repository.Listing, 0, len(r.s.listings))
	for _, l := range r.s.listings {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *ListingRepo) GetByDonorID(_ context.Context, donorID string) ([]*repository.Listing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*repository.Listing
	for _, l := range r.s.listings {
		if l.DonorID == donorID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *ListingRepo) GetOpen(_ context.Context) ([]*repository.Listing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*repository.Listing
	for _, l := range r.s.listings {
		if l.State == "open" {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out, nil
}

func (r *ListingRepo) ClaimOpen(_ context.Context, id, claimantID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	listing, found := r.s.listings[id]
	if !found || listing.State != "open" {
		return false, nil
	}
	listing.State = "claimed"
	listing.ClaimedBy = &claimantID
	claimedAt := at
	listing.ClaimedAt = &claimedAt
	listing.UpdatedAt = at
	return true, nil
}

func (r *ListingRepo) MarkExpired(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	listing, found := r.s.listings[id]
	if !found || listing.State != "open" {
		return false, nil
	}
	listing.State = "expired"
	listing.UpdatedAt = at
	return true, nil
}

func (r *ListingRepo) WithdrawOpen(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	listing, found := r.s.listings[id]
	if !found || listing.State != "open" {
		return false, nil
	}
	listing.State = "withdrawn"
	listing.UpdatedAt = at
	return true, nil
}

type HistoryRepo struct {
	s *Store
}

func (r *HistoryRepo) Create(_ context.Context, entry *repository.HistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *entry
	cp.ID = int64(len(r.s.history) + 1)
	r.s.history = append(r.s.history, &cp)
	return nil
}

func (r *HistoryRepo) GetByListingID(_ context.Context, listingID string) ([]*repository.HistoryEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*repository.HistoryEntry
	for _, e := range r.s.history {
		if e.ListingID == listingID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type OutboxRepo struct {
	s *Store
}

func (r *OutboxRepo) Create(_ context.Context, task *repository.OutboxTask) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *task
	r.s.tasks = append(r.s.tasks, &cp)
	return nil
}

// Tasks returns the enqueued tasks, oldest first. Tests use it to observe
// emitted events; in-memory mode has no outbox poller.
func (r *OutboxRepo) Tasks() []*repository.OutboxTask {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*repository.OutboxTask, len(r.s.tasks))
	for i, t := range r.s.tasks {
		cp := *t
		out[i] = &cp
	}
	return out
}
