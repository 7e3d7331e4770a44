package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mealbridge/mealbridge/internal/storage"
)

type ListingSource interface {
	ListListings(ctx context.Context) ([]storage.Listing, error)
}

// Result is a read-only projection of a listing for one viewer at one moment.
// It is never persisted; distance and urgency are recomputed per query.
type Result struct {
	storage.Listing
	DistanceKm  float64         `json:"distance_km"`
	Distance    string          `json:"distance"`
	UrgencyTier storage.Urgency `json:"urgency_tier"`
	TimeLeft    string          `json:"time_left"`
}

// Engine filters and ranks open listings for a viewer. It holds no state and
// takes no locks; a claim landing mid-scan just means the next query sees it.
type Engine struct {
	source ListingSource
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Engine)

func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(source ListingSource, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Discover(ctx context.Context, query storage.ViewerQuery) ([]Result, error) {
	if err := storage.ValidateCoordinate(query.Location); err != nil {
		return nil, err
	}

	// The store read triggers passive expiry, so anything still "open" here
	// really was open at read time.
	listings, err := e.source.ListListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read listings: %w", err)
	}

	now := e.now()
	results := make([]Result, 0, len(listings))
	for _, listing := range listings {
		if listing.State != storage.StateOpen {
			continue
		}
		if query.Category != "" && listing.FoodCategory != query.Category {
			continue
		}

		urgency := storage.ClassifyUrgency(listing.ExpiresAt, now)
		if query.UrgentOnly && urgency != storage.UrgencyHigh {
			continue
		}

		distance, err := storage.DistanceKm(query.Location, listing.Location)
		if err != nil {
			// A stored listing with a bad coordinate should never exist;
			// skip it rather than fail the whole feed.
			e.logger.Warn("skipping listing with invalid coordinate",
				zap.String("listing_id", listing.ID), zap.Error(err))
			continue
		}

		results = append(results, Result{
			Listing:     listing,
			DistanceKm:  distance,
			Distance:    storage.FormatDistance(distance),
			UrgencyTier: urgency,
			TimeLeft:    storage.FormatTimeLeft(listing.ExpiresAt, now),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].ExpiresAt.Before(results[j].ExpiresAt)
	})

	return results, nil
}
