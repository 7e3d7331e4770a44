package claim

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mealbridge/mealbridge/internal/metrics"
	"github.com/mealbridge/mealbridge/internal/storage"
)

type ListingClaimer interface {
	ClaimListing(ctx context.Context, id, claimantID string) (*storage.Listing, error)
}

// Coordinator fronts the claim transition. The store's check-and-set does the
// heavy lifting; the coordinator gates the actor, counts outcomes and keeps
// the AlreadyUnavailable distinction intact for the caller.
type Coordinator struct {
	store  ListingClaimer
	logger *zap.Logger
}

func NewCoordinator(store ListingClaimer, logger *zap.Logger) *Coordinator {
	return &Coordinator{store: store, logger: logger}
}

func (c *Coordinator) Claim(ctx context.Context, listingID string, claimant storage.Actor) (*storage.Listing, error) {
	if claimant.Role != storage.RoleReceiver && claimant.Role != storage.RoleAdmin {
		metrics.OperationErrorsTotal.WithLabelValues("claim").Inc()
		return nil, fmt.Errorf("role %q cannot claim listings", claimant.Role)
	}

	listing, err := c.store.ClaimListing(ctx, listingID, claimant.ID)
	if err != nil {
		var unavailable *storage.AlreadyUnavailableError
		if errors.As(err, &unavailable) {
			metrics.ClaimConflictsTotal.Inc()
			c.logger.Info("claim lost",
				zap.String("listing_id", listingID),
				zap.String("claimant_id", claimant.ID),
				zap.String("observed_state", string(unavailable.State)))
			return nil, err
		}
		if !errors.Is(err, storage.ErrNotFound) {
			metrics.OperationErrorsTotal.WithLabelValues("claim").Inc()
		}
		return nil, err
	}

	c.logger.Info("listing claimed",
		zap.String("listing_id", listingID),
		zap.String("claimant_id", claimant.ID),
		zap.String("donor_id", listing.DonorID))
	return listing, nil
}
