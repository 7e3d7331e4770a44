package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ListingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mealbridge_listings_created_total",
		Help: "Total number of food listings successfully created.",
	})

	ListingsClaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mealbridge_listings_claimed_total",
		Help: "Total number of listings successfully claimed by receivers.",
	})

	ClaimConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mealbridge_claim_conflicts_total",
		Help: "Total number of claim attempts that lost to an earlier claim, expiry or withdrawal.",
	})

	ListingsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mealbridge_listings_expired_total",
		Help: "Total number of listings transitioned to expired on read.",
	})

	ListingsWithdrawnTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mealbridge_listings_withdrawn_total",
		Help: "Total number of listings withdrawn by donors or admins.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealbridge_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	OpenListingCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mealbridge_open_listing_cache_items",
		Help: "Current number of open listings held in the cache.",
	})
)
