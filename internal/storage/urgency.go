package storage

import "time"

type Urgency string

const (
	UrgencyExpired Urgency = "expired"
	UrgencyHigh    Urgency = "high"
	UrgencyMedium  Urgency = "medium"
	UrgencyLow     Urgency = "low"
)

// ClassifyUrgency derives the urgency tier from the time remaining until
// expiry. It is recomputed on every read: urgency is time-relative and must
// never be cached beyond a single query response.
func ClassifyUrgency(expiresAt, now time.Time) Urgency {
	remaining := expiresAt.Sub(now)
	switch {
	case remaining <= 0:
		return UrgencyExpired
	case remaining <= 60*time.Minute:
		return UrgencyHigh
	case remaining <= 180*time.Minute:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
