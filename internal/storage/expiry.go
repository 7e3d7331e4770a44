package storage

import "time"

const (
	nonVegSafetyWindow  = 4 * time.Hour
	defaultSafetyWindow = 8 * time.Hour
)

// PredictExpiry suggests a default expiry for a category. Non-vegetarian food
// gets the shorter safety window. This is only a suggestion: a donor-supplied
// expiry always takes precedence and the predictor is never invoked silently.
func PredictExpiry(category FoodCategory, now time.Time) time.Time {
	if category == CategoryNonVegetarian {
		return now.Add(nonVegSafetyWindow)
	}
	return now.Add(defaultSafetyWindow)
}
