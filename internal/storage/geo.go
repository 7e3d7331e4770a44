package storage

import (
	"fmt"
	"math"
	"time"
)

const earthRadiusKm = 6371.0

func ValidateCoordinate(c Coordinate) error {
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return &InvalidCoordinateError{Lat: c.Lat, Lon: c.Lon}
	}
	return nil
}

// DistanceKm computes the great-circle distance between two coordinates via
// the haversine formula.
func DistanceKm(a, b Coordinate) (float64, error) {
	if err := ValidateCoordinate(a); err != nil {
		return 0, err
	}
	if err := ValidateCoordinate(b); err != nil {
		return 0, err
	}

	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h)), nil
}

func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f km", km)
}

func FormatTimeLeft(expiresAt, now time.Time) string {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return "expired"
	}
	hours := int(remaining / time.Hour)
	minutes := int(remaining%time.Hour) / int(time.Minute)
	if hours == 0 {
		return fmt.Sprintf("%dm left", minutes)
	}
	return fmt.Sprintf("%dh %dm left", hours, minutes)
}
