// README: Geographic helpers: haversine distance and straight-line segment estimates for the estimated method.
package location

import (
	"math"

	"github.com/shopspring/decimal"

	"freightquote/internal/modules/costing"
)

const earthRadiusKm = 6371.0

// Straight-line distances are stretched by roadFactor and driven at estimateSpeedKmh
// when a route is only estimated.
const (
	roadFactor       = 1.25
	estimateSpeedKmh = 65.0
)

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// EstimateSegment builds a single-country segment from a straight line between
// two points. Used for the "estimated" calculation method only.
func EstimateSegment(from, to Point, country string) costing.Segment {
	km := haversineKm(from.Lat, from.Lng, to.Lat, to.Lng) * roadFactor
	distance := decimal.NewFromFloat(km).Round(1)
	duration := decimal.NewFromFloat(km / estimateSpeedKmh).Round(2)
	return costing.Segment{
		Country:       country,
		DistanceKm:    distance,
		DurationHours: duration,
	}
}
