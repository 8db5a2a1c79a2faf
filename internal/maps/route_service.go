package maps

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"googlemaps.github.io/maps"

	"freightquote/internal/modules/costing"
)

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// step is one driving instruction attributed to the country it ends in.
type step struct {
	country  string
	meters   int
	duration time.Duration
}

// RouteSegments drives origin -> destination and splits the route into
// consecutive per-country segments by reverse geocoding each step end point.
func (s *RouteService) RouteSegments(ctx context.Context, origin, destination string) ([]costing.Segment, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        maps.TravelModeDriving,
		Units:       maps.UnitsMetric,
		Language:    "en",
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, fmt.Errorf("no route found")
	}

	countries := make(map[[2]int]string)
	var steps []step
	for _, leg := range routes[0].Legs {
		for _, st := range leg.Steps {
			country, err := s.countryAt(ctx, st.EndLocation, countries)
			if err != nil {
				return nil, err
			}
			steps = append(steps, step{country: country, meters: st.Distance.Meters, duration: st.Duration})
		}
	}
	return groupSteps(steps), nil
}

// countryAt reverse geocodes ll to an ISO country code, memoizing on a ~10km grid.
func (s *RouteService) countryAt(ctx context.Context, ll maps.LatLng, memo map[[2]int]string) (string, error) {
	cell := [2]int{int(math.Round(ll.Lat * 10)), int(math.Round(ll.Lng * 10))}
	if c, ok := memo[cell]; ok {
		return c, nil
	}
	results, err := s.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:     &ll,
		ResultType: []string{"country"},
	})
	if err != nil {
		return "", fmt.Errorf("reverse geocode %s: %w", ll.String(), err)
	}
	for _, res := range results {
		for _, comp := range res.AddressComponents {
			for _, t := range comp.Types {
				if t == "country" {
					memo[cell] = comp.ShortName
					return comp.ShortName, nil
				}
			}
		}
	}
	return "", fmt.Errorf("no country found at %s", ll.String())
}

// groupSteps merges consecutive steps in the same country into one segment.
func groupSteps(steps []step) []costing.Segment {
	var (
		out      []costing.Segment
		meters   int
		duration time.Duration
	)
	flush := func(country string) {
		out = append(out, costing.Segment{
			Country:       country,
			DistanceKm:    decimal.New(int64(meters), -3),
			DurationHours: decimal.NewFromFloat(duration.Hours()).Round(4),
		})
		meters, duration = 0, 0
	}
	for i, st := range steps {
		if i > 0 && st.country != steps[i-1].country {
			flush(steps[i-1].country)
		}
		meters += st.meters
		duration += st.duration
	}
	if len(steps) > 0 {
		flush(steps[len(steps)-1].country)
	}
	return out
}
