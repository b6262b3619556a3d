// Package geo holds the coordinate type and the pure distance helpers used by
// the resolution pipeline.
package geo

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0088

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// MarshalJSON encodes the coordinate as a two-element [lat, lon] array.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lat, c.Lon})
}

// UnmarshalJSON decodes a [lat, lon] array.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode coordinate: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode coordinate: expected 2 values, got %d", len(pair))
	}
	c.Lat, c.Lon = pair[0], pair[1]
	return nil
}

// String renders the coordinate at route-key precision.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Geodesic returns the haversine great-circle distance between a and b in
// kilometers.
func Geodesic(a, b Coordinate) float64 {
	from := s2.LatLngFromDegrees(a.Lat, a.Lon)
	to := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return from.Distance(to).Radians() * EarthRadiusKm
}

// RouteKey builds the composite cache key for a route leg. Both endpoints are
// fixed at 6 decimal places, so any change to either coordinate yields a new key.
func RouteKey(origin, dest Coordinate) string {
	return origin.String() + "->" + dest.String()
}

// Round1 rounds km to one decimal place for presentation.
func Round1(km float64) float64 {
	return math.Round(km*10) / 10
}
