// Package model defines the records shared by the cache, the resolution
// pipeline, and the exporters.
package model

import (
	"encoding/json"
	"fmt"
)

// Entity is a municipality as listed by the administrative registry.
type Entity struct {
	Name string `json:"name"`
	// ID is the 7-digit IBGE municipality code.
	ID int `json:"id"`
}

// RoadDistance is a cached route-leg result. A zero value is the unresolved
// marker: routing was attempted and failed. Absence from the route store means
// the leg was never attempted.
type RoadDistance struct {
	Km       float64
	Resolved bool
}

// ResolvedDistance returns a resolved road distance of km kilometers.
func ResolvedDistance(km float64) RoadDistance {
	return RoadDistance{Km: km, Resolved: true}
}

// MarshalJSON writes the distance as a number, or null when unresolved.
func (d RoadDistance) MarshalJSON() ([]byte, error) {
	if !d.Resolved {
		return []byte("null"), nil
	}
	return json.Marshal(d.Km)
}

// UnmarshalJSON accepts a number or null.
func (d *RoadDistance) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = RoadDistance{}
		return nil
	}
	var km float64
	if err := json.Unmarshal(data, &km); err != nil {
		return fmt.Errorf("decode road distance: %w", err)
	}
	*d = ResolvedDistance(km)
	return nil
}

// Row is one line of the output table. Nil fields are rendered blank.
type Row struct {
	Name       string
	ID         int
	Score      *float64
	GeodesicKm *float64
	RoadKm     *float64
}
