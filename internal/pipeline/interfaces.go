package pipeline

import (
	"context"
	"time"

	"github.com/JakeFAU/municipal-distances/internal/geo"
	"github.com/JakeFAU/municipal-distances/internal/model"
)

// Registry lists the municipalities of the configured state.
type Registry interface {
	Municipalities(ctx context.Context) ([]model.Entity, error)
}

// ScoreSource fetches the development-score table keyed by display name.
type ScoreSource interface {
	Scores(ctx context.Context) (map[string]float64, error)
}

// Geocoder resolves a free-text query to at most one coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (geo.Coordinate, bool, error)
}

// Router computes a driving route. ok is false when the service answered but
// produced no usable distance.
type Router interface {
	Route(ctx context.Context, origin, dest geo.Coordinate) (meters float64, ok bool, err error)
}

// Pacer spaces out calls to an external service.
type Pacer interface {
	Wait(ctx context.Context, service string) error
}

// Sources groups the external collaborators consumed by the Resolver.
type Sources struct {
	Registry Registry
	Scores   ScoreSource
	Geocoder Geocoder
	Router   Router
}

// Service names used for pacing, metrics, and progress events.
const (
	ServiceRegistry = "registry"
	ServiceScores   = "scores"
	ServiceGeocoder = "geocoder"
	ServiceRouter   = "router"
)

// Clock supplies the current time for call latencies.
type Clock interface {
	Now() time.Time
}
