package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/municipal-distances/internal/cache"
	"github.com/JakeFAU/municipal-distances/internal/geo"
	"github.com/JakeFAU/municipal-distances/internal/metrics"
	"github.com/JakeFAU/municipal-distances/internal/model"
	"github.com/JakeFAU/municipal-distances/internal/normalize"
	"github.com/JakeFAU/municipal-distances/internal/progress"
)

// Store names used for cache metrics.
const (
	storeEntities    = "entities"
	storeScores      = "scores"
	storeCoordinates = "coordinates"
	storeRoutes      = "routes"
)

// Config describes the region being resolved.
type Config struct {
	// Region is the state name substituted for {region} in geocoder queries.
	Region string
	// Country is substituted for {country}.
	Country string
	// ReferenceCity is the origin of every distance.
	ReferenceCity string
	// Strategies are tried in order for each coordinate lookup.
	Strategies []Strategy
}

// Resolver answers every lookup from the cache first and falls back to the
// external sources, committing each fetched value before returning it.
type Resolver struct {
	stores  cache.Stores
	sources Sources
	pacer   Pacer
	clock   Clock
	events  progress.Emitter
	cfg     Config
	logger  *zap.Logger
}

// NewResolver wires a Resolver. Nil pacer, events, or logger fall back to
// no-op implementations.
func NewResolver(
	stores cache.Stores,
	sources Sources,
	pacer Pacer,
	clock Clock,
	events progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Resolver {
	if pacer == nil {
		pacer = noPacer{}
	}
	if clock == nil {
		clock = wallClock{}
	}
	if events == nil {
		events = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies()
	}
	return &Resolver{
		stores:  stores,
		sources: sources,
		pacer:   pacer,
		clock:   clock,
		events:  events,
		cfg:     cfg,
		logger:  logger,
	}
}

// Entities returns the municipality list ordered by normalized name. The
// registry is only contacted when nothing is cached.
func (r *Resolver) Entities(ctx context.Context) ([]model.Entity, error) {
	if cached := r.stores.Entities.Snapshot(); len(cached) > 0 {
		metrics.ObserveCacheLookup(storeEntities, true)
		list := make([]model.Entity, 0, len(cached))
		for _, e := range cached {
			list = append(list, e)
		}
		return SortEntities(list), nil
	}
	metrics.ObserveCacheLookup(storeEntities, false)

	if r.sources.Registry == nil {
		return nil, fmt.Errorf("%w: no registry configured", ErrEntitiesUnavailable)
	}
	if err := r.pacer.Wait(ctx, ServiceRegistry); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEntitiesUnavailable, err)
	}
	start := r.clock.Now()
	list, err := r.sources.Registry.Municipalities(ctx)
	if err == nil && len(list) == 0 {
		err = errors.New("registry returned no municipalities")
	}
	r.observeCall(ServiceRegistry, "", start, outcomeOf(true, err))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEntitiesUnavailable, err)
	}

	records := make(map[string]model.Entity, len(list))
	for _, e := range list {
		records[strconv.Itoa(e.ID)] = e
	}
	if err := r.stores.Entities.PutAll(records); err != nil {
		return nil, fmt.Errorf("cache municipalities: %w", err)
	}
	r.logger.Info("municipality list fetched", zap.Int("count", len(records)))
	return SortEntities(list), nil
}

// Scores returns the development scores keyed by normalized name. The table
// is fetched and cached as a unit.
func (r *Resolver) Scores(ctx context.Context) (map[string]float64, error) {
	if r.stores.Scores.Len() > 0 {
		metrics.ObserveCacheLookup(storeScores, true)
		return r.stores.Scores.Snapshot(), nil
	}
	metrics.ObserveCacheLookup(storeScores, false)

	if r.sources.Scores == nil {
		return nil, fmt.Errorf("%w: no score source configured", ErrScoresUnavailable)
	}
	if err := r.pacer.Wait(ctx, ServiceScores); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScoresUnavailable, err)
	}
	start := r.clock.Now()
	raw, err := r.sources.Scores.Scores(ctx)
	if err == nil && len(raw) == 0 {
		err = errors.New("no score column detected")
	}
	r.observeCall(ServiceScores, "", start, outcomeOf(true, err))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScoresUnavailable, err)
	}

	scores := make(map[string]float64, len(raw))
	for name, score := range raw {
		scores[normalize.Key(name)] = score
	}
	if err := r.stores.Scores.PutAll(scores); err != nil {
		return nil, fmt.Errorf("cache scores: %w", err)
	}
	r.logger.Info("score table fetched", zap.Int("count", len(scores)))
	return scores, nil
}

// Coordinate resolves name to a coordinate. ok is false when every strategy
// came back empty; such failures are not cached and are retried next run. The
// returned error is reserved for cancellation and cache write failures.
func (r *Resolver) Coordinate(ctx context.Context, name string) (geo.Coordinate, bool, error) {
	key := normalize.Key(name)
	if c, ok := r.stores.Coordinates.Get(key); ok {
		metrics.ObserveCacheLookup(storeCoordinates, true)
		return c, true, nil
	}
	metrics.ObserveCacheLookup(storeCoordinates, false)
	if r.sources.Geocoder == nil {
		return geo.Coordinate{}, false, nil
	}

	logger := r.logger.With(zap.String("municipio", name), zap.String("key", key))
	for _, strategy := range r.cfg.Strategies {
		query := strategy.Query(name, r.cfg.Region, r.cfg.Country)
		if err := r.pacer.Wait(ctx, ServiceGeocoder); err != nil {
			return geo.Coordinate{}, false, fmt.Errorf("geocode %s: %w", name, err)
		}
		start := r.clock.Now()
		c, found, err := r.sources.Geocoder.Geocode(ctx, query)
		r.observeCall(ServiceGeocoder, name, start, outcomeOf(found, err))
		if err != nil {
			if ctx.Err() != nil {
				return geo.Coordinate{}, false, fmt.Errorf("geocode %s: %w", name, ctx.Err())
			}
			logger.Warn("geocoder request failed",
				zap.String("strategy", strategy.Name),
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}
		if !found {
			logger.Debug("geocoder returned no result",
				zap.String("strategy", strategy.Name),
				zap.String("query", query),
			)
			continue
		}
		if err := r.stores.Coordinates.Put(key, c); err != nil {
			return c, true, fmt.Errorf("cache coordinate %s: %w", key, err)
		}
		logger.Debug("coordinate resolved", zap.String("strategy", strategy.Name), zap.Stringer("coordinate", c))
		return c, true, nil
	}
	logger.Warn("coordinate unresolved")
	return geo.Coordinate{}, false, nil
}

// ReferenceCoordinate resolves the configured reference city. Failure is fatal
// for the run.
func (r *Resolver) ReferenceCoordinate(ctx context.Context) (geo.Coordinate, error) {
	c, ok, err := r.Coordinate(ctx, r.cfg.ReferenceCity)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: %w", ErrReferenceUnavailable, err)
	}
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("%w: %s", ErrReferenceUnavailable, r.cfg.ReferenceCity)
	}
	return c, nil
}

// RoadDistance resolves the driving distance between origin and dest. Failed
// legs are cached as unresolved and never retried while that entry exists.
// The returned error is reserved for cancellation and cache write failures.
func (r *Resolver) RoadDistance(ctx context.Context, origin, dest geo.Coordinate) (model.RoadDistance, error) {
	key := geo.RouteKey(origin, dest)
	if d, ok := r.stores.Routes.Get(key); ok {
		metrics.ObserveCacheLookup(storeRoutes, true)
		return d, nil
	}
	metrics.ObserveCacheLookup(storeRoutes, false)
	if r.sources.Router == nil {
		return model.RoadDistance{}, nil
	}

	if err := r.pacer.Wait(ctx, ServiceRouter); err != nil {
		return model.RoadDistance{}, fmt.Errorf("route %s: %w", key, err)
	}
	start := r.clock.Now()
	meters, ok, err := r.sources.Router.Route(ctx, origin, dest)
	r.observeCall(ServiceRouter, key, start, outcomeOf(ok, err))
	if err != nil && ctx.Err() != nil {
		return model.RoadDistance{}, fmt.Errorf("route %s: %w", key, ctx.Err())
	}

	var d model.RoadDistance
	switch {
	case err != nil:
		r.logger.Warn("router request failed", zap.String("key", key), zap.Error(err))
	case !ok:
		r.logger.Warn("route unresolved", zap.String("key", key))
	default:
		d = model.ResolvedDistance(meters / 1000)
	}
	if err := r.stores.Routes.Put(key, d); err != nil {
		return d, fmt.Errorf("cache route %s: %w", key, err)
	}
	return d, nil
}

func (r *Resolver) observeCall(service, entity string, start time.Time, outcome progress.Outcome) {
	dur := r.clock.Now().Sub(start)
	if dur < 0 {
		dur = 0
	}
	metrics.ObserveExternalCall(service, string(outcome), dur)
	r.events.Emit(progress.Event{
		Stage:   progress.StageCallDone,
		Service: service,
		Entity:  entity,
		Outcome: outcome,
		Dur:     dur,
	})
}

func outcomeOf(found bool, err error) progress.Outcome {
	switch {
	case err != nil:
		return progress.OutcomeError
	case !found:
		return progress.OutcomeUnresolved
	default:
		return progress.OutcomeOK
	}
}

// SortEntities orders list by normalized name, then by code, in place.
func SortEntities(list []model.Entity) []model.Entity {
	slices.SortFunc(list, func(a, b model.Entity) int {
		return cmp.Or(
			cmp.Compare(normalize.Key(a.Name), normalize.Key(b.Name)),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return list
}

type noPacer struct{}

func (noPacer) Wait(ctx context.Context, _ string) error { return ctx.Err() }

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
