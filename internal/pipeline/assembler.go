package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/municipal-distances/internal/geo"
	"github.com/JakeFAU/municipal-distances/internal/model"
	"github.com/JakeFAU/municipal-distances/internal/normalize"
	"github.com/JakeFAU/municipal-distances/internal/progress"
)

// Options tunes a full build.
type Options struct {
	// SkipRoutes leaves road distances blank and never calls the router.
	SkipRoutes bool
}

// Table is the assembled dataset.
type Table struct {
	// ReferenceCity names the origin of the distance columns.
	ReferenceCity string
	// Rows are ordered by normalized municipality name.
	Rows []model.Row
	// Partial marks tables derived from the caches alone.
	Partial bool
}

// Assembler turns resolved values into the ordered output table.
type Assembler struct {
	resolver *Resolver
}

// NewAssembler wraps resolver.
func NewAssembler(resolver *Resolver) *Assembler {
	return &Assembler{resolver: resolver}
}

// Build runs the full pipeline: entity list, score table, reference city,
// then one coordinate and one route leg per municipality. Only the three
// precondition lookups can fail the run; per-municipality failures leave
// blank cells.
func (a *Assembler) Build(ctx context.Context, opts Options) (Table, error) {
	return a.run(ctx, "build", func(ctx context.Context) (Table, error) {
		return a.build(ctx, opts)
	})
}

// Rebuild assembles the table from the caches without contacting any
// external service.
func (a *Assembler) Rebuild(ctx context.Context) (Table, error) {
	return a.run(ctx, "rebuild", a.rebuild)
}

func (a *Assembler) run(ctx context.Context, mode string, fn func(context.Context) (Table, error)) (Table, error) {
	r := a.resolver
	start := r.clock.Now()
	r.events.Emit(progress.Event{Stage: progress.StageRunStart, Note: mode})
	table, err := fn(ctx)
	dur := r.clock.Now().Sub(start)
	if dur < 0 {
		dur = 0
	}
	if err != nil {
		r.events.Emit(progress.Event{Stage: progress.StageRunError, Dur: dur, Note: err.Error()})
		return Table{}, err
	}
	r.events.Emit(progress.Event{Stage: progress.StageRunDone, Dur: dur, Note: mode})
	r.logger.Info("dataset assembled",
		zap.String("mode", mode),
		zap.Int("rows", len(table.Rows)),
		zap.Duration("elapsed", dur),
	)
	return table, nil
}

func (a *Assembler) build(ctx context.Context, opts Options) (Table, error) {
	r := a.resolver
	entities, err := r.Entities(ctx)
	if err != nil {
		return Table{}, err
	}
	scores, err := r.Scores(ctx)
	if err != nil {
		return Table{}, err
	}
	ref, err := r.ReferenceCoordinate(ctx)
	if err != nil {
		return Table{}, err
	}

	rows := make([]model.Row, 0, len(entities))
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return Table{}, fmt.Errorf("build interrupted: %w", err)
		}
		row := newRow(e, scores)
		c, ok, err := r.Coordinate(ctx, e.Name)
		if err != nil {
			return Table{}, err
		}
		if ok {
			row.GeodesicKm = kmPtr(geo.Geodesic(ref, c))
			if !opts.SkipRoutes {
				d, err := r.RoadDistance(ctx, ref, c)
				if err != nil {
					return Table{}, err
				}
				if d.Resolved {
					row.RoadKm = kmPtr(d.Km)
				}
			}
		}
		a.rowDone(row, !opts.SkipRoutes)
		rows = append(rows, row)
	}
	return Table{ReferenceCity: r.cfg.ReferenceCity, Rows: rows}, nil
}

func (a *Assembler) rebuild(_ context.Context) (Table, error) {
	r := a.resolver
	if !r.stores.HasEntities() {
		return Table{}, ErrNoEntities
	}
	snapshot := r.stores.Entities.Snapshot()
	entities := make([]model.Entity, 0, len(snapshot))
	for _, e := range snapshot {
		entities = append(entities, e)
	}
	SortEntities(entities)
	scores := r.stores.Scores.Snapshot()

	ref, hasRef := r.stores.Coordinates.Get(normalize.Key(r.cfg.ReferenceCity))
	if !hasRef {
		r.logger.Warn("reference city not cached; distances left blank",
			zap.String("reference", r.cfg.ReferenceCity))
	}

	rows := make([]model.Row, 0, len(entities))
	for _, e := range entities {
		row := newRow(e, scores)
		if c, ok := r.stores.Coordinates.Get(normalize.Key(e.Name)); ok && hasRef {
			row.GeodesicKm = kmPtr(geo.Geodesic(ref, c))
			if d, ok := r.stores.Routes.Get(geo.RouteKey(ref, c)); ok && d.Resolved {
				row.RoadKm = kmPtr(d.Km)
			}
		}
		a.rowDone(row, true)
		rows = append(rows, row)
	}
	return Table{ReferenceCity: r.cfg.ReferenceCity, Rows: rows, Partial: true}, nil
}

func (a *Assembler) rowDone(row model.Row, wantRoute bool) {
	outcome := progress.OutcomeOK
	if row.GeodesicKm == nil || (wantRoute && row.RoadKm == nil) {
		outcome = progress.OutcomeUnresolved
	}
	a.resolver.events.Emit(progress.Event{
		Stage:   progress.StageRowDone,
		Entity:  row.Name,
		Outcome: outcome,
	})
}

func newRow(e model.Entity, scores map[string]float64) model.Row {
	row := model.Row{Name: e.Name, ID: e.ID}
	if s, ok := scores[normalize.Key(e.Name)]; ok {
		row.Score = &s
	}
	return row
}

func kmPtr(km float64) *float64 {
	v := geo.Round1(km)
	return &v
}
