// Package app initializes and holds the long-lived services of one run, acting
// as a dependency injection container between the CLI and the pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcsapi "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/municipal-distances/internal/cache"
	"github.com/JakeFAU/municipal-distances/internal/clock/system"
	"github.com/JakeFAU/municipal-distances/internal/config"
	"github.com/JakeFAU/municipal-distances/internal/export"
	collyfetcher "github.com/JakeFAU/municipal-distances/internal/fetcher/colly"
	iduuid "github.com/JakeFAU/municipal-distances/internal/id/uuid"
	"github.com/JakeFAU/municipal-distances/internal/metrics"
	"github.com/JakeFAU/municipal-distances/internal/pipeline"
	"github.com/JakeFAU/municipal-distances/internal/policy/ratelimit"
	"github.com/JakeFAU/municipal-distances/internal/progress"
	"github.com/JakeFAU/municipal-distances/internal/progress/sinks"
	pubsubpub "github.com/JakeFAU/municipal-distances/internal/publisher/pubsub"
	"github.com/JakeFAU/municipal-distances/internal/source/ibge"
	"github.com/JakeFAU/municipal-distances/internal/source/nominatim"
	"github.com/JakeFAU/municipal-distances/internal/source/osrm"
	"github.com/JakeFAU/municipal-distances/internal/source/wikipedia"
	"github.com/JakeFAU/municipal-distances/internal/storage/gcs"
	"github.com/JakeFAU/municipal-distances/internal/storage/postgres"
)

// Export sink names used for metrics.
const (
	sinkFile     = "file"
	sinkPostgres = "postgres"
	sinkGCS      = "gcs"
	sinkPubSub   = "pubsub"
)

// DatasetSink mirrors a finished table into a database.
type DatasetSink interface {
	EnsureSchema(ctx context.Context) error
	SaveTable(ctx context.Context, runID uuid.UUID, at time.Time, table pipeline.Table) (int, error)
	Close()
}

// Uploader publishes a written export file.
type Uploader interface {
	UploadFile(ctx context.Context, fs afero.Fs, localPath, runID string) (string, error)
}

// Notifier announces a finished export to downstream consumers.
type Notifier interface {
	Publish(ctx context.Context, key string, payload any) (string, error)
	Close() error
}

// Notification is the message body sent after an export.
type Notification struct {
	RunID         string `json:"run_id"`
	Path          string `json:"path"`
	ObjectURI     string `json:"object_uri,omitempty"`
	Rows          int    `json:"rows"`
	Partial       bool   `json:"partial"`
	ReferenceCity string `json:"reference_city"`
}

// Options overrides the collaborators New would otherwise build from config.
// Zero values mean "build from config".
type Options struct {
	FS       afero.Fs
	Sources  *pipeline.Sources
	Pacer    pipeline.Pacer
	Clock    pipeline.Clock
	Dataset  DatasetSink
	Uploader Uploader
	Notifier Notifier
}

// Result describes one finished export.
type Result struct {
	RunID     uuid.UUID
	Path      string
	Rows      int
	Partial   bool
	ObjectURI string
}

// App holds the services shared by the build and rebuild commands.
type App struct {
	cfg       config.Config
	fs        afero.Fs
	logger    *zap.Logger
	clock     pipeline.Clock
	runID     uuid.UUID
	hub       *progress.Hub
	registry  *prometheus.Registry
	assembler *pipeline.Assembler
	dataset   DatasetSink
	uploader  Uploader
	notifier  Notifier
	gcsClient *gcsapi.Client
}

// New wires caches, sources, pacing, progress reporting and export sinks.
// It fails fast when a configured sink cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		fs:       opts.FS,
		logger:   logger,
		clock:    opts.Clock,
		dataset:  opts.Dataset,
		uploader: opts.Uploader,
		notifier: opts.Notifier,
		registry: prometheus.NewRegistry(),
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.clock == nil {
		a.clock = system.New()
	}

	runID, err := iduuid.New().NewRunID()
	if err != nil {
		return nil, err
	}
	a.runID = runID
	a.logger = logger.With(zap.String("run_id", runID.String()))

	stores, err := cache.Open(a.fs, cfg.Cache.Dir, a.logger.Named("cache"))
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: a.logger.Named("progress")},
		sinks.NewLogSink(a.logger.Named("progress")),
		promSink,
	)
	events := progress.Stamp(a.hub, runID, a.clock)

	sources := opts.Sources
	if sources == nil {
		sources = a.buildSources()
	}
	pacer := opts.Pacer
	if pacer == nil {
		pacer = ratelimit.New(ratelimit.Config{Intervals: cfg.Intervals()})
	}

	resolver := pipeline.NewResolver(stores, *sources, pacer, a.clock, events, cfg.Resolver(), a.logger.Named("resolver"))
	a.assembler = pipeline.NewAssembler(resolver)

	if err := a.initSinks(ctx); err != nil {
		a.closeHub(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) buildSources() *pipeline.Sources {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.Timeout(),
	})
	return &pipeline.Sources{
		Registry: ibge.New(fetcher, a.cfg.Sources.RegistryURL, a.cfg.Region.StateCode),
		Scores:   wikipedia.New(fetcher, a.cfg.Sources.ScoreURL),
		Geocoder: nominatim.New(fetcher, a.cfg.Sources.GeocoderURL),
		Router:   osrm.New(fetcher, a.cfg.Sources.RouterURL),
	}
}

func (a *App) initSinks(ctx context.Context) error {
	if a.dataset == nil && a.cfg.Export.Postgres.DSN != "" {
		store, err := postgres.NewDatasetStore(ctx, postgres.DatasetStoreConfig{
			DSN:   a.cfg.Export.Postgres.DSN,
			Table: a.cfg.Export.Postgres.Table,
		})
		if err != nil {
			return fmt.Errorf("init dataset store: %w", err)
		}
		a.dataset = store
		a.logger.Info("postgres export enabled", zap.String("table", a.cfg.Export.Postgres.Table))
	}
	if a.uploader == nil && a.cfg.Export.GCS.Bucket != "" {
		client, err := gcsapi.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Export.GCS.Bucket, Prefix: a.cfg.Export.GCS.Prefix})
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("init gcs uploader: %w", err)
		}
		a.gcsClient = client
		a.uploader = store
		a.logger.Info("gcs export enabled", zap.String("bucket", a.cfg.Export.GCS.Bucket))
	}
	if a.notifier == nil && a.cfg.Export.PubSub.Topic != "" {
		pub, err := pubsubpub.Open(ctx, a.cfg.Export.PubSub.ProjectID, a.cfg.Export.PubSub.Topic)
		if err != nil {
			if a.gcsClient != nil {
				_ = a.gcsClient.Close()
			}
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.notifier = pub
		a.logger.Info("pubsub notification enabled", zap.String("topic", a.cfg.Export.PubSub.Topic))
	}
	return nil
}

// RunID identifies this run in logs, progress events and the dataset table.
func (a *App) RunID() uuid.UUID {
	return a.runID
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Build runs the full pipeline and exports the table to out, or to the
// configured output path when out is empty.
func (a *App) Build(ctx context.Context, out string, skipRoutes bool) (Result, error) {
	if out == "" {
		out = a.cfg.Output.Path
	}
	opts := pipeline.Options{SkipRoutes: skipRoutes || !a.cfg.Routing.Enabled}
	table, err := a.assembler.Build(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	return a.export(ctx, out, table)
}

// Rebuild exports a table derived from the caches alone.
func (a *App) Rebuild(ctx context.Context, out string) (Result, error) {
	if out == "" {
		out = a.cfg.Output.PartialPath
	}
	table, err := a.assembler.Rebuild(ctx)
	if err != nil {
		return Result{}, err
	}
	return a.export(ctx, out, table)
}

// export writes the file first; the secondary sinks only run once it exists.
func (a *App) export(ctx context.Context, path string, table pipeline.Table) (Result, error) {
	res := Result{RunID: a.runID, Path: path, Rows: len(table.Rows), Partial: table.Partial}

	err := export.WriteFile(a.fs, path, table)
	metrics.ObserveExport(sinkFile, res.Rows, err)
	if err != nil {
		return Result{}, err
	}
	a.logger.Info("export written",
		zap.String("path", path),
		zap.Int("rows", res.Rows),
		zap.Bool("partial", table.Partial),
	)

	var errs []error
	uploaded := true
	if a.dataset != nil {
		n, err := a.saveDataset(ctx, table)
		metrics.ObserveExport(sinkPostgres, n, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("export to postgres: %w", err))
		} else {
			a.logger.Info("dataset rows upserted", zap.Int("rows", n))
		}
	}
	if a.uploader != nil {
		uri, err := a.uploader.UploadFile(ctx, a.fs, path, a.runID.String())
		metrics.ObserveExport(sinkGCS, res.Rows, err)
		if err != nil {
			uploaded = false
			errs = append(errs, fmt.Errorf("export to gcs: %w", err))
		} else {
			res.ObjectURI = uri
			a.logger.Info("export uploaded", zap.String("uri", uri))
		}
	}
	if a.notifier != nil && uploaded {
		if err := a.notify(ctx, res); err != nil {
			errs = append(errs, fmt.Errorf("export notification: %w", err))
		}
	}
	return res, errors.Join(errs...)
}

// notify is skipped when the upload failed, so subscribers never see an
// object URI that does not exist.
func (a *App) notify(ctx context.Context, res Result) error {
	msg := Notification{
		RunID:         res.RunID.String(),
		Path:          res.Path,
		ObjectURI:     res.ObjectURI,
		Rows:          res.Rows,
		Partial:       res.Partial,
		ReferenceCity: a.cfg.Reference.City,
	}
	id, err := a.notifier.Publish(ctx, msg.RunID, msg)
	metrics.ObserveExport(sinkPubSub, res.Rows, err)
	if err != nil {
		return err
	}
	a.logger.Info("export announced", zap.String("message_id", id))
	return nil
}

func (a *App) saveDataset(ctx context.Context, table pipeline.Table) (int, error) {
	if err := a.dataset.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	return a.dataset.SaveTable(ctx, a.runID, a.clock.Now(), table)
}

// Close flushes progress events, writes the metrics textfile when configured
// and releases the export clients.
func (a *App) Close(ctx context.Context) error {
	a.closeHub(ctx)
	var errs []error
	if path := a.cfg.Metrics.Textfile; path != "" {
		gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, a.registry}
		if err := metrics.WriteTextfile(path, gatherers); err != nil {
			errs = append(errs, err)
		} else {
			a.logger.Debug("metrics textfile written", zap.String("path", path))
		}
	}
	if a.dataset != nil {
		a.dataset.Close()
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close notifier: %w", err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) closeHub(ctx context.Context) {
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
}
