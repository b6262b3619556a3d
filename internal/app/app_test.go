package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/municipal-distances/internal/config"
	"github.com/JakeFAU/municipal-distances/internal/geo"
	"github.com/JakeFAU/municipal-distances/internal/model"
	"github.com/JakeFAU/municipal-distances/internal/pipeline"
	"github.com/JakeFAU/municipal-distances/internal/policy/simple"
	pubsubpub "github.com/JakeFAU/municipal-distances/internal/publisher/pubsub"
)

var errOffline = errors.New("offline")

type fakeRegistry struct{ err error }

func (f fakeRegistry) Municipalities(context.Context) ([]model.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.Entity{{Name: "Beta", ID: 2900002}, {Name: "Alpha", ID: 2900001}}, nil
}

type fakeScores struct{ err error }

func (f fakeScores) Scores(context.Context) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[string]float64{"Alpha": 0.6, "Beta": 0.7}, nil
}

type fakeGeocoder struct{ err error }

func (f fakeGeocoder) Geocode(_ context.Context, query string) (geo.Coordinate, bool, error) {
	if f.err != nil {
		return geo.Coordinate{}, false, f.err
	}
	for name, c := range map[string]geo.Coordinate{
		"Salvador": {Lat: -12.97, Lon: -38.50},
		"Alpha":    {Lat: -12.0, Lon: -38.0},
		"Beta":     {Lat: -13.0, Lon: -39.0},
	} {
		if strings.Contains(query, name) {
			return c, true, nil
		}
	}
	return geo.Coordinate{}, false, nil
}

type fakeRouter struct{ err error }

func (f fakeRouter) Route(context.Context, geo.Coordinate, geo.Coordinate) (float64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	return 123400, true, nil
}

func onlineSources() *pipeline.Sources {
	return &pipeline.Sources{
		Registry: fakeRegistry{},
		Scores:   fakeScores{},
		Geocoder: fakeGeocoder{},
		Router:   fakeRouter{},
	}
}

func offlineSources() *pipeline.Sources {
	return &pipeline.Sources{
		Registry: fakeRegistry{err: errOffline},
		Scores:   fakeScores{err: errOffline},
		Geocoder: fakeGeocoder{err: errOffline},
		Router:   fakeRouter{err: errOffline},
	}
}

type recordingDataset struct {
	ensured bool
	saved   pipeline.Table
	runID   uuid.UUID
	closed  bool
	err     error
}

func (d *recordingDataset) EnsureSchema(context.Context) error {
	d.ensured = true
	return nil
}

func (d *recordingDataset) SaveTable(_ context.Context, runID uuid.UUID, _ time.Time, table pipeline.Table) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.runID = runID
	d.saved = table
	return len(table.Rows), nil
}

func (d *recordingDataset) Close() { d.closed = true }

type recordingUploader struct {
	paths []string
	err   error
}

func (u *recordingUploader) UploadFile(_ context.Context, fs afero.Fs, localPath, runID string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	if _, err := fs.Stat(localPath); err != nil {
		return "", err
	}
	u.paths = append(u.paths, localPath)
	return "gs://bucket/" + runID + "/" + filepath.Base(localPath), nil
}

type recordingNotifier struct {
	keys     []string
	messages []Notification
	closed   bool
	err      error
}

func (n *recordingNotifier) Publish(_ context.Context, key string, payload any) (string, error) {
	if n.err != nil {
		return "", n.err
	}
	n.keys = append(n.keys, key)
	n.messages = append(n.messages, payload.(Notification))
	return "msg-1", nil
}

func (n *recordingNotifier) Close() error {
	n.closed = true
	return nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Cache.Dir = "cache"
	cfg.Output.Path = "out/distancias.csv"
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, opts Options) *App {
	t.Helper()
	if opts.Pacer == nil {
		opts.Pacer = simple.New()
	}
	a, err := New(context.Background(), cfg, nil, opts)
	require.NoError(t, err)
	return a
}

func TestBuildWritesExportAndMirrors(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	dataset := &recordingDataset{}
	uploader := &recordingUploader{}
	a := newTestApp(t, testConfig(t), Options{FS: fs, Sources: onlineSources(), Dataset: dataset, Uploader: uploader})

	res, err := a.Build(context.Background(), "", false)
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))

	require.Equal(t, "out/distancias.csv", res.Path)
	require.Equal(t, 2, res.Rows)
	require.False(t, res.Partial)
	require.Equal(t, a.RunID(), res.RunID)
	require.Equal(t, "gs://bucket/"+a.RunID().String()+"/distancias.csv", res.ObjectURI)

	data, err := afero.ReadFile(fs, "out/distancias.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "municipio,codigo_ibge,idhm_2010,dist_km_geodesica_salvador,dist_km_rodoviaria_salvador", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "Alpha,2900001,0.6,"))
	require.True(t, strings.HasSuffix(lines[1], ",123.4"))

	require.True(t, dataset.ensured)
	require.True(t, dataset.closed)
	require.Equal(t, a.RunID(), dataset.runID)
	require.Len(t, dataset.saved.Rows, 2)
	require.Equal(t, []string{"out/distancias.csv"}, uploader.paths)
}

func TestBuildNoRouteLeavesRoadColumnBlank(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	a := newTestApp(t, testConfig(t), Options{FS: fs, Sources: onlineSources()})
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	_, err := a.Build(context.Background(), "plain.csv", true)
	require.NoError(t, err)
	data, err := afero.ReadFile(fs, "plain.csv")
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n")[1:] {
		require.True(t, strings.HasSuffix(line, ","), line)
	}
}

func TestBuildPreconditionFailureWritesNothing(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	a := newTestApp(t, testConfig(t), Options{FS: fs, Sources: offlineSources()})
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	_, err := a.Build(context.Background(), "", false)
	require.ErrorIs(t, err, pipeline.ErrEntitiesUnavailable)
	exists, err := afero.Exists(fs, "out/distancias.csv")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRebuildFromCacheAfterBuild(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	cfg := testConfig(t)
	first := newTestApp(t, cfg, Options{FS: fs, Sources: onlineSources()})
	_, err := first.Build(context.Background(), "", false)
	require.NoError(t, err)
	require.NoError(t, first.Close(context.Background()))

	second := newTestApp(t, cfg, Options{FS: fs, Sources: offlineSources()})
	defer func() { require.NoError(t, second.Close(context.Background())) }()
	res, err := second.Rebuild(context.Background(), "")
	require.NoError(t, err)
	require.True(t, res.Partial)
	require.Equal(t, "distancias_parcial_do_cache.csv", res.Path)

	full, err := afero.ReadFile(fs, "out/distancias.csv")
	require.NoError(t, err)
	partial, err := afero.ReadFile(fs, res.Path)
	require.NoError(t, err)
	require.Equal(t, string(full), string(partial))
}

func TestRebuildWithoutCacheFails(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	a := newTestApp(t, testConfig(t), Options{FS: fs, Sources: offlineSources()})
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	_, err := a.Rebuild(context.Background(), "")
	require.ErrorIs(t, err, pipeline.ErrNoEntities)
}

func TestSecondarySinkFailureKeepsFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	a := newTestApp(t, testConfig(t), Options{
		FS:       fs,
		Sources:  onlineSources(),
		Dataset:  &recordingDataset{err: errOffline},
		Uploader: &recordingUploader{err: errOffline},
	})
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	res, err := a.Build(context.Background(), "", false)
	require.ErrorIs(t, err, errOffline)
	require.Contains(t, err.Error(), "export to postgres")
	require.Contains(t, err.Error(), "export to gcs")
	require.Equal(t, 2, res.Rows)
	exists, err := afero.Exists(fs, "out/distancias.csv")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestCloseWritesMetricsTextfile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "munidist.prom")
	a := newTestApp(t, cfg, Options{FS: afero.NewMemMapFs(), Sources: onlineSources()})

	_, err := a.Build(context.Background(), "", false)
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	text := string(data)
	require.Contains(t, text, "munidist_rows_total")
	require.Contains(t, text, "munidist_runs_completed_total")
	require.Contains(t, text, "munidist_exports_total")
}

func TestBuildAnnouncesUploadedExport(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	notifier := &recordingNotifier{}
	a := newTestApp(t, testConfig(t), Options{
		FS:       fs,
		Sources:  onlineSources(),
		Uploader: &recordingUploader{},
		Notifier: notifier,
	})

	res, err := a.Build(context.Background(), "", false)
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))

	require.True(t, notifier.closed)
	require.Equal(t, []string{a.RunID().String()}, notifier.keys)
	require.Equal(t, []Notification{{
		RunID:         a.RunID().String(),
		Path:          "out/distancias.csv",
		ObjectURI:     res.ObjectURI,
		Rows:          2,
		Partial:       false,
		ReferenceCity: "Salvador",
	}}, notifier.messages)
}

func TestFailedUploadIsNotAnnounced(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	a := newTestApp(t, testConfig(t), Options{
		FS:       afero.NewMemMapFs(),
		Sources:  onlineSources(),
		Uploader: &recordingUploader{err: errOffline},
		Notifier: notifier,
	})
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	_, err := a.Build(context.Background(), "", false)
	require.ErrorIs(t, err, errOffline)
	require.Empty(t, notifier.messages)
}

func TestNotificationFailureKeepsFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	a := newTestApp(t, testConfig(t), Options{
		FS:       fs,
		Sources:  onlineSources(),
		Notifier: &recordingNotifier{err: errOffline},
	})
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	res, err := a.Build(context.Background(), "", false)
	require.ErrorIs(t, err, errOffline)
	require.Contains(t, err.Error(), "export notification")
	require.Equal(t, 2, res.Rows)
	exists, err := afero.Exists(fs, "out/distancias.csv")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestRebuildPublishesToPubSub(t *testing.T) {
	t.Parallel()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	dial := func() option.ClientOption {
		conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return option.WithGRPCConn(conn)
	}

	ctx := context.Background()
	admin, err := pubsub.NewClient(ctx, "geo-data", dial())
	require.NoError(t, err)
	_, err = admin.CreateTopic(ctx, "dataset-exports")
	require.NoError(t, err)
	require.NoError(t, admin.Close())

	fs := afero.NewMemMapFs()
	cfg := testConfig(t)
	first := newTestApp(t, cfg, Options{FS: fs, Sources: onlineSources()})
	_, err = first.Build(ctx, "", false)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	publisher, err := pubsubpub.Open(ctx, "geo-data", "dataset-exports", dial())
	require.NoError(t, err)
	second := newTestApp(t, cfg, Options{FS: fs, Sources: offlineSources(), Notifier: publisher})
	res, err := second.Rebuild(ctx, "")
	require.NoError(t, err)
	require.NoError(t, second.Close(ctx))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, second.RunID().String(), msgs[0].Attributes[pubsubpub.AttrRunID])
	var got Notification
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, res.Path, got.Path)
	require.True(t, got.Partial)
	require.Equal(t, 2, got.Rows)
	require.Empty(t, got.ObjectURI)
}
