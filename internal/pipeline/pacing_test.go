package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/municipal-distances/internal/cache"
	"github.com/JakeFAU/municipal-distances/internal/geo"
)

// callLog records pacer waits and source calls in the order they happen.
type callLog struct {
	mu      sync.Mutex
	entries []string
	waitErr error
}

func (l *callLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// recordingPacer is a Pacer that never blocks and logs every wait.
type recordingPacer struct{ log *callLog }

func (p recordingPacer) Wait(ctx context.Context, service string) error {
	p.log.add("wait:" + service)
	if p.log.waitErr != nil {
		return p.log.waitErr
	}
	return ctx.Err()
}

type loggedGeocoder struct {
	log   *callLog
	inner *stubGeocoder
}

func (g loggedGeocoder) Geocode(ctx context.Context, query string) (geo.Coordinate, bool, error) {
	g.log.add("call:" + ServiceGeocoder)
	return g.inner.Geocode(ctx, query)
}

type loggedRouter struct {
	log   *callLog
	inner *stubRouter
}

func (r loggedRouter) Route(ctx context.Context, origin, dest geo.Coordinate) (float64, bool, error) {
	r.log.add("call:" + ServiceRouter)
	return r.inner.Route(ctx, origin, dest)
}

func newPacedResolver(log *callLog, geocoder *stubGeocoder, router *stubRouter) *Resolver {
	sources := Sources{}
	if geocoder != nil {
		sources.Geocoder = loggedGeocoder{log: log, inner: geocoder}
	}
	if router != nil {
		sources.Router = loggedRouter{log: log, inner: router}
	}
	return NewResolver(cache.NewMemoryStores(), sources, recordingPacer{log: log}, nil, nil, testConfig(), nil)
}

func TestCoordinateWaitsBeforeEveryStrategy(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	geocoder := &stubGeocoder{
		known: map[string]geo.Coordinate{"Beta": beta},
		skip:  func(q string) bool { return strings.HasPrefix(q, "Prefeitura") },
	}
	r := newPacedResolver(log, geocoder, nil)

	_, ok, err := r.Coordinate(context.Background(), "Beta")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{
		"wait:geocoder", "call:geocoder",
		"wait:geocoder", "call:geocoder",
	}, log.snapshot())

	_, ok, err = r.Coordinate(context.Background(), "Beta")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, log.snapshot(), 4, "a cache hit must not wait")
}

func TestCoordinateWaitsEvenWhenGeocoderFails(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	r := newPacedResolver(log, &stubGeocoder{err: errDown}, nil)

	_, ok, err := r.Coordinate(context.Background(), "Alpha")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, []string{
		"wait:geocoder", "call:geocoder",
		"wait:geocoder", "call:geocoder",
	}, log.snapshot())
}

func TestRoadDistanceWaitsOnEveryAttempt(t *testing.T) {
	t.Parallel()

	cases := map[string]*stubRouter{
		"resolved":   {meters: 12_500, ok: true},
		"unresolved": {ok: false},
		"error":      {err: errDown},
	}
	for name, router := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			log := &callLog{}
			r := newPacedResolver(log, nil, router)

			_, err := r.RoadDistance(context.Background(), salvador, alpha)
			require.NoError(t, err)
			require.Equal(t, []string{"wait:router", "call:router"}, log.snapshot())

			_, err = r.RoadDistance(context.Background(), salvador, alpha)
			require.NoError(t, err)
			require.Len(t, log.snapshot(), 2, "a cached leg must not wait")
		})
	}
}

func TestPacerErrorSkipsTheCall(t *testing.T) {
	t.Parallel()

	log := &callLog{waitErr: context.Canceled}
	r := newPacedResolver(log, &stubGeocoder{known: map[string]geo.Coordinate{"Alpha": alpha}}, &stubRouter{ok: true})

	_, _, err := r.Coordinate(context.Background(), "Alpha")
	require.ErrorIs(t, err, context.Canceled)

	_, err = r.RoadDistance(context.Background(), salvador, alpha)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, []string{"wait:geocoder", "wait:router"}, log.snapshot())
}
