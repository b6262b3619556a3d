package nominatim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/municipal-distances/internal/fetcher/colly"
	"github.com/JakeFAU/municipal-distances/internal/geo"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(collyfetcher.New(collyfetcher.Config{Timeout: time.Second}), srv.URL+"/search")
}

func TestGeocodeFirstMatch(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Prefeitura Municipal de Abaíra, Bahia, Brasil", q.Get("q"))
		assert.Equal(t, "jsonv2", q.Get("format"))
		assert.Equal(t, "1", q.Get("limit"))
		assert.Equal(t, "0", q.Get("addressdetails"))
		_, _ = w.Write([]byte(`[{"lat":"-13.2488","lon":"-41.6619","display_name":"Abaíra"}]`))
	})

	c, ok, err := client.Geocode(context.Background(), "Prefeitura Municipal de Abaíra, Bahia, Brasil")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, geo.Coordinate{Lat: -13.2488, Lon: -41.6619}, c)
}

func TestGeocodeNoResult(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	_, ok, err := client.Geocode(context.Background(), "Nowhere")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGeocodeRejectsNonFinite(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"nan lat": `[{"lat":"NaN","lon":"-41.6"}]`,
		"inf lon": `[{"lat":"-13.2","lon":"+Inf"}]`,
		"inf lat": `[{"lat":"-infinity","lon":"-41.6"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			c, ok, err := client.Geocode(context.Background(), "Alpha")
			require.NoError(t, err)
			require.False(t, ok)
			require.Equal(t, geo.Coordinate{}, c)
		})
	}
}

func TestGeocodeErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
		"json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":"x"}`))
		},
		"lat": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`[{"lat":"north","lon":"1"}]`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, ok, err := newClient(t, handler).Geocode(context.Background(), "Alpha")
			require.Error(t, err)
			require.False(t, ok)
		})
	}
}

func TestSearchURL(t *testing.T) {
	t.Parallel()

	raw := New(nil, "").SearchURL("Salvador, Bahia, Brasil")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "nominatim.openstreetmap.org", u.Host)
	require.Equal(t, "Salvador, Bahia, Brasil", u.Query().Get("q"))

	raw = New(nil, "http://local/search?email=x@example.com").SearchURL("a")
	u, err = url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "x@example.com", u.Query().Get("email"))
	require.Equal(t, "a", u.Query().Get("q"))
}
