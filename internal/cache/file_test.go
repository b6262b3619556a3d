package cache

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/municipal-distances/internal/geo"
	"github.com/JakeFAU/municipal-distances/internal/model"
)

func TestOpenFileMissingStartsEmpty(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	store, err := OpenFile[float64](fs, "/cache/idhm2010.json", zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, store.Len())

	exists, err := afero.Exists(fs, "/cache/idhm2010.json")
	require.NoError(t, err)
	assert.False(t, exists, "opening must not create the document")
}

func TestOpenFileCorruptStartsEmptyAndIsRepaired(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	path := "/cache/geocode.json"
	require.NoError(t, afero.WriteFile(fs, path, []byte(`{"salvador": [-12.97,`), 0o600))

	store, err := OpenFile[geo.Coordinate](fs, path, zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, store.Len())

	require.NoError(t, store.Put("salvador", geo.Coordinate{Lat: -12.97, Lon: -38.5}))

	reopened, err := OpenFile[geo.Coordinate](fs, path, zap.NewNop())
	require.NoError(t, err)
	got, ok := reopened.Get("salvador")
	require.True(t, ok)
	assert.Equal(t, geo.Coordinate{Lat: -12.97, Lon: -38.5}, got)
}

func TestOpenFileEmptyDocument(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/c/route.json", []byte("  \n"), 0o600))

	store, err := OpenFile[model.RoadDistance](fs, "/c/route.json", nil)
	require.NoError(t, err)
	assert.Zero(t, store.Len())
}

func TestFilePutRewritesWholeDocument(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/cache", 0o750))
	path := "/cache/route.json"
	store, err := OpenFile[model.RoadDistance](fs, path, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, store.Put("a->b", model.ResolvedDistance(150)))
	require.NoError(t, store.Put("a->c", model.RoadDistance{}))

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a->b": 150, "a->c": null}`, string(raw))

	leftovers, err := afero.Glob(fs, filepath.Join("/cache", "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	reopened, err := OpenFile[model.RoadDistance](fs, path, zap.NewNop())
	require.NoError(t, err)
	marker, ok := reopened.Get("a->c")
	require.True(t, ok, "unresolved marker must be distinguishable from absence")
	assert.False(t, marker.Resolved)
	_, ok = reopened.Get("a->d")
	assert.False(t, ok)
}

func TestFileKeepsNonASCIIReadable(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/cache", 0o750))
	store, err := OpenFile[model.Entity](fs, "/cache/municipios.json", zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, store.PutAll(map[string]model.Entity{
		"2900108": {Name: "Abaíra", ID: 2900108},
		"2900207": {Name: "Abaré", ID: 2900207},
	}))

	raw, err := afero.ReadFile(fs, "/cache/municipios.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Abaíra")
	assert.Equal(t, 2, store.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	store := NewMemory[float64]()
	require.NoError(t, store.Put("alpha", 0.6))

	snap := store.Snapshot()
	snap["alpha"] = 0.1
	snap["beta"] = 0.2

	got, ok := store.Get("alpha")
	require.True(t, ok)
	assert.InDelta(t, 0.6, got, 1e-9)
	assert.Equal(t, 1, store.Len())
}

func TestOpenStores(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	stores, err := Open(fs, "/work/.cache_ba", zap.NewNop())
	require.NoError(t, err)
	assert.False(t, stores.HasEntities())

	require.NoError(t, stores.Entities.Put("2927408", model.Entity{Name: "Salvador", ID: 2927408}))
	assert.True(t, stores.HasEntities())

	exists, err := afero.Exists(fs, filepath.Join("/work/.cache_ba", EntitiesFile))
	require.NoError(t, err)
	assert.True(t, exists)

	reopened, err := Open(fs, "/work/.cache_ba", zap.NewNop())
	require.NoError(t, err)
	assert.True(t, reopened.HasEntities())
	assert.Zero(t, reopened.Routes.Len())
}

func TestMemoryStoresHasNoEntities(t *testing.T) {
	t.Parallel()

	assert.False(t, NewMemoryStores().HasEntities())
	assert.False(t, Stores{}.HasEntities())
}

func TestOpenStoresConvertsEntityList(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	path := filepath.Join("/work/.cache_ba", EntitiesFile)
	legacy := `[
  {"municipio": "Salvador", "codigo_ibge": 2927408},
  {"municipio": "Feira de Santana", "codigo_ibge": 2910800},
  {"municipio": "", "codigo_ibge": 2900000}
]`
	require.NoError(t, afero.WriteFile(fs, path, []byte(legacy), 0o600))

	stores, err := Open(fs, "/work/.cache_ba", zap.NewNop())
	require.NoError(t, err)
	require.True(t, stores.HasEntities())
	assert.Equal(t, 2, stores.Entities.Len())

	got, ok := stores.Entities.Get("2910800")
	require.True(t, ok)
	assert.Equal(t, model.Entity{Name: "Feira de Santana", ID: 2910800}, got)

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	var rewritten map[string]model.Entity
	require.NoError(t, json.Unmarshal(raw, &rewritten), "document is rewritten as an object")
	assert.Len(t, rewritten, 2)
}

func TestOpenFileLegacyDecoderFailureStartsEmpty(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	path := "/cache/municipios.json"
	require.NoError(t, afero.WriteFile(fs, path, []byte(`["Salvador"]`), 0o600))

	store, err := OpenFile[model.Entity](fs, path, zap.NewNop(), legacyEntityList)
	require.NoError(t, err)
	assert.Zero(t, store.Len())
}
