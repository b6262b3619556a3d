// Package cache provides the durable key-value stores that let repeated runs
// skip work already done. Each data kind lives in its own store with its own
// backing document, so the lifetimes of unrelated caches never interfere.
package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/municipal-distances/internal/geo"
	"github.com/JakeFAU/municipal-distances/internal/model"
)

// Store is a string-keyed mapping with write-through persistence.
type Store[V any] interface {
	// Get returns the cached value for key. It performs no I/O.
	Get(key string) (V, bool)
	// Put records value under key and persists the whole store.
	Put(key string, value V) error
	// PutAll records every entry of values and persists once.
	PutAll(values map[string]V) error
	// Snapshot returns a copy of the current mapping.
	Snapshot() map[string]V
	// Len reports the number of cached entries.
	Len() int
}

// Backing document names inside the cache directory.
const (
	EntitiesFile    = "municipios.json"
	CoordinatesFile = "geocode.json"
	RoutesFile      = "route.json"
	ScoresFile      = "idhm2010.json"
)

// Stores bundles the four caches used by the pipeline.
type Stores struct {
	// Entities is keyed by the registry code rendered as a decimal string.
	Entities Store[model.Entity]
	// Coordinates is keyed by normalized place name.
	Coordinates Store[geo.Coordinate]
	// Routes is keyed by geo.RouteKey.
	Routes Store[model.RoadDistance]
	// Scores is keyed by normalized place name.
	Scores Store[float64]
}

// HasEntities reports whether the entity list has ever been cached.
func (s Stores) HasEntities() bool {
	return s.Entities != nil && s.Entities.Len() > 0
}

// Open loads the four file-backed stores from dir, creating it when missing.
func Open(fs afero.Fs, dir string, logger *zap.Logger) (Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return Stores{}, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	entities, err := OpenFile[model.Entity](fs, filepath.Join(dir, EntitiesFile), logger, legacyEntityList)
	if err != nil {
		return Stores{}, err
	}
	coords, err := OpenFile[geo.Coordinate](fs, filepath.Join(dir, CoordinatesFile), logger)
	if err != nil {
		return Stores{}, err
	}
	routes, err := OpenFile[model.RoadDistance](fs, filepath.Join(dir, RoutesFile), logger)
	if err != nil {
		return Stores{}, err
	}
	scores, err := OpenFile[float64](fs, filepath.Join(dir, ScoresFile), logger)
	if err != nil {
		return Stores{}, err
	}
	return Stores{
		Entities:    entities,
		Coordinates: coords,
		Routes:      routes,
		Scores:      scores,
	}, nil
}

// legacyEntityList reads the entity document as a list of
// {"municipio", "codigo_ibge"} records, the layout written by earlier
// releases, and keys it by code.
func legacyEntityList(raw []byte) (map[string]model.Entity, error) {
	var rows []struct {
		Municipio  string `json:"municipio"`
		CodigoIBGE int    `json:"codigo_ibge"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode legacy municipality list: %w", err)
	}
	out := make(map[string]model.Entity, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row.Municipio)
		if name == "" || row.CodigoIBGE == 0 {
			continue
		}
		out[strconv.Itoa(row.CodigoIBGE)] = model.Entity{Name: name, ID: row.CodigoIBGE}
	}
	return out, nil
}

// NewMemoryStores returns an in-memory bundle, mainly for tests.
func NewMemoryStores() Stores {
	return Stores{
		Entities:    NewMemory[model.Entity](),
		Coordinates: NewMemory[geo.Coordinate](),
		Routes:      NewMemory[model.RoadDistance](),
		Scores:      NewMemory[float64](),
	}
}
