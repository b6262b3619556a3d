// Package export renders an assembled dataset table as CSV or XLSX.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/municipal-distances/internal/model"
	"github.com/JakeFAU/municipal-distances/internal/normalize"
	"github.com/JakeFAU/municipal-distances/internal/pipeline"
)

// Format selects the file encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFor picks the format from the file extension; anything other than
// .xlsx is written as CSV.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Columns returns the header row for a table whose distances are measured
// from ref.
func Columns(ref string) []string {
	slug := Slug(ref)
	return []string{
		"municipio",
		"codigo_ibge",
		"idhm_2010",
		"dist_km_geodesica_" + slug,
		"dist_km_rodoviaria_" + slug,
	}
}

// Slug turns a city name into a column suffix.
func Slug(name string) string {
	return strings.ReplaceAll(normalize.Key(name), " ", "_")
}

// Write encodes table to w in format.
func Write(w io.Writer, format Format, table pipeline.Table) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, table)
	case FormatCSV:
		return WriteCSV(w, table)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteFile writes table to path on fs, choosing the format by extension.
func WriteFile(fs afero.Fs, path string, table pipeline.Table) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create output %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output %s: %w", path, cerr)
		}
	}()
	if err := Write(f, FormatFor(path), table); err != nil {
		return fmt.Errorf("write output %s: %w", path, err)
	}
	return nil
}

func scoreText(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func kmText(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func record(row model.Row) []string {
	return []string{
		row.Name,
		strconv.Itoa(row.ID),
		scoreText(row.Score),
		kmText(row.GeodesicKm),
		kmText(row.RoadKm),
	}
}
