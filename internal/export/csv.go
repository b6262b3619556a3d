package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/JakeFAU/municipal-distances/internal/pipeline"
)

// WriteCSV writes a UTF-8 CSV with a header row. Absent values are empty.
func WriteCSV(w io.Writer, table pipeline.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns(table.ReferenceCity)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range table.Rows {
		if err := cw.Write(record(row)); err != nil {
			return fmt.Errorf("write csv row %s: %w", row.Name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
