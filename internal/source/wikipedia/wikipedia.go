// Package wikipedia extracts the municipal development index (IDHM 2010)
// from the Portuguese Wikipedia ranking page.
package wikipedia

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/municipal-distances/internal/normalize"
	"github.com/JakeFAU/municipal-distances/internal/source"
)

// DefaultURL is the Bahia IDH-M ranking.
const DefaultURL = "https://pt.wikipedia.org/wiki/Lista_de_munic%C3%ADpios_da_Bahia_por_IDH-M"

// Header fragments identifying the name and score columns after normalization.
const (
	nameHeader  = "munic"
	scoreHeader = "idh"
)

// ErrNoTable is returned when no table carries both a name and a score column.
var ErrNoTable = errors.New("no municipality/idh table found")

var (
	footnote  = regexp.MustCompile(`\[.*?\]`)
	nonNumber = regexp.MustCompile(`[^\d.]`)
)

// Client fetches and parses the score table.
type Client struct {
	getter source.Getter
	url    string
}

// New builds a Client. An empty url uses DefaultURL.
func New(getter source.Getter, url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{getter: getter, url: url}
}

// Scores returns the score per municipality display name.
func (c *Client) Scores(ctx context.Context) (map[string]float64, error) {
	resp, err := c.getter.Get(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("fetch score table: %w", err)
	}
	if err := resp.CheckStatus(); err != nil {
		return nil, fmt.Errorf("fetch score table: %w", err)
	}
	return ParseScores(bytes.NewReader(resp.Body))
}

// ParseScores reads every HTML table whose normalized headers contain both
// "munic" and "idh" and collects name to score pairs from the first matching
// columns. Tables are laid out on a grid first, so a cell spanning several
// rows or columns fills every slot it covers. Footnote markers are dropped
// and decimal commas accepted; rows whose score does not parse are skipped.
func ParseScores(r io.Reader) (map[string]float64, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse score page: %w", err)
	}
	scores := make(map[string]float64)
	found := false
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		grid := expandTable(table)
		nameCol, scoreCol, ok := detectColumns(grid)
		if !ok {
			return
		}
		found = true
		for _, row := range grid {
			if !row.data || len(row.cells) <= max(nameCol, scoreCol) {
				continue
			}
			name := strings.TrimSpace(footnote.ReplaceAllString(row.cells[nameCol], ""))
			score, ok := parseScore(row.cells[scoreCol])
			if name == "" || !ok {
				continue
			}
			scores[name] = score
		}
	})
	if !found || len(scores) == 0 {
		return nil, ErrNoTable
	}
	return scores, nil
}

// gridRow is one table row after span expansion. header is set when the row
// carries a th cell and data when it carries a td cell.
type gridRow struct {
	cells  []string
	header bool
	data   bool
}

// spanCell is a cell still covering rows below the one that declared it.
type spanCell struct {
	text string
	left int
}

// expandTable lays the rows of table on a rectangular grid, copying rowspan
// and colspan cells into every slot they cover.
func expandTable(table *goquery.Selection) []gridRow {
	var grid []gridRow
	pending := make(map[int]*spanCell)
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		row := gridRow{
			header: tr.Find("th").Length() > 0,
			data:   tr.Find("td").Length() > 0,
		}
		fill := func() {
			for {
				span, ok := pending[len(row.cells)]
				if !ok {
					return
				}
				row.cells = append(row.cells, span.text)
				if span.left--; span.left == 0 {
					delete(pending, len(row.cells)-1)
				}
			}
		}
		tr.Children().Filter("td,th").Each(func(_ int, cell *goquery.Selection) {
			fill()
			text := cell.Text()
			rows, cols := spanAttr(cell, "rowspan"), spanAttr(cell, "colspan")
			for range cols {
				if rows > 1 {
					pending[len(row.cells)] = &spanCell{text: text, left: rows - 1}
				}
				row.cells = append(row.cells, text)
			}
		})
		fill()
		grid = append(grid, row)
	})
	return grid
}

func spanAttr(cell *goquery.Selection, name string) int {
	raw, ok := cell.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, 1000)
}

func detectColumns(grid []gridRow) (nameCol, scoreCol int, ok bool) {
	nameCol, scoreCol = -1, -1
	for _, row := range grid {
		if !row.header {
			continue
		}
		for i, cell := range row.cells {
			key := normalize.Key(footnote.ReplaceAllString(cell, ""))
			if nameCol < 0 && strings.Contains(key, nameHeader) {
				nameCol = i
			}
			if scoreCol < 0 && strings.Contains(key, scoreHeader) {
				scoreCol = i
			}
		}
		break
	}
	return nameCol, scoreCol, nameCol >= 0 && scoreCol >= 0
}

func parseScore(raw string) (float64, bool) {
	text := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	text = nonNumber.ReplaceAllString(footnote.ReplaceAllString(text, ""), "")
	if text == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
