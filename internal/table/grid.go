package table

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/reinvest-cli/internal/model"
)

// Cell is one text run of a row. Start and End are horizontal positions in
// the backend's unit (character columns or PDF points).
type Cell struct {
	Text  string
	Start float64
	End   float64
}

// Row is one line of a parsed page, cells ordered left to right.
type Row struct {
	Cells []Cell
}

// Text joins the row's cells with single spaces.
func (r Row) Text() string {
	parts := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		parts[i] = c.Text
	}
	return strings.Join(parts, " ")
}

type span struct{ start, end float64 }

// grid assigns every value cell to a column. Columns are the merged extents
// of non-label cells across all rows.
type grid struct {
	rows    []Row
	columns []span
}

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

func newGrid(rows []Row) *grid {
	var spans []span
	for _, r := range rows {
		for i, c := range r.Cells {
			if i == 0 && isLabel(c.Text) {
				continue
			}
			spans = append(spans, span{c.Start, c.End})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var cols []span
	for _, s := range spans {
		if n := len(cols); n > 0 && s.start < cols[n-1].end {
			cols[n-1].end = max(cols[n-1].end, s.end)
			continue
		}
		cols = append(cols, s)
	}
	return &grid{rows: rows, columns: cols}
}

// isLabel reports whether a leading cell is a row label rather than a value.
func isLabel(text string) bool {
	if _, err := model.ParseAmount(text); err == nil {
		return false
	}
	return !yearRe.MatchString(text) || len(strings.Fields(text)) > 4
}

// column returns the index of the column overlapping c the most, or -1.
func (g *grid) column(c Cell) int {
	best, bestOverlap := -1, 0.0
	for i, col := range g.columns {
		overlap := min(c.End, col.end) - max(c.Start, col.start)
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}
	return best
}

// headerColumns maps each target year found in the row to its column.
func (g *grid) headerColumns(r Row, years []int) map[int]int {
	want := make(map[int]bool, len(years))
	for _, y := range years {
		want[y] = true
	}
	out := make(map[int]int)
	for _, c := range r.Cells {
		for _, m := range yearRe.FindAllString(c.Text, -1) {
			y, _ := strconv.Atoi(m)
			if !want[y] {
				continue
			}
			if _, seen := out[y]; seen {
				continue
			}
			if col := g.column(c); col >= 0 {
				out[y] = col
			}
			break
		}
	}
	return out
}

// match is the cell accepted for a keyword row under a year column.
type match struct {
	value   string
	numeric decimal.Decimal
	year    int
	row     Row
}

// find walks candidate header rows top to bottom. Below each header the
// first row whose leading cell carries a keyword is read at the year
// columns in priority order; the first cell that parses as a number wins.
func (g *grid) find(keywords []string, years []int) *match {
	for hi, header := range g.rows {
		cols := g.headerColumns(header, years)
		if len(cols) == 0 {
			continue
		}

		row, ok := g.keywordRow(hi+1, keywords)
		if !ok {
			continue
		}
		for _, y := range years {
			col, ok := cols[y]
			if !ok {
				continue
			}
			for _, c := range row.Cells[1:] {
				if g.column(c) != col {
					continue
				}
				v, err := model.ParseAmount(c.Text)
				if err != nil {
					continue
				}
				return &match{value: strings.TrimSpace(c.Text), numeric: v, year: y, row: row}
			}
		}
	}
	return nil
}

func (g *grid) keywordRow(from int, keywords []string) (Row, bool) {
	for _, r := range g.rows[from:] {
		if len(r.Cells) < 2 {
			continue
		}
		if containsFold(r.Cells[0].Text, keywords) {
			return r, true
		}
	}
	return Row{}, false
}

func containsFold(text string, keywords []string) bool {
	lower := strings.ToLower(strings.Join(strings.Fields(text), " "))
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
