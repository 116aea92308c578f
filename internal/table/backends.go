package table

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reinvest-cli/internal/ocr"
	"github.com/sells-group/reinvest-cli/internal/pdftext"
)

// Backend parses one page into rows of cells.
type Backend interface {
	Name() string
	Rows(ctx context.Context, doc *pdftext.Document, page int) ([]Row, error)
}

// LayoutBackend parses the column-preserving output of pdftotext -layout.
// Cells are runs separated by two or more spaces; positions are rune columns.
type LayoutBackend struct {
	extractor ocr.LayoutExtractor
}

// NewLayoutBackend creates a LayoutBackend.
func NewLayoutBackend(extractor ocr.LayoutExtractor) *LayoutBackend {
	return &LayoutBackend{extractor: extractor}
}

// Name implements Backend.
func (b *LayoutBackend) Name() string { return "layout" }

// Rows implements Backend.
func (b *LayoutBackend) Rows(ctx context.Context, doc *pdftext.Document, page int) ([]Row, error) {
	text, err := b.extractor.PageLayout(ctx, doc.Path, page)
	if err != nil {
		return nil, eris.Wrap(err, "table: layout text")
	}
	return ParseLayout(text), nil
}

var cellRe = regexp.MustCompile(`\S+(?: \S+)*`)

// ParseLayout splits layout text into rows. Blank lines are dropped.
func ParseLayout(text string) []Row {
	var rows []Row
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r\f")
		var row Row
		for _, loc := range cellRe.FindAllStringIndex(line, -1) {
			start := utf8.RuneCountInString(line[:loc[0]])
			cell := line[loc[0]:loc[1]]
			row.Cells = append(row.Cells, Cell{
				Text:  cell,
				Start: float64(start),
				End:   float64(start + utf8.RuneCountInString(cell)),
			})
		}
		if len(row.Cells) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

// WordsBackend builds rows from the positioned words of the text layer.
// Words closer than GapRatio times the line height share a cell.
type WordsBackend struct {
	GapRatio float64
}

// NewWordsBackend creates a WordsBackend.
func NewWordsBackend() *WordsBackend {
	return &WordsBackend{GapRatio: 0.8}
}

// Name implements Backend.
func (b *WordsBackend) Name() string { return "words" }

// Rows implements Backend.
func (b *WordsBackend) Rows(_ context.Context, doc *pdftext.Document, page int) ([]Row, error) {
	p := doc.Page(page)
	if p == nil {
		return nil, eris.Errorf("table: page %d not in document", page)
	}
	rows := make([]Row, 0, len(p.Lines))
	for _, l := range p.Lines {
		if row := b.lineRow(l); len(row.Cells) > 0 {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (b *WordsBackend) lineRow(l pdftext.Line) Row {
	gap := b.GapRatio * l.BBox.Height()
	var row Row
	for i, w := range l.Words {
		if i > 0 && w.BBox.X0-l.Words[i-1].BBox.X1 <= gap {
			last := &row.Cells[len(row.Cells)-1]
			last.Text += " " + w.Text
			last.End = w.BBox.X1
			continue
		}
		row.Cells = append(row.Cells, Cell{Text: w.Text, Start: w.BBox.X0, End: w.BBox.X1})
	}
	return row
}

// NewBackends builds the fallback chain named in config order.
func NewBackends(names []string, layout ocr.LayoutExtractor) ([]Backend, error) {
	var out []Backend
	for _, n := range names {
		switch n {
		case "layout":
			out = append(out, NewLayoutBackend(layout))
		case "words":
			out = append(out, NewWordsBackend())
		default:
			return nil, eris.Errorf("table: unknown backend %q", n)
		}
	}
	return out, nil
}
