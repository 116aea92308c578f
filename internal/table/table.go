// Package table reads values out of financial statement tables: a header row
// naming the fiscal years, and a labelled row below it.
package table

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/pdftext"
)

// Hit is a value read from a table cell.
type Hit struct {
	Value   string
	Numeric decimal.Decimal
	Year    int
	Page    int
	Backend string
	Row     string
}

// Extractor runs the backends over every page mentioning a keyword.
type Extractor struct {
	backends []Backend
	keywords []string
	years    []int
	timeout  time.Duration
}

// New creates an Extractor. years are in priority order, most recent first.
func New(backends []Backend, keywords []string, years []int, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Extractor{backends: backends, keywords: keywords, years: years, timeout: timeout}
}

// Extract returns the first accepted (page, year) cell, or nil. Pages are
// tried in document order and backends in chain order within a page. When
// nothing is found and a backend failed, the error wraps
// model.ErrExternalService.
func (e *Extractor) Extract(ctx context.Context, doc *pdftext.Document) (*Hit, error) {
	var lastErr error
	for _, page := range doc.PagesContaining(e.keywords) {
		for _, b := range e.backends {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "table: cancelled")
			}

			rows, err := e.rows(ctx, b, doc, page)
			if err != nil {
				zap.L().Warn("table backend failed",
					zap.String("pdf", doc.Path),
					zap.String("backend", b.Name()),
					zap.Int("page", page),
					zap.Error(err),
				)
				lastErr = err
				continue
			}

			m := newGrid(rows).find(e.keywords, e.years)
			if m == nil {
				continue
			}
			return &Hit{
				Value:   m.value,
				Numeric: m.numeric,
				Year:    m.year,
				Page:    page,
				Backend: b.Name(),
				Row:     m.row.Text(),
			}, nil
		}
	}
	if lastErr != nil {
		return nil, eris.Wrapf(model.ErrExternalService, "table: %v", lastErr)
	}
	return nil, nil
}

func (e *Extractor) rows(ctx context.Context, b Backend, doc *pdftext.Document, page int) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return b.Rows(ctx, doc, page)
}
