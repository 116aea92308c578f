package ownership

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/fetcher"
	"github.com/sells-group/reinvest-cli/internal/model"
)

// DefaultURL is the exchange's foreign ownership report.
const DefaultURL = "https://www.saudiexchange.sa/wps/portal/saudiexchange/newsandreports/reports-publications/foreign-ownership?locale=ar"

// Tadawul scrapes the foreign ownership table. Rows carry symbol, company
// name, foreign ownership, max allowed and strategic investor limit in the
// first five cells.
type Tadawul struct {
	fetcher fetcher.Fetcher
	url     string
	now     func() time.Time
}

// NewTadawul creates a scraper for url, defaulting to DefaultURL.
func NewTadawul(f fetcher.Fetcher, url string) *Tadawul {
	if url == "" {
		url = DefaultURL
	}
	return &Tadawul{fetcher: f, url: url, now: today}
}

// Fetch downloads the report and parses its table. The snapshot is dated today.
func (t *Tadawul) Fetch(ctx context.Context) ([]model.Ownership, error) {
	zap.L().Info("ownership: fetching foreign ownership table", zap.String("url", t.url))

	body, err := t.fetcher.Download(ctx, t.url)
	if err != nil {
		return nil, eris.Wrap(err, "ownership: download report")
	}
	defer body.Close() //nolint:errcheck

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, eris.Wrap(err, "ownership: parse html")
	}

	rows := ParseTable(doc, t.now())
	if len(rows) == 0 {
		return nil, eris.New("ownership: no rows found in foreign ownership table")
	}
	zap.L().Info("ownership: parsed table", zap.Int("companies", len(rows)))
	return rows, nil
}

// ParseTable reads every "table tbody tr" row with at least five cells.
func ParseTable(doc *goquery.Document, asOf time.Time) []model.Ownership {
	var out []model.Ownership
	seen := make(map[string]bool)
	doc.Find("table tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 5 {
			return
		}
		text := func(i int) string {
			return strings.TrimSpace(cells.Eq(i).Text())
		}
		o, ok := row(text(0), text(1), text(2), text(3), text(4), asOf)
		if !ok || seen[o.Symbol] {
			return
		}
		seen[o.Symbol] = true
		out = append(out, o)
	})
	return out
}
