// Package reports downloads each company's latest annual financial statement
// from its exchange profile page into the report directory, named so that
// extraction can recover the symbol and fiscal year from the filename.
package reports

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reinvest-cli/internal/config"
	"github.com/sells-group/reinvest-cli/internal/fetcher"
)

// ErrNoAnnualReport is returned when a profile page lists no annual statement PDF.
var ErrNoAnnualReport = eris.New("reports: no annual statement link")

// ErrNotPDF is returned when a statement link serves something other than a PDF.
var ErrNotPDF = eris.New("reports: response is not a pdf")

var pdfMagic = []byte("%PDF-")

// Link is the statement PDF found for one fiscal year.
type Link struct {
	URL  string
	Year int
}

// Report describes one company's downloaded statement.
type Report struct {
	Symbol  string `json:"symbol"`
	Year    int    `json:"year"`
	URL     string `json:"url"`
	Path    string `json:"path"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Summary counts the outcome of a FetchAll pass.
type Summary struct {
	Downloaded int      `json:"downloaded"`
	Skipped    int      `json:"skipped"`
	Failed     []string `json:"failed,omitempty"`
}

// Downloader finds and saves annual statements.
type Downloader struct {
	fetcher     fetcher.Fetcher
	profileURL  string
	dir         string
	concurrency int
}

// NewDownloader creates a Downloader using f for both profile pages and PDFs.
func NewDownloader(f fetcher.Fetcher, cfg config.ReportsConfig) *Downloader {
	return &Downloader{
		fetcher:     f,
		profileURL:  cfg.ProfileURL,
		dir:         cfg.Dir,
		concurrency: max(cfg.Concurrency, 1),
	}
}

// NewHTTPDownloader wires a rate-limited HTTP fetcher from cfg.
func NewHTTPDownloader(cfg config.ReportsConfig, userAgent string, timeout time.Duration) *Downloader {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  userAgent,
		Timeout:    timeout,
		MaxRetries: cfg.MaxRetries,
		Delay:      time.Duration(cfg.DelayMs) * time.Millisecond,
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
		},
	})
	return NewDownloader(f, cfg)
}

// FileName is the report name for symbol and year, e.g. "1120_annual_2024.pdf".
func FileName(symbol string, year int) string {
	return fmt.Sprintf("%s_annual_%d.pdf", symbol, year)
}

// FindLatest returns the most recent statement in the "Annual" row of the
// profile's financial statements table. Header cells holding a year map to
// the row's cells after its label, most recent first; a year without a PDF
// falls through to the next.
func FindLatest(doc *goquery.Document) (Link, bool) {
	var out Link
	found := false
	doc.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
		var years []int
		tbl.Find("thead tr th").Each(func(_ int, th *goquery.Selection) {
			if y, err := strconv.Atoi(strings.TrimSpace(th.Text())); err == nil {
				years = append(years, y)
			}
		})
		if len(years) == 0 {
			return true
		}

		var annual *goquery.Selection
		tbl.Find("tbody tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
			if strings.EqualFold(strings.TrimSpace(tr.Find("td").First().Text()), "annual") {
				annual = tr
				return false
			}
			return true
		})
		if annual == nil {
			return true
		}

		cells := annual.Find("td")
		for i, year := range years {
			if i+1 >= cells.Length() {
				break
			}
			href, ok := cells.Eq(i + 1).Find(`a[href$=".pdf"], a[href$=".PDF"]`).First().Attr("href")
			if ok && strings.TrimSpace(href) != "" {
				out = Link{URL: strings.TrimSpace(href), Year: year}
				found = true
				return false
			}
		}
		return true
	})
	return out, found
}

// Fetch downloads the latest annual statement for symbol. An existing file
// of the same name is left in place and reported as skipped.
func (d *Downloader) Fetch(ctx context.Context, symbol string) (Report, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || strings.ContainsAny(symbol, `/\`) {
		return Report{}, eris.Errorf("reports: invalid symbol %q", symbol)
	}
	log := zap.L().With(zap.String("company", symbol))

	pageURL := fmt.Sprintf(d.profileURL, url.QueryEscape(symbol))
	link, err := d.latest(ctx, pageURL)
	if err != nil {
		return Report{Symbol: symbol}, err
	}

	rep := Report{
		Symbol: symbol,
		Year:   link.Year,
		URL:    link.URL,
		Path:   filepath.Join(d.dir, FileName(symbol, link.Year)),
	}
	if _, err := os.Stat(rep.Path); err == nil {
		log.Info("reports: already downloaded", zap.String("path", rep.Path))
		rep.Skipped = true
		return rep, nil
	}

	body, err := d.fetcher.Download(ctx, rep.URL)
	if err != nil {
		return rep, eris.Wrapf(err, "reports: download %s", rep.URL)
	}
	defer body.Close() //nolint:errcheck

	if err := savePDF(rep.Path, body); err != nil {
		return rep, err
	}
	log.Info("reports: saved annual statement", zap.Int("year", rep.Year), zap.String("path", rep.Path))
	return rep, nil
}

func (d *Downloader) latest(ctx context.Context, pageURL string) (Link, error) {
	body, err := d.fetcher.Download(ctx, pageURL)
	if err != nil {
		return Link{}, eris.Wrap(err, "reports: profile page")
	}
	defer body.Close() //nolint:errcheck

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Link{}, eris.Wrap(err, "reports: parse profile page")
	}
	link, ok := FindLatest(doc)
	if !ok {
		return Link{}, eris.Wrapf(ErrNoAnnualReport, "%s", pageURL)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return Link{}, eris.Wrap(err, "reports: profile url")
	}
	ref, err := url.Parse(link.URL)
	if err != nil {
		return Link{}, eris.Wrapf(err, "reports: statement url %q", link.URL)
	}
	link.URL = base.ResolveReference(ref).String()
	return link, nil
}

// savePDF writes r to path through a temp file, refusing content that does
// not start with the PDF header.
func savePDF(path string, r io.Reader) error {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(pdfMagic))
	if err != nil || !slices.Equal(head, pdfMagic) {
		return eris.Wrapf(ErrNotPDF, "%s", filepath.Base(path))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "reports: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrap(err, "reports: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, br); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "reports: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "reports: close temp file")
	}
	return eris.Wrapf(os.Rename(tmp.Name(), path), "reports: rename to %s", path)
}

// FetchAll downloads statements for every symbol. One company failing never
// stops the others; failures are listed in the summary.
func (d *Downloader) FetchAll(ctx context.Context, symbols []string) (Summary, []Report, error) {
	symbols = uniqueSorted(symbols)
	zap.L().Info("reports: starting download",
		zap.Int("companies", len(symbols)),
		zap.Int("concurrency", d.concurrency),
	)

	var (
		mu      sync.Mutex
		sum     Summary
		reports []Report
		g       errgroup.Group
	)
	g.SetLimit(d.concurrency)
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rep, err := d.Fetch(ctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				zap.L().Warn("reports: download failed", zap.String("company", symbol), zap.Error(err))
				sum.Failed = append(sum.Failed, symbol)
			case rep.Skipped:
				sum.Skipped++
				reports = append(reports, rep)
			default:
				sum.Downloaded++
				reports = append(reports, rep)
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(sum.Failed)
	slices.SortFunc(reports, func(a, b Report) int { return strings.Compare(a.Symbol, b.Symbol) })
	zap.L().Info("reports: download complete",
		zap.Int("downloaded", sum.Downloaded),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", len(sum.Failed)),
	)
	return sum, reports, ctx.Err()
}

func uniqueSorted(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
