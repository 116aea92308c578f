// Package ownership sources foreign-ownership percentages per company, either
// scraped from the exchange's foreign ownership report or imported from a file.
package ownership

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/config"
	"github.com/sells-group/reinvest-cli/internal/fetcher"
	"github.com/sells-group/reinvest-cli/internal/model"
)

// Provider returns one ownership snapshot per listed company.
type Provider interface {
	Fetch(ctx context.Context) ([]model.Ownership, error)
}

// Sink persists ownership rows.
type Sink interface {
	SaveOwnership(ctx context.Context, rows []model.Ownership) (int, error)
}

// NewProvider builds the provider selected by cfg.Source.
func NewProvider(cfg config.OwnershipConfig) (Provider, error) {
	switch cfg.Source {
	case "tadawul", "":
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: cfg.UserAgent,
			Timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
			Delay:     time.Duration(cfg.DelayMs) * time.Millisecond,
			Headers: map[string]string{
				"Accept-Language": "ar-SA,ar;q=0.9,en-US;q=0.8,en;q=0.7",
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			},
		})
		return NewTadawul(f, cfg.URL), nil
	case "csv", "file":
		if cfg.CSVPath == "" {
			return nil, eris.New("ownership: csv_path is required for file source")
		}
		return NewFileSource(cfg.CSVPath), nil
	default:
		return nil, eris.Errorf("ownership: unknown source %q", cfg.Source)
	}
}

// Sync fetches from p and saves the rows to sink.
func Sync(ctx context.Context, p Provider, sink Sink) (int, error) {
	rows, err := p.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	n, err := sink.SaveOwnership(ctx, rows)
	if err != nil {
		return 0, eris.Wrap(err, "ownership: save")
	}
	zap.L().Info("ownership: saved snapshot", zap.Int("rows", n))
	return n, nil
}

var percentReplacer = strings.NewReplacer(
	"%", "",
	"٪", "",
	",", "",
	"٬", "",
	"٫", ".",
	" ", "",
	" ", "",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// ParsePercent parses a displayed percentage such as "12.50%", "١٢٫٥٠٪" or
// "49". Blank cells and dashes yield an invalid (null) value.
func ParsePercent(s string) (decimal.NullDecimal, error) {
	raw := percentReplacer.Replace(strings.TrimSpace(s))
	if raw == "" || raw == "-" || raw == "--" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, eris.Wrapf(err, "ownership: parse percent %q", s)
	}
	return decimal.NewNullDecimal(d), nil
}

// row builds an Ownership from raw cell text. Unparseable percentages are
// logged and left null so one bad cell does not drop the company.
func row(symbol, name, foreign, maxAllowed, investorLimit string, asOf time.Time) (model.Ownership, bool) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return model.Ownership{}, false
	}
	o := model.Ownership{
		Symbol:      symbol,
		CompanyName: strings.TrimSpace(name),
		AsOf:        asOf,
	}
	for _, cell := range []struct {
		name string
		raw  string
		dst  *decimal.NullDecimal
	}{
		{"foreign_ownership", foreign, &o.ForeignOwnership},
		{"max_allowed", maxAllowed, &o.MaxAllowed},
		{"investor_limit", investorLimit, &o.InvestorLimit},
	} {
		v, err := ParsePercent(cell.raw)
		if err != nil {
			zap.L().Warn("ownership: unparseable percentage",
				zap.String("symbol", symbol),
				zap.String("column", cell.name),
				zap.String("raw", cell.raw),
			)
			continue
		}
		*cell.dst = v
	}
	return o, true
}

func today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
