package ownership

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/fetcher"
	"github.com/sells-group/reinvest-cli/internal/model"
)

// FileSource imports ownership from a CSV or XLSX export. The first row is a
// header; columns are matched by name so column order does not matter.
type FileSource struct {
	path string
	now  func() time.Time
}

// NewFileSource creates a file-backed provider.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, now: today}
}

var columnAliases = map[string]string{
	"symbol":                        "symbol",
	"company_symbol":                "symbol",
	"ticker":                        "symbol",
	"رمز الشركة":                    "symbol",
	"company_name":                  "company_name",
	"name":                          "company_name",
	"اسم الشركة":                    "company_name",
	"foreign_ownership":             "foreign_ownership",
	"foreign_ownership_percentage":  "foreign_ownership",
	"ملكية الأجانب":                 "foreign_ownership",
	"max_allowed":                   "max_allowed",
	"max_allowed_percentage":        "max_allowed",
	"الحد الأعلى المتاح":            "max_allowed",
	"investor_limit":                "investor_limit",
	"strategic_investor_limit":      "investor_limit",
	"investor_limit_percentage":     "investor_limit",
	"حد ملكية المستثمر الاستراتيجي": "investor_limit",
	"as_of":                         "as_of",
	"scrape_date":                   "as_of",
	"date":                          "as_of",
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if canon, ok := columnAliases[h]; ok {
		return canon
	}
	h = strings.NewReplacer(" ", "_", "-", "_", "(%)", "", "%", "").Replace(h)
	h = strings.Trim(h, "_")
	if canon, ok := columnAliases[h]; ok {
		return canon
	}
	return h
}

// Fetch reads the file and returns one row per symbol. Rows without an
// as_of column are dated today.
func (s *FileSource) Fetch(ctx context.Context) ([]model.Ownership, error) {
	table, err := fetcher.ReadTable(ctx, s.path)
	if err != nil {
		return nil, eris.Wrap(err, "ownership: read file")
	}
	rows, err := ParseRows(table, s.now())
	if err != nil {
		return nil, eris.Wrapf(err, "ownership: %s", s.path)
	}
	zap.L().Info("ownership: imported file",
		zap.String("path", s.path),
		zap.Int("companies", len(rows)),
	)
	return rows, nil
}

// ParseRows converts a header-first table into ownership rows.
func ParseRows(table [][]string, defaultAsOf time.Time) ([]model.Ownership, error) {
	if len(table) < 2 {
		return nil, eris.New("ownership: table has no data rows")
	}
	idx := make(map[string]int)
	for i, h := range table[0] {
		if _, dup := idx[normalizeHeader(h)]; !dup {
			idx[normalizeHeader(h)] = i
		}
	}
	if _, ok := idx["symbol"]; !ok {
		return nil, eris.New("ownership: missing symbol column")
	}
	if _, ok := idx["foreign_ownership"]; !ok {
		return nil, eris.New("ownership: missing foreign_ownership column")
	}

	get := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var out []model.Ownership
	for n, rec := range table[1:] {
		asOf := defaultAsOf
		if raw := strings.TrimSpace(get(rec, "as_of")); raw != "" {
			t, err := parseDate(raw)
			if err != nil {
				zap.L().Warn("ownership: bad as_of, skipping row",
					zap.Int("row", n+2),
					zap.String("raw", raw),
				)
				continue
			}
			asOf = t
		}
		o, ok := row(get(rec, "symbol"), get(rec, "company_name"), get(rec, "foreign_ownership"),
			get(rec, "max_allowed"), get(rec, "investor_limit"), asOf)
		if !ok {
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return nil, eris.New("ownership: no usable rows")
	}
	return out, nil
}

var dateLayouts = []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05", "02/01/2006", "2006/01/02"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, eris.Errorf("ownership: unrecognized date %q", s)
}
