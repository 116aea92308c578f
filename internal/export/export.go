// Package export writes extraction results and derived reinvested earnings to
// JSON, CSV and XLSX files.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/reinvest"
	"github.com/sells-group/reinvest-cli/internal/store"
)

// Reasons recorded in the error column.
const (
	ReasonNoOwnership   = "no ownership data"
	ReasonNotCalculated = "not calculated"
)

// Header is the derived report column order.
var Header = []string{
	"company_symbol", "company_name", "foreign_ownership", "max_allowed", "investor_limit",
	"retained_earnings", "reinvested_earnings", "year", "pdf_filename", "error",
}

// Source is the read side of the store the report is built from.
type Source interface {
	ListResults(ctx context.Context, filter store.ResultFilter) ([]model.DocumentRecord, error)
	LatestOwnership(ctx context.Context, symbol string, asOf time.Time) (*model.Ownership, error)
	ListDerived(ctx context.Context) ([]model.DerivedEarningsRecord, error)
}

// Row is one line of the derived report. Every extracted document gets a
// row; Error explains why Reinvested is empty.
type Row struct {
	CompanySymbol    string
	CompanyName      string
	ForeignOwnership decimal.NullDecimal
	MaxAllowed       decimal.NullDecimal
	InvestorLimit    decimal.NullDecimal
	RetainedEarnings decimal.NullDecimal
	Reinvested       decimal.NullDecimal
	Year             int
	PDFFilename      string
	Error            string
}

// Strings renders the row in Header order.
func (r Row) Strings() []string {
	year := ""
	if r.Year != 0 {
		year = strconv.Itoa(r.Year)
	}
	return []string{
		r.CompanySymbol,
		r.CompanyName,
		nullString(r.ForeignOwnership),
		nullString(r.MaxAllowed),
		nullString(r.InvestorLimit),
		nullString(r.RetainedEarnings),
		nullFixed(r.Reinvested),
		year,
		r.PDFFilename,
		r.Error,
	}
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func nullFixed(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

// BuildRows joins every stored result with its ownership snapshot and
// derived record. Rows are ordered by symbol, then year.
func BuildRows(ctx context.Context, src Source) ([]Row, error) {
	results, err := src.ListResults(ctx, store.ResultFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "export: list results")
	}
	derived, err := src.ListDerived(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "export: list derived")
	}
	byKey := make(map[string]model.DerivedEarningsRecord, len(derived))
	for _, d := range derived {
		byKey[key(d.CompanySymbol, d.Year)] = d
	}

	rows := make([]Row, 0, len(results))
	for _, rec := range results {
		row := Row{
			CompanySymbol: rec.CompanySymbol,
			Year:          rec.Year,
			PDFFilename:   rec.PDFFilename,
		}
		if amount, ok := rec.Result.Amount(); ok {
			row.RetainedEarnings = decimal.NewNullDecimal(amount)
		}

		own, err := src.LatestOwnership(ctx, rec.CompanySymbol, reinvest.YearEnd(rec.Year))
		if err != nil {
			return nil, eris.Wrapf(err, "export: ownership %s/%d", rec.CompanySymbol, rec.Year)
		}
		if own != nil {
			row.CompanyName = own.CompanyName
			row.ForeignOwnership = own.ForeignOwnership
			row.MaxAllowed = own.MaxAllowed
			row.InvestorLimit = own.InvestorLimit
		}

		d, hasDerived := byKey[key(rec.CompanySymbol, rec.Year)]
		switch {
		case !rec.Result.Success:
			row.Error = rec.Result.ErrorReason
			if row.Error == "" {
				row.Error = model.NoValueReason
			}
		case hasDerived:
			row.RetainedEarnings = decimal.NewNullDecimal(d.RetainedEarnings)
			row.Reinvested = decimal.NewNullDecimal(d.Reinvested)
		case own == nil:
			row.Error = ReasonNoOwnership
		default:
			row.Error = ReasonNotCalculated
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CompanySymbol != rows[j].CompanySymbol {
			return rows[i].CompanySymbol < rows[j].CompanySymbol
		}
		return rows[i].Year < rows[j].Year
	})
	return rows, nil
}

func key(symbol string, year int) string {
	return symbol + "/" + strconv.Itoa(year)
}

// WriteCSV writes the header and rows as CSV.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "export: write CSV header")
	}
	for _, r := range rows {
		if err := cw.Write(r.Strings()); err != nil {
			return eris.Wrap(err, "export: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush CSV")
}

// WriteXLSX writes the rows to a single "Reinvested Earnings" sheet. Numeric
// columns are stored as numbers so spreadsheets can sum them.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Reinvested Earnings")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range Header {
		hr.AddCell().SetString(h)
	}

	for _, r := range rows {
		xr := sheet.AddRow()
		xr.AddCell().SetString(r.CompanySymbol)
		xr.AddCell().SetString(r.CompanyName)
		for _, d := range []decimal.NullDecimal{r.ForeignOwnership, r.MaxAllowed, r.InvestorLimit} {
			setDecimal(xr.AddCell(), d, "0.00")
		}
		setDecimal(xr.AddCell(), r.RetainedEarnings, "#,##0")
		setDecimal(xr.AddCell(), r.Reinvested, "#,##0.00")
		if r.Year != 0 {
			xr.AddCell().SetInt(r.Year)
		} else {
			xr.AddCell().SetString("")
		}
		xr.AddCell().SetString(r.PDFFilename)
		xr.AddCell().SetString(r.Error)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func setDecimal(c *xlsx.Cell, d decimal.NullDecimal, format string) {
	if !d.Valid {
		c.SetString("")
		return
	}
	f, _ := d.Decimal.Float64()
	c.SetFloatWithFormat(f, format)
}

// WriteJSON writes results as the flat output record array.
func WriteJSON(w io.Writer, recs []model.DocumentRecord) error {
	out := make([]model.OutputRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Output())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}

// Formats accepted by Export.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// FormatFromPath guesses the format from a file extension, defaulting to CSV.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX
	case ".json":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// Export builds the requested report from src and writes it to path, or to
// stdout when path is empty or "-". XLSX requires a path.
func Export(ctx context.Context, src Source, format, path string) (int, error) {
	var (
		n     int
		write func(io.Writer) error
	)
	switch format {
	case FormatJSON:
		recs, err := src.ListResults(ctx, store.ResultFilter{})
		if err != nil {
			return 0, eris.Wrap(err, "export: list results")
		}
		n = len(recs)
		write = func(w io.Writer) error { return WriteJSON(w, recs) }
	case FormatCSV, FormatXLSX:
		rows, err := BuildRows(ctx, src)
		if err != nil {
			return 0, err
		}
		n = len(rows)
		if format == FormatCSV {
			write = func(w io.Writer) error { return WriteCSV(w, rows) }
		} else {
			if path == "" || path == "-" {
				return 0, eris.New("export: xlsx output requires a file path")
			}
			write = func(w io.Writer) error { return WriteXLSX(w, rows) }
		}
	default:
		return 0, eris.Errorf("export: unsupported format %q", format)
	}

	if path == "" || path == "-" {
		return n, write(os.Stdout)
	}
	if err := writeFile(path, write); err != nil {
		return 0, err
	}
	zap.L().Info("export: wrote report",
		zap.String("format", format),
		zap.String("path", path),
		zap.Int("rows", n),
	)
	return n, nil
}

// writeFile writes through a temp file in the target directory and renames
// it into place, so a failed export never truncates an earlier report.
func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "export: create dir %s", dir)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrap(err, "export: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "export: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "export: rename to %s", path)
	}
	return nil
}
