package ownership

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reinvest-cli/internal/config"
	"github.com/sells-group/reinvest-cli/internal/fetcher"
	"github.com/sells-group/reinvest-cli/internal/model"
)

const ownershipHTML = `<html><body>
<table>
  <thead><tr><th>الرمز</th><th>الشركة</th><th>ملكية الأجانب</th><th>الحد الأعلى</th><th>المستثمر الاستراتيجي</th></tr></thead>
  <tbody>
    <tr><td> 1120 </td><td>مصرف الراجحي</td><td>12.50%</td><td>49.00%</td><td>10.00%</td></tr>
    <tr><td>2010</td><td>سابك</td><td>١٢٫٣٤٪</td><td>-</td><td>49</td></tr>
    <tr><td>2222</td><td>أرامكو</td><td>n/a</td><td>49%</td><td></td></tr>
    <tr><td colspan="5">إجمالي</td></tr>
    <tr><td>1120</td><td>duplicate</td><td>1%</td><td>1%</td><td>1%</td></tr>
    <tr><td></td><td>blank</td><td>1%</td><td>1%</td><td>1%</td></tr>
  </tbody>
</table>
</body></html>`

var snapshot = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func TestParsePercent(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"12.50%", "12.5", true},
		{" 49 ", "49", true},
		{"١٢٫٥٠٪", "12.5", true},
		{"1,000.5", "1000.5", true},
		{"0%", "0", true},
		{"", "", false},
		{"-", "", false},
		{"--", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePercent(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.Equal(t, tt.want, got.Decimal.String())
			}
		})
	}
}

func TestParsePercent_Invalid(t *testing.T) {
	_, err := ParsePercent("n/a")
	assert.Error(t, err)
}

func TestParseTable(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(ownershipHTML))
	require.NoError(t, err)

	rows := ParseTable(doc, snapshot)
	require.Len(t, rows, 3)

	assert.Equal(t, "1120", rows[0].Symbol)
	assert.Equal(t, "مصرف الراجحي", rows[0].CompanyName)
	assert.Equal(t, "12.5", rows[0].ForeignOwnership.Decimal.String())
	assert.Equal(t, "49", rows[0].MaxAllowed.Decimal.String())
	assert.Equal(t, "10", rows[0].InvestorLimit.Decimal.String())
	assert.Equal(t, snapshot, rows[0].AsOf)

	assert.Equal(t, "12.34", rows[1].ForeignOwnership.Decimal.String())
	assert.False(t, rows[1].MaxAllowed.Valid)

	assert.False(t, rows[2].ForeignOwnership.Valid, "unparseable cell is left null")
	assert.True(t, rows[2].MaxAllowed.Valid)
	assert.False(t, rows[2].InvestorLimit.Valid)
}

func TestTadawul_Fetch(t *testing.T) {
	var gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(ownershipHTML))
	}))
	defer srv.Close()

	p, err := NewProvider(config.OwnershipConfig{Source: "tadawul", URL: srv.URL, TimeoutSecs: 5})
	require.NoError(t, err)
	tw, ok := p.(*Tadawul)
	require.True(t, ok)
	tw.now = func() time.Time { return snapshot }

	rows, err := tw.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Contains(t, gotLang, "ar-SA")
}

func TestTadawul_EmptyTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>maintenance</p></body></html>"))
	}))
	defer srv.Close()

	tw := NewTadawul(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1}), srv.URL)
	_, err := tw.Fetch(context.Background())
	assert.ErrorContains(t, err, "no rows found")
}

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	args := m.Called(ctx, url)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func TestTadawul_DownloadError(t *testing.T) {
	f := &mockFetcher{}
	f.On("Download", mock.Anything, DefaultURL).Return(nil, assert.AnError)

	_, err := NewTadawul(f, "").Fetch(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	f.AssertExpectations(t)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSource_CSV(t *testing.T) {
	path := writeFile(t, "ownership.csv",
		"Company Name,Symbol,Foreign Ownership (%),Max Allowed,Investor Limit,Scrape Date\n"+
			"Al Rajhi,1120,12.50,49,10,2024-12-31\n"+
			"SABIC,2010,5%,49%,,\n"+
			",,1,1,1,\n"+
			"Bad,3030,1,1,1,not-a-date\n")

	src := NewFileSource(path)
	src.now = func() time.Time { return snapshot }
	rows, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "1120", rows[0].Symbol)
	assert.Equal(t, "Al Rajhi", rows[0].CompanyName)
	assert.Equal(t, "12.5", rows[0].ForeignOwnership.Decimal.String())
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), rows[0].AsOf)

	assert.Equal(t, "2010", rows[1].Symbol)
	assert.Equal(t, snapshot, rows[1].AsOf, "missing date falls back to today")
	assert.False(t, rows[1].InvestorLimit.Valid)
}

func TestParseRows_MissingColumns(t *testing.T) {
	_, err := ParseRows([][]string{{"name", "foreign_ownership"}, {"x", "1"}}, snapshot)
	assert.ErrorContains(t, err, "missing symbol column")

	_, err = ParseRows([][]string{{"symbol", "name"}, {"1120", "x"}}, snapshot)
	assert.ErrorContains(t, err, "missing foreign_ownership column")

	_, err = ParseRows([][]string{{"symbol", "foreign_ownership"}}, snapshot)
	assert.ErrorContains(t, err, "no data rows")
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "symbol", normalizeHeader(" Ticker "))
	assert.Equal(t, "foreign_ownership", normalizeHeader("Foreign Ownership (%)"))
	assert.Equal(t, "investor_limit", normalizeHeader("Strategic-Investor-Limit"))
	assert.Equal(t, "as_of", normalizeHeader("scrape_date"))
	assert.Equal(t, "other_col", normalizeHeader("Other Col"))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.OwnershipConfig{Source: "csv", CSVPath: "x.csv"})
	require.NoError(t, err)
	assert.IsType(t, &FileSource{}, p)

	_, err = NewProvider(config.OwnershipConfig{Source: "csv"})
	assert.ErrorContains(t, err, "csv_path is required")

	_, err = NewProvider(config.OwnershipConfig{Source: "bloomberg"})
	assert.ErrorContains(t, err, "unknown source")
}

type stubProvider struct {
	rows []model.Ownership
	err  error
}

func (s stubProvider) Fetch(context.Context) ([]model.Ownership, error) { return s.rows, s.err }

type mockSink struct{ mock.Mock }

func (m *mockSink) SaveOwnership(ctx context.Context, rows []model.Ownership) (int, error) {
	args := m.Called(ctx, rows)
	return args.Int(0), args.Error(1)
}

func TestSync(t *testing.T) {
	rows := []model.Ownership{{Symbol: "1120", AsOf: snapshot}}
	sink := &mockSink{}
	sink.On("SaveOwnership", mock.Anything, rows).Return(1, nil).Once()

	n, err := Sync(context.Background(), stubProvider{rows: rows}, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = Sync(context.Background(), stubProvider{err: assert.AnError}, sink)
	assert.ErrorIs(t, err, assert.AnError)

	sink.On("SaveOwnership", mock.Anything, rows).Return(0, assert.AnError).Once()
	_, err = Sync(context.Background(), stubProvider{rows: rows}, sink)
	assert.ErrorContains(t, err, "ownership: save")
	sink.AssertExpectations(t)
}
