package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reinvest-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS results`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResult_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO results .* ON CONFLICT \(company_symbol, year\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "2222", 2024, "2222_2024.pdf", true, "4509836", "table", false,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveResult(context.Background(), successRecord("2222", 2024, "4509836")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "company_symbol", "year", "pdf_filename", "result", "extracted_at", "updated_at"}).
		AddRow("rec-1", "2222", 2024, "2222_2024.pdf",
			[]byte(`{"success":true,"value":"4,509,836","numeric_value":"4509836","method":"table","currency":"SAR","flag_for_review":false}`),
			now, now)
	mock.ExpectQuery(`SELECT id, company_symbol, year, pdf_filename, result, extracted_at, updated_at FROM results WHERE company_symbol = \$1 AND year = \$2`).
		WithArgs("2222", 2024).
		WillReturnRows(rows)

	got, err := s.GetResult(context.Background(), "2222", 2024)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, "4,509,836", got.Result.Value)
	assert.Equal(t, "4509836", got.Result.NumericValue.Decimal.String())
	assert.Equal(t, now, got.ExtractedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetResult_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM results WHERE company_symbol`).
		WithArgs("9999", 2024).
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetResult(context.Background(), "9999", 2024)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListResults_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM results WHERE true AND company_symbol = \$1 AND year = \$2 AND success AND flag_for_review ORDER BY company_symbol, year DESC`).
		WithArgs("2222", 2024).
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_symbol", "year", "pdf_filename", "result", "extracted_at", "updated_at"}))

	got, err := s.ListResults(context.Background(), ResultFilter{Symbol: "2222", Year: 2024, SuccessOnly: true, FlaggedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestOwnership_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	asOf := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM ownership WHERE symbol = \$1 AND as_of <= \$2 ORDER BY as_of DESC LIMIT 1`).
		WithArgs("2222", asOf).
		WillReturnError(pgx.ErrNoRows)

	got, err := s.LatestOwnership(context.Background(), "2222", asOf.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveOwnership_BulkUpsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`ALTER TABLE`).WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_ownership"}, ownershipUpsert.Columns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "ownership"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.SaveOwnership(context.Background(), []model.Ownership{
		{Symbol: "2222", ForeignOwnership: pct("1.25"), AsOf: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostgresStore_SaveOwnership_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.SaveOwnership(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertDerived_Exists(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO derived_earnings .* ON CONFLICT \(company_symbol, year\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := s.InsertDerived(context.Background(), model.DerivedEarningsRecord{CompanySymbol: "1120", Year: 2024})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDerivedExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceDerived(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO derived_earnings .* DO UPDATE SET`).
		WithArgs(pgxmock.AnyArg(), "1120", 2024, "4509836", "12.5", "563729.5", "SAR", "manual_correction", "", pgxmock.AnyArg(), "max_allowed").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.ReplaceDerived(context.Background(), model.DerivedEarningsRecord{
		CompanySymbol:       "1120",
		Year:                2024,
		RetainedEarnings:    pct("4509836").Decimal,
		OwnershipPercentage: pct("12.50").Decimal,
		Reinvested:          pct("563729.50").Decimal,
		Currency:            "SAR",
		Method:              model.MethodManualCorrection,
		Basis:               model.BasisMaxAllowed,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteDerived(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM derived_earnings WHERE company_symbol = \$1 AND year = \$2`).
		WithArgs("5050", 2024).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.DeleteDerived(context.Background(), "5050", 2024))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveArtifact(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO evidence_artifacts .* ON CONFLICT \(company_symbol\) DO UPDATE`).
		WithArgs("2222", "4,509,836", "evidence/2222_evidence.png", "2222_2024.pdf", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveArtifact(context.Background(), model.EvidenceArtifact{
		CompanySymbol:  "2222",
		Value:          "4,509,836",
		ScreenshotPath: "evidence/2222_evidence.png",
		PDFFilename:    "2222_2024.pdf",
		Location:       &model.EvidenceLocation{Page: 5},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
