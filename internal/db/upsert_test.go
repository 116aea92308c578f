package db

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ownershipUpsert = UpsertConfig{
	Table:        "ownership",
	Columns:      []string{"symbol", "as_of", "foreign_ownership"},
	ConflictKeys: []string{"symbol", "as_of"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, ownershipUpsert, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_Validation(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "ownership",
		ConflictKeys: []string{"symbol"},
	}, [][]any{{"2222"}})
	assert.ErrorContains(t, err, "no columns specified")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "ownership",
		Columns: []string{"symbol"},
	}, [][]any{{"2222"}})
	assert.ErrorContains(t, err, "no conflict keys specified")
}

func TestBulkUpsert_CopiesThroughTempTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_ownership" \(LIKE "ownership" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`ALTER TABLE "_tmp_upsert_ownership" ADD COLUMN _ord BIGSERIAL`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_ownership"}, ownershipUpsert.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "ownership" .* SELECT DISTINCT ON \("symbol", "as_of"\) .* ON CONFLICT \("symbol", "as_of"\) DO UPDATE SET "foreign_ownership" = EXCLUDED."foreign_ownership"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{{"2222", "2024-12-31", "1.25"}, {"1120", "2024-12-31", "12.50"}}
	n, err := BulkUpsert(context.Background(), mock, ownershipUpsert, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeSQL(t *testing.T) {
	got := mergeSQL(ownershipUpsert, "_tmp_upsert_ownership")
	assert.Equal(t, `INSERT INTO "ownership" ("symbol", "as_of", "foreign_ownership") `+
		`SELECT DISTINCT ON ("symbol", "as_of") "symbol", "as_of", "foreign_ownership" FROM "_tmp_upsert_ownership" `+
		`ORDER BY "symbol", "as_of", _ord DESC `+
		`ON CONFLICT ("symbol", "as_of") DO UPDATE SET "foreign_ownership" = EXCLUDED."foreign_ownership"`, got)
}

func TestMergeSQL_KeysOnlyDoNothing(t *testing.T) {
	cfg := UpsertConfig{Table: "public.symbols", Columns: []string{"symbol"}, ConflictKeys: []string{"symbol"}}
	got := mergeSQL(cfg, "_tmp_upsert_public_symbols")
	assert.Contains(t, got, `INSERT INTO "public"."symbols"`)
	assert.True(t, strings.HasSuffix(got, `ON CONFLICT ("symbol") DO NOTHING`))
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`ALTER TABLE`).WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_ownership"}, ownershipUpsert.Columns).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, ownershipUpsert, [][]any{{"2222", "2024-12-31", "1.25"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for ownership")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ownership", `"ownership"`},
		{"public.ownership", `"public"."ownership"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"symbol", "as_of"`, quoteAndJoin([]string{"symbol", "as_of"}))
}
