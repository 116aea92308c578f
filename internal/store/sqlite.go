package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/reinvest-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS results (
	id              TEXT NOT NULL,
	company_symbol  TEXT NOT NULL,
	year            INTEGER NOT NULL,
	pdf_filename    TEXT NOT NULL,
	success         INTEGER NOT NULL DEFAULT 0,
	value           TEXT,
	method          TEXT,
	flag_for_review INTEGER NOT NULL DEFAULT 0,
	result          TEXT NOT NULL,
	extracted_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (company_symbol, year)
);

CREATE TABLE IF NOT EXISTS ownership (
	symbol            TEXT NOT NULL,
	company_name      TEXT NOT NULL DEFAULT '',
	foreign_ownership TEXT,
	max_allowed       TEXT,
	investor_limit    TEXT,
	as_of             TEXT NOT NULL,
	PRIMARY KEY (symbol, as_of)
);

CREATE TABLE IF NOT EXISTS derived_earnings (
	id                   TEXT NOT NULL,
	company_symbol       TEXT NOT NULL,
	year                 INTEGER NOT NULL,
	retained_earnings    TEXT NOT NULL,
	ownership_percentage TEXT NOT NULL,
	reinvested_earnings  TEXT NOT NULL,
	currency             TEXT NOT NULL,
	method               TEXT,
	pdf_filename         TEXT,
	calculation_date     DATETIME NOT NULL,
	basis                TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (company_symbol, year)
);

CREATE TABLE IF NOT EXISTS evidence_artifacts (
	company_symbol  TEXT PRIMARY KEY,
	value           TEXT NOT NULL,
	screenshot_path TEXT NOT NULL,
	pdf_filename    TEXT NOT NULL,
	location        TEXT,
	verified        INTEGER
);

CREATE INDEX IF NOT EXISTS idx_results_success ON results(success);
CREATE INDEX IF NOT EXISTS idx_ownership_symbol_as_of ON ownership(symbol, as_of DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveResult(ctx context.Context, rec model.DocumentRecord) error {
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.ExtractedAt.IsZero() {
		rec.ExtractedAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (id, company_symbol, year, pdf_filename, success, value, method, flag_for_review, result, extracted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_symbol, year) DO UPDATE SET
			pdf_filename = excluded.pdf_filename,
			success = excluded.success,
			value = excluded.value,
			method = excluded.method,
			flag_for_review = excluded.flag_for_review,
			result = excluded.result,
			extracted_at = excluded.extracted_at,
			updated_at = excluded.updated_at`,
		rec.ID, rec.CompanySymbol, rec.Year, rec.PDFFilename,
		rec.Result.Success, rec.Result.Value, string(rec.Result.Method), rec.Result.FlagForReview,
		string(resultJSON), rec.ExtractedAt.UTC(), now,
	)
	return eris.Wrapf(err, "sqlite: save result %s/%d", rec.CompanySymbol, rec.Year)
}

const sqliteResultColumns = `id, company_symbol, year, pdf_filename, result, extracted_at, updated_at`

func (s *SQLiteStore) GetResult(ctx context.Context, symbol string, year int) (*model.DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteResultColumns+` FROM results WHERE company_symbol = ? AND year = ?`,
		symbol, year,
	)
	rec, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get result %s/%d", symbol, year)
	}
	return rec, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.DocumentRecord, error) {
	query := `SELECT ` + sqliteResultColumns + ` FROM results WHERE 1=1`
	var args []any

	if filter.Symbol != "" {
		query += ` AND company_symbol = ?`
		args = append(args, filter.Symbol)
	}
	if filter.Year != 0 {
		query += ` AND year = ?`
		args = append(args, filter.Year)
	}
	if filter.SuccessOnly {
		query += ` AND success = 1`
	}
	if filter.FlaggedOnly {
		query += ` AND flag_for_review = 1`
	}
	query += ` ORDER BY company_symbol, year DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close()

	var out []model.DocumentRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

func (s *SQLiteStore) SaveOwnership(ctx context.Context, rows []model.Ownership) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin ownership tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ownership (symbol, company_name, foreign_ownership, max_allowed, investor_limit, as_of)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, as_of) DO UPDATE SET
			company_name = excluded.company_name,
			foreign_ownership = excluded.foreign_ownership,
			max_allowed = excluded.max_allowed,
			investor_limit = excluded.investor_limit`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare ownership upsert")
	}
	defer stmt.Close()

	for _, o := range rows {
		if _, err := stmt.ExecContext(ctx,
			o.Symbol, o.CompanyName, decimalArg(o.ForeignOwnership), decimalArg(o.MaxAllowed), decimalArg(o.InvestorLimit),
			dateOnly(o.AsOf).Format(time.DateOnly),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert ownership %s", o.Symbol)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit ownership")
	}
	return len(rows), nil
}

const sqliteOwnershipColumns = `symbol, company_name, foreign_ownership, max_allowed, investor_limit, as_of`

func (s *SQLiteStore) LatestOwnership(ctx context.Context, symbol string, asOf time.Time) (*model.Ownership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteOwnershipColumns+` FROM ownership WHERE symbol = ? AND as_of <= ? ORDER BY as_of DESC LIMIT 1`,
		symbol, dateOnly(asOf).Format(time.DateOnly),
	)
	o, err := scanSQLiteOwnership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest ownership %s", symbol)
	}
	return o, nil
}

func (s *SQLiteStore) ListOwnership(ctx context.Context, symbol string) ([]model.Ownership, error) {
	query := `SELECT ` + sqliteOwnershipColumns + ` FROM ownership`
	var args []any
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY symbol, as_of DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ownership")
	}
	defer rows.Close()

	var out []model.Ownership
	for rows.Next() {
		o, err := scanSQLiteOwnership(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ownership")
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list ownership iterate")
}

const sqliteDerivedInsert = `
	INSERT INTO derived_earnings (id, company_symbol, year, retained_earnings, ownership_percentage, reinvested_earnings, currency, method, pdf_filename, calculation_date, basis)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func derivedArgs(rec model.DerivedEarningsRecord) []any {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return []any{
		rec.ID, rec.CompanySymbol, rec.Year,
		rec.RetainedEarnings.String(), rec.OwnershipPercentage.String(), rec.Reinvested.String(),
		rec.Currency, string(rec.Method), rec.PDFFilename, rec.CalculationDate.UTC(), string(rec.Basis),
	}
}

func (s *SQLiteStore) InsertDerived(ctx context.Context, rec model.DerivedEarningsRecord) error {
	res, err := s.db.ExecContext(ctx, sqliteDerivedInsert+` ON CONFLICT (company_symbol, year) DO NOTHING`, derivedArgs(rec)...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert derived %s/%d", rec.CompanySymbol, rec.Year)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrDerivedExists, "%s/%d", rec.CompanySymbol, rec.Year)
	}
	return nil
}

func (s *SQLiteStore) ReplaceDerived(ctx context.Context, rec model.DerivedEarningsRecord) error {
	_, err := s.db.ExecContext(ctx, sqliteDerivedInsert+`
		ON CONFLICT (company_symbol, year) DO UPDATE SET
			id = excluded.id,
			retained_earnings = excluded.retained_earnings,
			ownership_percentage = excluded.ownership_percentage,
			reinvested_earnings = excluded.reinvested_earnings,
			currency = excluded.currency,
			method = excluded.method,
			pdf_filename = excluded.pdf_filename,
			calculation_date = excluded.calculation_date,
			basis = excluded.basis`,
		derivedArgs(rec)...)
	return eris.Wrapf(err, "sqlite: replace derived %s/%d", rec.CompanySymbol, rec.Year)
}

const derivedColumns = `id, company_symbol, year, retained_earnings, ownership_percentage, reinvested_earnings, currency, method, pdf_filename, calculation_date, basis`

func (s *SQLiteStore) GetDerived(ctx context.Context, symbol string, year int) (*model.DerivedEarningsRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+derivedColumns+` FROM derived_earnings WHERE company_symbol = ? AND year = ?`,
		symbol, year,
	)
	rec, err := scanDerived(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get derived %s/%d", symbol, year)
	}
	return rec, nil
}

func (s *SQLiteStore) DeleteDerived(ctx context.Context, symbol string, year int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM derived_earnings WHERE company_symbol = ? AND year = ?`, symbol, year)
	return eris.Wrapf(err, "sqlite: delete derived %s/%d", symbol, year)
}

func (s *SQLiteStore) ListDerived(ctx context.Context) ([]model.DerivedEarningsRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+derivedColumns+` FROM derived_earnings ORDER BY company_symbol, year DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list derived")
	}
	defer rows.Close()

	var out []model.DerivedEarningsRecord
	for rows.Next() {
		rec, err := scanDerived(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan derived")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list derived iterate")
}

func (s *SQLiteStore) SaveArtifact(ctx context.Context, art model.EvidenceArtifact) error {
	var loc []byte
	if art.Location != nil {
		var err error
		if loc, err = json.Marshal(art.Location); err != nil {
			return eris.Wrap(err, "sqlite: marshal location")
		}
	}
	var verified sql.NullBool
	if art.Verified != nil {
		verified = sql.NullBool{Bool: *art.Verified, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence_artifacts (company_symbol, value, screenshot_path, pdf_filename, location, verified)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_symbol) DO UPDATE SET
			value = excluded.value,
			screenshot_path = excluded.screenshot_path,
			pdf_filename = excluded.pdf_filename,
			location = excluded.location,
			verified = excluded.verified`,
		art.CompanySymbol, art.Value, art.ScreenshotPath, art.PDFFilename, nullString(loc), verified,
	)
	return eris.Wrapf(err, "sqlite: save artifact %s", art.CompanySymbol)
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context) ([]model.EvidenceArtifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_symbol, value, screenshot_path, pdf_filename, location, verified FROM evidence_artifacts ORDER BY company_symbol`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list artifacts")
	}
	defer rows.Close()

	var out []model.EvidenceArtifact
	for rows.Next() {
		var art model.EvidenceArtifact
		var loc sql.NullString
		var verified sql.NullBool
		if err := rows.Scan(&art.CompanySymbol, &art.Value, &art.ScreenshotPath, &art.PDFFilename, &loc, &verified); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan artifact")
		}
		if err := decodeArtifact(&art, []byte(loc.String), verified); err != nil {
			return nil, err
		}
		out = append(out, art)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list artifacts iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanResult(row scannable) (*model.DocumentRecord, error) {
	var rec model.DocumentRecord
	var resultJSON []byte
	if err := row.Scan(&rec.ID, &rec.CompanySymbol, &rec.Year, &rec.PDFFilename, &resultJSON, &rec.ExtractedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
		return nil, eris.Wrap(err, "unmarshal result")
	}
	return &rec, nil
}

func scanSQLiteOwnership(row scannable) (*model.Ownership, error) {
	var o model.Ownership
	var asOf string
	if err := row.Scan(&o.Symbol, &o.CompanyName, &o.ForeignOwnership, &o.MaxAllowed, &o.InvestorLimit, &asOf); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.DateOnly, asOf)
	if err != nil {
		return nil, eris.Wrapf(err, "parse as_of %q", asOf)
	}
	o.AsOf = t
	return &o, nil
}

func scanDerived(row scannable) (*model.DerivedEarningsRecord, error) {
	var rec model.DerivedEarningsRecord
	var method, pdf sql.NullString
	var basis string
	if err := row.Scan(&rec.ID, &rec.CompanySymbol, &rec.Year,
		&rec.RetainedEarnings, &rec.OwnershipPercentage, &rec.Reinvested,
		&rec.Currency, &method, &pdf, &rec.CalculationDate, &basis); err != nil {
		return nil, err
	}
	rec.Basis = model.OwnershipBasis(basis)
	rec.Method = model.Method(method.String)
	rec.PDFFilename = pdf.String
	return &rec, nil
}

func decodeArtifact(art *model.EvidenceArtifact, loc []byte, verified sql.NullBool) error {
	if len(loc) > 0 {
		art.Location = &model.EvidenceLocation{}
		if err := json.Unmarshal(loc, art.Location); err != nil {
			return eris.Wrap(err, "store: unmarshal location")
		}
	}
	if verified.Valid {
		v := verified.Bool
		art.Verified = &v
	}
	return nil
}

func nullString(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}

// decimalArg renders a nullable decimal for text columns.
func decimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
