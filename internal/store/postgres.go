package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reinvest-cli/internal/db"
	"github.com/sells-group/reinvest-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(8)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS results (
	id              TEXT NOT NULL DEFAULT gen_random_uuid()::text,
	company_symbol  TEXT NOT NULL,
	year            INTEGER NOT NULL,
	pdf_filename    TEXT NOT NULL,
	success         BOOLEAN NOT NULL DEFAULT false,
	value           TEXT,
	method          TEXT,
	flag_for_review BOOLEAN NOT NULL DEFAULT false,
	result          JSONB NOT NULL,
	extracted_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company_symbol, year)
);

CREATE TABLE IF NOT EXISTS ownership (
	symbol            TEXT NOT NULL,
	company_name      TEXT NOT NULL DEFAULT '',
	foreign_ownership TEXT,
	max_allowed       TEXT,
	investor_limit    TEXT,
	as_of             DATE NOT NULL,
	PRIMARY KEY (symbol, as_of)
);

CREATE TABLE IF NOT EXISTS derived_earnings (
	id                   TEXT NOT NULL DEFAULT gen_random_uuid()::text,
	company_symbol       TEXT NOT NULL,
	year                 INTEGER NOT NULL,
	retained_earnings    TEXT NOT NULL,
	ownership_percentage TEXT NOT NULL,
	reinvested_earnings  TEXT NOT NULL,
	currency             TEXT NOT NULL,
	method               TEXT,
	pdf_filename         TEXT,
	calculation_date     TIMESTAMPTZ NOT NULL,
	basis                TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (company_symbol, year)
);

CREATE TABLE IF NOT EXISTS evidence_artifacts (
	company_symbol  TEXT PRIMARY KEY,
	value           TEXT NOT NULL,
	screenshot_path TEXT NOT NULL,
	pdf_filename    TEXT NOT NULL,
	location        JSONB,
	verified        BOOLEAN
);

CREATE INDEX IF NOT EXISTS idx_results_success ON results(success);
CREATE INDEX IF NOT EXISTS idx_ownership_symbol_as_of ON ownership(symbol, as_of DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, rec model.DocumentRecord) error {
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.ExtractedAt.IsZero() {
		rec.ExtractedAt = now
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO results (id, company_symbol, year, pdf_filename, success, value, method, flag_for_review, result, extracted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (company_symbol, year) DO UPDATE SET
			pdf_filename = EXCLUDED.pdf_filename,
			success = EXCLUDED.success,
			value = EXCLUDED.value,
			method = EXCLUDED.method,
			flag_for_review = EXCLUDED.flag_for_review,
			result = EXCLUDED.result,
			extracted_at = EXCLUDED.extracted_at,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.CompanySymbol, rec.Year, rec.PDFFilename,
		rec.Result.Success, rec.Result.Value, string(rec.Result.Method), rec.Result.FlagForReview,
		resultJSON, rec.ExtractedAt.UTC(), now,
	)
	return eris.Wrapf(err, "postgres: save result %s/%d", rec.CompanySymbol, rec.Year)
}

const pgResultColumns = `id, company_symbol, year, pdf_filename, result, extracted_at, updated_at`

func (s *PostgresStore) GetResult(ctx context.Context, symbol string, year int) (*model.DocumentRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgResultColumns+` FROM results WHERE company_symbol = $1 AND year = $2`,
		symbol, year,
	)
	rec, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get result %s/%d", symbol, year)
	}
	return rec, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.DocumentRecord, error) {
	query := `SELECT ` + pgResultColumns + ` FROM results WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Symbol != "" {
		query += fmt.Sprintf(" AND company_symbol = $%d", argIdx)
		args = append(args, filter.Symbol)
		argIdx++
	}
	if filter.Year != 0 {
		query += fmt.Sprintf(" AND year = $%d", argIdx)
		args = append(args, filter.Year)
	}
	if filter.SuccessOnly {
		query += ` AND success`
	}
	if filter.FlaggedOnly {
		query += ` AND flag_for_review`
	}
	query += ` ORDER BY company_symbol, year DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []model.DocumentRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

var ownershipUpsert = db.UpsertConfig{
	Table:        "ownership",
	Columns:      []string{"symbol", "company_name", "foreign_ownership", "max_allowed", "investor_limit", "as_of"},
	ConflictKeys: []string{"symbol", "as_of"},
}

func (s *PostgresStore) SaveOwnership(ctx context.Context, rows []model.Ownership) (int, error) {
	batch := make([][]any, 0, len(rows))
	for _, o := range rows {
		batch = append(batch, []any{
			o.Symbol, o.CompanyName,
			decimalArg(o.ForeignOwnership), decimalArg(o.MaxAllowed), decimalArg(o.InvestorLimit),
			dateOnly(o.AsOf),
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, ownershipUpsert, batch)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save ownership")
	}
	return int(n), nil
}

const pgOwnershipColumns = `symbol, company_name, foreign_ownership, max_allowed, investor_limit, as_of`

func (s *PostgresStore) LatestOwnership(ctx context.Context, symbol string, asOf time.Time) (*model.Ownership, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgOwnershipColumns+` FROM ownership WHERE symbol = $1 AND as_of <= $2 ORDER BY as_of DESC LIMIT 1`,
		symbol, dateOnly(asOf),
	)
	o, err := scanPostgresOwnership(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest ownership %s", symbol)
	}
	return o, nil
}

func (s *PostgresStore) ListOwnership(ctx context.Context, symbol string) ([]model.Ownership, error) {
	query := `SELECT ` + pgOwnershipColumns + ` FROM ownership`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = $1`
		args = append(args, symbol)
	}
	query += ` ORDER BY symbol, as_of DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ownership")
	}
	defer rows.Close()

	var out []model.Ownership
	for rows.Next() {
		o, err := scanPostgresOwnership(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan ownership")
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list ownership iterate")
}

const pgDerivedInsert = `
	INSERT INTO derived_earnings (id, company_symbol, year, retained_earnings, ownership_percentage, reinvested_earnings, currency, method, pdf_filename, calculation_date, basis)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (s *PostgresStore) InsertDerived(ctx context.Context, rec model.DerivedEarningsRecord) error {
	tag, err := s.pool.Exec(ctx, pgDerivedInsert+` ON CONFLICT (company_symbol, year) DO NOTHING`, derivedArgs(rec)...)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert derived %s/%d", rec.CompanySymbol, rec.Year)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrDerivedExists, "%s/%d", rec.CompanySymbol, rec.Year)
	}
	return nil
}

func (s *PostgresStore) ReplaceDerived(ctx context.Context, rec model.DerivedEarningsRecord) error {
	_, err := s.pool.Exec(ctx, pgDerivedInsert+`
		ON CONFLICT (company_symbol, year) DO UPDATE SET
			id = EXCLUDED.id,
			retained_earnings = EXCLUDED.retained_earnings,
			ownership_percentage = EXCLUDED.ownership_percentage,
			reinvested_earnings = EXCLUDED.reinvested_earnings,
			currency = EXCLUDED.currency,
			method = EXCLUDED.method,
			pdf_filename = EXCLUDED.pdf_filename,
			calculation_date = EXCLUDED.calculation_date,
			basis = EXCLUDED.basis`,
		derivedArgs(rec)...)
	return eris.Wrapf(err, "postgres: replace derived %s/%d", rec.CompanySymbol, rec.Year)
}

func (s *PostgresStore) GetDerived(ctx context.Context, symbol string, year int) (*model.DerivedEarningsRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+derivedColumns+` FROM derived_earnings WHERE company_symbol = $1 AND year = $2`,
		symbol, year,
	)
	rec, err := scanDerived(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get derived %s/%d", symbol, year)
	}
	return rec, nil
}

func (s *PostgresStore) DeleteDerived(ctx context.Context, symbol string, year int) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM derived_earnings WHERE company_symbol = $1 AND year = $2`, symbol, year)
	return eris.Wrapf(err, "postgres: delete derived %s/%d", symbol, year)
}

func (s *PostgresStore) ListDerived(ctx context.Context) ([]model.DerivedEarningsRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+derivedColumns+` FROM derived_earnings ORDER BY company_symbol, year DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list derived")
	}
	defer rows.Close()

	var out []model.DerivedEarningsRecord
	for rows.Next() {
		rec, err := scanDerived(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan derived")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list derived iterate")
}

func (s *PostgresStore) SaveArtifact(ctx context.Context, art model.EvidenceArtifact) error {
	var loc []byte
	if art.Location != nil {
		var err error
		if loc, err = json.Marshal(art.Location); err != nil {
			return eris.Wrap(err, "postgres: marshal location")
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO evidence_artifacts (company_symbol, value, screenshot_path, pdf_filename, location, verified)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (company_symbol) DO UPDATE SET
			value = EXCLUDED.value,
			screenshot_path = EXCLUDED.screenshot_path,
			pdf_filename = EXCLUDED.pdf_filename,
			location = EXCLUDED.location,
			verified = EXCLUDED.verified`,
		art.CompanySymbol, art.Value, art.ScreenshotPath, art.PDFFilename, loc, art.Verified,
	)
	return eris.Wrapf(err, "postgres: save artifact %s", art.CompanySymbol)
}

func (s *PostgresStore) ListArtifacts(ctx context.Context) ([]model.EvidenceArtifact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_symbol, value, screenshot_path, pdf_filename, location, verified FROM evidence_artifacts ORDER BY company_symbol`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list artifacts")
	}
	defer rows.Close()

	var out []model.EvidenceArtifact
	for rows.Next() {
		var art model.EvidenceArtifact
		var loc []byte
		if err := rows.Scan(&art.CompanySymbol, &art.Value, &art.ScreenshotPath, &art.PDFFilename, &loc, &art.Verified); err != nil {
			return nil, eris.Wrap(err, "postgres: scan artifact")
		}
		if len(loc) > 0 {
			art.Location = &model.EvidenceLocation{}
			if err := json.Unmarshal(loc, art.Location); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal location")
			}
		}
		out = append(out, art)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list artifacts iterate")
}

func scanPostgresOwnership(row scannable) (*model.Ownership, error) {
	var o model.Ownership
	if err := row.Scan(&o.Symbol, &o.CompanyName, &o.ForeignOwnership, &o.MaxAllowed, &o.InvestorLimit, &o.AsOf); err != nil {
		return nil, err
	}
	return &o, nil
}
