package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reinvest-cli/internal/config"
	"github.com/sells-group/reinvest-cli/internal/model"
)

// ErrDerivedExists is returned by InsertDerived when the company/year already
// has a derived record. Only ReplaceDerived may overwrite one.
var ErrDerivedExists = eris.New("store: derived record already exists")

// ResultFilter specifies criteria for listing extraction results.
type ResultFilter struct {
	Symbol      string `json:"symbol,omitempty"`
	Year        int    `json:"year,omitempty"`
	SuccessOnly bool   `json:"success_only,omitempty"`
	FlaggedOnly bool   `json:"flagged_only,omitempty"`
}

// Store defines the persistence interface for extraction results, ownership
// data, derived earnings and evidence artifacts.
type Store interface {
	// Extraction results, one per company/year.
	SaveResult(ctx context.Context, rec model.DocumentRecord) error
	GetResult(ctx context.Context, symbol string, year int) (*model.DocumentRecord, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]model.DocumentRecord, error)

	// Ownership snapshots, one per symbol/date.
	SaveOwnership(ctx context.Context, rows []model.Ownership) (int, error)
	LatestOwnership(ctx context.Context, symbol string, asOf time.Time) (*model.Ownership, error)
	ListOwnership(ctx context.Context, symbol string) ([]model.Ownership, error)

	// Derived earnings
	InsertDerived(ctx context.Context, rec model.DerivedEarningsRecord) error
	ReplaceDerived(ctx context.Context, rec model.DerivedEarningsRecord) error
	GetDerived(ctx context.Context, symbol string, year int) (*model.DerivedEarningsRecord, error)
	DeleteDerived(ctx context.Context, symbol string, year int) error
	ListDerived(ctx context.Context) ([]model.DerivedEarningsRecord, error)

	// Evidence artifacts, one per company.
	SaveArtifact(ctx context.Context, art model.EvidenceArtifact) error
	ListArtifacts(ctx context.Context) ([]model.EvidenceArtifact, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver. The caller runs Migrate.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// dateOnly truncates t to a UTC calendar date.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
