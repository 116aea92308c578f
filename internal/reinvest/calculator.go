// Package reinvest derives reinvested earnings from extracted retained
// earnings and foreign-ownership percentages, and applies manual corrections.
package reinvest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Repository is the persistence the calculator needs.
type Repository interface {
	GetResult(ctx context.Context, symbol string, year int) (*model.DocumentRecord, error)
	ListResults(ctx context.Context, filter store.ResultFilter) ([]model.DocumentRecord, error)
	SaveResult(ctx context.Context, rec model.DocumentRecord) error
	LatestOwnership(ctx context.Context, symbol string, asOf time.Time) (*model.Ownership, error)
	InsertDerived(ctx context.Context, rec model.DerivedEarningsRecord) error
	ReplaceDerived(ctx context.Context, rec model.DerivedEarningsRecord) error
	GetDerived(ctx context.Context, symbol string, year int) (*model.DerivedEarningsRecord, error)
	DeleteDerived(ctx context.Context, symbol string, year int) error
}

// ErrResultNotFound is returned when a correction targets a company/year with
// no stored extraction result.
var ErrResultNotFound = eris.New("reinvest: no extraction result")

// Calculate computes reinvested = retained × pct / 100 with exact decimals.
// It returns nil and logs the reason when either input is missing or invalid.
func Calculate(company string, year int, result model.ExtractionResult, pct decimal.NullDecimal, currency string) *model.DerivedEarningsRecord {
	log := zap.L().With(zap.String("company", company), zap.Int("year", year))

	retained, ok := result.Amount()
	switch {
	case company == "":
		log.Warn("reinvest: skipping, no company symbol")
		return nil
	case !ok:
		log.Warn("reinvest: skipping, no retained earnings value", zap.String("error", result.ErrorReason))
		return nil
	case !pct.Valid:
		log.Warn("reinvest: skipping, no ownership percentage")
		return nil
	case pct.Decimal.IsNegative() || pct.Decimal.GreaterThan(hundred):
		log.Warn("reinvest: skipping, ownership percentage out of range", zap.String("pct", pct.Decimal.String()))
		return nil
	}

	if result.Currency != "" {
		currency = result.Currency
	}
	if currency == "" {
		currency = model.DefaultCurrency
	}

	return &model.DerivedEarningsRecord{
		ID:                  uuid.New().String(),
		CompanySymbol:       company,
		Year:                year,
		RetainedEarnings:    retained,
		OwnershipPercentage: pct.Decimal,
		Reinvested:          retained.Mul(pct.Decimal).Div(hundred),
		Currency:            currency,
		CalculationDate:     time.Now().UTC(),
		Method:              result.Method,
	}
}

// Summary counts the outcome of a CalculateAll pass.
type Summary struct {
	Created          int `json:"created"`
	Existing         int `json:"existing"`
	MissingOwnership int `json:"missing_ownership"`
	Invalid          int `json:"invalid"`
}

// Calculator derives records for stored results.
type Calculator struct {
	repo     Repository
	basis    model.OwnershipBasis
	currency string
}

// NewCalculator creates a Calculator reading the ownership column named by basis.
func NewCalculator(repo Repository, basis model.OwnershipBasis, currency string) *Calculator {
	if basis == "" {
		basis = model.BasisForeignOwnership
	}
	return &Calculator{repo: repo, basis: basis, currency: currency}
}

// YearEnd is the ownership cut-off for a fiscal year: 31 December.
func YearEnd(year int) time.Time {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// CalculateAll creates a derived record for every successful result that has
// ownership data and no derived record yet. Existing records are never touched.
func (c *Calculator) CalculateAll(ctx context.Context) (Summary, error) {
	var sum Summary
	results, err := c.repo.ListResults(ctx, store.ResultFilter{SuccessOnly: true})
	if err != nil {
		return sum, eris.Wrap(err, "reinvest: list results")
	}

	for _, rec := range results {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		existing, err := c.repo.GetDerived(ctx, rec.CompanySymbol, rec.Year)
		if err != nil {
			return sum, eris.Wrapf(err, "reinvest: get derived %s/%d", rec.CompanySymbol, rec.Year)
		}
		if existing != nil {
			sum.Existing++
			continue
		}

		derived, owned, err := c.derive(ctx, rec, c.basis)
		if err != nil {
			return sum, err
		}
		if !owned {
			sum.MissingOwnership++
			continue
		}
		if derived == nil {
			sum.Invalid++
			continue
		}

		err = c.repo.InsertDerived(ctx, *derived)
		if errors.Is(err, store.ErrDerivedExists) {
			sum.Existing++
			continue
		}
		if err != nil {
			return sum, eris.Wrapf(err, "reinvest: insert derived %s/%d", rec.CompanySymbol, rec.Year)
		}
		sum.Created++
	}

	zap.L().Info("reinvest: calculation complete",
		zap.Int("created", sum.Created),
		zap.Int("existing", sum.Existing),
		zap.Int("missing_ownership", sum.MissingOwnership),
	)
	return sum, nil
}

// derive returns the derived record for rec using the basis column and whether
// ownership data was found. The record is nil when the inputs are invalid.
func (c *Calculator) derive(ctx context.Context, rec model.DocumentRecord, basis model.OwnershipBasis) (*model.DerivedEarningsRecord, bool, error) {
	own, err := c.repo.LatestOwnership(ctx, rec.CompanySymbol, YearEnd(rec.Year))
	if err != nil {
		return nil, false, eris.Wrapf(err, "reinvest: ownership for %s", rec.CompanySymbol)
	}
	if own == nil {
		zap.L().Warn("reinvest: no ownership data on or before year end",
			zap.String("company", rec.CompanySymbol),
			zap.Int("year", rec.Year),
		)
		return nil, false, nil
	}

	pct, ok := own.Percentage(basis)
	out := Calculate(rec.CompanySymbol, rec.Year, rec.Result, decimal.NullDecimal{Decimal: pct, Valid: ok}, c.currency)
	if out != nil {
		out.PDFFilename = rec.PDFFilename
		out.Basis = basis
	}
	return out, true, nil
}

// Correct replaces the stored value for company/year with a manual figure and
// recomputes the dependent derived record, reusing the basis it was built
// with. When no record can be derived any more, a stale one is deleted. An
// unparseable value leaves the stored result untouched.
func (c *Calculator) Correct(ctx context.Context, company string, year int, value string) (*model.DocumentRecord, *model.DerivedEarningsRecord, error) {
	amount, err := model.ParseAmount(value)
	if err != nil {
		return nil, nil, eris.Wrapf(model.ErrInvalidCorrection, "reinvest: %q for %s/%d", value, company, year)
	}

	prior, err := c.repo.GetResult(ctx, company, year)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "reinvest: get result %s/%d", company, year)
	}
	if prior == nil {
		return nil, nil, eris.Wrapf(ErrResultNotFound, "%s/%d", company, year)
	}

	corrected := *prior
	res := prior.Result
	res.Success = true
	res.Value = model.FormatAmount(amount)
	res.NumericValue = decimal.NewNullDecimal(amount)
	res.Method = model.MethodManualCorrection
	res.Confidence = model.ConfidenceHigh
	res.FlagForReview = false
	res.ErrorReason = ""
	res.ErrorKind = ""
	res.RawMatch = value
	if res.Currency == "" {
		res.Currency = model.DefaultCurrency
	}
	corrected.Result = res
	corrected.UpdatedAt = time.Now().UTC()

	if err := c.repo.SaveResult(ctx, corrected); err != nil {
		return nil, nil, eris.Wrapf(err, "reinvest: save correction %s/%d", company, year)
	}
	zap.L().Info("reinvest: manual correction applied",
		zap.String("company", company),
		zap.Int("year", year),
		zap.String("value", res.Value),
	)

	existing, err := c.repo.GetDerived(ctx, company, year)
	if err != nil {
		return &corrected, nil, eris.Wrapf(err, "reinvest: get derived %s/%d", company, year)
	}
	basis := c.basis
	if existing != nil && existing.Basis != "" {
		basis = existing.Basis
	}

	derived, _, err := c.derive(ctx, corrected, basis)
	if err != nil {
		return &corrected, nil, err
	}
	if derived == nil {
		if existing != nil {
			if err := c.repo.DeleteDerived(ctx, company, year); err != nil {
				return &corrected, nil, eris.Wrapf(err, "reinvest: delete stale derived %s/%d", company, year)
			}
			zap.L().Warn("reinvest: removed derived record that no longer matches the result",
				zap.String("company", company),
				zap.Int("year", year),
				zap.String("basis", string(basis)),
			)
		}
		return &corrected, nil, nil
	}
	if err := c.repo.ReplaceDerived(ctx, *derived); err != nil {
		return &corrected, nil, eris.Wrapf(err, "reinvest: replace derived %s/%d", company, year)
	}
	return &corrected, derived, nil
}
