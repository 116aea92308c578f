package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DerivedEarningsRecord is the reinvested-earnings figure for one company/year.
// It is created once; only a manual correction replaces or removes it.
type DerivedEarningsRecord struct {
	ID                  string          `json:"id"`
	CompanySymbol       string          `json:"company_symbol"`
	Year                int             `json:"year"`
	RetainedEarnings    decimal.Decimal `json:"retained_earnings"`
	OwnershipPercentage decimal.Decimal `json:"ownership_percentage"`
	Reinvested          decimal.Decimal `json:"reinvested_earnings"`
	Currency            string          `json:"currency"`
	CalculationDate     time.Time       `json:"calculation_date"`
	Method              Method          `json:"method,omitempty"`
	PDFFilename         string          `json:"pdf_filename,omitempty"`
	// Basis is the ownership column the percentage came from.
	Basis               OwnershipBasis  `json:"basis,omitempty"`
}

// OwnershipBasis selects which ownership column feeds the calculation.
type OwnershipBasis string

const (
	BasisForeignOwnership OwnershipBasis = "foreign_ownership"
	BasisMaxAllowed       OwnershipBasis = "max_allowed"
	BasisInvestorLimit    OwnershipBasis = "investor_limit"
)

// Ownership is one scraped row of the foreign-ownership table.
type Ownership struct {
	Symbol           string              `json:"symbol"`
	CompanyName      string              `json:"company_name"`
	ForeignOwnership decimal.NullDecimal `json:"foreign_ownership"`
	MaxAllowed       decimal.NullDecimal `json:"max_allowed"`
	InvestorLimit    decimal.NullDecimal `json:"investor_limit"`
	AsOf             time.Time           `json:"as_of"`
}

// Percentage returns the column selected by basis.
func (o Ownership) Percentage(basis OwnershipBasis) (decimal.Decimal, bool) {
	var v decimal.NullDecimal
	switch basis {
	case BasisMaxAllowed:
		v = o.MaxAllowed
	case BasisInvestorLimit:
		v = o.InvestorLimit
	default:
		v = o.ForeignOwnership
	}
	return v.Decimal, v.Valid
}
