package model

import (
	"github.com/shopspring/decimal"
)

// Method identifies which strategy produced an extraction result.
type Method string

const (
	MethodTable            Method = "table"
	MethodRegexBlocks      Method = "regex_blocks"
	MethodRegexFullText    Method = "regex_full_text"
	MethodVision           Method = "vision"
	MethodManualCorrection Method = "manual_correction"
)

// Family collapses the two regex methods into one agreement bucket.
func (m Method) Family() Method {
	switch m {
	case MethodRegexBlocks, MethodRegexFullText:
		return "regex"
	default:
		return m
	}
}

// Confidence is a coarse agreement signal across strategies.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// DefaultCurrency is used when a document does not state its reporting currency.
const DefaultCurrency = "SAR"

// NoValueReason is the error reason recorded when every strategy comes up empty.
const NoValueReason = "No retained earnings found using any method"

// ExtractionResult is the canonical outcome of extracting one document.
type ExtractionResult struct {
	Success       bool                `json:"success"`
	Value         string              `json:"value,omitempty"`
	NumericValue  decimal.NullDecimal `json:"numeric_value"`
	Method        Method              `json:"method,omitempty"`
	Confidence    Confidence          `json:"confidence,omitempty"`
	FlagForReview bool                `json:"flag_for_review"`
	SourceSection string              `json:"source_section,omitempty"`
	Currency      string              `json:"currency"`
	Date          string              `json:"date,omitempty"`
	RawMatch      string              `json:"raw_match,omitempty"`
	Year          int                 `json:"year,omitempty"`
	Page          int                 `json:"page,omitempty"`
	ErrorReason   string              `json:"error,omitempty"`
	ErrorKind     string              `json:"error_kind,omitempty"`

	// MethodValues records the value each strategy that ran produced.
	MethodValues map[Method]string `json:"method_values,omitempty"`
}

// NewFailure builds an unsuccessful result carrying the given taxonomy error.
func NewFailure(kind error, reason string) ExtractionResult {
	return ExtractionResult{
		Currency:    DefaultCurrency,
		ErrorReason: reason,
		ErrorKind:   kind.Error(),
	}
}

// Amount returns the numeric value, or false when the result has none.
func (r ExtractionResult) Amount() (decimal.Decimal, bool) {
	if !r.Success || !r.NumericValue.Valid {
		return decimal.Zero, false
	}
	return r.NumericValue.Decimal, true
}

// Consistent reports whether Success agrees with the presence of a value that
// parses to NumericValue.
func (r ExtractionResult) Consistent() bool {
	if !r.Success {
		return !r.NumericValue.Valid
	}
	if !r.NumericValue.Valid {
		return false
	}
	parsed, err := ParseAmount(r.Value)
	if err != nil {
		return false
	}
	return parsed.Equal(r.NumericValue.Decimal)
}
