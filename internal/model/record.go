package model

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DocumentRecord is a persisted extraction result for one report.
type DocumentRecord struct {
	ID            string           `json:"id"`
	CompanySymbol string           `json:"company_symbol"`
	PDFFilename   string           `json:"pdf_filename"`
	Year          int              `json:"year"`
	Result        ExtractionResult `json:"result"`
	ExtractedAt   time.Time        `json:"extracted_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// OutputRecord is the flat JSON shape written to the results file.
type OutputRecord struct {
	CompanySymbol string      `json:"company_symbol"`
	PDFFilename   string      `json:"pdf_filename"`
	Year          int         `json:"year,omitempty"`
	Success       bool        `json:"success"`
	Value         string      `json:"value,omitempty"`
	NumericValue  json.Number `json:"numeric_value,omitempty"`
	Currency      string      `json:"currency"`
	Method        Method      `json:"method,omitempty"`
	Confidence    Confidence  `json:"confidence,omitempty"`
	FlagForReview bool        `json:"flag_for_review"`
	SourceSection string      `json:"source_section,omitempty"`
	Date          string      `json:"date,omitempty"`
	RawMatch      string      `json:"raw_match,omitempty"`
	Error         string      `json:"error,omitempty"`
	ErrorKind     string      `json:"error_kind,omitempty"`
}

// Output flattens the record for the results file.
func (r DocumentRecord) Output() OutputRecord {
	res := r.Result
	out := OutputRecord{
		CompanySymbol: r.CompanySymbol,
		PDFFilename:   r.PDFFilename,
		Year:          r.Year,
		Success:       res.Success,
		Value:         res.Value,
		Currency:      res.Currency,
		Method:        res.Method,
		Confidence:    res.Confidence,
		FlagForReview: res.FlagForReview,
		SourceSection: res.SourceSection,
		Date:          res.Date,
		RawMatch:      res.RawMatch,
		Error:         res.ErrorReason,
		ErrorKind:     res.ErrorKind,
	}
	if out.Currency == "" {
		out.Currency = DefaultCurrency
	}
	if v, ok := res.Amount(); ok {
		out.NumericValue = json.Number(v.String())
	}
	return out
}

var reportYearRe = regexp.MustCompile(`(\d{4})\D*(\d{4})`)

// ParseReportName derives the company symbol (prefix before the first "_")
// and the fiscal year (second four-digit group) from a report filename.
// Year is 0 when the name carries none.
func ParseReportName(path string) (symbol string, year int) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	symbol, _, _ = strings.Cut(base, "_")

	if m := reportYearRe.FindStringSubmatch(base); m != nil {
		if y, err := strconv.Atoi(m[2]); err == nil && y >= 1900 && y <= 2100 {
			year = y
		}
	}
	return symbol, year
}
