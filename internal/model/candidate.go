package model

import "github.com/shopspring/decimal"

// Candidate is a numeric match found near a keyword during one scanner pass.
type Candidate struct {
	RawMatch     string          `json:"raw_match"`
	Value        string          `json:"value"`
	NumericValue decimal.Decimal `json:"numeric_value"`
	Pattern      string          `json:"pattern"`
	PatternIndex int             `json:"-"`
	Position     int             `json:"position"`
	Context      string          `json:"context"`
	YearScore    int             `json:"year_score"`
	YearFound    string          `json:"year_found,omitempty"`
	Page         int             `json:"page,omitempty"` // 0 when scanned from unpositioned text
}

// Less reports whether c sorts before o: higher year score first, then the
// larger value, then earlier position and pattern.
func (c Candidate) Less(o Candidate) bool {
	if c.YearScore != o.YearScore {
		return c.YearScore > o.YearScore
	}
	if cmp := c.NumericValue.Cmp(o.NumericValue); cmp != 0 {
		return cmp > 0
	}
	if c.Position != o.Position {
		return c.Position < o.Position
	}
	return c.PatternIndex < o.PatternIndex
}
