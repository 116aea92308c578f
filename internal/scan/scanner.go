// Package scan finds numeric candidates next to target keywords in free text
// and orders them by the fiscal year their context refers to.
package scan

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/sells-group/reinvest-cli/internal/model"
)

// Options configures a Scanner.
type Options struct {
	Keywords   []string // labels the value sits next to, e.g. "Retained earnings"
	Years      []int    // target years, most recent first
	YearScores []int    // score per entry of Years; the last score is reused
	Currency   string   // currency token accepted between keyword and value
	Window     int      // context characters kept on each side of a match
}

const (
	defaultWindow = 200
	minMagnitude  = 999
	maxMagnitude  = 999_999_999
)

var (
	minValue = decimal.NewFromInt(minMagnitude)
	maxValue = decimal.NewFromInt(maxMagnitude)

	// A context mentioning a page or note reference points at an index, not a balance.
	referenceRe = regexp.MustCompile(`(?i)\b(?:page|pages|note|notes)\b`)
)

// Scanner applies the keyword patterns to text. It is safe for concurrent use.
type Scanner struct {
	opts     Options
	patterns []pattern
	years    []yearMatcher
}

// New compiles a Scanner for the given keywords and years.
func New(opts Options) *Scanner {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.Currency == "" {
		opts.Currency = model.DefaultCurrency
	}
	return &Scanner{
		opts:     opts,
		patterns: compilePatterns(opts.Keywords, opts.Currency),
		years:    compileYears(opts.Years, opts.YearScores),
	}
}

// Scan is a convenience for New(...).Scan(text).
func Scan(text string, keywords []string, years []int) []model.Candidate {
	return New(Options{Keywords: keywords, Years: years}).Scan(text)
}

// Keywords returns the configured value labels.
func (s *Scanner) Keywords() []string { return s.opts.Keywords }

// Scan returns every plausible candidate in text, best first. All patterns
// run to completion before ordering, so an early weak match never hides a
// later one with a better year score.
func (s *Scanner) Scan(text string) []model.Candidate {
	seen := make(map[int]bool)
	var out []model.Candidate

	for pi, p := range s.patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			numStart, numEnd := m[2], m[3]
			if numStart < 0 || seen[numStart] {
				continue
			}

			raw := strings.TrimRight(text[numStart:numEnd], ",.")
			value, ok := parseValue(raw)
			if !ok {
				continue
			}
			if p.negative {
				value = value.Neg()
			}

			ctx := window(text, m[0], m[1], s.opts.Window)
			if referenceRe.MatchString(ctx) {
				continue
			}

			seen[numStart] = true
			score, found := scoreContext(ctx, s.years)
			display := raw
			if p.negative {
				display = "(" + raw + ")"
			}
			out = append(out, model.Candidate{
				RawMatch:     text[m[0]:m[1]],
				Value:        display,
				NumericValue: value,
				Pattern:      p.name,
				PatternIndex: pi,
				Position:     numStart,
				Context:      ctx,
				YearScore:    score,
				YearFound:    found,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// parseValue parses a captured number and applies the plausibility filter:
// magnitudes of 999 or less are note references, above 999,999,999 are
// misreads, and a separator-free 19xx/20xx is a year label.
func parseValue(raw string) (decimal.Decimal, bool) {
	v, err := model.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, false
	}
	abs := v.Abs()
	if abs.LessThanOrEqual(minValue) || abs.GreaterThan(maxValue) {
		return decimal.Zero, false
	}
	if !strings.ContainsAny(raw, ",.") && v.IntPart() >= 1900 && v.IntPart() <= 2100 {
		return decimal.Zero, false
	}
	return v, true
}

// window returns text within n runes either side of [start, end).
func window(text string, start, end, n int) string {
	lo := start
	for i := 0; i < n && lo > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:lo])
		lo -= size
	}
	hi := end
	for i := 0; i < n && hi < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[hi:])
		hi += size
	}
	return text[lo:hi]
}
