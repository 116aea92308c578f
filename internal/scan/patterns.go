package scan

import (
	"regexp"
	"strings"
)

const (
	// numberGroup keeps a leading minus; a dash followed by space is a separator.
	numberGroup   = `(-?\d[\d,]*(?:\.\d+)?)`
	unsignedGroup = `(\d[\d,]*(?:\.\d+)?)`
)

// pattern is a labeled keyword-adjacency regex with the value in group 1.
type pattern struct {
	name     string
	re       *regexp.Regexp
	negative bool
}

// patternKinds lists the adjacency shapes in priority order. KW and CUR are
// substituted per keyword; NUM is the captured value and ABS its unsigned form
// used inside parentheses.
var patternKinds = []struct {
	name     string
	tmpl     string
	negative bool
}{
	{"value_before_keyword", `NUM\s*[:\-]?\s*KW`, false},
	{"value_after_keyword", `KW[:\s]*(?:-\s+)?NUM`, false},
	{"value_with_currency_after", `KW\s*[:\-]?\s*CUR\s*NUM`, false},
	{"value_with_currency_before", `CUR\s*NUM\s*KW`, false},
	{"value_in_parentheses_after", `KW\s*[:\-]?\s*(?:CUR\s*)?\(ABS\)`, true},
	{"value_in_parentheses_before", `\(ABS\)\s*KW`, true},
}

// keywordExpr turns "Retained earnings" into a case-insensitive expression
// that also matches "Retainedearnings" and line-wrapped variants.
func keywordExpr(kw string) string {
	fields := strings.Fields(kw)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(fields, `\s*`)
}

// compilePatterns builds the ordered pattern list for every keyword.
func compilePatterns(keywords []string, currency string) []pattern {
	if currency == "" {
		currency = "SAR"
	}
	cur := regexp.QuoteMeta(currency)

	var out []pattern
	for _, kind := range patternKinds {
		for _, kw := range keywords {
			expr := keywordExpr(kw)
			if expr == "" {
				continue
			}
			src := strings.NewReplacer("KW", "(?:"+expr+")", "CUR", cur, "NUM", numberGroup, "ABS", unsignedGroup).Replace(kind.tmpl)
			out = append(out, pattern{
				name:     kind.name,
				re:       regexp.MustCompile(`(?i)` + src),
				negative: kind.negative,
			})
		}
	}
	return out
}
