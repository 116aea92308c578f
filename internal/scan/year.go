package scan

import (
	"fmt"
	"regexp"
	"strings"
)

// Heuristic scores used when the context names no explicit year.
const (
	ScoreCurrentPhrase  = 80
	ScorePreviousPhrase = 40
	ScoreNoYear         = 30
)

// DefaultYearScores are assigned to the target years in priority order.
var DefaultYearScores = []int{100, 50, 25, 10}

var (
	currentPhrases  = []string{"current year", "latest", "most recent"}
	previousPhrases = []string{"previous year", "prior year", "last year"}
)

type yearMatcher struct {
	year  int
	score int
	forms []*regexp.Regexp // most specific first
}

func compileYears(years []int, scores []int) []yearMatcher {
	if len(scores) == 0 {
		scores = DefaultYearScores
	}
	out := make([]yearMatcher, 0, len(years))
	for i, y := range years {
		score := scores[min(i, len(scores)-1)]
		out = append(out, yearMatcher{year: y, score: score, forms: yearForms(y)})
	}
	return out
}

// yearForms covers "31 December YYYY", "December 31, YYYY", "DD/MM/YYYY",
// ISO dates and the bare year.
func yearForms(y int) []*regexp.Regexp {
	forms := []string{
		`\b\d{1,2}\s*(?:December|Dec\.?)\s*%d\b`,
		`\b(?:December|Dec\.?)\s*\d{1,2},?\s*%d\b`,
		`\b\d{1,2}/\d{1,2}/%d\b`,
		`\b%d-\d{2}-\d{2}\b`,
		`\b%d\b`,
	}
	out := make([]*regexp.Regexp, len(forms))
	for i, f := range forms {
		out[i] = regexp.MustCompile(`(?i)` + fmt.Sprintf(f, y))
	}
	return out
}

// scoreContext returns the score of the most recent target year mentioned in
// ctx and the text that matched. Later, older years never override an earlier
// hit. Without any year the heuristic phrases decide.
func scoreContext(ctx string, years []yearMatcher) (int, string) {
	for _, ym := range years {
		for _, re := range ym.forms {
			if m := re.FindString(ctx); m != "" {
				return ym.score, m
			}
		}
	}

	lower := strings.ToLower(ctx)
	for _, p := range currentPhrases {
		if strings.Contains(lower, p) {
			return ScoreCurrentPhrase, ""
		}
	}
	for _, p := range previousPhrases {
		if strings.Contains(lower, p) {
			return ScorePreviousPhrase, ""
		}
	}
	return ScoreNoYear, ""
}

var dateRe = regexp.MustCompile(`(?i)\b(?:\d{1,2}\s*(?:January|February|March|April|May|June|July|August|September|October|November|December)\s*\d{4}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s*\d{1,2},?\s*\d{4}|\d{1,2}/\d{1,2}/\d{4}|\d{4}-\d{2}-\d{2})\b`)

// FindDate returns the first statement date mentioned in text, if any.
func FindDate(text string) string {
	return dateRe.FindString(text)
}
