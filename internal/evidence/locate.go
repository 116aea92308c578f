// Package evidence finds an extracted value in its source report, renders
// the page with the value highlighted, and records where the image lives.
package evidence

import (
	"strings"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/pdftext"
)

var separators = strings.NewReplacer(",", "", "\u066c", "", " ", "", "\u00a0", "")

// Variants returns the spellings a value may have on the page, in search
// order: as given, without separators, with standard grouping, and
// truncated to an integer with and without grouping.
func Variants(value string) []string {
	var out []string
	add := func(v string) {
		if v == "" {
			return
		}
		for _, o := range out {
			if o == v {
				return
			}
		}
		out = append(out, v)
	}

	given := strings.TrimSpace(value)
	add(given)
	add(separators.Replace(given))

	d, err := model.ParseAmount(given)
	if err != nil {
		return out
	}
	abs := d.Abs()
	add(model.FormatAmount(abs))
	whole := abs.Truncate(0)
	add(whole.String())
	add(model.FormatAmount(whole))
	return out
}

// Locate returns the first place value appears in doc. Pages are searched in
// order and, within a page, variants in order. It returns nil when the value
// does not appear, which is not an error.
func Locate(doc *pdftext.Document, value string) *model.EvidenceLocation {
	if doc == nil {
		return nil
	}
	variants := Variants(value)
	for _, p := range doc.Pages {
		for _, v := range variants {
			for _, l := range p.Lines {
				if box, ok := l.Find(v); ok {
					return &model.EvidenceLocation{Page: p.Number, BBox: box, MatchedVariant: v}
				}
			}
		}
	}
	return nil
}
