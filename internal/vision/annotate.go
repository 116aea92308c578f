package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/rotisserie/eris"
)

// Annotation labels where an extracted value came from.
type Annotation struct {
	SourceSection string `json:"source_section"`
	Date          string `json:"date"`
}

const annotatePrompt = `The figure %s was read as retained earnings from this passage of an annual report:

%s

Reply with JSON only: {"source_section": "<statement or note title>", "date": "<reporting date as written, or empty>"}`

// maxAnnotateContext bounds the passage sent for annotation.
const maxAnnotateContext = 4000

// Annotate asks the model for the statement section and reporting date of a
// value, given the text around it. Model output is repaired before decoding.
func (s *Strategy) Annotate(ctx context.Context, value, passage string) (*Annotation, error) {
	if !s.Enabled() {
		return nil, eris.New("vision: no model configured")
	}
	if r := []rune(passage); len(r) > maxAnnotateContext {
		passage = string(r[:maxAnnotateContext])
	}

	answer, err := s.complete(ctx, Prompt{
		Question:  fmt.Sprintf(annotatePrompt, value, passage),
		MaxTokens: 256,
	})
	if err != nil {
		return nil, eris.Wrap(err, "vision: annotate")
	}
	return parseAnnotation(answer)
}

func parseAnnotation(answer string) (*Annotation, error) {
	raw := strings.TrimSpace(answer)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	if i := strings.Index(raw, "{"); i > 0 {
		raw = raw[i:]
	}

	repaired, err := jsonrepair.RepairJSON(raw)
	if err != nil {
		return nil, eris.Wrap(err, "vision: repair annotation json")
	}
	var a Annotation
	if err := json.Unmarshal([]byte(repaired), &a); err != nil {
		return nil, eris.Wrap(err, "vision: decode annotation")
	}
	a.SourceSection = strings.TrimSpace(a.SourceSection)
	a.Date = strings.TrimSpace(a.Date)
	return &a, nil
}
