// Package extract runs the extraction strategies over one report and
// resolves their answers into a single result.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/pdftext"
	"github.com/sells-group/reinvest-cli/internal/scan"
	"github.com/sells-group/reinvest-cli/internal/table"
	"github.com/sells-group/reinvest-cli/internal/vision"
)

// State is a step of the per-document extraction state machine.
type State int

const (
	StateNotStarted State = iota
	StateTableAttempted
	StateBlocksScanned
	StateRegexAttempted
	StateVisionAttempted
	StateFullTextAttempted
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateTableAttempted:
		return "table_attempted"
	case StateBlocksScanned:
		return "blocks_scanned"
	case StateRegexAttempted:
		return "regex_attempted"
	case StateVisionAttempted:
		return "vision_attempted"
	case StateFullTextAttempted:
		return "full_text_attempted"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// DocumentReader reads the text layer of a report.
type DocumentReader interface {
	Read(ctx context.Context, path string) (*pdftext.Document, error)
}

// TableStrategy reads the value from a statement table.
type TableStrategy interface {
	Extract(ctx context.Context, doc *pdftext.Document) (*table.Hit, error)
}

// VisionStrategy asks a multimodal model about a rendered page.
type VisionStrategy interface {
	Enabled() bool
	ExtractFromPage(ctx context.Context, pdfPath string, page int) (string, bool)
	Annotate(ctx context.Context, value, passage string) (*vision.Annotation, error)
}

// Options tunes the orchestrator.
type Options struct {
	// Priority orders method families when the strategies disagree:
	// "table", "vision" and "regex".
	Priority []string
	// VisionCorroborate asks the vision model even when an earlier
	// strategy already found a value.
	VisionCorroborate bool
	// Annotate asks the vision model for the source section and date.
	Annotate  bool
	Years     []int
	Currency  string
	Relevance []string
}

// DefaultPriority is table, then vision, then regex.
var DefaultPriority = []string{"table", "vision", "regex"}

// Extractor is the per-document orchestrator.
type Extractor struct {
	reader  DocumentReader
	table   TableStrategy
	scanner *scan.Scanner
	vision  VisionStrategy
	opts    Options
	now     func() time.Time
}

// New creates an Extractor. table and vision may be nil.
func New(reader DocumentReader, tbl TableStrategy, scanner *scan.Scanner, vis VisionStrategy, opts Options) *Extractor {
	if len(opts.Priority) == 0 {
		opts.Priority = DefaultPriority
	}
	if opts.Currency == "" {
		opts.Currency = model.DefaultCurrency
	}
	return &Extractor{
		reader:  reader,
		table:   tbl,
		scanner: scanner,
		vision:  vis,
		opts:    opts,
		now:     time.Now,
	}
}

// Outcome is the result of extracting one report.
type Outcome struct {
	Record   model.DocumentRecord
	Document *pdftext.Document // nil when the report could not be read
	States   []State
}

// attempt is one strategy's answer.
type attempt struct {
	method  model.Method
	value   string
	numeric decimal.Decimal
	raw     string
	page    int
	year    int
	passage string
}

// Extract runs the strategies over the report at path. It never fails: every
// problem is recorded on the returned record.
func (e *Extractor) Extract(ctx context.Context, path string) *Outcome {
	symbol, year := model.ParseReportName(path)
	log := zap.L().With(zap.String("company", symbol), zap.String("pdf", path))

	now := e.now().UTC()
	out := &Outcome{
		Record: model.DocumentRecord{
			CompanySymbol: symbol,
			PDFFilename:   filepath.Base(path),
			Year:          year,
			ExtractedAt:   now,
			UpdatedAt:     now,
		},
		States: []State{StateNotStarted},
	}

	doc, err := e.reader.Read(ctx, path)
	if err != nil {
		log.Warn("extract: document unreadable", zap.Error(err))
		out.Record.Result = model.NewFailure(model.ErrDocumentUnreadable, err.Error())
		out.Record.Result.Currency = e.opts.Currency
		out.Record.Year = e.fiscalYear(year, nil)
		out.States = append(out.States, StateResolved)
		return out
	}
	out.Document = doc

	var (
		attempts []attempt
		localized int
	)
	advance := func(s State) { out.States = append(out.States, s) }

	if e.table != nil {
		e.guard(log, model.MethodTable, func() {
			hit, err := e.table.Extract(ctx, doc)
			if err != nil {
				log.Warn("extract: table strategy failed", zap.Error(err))
				return
			}
			if hit == nil {
				return
			}
			localized = hit.Page
			attempts = append(attempts, attempt{
				method:  model.MethodTable,
				value:   hit.Value,
				numeric: hit.Numeric,
				raw:     hit.Row,
				page:    hit.Page,
				year:    hit.Year,
				passage: pageText(doc, hit.Page),
			})
		})
	}
	advance(StateTableAttempted)

	var blocks scan.BlockScan
	e.guard(log, model.MethodRegexBlocks, func() {
		blocks = e.scanner.ScanBlocks(doc.Blocks(), e.opts.Relevance)
	})
	advance(StateBlocksScanned)
	if localized == 0 && len(blocks.Pages) > 0 {
		localized = blocks.Pages[0]
	}

	if len(blocks.Candidates) > 0 {
		c := blocks.Candidates[0]
		attempts = append(attempts, candidateAttempt(model.MethodRegexBlocks, c))
	}
	advance(StateRegexAttempted)

	if localized > 0 && e.vision != nil && e.vision.Enabled() && (len(attempts) == 0 || e.opts.VisionCorroborate) {
		e.guard(log, model.MethodVision, func() {
			value, ok := e.vision.ExtractFromPage(ctx, doc.Path, localized)
			if !ok {
				return
			}
			n, err := model.ParseAmount(value)
			if err != nil {
				return
			}
			attempts = append(attempts, attempt{
				method:  model.MethodVision,
				value:   model.FormatAmount(n),
				numeric: n,
				raw:     value,
				page:    localized,
				passage: pageText(doc, localized),
			})
		})
		advance(StateVisionAttempted)
	}

	if len(attempts) == 0 {
		e.guard(log, model.MethodRegexFullText, func() {
			full := doc.FullText()
			cands := e.scanner.Scan(full)
			if len(cands) == 0 {
				return
			}
			c := cands[0]
			c.Page = pageAt(doc, full, c.Position)
			attempts = append(attempts, candidateAttempt(model.MethodRegexFullText, c))
		})
		advance(StateFullTextAttempted)
	}

	out.Record.Result = e.resolve(ctx, log, attempts)
	out.Record.Year = e.fiscalYear(year, attempts)
	advance(StateResolved)

	log.Info("extract: resolved",
		zap.Bool("success", out.Record.Result.Success),
		zap.String("method", string(out.Record.Result.Method)),
		zap.String("confidence", string(out.Record.Result.Confidence)),
		zap.Bool("flag_for_review", out.Record.Result.FlagForReview),
	)
	return out
}

// guard runs one strategy step and turns a panic into "no value".
func (e *Extractor) guard(log *zap.Logger, method model.Method, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("extract: strategy panicked",
				zap.String("method", string(method)),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn()
}

// resolve applies the agreement rule: a single distinct value is high
// confidence, several are low confidence and flagged, and the canonical
// value comes from the highest-priority method that produced one.
func (e *Extractor) resolve(ctx context.Context, log *zap.Logger, attempts []attempt) model.ExtractionResult {
	if len(attempts) == 0 {
		res := model.NewFailure(model.ErrNoValueFound, model.NoValueReason)
		res.Currency = e.opts.Currency
		return res
	}

	values := make(map[model.Method]string, len(attempts))
	var distinct []decimal.Decimal
	for _, a := range attempts {
		values[a.method] = a.numeric.String()
		if !containsDecimal(distinct, a.numeric) {
			distinct = append(distinct, a.numeric)
		}
	}

	best := e.canonical(attempts)
	res := model.ExtractionResult{
		Success:       true,
		Value:         best.value,
		NumericValue:  decimal.NewNullDecimal(best.numeric),
		Method:        best.method,
		Confidence:    model.ConfidenceHigh,
		Currency:      e.opts.Currency,
		RawMatch:      best.raw,
		Year:          best.year,
		Page:          best.page,
		Date:          scan.FindDate(best.passage),
		SourceSection: sectionOf(best.passage),
		MethodValues:  values,
	}
	if len(distinct) > 1 {
		res.Confidence = model.ConfidenceLow
		res.FlagForReview = true
		log.Warn("extract: strategies disagree",
			zap.Any("values", values),
			zap.String("method", string(best.method)),
		)
	}

	if e.opts.Annotate && e.vision != nil && e.vision.Enabled() && best.passage != "" {
		e.guard(log, model.MethodVision, func() {
			a, err := e.vision.Annotate(ctx, best.value, best.passage)
			if err != nil || a == nil {
				log.Warn("extract: annotation failed", zap.Error(err))
				return
			}
			if a.SourceSection != "" {
				res.SourceSection = a.SourceSection
			}
			if a.Date != "" {
				res.Date = a.Date
			}
		})
	}
	return res
}

// canonical picks the attempt of the highest-priority method family.
func (e *Extractor) canonical(attempts []attempt) attempt {
	for _, fam := range e.opts.Priority {
		for _, a := range attempts {
			if string(a.method.Family()) == fam {
				return a
			}
		}
	}
	return attempts[0]
}

// fiscalYear prefers the filename year, then the table hit year, then the
// first target year.
func (e *Extractor) fiscalYear(fromName int, attempts []attempt) int {
	if fromName > 0 {
		return fromName
	}
	for _, a := range attempts {
		if a.method == model.MethodTable && a.year > 0 {
			return a.year
		}
	}
	if len(e.opts.Years) > 0 {
		return e.opts.Years[0]
	}
	return 0
}

func candidateAttempt(method model.Method, c model.Candidate) attempt {
	return attempt{
		method:  method,
		value:   c.Value,
		numeric: c.NumericValue,
		raw:     c.RawMatch,
		page:    c.Page,
		passage: c.Context,
	}
}

func containsDecimal(ds []decimal.Decimal, d decimal.Decimal) bool {
	for _, x := range ds {
		if x.Equal(d) {
			return true
		}
	}
	return false
}

func pageText(doc *pdftext.Document, n int) string {
	if p := doc.Page(n); p != nil {
		return p.Text
	}
	return ""
}

// pageAt maps a byte offset in doc.FullText() to its page number.
func pageAt(doc *pdftext.Document, full string, pos int) int {
	if pos > len(full) {
		return 0
	}
	idx := strings.Count(full[:pos], "\f")
	if idx < len(doc.Pages) {
		return doc.Pages[idx].Number
	}
	return 0
}

var sectionTitles = []string{
	"Statement of financial position",
	"Statement of changes in equity",
	"Balance sheet",
	"Shareholders' equity",
	"قائمة المركز المالي",
	"قائمة التغيرات في حقوق الملكية",
}

// sectionOf returns the first known statement title in text.
func sectionOf(text string) string {
	lower := strings.ToLower(text)
	best, at := "", -1
	for _, t := range sectionTitles {
		if i := strings.Index(lower, strings.ToLower(t)); i >= 0 && (at < 0 || i < at) {
			best, at = t, i
		}
	}
	return best
}
