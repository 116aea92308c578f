package extract

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/pdftext"
)

// ResultSink receives every document record, successful or not.
type ResultSink interface {
	SaveResult(ctx context.Context, rec model.DocumentRecord) error
}

// EvidenceSink captures evidence for successful records.
type EvidenceSink interface {
	Capture(ctx context.Context, doc *pdftext.Document, rec model.DocumentRecord) (*model.EvidenceArtifact, error)
}

// Runner extracts a batch of reports with a bounded worker pool.
type Runner struct {
	extractor   *Extractor
	results     ResultSink
	evidence    EvidenceSink
	concurrency int
}

// NewRunner creates a Runner. evidence may be nil.
func NewRunner(ex *Extractor, results ResultSink, evidence EvidenceSink, concurrency int) *Runner {
	return &Runner{
		extractor:   ex,
		results:     results,
		evidence:    evidence,
		concurrency: max(concurrency, 1),
	}
}

// Run extracts every report in paths. When ctx is cancelled no new report is
// started; reports already in flight finish on a detached context. Records
// are returned in input order, without the skipped ones.
func (r *Runner) Run(ctx context.Context, paths []string) (model.BatchSummary, []model.DocumentRecord, error) {
	zap.L().Info("extract: starting batch",
		zap.Int("documents", len(paths)),
		zap.Int("concurrency", r.concurrency),
	)

	records := make([]*model.DocumentRecord, len(paths))
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rec := r.process(context.WithoutCancel(ctx), path)
			records[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.BatchSummary{}, nil, eris.Wrap(err, "extract: batch")
	}

	done := make([]model.DocumentRecord, 0, len(paths))
	for _, rec := range records {
		if rec != nil {
			done = append(done, *rec)
		}
	}
	summary := Summarize(done)
	summary.Total = len(paths)
	summary.Skipped = len(paths) - len(done)

	zap.L().Info("extract: batch complete",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("flagged", len(summary.Flagged)),
	)
	return summary, done, ctx.Err()
}

func (r *Runner) process(ctx context.Context, path string) model.DocumentRecord {
	out := r.extractor.Extract(ctx, path)
	rec := out.Record
	rec.ID = uuid.NewString()
	log := zap.L().With(zap.String("company", rec.CompanySymbol), zap.String("pdf", rec.PDFFilename))

	if r.results != nil {
		if err := r.results.SaveResult(ctx, rec); err != nil {
			log.Error("extract: save result failed", zap.Error(err))
		}
	}

	if r.evidence != nil && rec.Result.Success && out.Document != nil {
		if _, err := r.evidence.Capture(ctx, out.Document, rec); err != nil {
			log.Warn("extract: evidence capture failed", zap.Error(err))
		}
	}
	return rec
}

// Summarize counts outcomes. Flagged successes and failures are listed
// separately.
func Summarize(records []model.DocumentRecord) model.BatchSummary {
	s := model.BatchSummary{Total: len(records)}
	for _, rec := range records {
		if rec.Result.Success {
			s.Succeeded++
			if rec.Result.FlagForReview {
				s.Flagged = append(s.Flagged, rec.Output())
			}
			continue
		}
		s.Failed++
		s.Failures = append(s.Failures, rec.Output())
	}
	return s
}

// FindReports lists the PDF files in dir in name order, at most limit when
// limit is positive.
func FindReports(dir string, limit int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read dir %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}
