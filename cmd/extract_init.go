package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/evidence"
	"github.com/sells-group/reinvest-cli/internal/extract"
	"github.com/sells-group/reinvest-cli/internal/ocr"
	"github.com/sells-group/reinvest-cli/internal/pdftext"
	"github.com/sells-group/reinvest-cli/internal/scan"
	"github.com/sells-group/reinvest-cli/internal/store"
	"github.com/sells-group/reinvest-cli/internal/table"
	"github.com/sells-group/reinvest-cli/internal/vision"
)

// extractEnv holds everything the extract and evidence commands need.
type extractEnv struct {
	Store     store.Store
	Reader    *pdftext.Reader
	Extractor *extract.Extractor
	Evidence  *evidence.Service // nil when evidence is disabled
}

// Close releases resources held by the environment.
func (e *extractEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initExtract opens the store and builds the reader, strategies and evidence
// service from cfg. Callers should defer env.Close().
func initExtract(ctx context.Context, withEvidence bool) (*extractEnv, error) {
	st, err := initStore(ctx, "extract")
	if err != nil {
		return nil, err
	}

	renderer := ocr.NewRenderer(cfg.OCR.PdfToPPMPath)

	var readerOpts []pdftext.Option
	if cfg.OCR.Enabled {
		readerOpts = append(readerOpts, pdftext.WithOCR(ocr.NewRecognizer(cfg.OCR), ocr.Timeout(cfg.OCR)))
	}
	reader := pdftext.NewReader(readerOpts...)

	backends, err := table.NewBackends(cfg.Table.Backends, ocr.NewPdfToText(cfg.OCR.PdfToTextPath))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	tbl := table.New(backends, cfg.Extract.Keywords, cfg.Extract.Years,
		time.Duration(cfg.Table.TimeoutSecs)*time.Second)

	scanner := scan.New(scan.Options{
		Keywords:   cfg.Extract.Keywords,
		Years:      cfg.Extract.Years,
		YearScores: cfg.Extract.YearScores,
		Currency:   cfg.Extract.Currency,
	})

	visionModel, err := vision.NewModel(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init vision model")
	}
	if visionModel != nil {
		zap.L().Info("vision strategy enabled", zap.String("provider", visionModel.Name()))
	} else {
		zap.L().Debug("vision provider not configured, vision strategy disabled")
	}
	vis := vision.NewStrategy(visionModel, renderer, cfg.Vision)

	ex := extract.New(reader, tbl, scanner, vis, extract.Options{
		Priority:          cfg.Extract.Priority,
		VisionCorroborate: cfg.Extract.VisionCorroborate,
		Annotate:          cfg.Extract.Annotate,
		Years:             cfg.Extract.Years,
		Currency:          cfg.Extract.Currency,
		Relevance:         cfg.Extract.ContextKeywords,
	})

	env := &extractEnv{Store: st, Reader: reader, Extractor: ex}
	if withEvidence {
		var engine ocr.Engine
		if cfg.Evidence.Verify {
			engine = ocr.NewEngine(cfg.OCR)
		}
		sink := evidence.Tee(evidence.NewFileSink(cfg.Evidence.Dir, cfg.Evidence.MetadataFile), st)
		env.Evidence = evidence.NewService(renderer, sink, engine, cfg.Evidence.DPI, ocr.Timeout(cfg.OCR))
	}
	return env, nil
}
