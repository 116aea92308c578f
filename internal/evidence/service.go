package evidence

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/ocr"
	"github.com/sells-group/reinvest-cli/internal/pdftext"
)

// DefaultDPI is the evidence render resolution.
const DefaultDPI = 150

// Service renders and records evidence for extracted values.
type Service struct {
	renderer ocr.PageRenderer
	sink     Sink
	engine   ocr.Engine // nil disables verification
	dpi      int
	timeout  time.Duration
}

// NewService creates a Service. engine may be nil.
func NewService(renderer ocr.PageRenderer, sink Sink, engine ocr.Engine, dpi int, timeout time.Duration) *Service {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{renderer: renderer, sink: sink, engine: engine, dpi: dpi, timeout: timeout}
}

// Capture locates the record's value in doc, renders the highlighted page
// and records the artifact. A value that cannot be located yields nil and
// no error.
func (s *Service) Capture(ctx context.Context, doc *pdftext.Document, rec model.DocumentRecord) (*model.EvidenceArtifact, error) {
	if !rec.Result.Success {
		return nil, nil
	}
	log := zap.L().With(zap.String("company", rec.CompanySymbol), zap.String("pdf", rec.PDFFilename))

	loc := Locate(doc, rec.Result.Value)
	if loc == nil {
		log.Info("evidence: value not found in text layer", zap.String("value", rec.Result.Value))
		return nil, nil
	}

	art, page, err := s.Render(ctx, doc, rec.CompanySymbol, loc)
	if err != nil {
		return nil, err
	}
	art.Value = rec.Result.Value
	art.PDFFilename = rec.PDFFilename

	if s.engine != nil {
		ok, err := s.verify(ctx, page, doc, loc)
		if err != nil {
			log.Warn("evidence: verification failed", zap.Error(err))
		} else {
			art.Verified = &ok
			if !ok {
				log.Warn("evidence: highlighted region does not show the value",
					zap.Int("page", loc.Page), zap.String("variant", loc.MatchedVariant))
			}
		}
	}

	if err := s.sink.SaveArtifact(ctx, *art); err != nil {
		return nil, err
	}
	log.Info("evidence: captured", zap.Int("page", loc.Page), zap.String("path", art.ScreenshotPath))
	return art, nil
}

// Render draws the highlight for loc on a fresh raster of its page and saves
// it as <company>_evidence.png. It also returns the unmarked raster.
func (s *Service) Render(ctx context.Context, doc *pdftext.Document, company string, loc *model.EvidenceLocation) (*model.EvidenceArtifact, []byte, error) {
	p := doc.Page(loc.Page)
	if p == nil {
		return nil, nil, eris.Errorf("evidence: page %d not in %s", loc.Page, doc.Path)
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raster, err := s.renderer.RenderPage(rctx, doc.Path, loc.Page, s.dpi)
	if err != nil {
		return nil, nil, eris.Wrap(err, "evidence: render page")
	}

	marked, err := Highlight(raster, loc.BBox, p.Width, p.Height)
	if err != nil {
		return nil, nil, err
	}
	path, err := s.sink.SaveImage(ctx, company+"_evidence.png", marked)
	if err != nil {
		return nil, nil, err
	}

	return &model.EvidenceArtifact{
		CompanySymbol:  company,
		ScreenshotPath: path,
		PDFFilename:    filepath.Base(doc.Path),
		Location:       loc,
	}, raster, nil
}

// verify recognizes the text inside the located box and checks that one of
// the value's variants is there.
func (s *Service) verify(ctx context.Context, raster []byte, doc *pdftext.Document, loc *model.EvidenceLocation) (bool, error) {
	p := doc.Page(loc.Page)
	region, err := crop(raster, loc.BBox, p.Width, p.Height)
	if err != nil {
		return false, err
	}

	vctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.engine.Text(vctx, region)
	if err != nil {
		return false, eris.Wrap(err, "evidence: recognize region")
	}

	got := separators.Replace(text)
	got = strings.Join(strings.Fields(got), "")
	return strings.Contains(got, separators.Replace(loc.MatchedVariant)), nil
}
