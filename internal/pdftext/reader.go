package pdftext

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/model"
)

const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// PageRecognizer runs text recognition on a rendered page and returns lines
// positioned in PDF points.
type PageRecognizer interface {
	RecognizePage(ctx context.Context, pdfPath string, page int, width, height float64) ([]Line, error)
}

// Reader opens PDFs and reconstructs their text layer.
type Reader struct {
	layout     LayoutOptions
	ocr        PageRecognizer
	ocrTimeout time.Duration
}

// Option configures a Reader.
type Option func(*Reader)

// WithLayout overrides the glyph grouping thresholds.
func WithLayout(opts LayoutOptions) Option {
	return func(r *Reader) { r.layout = opts }
}

// WithOCR enables recognition for pages without a text layer.
func WithOCR(rec PageRecognizer, timeout time.Duration) Option {
	return func(r *Reader) {
		r.ocr = rec
		if timeout > 0 {
			r.ocrTimeout = timeout
		}
	}
}

// NewReader creates a Reader.
func NewReader(opts ...Option) *Reader {
	r := &Reader{layout: DefaultLayout(), ocrTimeout: 60 * time.Second}
	for _, o := range opts {
		o(r)
	}
	return r
}

var disableConfigDir sync.Once

// Read returns the text layer of the PDF at path. The file is never written.
// A missing or malformed file fails with model.ErrDocumentUnreadable.
func (r *Reader) Read(ctx context.Context, path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(model.ErrDocumentUnreadable, "pdftext: stat %s: %v", path, err)
	}
	if info.IsDir() {
		return nil, eris.Wrapf(model.ErrDocumentUnreadable, "pdftext: %s is a directory", path)
	}

	f, pr, err := open(path)
	if err != nil {
		return nil, eris.Wrapf(model.ErrDocumentUnreadable, "pdftext: open %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck

	n := pr.NumPage()
	if n == 0 {
		return nil, eris.Wrapf(model.ErrDocumentUnreadable, "pdftext: %s has no pages", path)
	}

	log := zap.L().With(zap.String("pdf", path))
	if count, err := validatedPageCount(path); err != nil {
		log.Debug("pdfcpu validation failed", zap.Error(err))
	} else if count != n {
		log.Warn("page count mismatch", zap.Int("pdfcpu", count), zap.Int("text_layer", n))
	}

	doc := &Document{Path: path, PageCount: n}
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pdftext: read cancelled")
		}

		page, err := r.readPage(pr, i)
		if err != nil {
			log.Warn("page text layer unreadable", zap.Int("page", i), zap.Error(err))
			page = Page{Number: i, Width: defaultPageWidth, Height: defaultPageHeight}
		}
		if len(page.Lines) == 0 && r.ocr != nil {
			page = r.recognize(ctx, path, page)
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

func open(path string) (f *os.File, pr *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("malformed pdf: %v", rec)
		}
	}()
	return pdf.Open(path)
}

func (r *Reader) readPage(pr *pdf.Reader, n int) (page Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("pdftext: page %d: %v", n, rec)
		}
	}()

	p := pr.Page(n)
	if p.V.IsNull() {
		return Page{Number: n, Width: defaultPageWidth, Height: defaultPageHeight}, nil
	}
	width, height := mediaBox(p)

	texts := p.Content().Text
	glyphs := make([]Glyph, 0, len(texts))
	for _, t := range texts {
		glyphs = append(glyphs, Glyph{Text: t.S, X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize})
	}
	return BuildPage(n, width, height, glyphs, r.layout), nil
}

func (r *Reader) recognize(ctx context.Context, path string, page Page) Page {
	ctx, cancel := context.WithTimeout(ctx, r.ocrTimeout)
	defer cancel()

	lines, err := r.ocr.RecognizePage(ctx, path, page.Number, page.Width, page.Height)
	if err != nil {
		zap.L().Warn("page recognition failed",
			zap.String("pdf", path),
			zap.Int("page", page.Number),
			zap.Error(err),
		)
		return page
	}
	out := LinesToPage(page.Number, page.Width, page.Height, lines, r.layout)
	out.OCR = true
	return out
}

// mediaBox returns the page size in points, walking up the page tree for an
// inherited box.
func mediaBox(p pdf.Page) (float64, float64) {
	box := p.V.Key("MediaBox")
	for parent := p.V.Key("Parent"); box.IsNull() && !parent.IsNull(); parent = parent.Key("Parent") {
		box = parent.Key("MediaBox")
	}
	if box.Len() == 4 {
		w := box.Index(2).Float64() - box.Index(0).Float64()
		h := box.Index(3).Float64() - box.Index(1).Float64()
		if w > 0 && h > 0 {
			return w, h
		}
	}
	return defaultPageWidth, defaultPageHeight
}

// validatedPageCount cross-checks the document structure with pdfcpu.
func validatedPageCount(path string) (count int, err error) {
	disableConfigDir.Do(api.DisableConfigDir)
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("pdfcpu: %v", rec)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrap(err, "pdftext: open for validation")
	}
	defer f.Close() //nolint:errcheck

	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	count, err = api.PageCount(f, conf)
	if err != nil {
		return 0, eris.Wrap(err, "pdftext: pdfcpu page count")
	}
	return count, nil
}
