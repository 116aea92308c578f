// Package ocr wraps the poppler command line tools and tesseract: layout text
// for table parsing, page rendering, and text recognition for pages without
// a text layer.
package ocr

import (
	"context"
	"image"
	"strings"
	"time"

	"github.com/sells-group/reinvest-cli/internal/config"
)

// LayoutExtractor returns the layout-preserving text of one page.
type LayoutExtractor interface {
	PageLayout(ctx context.Context, pdfPath string, page int) (string, error)
}

// PageRenderer rasterizes one page to PNG bytes.
type PageRenderer interface {
	RenderPage(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error)
}

// Engine recognizes text in an image.
type Engine interface {
	Words(ctx context.Context, img []byte) ([]WordBox, error)
	Text(ctx context.Context, img []byte) (string, error)
}

// WordBox is a recognized word in image pixel coordinates.
type WordBox struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// NewRecognizer builds the page recognizer used for pages without a text layer.
func NewRecognizer(cfg config.OCRConfig) *Recognizer {
	return &Recognizer{
		renderer: NewRenderer(cfg.PdfToPPMPath),
		engine:   NewTesseract(cfg.Language, cfg.TessdataPrefix),
		dpi:      cfg.DPI,
	}
}

// NewEngine builds the recognition engine from config.
func NewEngine(cfg config.OCRConfig) Engine {
	return NewTesseract(cfg.Language, cfg.TessdataPrefix)
}

// Timeout returns the configured per-call timeout.
func Timeout(cfg config.OCRConfig) time.Duration {
	if cfg.TimeoutSecs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(cfg.TimeoutSecs) * time.Second
}

func languages(lang string) []string {
	if lang == "" {
		return []string{"eng"}
	}
	return strings.Split(lang, "+")
}
