package ocr

import (
	"bytes"
	"context"
	"image"
	_ "image/png" // decoder for rendered pages
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/pdftext"
)

// Recognizer renders a page and recognizes its words, returning lines
// positioned in PDF points. It implements pdftext.PageRecognizer.
type Recognizer struct {
	renderer PageRenderer
	engine   Engine
	dpi      int
}

// NewRecognizerWith assembles a Recognizer from explicit parts.
func NewRecognizerWith(renderer PageRenderer, engine Engine, dpi int) *Recognizer {
	return &Recognizer{renderer: renderer, engine: engine, dpi: dpi}
}

var _ pdftext.PageRecognizer = (*Recognizer)(nil)

// RecognizePage implements pdftext.PageRecognizer.
func (r *Recognizer) RecognizePage(ctx context.Context, pdfPath string, page int, width, height float64) ([]pdftext.Line, error) {
	img, err := r.renderer.RenderPage(ctx, pdfPath, page, r.dpi)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: decode rendered page")
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, eris.New("ocr: rendered page is empty")
	}

	words, err := r.engine.Words(ctx, img)
	if err != nil {
		return nil, err
	}
	return GroupLines(words, width/float64(cfg.Width), height/float64(cfg.Height)), nil
}

// GroupLines scales word boxes by (sx, sy) and groups them into lines: a word
// joins the current line when its vertical centre falls inside the line.
func GroupLines(words []WordBox, sx, sy float64) []pdftext.Line {
	type placed struct {
		text string
		box  model.BBox
	}
	ps := make([]placed, 0, len(words))
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		ps = append(ps, placed{
			text: w.Text,
			box: model.BBox{
				X0: float64(w.Box.Min.X) * sx,
				Y0: float64(w.Box.Min.Y) * sy,
				X1: float64(w.Box.Max.X) * sx,
				Y1: float64(w.Box.Max.Y) * sy,
			},
		})
	}
	sort.SliceStable(ps, func(i, j int) bool {
		ci := (ps[i].box.Y0 + ps[i].box.Y1) / 2
		cj := (ps[j].box.Y0 + ps[j].box.Y1) / 2
		if ci != cj {
			return ci < cj
		}
		return ps[i].box.X0 < ps[j].box.X0
	})

	var groups [][]placed
	var span model.BBox
	for _, p := range ps {
		center := (p.box.Y0 + p.box.Y1) / 2
		if len(groups) > 0 && center >= span.Y0 && center <= span.Y1 {
			groups[len(groups)-1] = append(groups[len(groups)-1], p)
			span = span.Union(p.box)
			continue
		}
		groups = append(groups, []placed{p})
		span = p.box
	}

	lines := make([]pdftext.Line, 0, len(groups))
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].box.X0 < g[j].box.X0 })
		var line pdftext.Line
		texts := make([]string, 0, len(g))
		for _, p := range g {
			line.Words = append(line.Words, pdftext.Word{Text: p.text, BBox: p.box})
			line.BBox = line.BBox.Union(p.box)
			texts = append(texts, p.text)
		}
		line.Text = strings.Join(texts, " ")
		lines = append(lines, line)
	}
	return lines
}
