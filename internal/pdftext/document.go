// Package pdftext reads the text layer of PDF documents into pages, lines,
// words and layout blocks with bounding boxes in PDF points (top-left origin).
package pdftext

import (
	"strings"
	"unicode/utf8"

	"github.com/sells-group/reinvest-cli/internal/model"
)

// Glyph is one positioned piece of text as emitted by the content stream.
// X and Y are the PDF baseline origin (bottom-left coordinates).
type Glyph struct {
	Text     string
	X        float64
	Y        float64
	W        float64
	FontSize float64
}

// Word is a run of glyphs without a word-spacing gap.
type Word struct {
	Text   string
	BBox   model.BBox
	Glyphs []model.BBox // one box per rune of Text; nil when unknown
}

// Line is a row of words sharing a baseline.
type Line struct {
	Text  string
	BBox  model.BBox
	Words []Word
}

// Block is a layout-coherent span of text.
type Block struct {
	Text string
	BBox model.BBox
	Page int
}

// Page holds the text layer of one page.
type Page struct {
	Number int
	Width  float64
	Height float64
	Text   string
	Lines  []Line
	Blocks []Block
	OCR    bool
}

// Document is the full text layer of a PDF.
type Document struct {
	Path      string
	PageCount int
	Pages     []Page
}

// FullText joins every page's text with form feeds between pages.
func (d *Document) FullText() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\f")
}

// Blocks returns every block in document order.
func (d *Document) Blocks() []Block {
	var out []Block
	for _, p := range d.Pages {
		out = append(out, p.Blocks...)
	}
	return out
}

// Page returns the 1-based page n, or nil.
func (d *Document) Page(n int) *Page {
	for i := range d.Pages {
		if d.Pages[i].Number == n {
			return &d.Pages[i]
		}
	}
	return nil
}

// PagesContaining returns the numbers of pages whose text contains any of
// the keywords, case-insensitively.
func (d *Document) PagesContaining(keywords []string) []int {
	var out []int
	for _, p := range d.Pages {
		if ContainsAny(p.Text, keywords) {
			out = append(out, p.Number)
		}
	}
	return out
}

// ContainsAny reports whether text contains any keyword, ignoring case.
func ContainsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Find returns the box covering the first occurrence of sub in the line.
func (l Line) Find(sub string) (model.BBox, bool) {
	if sub == "" {
		return model.BBox{}, false
	}
	idx := strings.Index(l.Text, sub)
	if idx < 0 {
		return model.BBox{}, false
	}
	start := utf8.RuneCountInString(l.Text[:idx])
	n := utf8.RuneCountInString(sub)

	boxes := l.runeBoxes()
	if start+n > len(boxes) {
		return l.BBox, true
	}
	var out model.BBox
	for _, b := range boxes[start : start+n] {
		out = out.Union(b)
	}
	return out, !out.Empty()
}

// runeBoxes lays out one box per rune of l.Text, including the separating
// spaces, which take the gap between neighbouring words.
func (l Line) runeBoxes() []model.BBox {
	var out []model.BBox
	for i, w := range l.Words {
		if i > 0 {
			prev := l.Words[i-1].BBox
			out = append(out, model.BBox{X0: prev.X1, Y0: l.BBox.Y0, X1: max(w.BBox.X0, prev.X1), Y1: l.BBox.Y1})
		}
		out = append(out, w.runeBoxes()...)
	}
	return out
}

func (w Word) runeBoxes() []model.BBox {
	n := utf8.RuneCountInString(w.Text)
	if len(w.Glyphs) == n {
		return w.Glyphs
	}
	// Unknown glyph geometry: spread the word box evenly.
	out := make([]model.BBox, n)
	step := w.BBox.Width() / float64(max(n, 1))
	for i := range out {
		out[i] = model.BBox{
			X0: w.BBox.X0 + step*float64(i),
			Y0: w.BBox.Y0,
			X1: w.BBox.X0 + step*float64(i+1),
			Y1: w.BBox.Y1,
		}
	}
	return out
}
