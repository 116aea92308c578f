package pdftext

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/reinvest-cli/internal/model"
)

// LayoutOptions tunes how glyphs are grouped into words, lines and blocks.
type LayoutOptions struct {
	RowTolerance        float64 // baseline drift in points tolerated within one row
	WordSpaceMultiplier float64 // horizontal gap, as a fraction of font size, that starts a new word
	BlockGapMultiplier  float64 // vertical gap, in line heights, that starts a new block
}

// DefaultLayout returns grouping thresholds that suit typeset financial statements.
func DefaultLayout() LayoutOptions {
	return LayoutOptions{
		RowTolerance:        3.0,
		WordSpaceMultiplier: 0.3,
		BlockGapMultiplier:  1.2,
	}
}

func (o LayoutOptions) withDefaults() LayoutOptions {
	d := DefaultLayout()
	if o.RowTolerance <= 0 {
		o.RowTolerance = d.RowTolerance
	}
	if o.WordSpaceMultiplier <= 0 {
		o.WordSpaceMultiplier = d.WordSpaceMultiplier
	}
	if o.BlockGapMultiplier <= 0 {
		o.BlockGapMultiplier = d.BlockGapMultiplier
	}
	return o
}

// BuildPage reconstructs lines and blocks from raw glyphs. height is the
// page height in points, used to flip coordinates to a top-left origin.
func BuildPage(number int, width, height float64, glyphs []Glyph, opts LayoutOptions) Page {
	opts = opts.withDefaults()
	page := Page{Number: number, Width: width, Height: height}

	var kept []Glyph
	for _, g := range glyphs {
		if strings.TrimSpace(g.Text) != "" {
			kept = append(kept, g)
		}
	}

	for _, row := range groupRows(kept, opts.RowTolerance) {
		if line, ok := buildLine(row, height, opts); ok {
			page.Lines = append(page.Lines, line)
		}
	}
	page.Blocks = groupBlocks(number, page.Lines, opts.BlockGapMultiplier)

	texts := make([]string, len(page.Lines))
	for i, l := range page.Lines {
		texts[i] = l.Text
	}
	page.Text = strings.Join(texts, "\n")
	return page
}

// LinesToPage assembles a page from already-positioned lines, such as OCR output.
func LinesToPage(number int, width, height float64, lines []Line, opts LayoutOptions) Page {
	opts = opts.withDefaults()
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].BBox.Y0 < lines[j].BBox.Y0 })

	page := Page{Number: number, Width: width, Height: height, Lines: lines}
	page.Blocks = groupBlocks(number, lines, opts.BlockGapMultiplier)
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	page.Text = strings.Join(texts, "\n")
	return page
}

type rowBucket struct {
	yMin, yMax float64
	glyphs     []Glyph
}

// groupRows buckets glyphs by baseline, returning rows top to bottom.
func groupRows(glyphs []Glyph, tolerance float64) [][]Glyph {
	var buckets []rowBucket
	for _, g := range glyphs {
		placed := false
		for i := range buckets {
			if g.Y >= buckets[i].yMin-tolerance && g.Y <= buckets[i].yMax+tolerance {
				buckets[i].glyphs = append(buckets[i].glyphs, g)
				buckets[i].yMin = min(buckets[i].yMin, g.Y)
				buckets[i].yMax = max(buckets[i].yMax, g.Y)
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, rowBucket{yMin: g.Y, yMax: g.Y, glyphs: []Glyph{g}})
		}
	}

	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].yMax > buckets[j].yMax })

	rows := make([][]Glyph, len(buckets))
	for i, b := range buckets {
		rows[i] = b.glyphs
	}
	return rows
}

func buildLine(row []Glyph, height float64, opts LayoutOptions) (Line, bool) {
	sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })

	var (
		words []Word
		cur   *Word
		right float64
		size  float64
	)
	for _, g := range row {
		box := glyphBox(g, height)
		if cur != nil {
			threshold := opts.WordSpaceMultiplier * size
			if size == 0 {
				threshold = 3.0
			}
			if g.X-right <= threshold {
				cur.Text += g.Text
				cur.BBox = cur.BBox.Union(box)
				cur.Glyphs = append(cur.Glyphs, splitBox(box, g.Text)...)
				right = max(right, box.X1)
				continue
			}
			words = append(words, *cur)
		}
		cur = &Word{Text: g.Text, BBox: box, Glyphs: splitBox(box, g.Text)}
		right = box.X1
		size = g.FontSize
	}
	if cur != nil {
		words = append(words, *cur)
	}
	if len(words) == 0 {
		return Line{}, false
	}

	line := Line{Words: words}
	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
		line.BBox = line.BBox.Union(w.BBox)
	}
	line.Text = strings.Join(texts, " ")
	return line, true
}

// glyphBox converts a baseline glyph into a top-left box, assuming a 0.8/0.2
// ascent/descent split of the font size.
func glyphBox(g Glyph, height float64) model.BBox {
	size := g.FontSize
	if size <= 0 {
		size = 10
	}
	w := g.W
	if w <= 0 {
		w = size * 0.5 * float64(utf8.RuneCountInString(g.Text))
	}
	return model.BBox{
		X0: g.X,
		Y0: height - (g.Y + 0.8*size),
		X1: g.X + w,
		Y1: height - (g.Y - 0.2*size),
	}
}

// splitBox divides box evenly across the runes of text.
func splitBox(box model.BBox, text string) []model.BBox {
	n := utf8.RuneCountInString(text)
	if n <= 1 {
		return []model.BBox{box}
	}
	out := make([]model.BBox, n)
	step := box.Width() / float64(n)
	for i := range out {
		out[i] = model.BBox{X0: box.X0 + step*float64(i), Y0: box.Y0, X1: box.X0 + step*float64(i+1), Y1: box.Y1}
	}
	return out
}

// groupBlocks merges consecutive lines into blocks until a vertical gap wider
// than gapMultiplier line heights appears.
func groupBlocks(page int, lines []Line, gapMultiplier float64) []Block {
	var (
		blocks []Block
		texts  []string
		box    model.BBox
		prev   *Line
	)
	flush := func() {
		text := strings.TrimSpace(strings.Join(texts, "\n"))
		if text != "" {
			blocks = append(blocks, Block{Text: text, BBox: box, Page: page})
		}
		texts, box = nil, model.BBox{}
	}

	for i := range lines {
		l := &lines[i]
		if prev != nil {
			gap := l.BBox.Y0 - prev.BBox.Y1
			if gap > gapMultiplier*prev.BBox.Height() {
				flush()
			}
		}
		texts = append(texts, l.Text)
		box = box.Union(l.BBox)
		prev = l
	}
	flush()
	return blocks
}
