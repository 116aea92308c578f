package pdftext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reinvest-cli/internal/model"
)

// glyphs lays out text one character per glyph with a 5pt advance, the way a
// content stream reader reports it.
func glyphs(x, y float64, text string) []Glyph {
	var out []Glyph
	for _, r := range text {
		if r != ' ' {
			out = append(out, Glyph{Text: string(r), X: x, Y: y, W: 5, FontSize: 10})
		}
		x += 5
	}
	return out
}

func TestBuildPage_WordsLinesBlocks(t *testing.T) {
	var gs []Glyph
	gs = append(gs, glyphs(72, 720, "Consolidated statement")...)
	gs = append(gs, glyphs(72, 680, "Share capital")...)
	gs = append(gs, glyphs(300, 680, "1,000,000")...)
	gs = append(gs, glyphs(72, 668, "Retained earnings")...)
	gs = append(gs, glyphs(300, 668.8, "4,509,836")...)

	page := BuildPage(3, 612, 792, gs, DefaultLayout())

	require.Len(t, page.Lines, 3)
	assert.Equal(t, "Consolidated statement", page.Lines[0].Text)
	assert.Equal(t, "Share capital 1,000,000", page.Lines[1].Text)
	assert.Equal(t, "Retained earnings 4,509,836", page.Lines[2].Text)
	assert.Len(t, page.Lines[2].Words, 3)

	require.Len(t, page.Blocks, 2)
	assert.Equal(t, "Consolidated statement", page.Blocks[0].Text)
	assert.Equal(t, "Share capital 1,000,000\nRetained earnings 4,509,836", page.Blocks[1].Text)
	assert.Equal(t, 3, page.Blocks[1].Page)
	assert.Equal(t, "Consolidated statement\nShare capital 1,000,000\nRetained earnings 4,509,836", page.Text)
}

func TestBuildPage_DropsBlankGlyphs(t *testing.T) {
	page := BuildPage(1, 612, 792, []Glyph{{Text: " ", X: 10, Y: 10}, {Text: "\t", X: 20, Y: 10}}, LayoutOptions{})
	assert.Empty(t, page.Lines)
	assert.Empty(t, page.Blocks)
	assert.Empty(t, page.Text)
}

func TestBuildPage_TopLeftBoxes(t *testing.T) {
	page := BuildPage(1, 612, 792, glyphs(100, 700, "AB"), DefaultLayout())
	require.Len(t, page.Lines, 1)
	box := page.Lines[0].BBox
	assert.InDelta(t, 100, box.X0, 0.001)
	assert.InDelta(t, 110, box.X1, 0.001)
	assert.InDelta(t, 792-708, box.Y0, 0.001)
	assert.InDelta(t, 792-698, box.Y1, 0.001)
}

func TestLineFind(t *testing.T) {
	page := BuildPage(1, 612, 792, glyphs(72, 700, "Retained earnings (4,509,836)"), DefaultLayout())
	require.Len(t, page.Lines, 1)
	line := page.Lines[0]

	box, ok := line.Find("4,509,836")
	require.True(t, ok)
	// "Retained earnings (" is 19 runes at 5pt each.
	assert.InDelta(t, 72+19*5, box.X0, 0.001)
	assert.InDelta(t, 72+28*5, box.X1, 0.001)

	box, ok = line.Find("earnings (4")
	require.True(t, ok)
	assert.InDelta(t, 72+9*5, box.X0, 0.001)

	_, ok = line.Find("9,999")
	assert.False(t, ok)
	_, ok = line.Find("")
	assert.False(t, ok)
}

func TestLineFind_WithoutGlyphGeometry(t *testing.T) {
	line := Line{
		Text: "SAR 1,200",
		BBox: model.BBox{X0: 0, Y0: 0, X1: 100, Y1: 10},
		Words: []Word{
			{Text: "SAR", BBox: model.BBox{X0: 0, Y0: 0, X1: 30, Y1: 10}},
			{Text: "1,200", BBox: model.BBox{X0: 50, Y0: 0, X1: 100, Y1: 10}},
		},
	}
	box, ok := line.Find("1,200")
	require.True(t, ok)
	assert.InDelta(t, 50, box.X0, 0.001)
	assert.InDelta(t, 100, box.X1, 0.001)
}

func TestLinesToPage_SortsTopToBottom(t *testing.T) {
	lines := []Line{
		{Text: "second", BBox: model.BBox{X0: 0, Y0: 40, X1: 50, Y1: 50}},
		{Text: "first", BBox: model.BBox{X0: 0, Y0: 10, X1: 50, Y1: 20}},
	}
	page := LinesToPage(2, 612, 792, lines, LayoutOptions{})
	assert.Equal(t, "first\nsecond", page.Text)
	require.Len(t, page.Blocks, 2)
}
