package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reinvest-cli/internal/config"
)

// writeScript writes an executable shell script standing in for a poppler tool.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestNewPdfToText_BinPath(t *testing.T) {
	p := NewPdfToText("")
	assert.Equal(t, "pdftotext", p.binPath)

	p = NewPdfToText("/custom/pdftotext")
	assert.Equal(t, "/custom/pdftotext", p.binPath)
}

func TestPdfToText_PageLayout(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := writeScript(t, "pdftotext", `echo "$@" > `+argsFile+`
printf 'Retained earnings      4,509,836      3,900,000\n'
`)

	out, err := NewPdfToText(bin).PageLayout(context.Background(), "/tmp/report.pdf", 7)
	require.NoError(t, err)
	assert.Equal(t, "Retained earnings      4,509,836      3,900,000\n", out)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "-layout -enc UTF-8 -f 7 -l 7 /tmp/report.pdf -\n", string(args))
}

func TestPdfToText_Failure(t *testing.T) {
	bin := writeScript(t, "pdftotext", "echo 'Syntax Error: broken xref' >&2\nexit 1\n")

	_, err := NewPdfToText(bin).PageLayout(context.Background(), "/tmp/report.pdf", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken xref")
}

func TestRenderer_RenderPage(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := writeScript(t, "pdftoppm", `echo "$@" > `+argsFile+`
for a; do last=$a; done
printf 'PNGDATA' > "$last.png"
`)

	data, err := NewRenderer(bin).RenderPage(context.Background(), "/tmp/report.pdf", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(data))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(args), "-png -f 3 -l 3 -r 200 -singlefile /tmp/report.pdf "))
}

func TestRenderer_NoOutput(t *testing.T) {
	bin := writeScript(t, "pdftoppm", "exit 0\n")

	_, err := NewRenderer(bin).RenderPage(context.Background(), "/tmp/report.pdf", 1, 150)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not create expected output")
}

func TestRenderer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRenderer("pdftoppm").RenderPage(ctx, "/tmp/report.pdf", 1, 150)
	require.Error(t, err)
}

type mockRenderer struct{ mock.Mock }

func (m *mockRenderer) RenderPage(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error) {
	args := m.Called(ctx, pdfPath, page, dpi)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockEngine struct{ mock.Mock }

func (m *mockEngine) Words(ctx context.Context, img []byte) ([]WordBox, error) {
	args := m.Called(ctx, img)
	if w := args.Get(0); w != nil {
		return w.([]WordBox), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEngine) Text(ctx context.Context, img []byte) (string, error) {
	args := m.Called(ctx, img)
	return args.String(0), args.Error(1)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestRecognizer_ScalesToPoints(t *testing.T) {
	img := pngBytes(t, 200, 400)

	r := &mockRenderer{}
	r.On("RenderPage", mock.Anything, "a.pdf", 2, 300).Return(img, nil)
	e := &mockEngine{}
	e.On("Words", mock.Anything, img).Return([]WordBox{
		{Text: "4,509,836", Box: image.Rect(120, 20, 180, 40)},
		{Text: "Retained", Box: image.Rect(10, 22, 50, 40)},
		{Text: "earnings", Box: image.Rect(55, 20, 100, 38)},
		{Text: "Total", Box: image.Rect(10, 100, 40, 120)},
	}, nil)

	lines, err := NewRecognizerWith(r, e, 300).RecognizePage(context.Background(), "a.pdf", 2, 100, 200)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "Retained earnings 4,509,836", lines[0].Text)
	require.Len(t, lines[0].Words, 3)
	assert.InDelta(t, 60, lines[0].Words[2].BBox.X0, 0.001)
	assert.InDelta(t, 90, lines[0].Words[2].BBox.X1, 0.001)
	assert.InDelta(t, 10, lines[0].BBox.Y0, 0.001)
	assert.Equal(t, "Total", lines[1].Text)

	r.AssertExpectations(t)
	e.AssertExpectations(t)
}

func TestRecognizer_RenderError(t *testing.T) {
	r := &mockRenderer{}
	r.On("RenderPage", mock.Anything, "a.pdf", 1, 300).Return(nil, assert.AnError)

	_, err := NewRecognizerWith(r, &mockEngine{}, 300).RecognizePage(context.Background(), "a.pdf", 1, 612, 792)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRecognizer_UndecodableImage(t *testing.T) {
	r := &mockRenderer{}
	r.On("RenderPage", mock.Anything, "a.pdf", 1, 300).Return([]byte("not a png"), nil)

	_, err := NewRecognizerWith(r, &mockEngine{}, 300).RecognizePage(context.Background(), "a.pdf", 1, 612, 792)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode rendered page")
}

func TestGroupLines_SkipsBlankWords(t *testing.T) {
	lines := GroupLines([]WordBox{{Text: "  ", Box: image.Rect(0, 0, 10, 10)}}, 1, 1)
	assert.Empty(t, lines)
}

func TestNewRecognizer_FromConfig(t *testing.T) {
	r := NewRecognizer(config.OCRConfig{PdfToPPMPath: "/opt/pdftoppm", Language: "eng+ara", DPI: 300})
	assert.Equal(t, 300, r.dpi)
	assert.Equal(t, "/opt/pdftoppm", r.renderer.(*Renderer).binPath)
	assert.Equal(t, []string{"eng", "ara"}, r.engine.(*Tesseract).languages)
}

func TestRunBlocking_ContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	release := make(chan struct{})
	defer close(release)

	_, err := runBlocking(ctx, func() (string, error) {
		<-release
		return "late", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
