package ocr

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
)

// DefaultDPI is used when a caller passes a non-positive resolution.
const DefaultDPI = 200

// Renderer rasterizes PDF pages with pdftoppm.
type Renderer struct {
	binPath string
}

// NewRenderer creates a Renderer. If binPath is empty, "pdftoppm" is used.
func NewRenderer(binPath string) *Renderer {
	if binPath == "" {
		binPath = "pdftoppm"
	}
	return &Renderer{binPath: binPath}
}

// RenderPage renders one 1-based page at dpi and returns the PNG bytes.
func (r *Renderer) RenderPage(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "ocr: render cancelled")
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	tmpDir, err := os.MkdirTemp("", "reinvest-page-*")
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create temp dir")
	}
	defer os.RemoveAll(tmpDir) //nolint:errcheck

	prefix := filepath.Join(tmpDir, "page")
	n := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, r.binPath,
		"-png",
		"-f", n,
		"-l", n,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		pdfPath,
		prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, eris.Wrapf(err, "ocr: pdftoppm failed for %s page %d: %s", pdfPath, page, string(out))
	}

	// -singlefile writes <prefix>.png
	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, eris.Wrap(err, "ocr: pdftoppm did not create expected output")
	}
	return data, nil
}
