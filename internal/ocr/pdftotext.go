package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// PageLayout runs pdftotext -layout on a single page and returns stdout.
func (p *PdfToText) PageLayout(ctx context.Context, pdfPath string, page int) (string, error) {
	n := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", "-f", n, "-l", n, pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s page %d: %s", pdfPath, page, stderr.String())
	}

	return stdout.String(), nil
}
