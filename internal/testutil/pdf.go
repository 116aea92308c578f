// Package testutil builds small fixtures shared by package tests.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TextItem places one string on a page. X and Y are the PDF baseline origin
// in points (bottom-left coordinates).
type TextItem struct {
	X, Y float64
	Size float64
	Text string
}

// GlyphWidth is the advance of every character in fixture PDFs, in 1/1000 em.
const GlyphWidth = 500

// WritePDF writes a minimal text-only PDF with one page per item slice and
// returns its path. Pages are US Letter and use a fixed-width Helvetica.
func WritePDF(t *testing.T, name string, pages ...[]TextItem) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, BuildPDF(pages...), 0o644); err != nil {
		t.Fatalf("write pdf fixture: %v", err)
	}
	return path
}

// BuildPDF returns the bytes of a minimal PDF with the given pages.
func BuildPDF(pages ...[]TextItem) []byte {
	var widths strings.Builder
	for c := 32; c <= 126; c++ {
		if c > 32 {
			widths.WriteByte(' ')
		}
		fmt.Fprintf(&widths, "%d", GlyphWidth)
	}

	// Object layout: 1 catalog, 2 page tree, 3 font, then page/content pairs.
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // page tree, filled below
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding " +
			"/FirstChar 32 /LastChar 126 /Widths [" + widths.String() + "] >>",
	}

	kids := make([]string, 0, len(pages))
	for _, items := range pages {
		pageObj := len(objects) + 1
		contentObj := pageObj + 1
		kids = append(kids, fmt.Sprintf("%d 0 R", pageObj))

		var stream strings.Builder
		for _, it := range items {
			size := it.Size
			if size == 0 {
				size = 10
			}
			fmt.Fprintf(&stream, "BT /F1 %.2f Tf %.2f %.2f Td (%s) Tj ET\n", size, it.X, it.Y, escape(it.Text))
		}

		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentObj),
			fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", stream.Len(), stream.String()),
		)
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}
