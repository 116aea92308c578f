package evidence

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reinvest-cli/internal/model"
)

// highlightColor is translucent yellow.
var highlightColor = color.NRGBA{R: 255, G: 255, B: 0, A: 128}

// padding around the highlighted box, in PDF points.
const padding = 2.0

// Highlight draws a translucent box over the region of a rendered page.
// pageWidth and pageHeight are the page size in points and set the scale
// from points to pixels.
func Highlight(pageImage []byte, box model.BBox, pageWidth, pageHeight float64) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(pageImage))
	if err != nil {
		return nil, eris.Wrap(err, "evidence: decode page image")
	}
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)

	r := pixelRect(box, src.Bounds(), pageWidth, pageHeight)
	draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(highlightColor), image.Point{}, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, eris.Wrap(err, "evidence: encode highlighted page")
	}
	return buf.Bytes(), nil
}

// pixelRect converts a padded box in points to raster pixels.
func pixelRect(box model.BBox, bounds image.Rectangle, pageWidth, pageHeight float64) image.Rectangle {
	sx, sy := 1.0, 1.0
	if pageWidth > 0 {
		sx = float64(bounds.Dx()) / pageWidth
	}
	if pageHeight > 0 {
		sy = float64(bounds.Dy()) / pageHeight
	}
	return image.Rect(
		bounds.Min.X+int(math.Floor((box.X0-padding)*sx)),
		bounds.Min.Y+int(math.Floor((box.Y0-padding)*sy)),
		bounds.Min.X+int(math.Ceil((box.X1+padding)*sx)),
		bounds.Min.Y+int(math.Ceil((box.Y1+padding)*sy)),
	)
}

// crop returns the PNG of the box region of a rendered page.
func crop(pageImage []byte, box model.BBox, pageWidth, pageHeight float64) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(pageImage))
	if err != nil {
		return nil, eris.Wrap(err, "evidence: decode page image")
	}
	r := pixelRect(box, src.Bounds(), pageWidth, pageHeight).Intersect(src.Bounds())
	if r.Empty() {
		return nil, eris.New("evidence: box outside page")
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, eris.Wrap(err, "evidence: encode crop")
	}
	return buf.Bytes(), nil
}
