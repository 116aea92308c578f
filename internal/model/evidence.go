package model

// BBox is a rectangle in PDF points with a top-left origin.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Union returns the smallest box covering b and o.
func (b BBox) Union(o BBox) BBox {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	return BBox{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// Empty reports whether the box has no area.
func (b BBox) Empty() bool {
	return b.X1 <= b.X0 || b.Y1 <= b.Y0
}

// Width returns the horizontal extent.
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent.
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// EvidenceLocation is where a chosen value literally appears in a document.
type EvidenceLocation struct {
	Page           int    `json:"page"` // 1-based
	BBox           BBox   `json:"bbox"`
	MatchedVariant string `json:"matched_variant"`
}

// EvidenceArtifact maps a company to its rendered evidence image.
type EvidenceArtifact struct {
	CompanySymbol  string            `json:"company_symbol"`
	Value          string            `json:"value"`
	ScreenshotPath string            `json:"screenshot_path"`
	PDFFilename    string            `json:"pdf_filename"`
	Location       *EvidenceLocation `json:"location,omitempty"`
	Verified       *bool             `json:"verified,omitempty"`
}
