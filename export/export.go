package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/jung-kurt/gofpdf"
)

const (
	ContentTypePNG = "image/png"
	ContentTypePDF = "application/pdf"

	// MaxSnapshotSize caps an uploaded board export.
	MaxSnapshotSize = 10 << 20
)

// Allowed reports whether contentType is an export format the relay accepts.
func Allowed(contentType string) bool {
	return contentType == ContentTypePNG || contentType == ContentTypePDF
}

// Extension maps an allowed content type to a file extension.
func Extension(contentType string) string {
	switch contentType {
	case ContentTypePNG:
		return ".png"
	case ContentTypePDF:
		return ".pdf"
	}
	return ""
}

func WritePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("export: png: %w", err)
	}
	return nil
}

// WritePDF lays the board out on a single page sized to the image, one
// pixel per point, with an optional title in the top margin.
func WritePDF(w io.Writer, img image.Image, title string) error {
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("export: pdf: empty image")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("export: pdf: encode page: %w", err)
	}

	const margin = 36.0
	pageW := float64(b.Dx()) + 2*margin
	pageH := float64(b.Dy()) + 2*margin

	orientation := "P"
	if pageW > pageH {
		orientation = "L"
	}

	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	p.SetMargins(margin, margin, margin)
	p.SetAutoPageBreak(false, 0)
	p.AddPage()

	if title != "" {
		p.SetFont("Helvetica", "", 14)
		p.SetXY(margin, margin/4)
		p.CellFormat(float64(b.Dx()), margin/2, title, "", 0, "L", false, 0, "")
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	p.RegisterImageOptionsReader("board", opts, &buf)
	p.ImageOptions("board", margin, margin, float64(b.Dx()), float64(b.Dy()), false, opts, 0, "")

	if err := p.Output(w); err != nil {
		return fmt.Errorf("export: pdf: %w", err)
	}
	return nil
}
