package screen

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

// Grid overlay colors
var (
	gridLineColor  = color.NRGBA{R: 255, G: 64, B: 64, A: 150}
	gridLabelBG    = color.NRGBA{R: 30, G: 30, B: 30, A: 200}
	gridLabelColor = color.White
)

const (
	gridDivisions = 10 // one line every 100 normalized units
	gridLineWidth = 1.0
	gridLabelPad  = 3.0
)

// DrawGrid overlays a normalized-coordinate grid on a screenshot. Lines
// are drawn every 100 units of the [0,1000] coordinate space with axis
// labels, so the model can read off click targets directly. Returns a
// new image; the original is not modified.
func DrawGrid(img image.Image) image.Image {
	bounds := img.Bounds()
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	dc := gg.NewContext(bounds.Dx(), bounds.Dy())
	dc.DrawImage(img, 0, 0)

	dc.SetColor(gridLineColor)
	dc.SetLineWidth(gridLineWidth)
	for i := 1; i < gridDivisions; i++ {
		x := w * float64(i) / gridDivisions
		dc.DrawLine(x, 0, x, h)
		dc.Stroke()

		y := h * float64(i) / gridDivisions
		dc.DrawLine(0, y, w, y)
		dc.Stroke()
	}

	for i := 1; i < gridDivisions; i++ {
		label := fmt.Sprintf("%d", i*1000/gridDivisions)
		drawGridLabel(dc, label, w*float64(i)/gridDivisions+gridLabelPad, gridLabelPad)
		drawGridLabel(dc, label, gridLabelPad, h*float64(i)/gridDivisions+gridLabelPad)
	}

	return dc.Image()
}

func drawGridLabel(dc *gg.Context, label string, x, y float64) {
	textW, textH := dc.MeasureString(label)
	dc.SetColor(gridLabelBG)
	dc.DrawRectangle(x, y, textW+gridLabelPad*2, textH+gridLabelPad*2)
	dc.Fill()
	dc.SetColor(gridLabelColor)
	dc.DrawString(label, x+gridLabelPad, y+gridLabelPad+textH)
}
