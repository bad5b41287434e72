// SPDX-License-Identifier: MIT

package detect

import (
	"fmt"
	"strings"

	"github.com/oakgate/oakgate/internal/frame"
)

// Color is a BGR triple matching bgr888 pixel order.
type Color [3]byte

var (
	ColorBox  = Color{0, 255, 0}
	ColorText = Color{255, 255, 255}
)

// Annotator draws detection boxes, labels and an FPS line onto bgr888
// preview frames.
type Annotator struct {
	Box   Color
	Text  Color
	Scale int
}

func NewAnnotator() *Annotator {
	return &Annotator{Box: ColorBox, Text: ColorText, Scale: 1}
}

// Annotate draws onto a copy of f. Frames that are not bgr888 are returned
// unchanged.
func (a *Annotator) Annotate(f *frame.ImgFrame, batch *frame.ImgDetections, fps float64) *frame.ImgFrame {
	if f.Type != frame.TypeBGR888 {
		return f
	}
	out := &frame.ImgFrame{
		Meta:   f.Meta,
		Width:  f.Width,
		Height: f.Height,
		Type:   f.Type,
		Stride: f.Stride,
		Data:   append([]byte(nil), f.Data...),
	}
	if batch != nil {
		for _, det := range batch.Detections {
			x0 := int(det.XMin * float64(f.Width-1))
			y0 := int(det.YMin * float64(f.Height-1))
			x1 := int(det.XMax * float64(f.Width-1))
			y1 := int(det.YMax * float64(f.Height-1))
			a.rect(out, x0, y0, x1, y1)
			label := fmt.Sprintf("%s %.0f%%", det.LabelName, det.Confidence*100)
			if det.Spatial {
				label += fmt.Sprintf(" %.2fM", det.SpatialZ/1000)
			}
			a.text(out, x0+2, y0+2, label)
		}
	}
	a.text(out, 2, f.Height-10*a.scale(), fmt.Sprintf("NN FPS: %.1f", fps))
	return out
}

func (a *Annotator) scale() int {
	if a.Scale < 1 {
		return 1
	}
	return a.Scale
}

func (a *Annotator) rect(f *frame.ImgFrame, x0, y0, x1, y1 int) {
	for x := x0; x <= x1; x++ {
		a.set(f, x, y0, a.Box)
		a.set(f, x, y1, a.Box)
	}
	for y := y0; y <= y1; y++ {
		a.set(f, x0, y, a.Box)
		a.set(f, x1, y, a.Box)
	}
}

func (a *Annotator) set(f *frame.ImgFrame, x, y int, c Color) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	off := y*f.Stride + x*3
	if off+3 > len(f.Data) {
		return
	}
	copy(f.Data[off:off+3], c[:])
}

// text renders s with the built-in 5x7 glyph set. Unknown runes become
// spaces; lowercase is folded to uppercase.
func (a *Annotator) text(f *frame.ImgFrame, x, y int, s string) {
	s = strings.ToUpper(s)
	sc := a.scale()
	cx := x
	for _, r := range s {
		glyph, ok := font5x7[r]
		if !ok {
			cx += 6 * sc
			continue
		}
		for row := 0; row < 7; row++ {
			bits := glyph[row]
			for col := 0; col < 5; col++ {
				if bits&(1<<(4-col)) == 0 {
					continue
				}
				for dy := 0; dy < sc; dy++ {
					for dx := 0; dx < sc; dx++ {
						a.set(f, cx+col*sc+dx, y+row*sc+dy, a.Text)
					}
				}
			}
		}
		cx += 6 * sc
	}
}

// font5x7 holds 5-bit row bitmaps, top row first.
var font5x7 = map[rune][7]byte{
	' ': {},
	'-': {0, 0, 0, 0x1F, 0, 0, 0},
	'_': {0, 0, 0, 0, 0, 0, 0x1F},
	'.': {0, 0, 0, 0, 0, 0x0C, 0x0C},
	':': {0, 0x0C, 0x0C, 0, 0x0C, 0x0C, 0},
	'%': {0x18, 0x19, 0x02, 0x04, 0x08, 0x13, 0x03},
	'0': {0x0E, 0x11, 0x13, 0x15, 0x19, 0x11, 0x0E},
	'1': {0x04, 0x0C, 0x04, 0x04, 0x04, 0x04, 0x0E},
	'2': {0x0E, 0x11, 0x01, 0x02, 0x04, 0x08, 0x1F},
	'3': {0x1F, 0x02, 0x04, 0x02, 0x01, 0x11, 0x0E},
	'4': {0x02, 0x06, 0x0A, 0x12, 0x1F, 0x02, 0x02},
	'5': {0x1F, 0x10, 0x1E, 0x01, 0x01, 0x11, 0x0E},
	'6': {0x06, 0x08, 0x10, 0x1E, 0x11, 0x11, 0x0E},
	'7': {0x1F, 0x01, 0x02, 0x04, 0x08, 0x08, 0x08},
	'8': {0x0E, 0x11, 0x11, 0x0E, 0x11, 0x11, 0x0E},
	'9': {0x0E, 0x11, 0x11, 0x0F, 0x01, 0x02, 0x0C},
	'A': {0x0E, 0x11, 0x11, 0x1F, 0x11, 0x11, 0x11},
	'B': {0x1E, 0x11, 0x11, 0x1E, 0x11, 0x11, 0x1E},
	'C': {0x0E, 0x11, 0x10, 0x10, 0x10, 0x11, 0x0E},
	'D': {0x1C, 0x12, 0x11, 0x11, 0x11, 0x12, 0x1C},
	'E': {0x1F, 0x10, 0x10, 0x1E, 0x10, 0x10, 0x1F},
	'F': {0x1F, 0x10, 0x10, 0x1E, 0x10, 0x10, 0x10},
	'G': {0x0E, 0x11, 0x10, 0x17, 0x11, 0x11, 0x0F},
	'H': {0x11, 0x11, 0x11, 0x1F, 0x11, 0x11, 0x11},
	'I': {0x0E, 0x04, 0x04, 0x04, 0x04, 0x04, 0x0E},
	'J': {0x07, 0x02, 0x02, 0x02, 0x02, 0x12, 0x0C},
	'K': {0x11, 0x12, 0x14, 0x18, 0x14, 0x12, 0x11},
	'L': {0x10, 0x10, 0x10, 0x10, 0x10, 0x10, 0x1F},
	'M': {0x11, 0x1B, 0x15, 0x15, 0x11, 0x11, 0x11},
	'N': {0x11, 0x11, 0x19, 0x15, 0x13, 0x11, 0x11},
	'O': {0x0E, 0x11, 0x11, 0x11, 0x11, 0x11, 0x0E},
	'P': {0x1E, 0x11, 0x11, 0x1E, 0x10, 0x10, 0x10},
	'Q': {0x0E, 0x11, 0x11, 0x11, 0x15, 0x12, 0x0D},
	'R': {0x1E, 0x11, 0x11, 0x1E, 0x14, 0x12, 0x11},
	'S': {0x0F, 0x10, 0x10, 0x0E, 0x01, 0x01, 0x1E},
	'T': {0x1F, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04},
	'U': {0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x0E},
	'V': {0x11, 0x11, 0x11, 0x11, 0x11, 0x0A, 0x04},
	'W': {0x11, 0x11, 0x11, 0x15, 0x15, 0x15, 0x0A},
	'X': {0x11, 0x11, 0x0A, 0x04, 0x0A, 0x11, 0x11},
	'Y': {0x11, 0x11, 0x11, 0x0A, 0x04, 0x04, 0x04},
	'Z': {0x1F, 0x01, 0x02, 0x04, 0x08, 0x10, 0x1F},
}
