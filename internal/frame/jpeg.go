// SPDX-License-Identifier: MIT

package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// DefaultJPEGQuality is used when callers pass a quality outside [1,100].
const DefaultJPEGQuality = 82

// ToJPEG encodes the frame as a JPEG bitstream. JPEG frames pass through
// untouched. Raw16 frames have no intrinsic color mapping; colorize them
// first (internal/depth does this for the streaming surface).
func (f *ImgFrame) ToJPEG(quality int) ([]byte, error) {
	if f.Type == TypeJPEG {
		return f.Data, nil
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var img image.Image
	switch f.Type {
	case TypeGray8:
		g := &image.Gray{Pix: f.Data, Stride: f.rowStride(), Rect: image.Rect(0, 0, f.Width, f.Height)}
		img = g
	case TypeBGR888:
		img = f.bgrToRGBA()
	case TypeNV12:
		img = f.nv12ToRGBA()
	default:
		return nil, fmt.Errorf("%w: encode %s", ErrUnsupportedType, f.Type)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("frame: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *ImgFrame) bgrToRGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	stride := f.rowStride()
	for y := 0; y < f.Height; y++ {
		src := f.Data[y*stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < f.Width; x++ {
			dst[x*4+0] = src[x*3+2]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+0]
			dst[x*4+3] = 0xff
		}
	}
	return out
}

func (f *ImgFrame) nv12ToRGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	stride := f.rowStride()
	uvBase := stride * f.Height
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			lum := f.Data[y*stride+x]
			uvOff := uvBase + (y/2)*stride + (x/2)*2
			cb := f.Data[uvOff]
			cr := f.Data[uvOff+1]
			r, g, b := color.YCbCrToRGB(lum, cb, cr)
			off := y*out.Stride + x*4
			out.Pix[off+0] = r
			out.Pix[off+1] = g
			out.Pix[off+2] = b
			out.Pix[off+3] = 0xff
		}
	}
	return out
}
