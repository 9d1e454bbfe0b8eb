package capture

import (
	"image"
	"image/color"
)

// FrameBuffer is the reusable I420 destination for converted frames.
// Only the capture worker touches it.
type FrameBuffer struct {
	img      *image.YCbCr
	reallocs int
}

// Convert writes src into the buffer as I420 (YCbCr 4:2:0, BT.601) and
// returns it. The backing image is reallocated only when the frame size changes.
func (b *FrameBuffer) Convert(src *image.RGBA) *image.YCbCr {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if b.img == nil || b.img.Rect.Dx() != w || b.img.Rect.Dy() != h {
		b.img = image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
		b.reallocs++
	}
	dst := b.img

	for y := 0; y < h; y++ {
		row := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		out := y * dst.YStride
		for x := 0; x < w; x++ {
			i := row + x*4
			luma, _, _ := color.RGBToYCbCr(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
			dst.Y[out+x] = luma
		}
	}

	cw, ch := (w+1)/2, (h+1)/2
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			var r, g, bl, n int
			for dy := 0; dy < 2; dy++ {
				y := cy*2 + dy
				if y >= h {
					break
				}
				for dx := 0; dx < 2; dx++ {
					x := cx*2 + dx
					if x >= w {
						break
					}
					i := src.PixOffset(src.Rect.Min.X+x, src.Rect.Min.Y+y)
					r += int(src.Pix[i])
					g += int(src.Pix[i+1])
					bl += int(src.Pix[i+2])
					n++
				}
			}
			_, cb, cr := color.RGBToYCbCr(uint8(r/n), uint8(g/n), uint8(bl/n))
			off := cy*dst.CStride + cx
			dst.Cb[off] = cb
			dst.Cr[off] = cr
		}
	}
	return dst
}

// Size returns the current buffer dimensions
func (b *FrameBuffer) Size() (int, int) {
	if b.img == nil {
		return 0, 0
	}
	return b.img.Rect.Dx(), b.img.Rect.Dy()
}

// Reallocations reports how many times the buffer has been (re)allocated
func (b *FrameBuffer) Reallocations() int {
	return b.reallocs
}
