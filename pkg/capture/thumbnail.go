package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// EncodeJPEG downscales src to fit within maxW x maxH, preserving aspect
// ratio, and encodes it as JPEG. It returns the encoded bytes and the output size.
func EncodeJPEG(src image.Image, maxW, maxH, quality int) ([]byte, image.Point, error) {
	size := fitWithin(src.Bounds().Size(), maxW, maxH)
	if size.X == 0 || size.Y == 0 {
		return nil, image.Point{}, fmt.Errorf("cannot scale %v to fit %dx%d", src.Bounds().Size(), maxW, maxH)
	}

	dst := image.NewRGBA(image.Rectangle{Max: size})
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, image.Point{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), size, nil
}

// Thumbnail renders src as a base64 JPEG thumbnail
func Thumbnail(src image.Image, maxW, maxH, quality int) (string, error) {
	data, _, err := EncodeJPEG(src, maxW, maxH, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// fitWithin scales size down (never up) to fit the box, preserving aspect ratio
func fitWithin(size image.Point, maxW, maxH int) image.Point {
	if size.X <= 0 || size.Y <= 0 || maxW <= 0 || maxH <= 0 {
		return image.Point{}
	}
	if size.X <= maxW && size.Y <= maxH {
		return size
	}

	// Compare maxW/size.X against maxH/size.Y without floats.
	if maxW*size.Y <= maxH*size.X {
		return image.Pt(maxW, max(1, size.Y*maxW/size.X))
	}
	return image.Pt(max(1, size.X*maxH/size.Y), maxH)
}
