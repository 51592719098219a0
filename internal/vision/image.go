package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Per-channel normalisation applied before inference: (p - mean) / std.
var (
	detMean, detStd = float32(127.5), float32(128.0)
	embMean, embStd = float32(127.5), float32(127.5)
)

// cropPadding grows each face box by this fraction of its size per side.
const cropPadding = 0.1

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode image: empty image")
	}
	return img, nil
}

// toCHW scales src to size x size and lays it out as planar R, G, B
// float32 values normalised with mean and std.
func toCHW(src image.Image, size int, mean, std float32) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	plane := size * size
	out := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		px := dst.Pix[i*4 : i*4+3]
		out[i] = (float32(px[0]) - mean) / std
		out[plane+i] = (float32(px[1]) - mean) / std
		out[2*plane+i] = (float32(px[2]) - mean) / std
	}
	return out
}

// cropFace returns the padded face region clamped to the image, or nil
// when the box is empty.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	b := img.Bounds()
	w, h := bbox[2]-bbox[0], bbox[3]-bbox[1]
	if w <= 0 || h <= 0 {
		return nil
	}
	padW, padH := w*cropPadding, h*cropPadding

	r := image.Rect(
		int(bbox[0]-padW), int(bbox[1]-padH),
		int(bbox[2]+padW), int(bbox[3]+padH),
	).Intersect(b)
	if r.Empty() {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}
