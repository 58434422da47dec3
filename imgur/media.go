package imgur

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// decodeImage returns nil when data is not a supported image
func decodeImage(data []byte) image.Image {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	return img
}

// Thumbnail scales src so its shorter side is size pixels, keeping the
// aspect ratio
func Thumbnail(src image.Image, size int) image.Image {
	if src == nil || size < 1 {
		return nil
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	var tw, th int
	if w > h {
		th = size
		tw = max(1, w*size/h)
	} else {
		tw = size
		th = max(1, h*size/w)
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
