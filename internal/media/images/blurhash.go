package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/bbrks/go-blurhash"
	_ "golang.org/x/image/webp" // register decoder
)

// Placeholder fidelity knobs. BlurHash output is a few dozen characters, so
// the input never needs to be larger than a thumbnail; 4x3 components suit
// portrait book covers.
const (
	blurMaxDim      = 64
	blurComponentsX = 4
	blurComponentsY = 3
)

// ComputeBlurHash produces the compact placeholder string for a cover image.
// It takes the raw bytes as pulled out of a book file and understands the
// same formats the cover endpoint serves (PNG, JPEG, GIF, WebP).
func ComputeBlurHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode cover: %w", err)
	}

	hash, err := blurhash.Encode(blurComponentsX, blurComponentsY, thumbnail(img))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// thumbnail downscales img so its longer edge is at most blurMaxDim,
// preserving aspect ratio. Nearest-neighbour sampling is plenty for a blur.
func thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= blurMaxDim && h <= blurMaxDim {
		return img
	}

	tw, th := blurMaxDim, blurMaxDim
	if w > h {
		th = max(1, h*blurMaxDim/w)
	} else {
		tw = max(1, w*blurMaxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	for y := 0; y < th; y++ {
		sy := b.Min.Y + y*h/th
		for x := 0; x < tw; x++ {
			dst.Set(x, y, img.At(b.Min.X+x*w/tw, sy))
		}
	}
	return dst
}
