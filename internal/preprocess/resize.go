package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"go-kart-insurance/pkg/models"

	"github.com/nfnt/resize"
)

// Resizer shrinks uploads whose longest edge exceeds MaxDimension.
// A zero MaxDimension disables it.
type Resizer struct {
	MaxDimension int
	JPEGQuality  int
}

func NewResizer(maxDimension int) *Resizer {
	return &Resizer{MaxDimension: maxDimension, JPEGQuality: 90}
}

// Apply returns img unchanged when no resize is needed, otherwise a copy
// with downscaled data re-encoded in the original format.
func (r *Resizer) Apply(img *models.Image) (*models.Image, error) {
	if r == nil || r.MaxDimension <= 0 {
		return img, nil
	}
	if img.Width <= r.MaxDimension && img.Height <= r.MaxDimension {
		return img, nil
	}

	src, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("decode for resize: %w", err)
	}

	// resize keeps the aspect ratio when one dimension is 0
	var w, h uint
	if img.Width >= img.Height {
		w = uint(r.MaxDimension)
	} else {
		h = uint(r.MaxDimension)
	}
	scaled := resize.Resize(w, h, src, resize.Lanczos3)

	var buf bytes.Buffer
	contentType := img.ContentType
	switch format {
	case "png":
		err = png.Encode(&buf, scaled)
		contentType = "image/png"
	default:
		err = jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: r.JPEGQuality})
		contentType = "image/jpeg"
	}
	if err != nil {
		return nil, fmt.Errorf("encode resized %s: %w", format, err)
	}

	bounds := scaled.Bounds()
	out := *img
	out.Data = buf.Bytes()
	out.ContentType = contentType
	out.Width = bounds.Dx()
	out.Height = bounds.Dy()
	return &out, nil
}
