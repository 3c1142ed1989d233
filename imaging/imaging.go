// Package imaging decodes submitted image references and downsizes inline
// photos before they are stored and sent to providers.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"regexp"
	"strings"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/AniketPatel148/CivicLens/llm"
	"github.com/AniketPatel148/CivicLens/models"
)

const (
	MaxDimension = 1280
	JPEGQuality  = 85
)

var dataURLPattern = regexp.MustCompile(`^data:([^;,]+);base64,(.+)$`)

// ParseDataURL splits a base64 data URL. ok is false when ref is not a
// data URL at all; err is set when it is one but the payload is invalid.
func ParseDataURL(ref string) (mimeType string, data []byte, ok bool, err error) {
	m := dataURLPattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return "", nil, false, nil
	}
	data, err = base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", nil, true, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return m[1], data, true, nil
}

// EncodeDataURL is the inverse of ParseDataURL.
func EncodeDataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// Processor turns a submitted reference into the image to store and analyze.
type Processor struct {
	compress bool
}

func NewProcessor(compress bool) *Processor {
	return &Processor{compress: compress}
}

// Prepare validates ref and, for inline photos, optionally downsizes them.
// Opaque references pass through untouched.
func (p *Processor) Prepare(ref string) (llm.Image, error) {
	mimeType, data, ok, err := ParseDataURL(ref)
	if err != nil {
		return llm.Image{}, models.NewValidationError("imageRef", "%v", err)
	}
	if !ok {
		return llm.Image{Ref: ref}, nil
	}
	if len(data) == 0 {
		return llm.Image{}, models.NewValidationError("imageRef", "empty image data")
	}

	img := llm.Image{Ref: ref, MimeType: mimeType, Data: data}
	if !p.compress || !strings.HasPrefix(mimeType, "image/") {
		return img, nil
	}

	compressed, changed, err := Compress(data)
	if err != nil {
		// Undecodable bytes are still forwarded as submitted.
		log.WithError(err).Warn("image compression skipped")
		return img, nil
	}
	if !changed {
		return img, nil
	}
	return llm.Image{
		Ref:      EncodeDataURL("image/jpeg", compressed),
		MimeType: "image/jpeg",
		Data:     compressed,
	}, nil
}

// Orientation reads the EXIF orientation tag, 1 when absent.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// Orient applies an EXIF orientation so the image displays upright.
func Orient(img image.Image, orientation int) image.Image {
	if orientation < 2 || orientation > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2:
				dx, dy = w-1-x, y
			case 3:
				dx, dy = w-1-x, h-1-y
			case 4:
				dx, dy = x, h-1-y
			case 5:
				dx, dy = y, x
			case 6:
				dx, dy = h-1-y, x
			case 7:
				dx, dy = h-1-y, w-1-x
			case 8:
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// Compress fits an image within MaxDimension and re-encodes it as JPEG.
// changed is false when the image is already small enough and upright.
func Compress(data []byte) (out []byte, changed bool, err error) {
	orientation := Orientation(data)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode image: %w", err)
	}
	img = Orient(img, orientation)

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= MaxDimension && height <= MaxDimension && orientation == 1 {
		return data, false, nil
	}

	scale := 1.0
	if width > MaxDimension || height > MaxDimension {
		scale = float64(MaxDimension) / float64(max(width, height))
	}
	newWidth := max(1, min(MaxDimension, int(float64(width)*scale)))
	newHeight := max(1, min(MaxDimension, int(float64(height)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, false, fmt.Errorf("failed to encode compressed image: %w", err)
	}

	log.Infof("Image compressed: %d bytes -> %d bytes (original: %dx%d, new: %dx%d, orientation: %d)",
		len(data), buf.Len(), width, height, newWidth, newHeight, orientation)
	return buf.Bytes(), true, nil
}
