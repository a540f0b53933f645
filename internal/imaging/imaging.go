// Package imaging converts between wire payloads (base64, data URLs,
// uploaded bytes) and decoded images in the 3-channel form the editing
// pipeline consumes.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/vincent-petithory/dataurl"
	"golang.org/x/image/webp"
)

func init() {
	image.RegisterFormat("webp", "RIFF????WEBP", webp.Decode, webp.DecodeConfig)
}

// ErrEmpty is returned when a payload carries no bytes.
var ErrEmpty = errors.New("empty image payload")

// MaxPixels bounds width*height declared by an image header. Larger images
// are rejected before any pixel buffer is allocated.
const MaxPixels = 64 << 20

// ErrTooLarge is returned when an image header declares more than MaxPixels.
var ErrTooLarge = errors.New("image dimensions too large")

// SupportedFormats is advertised by the capability query.
var SupportedFormats = []string{"PNG", "JPEG", "WebP"}

// DecodeBase64 returns the raw bytes of a base64 payload. Standard, URL-safe
// and unpadded alphabets are accepted, as are data URLs.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmpty
	}
	if strings.HasPrefix(s, "data:") {
		du, err := dataurl.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode data url: %w", err)
		}
		if len(du.Data) == 0 {
			return nil, ErrEmpty
		}
		return du.Data, nil
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			if len(b) == 0 {
				return nil, ErrEmpty
			}
			return b, nil
		}
	}
	return nil, errors.New("payload is not valid base64")
}

// Decode parses an encoded image. The format name reported is the one
// registered with the image package ("png", "jpeg", "gif", "webp").
func Decode(b []byte) (image.Image, string, error) {
	if len(b) == 0 {
		return nil, "", ErrEmpty
	}
	mt := mimetype.Detect(b)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, "", fmt.Errorf("unrecognized image data (%s)", mt.String())
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", mt.String(), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", mt.String(), err)
	}
	return img, format, nil
}

// DecodeBase64Image combines DecodeBase64, Decode and ToRGB.
func DecodeBase64Image(s string) (*image.RGBA, error) {
	b, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}
	img, _, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return ToRGB(img), nil
}

// IsRGB reports whether every pixel of img is fully opaque and img is
// already held as 8-bit RGBA.
func IsRGB(img image.Image) bool {
	rgba, ok := img.(*image.RGBA)
	if !ok {
		return false
	}
	return rgba.Opaque()
}

// ToRGB coerces img to opaque 8-bit RGB held in an *image.RGBA. Alpha is
// dropped rather than blended, so a transparent pixel keeps its colour.
// Images that are already opaque RGBA are returned unchanged.
func ToRGB(img image.Image) *image.RGBA {
	if IsRGB(img) {
		return img.(*image.RGBA)
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if isOpaque(img) {
		draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
		return out
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return out
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64PNG encodes img as PNG and returns the standard base64 text.
func EncodeBase64PNG(img image.Image) (string, error) {
	b, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// IsImageContentType reports whether a declared content type names an image.
func IsImageContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.HasPrefix(ct, "image/") && len(ct) > len("image/")
}

// SolidPNG renders a w×h image of a single colour. The verification harness
// and tests use it as their input fixture.
func SolidPNG(w, h int, c color.RGBA) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return EncodePNG(img)
}
