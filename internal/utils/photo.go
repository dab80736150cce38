package utils

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
)

// DefaultPhotoMaxWidth bounds uploaded photos; larger ones are downscaled.
const DefaultPhotoMaxWidth = 900

// LoadPhoto decodes the image at path, honoring EXIF orientation, and
// downscales it to at most maxWidth pixels wide. It also returns the file bytes
// so callers can derive a content ID without a second read.
func LoadPhoto(path string, maxWidth int) (image.Image, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	img, err := DecodePhoto(bytes.NewReader(data), maxWidth)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, data, nil
}

// DecodePhoto decodes an uploaded image and applies the same downscale as LoadPhoto.
func DecodePhoto(r io.Reader, maxWidth int) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	return FitWidth(img, maxWidth), nil
}

// FitWidth shrinks img to maxWidth preserving aspect ratio. Narrower images are returned as-is.
func FitWidth(img image.Image, maxWidth int) image.Image {
	if maxWidth <= 0 || img.Bounds().Dx() <= maxWidth {
		return img
	}
	return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
}

// Mirror flips img horizontally, matching a selfie-style camera preview.
func Mirror(img image.Image) *image.NRGBA {
	return imaging.FlipH(img)
}

// EncodeJPEG writes img as a JPEG of the given quality.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

// SaveImage writes img to path, choosing the format from the extension.
func SaveImage(img image.Image, path string) error {
	return imaging.Save(img, path)
}

// EncodePNG writes img as a PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}
