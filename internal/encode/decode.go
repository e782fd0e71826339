package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// DecodeImage decodes image bytes in the specified format back to an image.Image.
// Supported formats: "png", "jpeg"/"jpg", "webp", "tiff"/"tif", "bmp".
func DecodeImage(data []byte, format string) (image.Image, error) {
	r := bytes.NewReader(data)
	switch format {
	case "png":
		return png.Decode(r)
	case "jpeg", "jpg":
		return jpeg.Decode(r)
	case "webp":
		return webp.Decode(r)
	case "tiff", "tif":
		return tiff.Decode(r)
	case "bmp":
		return bmp.Decode(r)
	default:
		return nil, fmt.Errorf("unsupported decode format: %q", format)
	}
}

// Sniff returns the format of data judging by its leading magic bytes, or
// "" if it is not recognised.
func Sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "png"
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return "jpeg"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp"
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return "tiff"
	case bytes.HasPrefix(data, []byte("BM")):
		return "bmp"
	}
	return ""
}

// Decode decodes data in whatever supported format it is in and reports
// the format name.
func Decode(data []byte) (image.Image, string, error) {
	format := Sniff(data)
	if format == "" {
		return nil, "", fmt.Errorf("unrecognised image data")
	}
	img, err := DecodeImage(data, format)
	if err != nil {
		return nil, format, fmt.Errorf("decoding %s: %w", format, err)
	}
	return img, format, nil
}
