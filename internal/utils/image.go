package utils

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"strings"

	"github.com/adrium/goheif"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

// Checks if the MIME type indicates a HEIC or HEIF image format.
func IsHeifLike(mimeType string) bool {
	t := strings.ToLower(mimeType)
	return strings.Contains(t, "heic") || strings.Contains(t, "heif")
}

// Decodes JPEG, PNG, WebP or HEIC/HEIF data.
func DecodeImage(data []byte, mimeType string) (image.Image, error) {
	if IsHeifLike(mimeType) {
		img, err := goheif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode HEIC: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Reads pixel dimensions without decoding the whole image.
func ImageDimensions(data []byte, mimeType string) (int, int, error) {
	var (
		cfg image.Config
		err error
	)
	if IsHeifLike(mimeType) {
		cfg, err = goheif.DecodeConfig(bytes.NewReader(data))
	} else {
		cfg, _, err = image.DecodeConfig(bytes.NewReader(data))
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image dimensions: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Prepared is an attachment ready to be sent to the agency.
type Prepared struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// PrepareAttachment converts the image to an EXIF-oriented JPEG no larger
// than maxDimension on either side. maxDimension <= 0 disables resizing.
func PrepareAttachment(data []byte, mimeType string, maxDimension int) (*Prepared, error) {
	img, err := DecodeImage(data, mimeType)
	if err != nil {
		return nil, err
	}

	oriented := applyOrientation(img, exifBlock(data, mimeType))

	b := oriented.Bounds()
	if maxDimension > 0 && (b.Dx() > maxDimension || b.Dy() > maxDimension) {
		oriented = imaging.Fit(oriented, maxDimension, maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, oriented, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	out := oriented.Bounds()
	return &Prepared{
		Data:        buf.Bytes(),
		ContentType: "image/jpeg",
		Width:       out.Dx(),
		Height:      out.Dy(),
	}, nil
}

// Returns the bytes goexif can parse: the file itself for JPEG, the
// extracted EXIF block for HEIC.
func exifBlock(data []byte, mimeType string) []byte {
	if !IsHeifLike(mimeType) {
		return data
	}
	raw, err := goheif.ExtractExif(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	return raw
}

// Reads EXIF orientation and applies correct transformations to the image
func applyOrientation(img image.Image, exifData []byte) image.Image {
	if len(exifData) == 0 {
		return img
	}

	x, err := exif.Decode(bytes.NewReader(exifData))
	if err != nil {
		return img
	}

	// Get orientation tag
	orientTag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}

	orient, err := orientTag.Int(0)
	if err != nil {
		log.Printf("[Image] Failed to read orientation value: %v", err)
		return img
	}

	// EXIF orientation values: 1=normal, 2=flip-h, 3=180, 4=flip-v, 5=transpose, 6=270, 7=transverse, 8=90
	switch orient {
	case 1:
		return img
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		log.Printf("[Image] Unknown orientation value: %d", orient)
		return img
	}
}
