package camera

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// MaxFrameBytes caps uploaded and fetched images.
const MaxFrameBytes = 10 << 20

// ErrUnreadableImage wraps every decode failure.
var ErrUnreadableImage = errors.New("unreadable image")

// Decode reads a JPEG, PNG, GIF, BMP, TIFF or WebP image. The format is
// sniffed from the content and falls back to the filename extension.
func Decode(r io.Reader, filename string) (image.Image, string, error) {
	all, err := io.ReadAll(io.LimitReader(r, MaxFrameBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	if len(all) == 0 {
		return nil, "", fmt.Errorf("%w: empty file", ErrUnreadableImage)
	}
	if len(all) > MaxFrameBytes {
		return nil, "", fmt.Errorf("%w: larger than %d bytes", ErrUnreadableImage, MaxFrameBytes)
	}

	head := all
	if len(head) > 512 {
		head = head[:512]
	}
	ct := http.DetectContentType(head)
	isWebP := strings.Contains(ct, "webp") || strings.EqualFold(filepath.Ext(filename), ".webp")

	if isWebP {
		img, err := webp.Decode(bytes.NewReader(all))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
		}
		return img, "webp", nil
	}
	img, err := imaging.Decode(bytes.NewReader(all), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return img, strings.TrimPrefix(ct, "image/"), nil
}

// DecodeDataURL accepts "data:image/...;base64,..." or bare base64.
func DecodeDataURL(s string) (image.Image, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	img, _, err := Decode(bytes.NewReader(raw), "")
	return img, err
}

// Fit downscales img to fit within w x h, keeping its aspect ratio.
// Images already small enough are returned unchanged.
func Fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() <= w && b.Dy() <= h {
		return img
	}
	return imaging.Fit(img, w, h, imaging.Box)
}

// PNGDataURL encodes img as a PNG data URL, the format registration photos
// are stored in.
func PNGDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
