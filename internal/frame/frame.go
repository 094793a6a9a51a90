// Package frame decodes still images and prepares the grayscale regions the
// detectors work on.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"

	"github.com/andresmejia3/faceid/internal/types"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrFileNotFound is returned when an input image does not exist.
var ErrFileNotFound = errors.New("image file does not exist")

// Open reads and decodes an image file.
func Open(path string) (image.Image, []byte, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read the image file %s: %w", path, err)
	}
	return img, data, nil
}

// ReadFile returns the raw bytes of an image, mapping a missing file to ErrFileNotFound.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return data, err
}

// Decode decodes any registered format (jpeg, png, gif, bmp, tiff, webp).
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// Gray converts an image to 8-bit grayscale. Already-gray images are returned as is.
func Gray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Crop copies the box out of a grayscale image into a new image anchored at
// (0,0). The box is clipped to the image bounds.
func Crop(gray *image.Gray, box types.Box) *image.Gray {
	r := box.Rect().Add(gray.Bounds().Min).Intersect(gray.Bounds())
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), gray, r.Min, draw.Src)
	return out
}

// Downscale shrinks an image so its longest side is at most maxSide pixels.
// It returns the scale factor applied (1 when no scaling happened).
func Downscale(img image.Image, maxSide int) (image.Image, float64) {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxSide <= 0 || longest <= maxSide {
		return img, 1
	}
	scale := float64(maxSide) / float64(longest)
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst, scale
}

// EncodePNG encodes an image losslessly; used for regions sent to the worker.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeJPEG encodes an image at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes an image, picking PNG for ".png" paths and JPEG otherwise.
// Parent directories are created as needed.
func Save(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".png") {
		data, err = EncodePNG(img)
	} else {
		data, err = EncodeJPEG(img, 95)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
