package storage

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	"github.com/cppla/classifieds/config"
)

// ImageSide is the edge length every stored picture is scaled to.
const ImageSide = 512

var (
	ErrUnsupportedImage = errors.New("only jpg and png images are allowed")
	ErrImageTooLarge    = errors.New("image is too large")
)

// Processed is an image ready for upload.
type Processed struct {
	Data        []byte
	Ext         string
	ContentType string
}

// Limits bounds an upload by encoded size and by decoded pixel count.
type Limits struct {
	MaxBytes  int64
	MaxPixels int64
}

// LimitsFrom reads the upload limits from the application config.
func LimitsFrom(c config.AppConfig) Limits {
	mb, mp := c.MaxImageSizeMB, c.MaxImageMegapixels
	if mb <= 0 {
		mb = 5
	}
	if mp <= 0 {
		mp = 40
	}
	return Limits{MaxBytes: int64(mb) << 20, MaxPixels: int64(mp) * 1_000_000}
}

// ProcessImage reads at most lim.MaxBytes from r, accepts jpeg or png only and
// scales the picture to ImageSide x ImageSide in its original format.
// Dimensions are checked from the header before the bitmap is allocated.
func ProcessImage(r io.Reader, lim Limits) (Processed, error) {
	raw, err := io.ReadAll(io.LimitReader(r, lim.MaxBytes+1))
	if err != nil {
		return Processed{}, err
	}
	if int64(len(raw)) > lim.MaxBytes {
		return Processed{}, ErrImageTooLarge
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil || (format != "jpeg" && format != "png") {
		return Processed{}, ErrUnsupportedImage
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Processed{}, ErrUnsupportedImage
	}
	if int64(cfg.Width)*int64(cfg.Height) > lim.MaxPixels {
		return Processed{}, ErrImageTooLarge
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Processed{}, ErrUnsupportedImage
	}

	dst := image.NewRGBA(image.Rect(0, 0, ImageSide, ImageSide))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, dst); err != nil {
			return Processed{}, err
		}
		return Processed{Data: buf.Bytes(), Ext: ".png", ContentType: "image/png"}, nil
	}
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return Processed{}, err
	}
	return Processed{Data: buf.Bytes(), Ext: ".jpg", ContentType: "image/jpeg"}, nil
}
