package storage

import (
	"bytes"
	"context"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/classifieds/config"
)

var testLimits = Limits{MaxBytes: 1 << 20, MaxPixels: 1 << 20}

func sample(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestProcessImageResizesPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, sample(40, 30)))

	out, err := ProcessImage(&buf, testLimits)
	require.NoError(t, err)
	assert.Equal(t, ".png", out.Ext)
	assert.Equal(t, "image/png", out.ContentType)

	cfg, err := png.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, ImageSide, cfg.Width)
	assert.Equal(t, ImageSide, cfg.Height)
}

func TestProcessImageKeepsJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, sample(600, 900), nil))

	out, err := ProcessImage(&buf, Limits{MaxBytes: 1 << 22, MaxPixels: 1 << 20})
	require.NoError(t, err)
	assert.Equal(t, ".jpg", out.Ext)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, ImageSide, cfg.Width)
}

func TestProcessImageRejectsOtherFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, sample(10, 10), nil))
	_, err := ProcessImage(&buf, testLimits)
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = ProcessImage(strings.NewReader("plain text"), testLimits)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestProcessImageEnforcesSize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, sample(50, 50)))
	_, err := ProcessImage(&buf, Limits{MaxBytes: 16, MaxPixels: 1 << 20})
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

// pngHeader returns a PNG that declares w x h pixels but carries no pixel data.
func pngHeader(w, h uint32) []byte {
	ihdr := []byte{
		'I', 'H', 'D', 'R',
		byte(w >> 24), byte(w >> 16), byte(w >> 8), byte(w),
		byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h),
		8, 0, 0, 0, 0,
	}
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	buf.Write([]byte{0, 0, 0, 13})
	buf.Write(ihdr)
	sum := crc32.ChecksumIEEE(ihdr)
	buf.Write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return buf.Bytes()
}

func TestProcessImageRejectsHugeDimensions(t *testing.T) {
	raw := pngHeader(20000, 20000)
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, 20000, cfg.Width)

	_, err = ProcessImage(bytes.NewReader(raw), Limits{MaxBytes: 5 << 20, MaxPixels: 40_000_000})
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestProcessImagePixelLimitIsInclusive(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, sample(20, 10)))
	_, err := ProcessImage(bytes.NewReader(buf.Bytes()), Limits{MaxBytes: 1 << 20, MaxPixels: 200})
	assert.NoError(t, err)

	_, err = ProcessImage(bytes.NewReader(buf.Bytes()), Limits{MaxBytes: 1 << 20, MaxPixels: 199})
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestLimitsFromConfig(t *testing.T) {
	lim := LimitsFrom(config.AppConfig{MaxImageSizeMB: 2, MaxImageMegapixels: 12})
	assert.Equal(t, Limits{MaxBytes: 2 << 20, MaxPixels: 12_000_000}, lim)

	lim = LimitsFrom(config.AppConfig{})
	assert.Equal(t, Limits{MaxBytes: 5 << 20, MaxPixels: 40_000_000}, lim)
}

func TestLocalStorePutRemove(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir, "/static/")
	ctx := context.Background()

	url, err := s.Put(ctx, "products/l1/a.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/static/products/l1/a.jpg", url)
	_, err = os.Stat(filepath.Join(dir, "products", "l1", "a.jpg"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, "products/l1/a.jpg"))
	require.NoError(t, s.Remove(ctx, "products/l1/a.jpg"), "removing twice is fine")
}

func TestLocalStoreStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(filepath.Join(dir, "root"), "/static")
	_, err := s.Put(context.Background(), "../../escape.txt", []byte("x"), "text/plain")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "root", "escape.txt"))
	assert.NoError(t, err)
}

func TestKeys(t *testing.T) {
	assert.True(t, strings.HasPrefix(ListingImageKey("abc", ".png"), "products/abc/"))
	assert.True(t, strings.HasSuffix(AvatarKey("u1", ".jpg"), ".jpg"))
	assert.NotEqual(t, AvatarKey("u1", ".jpg"), AvatarKey("u1", ".jpg"))
}
