package icon

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/3leaps/appimage-installer/internal/model"
)

// DefaultSize is the edge length of installed icons.
const DefaultSize = 256

const (
	maxSVGBytes = 4 << 20
	// maxPixels bounds raster icons by their header before any pixel
	// memory is allocated.
	maxPixels = 4096 * 4096
)

// Decode turns an icon payload into an image. Vector art is rasterized at
// size. Unsupported or broken payloads wrap model.ErrIconDecode.
func Decode(data []byte, size int) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", model.ErrIconDecode)
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/gzip"):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrIconDecode, err)
		}
		defer zr.Close()
		inner, err := io.ReadAll(io.LimitReader(zr, maxSVGBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: inflate: %w", model.ErrIconDecode, err)
		}
		if !mimetype.Detect(inner).Is("image/svg+xml") {
			return nil, fmt.Errorf("%w: compressed payload is not SVG", model.ErrIconDecode)
		}
		return rasterizeSVG(inner, size)
	case mt.Is("image/svg+xml"):
		return rasterizeSVG(data, size)
	case mt.Is("image/png"), mt.Is("image/jpeg"), mt.Is("image/gif"), mt.Is("image/bmp"), mt.Is("image/webp"):
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", model.ErrIconDecode, mt.String(), err)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return nil, fmt.Errorf("%w: zero-sized image", model.ErrIconDecode)
		}
		if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
			return nil, fmt.Errorf("%w: %dx%d image is too large", model.ErrIconDecode, cfg.Width, cfg.Height)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", model.ErrIconDecode, mt.String(), err)
		}
		if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
			return nil, fmt.Errorf("%w: zero-sized image", model.ErrIconDecode)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %s", model.ErrIconDecode, mt.String())
	}
}

func rasterizeSVG(data []byte, size int) (image.Image, error) {
	svg, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: svg: %w", model.ErrIconDecode, err)
	}
	if svg.ViewBox.W <= 0 || svg.ViewBox.H <= 0 {
		return nil, fmt.Errorf("%w: svg has no view box", model.ErrIconDecode)
	}
	svg.SetTarget(0, 0, float64(size), float64(size))
	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, rgba, rgba.Bounds())
	svg.Draw(rasterx.NewDasher(size, size, scanner), 1)
	return rgba, nil
}

// Normalize scales img to fit a size×size transparent square, keeping its
// aspect ratio, and encodes it as PNG.
func Normalize(img image.Image, size int) ([]byte, error) {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	b := img.Bounds()
	w, h := size, size
	if b.Dx() > b.Dy() {
		h = max(1, size*b.Dy()/b.Dx())
	} else if b.Dy() > b.Dx() {
		w = max(1, size*b.Dx()/b.Dy())
	}
	x0, y0 := (size-w)/2, (size-h)/2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode icon: %w", err)
	}
	return buf.Bytes(), nil
}
