package hat

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/moubarak/mlkit-hat/utils"
	"golang.org/x/image/bmp"
)

// ErrUnsupportedFormat is returned when a frame can't be encoded in the requested format.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// LoadOverlay decodes the bitmap drawn over a locked face.
func LoadOverlay(src string) (*image.NRGBA, error) {
	ctype, err := utils.DetectContentType(src)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(ctype.(string), "image") {
		return nil, fmt.Errorf("the overlay should be an image file")
	}

	file, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("could not open the overlay file: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("could not decode the overlay file: %w", err)
	}
	return imgToNRGBA(img), nil
}

// DefaultOverlay draws a simple red party hat, used when no overlay bitmap is provided.
func DefaultOverlay() *image.NRGBA {
	const w, h = 240, 200
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	red := color.NRGBA{R: 0xd3, G: 0x1f, B: 0x26, A: 0xff}
	white := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	// Cone: the half width grows linearly from the tip down to the brim.
	for y := 20; y < h-30; y++ {
		half := (y - 20) * (w / 2) / (h - 50)
		for x := w/2 - half; x <= w/2+half; x++ {
			img.SetNRGBA(x, y, red)
		}
	}
	// Brim.
	draw.Draw(img, image.Rect(0, h-30, w, h), &image.Uniform{C: white}, image.Point{}, draw.Src)
	// Pompom.
	for y := 0; y < 40; y++ {
		for x := w/2 - 20; x < w/2+20; x++ {
			if dx, dy := x-w/2, y-20; dx*dx+dy*dy <= 400 {
				img.SetNRGBA(x, y, white)
			}
		}
	}
	return img
}

// encodeFrame encodes the rendered frame in the format given by the file extension.
// Writers other than files are encoded as jpeg.
func encodeFrame(w io.Writer, img image.Image) error {
	switch w := w.(type) {
	case *os.File:
		switch filepath.Ext(w.Name()) {
		case "", ".jpg", ".jpeg":
			return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
		case ".png":
			return png.Encode(w, img)
		case ".bmp":
			return bmp.Encode(w, img)
		default:
			return ErrUnsupportedFormat
		}
	default:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	}
}

// imgToNRGBA converts any image type to *image.NRGBA with min-point at (0, 0).
func imgToNRGBA(img image.Image) *image.NRGBA {
	srcBounds := img.Bounds()
	if srcBounds.Min.X == 0 && srcBounds.Min.Y == 0 {
		if src0, ok := img.(*image.NRGBA); ok {
			return src0
		}
	}
	srcMinX := srcBounds.Min.X
	srcMinY := srcBounds.Min.Y

	dstBounds := srcBounds.Sub(srcBounds.Min)
	dstW := dstBounds.Dx()
	dstH := dstBounds.Dy()
	dst := image.NewNRGBA(dstBounds)

	switch src := img.(type) {
	case *image.NRGBA:
		rowSize := dstW * 4
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			si := src.PixOffset(srcMinX, srcMinY+dstY)
			copy(dst.Pix[di:di+rowSize], src.Pix[si:si+rowSize])
		}
	case *image.YCbCr:
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				srcX := srcMinX + dstX
				srcY := srcMinY + dstY
				siy := src.YOffset(srcX, srcY)
				sic := src.COffset(srcX, srcY)
				r, g, b := color.YCbCrToRGB(src.Y[siy], src.Cb[sic], src.Cr[sic])
				dst.Pix[di+0] = r
				dst.Pix[di+1] = g
				dst.Pix[di+2] = b
				dst.Pix[di+3] = 0xff
				di += 4
			}
		}
	default:
		draw.Draw(dst, dstBounds, img, srcBounds.Min, draw.Src)
	}

	return dst
}
