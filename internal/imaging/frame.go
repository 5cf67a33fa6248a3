package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
)

var ErrEmptyFrame = errors.New("empty frame")

// MaxDecodeSide bounds each side of an uploaded image. The header is checked
// before any pixel buffer is allocated.
const MaxDecodeSide = 4096

// RawFrame is an interleaved 8-bit pixel buffer as delivered by a camera or
// decoded from an upload. Channels is 1 (gray), 3 (RGB) or 4 (RGBA).
//
// A frame read from a device may alias a buffer the device reuses on the
// next read; hand it to another component only through Clone.
type RawFrame struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
	// Synthetic marks placeholder frames produced for degraded-mode testing.
	Synthetic bool
}

// Empty reports whether the frame carries no usable pixels.
func (f RawFrame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height*f.Channels
}

// Clone returns a frame with its own pixel buffer.
func (f RawFrame) Clone() RawFrame {
	c := f
	c.Pix = append([]uint8(nil), f.Pix...)
	return c
}

// Validate checks the buffer geometry.
func (f RawFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyFrame, f.Width, f.Height)
	}
	switch f.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	if want := f.Width * f.Height * f.Channels; len(f.Pix) < want {
		return fmt.Errorf("pixel buffer too short: %d < %d", len(f.Pix), want)
	}
	return nil
}

// Luminance returns the frame as a row-major gray plane using
// 0.299R + 0.587G + 0.114B.
func (f RawFrame) Luminance() []float64 {
	n := f.Width * f.Height
	gray := make([]float64, n)
	switch f.Channels {
	case 1:
		for i := 0; i < n; i++ {
			gray[i] = float64(f.Pix[i])
		}
	default:
		for i := 0; i < n; i++ {
			o := i * f.Channels
			gray[i] = 0.299*float64(f.Pix[o]) + 0.587*float64(f.Pix[o+1]) + 0.114*float64(f.Pix[o+2])
		}
	}
	return gray
}

// FromImage converts any image.Image into an RGB RawFrame.
func FromImage(img image.Image) RawFrame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, w*h*3)
	idx := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			pix[idx] = uint8(r >> 8)
			pix[idx+1] = uint8(g >> 8)
			pix[idx+2] = uint8(bl >> 8)
			idx += 3
		}
	}
	return RawFrame{Width: w, Height: h, Channels: 3, Pix: pix}
}

// Decode parses a JPEG or PNG payload.
func Decode(data []byte) (RawFrame, error) {
	if len(data) == 0 {
		return RawFrame{}, domain.ErrInvalidImage.WithError(ErrEmptyFrame)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return RawFrame{}, domain.ErrInvalidImage.WithError(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxDecodeSide || cfg.Height > MaxDecodeSide {
		return RawFrame{}, domain.ErrInvalidImage.WithError(
			fmt.Errorf("image is %dx%d, limit is %dx%d", cfg.Width, cfg.Height, MaxDecodeSide, MaxDecodeSide))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return RawFrame{}, domain.ErrInvalidImage.WithError(err)
	}
	return FromImage(img), nil
}

// Placeholder builds a synthetic gradient frame. It exists for degraded-mode
// testing when no camera is attached and is always marked Synthetic.
func Placeholder(width, height int) RawFrame {
	if width <= 0 {
		width = 64
	}
	if height <= 0 {
		height = 64
	}
	pix := make([]uint8, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			o := (y*width + x) * 3
			v := uint8((x*255/width + y*255/height) / 2)
			pix[o], pix[o+1], pix[o+2] = v, v, v
		}
	}
	return RawFrame{Width: width, Height: height, Channels: 3, Pix: pix, Synthetic: true}
}
