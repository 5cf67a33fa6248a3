//go:build gocv

package camera

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// GocvBackend opens cameras through OpenCV.
type GocvBackend struct{}

// NewDefaultBackend returns the capture backend compiled into this binary.
func NewDefaultBackend() Backend {
	return GocvBackend{}
}

func (GocvBackend) Name() string { return "gocv" }

func (GocvBackend) Open(ctx context.Context, req OpenRequest) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCaptureWithAPI(req.Index, gocvAPI(req.API))
	if err != nil {
		return nil, domain.ErrDeviceAbsent.WithError(err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, domain.ErrDeviceAbsent.WithError(fmt.Errorf("device %d did not open", req.Index))
	}

	if req.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(req.Width))
	}
	if req.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(req.Height))
	}
	if req.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(req.FPS))
	}
	// Keep only the newest frame so captures are not served stale.
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return &gocvDevice{vc: vc, mat: gocv.NewMat()}, nil
}

type gocvDevice struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
	pix []uint8
}

func (d *gocvDevice) Read(ctx context.Context) (imaging.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return imaging.RawFrame{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return imaging.RawFrame{}, domain.ErrNoFrame
	}

	w, h, ch := d.mat.Cols(), d.mat.Rows(), d.mat.Channels()
	src := d.mat.ToBytes()
	if cap(d.pix) < len(src) {
		d.pix = make([]uint8, len(src))
	}
	d.pix = d.pix[:len(src)]

	switch ch {
	case 3, 4:
		// OpenCV delivers BGR(A).
		for i := 0; i+2 < len(src); i += ch {
			d.pix[i], d.pix[i+1], d.pix[i+2] = src[i+2], src[i+1], src[i]
			if ch == 4 {
				d.pix[i+3] = src[i+3]
			}
		}
	default:
		copy(d.pix, src)
	}

	return imaging.RawFrame{Width: w, Height: h, Channels: ch, Pix: d.pix}, nil
}

func (d *gocvDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.mat.Close()
	return d.vc.Close()
}

func gocvAPI(api API) gocv.VideoCaptureAPI {
	switch api {
	case APIV4L2:
		return gocv.VideoCaptureV4L2
	case APIDirectShow:
		return gocv.VideoCaptureDshow
	case APIAVFoundation:
		return gocv.VideoCaptureAVFoundation
	default:
		return gocv.VideoCaptureAny
	}
}
