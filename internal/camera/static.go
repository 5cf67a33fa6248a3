package camera

import (
	"context"
	"fmt"
	"sync"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// StaticBackend serves a fixed frame sequence from a single device index.
// Frames are replayed in order and the sequence loops. It backs headless
// deployments that feed frames from disk and is used heavily in tests.
type StaticBackend struct {
	DeviceIndex int
	Frames      []imaging.RawFrame

	mu     sync.Mutex
	opened bool
}

func NewStaticBackend(index int, frames ...imaging.RawFrame) *StaticBackend {
	return &StaticBackend{DeviceIndex: index, Frames: frames}
}

func (b *StaticBackend) Name() string { return "static" }

func (b *StaticBackend) Open(_ context.Context, req OpenRequest) (Device, error) {
	if req.Index != b.DeviceIndex || len(b.Frames) == 0 {
		return nil, domain.ErrDeviceAbsent.WithError(fmt.Errorf("no static device at index %d", req.Index))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened {
		return nil, domain.ErrDeviceBusy
	}
	b.opened = true
	return &staticDevice{backend: b}, nil
}

type staticDevice struct {
	backend *StaticBackend
	next    int
	buf     []uint8
	closed  bool
}

func (d *staticDevice) Read(ctx context.Context) (imaging.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return imaging.RawFrame{}, err
	}
	if d.closed {
		return imaging.RawFrame{}, domain.ErrNoFrame
	}

	src := d.backend.Frames[d.next%len(d.backend.Frames)]
	d.next++

	// Reuse one buffer the way real drivers do.
	d.buf = append(d.buf[:0], src.Pix...)
	f := src
	f.Pix = d.buf
	return f, nil
}

func (d *staticDevice) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.backend.mu.Lock()
	d.backend.opened = false
	d.backend.mu.Unlock()
	return nil
}
