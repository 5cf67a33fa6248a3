// Package camera owns the capture device lifecycle: acquisition with
// fallback strategies, bounded attempts, frame capture and release.
package camera

import (
	"context"
	"runtime"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// API selects the platform capture backend a device is opened through.
type API int

const (
	APIAny API = iota
	APIV4L2
	APIDirectShow
	APIAVFoundation
)

func (a API) String() string {
	switch a {
	case APIV4L2:
		return "v4l2"
	case APIDirectShow:
		return "dshow"
	case APIAVFoundation:
		return "avfoundation"
	default:
		return "any"
	}
}

// PlatformAPI returns the native capture API of the running OS, or APIAny
// when there is none worth forcing.
func PlatformAPI() API {
	switch runtime.GOOS {
	case "linux":
		return APIV4L2
	case "windows":
		return APIDirectShow
	case "darwin":
		return APIAVFoundation
	default:
		return APIAny
	}
}

// OpenRequest describes one attempt to open a device.
type OpenRequest struct {
	Index  int
	API    API
	Width  int
	Height int
	FPS    int
}

// Backend opens capture devices. Implementations should honor ctx but the
// controller does not rely on it.
type Backend interface {
	Name() string
	Open(ctx context.Context, req OpenRequest) (Device, error)
}

// Device is an opened camera handle.
//
// Read may return a frame whose buffer is reused by the next Read.
type Device interface {
	Read(ctx context.Context) (imaging.RawFrame, error)
	Close() error
}
