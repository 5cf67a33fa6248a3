//go:build !gocv

package camera

import (
	"context"
	"errors"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
)

var errNoCaptureSupport = errors.New("binary built without gocv capture support")

// UnavailableBackend is the default backend when the binary is built
// without the gocv tag. Every open reports an absent device.
type UnavailableBackend struct{}

// NewDefaultBackend returns the capture backend compiled into this binary.
func NewDefaultBackend() Backend {
	return UnavailableBackend{}
}

func (UnavailableBackend) Name() string { return "unavailable" }

func (UnavailableBackend) Open(_ context.Context, _ OpenRequest) (Device, error) {
	return nil, domain.ErrDeviceAbsent.WithError(errNoCaptureSupport)
}
