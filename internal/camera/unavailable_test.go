//go:build !gocv

package camera

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
)

func TestUnavailableBackend(t *testing.T) {
	ctrl := NewController(NewDefaultBackend(), testConfig(), testLogger(), nil)

	_, err := ctrl.Acquire(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrDeviceAbsent)
	assert.Equal(t, "unavailable", ctrl.Status().Backend)
	assert.Equal(t, StateIdle, ctrl.State())
}
