package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/camera"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging/imagingtest"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/recognizer"
)

func acquire(t *testing.T, f *fixture, frames ...imaging.RawFrame) (*camera.Controller, *camera.Session) {
	t.Helper()
	ctrl := camera.NewController(camera.NewStaticBackend(0, frames...), camera.DefaultConfig(), testLogger(), f.audit)
	session, err := ctrl.Acquire(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Release(session) })
	return ctrl, session
}

func TestAuthenticateImage_EndToEnd(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	enrollSubject(t, f, "alice", 11, 5)
	enrollSubject(t, f, "bob", 22, 5)
	ctx := context.Background()

	t.Run("enrolled subject is recognized", func(t *testing.T) {
		res, err := f.auth.AuthenticateImage(ctx, imagingtest.NewSubject(11).Frame(1.03, -4, 77))
		require.NoError(t, err)

		assert.True(t, res.Recognized)
		require.NotNil(t, res.IdentityID)
		assert.Equal(t, "alice", *res.IdentityID)
		assert.GreaterOrEqual(t, res.Confidence, recognizer.DefaultThreshold)
		assert.Equal(t, 1, res.Attempts)
		assert.NotEmpty(t, res.Breakdown)
	})

	t.Run("unknown face is rejected", func(t *testing.T) {
		res, err := f.auth.AuthenticateImage(ctx, imagingtest.Noise(5))
		assert.ErrorIs(t, err, domain.ErrNoMatch)

		require.NotNil(t, res)
		assert.False(t, res.Recognized)
		assert.Nil(t, res.IdentityID)
		assert.Less(t, res.Confidence, recognizer.DefaultThreshold)
	})

	t.Run("blank frame has no face", func(t *testing.T) {
		res, err := f.auth.AuthenticateImage(ctx, imagingtest.Blank(128))
		assert.ErrorIs(t, err, domain.ErrNoFaceDetected)
		assert.Nil(t, res)
	})

	t.Run("invalid frame", func(t *testing.T) {
		_, err := f.auth.AuthenticateImage(ctx, imaging.RawFrame{Width: 4, Height: 4, Channels: 1})
		assert.ErrorIs(t, err, domain.ErrInvalidImage)
	})
}

func TestAuthenticateImage_RejectsOtherSubjects(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	enrollSubject(t, f, "alice", 11, 5)

	for seed := int64(100); seed < 140; seed++ {
		res, err := f.auth.AuthenticateImage(context.Background(), imagingtest.NewSubject(seed).Frame(1, 0, 0))
		require.ErrorIs(t, err, domain.ErrNoMatch, "subject %d", seed)
		assert.False(t, res.Recognized)
		assert.Less(t, res.Confidence, recognizer.DefaultThreshold, "subject %d", seed)
	}
}

func TestAuthenticate_Session(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	enrollSubject(t, f, "alice", 11, 5)
	enrollSubject(t, f, "bob", 22, 5)

	alice := imagingtest.NewSubject(11)
	_, session := acquire(t, f, alice.Frame(1.0, 0, 5), alice.Frame(0.95, 6, 6), alice.Frame(1.05, -6, 7))

	res, err := f.auth.Authenticate(context.Background(), session)
	require.NoError(t, err)

	require.NotNil(t, res.IdentityID)
	assert.Equal(t, "alice", *res.IdentityID)
	assert.GreaterOrEqual(t, res.Attempts, 1)
	assert.LessOrEqual(t, res.Attempts, DefaultAuthConfig().MaxAttempts)
	assert.GreaterOrEqual(t, res.LatencyMs, int64(0))

	events := f.audit.OfType(audit.EventAuthAttempt)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].IdentityID)
	require.NotNil(t, events[0].Accepted)
	assert.True(t, *events[0].Accepted)
}

func TestAuthenticate_AttemptLoop(t *testing.T) {
	tests := []struct {
		name           string
		confidence     float64
		wantAttempts   int
		wantRecognized bool
		wantErr        error
	}{
		{name: "fast accept stops after first attempt", confidence: 0.99, wantAttempts: 1, wantRecognized: true},
		{name: "accepted below fast accept uses every attempt", confidence: 0.9, wantAttempts: 3, wantRecognized: true},
		{name: "below threshold is no match", confidence: 0.5, wantAttempts: 3, wantErr: domain.ErrNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{
				noGallery: true,
				matchers:  []recognizer.Matcher{fixedMatcher{name: "lbph", identityID: "alice", confidence: tt.confidence}},
				auth:      AuthConfig{MaxAttempts: 3},
			})
			_, err := f.ensemble.Train(context.Background(), []recognizer.Sample{
				{IdentityID: "alice", Image: imagingtest.Normalized(imagingtest.NewSubject(11).Frame(1, 0, 0))},
			})
			require.NoError(t, err)

			_, session := acquire(t, f, imagingtest.Noise(1), imagingtest.Noise(2))

			res, err := f.auth.Authenticate(context.Background(), session)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			require.NotNil(t, res)
			assert.Equal(t, tt.wantAttempts, res.Attempts)
			assert.Equal(t, tt.wantRecognized, res.Recognized)
			assert.Equal(t, "alice", res.Candidate)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-9)
			assert.Len(t, f.audit.OfType(audit.EventAuthAttempt), 1)
		})
	}
}

func TestAuthenticate_SkipsFramesWithoutFace(t *testing.T) {
	f := newFixture(t, fixtureOptions{auth: AuthConfig{MaxAttempts: 4}})
	enrollSubject(t, f, "alice", 11, 3)

	_, session := acquire(t, f, imagingtest.Blank(90), imaging.Placeholder(imagingtest.Size, imagingtest.Size))

	res, err := f.auth.Authenticate(context.Background(), session)
	assert.ErrorIs(t, err, domain.ErrNoFaceDetected)
	assert.Nil(t, res)

	events := f.audit.OfType(audit.EventAuthAttempt)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Accepted)
	assert.False(t, *events[0].Accepted)
}

func TestAuthenticate_DeviceError(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	enrollSubject(t, f, "alice", 11, 3)

	ctrl, session := acquire(t, f, imagingtest.NewSubject(11).Samples(2)...)
	require.NoError(t, ctrl.Release(session))

	res, err := f.auth.Authenticate(context.Background(), session)

	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrAuthDeviceError)
	assert.ErrorIs(t, err, domain.ErrSessionReleased)
	assert.Len(t, f.audit.OfType(audit.EventAuthAttempt), 1)
}

// hangingDevice delivers its test frame, then blocks every read. When
// honorCtx is false the read only returns once release is closed.
type hangingDevice struct {
	honorCtx bool
	release  chan struct{}
	reads    atomic.Int32
}

func (d *hangingDevice) Read(ctx context.Context) (imaging.RawFrame, error) {
	if d.reads.Add(1) == 1 {
		return imagingtest.NewSubject(11).Frame(1, 0, 0), nil
	}
	if d.honorCtx {
		select {
		case <-ctx.Done():
			return imaging.RawFrame{}, ctx.Err()
		case <-d.release:
		}
	}
	<-d.release
	return imaging.RawFrame{}, nil
}

func (d *hangingDevice) Close() error { return nil }

type hangingBackend struct{ dev *hangingDevice }

func (b hangingBackend) Name() string { return "hanging" }

func (b hangingBackend) Open(_ context.Context, _ camera.OpenRequest) (camera.Device, error) {
	return b.dev, nil
}

func TestAuthenticate_DeadlineBeforeFirstFrame(t *testing.T) {
	tests := []struct {
		name     string
		honorCtx bool
	}{
		{name: "device honors the deadline", honorCtx: true},
		{name: "device ignores the deadline", honorCtx: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{auth: AuthConfig{Timeout: 100 * time.Millisecond}})
			enrollSubject(t, f, "alice", 11, 3)

			dev := &hangingDevice{honorCtx: tt.honorCtx, release: make(chan struct{})}
			t.Cleanup(func() { close(dev.release) })
			ctrl := camera.NewController(hangingBackend{dev: dev}, camera.DefaultConfig(), testLogger(), f.audit)
			session, err := ctrl.Acquire(context.Background(), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = ctrl.Release(session) })

			start := time.Now()
			res, err := f.auth.Authenticate(context.Background(), session)

			assert.Nil(t, res)
			assert.ErrorIs(t, err, domain.ErrAuthDeviceError)
			assert.ErrorIs(t, err, domain.ErrCaptureTimeout)
			assert.NotErrorIs(t, err, domain.ErrNoFaceDetected)
			assert.Less(t, time.Since(start), 2*time.Second)
			assert.Len(t, f.audit.OfType(audit.EventAuthAttempt), 1)
		})
	}
}

func TestAuthenticate_NothingEnrolled(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	res, err := f.auth.AuthenticateImage(context.Background(), imagingtest.NewSubject(11).Frame(1, 0, 0))
	assert.ErrorIs(t, err, domain.ErrNoMatch)
	require.NotNil(t, res)
	assert.False(t, res.Recognized)
	assert.Zero(t, res.Confidence)
}
