package camera

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ScanLimit = 3
	cfg.AttemptTimeout = 200 * time.Millisecond
	cfg.CaptureBackoff = time.Millisecond
	return cfg
}

func grayFrame(v uint8) imaging.RawFrame {
	pix := make([]uint8, 8*8)
	for i := range pix {
		pix[i] = v + uint8(i%7)
	}
	return imaging.RawFrame{Width: 8, Height: 8, Channels: 1, Pix: pix}
}

type fakeDevice struct {
	mu     sync.Mutex
	frames []imaging.RawFrame
	errs   []error
	reads  int
	closed atomic.Bool
	buf    []uint8
}

func (d *fakeDevice) Read(ctx context.Context) (imaging.RawFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.reads
	d.reads++
	if i < len(d.errs) && d.errs[i] != nil {
		return imaging.RawFrame{}, d.errs[i]
	}
	if len(d.frames) == 0 {
		return imaging.RawFrame{}, nil
	}
	src := d.frames[i%len(d.frames)]
	d.buf = append(d.buf[:0], src.Pix...)
	f := src
	f.Pix = d.buf
	return f, nil
}

func (d *fakeDevice) Close() error {
	d.closed.Store(true)
	return nil
}

type openFunc func(ctx context.Context, req OpenRequest) (Device, error)

type fakeBackend struct {
	mu    sync.Mutex
	open  openFunc
	calls []OpenRequest
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Open(ctx context.Context, req OpenRequest) (Device, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req)
	b.mu.Unlock()
	return b.open(ctx, req)
}

func (b *fakeBackend) Calls() []OpenRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]OpenRequest(nil), b.calls...)
}

func TestController_Acquire_DefaultStrategy(t *testing.T) {
	dev := &fakeDevice{frames: []imaging.RawFrame{grayFrame(10)}}
	backend := &fakeBackend{open: func(_ context.Context, req OpenRequest) (Device, error) {
		return dev, nil
	}}
	ctrl := NewController(backend, testConfig(), testLogger(), nil)

	s, err := ctrl.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyDefault, s.Strategy())
	assert.Equal(t, 0, s.Index())
	assert.Equal(t, StateActive, ctrl.State())

	st := ctrl.Status()
	assert.Equal(t, "active", st.State)
	require.NotNil(t, st.Index)
	assert.Equal(t, 0, *st.Index)

	require.Len(t, backend.Calls(), 1)
	assert.Equal(t, 640, backend.Calls()[0].Width)

	require.NoError(t, ctrl.Release(s))
	assert.Equal(t, StateIdle, ctrl.State())
	assert.True(t, dev.closed.Load())
}

func TestController_Acquire_FallsBackToScan(t *testing.T) {
	backend := &fakeBackend{open: func(_ context.Context, req OpenRequest) (Device, error) {
		if req.Index == 2 {
			return &fakeDevice{frames: []imaging.RawFrame{grayFrame(1)}}, nil
		}
		return nil, domain.ErrDeviceAbsent
	}}
	ctrl := NewController(backend, testConfig(), testLogger(), nil)

	s, err := ctrl.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyScan, s.Strategy())
	assert.Equal(t, 2, s.Index())

	for _, c := range backend.Calls() {
		if c.API == APIAny && c.Width == 0 {
			assert.NotEqual(t, 0, c.Index, "scan must skip the configured index")
		}
	}
	require.NoError(t, ctrl.Release(s))
}

func TestController_Acquire_ExplicitIndex(t *testing.T) {
	backend := &fakeBackend{open: func(_ context.Context, req OpenRequest) (Device, error) {
		if req.Index == 1 {
			return &fakeDevice{frames: []imaging.RawFrame{grayFrame(1)}}, nil
		}
		return nil, domain.ErrDeviceAbsent
	}}
	ctrl := NewController(backend, testConfig(), testLogger(), nil)

	idx := 1
	s, err := ctrl.Acquire(context.Background(), &idx)
	require.NoError(t, err)
	assert.Equal(t, StrategyDefault, s.Strategy())
	assert.Equal(t, 1, s.Index())
	require.NoError(t, ctrl.Release(s))
}

func TestController_Acquire_AllStrategiesFail(t *testing.T) {
	tests := []struct {
		name    string
		openErr error
		want    *domain.AppError
	}{
		{name: "absent", openErr: errors.New("no such device"), want: domain.ErrDeviceAbsent},
		{name: "busy", openErr: domain.ErrDeviceBusy, want: domain.ErrDeviceBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{open: func(_ context.Context, _ OpenRequest) (Device, error) {
				return nil, tt.openErr
			}}
			events := audit.NewMemoryLogger()
			ctrl := NewController(backend, testConfig(), testLogger(), events)

			s, err := ctrl.Acquire(context.Background(), nil)
			assert.Nil(t, s)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, StateIdle, ctrl.State())

			require.Len(t, events.OfType(audit.EventCaptureFailed), 1)
			assert.Equal(t, "camera:0", events.OfType(audit.EventCaptureFailed)[0].Device)
		})
	}
}

func TestController_Acquire_EmptyTestFrame(t *testing.T) {
	var devs []*fakeDevice
	var mu sync.Mutex
	backend := &fakeBackend{open: func(_ context.Context, _ OpenRequest) (Device, error) {
		d := &fakeDevice{}
		mu.Lock()
		devs = append(devs, d)
		mu.Unlock()
		return d, nil
	}}
	ctrl := NewController(backend, testConfig(), testLogger(), nil)

	_, err := ctrl.Acquire(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoFrame)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, devs)
	for _, d := range devs {
		assert.True(t, d.closed.Load(), "devices without a test frame must be closed")
	}
}

func TestController_Acquire_HangingBackendTimesOut(t *testing.T) {
	unblock := make(chan struct{})
	late := &fakeDevice{frames: []imaging.RawFrame{grayFrame(1)}}
	backend := &fakeBackend{open: func(_ context.Context, req OpenRequest) (Device, error) {
		if req.Index == 0 && req.API == APIAny {
			<-unblock
			return late, nil
		}
		return nil, domain.ErrDeviceAbsent
	}}
	cfg := testConfig()
	cfg.AttemptTimeout = 30 * time.Millisecond
	ctrl := NewController(backend, cfg, testLogger(), nil)

	start := time.Now()
	_, err := ctrl.Acquire(context.Background(), nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateIdle, ctrl.State())

	close(unblock)
	assert.Eventually(t, late.closed.Load, time.Second, 5*time.Millisecond,
		"a device returned after its deadline must be closed")
}

func TestController_Acquire_Concurrent(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	backend := &fakeBackend{open: func(_ context.Context, _ OpenRequest) (Device, error) {
		close(started)
		<-proceed
		return &fakeDevice{frames: []imaging.RawFrame{grayFrame(1)}}, nil
	}}
	cfg := testConfig()
	cfg.AttemptTimeout = 5 * time.Second
	ctrl := NewController(backend, cfg, testLogger(), nil)

	type result struct {
		s   *Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := ctrl.Acquire(context.Background(), nil)
		done <- result{s, err}
	}()

	<-started
	_, err := ctrl.Acquire(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyAcquiring)

	close(proceed)
	r := <-done
	require.NoError(t, r.err)

	_, err = ctrl.Acquire(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrDeviceBusy)

	require.NoError(t, ctrl.Release(r.s))
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestController_Release_Idempotent(t *testing.T) {
	ctrl := NewController(NewStaticBackend(0, grayFrame(3)), testConfig(), testLogger(), nil)

	assert.NotPanics(t, func() {
		assert.NoError(t, ctrl.Release(nil))
	})

	s, err := ctrl.Acquire(context.Background(), nil)
	require.NoError(t, err)

	assert.NoError(t, ctrl.Release(s))
	assert.NoError(t, ctrl.Release(s))
	assert.Equal(t, StateIdle, ctrl.State())

	_, err = s.Capture(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionReleased)

	// The device is free again.
	s2, err := ctrl.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, ctrl.Close())
	_, err = s2.Capture(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionReleased)
}

func TestSession_Capture_ClonesFrames(t *testing.T) {
	ctrl := NewController(NewStaticBackend(0, grayFrame(10), grayFrame(100)), testConfig(), testLogger(), nil)
	s, err := ctrl.Acquire(context.Background(), nil)
	require.NoError(t, err)
	defer ctrl.Release(s)

	first, err := s.Capture(context.Background())
	require.NoError(t, err)
	snapshot := append([]uint8(nil), first.Pix...)

	_, err = s.Capture(context.Background())
	require.NoError(t, err)

	assert.Equal(t, snapshot, first.Pix, "earlier frame must not change after the next capture")
	assert.Equal(t, StateActive, ctrl.State())
}

func TestSession_Capture_Retries(t *testing.T) {
	transient := errors.New("transient read error")

	tests := []struct {
		name      string
		errs      []error
		frames    []imaging.RawFrame
		wantErr   error
		wantReads int
	}{
		{
			name:      "recovers after two failures",
			errs:      []error{nil, transient, transient},
			frames:    []imaging.RawFrame{grayFrame(1)},
			wantReads: 4,
		},
		{
			name:      "gives up after configured retries",
			errs:      []error{nil, transient, transient, transient, nil},
			frames:    []imaging.RawFrame{grayFrame(1)},
			wantErr:   domain.ErrNoFrame,
			wantReads: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDevice{frames: tt.frames, errs: tt.errs}
			backend := &fakeBackend{open: func(_ context.Context, _ OpenRequest) (Device, error) {
				return dev, nil
			}}
			events := audit.NewMemoryLogger()
			ctrl := NewController(backend, testConfig(), testLogger(), events)

			s, err := ctrl.Acquire(context.Background(), nil)
			require.NoError(t, err)
			defer ctrl.Release(s)

			frame, err := s.Capture(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Len(t, events.OfType(audit.EventCaptureFailed), 1)
			} else {
				require.NoError(t, err)
				assert.False(t, frame.Empty())
			}
			assert.Equal(t, tt.wantReads, dev.reads)
		})
	}
}

func TestSession_Capture_CancelledContext(t *testing.T) {
	dev := &fakeDevice{frames: []imaging.RawFrame{grayFrame(1)}, errs: []error{nil, errors.New("x"), errors.New("x"), errors.New("x")}}
	backend := &fakeBackend{open: func(_ context.Context, _ OpenRequest) (Device, error) { return dev, nil }}
	cfg := testConfig()
	cfg.CaptureBackoff = time.Hour
	ctrl := NewController(backend, cfg, testLogger(), nil)

	s, err := ctrl.Acquire(context.Background(), nil)
	require.NoError(t, err)
	defer ctrl.Release(s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Capture(ctx)
	assert.ErrorIs(t, err, domain.ErrCaptureTimeout)
}

// stuckDevice delivers its test frame, then blocks every read until
// unblock is closed, ignoring the context.
type stuckDevice struct {
	reads   atomic.Int32
	unblock chan struct{}
	closed  atomic.Bool
}

func (d *stuckDevice) Read(_ context.Context) (imaging.RawFrame, error) {
	if d.reads.Add(1) == 1 {
		return grayFrame(3), nil
	}
	<-d.unblock
	return grayFrame(3), nil
}

func (d *stuckDevice) Close() error {
	d.closed.Store(true)
	return nil
}

func TestSession_Capture_StuckReadInvalidatesSession(t *testing.T) {
	tests := []struct {
		name     string
		attempt  time.Duration
		deadline time.Duration
	}{
		{name: "attempt timeout bounds the read", attempt: 30 * time.Millisecond, deadline: time.Minute},
		{name: "caller deadline bounds the read", attempt: time.Minute, deadline: 30 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &stuckDevice{unblock: make(chan struct{})}
			fresh := &fakeDevice{frames: []imaging.RawFrame{grayFrame(9)}}
			var opens atomic.Int32
			backend := &fakeBackend{open: func(_ context.Context, _ OpenRequest) (Device, error) {
				if opens.Add(1) == 1 {
					return dev, nil
				}
				return fresh, nil
			}}
			cfg := testConfig()
			cfg.AttemptTimeout = tt.attempt
			events := audit.NewMemoryLogger()
			ctrl := NewController(backend, cfg, testLogger(), events)

			s, err := ctrl.Acquire(context.Background(), nil)
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), tt.deadline)
			defer cancel()

			start := time.Now()
			_, err = s.Capture(ctx)
			assert.ErrorIs(t, err, domain.ErrCaptureTimeout)
			assert.Less(t, time.Since(start), 2*time.Second)
			assert.Len(t, events.OfType(audit.EventCaptureFailed), 1)
			assert.Equal(t, StateIdle, ctrl.State())

			_, err = s.Capture(context.Background())
			assert.ErrorIs(t, err, domain.ErrSessionReleased)
			assert.False(t, dev.closed.Load(), "device must not be closed while a read is pending")

			next, err := ctrl.Acquire(context.Background(), nil)
			require.NoError(t, err)
			assert.NotSame(t, s, next)
			require.NoError(t, ctrl.Release(s))
			assert.Equal(t, StateActive, ctrl.State(), "releasing the stale session must not affect the new one")
			require.NoError(t, ctrl.Release(next))

			close(dev.unblock)
			assert.Eventually(t, dev.closed.Load, time.Second, 5*time.Millisecond)
		})
	}
}

func TestController_CaptureOrPlaceholder(t *testing.T) {
	ctrl := NewController(NewStaticBackend(-1), testConfig(), testLogger(), nil)

	frame := ctrl.CaptureOrPlaceholder(context.Background(), nil)
	assert.True(t, frame.Synthetic)
	assert.Equal(t, 640, frame.Width)

	live := NewController(NewStaticBackend(0, grayFrame(5)), testConfig(), testLogger(), nil)
	s, err := live.Acquire(context.Background(), nil)
	require.NoError(t, err)
	defer live.Release(s)

	frame = live.CaptureOrPlaceholder(context.Background(), s)
	assert.False(t, frame.Synthetic)
}

func TestPlan_Order(t *testing.T) {
	ctrl := NewController(NewStaticBackend(0), testConfig(), testLogger(), nil)
	plan := ctrl.plan(1)

	require.NotEmpty(t, plan)
	assert.Equal(t, StrategyDefault, plan[0].strategy)
	assert.Equal(t, 1, plan[0].req.Index)

	var scanned []int
	for _, a := range plan {
		if a.strategy == StrategyScan {
			scanned = append(scanned, a.req.Index)
		}
	}
	assert.Equal(t, []int{0, 2}, scanned)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, domain.ErrCaptureTimeout, classify(context.DeadlineExceeded))
	assert.Equal(t, domain.ErrDeviceBusy, classify(domain.ErrDeviceBusy.WithError(errors.New("ebusy"))))
	assert.Equal(t, domain.ErrDeviceAbsent, classify(errors.New("unknown")))
	assert.Equal(t, domain.ErrNoFrame, classify(domain.ErrNoFrame))
}
