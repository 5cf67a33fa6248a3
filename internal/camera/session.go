package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// Session is an acquired device. Captures on one session are serialized.
type Session struct {
	ctrl     *Controller
	device   Device
	index    int
	api      API
	strategy string

	mu       sync.Mutex
	released bool
}

func (s *Session) Index() int       { return s.index }
func (s *Session) API() API         { return s.api }
func (s *Session) Strategy() string { return s.strategy }

// Capture reads one frame, retrying empty or failed reads with a fixed
// backoff. The returned frame owns its buffer.
func (s *Session) Capture(ctx context.Context) (imaging.RawFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return imaging.RawFrame{}, domain.ErrSessionReleased
	}

	s.ctrl.setCapturing(s, true)
	defer s.ctrl.setCapturing(s, false)

	retries := s.ctrl.cfg.CaptureRetries
	var lastErr error
	for i := 0; i < retries; i++ {
		if i > 0 {
			if err := sleep(ctx, s.ctrl.cfg.CaptureBackoff); err != nil {
				lastErr = err
				break
			}
		}

		frame, err := s.read(ctx)
		if errors.Is(err, errStuckRead) {
			lastErr = err
			break
		}
		if err == nil && !frame.Empty() {
			return frame.Clone(), nil
		}
		if err == nil {
			err = imaging.ErrEmptyFrame
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	var out error
	switch {
	case errors.Is(lastErr, errStuckRead):
		out = domain.ErrCaptureTimeout.WithError(lastErr)
	case errors.Is(lastErr, context.DeadlineExceeded), errors.Is(lastErr, context.Canceled):
		out = domain.ErrCaptureTimeout.WithError(lastErr)
	case errors.Is(lastErr, domain.ErrDeviceBusy), errors.Is(lastErr, domain.ErrDeviceAbsent):
		out = lastErr
	default:
		out = domain.ErrNoFrame.WithError(lastErr)
	}
	s.ctrl.reportCaptureFailure(ctx, s, out)
	return imaging.RawFrame{}, out
}

// readGrace is how long a read may outlive its deadline before the device
// is considered stuck.
const readGrace = 100 * time.Millisecond

var errStuckRead = errors.New("device read ignored its deadline")

type readResult struct {
	frame imaging.RawFrame
	err   error
}

// read bounds one device read by the attempt timeout. A read that does not
// return within readGrace of its deadline leaves the device in an unknown
// state: the session is invalidated and the device is closed once the read
// finally returns. Callers hold s.mu.
func (s *Session) read(ctx context.Context) (imaging.RawFrame, error) {
	rctx, cancel := context.WithTimeout(ctx, s.ctrl.cfg.AttemptTimeout)
	defer cancel()

	ch := make(chan readResult, 1)
	go func() {
		frame, err := s.device.Read(rctx)
		ch <- readResult{frame: frame, err: err}
	}()

	select {
	case r := <-ch:
		return r.frame, r.err
	case <-rctx.Done():
	}

	grace := time.NewTimer(readGrace)
	defer grace.Stop()
	select {
	case r := <-ch:
		return r.frame, r.err
	case <-grace.C:
	}

	s.released = true
	dev := s.device
	go func() {
		<-ch
		_ = dev.Close()
	}()
	s.ctrl.invalidate(s)
	return imaging.RawFrame{}, fmt.Errorf("%w: %w", errStuckRead, rctx.Err())
}

func (s *Session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	return s.device.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
