package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

const (
	StrategyDefault  = "default"
	StrategyPlatform = "platform"
	StrategyScan     = "scan"
)

// Config holds capture settings.
type Config struct {
	Index          int
	Width          int
	Height         int
	FPS            int
	ScanLimit      int
	AttemptTimeout time.Duration
	CaptureRetries int
	CaptureBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		Index:          0,
		Width:          640,
		Height:         480,
		FPS:            30,
		ScanLimit:      4,
		AttemptTimeout: 5 * time.Second,
		CaptureRetries: 3,
		CaptureBackoff: 100 * time.Millisecond,
	}
}

type attempt struct {
	strategy string
	req      OpenRequest
}

// Controller owns the camera. At most one session is live at a time, so a
// device index is never held twice by this process.
type Controller struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
	audit   audit.Logger

	mu      sync.Mutex
	state   State
	session *Session
}

func NewController(backend Backend, cfg Config, logger *slog.Logger, auditLogger audit.Logger) *Controller {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	if cfg.CaptureRetries <= 0 {
		cfg.CaptureRetries = 1
	}
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	return &Controller{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With("component", "camera"),
		audit:   auditLogger,
		state:   StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state.String(), Backend: c.backend.Name()}
	if c.session != nil {
		idx := c.session.index
		st.Index = &idx
		st.API = c.session.api.String()
		st.Strategy = c.session.strategy
	}
	return st
}

// Acquire opens a camera. index overrides the configured device when set.
// Strategies are tried in order (default, platform, scan) and the first
// device that delivers a non-empty test frame wins.
func (c *Controller) Acquire(ctx context.Context, index *int) (*Session, error) {
	c.mu.Lock()
	switch c.state {
	case StateAcquiring:
		c.mu.Unlock()
		return nil, domain.ErrAlreadyAcquiring
	case StateActive, StateCapturing, StateReleasing:
		c.mu.Unlock()
		return nil, domain.ErrDeviceBusy
	}
	c.state = StateAcquiring
	c.mu.Unlock()

	want := c.cfg.Index
	if index != nil {
		want = *index
	}

	var (
		last     = domain.ErrDeviceAbsent
		failures []error
	)
	for _, a := range c.plan(want) {
		if err := ctx.Err(); err != nil {
			last = domain.ErrCaptureTimeout
			failures = append(failures, err)
			break
		}

		dev, err := c.open(ctx, a.req)
		if err == nil {
			s := &Session{ctrl: c, device: dev, index: a.req.Index, api: a.req.API, strategy: a.strategy}
			c.mu.Lock()
			c.state = StateActive
			c.session = s
			c.mu.Unlock()

			c.logger.InfoContext(ctx, "camera acquired",
				"index", a.req.Index,
				"api", a.req.API.String(),
				"strategy", a.strategy,
			)
			return s, nil
		}

		last = classify(err)
		failures = append(failures, fmt.Errorf("%s index=%d api=%s: %w", a.strategy, a.req.Index, a.req.API, err))
		c.logger.DebugContext(ctx, "camera attempt failed",
			"index", a.req.Index,
			"strategy", a.strategy,
			"error", err,
		)
	}

	c.mu.Lock()
	c.state = StateAcquisitionFailed
	c.mu.Unlock()

	err := last.WithError(errors.Join(failures...))
	c.logger.WarnContext(ctx, "camera acquisition failed", "error", err)
	_ = c.audit.Log(ctx, audit.CaptureFailed(deviceName(want), err))

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	return nil, err
}

func (c *Controller) plan(index int) []attempt {
	base := OpenRequest{Index: index, API: APIAny, Width: c.cfg.Width, Height: c.cfg.Height, FPS: c.cfg.FPS}
	attempts := []attempt{{strategy: StrategyDefault, req: base}}

	if api := PlatformAPI(); api != APIAny {
		req := base
		req.API = api
		attempts = append(attempts, attempt{strategy: StrategyPlatform, req: req})
	}

	for i := 0; i < c.cfg.ScanLimit; i++ {
		if i == index {
			continue
		}
		attempts = append(attempts, attempt{strategy: StrategyScan, req: OpenRequest{Index: i, API: APIAny}})
	}
	return attempts
}

type openResult struct {
	dev Device
	err error
}

// open runs one bounded attempt. The backend call happens on its own
// goroutine; if it outlives the attempt deadline, whatever it eventually
// returns is closed there.
func (c *Controller) open(ctx context.Context, req OpenRequest) (Device, error) {
	actx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	ch := make(chan openResult, 1)
	go func() {
		dev, err := c.backend.Open(actx, req)
		if err != nil {
			ch <- openResult{err: err}
			return
		}
		frame, err := dev.Read(actx)
		if err == nil && frame.Empty() {
			err = domain.ErrNoFrame
		}
		if err != nil {
			_ = dev.Close()
			ch <- openResult{err: err}
			return
		}
		ch <- openResult{dev: dev}
	}()

	select {
	case r := <-ch:
		return r.dev, r.err
	case <-actx.Done():
		go func() {
			if r := <-ch; r.dev != nil {
				_ = r.dev.Close()
			}
		}()
		return nil, domain.ErrCaptureTimeout.WithError(actx.Err())
	}
}

// Release closes the session and returns the controller to Idle. It is
// safe to call with nil and more than once.
func (c *Controller) Release(s *Session) error {
	if s == nil {
		return nil
	}

	c.mu.Lock()
	current := c.session == s
	if current {
		c.state = StateReleasing
	}
	c.mu.Unlock()

	err := s.close()

	c.mu.Lock()
	if c.session == s {
		c.session = nil
		c.state = StateIdle
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("camera close failed", "index", s.index, "error", err)
	}
	return err
}

// Close releases any live session. Used on shutdown.
func (c *Controller) Close() error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	return c.Release(s)
}

// CaptureOrPlaceholder captures from s and falls back to a synthetic
// placeholder frame when no real frame is available. The result is marked
// Synthetic and must never be used for authentication.
func (c *Controller) CaptureOrPlaceholder(ctx context.Context, s *Session) imaging.RawFrame {
	if s != nil {
		frame, err := s.Capture(ctx)
		if err == nil {
			return frame
		}
		c.logger.WarnContext(ctx, "serving placeholder frame", "error", err)
	}
	return imaging.Placeholder(c.cfg.Width, c.cfg.Height)
}

func (c *Controller) setCapturing(s *Session, capturing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return
	}
	if capturing {
		c.state = StateCapturing
	} else if c.state == StateCapturing {
		c.state = StateActive
	}
}

// invalidate drops s without closing its device so a new session can be
// acquired while a stuck read is still pending.
func (c *Controller) invalidate(s *Session) {
	c.mu.Lock()
	current := c.session == s
	if current {
		c.session = nil
		c.state = StateIdle
	}
	c.mu.Unlock()

	if current {
		c.logger.Warn("camera session invalidated after a stuck read", "index", s.index)
	}
}

func (c *Controller) reportCaptureFailure(ctx context.Context, s *Session, err error) {
	c.logger.WarnContext(ctx, "capture failed", "index", s.index, "error", err)
	_ = c.audit.Log(ctx, audit.CaptureFailed(deviceName(s.index), err))
}

var classes = []*domain.AppError{
	domain.ErrDeviceBusy,
	domain.ErrDeviceAbsent,
	domain.ErrCaptureTimeout,
	domain.ErrNoFrame,
}

func classify(err error) *domain.AppError {
	for _, cls := range classes {
		if errors.Is(err, cls) {
			return cls
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ErrCaptureTimeout
	}
	return domain.ErrDeviceAbsent
}

func deviceName(index int) string {
	return fmt.Sprintf("camera:%d", index)
}
