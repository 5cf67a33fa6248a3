package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of engine event
type EventType string

const (
	EventCaptureFailed       EventType = "capture_failed"
	EventEnrollmentCommitted EventType = "enrollment_committed"
	EventAuthAttempt         EventType = "auth_attempt"
)

// Event is a structured engine event handed to the audit collaborator.
// The engine never persists these itself.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	EventType  EventType         `json:"event_type"`
	IdentityID string            `json:"identity_id,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
	Accepted   *bool             `json:"accepted,omitempty"`
	Device     string            `json:"device,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// CaptureFailed builds a capture_failed event.
func CaptureFailed(device string, err error) Event {
	e := Event{EventType: EventCaptureFailed, Device: device}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// EnrollmentCommitted builds an enrollment_committed event.
func EnrollmentCommitted(identityID string, samples int, degraded bool) Event {
	return Event{
		EventType:  EventEnrollmentCommitted,
		IdentityID: identityID,
		Metadata: map[string]string{
			"samples":  strconv.Itoa(samples),
			"degraded": strconv.FormatBool(degraded),
		},
	}
}

// AuthAttempt builds an auth_attempt event. identityID is empty when no
// identity was accepted.
func AuthAttempt(identityID string, confidence float64, accepted bool) Event {
	return Event{
		EventType:  EventAuthAttempt,
		IdentityID: identityID,
		Confidence: &confidence,
		Accepted:   &accepted,
	}
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger using slog
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	stamp(&event)

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	attrs := []any{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("event_data", string(eventJSON)),
	}
	if event.IdentityID != "" {
		attrs = append(attrs, slog.String("identity_id", event.IdentityID))
	}
	if event.Accepted != nil {
		attrs = append(attrs, slog.Bool("accepted", *event.Accepted))
	}

	l.logger.InfoContext(ctx, "audit_event", attrs...)
	return nil
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

// Log does nothing and returns nil
func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}

// MemoryLogger keeps events in memory. Hosts use it to forward events to
// their own sink; tests use it to assert on emitted events.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) Log(_ context.Context, event Event) error {
	stamp(&event)
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
	return nil
}

// Events returns a snapshot of recorded events.
func (l *MemoryLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// OfType returns recorded events of a single type.
func (l *MemoryLogger) OfType(t EventType) []Event {
	var out []Event
	for _, e := range l.Events() {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

func stamp(event *Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}
