package domain

import (
	"time"
)

// MatcherFeature is the name of the baseline feature-vector matcher. It is
// always active for every enrolled identity.
const MatcherFeature = "feature"

// EnrolledIdentity is a registered face profile.
type EnrolledIdentity struct {
	ID             string    `json:"identity_id"`
	DisplayName    string    `json:"display_name"`
	ProfileVector  []float64 `json:"-"`
	SampleCount    int       `json:"enrollment_sample_count"`
	ActiveMatchers []string  `json:"active_matchers"`
	// Degraded is set when no optional matcher could be trained and the
	// identity is covered by the feature matcher alone.
	Degraded  bool      `json:"degraded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share the profile slice.
func (i *EnrolledIdentity) Clone() *EnrolledIdentity {
	if i == nil {
		return nil
	}
	c := *i
	c.ProfileVector = append([]float64(nil), i.ProfileVector...)
	c.ActiveMatchers = append([]string(nil), i.ActiveMatchers...)
	return &c
}

// MatcherScore is one matcher's contribution to a recognition attempt.
type MatcherScore struct {
	Matcher    string  `json:"matcher"`
	IdentityID string  `json:"identity_id,omitempty"`
	Confidence float64 `json:"confidence"`
	// RawDistance is the matcher's native distance before normalization.
	RawDistance float64 `json:"raw_distance"`
	Err         string  `json:"error,omitempty"`
}

// RecognitionResult is the transient outcome of one authentication attempt.
// It is never persisted by the engine.
type RecognitionResult struct {
	IdentityID *string `json:"identity_id"`
	// Candidate is the best scoring identity even below threshold. Telemetry only.
	Candidate  string         `json:"candidate,omitempty"`
	Confidence float64        `json:"confidence"`
	Recognized bool           `json:"recognized"`
	Breakdown  []MatcherScore `json:"breakdown"`
	Attempts   int            `json:"attempts"`
	LatencyMs  int64          `json:"latency_ms"`
}
