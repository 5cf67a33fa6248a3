package camera

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateActive
	StateCapturing
	StateReleasing
	StateAcquisitionFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateActive:
		return "active"
	case StateCapturing:
		return "capturing"
	case StateReleasing:
		return "releasing"
	case StateAcquisitionFailed:
		return "acquisition_failed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	State    string `json:"state"`
	Backend  string `json:"backend"`
	Index    *int   `json:"index,omitempty"`
	API      string `json:"api,omitempty"`
	Strategy string `json:"strategy,omitempty"`
}
