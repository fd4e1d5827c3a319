package widget

import "github.com/aretw0/chatflow/pkg/domain"

// State is the lifecycle state of the widget.
type State int

const (
	// Closed is both the initial state and the state after any teardown.
	Closed State = iota
	// Opening means the channel handshake is in flight.
	Opening
	// Connected means the channel is open and input is enabled.
	Connected
	// Disconnected means the remote side ended the session. The transcript stays visible.
	Disconnected
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// IsOpen reports whether the widget panel is expanded.
func (s State) IsOpen() bool {
	return s != Closed
}

// Input placeholders shown in the message box.
const (
	PlaceholderConnecting = "Connecting…"
	PlaceholderReady      = "Type your message…"
	PlaceholderEnded      = "Chat ended"
)

// Rect is the widget's bounding region in host coordinates.
type Rect struct {
	X, Y, Width, Height int
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// MouseButton identifies the pointer button of a click.
type MouseButton int

const (
	ButtonLeft MouseButton = iota
	ButtonMiddle
	ButtonRight
)

// PointerEvent is a click reported by the host surface.
type PointerEvent struct {
	X, Y   int
	Button MouseButton
}

// Snapshot is a copy of the runtime state for rendering.
type Snapshot struct {
	State        State          `json:"state"`
	Session      uint64         `json:"session"`
	Transcript   []domain.Entry `json:"transcript"`
	Typing       bool           `json:"typing"`
	Placeholder  string         `json:"placeholder"`
	InputEnabled bool           `json:"inputEnabled"`
	// PickerGeneration changes whenever the file picker must be reset.
	PickerGeneration int `json:"pickerGeneration"`
}
