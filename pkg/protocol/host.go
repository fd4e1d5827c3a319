package protocol

// Host message types posted to the embedding page.
const (
	HostResizeFrame = "resize-iframe"
	HostWidgetState = "widget-state"
)

// ResizeFrame asks the host page to change the embedding frame height.
type ResizeFrame struct {
	Type   string `json:"type"`
	Height int    `json:"height"`
}

// WidgetState announces whether the widget is open.
type WidgetState struct {
	Type   string `json:"type"`
	IsOpen bool   `json:"isOpen"`
}

// Resize builds a resize request.
func Resize(height int) ResizeFrame {
	return ResizeFrame{Type: HostResizeFrame, Height: height}
}

// State builds an open/closed announcement.
func State(open bool) WidgetState {
	return WidgetState{Type: HostWidgetState, IsOpen: open}
}
