package render

import (
	"context"
	"strings"
)

// Kind identifies a renderable segment.
type Kind string

const (
	KindText     Kind = "text"
	KindButton   Kind = "button"
	KindDownload Kind = "download"
	KindLink     Kind = "link"
)

// DefaultDownloadName labels a download tag without a name attribute.
const DefaultDownloadName = "Download"

// Segment is one renderable piece of a bot message.
//
// Text holds the visible label for every kind. Value is the click value of a
// button and URL the target of downloads and links.
type Segment struct {
	Kind  Kind   `json:"kind"`
	Text  string `json:"text"`
	Value string `json:"value,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Sender is the outbound message path of the chat runtime.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// Activate performs the segment's click action. Buttons send their value through
// the same path as typed input; other kinds have no conversation effect.
func (s Segment) Activate(ctx context.Context, sender Sender) error {
	if s.Kind != KindButton {
		return nil
	}
	return sender.SendText(ctx, s.Value)
}

// Buttons returns the button segments in order.
func Buttons(segments []Segment) []Segment {
	var out []Segment
	for _, s := range segments {
		if s.Kind == KindButton {
			out = append(out, s)
		}
	}
	return out
}

// Plain renders segments as plain text for logs and non-interactive terminals.
func Plain(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		switch s.Kind {
		case KindButton:
			b.WriteString("[" + s.Text + "]")
		case KindDownload:
			b.WriteString(s.Text + " <" + s.URL + ">")
		default:
			b.WriteString(s.Text)
		}
	}
	return b.String()
}
