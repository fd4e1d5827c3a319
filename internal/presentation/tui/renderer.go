package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/render"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// Transcript renders widget transcript entries for a terminal.
type Transcript struct {
	profile  termenv.Profile
	markdown func(string) (string, error)
}

// NewTranscript creates a transcript renderer. With plain set, output carries
// no colours or markdown styling.
func NewTranscript(plain bool) *Transcript {
	if plain {
		return &Transcript{
			profile:  termenv.Ascii,
			markdown: func(s string) (string, error) { return s, nil },
		}
	}
	return &Transcript{profile: termenv.ColorProfile(), markdown: NewRenderer()}
}

// Entry renders one entry. Buttons of bot messages are numbered from 1 so a
// terminal user can press them by typing the number; they are returned in order.
func (t *Transcript) Entry(e domain.Entry) (string, []render.Segment) {
	switch e.Type {
	case domain.EntryUser:
		return t.prefix("you", "#22c55e") + e.Content, nil
	case domain.EntryUserFile:
		return t.prefix("you", "#22c55e") + "📎 " + e.Filename, nil
	case domain.EntryWarn:
		return t.prefix("warn", "#eab308") + e.Content, nil
	case domain.EntryError:
		return t.prefix("error", "#ef4444") + e.Content, nil
	case domain.EntryReviewPrompt:
		out := t.prefix("bot", "#a78bfa") + e.Content
		if e.URL != "" {
			out += " " + e.URL
		}
		return out, nil
	default:
		return t.bot(e.Content)
	}
}

func (t *Transcript) bot(content string) (string, []render.Segment) {
	segments := render.Parse(content)
	var md strings.Builder
	var buttons []render.Segment
	for _, s := range segments {
		switch s.Kind {
		case render.KindButton:
			buttons = append(buttons, s)
			fmt.Fprintf(&md, "**[%d] %s** ", len(buttons), s.Text)
		case render.KindDownload:
			fmt.Fprintf(&md, "📎 [%s](%s)", s.Text, s.URL)
		case render.KindLink:
			fmt.Fprintf(&md, "[%s](%s)", s.Text, s.URL)
		default:
			md.WriteString(s.Text)
		}
	}
	out, err := t.markdown(md.String())
	if err != nil {
		out = render.Plain(segments)
	}
	return t.prefix("bot", "#a78bfa") + strings.TrimSpace(out), buttons
}

func (t *Transcript) prefix(role, color string) string {
	return t.profile.String(role + " › ").Foreground(t.profile.Color(color)).Bold().String()
}
