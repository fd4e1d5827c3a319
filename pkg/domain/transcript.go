package domain

import "time"

// EntryType is the role of a transcript line as shown in the widget.
type EntryType string

const (
	EntryUser         EntryType = "user"
	EntryUserFile     EntryType = "user_file"
	EntryBot          EntryType = "bot"
	EntryReviewPrompt EntryType = "review_prompt"
	EntryWarn         EntryType = "warn"
	EntryError        EntryType = "error"
)

// Entry is one line of the visitor's chat transcript.
type Entry struct {
	Type      EntryType `json:"type"`
	Content   string    `json:"content"`
	URL       string    `json:"url,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recoverable reports whether the entry signals a condition the session survived.
func (e Entry) Recoverable() bool {
	return e.Type == EntryWarn || e.Type == EntryError
}
