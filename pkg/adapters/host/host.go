// Package host provides notifiers for the page embedding the widget.
package host

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Nop is used when the widget is not inside a foreign frame.
type Nop struct{}

// Embedded always reports false.
func (Nop) Embedded() bool { return false }

// Post does nothing.
func (Nop) Post(any) error { return nil }

// Writer posts each message as one JSON line, the way a frame bridge reads them.
// Safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter creates a notifier writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Embedded reports true.
func (w *Writer) Embedded() bool { return true }

// Post encodes msg as a JSON line.
func (w *Writer) Post(msg any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(msg); err != nil {
		return fmt.Errorf("failed to post host message: %w", err)
	}
	return nil
}

// Recorder keeps posted messages in memory.
type Recorder struct {
	mu       sync.Mutex
	embedded bool
	messages []any
}

// NewRecorder creates a recorder. A non-embedded recorder must never receive posts.
func NewRecorder(embedded bool) *Recorder {
	return &Recorder{embedded: embedded}
}

// Embedded reports the configured value.
func (r *Recorder) Embedded() bool { return r.embedded }

// Post records msg.
func (r *Recorder) Post(msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.messages...)
}
