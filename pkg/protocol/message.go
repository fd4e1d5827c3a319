package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Kind identifies a chat message.
type Kind string

const (
	KindUser         Kind = "user"
	KindFileUpload   Kind = "file_upload"
	KindBot          Kind = "bot"
	KindReviewPrompt Kind = "review_prompt"
	KindWarn         Kind = "warn"
	KindError        Kind = "error"
)

var (
	// ErrMalformed is returned for payloads that cannot be decoded into a message.
	ErrMalformed = errors.New("malformed chat message")
	// ErrClosed is returned by channels once the remote side has closed.
	ErrClosed = errors.New("chat channel closed")
)

// ClientMessage is sent by the widget.
type ClientMessage struct {
	Type        Kind   `json:"type" mapstructure:"type"`
	Content     string `json:"content,omitempty" mapstructure:"content"`
	FileID      string `json:"fileId,omitempty" mapstructure:"fileId"`
	Filename    string `json:"filename,omitempty" mapstructure:"filename"`
	ContentType string `json:"contentType,omitempty" mapstructure:"contentType"`
	DownloadURL string `json:"downloadUrl,omitempty" mapstructure:"downloadUrl"`
}

// ServerMessage is pushed by the collaborator.
type ServerMessage struct {
	Type      Kind   `json:"type" mapstructure:"type"`
	Content   string `json:"content" mapstructure:"content"`
	ReviewURL string `json:"reviewUrl,omitempty" mapstructure:"reviewUrl"`
}

// UserText builds a free-text client message.
func UserText(text string) ClientMessage {
	return ClientMessage{Type: KindUser, Content: text}
}

// FileUpload builds the announcement of an uploaded file.
func FileUpload(fileID, filename, contentType, downloadURL string) ClientMessage {
	return ClientMessage{
		Type:        KindFileUpload,
		FileID:      fileID,
		Filename:    filename,
		ContentType: contentType,
		DownloadURL: downloadURL,
	}
}

// EndsTyping reports whether a server message completes the bot's turn.
// Structural messages (warn, error) leave the typing indicator alone.
func (m ServerMessage) EndsTyping() bool {
	return m.Type == KindBot || m.Type == KindReviewPrompt
}

// DecodeServer decodes a server-to-client payload.
func DecodeServer(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := decode(data, &msg); err != nil {
		return ServerMessage{}, err
	}
	if msg.Type == "" {
		return ServerMessage{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return msg, nil
}

// DecodeClient decodes a client-to-server payload.
func DecodeClient(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := decode(data, &msg); err != nil {
		return ClientMessage{}, err
	}
	switch msg.Type {
	case KindUser, KindFileUpload:
		return msg, nil
	case "":
		return ClientMessage{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return ClientMessage{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, msg.Type)
	}
}

func decode(data []byte, out any) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// ConnectParams identify a chat session. They travel as connection-string parameters.
type ConnectParams struct {
	AppID   string
	Country string
}

// Query encodes the parameters as a URL query.
func (p ConnectParams) Query() url.Values {
	v := url.Values{}
	v.Set("appId", p.AppID)
	if p.Country != "" {
		v.Set("country", strings.ToUpper(p.Country))
	}
	return v
}

// ParseConnectParams reads parameters back from a URL query.
func ParseConnectParams(v url.Values) (ConnectParams, error) {
	p := ConnectParams{AppID: v.Get("appId"), Country: v.Get("country")}
	if p.AppID == "" {
		return p, errors.New("appId is required")
	}
	return p, nil
}
