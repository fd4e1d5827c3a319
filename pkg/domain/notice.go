package domain

// NoticeLevel is the severity of a transient user-visible notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient message shown to the operator (toast-style).
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}
