package domain

import "io"

// File is a file staged for upload.
type File struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// UploadedFile is the descriptor returned by the upload side channel.
type UploadedFile struct {
	FileID      string `json:"fileId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size,omitempty"`
}
