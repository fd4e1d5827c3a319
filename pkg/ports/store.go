package ports

import (
	"context"
	"io"

	"github.com/aretw0/chatflow/pkg/domain"
)

// FlowStore is the remote flow storage collaborator, keyed by tenant (app) id.
// It is the single source of truth; controllers treat their lists as caches.
type FlowStore interface {
	// ListQuestions returns every question of the app.
	ListQuestions(ctx context.Context, appID string) ([]domain.Question, error)

	// ListGrouped returns the app's questions grouped by workflow group.
	ListGrouped(ctx context.Context, appID string) ([]domain.GroupedFlow, error)

	// CreateQuestion stores a new question and returns it with its assigned id.
	// A root question without a group is given a fresh group id.
	CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)

	// UpdateQuestion applies a partial update, preserving every nil patch field.
	// Returns domain.ErrNotFound if the question does not exist.
	UpdateQuestion(ctx context.Context, appID, id string, patch domain.QuestionPatch) (domain.Question, error)

	// DeleteQuestion removes a question.
	// Returns domain.ErrNotFound if the question does not exist.
	DeleteQuestion(ctx context.Context, appID, id string) error
}

// PlanStore is the remote plan storage collaborator.
type PlanStore interface {
	ListPlans(ctx context.Context, appID string) ([]domain.Plan, error)

	// UpsertPlans creates plans without an id and replaces the rest.
	UpsertPlans(ctx context.Context, appID string, plans []domain.PlanInput) ([]domain.Plan, error)
}

// AttachmentStore holds the single file attached to a question.
type AttachmentStore interface {
	UploadAttachment(ctx context.Context, appID, questionID string, file domain.File) (domain.Attachment, error)
	DeleteAttachment(ctx context.Context, appID, questionID string) error

	// GetAttachment opens the attached file. The caller closes the reader.
	GetAttachment(ctx context.Context, appID, questionID string) (domain.UploadedFile, io.ReadCloser, error)
}

// FileStore backs the chat upload side channel.
type FileStore interface {
	PutFile(ctx context.Context, appID string, file domain.File) (domain.UploadedFile, error)

	// GetFile opens a stored file. The caller closes the reader.
	GetFile(ctx context.Context, appID, fileID string) (domain.UploadedFile, io.ReadCloser, error)
}

// Uploader is the widget's view of the upload side channel.
type Uploader interface {
	Upload(ctx context.Context, appID string, file domain.File) (domain.UploadedFile, error)

	// DownloadURL is the retrieval link announced to the collaborator.
	DownloadURL(appID, fileID string) string
}

// Backend is the full collaborator storage surface served over HTTP.
type Backend interface {
	FlowStore
	PlanStore
	AttachmentStore
	FileStore
}
